package creditline

// bpsDenominator converts basis points to a fraction.
const bpsDenominator = 10000

// Due calculation is pure integer arithmetic with floor rounding at every
// step, so a computed due never exceeds the exact economic amount.

// prorate applies a basis-point rate to an amount for a day fraction of a
// full period. The rate is applied before the day fraction so intermediate
// products stay within int64 for realistic amounts.
func prorate(amount Amount, rateBps int64, days int, daysInFullPeriod int) Amount {
	if amount <= 0 || rateBps <= 0 || days <= 0 || daysInFullPeriod <= 0 {
		return 0
	}
	rated := amount.Int64() * rateBps / bpsDenominator
	return Amount(rated * int64(days) / int64(daysInFullPeriod))
}

// YieldDue computes the accrued and committed yield on a principal for the
// given number of days within a period. The billable yield due is the
// greater of the two.
func YieldDue(config CreditConfig, principal Amount, days int) (Amount, Amount) {
	daysInFull := DaysInPeriod(config.PeriodDuration)
	accrued := prorate(principal, config.YieldBps, days, daysInFull)
	committed := prorate(config.CommittedAmount, config.YieldBps, days, daysInFull)
	return accrued, committed
}

// BillableYield returns the greater of accrued and committed yield.
func BillableYield(accrued Amount, committed Amount) Amount {
	if committed > accrued {
		return committed
	}
	return accrued
}

// PrincipalDueForFullPeriods computes the principal portion billed over a
// number of full periods as a geometric reduction of the unbilled principal,
// flooring each period so no principal is manufactured.
func PrincipalDueForFullPeriods(unbilledPrincipal Amount, minPrincipalRateBps int64, numPeriods int) Amount {
	if unbilledPrincipal <= 0 || minPrincipalRateBps <= 0 || numPeriods <= 0 {
		return 0
	}
	remaining := unbilledPrincipal.Int64()
	due := int64(0)
	for period := 0; period < numPeriods; period++ {
		portion := remaining * minPrincipalRateBps / bpsDenominator
		due += portion
		remaining -= portion
	}
	return Amount(due)
}

// PrincipalDueForPartialPeriod pro-rates one period's principal due linearly
// by the day fraction remaining in the period.
func PrincipalDueForPartialPeriod(principal Amount, minPrincipalRateBps int64, daysRemaining int, daysInFullPeriod int) Amount {
	return prorate(principal, minPrincipalRateBps, daysRemaining, daysInFullPeriod)
}

// LateFee computes a simple daily late fee accrual on the given base over
// the number of days late. The fee rate is expressed per 360-day year.
func LateFee(base Amount, lateFeeBps int64, daysLate int) Amount {
	return prorate(base, lateFeeBps, daysLate, 12*daysPerMonth)
}
