package creditline

const secondsPerDay = 24 * 60 * 60

// Refresh brings a credit record and its due detail up to date with the
// given time. It is a pure function: calling it again with the same inputs
// and the same time yields identical results. Elapsed periods are derived
// from date deltas, never from accumulated counters.
func Refresh(record CreditRecord, detail DueDetail, config CreditConfig, settings PoolSettings, nowUnixUTC int64) (CreditRecord, DueDetail) {
	switch record.State {
	case StateDefaulted, StateDeleted, StateApproved:
		return record, detail
	}
	if record.NextDueDateUnixUTC == 0 {
		return record, detail
	}

	daysInFull := DaysInPeriod(config.PeriodDuration)

	for record.NextDueDateUnixUTC <= nowUnixUTC && record.RemainingPeriods > 0 {
		lapsedDueDate := record.NextDueDateUnixUTC
		record.TotalPastDue += record.NextDue
		detail.YieldPastDue += record.YieldDue
		detail.PrincipalPastDue += record.NextDue - record.YieldDue
		record.MissedPeriods++
		record.RemainingPeriods--
		detail.PaidThisPeriod = 0
		if record.TotalPastDue > 0 && detail.LateFeeUpdatedDateUnixUTC == 0 {
			// Anchor late-fee accrual to the oldest lapsed due date.
			detail.LateFeeUpdatedDateUnixUTC = lapsedDueDate
		}

		if record.RemainingPeriods == 0 {
			// Matured: nothing further to bill. Any principal that never
			// made it onto a bill rolls straight into past due.
			if record.UnbilledPrincipal > 0 {
				record.TotalPastDue += record.UnbilledPrincipal
				detail.PrincipalPastDue += record.UnbilledPrincipal
				record.UnbilledPrincipal = 0
				if detail.LateFeeUpdatedDateUnixUTC == 0 {
					detail.LateFeeUpdatedDateUnixUTC = lapsedDueDate
				}
			}
			record.NextDue = 0
			record.YieldDue = 0
			detail.AccruedYield = 0
			detail.CommittedYield = 0
			record.NextDueDateUnixUTC = StartOfNextPeriod(config.PeriodDuration, record.NextDueDateUnixUTC)
			break
		}

		principalDue := PrincipalDueForFullPeriods(record.UnbilledPrincipal, settings.MinPrincipalRateBps, 1)
		if record.RemainingPeriods == 1 {
			// The final period bills all remaining principal.
			principalDue = record.UnbilledPrincipal
		}
		record.UnbilledPrincipal -= principalDue

		accrued, committed := YieldDue(config, record.UnbilledPrincipal+principalDue, daysInFull)
		detail.AccruedYield = accrued
		detail.CommittedYield = committed
		record.YieldDue = BillableYield(accrued, committed)
		record.NextDue = record.YieldDue + principalDue
		record.NextDueDateUnixUTC = StartOfNextPeriod(config.PeriodDuration, record.NextDueDateUnixUTC)
	}

	record, detail = accrueLateFee(record, detail, settings, nowUnixUTC)
	return record, detail
}

// accrueLateFee folds a late fee into the past due balance once the grace
// period past the lapsed due date has elapsed. Accrual is incremental from
// the anchor date, so repeated refreshes at the same time are no-ops.
func accrueLateFee(record CreditRecord, detail DueDetail, settings PoolSettings, nowUnixUTC int64) (CreditRecord, DueDetail) {
	if record.TotalPastDue == 0 || detail.LateFeeUpdatedDateUnixUTC == 0 {
		return record, detail
	}
	if record.State != StateDelayed {
		graceDeadline := StartOfNextDay(detail.LateFeeUpdatedDateUnixUTC + int64(settings.LatePaymentGraceDays)*secondsPerDay)
		if nowUnixUTC < graceDeadline {
			return record, detail
		}
		// Once the grace period lapses the fee is backdated to the due date.
	}
	feeBase := detail.YieldPastDue + detail.PrincipalPastDue
	fee := LateFee(feeBase, settings.LateFeeBps, DaysDiff(detail.LateFeeUpdatedDateUnixUTC, nowUnixUTC))
	detail.LateFee += fee
	detail.LateFeeUpdatedDateUnixUTC = nowUnixUTC
	record.TotalPastDue += fee
	record.State = StateDelayed
	return record, detail
}
