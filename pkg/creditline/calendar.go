package creditline

import "time"

// Day-count arithmetic uses a 30/360 convention so due amounts are
// deterministic and independent of calendar irregularities.
const daysPerMonth = 30

// DaysInPeriod returns the day count of one full billing period.
func DaysInPeriod(duration PeriodDuration) int {
	return duration.Months() * daysPerMonth
}

// StartOfNextPeriod returns the first instant of the billing period
// following the one containing the given timestamp.
func StartOfNextPeriod(duration PeriodDuration, atUnixUTC int64) int64 {
	at := time.Unix(atUnixUTC, 0).UTC()
	next := time.Date(at.Year(), at.Month()+time.Month(duration.Months()), 1, 0, 0, 0, 0, time.UTC)
	return next.Unix()
}

// StartOfNextDay returns midnight UTC of the day after the given timestamp.
func StartOfNextDay(atUnixUTC int64) int64 {
	at := time.Unix(atUnixUTC, 0).UTC()
	next := time.Date(at.Year(), at.Month(), at.Day()+1, 0, 0, 0, 0, time.UTC)
	return next.Unix()
}

// DaysDiff returns the 30/360 day count from one timestamp to another.
// Negative ranges return zero.
func DaysDiff(fromUnixUTC int64, toUnixUTC int64) int {
	if toUnixUTC <= fromUnixUTC {
		return 0
	}
	from := time.Unix(fromUnixUTC, 0).UTC()
	to := time.Unix(toUnixUTC, 0).UTC()
	fromDay := from.Day()
	if fromDay > daysPerMonth {
		fromDay = daysPerMonth
	}
	toDay := to.Day()
	if toDay > daysPerMonth {
		toDay = daysPerMonth
	}
	days := (to.Year()-from.Year())*12*daysPerMonth +
		(int(to.Month())-int(from.Month()))*daysPerMonth +
		(toDay - fromDay)
	if days < 0 {
		return 0
	}
	return days
}
