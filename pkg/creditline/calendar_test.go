package creditline

import (
	"testing"
	"time"
)

func TestStartOfNextPeriodMonthly(test *testing.T) {
	test.Parallel()
	got := StartOfNextPeriod(PeriodMonthly, unixAt(2024, time.January, 16))
	if got != unixAt(2024, time.February, 1) {
		test.Fatalf("expected Feb 1, got %s", time.Unix(got, 0).UTC())
	}
}

func TestStartOfNextPeriodCrossesYear(test *testing.T) {
	test.Parallel()
	got := StartOfNextPeriod(PeriodQuarterly, unixAt(2024, time.November, 20))
	if got != unixAt(2025, time.February, 1) {
		test.Fatalf("expected Feb 1 2025, got %s", time.Unix(got, 0).UTC())
	}
}

func TestStartOfNextDay(test *testing.T) {
	test.Parallel()
	at := time.Date(2024, time.March, 31, 17, 45, 12, 0, time.UTC).Unix()
	if got := StartOfNextDay(at); got != unixAt(2024, time.April, 1) {
		test.Fatalf("expected Apr 1, got %s", time.Unix(got, 0).UTC())
	}
}

func TestDaysDiffThirtyDayConvention(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name string
		from int64
		to   int64
		want int
	}{
		{
			name: "half month",
			from: unixAt(2024, time.January, 16),
			to:   unixAt(2024, time.February, 1),
			want: 15,
		},
		{
			name: "full month",
			from: unixAt(2024, time.February, 1),
			to:   unixAt(2024, time.March, 1),
			want: 30,
		},
		{
			name: "month end capped at thirty",
			from: unixAt(2024, time.January, 31),
			to:   unixAt(2024, time.February, 1),
			want: 1,
		},
		{
			name: "across year",
			from: unixAt(2023, time.December, 1),
			to:   unixAt(2024, time.January, 1),
			want: 30,
		},
		{
			name: "negative range returns zero",
			from: unixAt(2024, time.March, 1),
			to:   unixAt(2024, time.February, 1),
			want: 0,
		},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			if got := DaysDiff(testCase.from, testCase.to); got != testCase.want {
				test.Fatalf("expected %d days, got %d", testCase.want, got)
			}
		})
	}
}

func TestDaysInPeriod(test *testing.T) {
	test.Parallel()
	if got := DaysInPeriod(PeriodMonthly); got != 30 {
		test.Fatalf("expected 30, got %d", got)
	}
	if got := DaysInPeriod(PeriodQuarterly); got != 90 {
		test.Fatalf("expected 90, got %d", got)
	}
	if got := DaysInPeriod(PeriodSemiAnnually); got != 180 {
		test.Fatalf("expected 180, got %d", got)
	}
}
