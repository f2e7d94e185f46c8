package creditline

import (
	"testing"
	"time"
)

// billedRecord reproduces the state of a 3-period monthly line after a
// 50,000 draw on Jan 16: 15 of 30 days remain in the first period.
func billedRecord() (CreditRecord, DueDetail, CreditConfig) {
	config := CreditConfig{
		CreditLimit:     100_000,
		NumPeriods:      3,
		YieldBps:        1217,
		CommittedAmount: 0,
		PeriodDuration:  PeriodMonthly,
	}
	record := CreditRecord{
		UnbilledPrincipal:  49_750,
		NextDueDateUnixUTC: unixAt(2024, time.February, 1),
		NextDue:            3292,
		YieldDue:           3042,
		RemainingPeriods:   3,
		State:              StateGoodStanding,
	}
	detail := DueDetail{AccruedYield: 3042}
	return record, detail, config
}

func TestRefreshNoOpBeforeDueDate(test *testing.T) {
	test.Parallel()
	record, detail, config := billedRecord()
	got, gotDetail := Refresh(record, detail, config, defaultSettings(), unixAt(2024, time.January, 20))
	if got != record {
		test.Fatalf("expected unchanged record, got %+v", got)
	}
	if gotDetail != detail {
		test.Fatalf("expected unchanged detail, got %+v", gotDetail)
	}
}

func TestRefreshDoesNotTouchTerminalStates(test *testing.T) {
	test.Parallel()
	record, detail, config := billedRecord()
	for _, state := range []CreditState{StateApproved, StateDefaulted, StateDeleted} {
		record.State = state
		got, _ := Refresh(record, detail, config, defaultSettings(), unixAt(2024, time.June, 1))
		if got != record {
			test.Fatalf("expected %s record untouched, got %+v", state, got)
		}
	}
}

func TestRefreshWithinGraceStaysGoodStanding(test *testing.T) {
	test.Parallel()
	record, detail, config := billedRecord()
	got, gotDetail := Refresh(record, detail, config, defaultSettings(), unixAt(2024, time.February, 3))
	if got.State != StateGoodStanding {
		test.Fatalf("expected good standing inside grace, got %s", got.State)
	}
	if got.TotalPastDue != 3292 {
		test.Fatalf("expected past due 3292, got %d", got.TotalPastDue)
	}
	if got.MissedPeriods != 1 {
		test.Fatalf("expected one missed period, got %d", got.MissedPeriods)
	}
	if gotDetail.LateFee != 0 {
		test.Fatalf("expected no late fee inside grace, got %d", gotDetail.LateFee)
	}
}

func TestRefreshRollsMissedPeriodAndAccruesLateFee(test *testing.T) {
	test.Parallel()
	record, detail, config := billedRecord()
	now := unixAt(2024, time.February, 10)
	got, gotDetail := Refresh(record, detail, config, defaultSettings(), now)

	if got.MissedPeriods != 1 {
		test.Fatalf("expected one missed period, got %d", got.MissedPeriods)
	}
	if got.RemainingPeriods != 2 {
		test.Fatalf("expected two periods remaining, got %d", got.RemainingPeriods)
	}
	if got.State != StateDelayed {
		test.Fatalf("expected delayed, got %s", got.State)
	}
	// Prior bill 3292 plus 9 days of late fee on it: 3292*24%/360*9 = 19.
	if got.TotalPastDue != 3311 {
		test.Fatalf("expected past due 3311, got %d", got.TotalPastDue)
	}
	if gotDetail.YieldPastDue != 3042 || gotDetail.PrincipalPastDue != 250 {
		test.Fatalf("unexpected past due split: yield %d principal %d", gotDetail.YieldPastDue, gotDetail.PrincipalPastDue)
	}
	if gotDetail.LateFee != 19 {
		test.Fatalf("expected late fee 19, got %d", gotDetail.LateFee)
	}
	// New period bill: 1% of 49,750 principal plus 12.17% yield on the rest.
	if got.UnbilledPrincipal != 49_253 {
		test.Fatalf("expected unbilled 49253, got %d", got.UnbilledPrincipal)
	}
	if got.YieldDue != 6054 {
		test.Fatalf("expected yield due 6054, got %d", got.YieldDue)
	}
	if got.NextDue != 6551 {
		test.Fatalf("expected next due 6551, got %d", got.NextDue)
	}
	if got.NextDueDateUnixUTC != unixAt(2024, time.March, 1) {
		test.Fatalf("expected next due date Mar 1, got %s", time.Unix(got.NextDueDateUnixUTC, 0).UTC())
	}
}

func TestRefreshIsIdempotent(test *testing.T) {
	test.Parallel()
	record, detail, config := billedRecord()
	now := unixAt(2024, time.February, 10)
	once, onceDetail := Refresh(record, detail, config, defaultSettings(), now)
	twice, twiceDetail := Refresh(once, onceDetail, config, defaultSettings(), now)
	if twice != once {
		test.Fatalf("expected identical record, got %+v vs %+v", twice, once)
	}
	if twiceDetail != onceDetail {
		test.Fatalf("expected identical detail, got %+v vs %+v", twiceDetail, onceDetail)
	}
}

func TestRefreshMaturesPosition(test *testing.T) {
	test.Parallel()
	record, detail, config := billedRecord()
	now := unixAt(2024, time.June, 1)
	got, gotDetail := Refresh(record, detail, config, defaultSettings(), now)

	if got.RemainingPeriods != 0 {
		test.Fatalf("expected no remaining periods, got %d", got.RemainingPeriods)
	}
	if got.MissedPeriods != 3 {
		test.Fatalf("expected three missed periods, got %d", got.MissedPeriods)
	}
	if got.NextDue != 0 || got.YieldDue != 0 {
		test.Fatalf("expected zero next due at maturity, got %d/%d", got.NextDue, got.YieldDue)
	}
	if got.UnbilledPrincipal != 0 {
		test.Fatalf("expected all principal billed, got %d", got.UnbilledPrincipal)
	}
	// Bills: 3292 (Feb) + 6551 (Mar) + 55247 (Apr balloon), all rolled, plus
	// 120 days of late fee on the 65,090 base: 65090*24%/360*120 = 5207.
	if gotDetail.YieldPastDue != 15_090 || gotDetail.PrincipalPastDue != 50_000 {
		test.Fatalf("unexpected past due split: yield %d principal %d", gotDetail.YieldPastDue, gotDetail.PrincipalPastDue)
	}
	if gotDetail.LateFee != 5207 {
		test.Fatalf("expected late fee 5207, got %d", gotDetail.LateFee)
	}
	if got.TotalPastDue != 70_297 {
		test.Fatalf("expected total past due 70297, got %d", got.TotalPastDue)
	}
	if got.State != StateDelayed {
		test.Fatalf("expected delayed, got %s", got.State)
	}
}

func TestRefreshMaturedAndSettledStaysGoodStanding(test *testing.T) {
	test.Parallel()
	_, _, config := billedRecord()
	record := CreditRecord{
		NextDueDateUnixUTC: unixAt(2024, time.April, 1),
		RemainingPeriods:   1,
		State:              StateGoodStanding,
	}
	got, _ := Refresh(record, DueDetail{}, config, defaultSettings(), unixAt(2024, time.April, 15))
	if got.State != StateGoodStanding {
		test.Fatalf("expected good standing, got %s", got.State)
	}
	if got.TotalPastDue != 0 || got.NextDue != 0 {
		test.Fatalf("expected nothing owed, got past due %d next due %d", got.TotalPastDue, got.NextDue)
	}
	if got.RemainingPeriods != 0 {
		test.Fatalf("expected matured, got %d remaining", got.RemainingPeriods)
	}
}
