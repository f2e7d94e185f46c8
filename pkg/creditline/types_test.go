package creditline

import (
	"errors"
	"testing"
)

func TestNewBorrowerIDTrimsAndRejectsEmpty(test *testing.T) {
	test.Parallel()
	borrower, err := NewBorrowerID("  acme  ")
	if err != nil {
		test.Fatalf("unexpected error: %v", err)
	}
	if borrower.String() != "acme" {
		test.Fatalf("expected trimmed id, got %q", borrower.String())
	}
	if _, err := NewBorrowerID("   "); !errors.Is(err, ErrInvalidBorrowerID) {
		test.Fatalf("expected ErrInvalidBorrowerID, got %v", err)
	}
}

func TestNewActorRejectsEmpty(test *testing.T) {
	test.Parallel()
	if _, err := NewActor(""); !errors.Is(err, ErrInvalidActor) {
		test.Fatalf("expected ErrInvalidActor, got %v", err)
	}
}

func TestActorIsBorrower(test *testing.T) {
	test.Parallel()
	borrower := mustBorrower(test, "acme")
	if !mustActor(test, "acme").Is(borrower) {
		test.Fatalf("expected actor to match borrower")
	}
	if mustActor(test, "other").Is(borrower) {
		test.Fatalf("expected mismatch for other actor")
	}
	if (Actor{}).Is(BorrowerID{}) {
		test.Fatalf("zero actor must never match")
	}
}

func TestNewAmountRequiresPositiveValue(test *testing.T) {
	test.Parallel()
	for _, raw := range []int64{0, -1} {
		if _, err := NewAmount(raw); !errors.Is(err, ErrZeroAmount) {
			test.Fatalf("expected ErrZeroAmount for %d, got %v", raw, err)
		}
	}
	if mustAmount(test, 100) != 100 {
		test.Fatalf("expected amount 100")
	}
}

func TestNewBalanceAllowsZero(test *testing.T) {
	test.Parallel()
	balance, err := NewBalance(0)
	if err != nil {
		test.Fatalf("unexpected error for zero balance: %v", err)
	}
	if balance != 0 {
		test.Fatalf("expected zero balance, got %d", balance)
	}
	if _, err := NewBalance(-1); !errors.Is(err, ErrInvalidParameters) {
		test.Fatalf("expected ErrInvalidParameters for negative balance, got %v", err)
	}
}

func TestCreditHashForBorrowerIsDeterministic(test *testing.T) {
	test.Parallel()
	borrower := mustBorrower(test, "acme")
	first := CreditHashForBorrower(borrower)
	second := CreditHashForBorrower(borrower)
	if first != second {
		test.Fatalf("expected identical hashes, got %s vs %s", first, second)
	}
	if len(first.String()) != 64 {
		test.Fatalf("expected hex sha256, got %q", first.String())
	}
	other := CreditHashForBorrower(mustBorrower(test, "globex"))
	if first == other {
		test.Fatalf("expected distinct hashes for distinct borrowers")
	}
}

func TestParsePeriodDuration(test *testing.T) {
	test.Parallel()
	for raw, months := range map[string]int{"monthly": 1, "quarterly": 3, "semi_annually": 6} {
		duration, err := ParsePeriodDuration(raw)
		if err != nil {
			test.Fatalf("parse %q: %v", raw, err)
		}
		if duration.Months() != months {
			test.Fatalf("expected %d months for %q, got %d", months, raw, duration.Months())
		}
	}
	if _, err := ParsePeriodDuration("weekly"); !errors.Is(err, ErrInvalidPeriodDuration) {
		test.Fatalf("expected ErrInvalidPeriodDuration, got %v", err)
	}
}

func TestParseCreditStateRejectsUnknown(test *testing.T) {
	test.Parallel()
	if _, err := ParseCreditState("suspended"); !errors.Is(err, ErrInvalidCreditState) {
		test.Fatalf("expected ErrInvalidCreditState, got %v", err)
	}
}

func TestNewCreditConfigValidation(test *testing.T) {
	test.Parallel()
	cases := []struct {
		name        string
		creditLimit Amount
		numPeriods  int
		yieldBps    int64
		committed   Amount
		duration    PeriodDuration
		wantErr     error
	}{
		{name: "zero limit", creditLimit: 0, numPeriods: 3, duration: PeriodMonthly, wantErr: ErrInvalidParameters},
		{name: "zero periods", creditLimit: 1000, numPeriods: 0, duration: PeriodMonthly, wantErr: ErrInvalidParameters},
		{name: "negative yield", creditLimit: 1000, numPeriods: 3, yieldBps: -1, duration: PeriodMonthly, wantErr: ErrInvalidParameters},
		{name: "negative committed", creditLimit: 1000, numPeriods: 3, committed: -1, duration: PeriodMonthly, wantErr: ErrInvalidParameters},
		{name: "bad duration", creditLimit: 1000, numPeriods: 3, duration: "weekly", wantErr: ErrInvalidPeriodDuration},
		{name: "valid", creditLimit: 1000, numPeriods: 3, yieldBps: 1217, duration: PeriodMonthly},
	}
	for _, testCase := range cases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			_, err := NewCreditConfig(testCase.creditLimit, testCase.numPeriods, testCase.yieldBps, testCase.committed, 0, testCase.duration, false)
			if testCase.wantErr == nil {
				if err != nil {
					test.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, testCase.wantErr) {
				test.Fatalf("expected %v, got %v", testCase.wantErr, err)
			}
		})
	}
}
