package creditline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Amount is an integer currency amount in base units.
type Amount int64

// Int64 returns the raw amount value.
func (amount Amount) Int64() int64 {
	return int64(amount)
}

// NewAmount validates an operation amount and ensures it is strictly positive.
func NewAmount(raw int64) (Amount, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrZeroAmount)
	}
	return Amount(raw), nil
}

// NewBalance validates a stored balance. Zero is a valid balance: available
// credit starts at zero and committed amount may be configured as zero.
func NewBalance(raw int64) (Amount, error) {
	if raw < 0 {
		return 0, fmt.Errorf("%w: balance %d is negative", ErrInvalidParameters, raw)
	}
	return Amount(raw), nil
}

// BorrowerID identifies the owner of a credit line.
type BorrowerID struct {
	value string
}

// NewBorrowerID validates and normalizes a borrower id.
func NewBorrowerID(raw string) (BorrowerID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return BorrowerID{}, fmt.Errorf("%w: empty value", ErrInvalidBorrowerID)
	}
	return BorrowerID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id BorrowerID) String() string {
	return id.value
}

// ReceivableID identifies a pledged receivable.
type ReceivableID struct {
	value string
}

// NewReceivableID validates and normalizes a receivable id.
func NewReceivableID(raw string) (ReceivableID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ReceivableID{}, fmt.Errorf("%w: empty value", ErrZeroReceivableID)
	}
	return ReceivableID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id ReceivableID) String() string {
	return id.value
}

// Actor identifies the caller of an operation.
type Actor struct {
	value string
}

// NewActor validates and normalizes a caller identity.
func NewActor(raw string) (Actor, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Actor{}, fmt.Errorf("%w: empty value", ErrInvalidActor)
	}
	return Actor{value: trimmed}, nil
}

// String returns the normalized identity.
func (actor Actor) String() string {
	return actor.value
}

// Is reports whether the actor is the given borrower.
func (actor Actor) Is(borrower BorrowerID) bool {
	return actor.value != "" && actor.value == borrower.value
}

// CreditHash is the unique identifier of a borrower's credit line.
type CreditHash struct {
	value string
}

// CreditHashForBorrower derives the credit hash for a borrower.
func CreditHashForBorrower(borrower BorrowerID) CreditHash {
	sum := sha256.Sum256([]byte(borrower.String()))
	return CreditHash{value: hex.EncodeToString(sum[:])}
}

// NewCreditHash validates a stored credit hash value.
func NewCreditHash(raw string) (CreditHash, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return CreditHash{}, fmt.Errorf("%w: empty credit hash", ErrCreditNotFound)
	}
	return CreditHash{value: trimmed}, nil
}

// String returns the hash value.
func (hash CreditHash) String() string {
	return hash.value
}

// PeriodDuration enumerates supported billing period lengths.
type PeriodDuration string

const (
	PeriodMonthly      PeriodDuration = "monthly"
	PeriodQuarterly    PeriodDuration = "quarterly"
	PeriodSemiAnnually PeriodDuration = "semi_annually"
)

// ParsePeriodDuration validates a stored period duration value.
func ParsePeriodDuration(raw string) (PeriodDuration, error) {
	switch PeriodDuration(raw) {
	case PeriodMonthly, PeriodQuarterly, PeriodSemiAnnually:
		return PeriodDuration(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPeriodDuration, raw)
}

// String returns the duration value.
func (duration PeriodDuration) String() string {
	return string(duration)
}

// Months returns the number of calendar months per period.
func (duration PeriodDuration) Months() int {
	switch duration {
	case PeriodQuarterly:
		return 3
	case PeriodSemiAnnually:
		return 6
	default:
		return 1
	}
}

// CreditState enumerates the credit record lifecycle.
type CreditState string

const (
	StateApproved     CreditState = "approved"
	StateGoodStanding CreditState = "good_standing"
	StateDelayed      CreditState = "delayed"
	StateDefaulted    CreditState = "defaulted"
	StateDeleted      CreditState = "deleted"
)

// ParseCreditState validates a stored credit state value.
func ParseCreditState(raw string) (CreditState, error) {
	switch CreditState(raw) {
	case StateApproved, StateGoodStanding, StateDelayed, StateDefaulted, StateDeleted:
		return CreditState(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCreditState, raw)
}

// String returns the state value.
func (state CreditState) String() string {
	return string(state)
}

// CreditConfig holds the immutable terms of an approved credit line.
// It is replaced wholesale on re-approval.
type CreditConfig struct {
	CreditLimit            Amount
	NumPeriods             int
	YieldBps               int64
	CommittedAmount        Amount
	DesignatedStartUnixUTC int64
	PeriodDuration         PeriodDuration
	AutoApproveReceivables bool
}

// NewCreditConfig validates credit line terms.
func NewCreditConfig(creditLimit Amount, numPeriods int, yieldBps int64, committedAmount Amount, designatedStartUnixUTC int64, duration PeriodDuration, autoApprove bool) (CreditConfig, error) {
	if creditLimit <= 0 {
		return CreditConfig{}, fmt.Errorf("%w: credit limit must be positive", ErrInvalidParameters)
	}
	if numPeriods <= 0 {
		return CreditConfig{}, fmt.Errorf("%w: number of periods must be positive", ErrInvalidParameters)
	}
	if yieldBps < 0 {
		return CreditConfig{}, fmt.Errorf("%w: yield rate must not be negative", ErrInvalidParameters)
	}
	if committedAmount < 0 {
		return CreditConfig{}, fmt.Errorf("%w: committed amount must not be negative", ErrInvalidParameters)
	}
	if _, err := ParsePeriodDuration(duration.String()); err != nil {
		return CreditConfig{}, err
	}
	return CreditConfig{
		CreditLimit:            creditLimit,
		NumPeriods:             numPeriods,
		YieldBps:               yieldBps,
		CommittedAmount:        committedAmount,
		DesignatedStartUnixUTC: designatedStartUnixUTC,
		PeriodDuration:         duration,
		AutoApproveReceivables: autoApprove,
	}, nil
}

// CreditRecord is the per-credit-line billing state.
type CreditRecord struct {
	UnbilledPrincipal  Amount
	NextDueDateUnixUTC int64
	NextDue            Amount
	YieldDue           Amount
	TotalPastDue       Amount
	MissedPeriods      int
	RemainingPeriods   int
	State              CreditState
}

// DueDetail is the secondary due breakdown kept in lockstep with a CreditRecord.
type DueDetail struct {
	AccruedYield              Amount
	CommittedYield            Amount
	PaidThisPeriod            Amount
	YieldPastDue              Amount
	PrincipalPastDue          Amount
	LateFee                   Amount
	LateFeeUpdatedDateUnixUTC int64
}

// PoolSettings is the pool-wide configuration snapshot consulted by operations.
type PoolSettings struct {
	AdvanceRateBps       int64
	LateFeeBps           int64
	LatePaymentGraceDays int
	MinPrincipalRateBps  int64
}

// SettingsSource supplies a fresh pool settings snapshot per operation entry.
type SettingsSource interface {
	Snapshot(ctx context.Context) (PoolSettings, error)
}

// StaticSettings is a SettingsSource backed by a fixed snapshot.
type StaticSettings struct {
	Settings PoolSettings
}

// Snapshot returns the fixed settings snapshot.
func (static StaticSettings) Snapshot(ctx context.Context) (PoolSettings, error) {
	return static.Settings, nil
}

// Store is the persistence contract used by Manager and Engine.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	GetConfig(ctx context.Context, hash CreditHash) (CreditConfig, error)
	PutConfig(ctx context.Context, hash CreditHash, borrower BorrowerID, config CreditConfig) error
	GetRecord(ctx context.Context, hash CreditHash) (CreditRecord, DueDetail, error)
	PutRecord(ctx context.Context, hash CreditHash, record CreditRecord, detail DueDetail) error
	AvailableCredit(ctx context.Context, hash CreditHash) (Amount, error)
	SetAvailableCredit(ctx context.Context, hash CreditHash, available Amount) error
	ApprovedReceivableAmount(ctx context.Context, hash CreditHash, receivableID ReceivableID) (Amount, bool, error)
	PutApprovedReceivable(ctx context.Context, hash CreditHash, receivableID ReceivableID, faceAmount Amount) error
}
