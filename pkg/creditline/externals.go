package creditline

import "context"

// CollateralRegistry exposes ownership facts about receivables. The engine
// never mutates receivables; it only observes them at the moment of use.
type CollateralRegistry interface {
	AmountOf(ctx context.Context, receivableID ReceivableID) (Amount, error)
	MaturityOf(ctx context.Context, receivableID ReceivableID) (int64, error)
	OwnerOf(ctx context.Context, receivableID ReceivableID) (BorrowerID, error)
	IsHeldBy(ctx context.Context, receivableID ReceivableID, holder Actor) (bool, error)
}

// Treasury moves funds between the pool and external parties.
type Treasury interface {
	TransferIn(ctx context.Context, from BorrowerID, amount Amount) error
	TransferOut(ctx context.Context, to BorrowerID, amount Amount) error
}

// Switchboard exposes the protocol-wide enable and pause switches.
type Switchboard interface {
	IsPaused(ctx context.Context) (bool, error)
	IsPoolEnabled(ctx context.Context) (bool, error)
}

// StaticSwitchboard is a Switchboard backed by fixed flags.
type StaticSwitchboard struct {
	Paused      bool
	PoolEnabled bool
}

// IsPaused reports the fixed paused flag.
func (static StaticSwitchboard) IsPaused(ctx context.Context) (bool, error) {
	return static.Paused, nil
}

// IsPoolEnabled reports the fixed pool enabled flag.
func (static StaticSwitchboard) IsPoolEnabled(ctx context.Context) (bool, error) {
	return static.PoolEnabled, nil
}

// RoleAuthority answers capability queries about callers.
type RoleAuthority interface {
	IsApprover(ctx context.Context, caller Actor) (bool, error)
	IsServiceAccount(ctx context.Context, caller Actor) (bool, error)
}

// EventKind enumerates the notifications produced by the engine.
type EventKind string

const (
	EventCollateralApproved                 EventKind = "collateral_approved"
	EventBillRefreshed                      EventKind = "bill_refreshed"
	EventDrawdownMade                       EventKind = "drawdown_made"
	EventDrawdownMadeWithReceivable         EventKind = "drawdown_made_with_receivable"
	EventPaymentMade                        EventKind = "payment_made"
	EventPaymentMadeWithReceivable          EventKind = "payment_made_with_receivable"
	EventPrincipalPaymentMade               EventKind = "principal_payment_made"
	EventPrincipalPaymentMadeWithReceivable EventKind = "principal_payment_made_with_receivable"
)

// Event is an observable side effect of a state-changing operation.
type Event struct {
	Kind               EventKind
	CreditHash         CreditHash
	Borrower           BorrowerID
	ReceivableID       ReceivableID
	Amount             Amount
	NextDueDateUnixUTC int64
	OccurredUnixUTC    int64
}

// Notifier receives engine notifications.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}
