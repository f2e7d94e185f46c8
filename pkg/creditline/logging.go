package creditline

import "context"

// OperationLogger records domain-level events emitted by engine and manager
// operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing credit line operation.
type OperationLog struct {
	Operation    string
	Caller       Actor
	Borrower     BorrowerID
	CreditHash   CreditHash
	ReceivableID ReceivableID
	Amount       Amount
	Status       string
	Error        error
}

// ManagerOption configures a Manager instance.
type ManagerOption func(*Manager)

// WithManagerOperationLogger wires a logger that receives callbacks for
// every manager operation.
func WithManagerOperationLogger(logger OperationLogger) ManagerOption {
	return func(manager *Manager) {
		manager.logger = logger
	}
}

// EngineOption configures an Engine instance.
type EngineOption func(*Engine)

// WithEngineOperationLogger wires a logger that receives callbacks for
// every engine operation.
func WithEngineOperationLogger(logger OperationLogger) EngineOption {
	return func(engine *Engine) {
		engine.logger = logger
	}
}

// WithNotifier wires the notifier receiving engine events.
func WithNotifier(notifier Notifier) EngineOption {
	return func(engine *Engine) {
		engine.notifier = notifier
	}
}

// WithManagerNotifier wires the notifier receiving manager events.
func WithManagerNotifier(notifier Notifier) ManagerOption {
	return func(manager *Manager) {
		manager.notifier = notifier
	}
}
