package creditline

import (
	"context"
	"errors"
	"fmt"
)

// Manager approves borrowers and receivables, tracks available credit, and
// enforces the credit limit invariant 0 <= available <= limit.
type Manager struct {
	store    Store
	registry CollateralRegistry
	roles    RoleAuthority
	settings SettingsSource
	notifier Notifier
	nowFn    func() int64
	logger   OperationLogger
}

// NewManager wires a Manager.
func NewManager(store Store, registry CollateralRegistry, roles RoleAuthority, settings SettingsSource, now func() int64, options ...ManagerOption) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if registry == nil {
		return nil, fmt.Errorf("%w: collateral registry dependency is nil", ErrInvalidServiceConfig)
	}
	if roles == nil {
		return nil, fmt.Errorf("%w: role authority dependency is nil", ErrInvalidServiceConfig)
	}
	if settings == nil {
		return nil, fmt.Errorf("%w: settings source dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	manager := &Manager{store: store, registry: registry, roles: roles, settings: settings, nowFn: now}
	for _, option := range options {
		if option != nil {
			option(manager)
		}
	}
	return manager, nil
}

// ApproveBorrower creates or replaces the credit line terms for a borrower
// and resets its available credit to zero.
func (manager *Manager) ApproveBorrower(ctx context.Context, caller Actor, borrower BorrowerID, config CreditConfig) (CreditHash, error) {
	hash := CreditHashForBorrower(borrower)
	operationError := func() error {
		isApprover, err := manager.roles.IsApprover(ctx, caller)
		if err != nil {
			return err
		}
		if !isApprover {
			return ErrNotApprover
		}
		validated, err := NewCreditConfig(
			config.CreditLimit,
			config.NumPeriods,
			config.YieldBps,
			config.CommittedAmount,
			config.DesignatedStartUnixUTC,
			config.PeriodDuration,
			config.AutoApproveReceivables,
		)
		if err != nil {
			return err
		}
		return manager.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
			if err := txStore.PutConfig(ctx, hash, borrower, validated); err != nil {
				return err
			}
			record, detail, err := txStore.GetRecord(ctx, hash)
			if err != nil {
				if !errors.Is(err, ErrCreditNotFound) {
					return err
				}
				record = CreditRecord{State: StateApproved, RemainingPeriods: validated.NumPeriods}
				detail = DueDetail{}
			}
			if record.State == StateDeleted {
				record = CreditRecord{State: StateApproved, RemainingPeriods: validated.NumPeriods}
				detail = DueDetail{}
			}
			if err := txStore.PutRecord(ctx, hash, record, detail); err != nil {
				return err
			}
			return txStore.SetAvailableCredit(ctx, hash, 0)
		})
	}()
	manager.logOperation(ctx, OperationLog{
		Operation:  operationApproveBorrower,
		Caller:     caller,
		Borrower:   borrower,
		CreditHash: hash,
		Amount:     config.CreditLimit,
		Error:      operationError,
	})
	if operationError != nil {
		return CreditHash{}, operationError
	}
	return hash, nil
}

// ApproveReceivable approves a receivable as collateral and tops up the
// available credit by its advance-rate-adjusted value. Re-approving with an
// unchanged or smaller amount is a no-op that emits no notification.
func (manager *Manager) ApproveReceivable(ctx context.Context, caller Actor, borrower BorrowerID, receivableID ReceivableID, faceAmount Amount) error {
	hash := CreditHashForBorrower(borrower)
	changed := false
	operationError := func() error {
		isApprover, err := manager.roles.IsApprover(ctx, caller)
		if err != nil {
			return err
		}
		if !isApprover {
			return ErrNotApprover
		}
		settings, err := manager.settings.Snapshot(ctx)
		if err != nil {
			return err
		}
		return manager.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
			config, err := txStore.GetConfig(ctx, hash)
			if err != nil {
				return err
			}
			changed, err = manager.approveReceivable(ctx, txStore, hash, borrower, config, settings, receivableID, faceAmount)
			return err
		})
	}()
	manager.logOperation(ctx, OperationLog{
		Operation:    operationApproveReceivable,
		Caller:       caller,
		Borrower:     borrower,
		CreditHash:   hash,
		ReceivableID: receivableID,
		Amount:       faceAmount,
		Error:        operationError,
	})
	if operationError != nil {
		return operationError
	}
	if changed {
		manager.notify(ctx, Event{
			Kind:            EventCollateralApproved,
			CreditHash:      hash,
			Borrower:        borrower,
			ReceivableID:    receivableID,
			Amount:          faceAmount,
			OccurredUnixUTC: manager.nowFn(),
		})
	}
	return nil
}

// approveReceivable records a receivable approval inside an open
// transaction. It reports whether the approval changed any state. The engine
// uses it directly when auto-approval is enabled.
func (manager *Manager) approveReceivable(ctx context.Context, txStore Store, hash CreditHash, borrower BorrowerID, config CreditConfig, settings PoolSettings, receivableID ReceivableID, faceAmount Amount) (bool, error) {
	if receivableID.String() == "" {
		return false, ErrZeroReceivableID
	}
	if faceAmount <= 0 {
		return false, ErrZeroAmount
	}
	owner, err := manager.registry.OwnerOf(ctx, receivableID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrReceivableNotFound, err)
	}
	if owner != borrower {
		return false, ErrReceivableNotFound
	}
	maturity, err := manager.registry.MaturityOf(ctx, receivableID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrReceivableNotFound, err)
	}
	if maturity != 0 && maturity <= manager.nowFn() {
		return false, ErrReceivableMatured
	}
	recorded, found, err := txStore.ApprovedReceivableAmount(ctx, hash, receivableID)
	if err != nil {
		return false, err
	}
	if found && faceAmount <= recorded {
		return false, nil
	}
	incremental := advanceRateAdjusted(faceAmount, settings.AdvanceRateBps) - advanceRateAdjusted(recorded, settings.AdvanceRateBps)
	available, err := txStore.AvailableCredit(ctx, hash)
	if err != nil {
		return false, err
	}
	if available+incremental > config.CreditLimit {
		return false, ErrCreditLimitExceeded
	}
	if err := txStore.SetAvailableCredit(ctx, hash, available+incremental); err != nil {
		return false, err
	}
	if err := txStore.PutApprovedReceivable(ctx, hash, receivableID, faceAmount); err != nil {
		return false, err
	}
	return true, nil
}

// validateReceivable verifies ownership at the moment of use and, when
// auto-approval is disabled, that the receivable was explicitly approved.
func (manager *Manager) validateReceivable(ctx context.Context, txStore Store, config CreditConfig, hash CreditHash, borrower BorrowerID, receivableID ReceivableID) error {
	owner, err := manager.registry.OwnerOf(ctx, receivableID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrReceivableNotFound, err)
	}
	if owner != borrower {
		return ErrOwnershipMismatch
	}
	if config.AutoApproveReceivables {
		return nil
	}
	_, found, err := txStore.ApprovedReceivableAmount(ctx, hash, receivableID)
	if err != nil {
		return err
	}
	if !found {
		return ErrOwnershipMismatch
	}
	return nil
}

// decreaseAvailableCredit consumes available credit inside an open
// transaction. Only the engine reaches this, when a draw consumes pledged
// capacity.
func (manager *Manager) decreaseAvailableCredit(ctx context.Context, txStore Store, hash CreditHash, amount Amount) error {
	available, err := txStore.AvailableCredit(ctx, hash)
	if err != nil {
		return err
	}
	if amount > available {
		return ErrCreditLimitExceeded
	}
	return txStore.SetAvailableCredit(ctx, hash, available-amount)
}

// AvailableCredit returns the running available credit for a credit line.
func (manager *Manager) AvailableCredit(ctx context.Context, hash CreditHash) (Amount, error) {
	return manager.store.AvailableCredit(ctx, hash)
}

// Config returns the current credit line terms.
func (manager *Manager) Config(ctx context.Context, hash CreditHash) (CreditConfig, error) {
	return manager.store.GetConfig(ctx, hash)
}

func (manager *Manager) logOperation(ctx context.Context, entry OperationLog) {
	if manager.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	manager.logger.LogOperation(ctx, entry)
}

func (manager *Manager) notify(ctx context.Context, event Event) {
	if manager.notifier == nil {
		return
	}
	manager.notifier.Notify(ctx, event)
}

func advanceRateAdjusted(amount Amount, advanceRateBps int64) Amount {
	if amount <= 0 || advanceRateBps <= 0 {
		return 0
	}
	return Amount(amount.Int64() * advanceRateBps / bpsDenominator)
}
