package creditline

import (
	"context"
	"fmt"
)

// Engine orchestrates borrower-facing draws and payments against specific
// receivables. Every mutating operation re-checks the protocol switches,
// authorizes the caller, and refreshes the bill before applying effects.
// Operations are all-or-nothing: effects apply inside a single transaction.
type Engine struct {
	store       Store
	manager     *Manager
	registry    CollateralRegistry
	treasury    Treasury
	switchboard Switchboard
	roles       RoleAuthority
	settings    SettingsSource
	holder      Actor
	notifier    Notifier
	nowFn       func() int64
	logger      OperationLogger
}

// NewEngine wires an Engine. The holder identity is the party under which
// pledged receivables are held in the collateral registry.
func NewEngine(store Store, manager *Manager, registry CollateralRegistry, treasury Treasury, switchboard Switchboard, roles RoleAuthority, settings SettingsSource, holder Actor, now func() int64, options ...EngineOption) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if manager == nil {
		return nil, fmt.Errorf("%w: manager dependency is nil", ErrInvalidServiceConfig)
	}
	if registry == nil {
		return nil, fmt.Errorf("%w: collateral registry dependency is nil", ErrInvalidServiceConfig)
	}
	if treasury == nil {
		return nil, fmt.Errorf("%w: treasury dependency is nil", ErrInvalidServiceConfig)
	}
	if switchboard == nil {
		return nil, fmt.Errorf("%w: switchboard dependency is nil", ErrInvalidServiceConfig)
	}
	if roles == nil {
		return nil, fmt.Errorf("%w: role authority dependency is nil", ErrInvalidServiceConfig)
	}
	if settings == nil {
		return nil, fmt.Errorf("%w: settings source dependency is nil", ErrInvalidServiceConfig)
	}
	if holder.String() == "" {
		return nil, fmt.Errorf("%w: holder identity is empty", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	engine := &Engine{
		store:       store,
		manager:     manager,
		registry:    registry,
		treasury:    treasury,
		switchboard: switchboard,
		roles:       roles,
		settings:    settings,
		holder:      holder,
		nowFn:       now,
	}
	for _, option := range options {
		if option != nil {
			option(engine)
		}
	}
	return engine, nil
}

// Drawdown draws funds against a specific receivable. The receivable is
// implicitly approved when auto-approval is enabled on the credit line.
func (engine *Engine) Drawdown(ctx context.Context, caller Actor, borrower BorrowerID, receivableID ReceivableID, amount Amount) error {
	hash := CreditHashForBorrower(borrower)
	operationError := func() error {
		if err := engine.guard(ctx); err != nil {
			return err
		}
		if !caller.Is(borrower) {
			return ErrNotAuthorized
		}
		if receivableID.String() == "" {
			return ErrZeroReceivableID
		}
		if amount <= 0 {
			return ErrZeroAmount
		}
		settings, err := engine.settings.Snapshot(ctx)
		if err != nil {
			return err
		}
		return engine.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
			config, err := txStore.GetConfig(ctx, hash)
			if err != nil {
				return err
			}
			faceAmount, err := engine.registry.AmountOf(ctx, receivableID)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrReceivableNotFound, err)
			}
			if amount > faceAmount {
				return ErrInsufficientReceivableAmount
			}
			if config.AutoApproveReceivables {
				approvalChanged, err := engine.manager.approveReceivable(ctx, txStore, hash, borrower, config, settings, receivableID, faceAmount)
				if err != nil {
					return err
				}
				if approvalChanged {
					engine.notify(ctx, Event{
						Kind:            EventCollateralApproved,
						CreditHash:      hash,
						Borrower:        borrower,
						ReceivableID:    receivableID,
						Amount:          faceAmount,
						OccurredUnixUTC: engine.nowFn(),
					})
				}
			} else if err := engine.manager.validateReceivable(ctx, txStore, config, hash, borrower, receivableID); err != nil {
				return err
			}
			record, detail, err := txStore.GetRecord(ctx, hash)
			if err != nil {
				return err
			}
			now := engine.nowFn()
			record, detail = Refresh(record, detail, config, settings, now)
			switch record.State {
			case StateDefaulted:
				return ErrCreditDefaulted
			case StateDeleted:
				return ErrCreditClosed
			case StateApproved:
				record, detail = startBillingSchedule(record, detail, config, now)
			}
			if err := engine.manager.decreaseAvailableCredit(ctx, txStore, hash, amount); err != nil {
				return err
			}
			record, detail = applyDraw(record, detail, config, settings, now, amount)
			if err := txStore.PutRecord(ctx, hash, record, detail); err != nil {
				return err
			}
			if err := engine.treasury.TransferOut(ctx, borrower, amount); err != nil {
				return err
			}
			engine.notifyBillRefreshed(ctx, hash, borrower, record)
			engine.notify(ctx, Event{
				Kind:               EventDrawdownMadeWithReceivable,
				CreditHash:         hash,
				Borrower:           borrower,
				ReceivableID:       receivableID,
				Amount:             amount,
				NextDueDateUnixUTC: record.NextDueDateUnixUTC,
				OccurredUnixUTC:    now,
			})
			return nil
		})
	}()
	engine.logOperation(ctx, OperationLog{
		Operation:    operationDrawdown,
		Caller:       caller,
		Borrower:     borrower,
		CreditHash:   hash,
		ReceivableID: receivableID,
		Amount:       amount,
		Error:        operationError,
	})
	return operationError
}

// DueInfo returns the credit record and due detail as they would look after
// a refresh at the current time, without persisting the refresh.
func (engine *Engine) DueInfo(ctx context.Context, borrower BorrowerID) (CreditRecord, DueDetail, error) {
	hash := CreditHashForBorrower(borrower)
	config, err := engine.store.GetConfig(ctx, hash)
	if err != nil {
		return CreditRecord{}, DueDetail{}, err
	}
	settings, err := engine.settings.Snapshot(ctx)
	if err != nil {
		return CreditRecord{}, DueDetail{}, err
	}
	record, detail, err := engine.store.GetRecord(ctx, hash)
	if err != nil {
		return CreditRecord{}, DueDetail{}, err
	}
	record, detail = Refresh(record, detail, config, settings, engine.nowFn())
	return record, detail, nil
}

// guard re-validates the protocol switches on every mutating entry point.
func (engine *Engine) guard(ctx context.Context) error {
	paused, err := engine.switchboard.IsPaused(ctx)
	if err != nil {
		return err
	}
	if paused {
		return ErrProtocolPaused
	}
	enabled, err := engine.switchboard.IsPoolEnabled(ctx)
	if err != nil {
		return err
	}
	if !enabled {
		return ErrPoolDisabled
	}
	return nil
}

// authorizePayer accepts the borrower itself or an authorized service
// account.
func (engine *Engine) authorizePayer(ctx context.Context, caller Actor, borrower BorrowerID) error {
	if caller.Is(borrower) {
		return nil
	}
	isService, err := engine.roles.IsServiceAccount(ctx, caller)
	if err != nil {
		return err
	}
	if !isService {
		return ErrNotAuthorized
	}
	return nil
}

// startBillingSchedule moves a freshly approved credit line into good
// standing on its first draw, anchoring the due schedule to the designated
// start when that lies in the future.
func startBillingSchedule(record CreditRecord, detail DueDetail, config CreditConfig, nowUnixUTC int64) (CreditRecord, DueDetail) {
	start := nowUnixUTC
	if config.DesignatedStartUnixUTC > nowUnixUTC {
		start = config.DesignatedStartUnixUTC
	}
	record.NextDueDateUnixUTC = StartOfNextPeriod(config.PeriodDuration, start)
	record.RemainingPeriods = config.NumPeriods
	record.State = StateGoodStanding
	daysRemaining := DaysDiff(nowUnixUTC, record.NextDueDateUnixUTC)
	_, committed := YieldDue(config, 0, daysRemaining)
	detail.CommittedYield = committed
	record.YieldDue = committed
	record.NextDue = committed
	return record, detail
}

// applyDraw folds a draw into the current period's bill: the pro-rated
// principal due stays on the bill while the remainder becomes unbilled
// principal, and yield accrues for the days remaining in the period.
func applyDraw(record CreditRecord, detail DueDetail, config CreditConfig, settings PoolSettings, nowUnixUTC int64, amount Amount) (CreditRecord, DueDetail) {
	daysInFull := DaysInPeriod(config.PeriodDuration)
	daysRemaining := DaysDiff(nowUnixUTC, record.NextDueDateUnixUTC)
	if daysRemaining > daysInFull {
		daysRemaining = daysInFull
	}
	partialPrincipal := PrincipalDueForPartialPeriod(amount, settings.MinPrincipalRateBps, daysRemaining, daysInFull)
	accruedDelta, _ := YieldDue(config, amount, daysRemaining)
	billableBefore := BillableYield(detail.AccruedYield, detail.CommittedYield)
	detail.AccruedYield += accruedDelta
	billableAfter := BillableYield(detail.AccruedYield, detail.CommittedYield)
	yieldDelta := billableAfter - billableBefore
	record.YieldDue += yieldDelta
	record.UnbilledPrincipal += amount - partialPrincipal
	record.NextDue += yieldDelta + partialPrincipal
	return record, detail
}

func (engine *Engine) notifyBillRefreshed(ctx context.Context, hash CreditHash, borrower BorrowerID, record CreditRecord) {
	engine.notify(ctx, Event{
		Kind:               EventBillRefreshed,
		CreditHash:         hash,
		Borrower:           borrower,
		Amount:             record.NextDue,
		NextDueDateUnixUTC: record.NextDueDateUnixUTC,
		OccurredUnixUTC:    engine.nowFn(),
	})
}

func (engine *Engine) notify(ctx context.Context, event Event) {
	if engine.notifier == nil {
		return
	}
	engine.notifier.Notify(ctx, event)
}

func (engine *Engine) logOperation(ctx context.Context, entry OperationLog) {
	if engine.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	engine.logger.LogOperation(ctx, entry)
}
