package creditline

import (
	"context"
	"fmt"
)

// MakePayment applies a payment tied to a pledged receivable. Allocation
// order is fixed: past-due yield, then past-due fees and principal, then the
// current period's yield due, then its principal due; any remainder pays
// down unbilled principal. The applied total never exceeds the amount
// supplied.
func (engine *Engine) MakePayment(ctx context.Context, caller Actor, borrower BorrowerID, receivableID ReceivableID, amount Amount) error {
	hash := CreditHashForBorrower(borrower)
	var applied Amount
	operationError := func() error {
		if err := engine.guard(ctx); err != nil {
			return err
		}
		if err := engine.authorizePayer(ctx, caller, borrower); err != nil {
			return err
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
			if err := engine.requirePledged(ctx, receivableID); err != nil {
				return err
			}
			record, detail, err := txStore.GetRecord(ctx, hash)
			if err != nil {
				return err
			}
			if record.State == StateDeleted {
				return ErrCreditClosed
			}
			now := engine.nowFn()
			record, detail = Refresh(record, detail, config, settings, now)
			record, detail, applied = allocatePayment(record, detail, amount)
			if err := txStore.PutRecord(ctx, hash, record, detail); err != nil {
				return err
			}
			if applied > 0 {
				if err := engine.treasury.TransferIn(ctx, borrower, applied); err != nil {
					return err
				}
			}
			engine.notifyBillRefreshed(ctx, hash, borrower, record)
			engine.notify(ctx, Event{
				Kind:               EventPaymentMadeWithReceivable,
				CreditHash:         hash,
				Borrower:           borrower,
				ReceivableID:       receivableID,
				Amount:             applied,
				NextDueDateUnixUTC: record.NextDueDateUnixUTC,
				OccurredUnixUTC:    now,
			})
			return nil
		})
	}()
	engine.logOperation(ctx, OperationLog{
		Operation:    operationPayment,
		Caller:       caller,
		Borrower:     borrower,
		CreditHash:   hash,
		ReceivableID: receivableID,
		Amount:       amount,
		Error:        operationError,
	})
	return operationError
}

// MakeDirectPayment applies a payment that is not tied to a pledged
// receivable, such as a servicer remitting collected proceeds. Allocation is
// identical to MakePayment.
func (engine *Engine) MakeDirectPayment(ctx context.Context, caller Actor, borrower BorrowerID, amount Amount) error {
	hash := CreditHashForBorrower(borrower)
	var applied Amount
	operationError := func() error {
		if err := engine.guard(ctx); err != nil {
			return err
		}
		if err := engine.authorizePayer(ctx, caller, borrower); err != nil {
			return err
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
			record, detail, err := txStore.GetRecord(ctx, hash)
			if err != nil {
				return err
			}
			if record.State == StateDeleted {
				return ErrCreditClosed
			}
			now := engine.nowFn()
			record, detail = Refresh(record, detail, config, settings, now)
			record, detail, applied = allocatePayment(record, detail, amount)
			if err := txStore.PutRecord(ctx, hash, record, detail); err != nil {
				return err
			}
			if applied > 0 {
				if err := engine.treasury.TransferIn(ctx, borrower, applied); err != nil {
					return err
				}
			}
			engine.notifyBillRefreshed(ctx, hash, borrower, record)
			engine.notify(ctx, Event{
				Kind:               EventPaymentMade,
				CreditHash:         hash,
				Borrower:           borrower,
				Amount:             applied,
				NextDueDateUnixUTC: record.NextDueDateUnixUTC,
				OccurredUnixUTC:    now,
			})
			return nil
		})
	}()
	engine.logOperation(ctx, OperationLog{
		Operation:  operationDirectPayment,
		Caller:     caller,
		Borrower:   borrower,
		CreditHash: hash,
		Amount:     amount,
		Error:      operationError,
	})
	return operationError
}

// MakePrincipalPayment applies a payment to principal components only,
// skipping yield and fees. Used for accelerated de-leveraging.
func (engine *Engine) MakePrincipalPayment(ctx context.Context, caller Actor, borrower BorrowerID, receivableID ReceivableID, amount Amount) error {
	hash := CreditHashForBorrower(borrower)
	var applied Amount
	operationError := func() error {
		if err := engine.guard(ctx); err != nil {
			return err
		}
		if err := engine.authorizePayer(ctx, caller, borrower); err != nil {
			return err
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
			if err := engine.requirePledged(ctx, receivableID); err != nil {
				return err
			}
			record, detail, err := txStore.GetRecord(ctx, hash)
			if err != nil {
				return err
			}
			if record.State == StateDeleted {
				return ErrCreditClosed
			}
			now := engine.nowFn()
			record, detail = Refresh(record, detail, config, settings, now)
			record, detail, applied = allocatePrincipalPayment(record, detail, amount)
			if err := txStore.PutRecord(ctx, hash, record, detail); err != nil {
				return err
			}
			if applied > 0 {
				if err := engine.treasury.TransferIn(ctx, borrower, applied); err != nil {
					return err
				}
			}
			engine.notifyBillRefreshed(ctx, hash, borrower, record)
			engine.notify(ctx, Event{
				Kind:               EventPrincipalPaymentMadeWithReceivable,
				CreditHash:         hash,
				Borrower:           borrower,
				ReceivableID:       receivableID,
				Amount:             applied,
				NextDueDateUnixUTC: record.NextDueDateUnixUTC,
				OccurredUnixUTC:    now,
			})
			return nil
		})
	}()
	engine.logOperation(ctx, OperationLog{
		Operation:    operationPrincipalPayment,
		Caller:       caller,
		Borrower:     borrower,
		CreditHash:   hash,
		ReceivableID: receivableID,
		Amount:       amount,
		Error:        operationError,
	})
	return operationError
}

// MakePrincipalPaymentAndDrawdown nets a principal payment against a new
// draw in a single atomic operation. With equal amounts no funds move and
// the credit record is untouched beyond the refresh; otherwise only the
// surplus is processed as an ordinary principal payment, or only the
// deficit as an ordinary additional draw.
func (engine *Engine) MakePrincipalPaymentAndDrawdown(ctx context.Context, caller Actor, borrower BorrowerID, payReceivableID ReceivableID, payAmount Amount, drawReceivableID ReceivableID, drawAmount Amount) error {
	hash := CreditHashForBorrower(borrower)
	operationError := func() error {
		if err := engine.guard(ctx); err != nil {
			return err
		}
		if !caller.Is(borrower) {
			return ErrNotAuthorized
		}
		if payReceivableID.String() == "" || drawReceivableID.String() == "" {
			return ErrZeroReceivableID
		}
		if payAmount <= 0 || drawAmount <= 0 {
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
			if err := engine.requirePledged(ctx, payReceivableID); err != nil {
				return err
			}
			faceAmount, err := engine.registry.AmountOf(ctx, drawReceivableID)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrReceivableNotFound, err)
			}
			if drawAmount > faceAmount {
				return ErrInsufficientReceivableAmount
			}
			if config.AutoApproveReceivables {
				approvalChanged, err := engine.manager.approveReceivable(ctx, txStore, hash, borrower, config, settings, drawReceivableID, faceAmount)
				if err != nil {
					return err
				}
				if approvalChanged {
					engine.notify(ctx, Event{
						Kind:            EventCollateralApproved,
						CreditHash:      hash,
						Borrower:        borrower,
						ReceivableID:    drawReceivableID,
						Amount:          faceAmount,
						OccurredUnixUTC: engine.nowFn(),
					})
				}
			} else if err := engine.manager.validateReceivable(ctx, txStore, config, hash, borrower, drawReceivableID); err != nil {
				return err
			}
			record, detail, err := txStore.GetRecord(ctx, hash)
			if err != nil {
				return err
			}
			switch record.State {
			case StateDefaulted:
				return ErrCreditDefaulted
			case StateDeleted:
				return ErrCreditClosed
			}
			now := engine.nowFn()
			record, detail = Refresh(record, detail, config, settings, now)

			switch {
			case payAmount > drawAmount:
				surplus := payAmount - drawAmount
				var applied Amount
				record, detail, applied = allocatePrincipalPayment(record, detail, surplus)
				if applied > 0 {
					if err := engine.treasury.TransferIn(ctx, borrower, applied); err != nil {
						return err
					}
				}
				engine.notify(ctx, Event{
					Kind:            EventPrincipalPaymentMade,
					CreditHash:      hash,
					Borrower:        borrower,
					ReceivableID:    payReceivableID,
					Amount:          applied,
					OccurredUnixUTC: now,
				})
			case drawAmount > payAmount:
				deficit := drawAmount - payAmount
				if record.State == StateApproved {
					record, detail = startBillingSchedule(record, detail, config, now)
				}
				if err := engine.manager.decreaseAvailableCredit(ctx, txStore, hash, deficit); err != nil {
					return err
				}
				record, detail = applyDraw(record, detail, config, settings, now, deficit)
				if err := engine.treasury.TransferOut(ctx, borrower, deficit); err != nil {
					return err
				}
				engine.notify(ctx, Event{
					Kind:               EventDrawdownMade,
					CreditHash:         hash,
					Borrower:           borrower,
					ReceivableID:       drawReceivableID,
					Amount:             deficit,
					NextDueDateUnixUTC: record.NextDueDateUnixUTC,
					OccurredUnixUTC:    now,
				})
			}

			if err := txStore.PutRecord(ctx, hash, record, detail); err != nil {
				return err
			}
			engine.notifyBillRefreshed(ctx, hash, borrower, record)
			return nil
		})
	}()
	engine.logOperation(ctx, OperationLog{
		Operation:    operationPayAndDraw,
		Caller:       caller,
		Borrower:     borrower,
		CreditHash:   hash,
		ReceivableID: drawReceivableID,
		Amount:       drawAmount,
		Error:        operationError,
	})
	return operationError
}

// TriggerDefault marks a credit line as defaulted. Only a service account
// may trigger it; the transition is terminal.
func (engine *Engine) TriggerDefault(ctx context.Context, caller Actor, borrower BorrowerID) error {
	hash := CreditHashForBorrower(borrower)
	operationError := func() error {
		if err := engine.guard(ctx); err != nil {
			return err
		}
		isService, err := engine.roles.IsServiceAccount(ctx, caller)
		if err != nil {
			return err
		}
		if !isService {
			return ErrNotAuthorized
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
			record, detail, err := txStore.GetRecord(ctx, hash)
			if err != nil {
				return err
			}
			if record.State == StateDeleted {
				return ErrCreditClosed
			}
			record, detail = Refresh(record, detail, config, settings, engine.nowFn())
			record.State = StateDefaulted
			return txStore.PutRecord(ctx, hash, record, detail)
		})
	}()
	engine.logOperation(ctx, OperationLog{
		Operation:  operationTriggerDefault,
		Caller:     caller,
		Borrower:   borrower,
		CreditHash: hash,
		Error:      operationError,
	})
	return operationError
}

// Close terminates a fully settled position. Nothing may remain owed.
func (engine *Engine) Close(ctx context.Context, caller Actor, borrower BorrowerID) error {
	hash := CreditHashForBorrower(borrower)
	operationError := func() error {
		if err := engine.guard(ctx); err != nil {
			return err
		}
		if err := engine.authorizePayer(ctx, caller, borrower); err != nil {
			return err
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
			record, detail, err := txStore.GetRecord(ctx, hash)
			if err != nil {
				return err
			}
			if record.State == StateDeleted {
				return ErrCreditClosed
			}
			record, detail = Refresh(record, detail, config, settings, engine.nowFn())
			if record.TotalPastDue > 0 || record.NextDue > 0 || record.UnbilledPrincipal > 0 {
				return ErrOutstandingBalance
			}
			record.State = StateDeleted
			if err := txStore.SetAvailableCredit(ctx, hash, 0); err != nil {
				return err
			}
			return txStore.PutRecord(ctx, hash, record, detail)
		})
	}()
	engine.logOperation(ctx, OperationLog{
		Operation:  operationClose,
		Caller:     caller,
		Borrower:   borrower,
		CreditHash: hash,
		Error:      operationError,
	})
	return operationError
}

// requirePledged verifies the receivable is held as pledged collateral.
func (engine *Engine) requirePledged(ctx context.Context, receivableID ReceivableID) error {
	held, err := engine.registry.IsHeldBy(ctx, receivableID, engine.holder)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrReceivableNotFound, err)
	}
	if !held {
		return ErrNotReceivableOwner
	}
	return nil
}

// allocatePayment walks the fixed allocation order and returns the applied
// total alongside the updated record and detail.
func allocatePayment(record CreditRecord, detail DueDetail, amount Amount) (CreditRecord, DueDetail, Amount) {
	remaining := amount

	pay := min(remaining, detail.YieldPastDue)
	detail.YieldPastDue -= pay
	record.TotalPastDue -= pay
	remaining -= pay

	pay = min(remaining, detail.LateFee)
	detail.LateFee -= pay
	record.TotalPastDue -= pay
	remaining -= pay

	pay = min(remaining, detail.PrincipalPastDue)
	detail.PrincipalPastDue -= pay
	record.TotalPastDue -= pay
	remaining -= pay

	pay = min(remaining, record.YieldDue)
	record.YieldDue -= pay
	record.NextDue -= pay
	detail.PaidThisPeriod += pay
	remaining -= pay

	pay = min(remaining, record.NextDue-record.YieldDue)
	record.NextDue -= pay
	detail.PaidThisPeriod += pay
	remaining -= pay

	pay = min(remaining, record.UnbilledPrincipal)
	record.UnbilledPrincipal -= pay
	remaining -= pay

	record, detail = settleArrears(record, detail)
	return record, detail, amount - remaining
}

// allocatePrincipalPayment applies a payment to principal components only:
// past-due principal, then the current period's principal due, then
// unbilled principal.
func allocatePrincipalPayment(record CreditRecord, detail DueDetail, amount Amount) (CreditRecord, DueDetail, Amount) {
	remaining := amount

	pay := min(remaining, detail.PrincipalPastDue)
	detail.PrincipalPastDue -= pay
	record.TotalPastDue -= pay
	remaining -= pay

	pay = min(remaining, record.NextDue-record.YieldDue)
	record.NextDue -= pay
	detail.PaidThisPeriod += pay
	remaining -= pay

	pay = min(remaining, record.UnbilledPrincipal)
	record.UnbilledPrincipal -= pay
	remaining -= pay

	record, detail = settleArrears(record, detail)
	return record, detail, amount - remaining
}

// settleArrears resets the delinquency markers once every past-due amount
// has been cleared.
func settleArrears(record CreditRecord, detail DueDetail) (CreditRecord, DueDetail) {
	if record.TotalPastDue != 0 {
		return record, detail
	}
	record.MissedPeriods = 0
	detail.LateFeeUpdatedDateUnixUTC = 0
	if record.State == StateDelayed {
		record.State = StateGoodStanding
	}
	return record, detail
}
