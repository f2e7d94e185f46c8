package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/creditline/pkg/creditline"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	errorOperationStore    = "store"
	errorSubjectCreditLine = "credit_line"
	errorSubjectBill       = "bill"
	errorSubjectReceivable = "receivable"
	errorCodeGet           = "get"
	errorCodeUpsert        = "upsert"
	errorCodeUpdate        = "update"
	errorCodeInvalid       = "invalid"
	errorCodeLookup        = "lookup"
	errorCodeNotFound      = "not_found"
)

// Store implements creditline.Store using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore creditline.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

func (store *Store) GetConfig(ctx context.Context, hash creditline.CreditHash) (creditline.CreditConfig, error) {
	var line CreditLine
	err := store.db.WithContext(ctx).
		Where("credit_hash = ?", hash.String()).
		Take(&line).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return creditline.CreditConfig{}, wrapStoreError(errorSubjectCreditLine, errorCodeNotFound, creditline.ErrCreditNotFound)
		}
		return creditline.CreditConfig{}, wrapStoreError(errorSubjectCreditLine, errorCodeGet, err)
	}
	return mapCreditConfig(line)
}

func (store *Store) PutConfig(ctx context.Context, hash creditline.CreditHash, borrower creditline.BorrowerID, config creditline.CreditConfig) error {
	line := CreditLine{
		CreditHash:        hash.String(),
		BorrowerID:        borrower.String(),
		CreditLimit:       config.CreditLimit.Int64(),
		NumPeriods:        config.NumPeriods,
		YieldBps:          config.YieldBps,
		CommittedAmount:   config.CommittedAmount.Int64(),
		DesignatedStartAt: timePointer(config.DesignatedStartUnixUTC),
		PeriodDuration:    config.PeriodDuration.String(),
		AutoApprove:       config.AutoApproveReceivables,
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "credit_hash"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"credit_limit", "num_periods", "yield_bps", "committed_amount",
				"designated_start_at", "period_duration", "auto_approve", "updated_at",
			}),
		}).
		Create(&line).Error
	if err != nil {
		return wrapStoreError(errorSubjectCreditLine, errorCodeUpsert, err)
	}
	return nil
}

func (store *Store) GetRecord(ctx context.Context, hash creditline.CreditHash) (creditline.CreditRecord, creditline.DueDetail, error) {
	var bill CreditBill
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("credit_hash = ?", hash.String()).
		Take(&bill).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return creditline.CreditRecord{}, creditline.DueDetail{}, wrapStoreError(errorSubjectBill, errorCodeNotFound, creditline.ErrCreditNotFound)
		}
		return creditline.CreditRecord{}, creditline.DueDetail{}, wrapStoreError(errorSubjectBill, errorCodeGet, err)
	}
	return mapCreditBill(bill)
}

func (store *Store) PutRecord(ctx context.Context, hash creditline.CreditHash, record creditline.CreditRecord, detail creditline.DueDetail) error {
	bill := CreditBill{
		CreditHash:        hash.String(),
		UnbilledPrincipal: record.UnbilledPrincipal.Int64(),
		NextDueAt:         timePointer(record.NextDueDateUnixUTC),
		NextDue:           record.NextDue.Int64(),
		YieldDue:          record.YieldDue.Int64(),
		TotalPastDue:      record.TotalPastDue.Int64(),
		MissedPeriods:     record.MissedPeriods,
		RemainingPeriods:  record.RemainingPeriods,
		State:             record.State.String(),
		AccruedYield:      detail.AccruedYield.Int64(),
		CommittedYield:    detail.CommittedYield.Int64(),
		PaidThisPeriod:    detail.PaidThisPeriod.Int64(),
		YieldPastDue:      detail.YieldPastDue.Int64(),
		PrincipalPastDue:  detail.PrincipalPastDue.Int64(),
		LateFee:           detail.LateFee.Int64(),
		LateFeeUpdatedAt:  timePointer(detail.LateFeeUpdatedDateUnixUTC),
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "credit_hash"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"unbilled_principal", "next_due_at", "next_due", "yield_due",
				"total_past_due", "missed_periods", "remaining_periods", "state",
				"accrued_yield", "committed_yield", "paid_this_period",
				"yield_past_due", "principal_past_due", "late_fee",
				"late_fee_updated_at", "updated_at",
			}),
		}).
		Create(&bill).Error
	if err != nil {
		return wrapStoreError(errorSubjectBill, errorCodeUpsert, err)
	}
	return nil
}

func (store *Store) AvailableCredit(ctx context.Context, hash creditline.CreditHash) (creditline.Amount, error) {
	var line CreditLine
	err := store.db.WithContext(ctx).
		Select("available_credit").
		Where("credit_hash = ?", hash.String()).
		Take(&line).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, wrapStoreError(errorSubjectCreditLine, errorCodeNotFound, creditline.ErrCreditNotFound)
		}
		return 0, wrapStoreError(errorSubjectCreditLine, errorCodeLookup, err)
	}
	available, err := creditline.NewBalance(line.AvailableCredit)
	if err != nil {
		return 0, wrapStoreError(errorSubjectCreditLine, errorCodeInvalid, err)
	}
	return available, nil
}

func (store *Store) SetAvailableCredit(ctx context.Context, hash creditline.CreditHash, available creditline.Amount) error {
	result := store.db.WithContext(ctx).
		Model(&CreditLine{}).
		Where("credit_hash = ?", hash.String()).
		Update("available_credit", available.Int64())
	if result.Error != nil {
		return wrapStoreError(errorSubjectCreditLine, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectCreditLine, errorCodeNotFound, creditline.ErrCreditNotFound)
	}
	return nil
}

func (store *Store) ApprovedReceivableAmount(ctx context.Context, hash creditline.CreditHash, receivableID creditline.ReceivableID) (creditline.Amount, bool, error) {
	var approved ApprovedReceivable
	err := store.db.WithContext(ctx).
		Where("credit_hash = ? AND receivable_id = ?", hash.String(), receivableID.String()).
		Take(&approved).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, false, nil
		}
		return 0, false, wrapStoreError(errorSubjectReceivable, errorCodeGet, err)
	}
	amount, err := creditline.NewAmount(approved.FaceAmount)
	if err != nil {
		return 0, false, wrapStoreError(errorSubjectReceivable, errorCodeInvalid, err)
	}
	return amount, true, nil
}

func (store *Store) PutApprovedReceivable(ctx context.Context, hash creditline.CreditHash, receivableID creditline.ReceivableID, faceAmount creditline.Amount) error {
	approved := ApprovedReceivable{
		CreditHash:   hash.String(),
		ReceivableID: receivableID.String(),
		FaceAmount:   faceAmount.Int64(),
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "credit_hash"}, {Name: "receivable_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"face_amount", "updated_at"}),
		}).
		Create(&approved).Error
	if err != nil {
		return wrapStoreError(errorSubjectReceivable, errorCodeUpsert, err)
	}
	return nil
}

func wrapStoreError(subject string, code string, err error) error {
	return creditline.WrapError(errorOperationStore, subject, code, err)
}

func mapCreditConfig(line CreditLine) (creditline.CreditConfig, error) {
	creditLimit, err := creditline.NewAmount(line.CreditLimit)
	if err != nil {
		return creditline.CreditConfig{}, wrapStoreError(errorSubjectCreditLine, errorCodeInvalid, err)
	}
	committed, err := creditline.NewBalance(line.CommittedAmount)
	if err != nil {
		return creditline.CreditConfig{}, wrapStoreError(errorSubjectCreditLine, errorCodeInvalid, err)
	}
	duration, err := creditline.ParsePeriodDuration(line.PeriodDuration)
	if err != nil {
		return creditline.CreditConfig{}, wrapStoreError(errorSubjectCreditLine, errorCodeInvalid, err)
	}
	config, err := creditline.NewCreditConfig(creditLimit, line.NumPeriods, line.YieldBps, committed, unixOrZero(line.DesignatedStartAt), duration, line.AutoApprove)
	if err != nil {
		return creditline.CreditConfig{}, wrapStoreError(errorSubjectCreditLine, errorCodeInvalid, err)
	}
	return config, nil
}

func mapCreditBill(bill CreditBill) (creditline.CreditRecord, creditline.DueDetail, error) {
	state, err := creditline.ParseCreditState(bill.State)
	if err != nil {
		return creditline.CreditRecord{}, creditline.DueDetail{}, wrapStoreError(errorSubjectBill, errorCodeInvalid, err)
	}
	record := creditline.CreditRecord{
		UnbilledPrincipal:  creditline.Amount(bill.UnbilledPrincipal),
		NextDueDateUnixUTC: unixOrZero(bill.NextDueAt),
		NextDue:            creditline.Amount(bill.NextDue),
		YieldDue:           creditline.Amount(bill.YieldDue),
		TotalPastDue:       creditline.Amount(bill.TotalPastDue),
		MissedPeriods:      bill.MissedPeriods,
		RemainingPeriods:   bill.RemainingPeriods,
		State:              state,
	}
	detail := creditline.DueDetail{
		AccruedYield:              creditline.Amount(bill.AccruedYield),
		CommittedYield:            creditline.Amount(bill.CommittedYield),
		PaidThisPeriod:            creditline.Amount(bill.PaidThisPeriod),
		YieldPastDue:              creditline.Amount(bill.YieldPastDue),
		PrincipalPastDue:          creditline.Amount(bill.PrincipalPastDue),
		LateFee:                   creditline.Amount(bill.LateFee),
		LateFeeUpdatedDateUnixUTC: unixOrZero(bill.LateFeeUpdatedAt),
	}
	return record, detail, nil
}

func timePointer(unixUTC int64) *time.Time {
	if unixUTC == 0 {
		return nil
	}
	value := time.Unix(unixUTC, 0).UTC()
	return &value
}

func unixOrZero(value *time.Time) int64 {
	if value == nil {
		return 0
	}
	return value.Unix()
}
