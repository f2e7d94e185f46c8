package pgstore

import (
	"context"
	"errors"

	"github.com/MarkoPoloResearchLab/creditline/pkg/creditline"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	errorOperationStore     = "store"
	errorSubjectCreditLine  = "credit_line"
	errorSubjectBill        = "bill"
	errorSubjectReceivable  = "receivable"
	errorSubjectTransaction = "transaction"
	errorCodeBegin          = "begin"
	errorCodeCommit         = "commit"
	errorCodeGet            = "get"
	errorCodeUpsert         = "upsert"
	errorCodeUpdate         = "update"
	errorCodeInvalid        = "invalid"
	errorCodeNotFound       = "not_found"

	sqlSelectConfig = `
		select
			borrower_id,
			credit_limit,
			num_periods,
			yield_bps,
			committed_amount,
			coalesce(extract(epoch from designated_start_at)::bigint, 0),
			period_duration,
			auto_approve
		from credit_lines
		where credit_hash = $1
	`

	sqlUpsertConfig = `
		insert into credit_lines(
			credit_hash, borrower_id, credit_limit, num_periods, yield_bps,
			committed_amount, designated_start_at, period_duration, auto_approve,
			available_credit, created_at, updated_at
		)
		values($1, $2, $3, $4, $5, $6, to_timestamp(nullif($7, 0)), $8, $9, 0, now(), now())
		on conflict (credit_hash) do update set
			credit_limit = excluded.credit_limit,
			num_periods = excluded.num_periods,
			yield_bps = excluded.yield_bps,
			committed_amount = excluded.committed_amount,
			designated_start_at = excluded.designated_start_at,
			period_duration = excluded.period_duration,
			auto_approve = excluded.auto_approve,
			updated_at = now()
	`

	sqlSelectBill = `
		select
			unbilled_principal,
			coalesce(extract(epoch from next_due_at)::bigint, 0),
			next_due,
			yield_due,
			total_past_due,
			missed_periods,
			remaining_periods,
			state,
			accrued_yield,
			committed_yield,
			paid_this_period,
			yield_past_due,
			principal_past_due,
			late_fee,
			coalesce(extract(epoch from late_fee_updated_at)::bigint, 0)
		from credit_bills
		where credit_hash = $1
		for update
	`

	sqlUpsertBill = `
		insert into credit_bills(
			credit_hash, unbilled_principal, next_due_at, next_due, yield_due,
			total_past_due, missed_periods, remaining_periods, state,
			accrued_yield, committed_yield, paid_this_period,
			yield_past_due, principal_past_due, late_fee, late_fee_updated_at,
			updated_at
		)
		values(
			$1, $2, to_timestamp(nullif($3, 0)), $4, $5, $6, $7, $8, $9,
			$10, $11, $12, $13, $14, $15, to_timestamp(nullif($16, 0)), now()
		)
		on conflict (credit_hash) do update set
			unbilled_principal = excluded.unbilled_principal,
			next_due_at = excluded.next_due_at,
			next_due = excluded.next_due,
			yield_due = excluded.yield_due,
			total_past_due = excluded.total_past_due,
			missed_periods = excluded.missed_periods,
			remaining_periods = excluded.remaining_periods,
			state = excluded.state,
			accrued_yield = excluded.accrued_yield,
			committed_yield = excluded.committed_yield,
			paid_this_period = excluded.paid_this_period,
			yield_past_due = excluded.yield_past_due,
			principal_past_due = excluded.principal_past_due,
			late_fee = excluded.late_fee,
			late_fee_updated_at = excluded.late_fee_updated_at,
			updated_at = now()
	`

	sqlSelectAvailableCredit = `
		select available_credit from credit_lines where credit_hash = $1
	`

	sqlUpdateAvailableCredit = `
		update credit_lines set available_credit = $2, updated_at = now()
		where credit_hash = $1
	`

	sqlSelectApprovedReceivable = `
		select face_amount from approved_receivables
		where credit_hash = $1 and receivable_id = $2
	`

	sqlUpsertApprovedReceivable = `
		insert into approved_receivables(credit_hash, receivable_id, face_amount, created_at, updated_at)
		values($1, $2, $3, now(), now())
		on conflict (credit_hash, receivable_id) do update set
			face_amount = excluded.face_amount,
			updated_at = now()
	`
)

// querier is satisfied by both a pgx pool and an open transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Store implements creditline.Store using a pgx connection pool (autocommit).
type Store struct {
	pool *pgxpool.Pool
}

// TxStore implements creditline.Store for an active transaction.
type TxStore struct {
	tx pgx.Tx
}

// New returns a Store backed by a pgx pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore creditline.Store) error) error {
	tx, err := store.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeBegin, err)
	}
	transactionStore := &TxStore{tx: tx}
	if err := fn(ctx, transactionStore); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeCommit, err)
	}
	return nil
}

func (store *Store) GetConfig(ctx context.Context, hash creditline.CreditHash) (creditline.CreditConfig, error) {
	return getConfig(ctx, store.pool, hash)
}

func (store *Store) PutConfig(ctx context.Context, hash creditline.CreditHash, borrower creditline.BorrowerID, config creditline.CreditConfig) error {
	return putConfig(ctx, store.pool, hash, borrower, config)
}

func (store *Store) GetRecord(ctx context.Context, hash creditline.CreditHash) (creditline.CreditRecord, creditline.DueDetail, error) {
	return getRecord(ctx, store.pool, hash)
}

func (store *Store) PutRecord(ctx context.Context, hash creditline.CreditHash, record creditline.CreditRecord, detail creditline.DueDetail) error {
	return putRecord(ctx, store.pool, hash, record, detail)
}

func (store *Store) AvailableCredit(ctx context.Context, hash creditline.CreditHash) (creditline.Amount, error) {
	return availableCredit(ctx, store.pool, hash)
}

func (store *Store) SetAvailableCredit(ctx context.Context, hash creditline.CreditHash, available creditline.Amount) error {
	return setAvailableCredit(ctx, store.pool, hash, available)
}

func (store *Store) ApprovedReceivableAmount(ctx context.Context, hash creditline.CreditHash, receivableID creditline.ReceivableID) (creditline.Amount, bool, error) {
	return approvedReceivableAmount(ctx, store.pool, hash, receivableID)
}

func (store *Store) PutApprovedReceivable(ctx context.Context, hash creditline.CreditHash, receivableID creditline.ReceivableID, faceAmount creditline.Amount) error {
	return putApprovedReceivable(ctx, store.pool, hash, receivableID, faceAmount)
}

func (store *TxStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore creditline.Store) error) error {
	return fn(ctx, store)
}

func (store *TxStore) GetConfig(ctx context.Context, hash creditline.CreditHash) (creditline.CreditConfig, error) {
	return getConfig(ctx, store.tx, hash)
}

func (store *TxStore) PutConfig(ctx context.Context, hash creditline.CreditHash, borrower creditline.BorrowerID, config creditline.CreditConfig) error {
	return putConfig(ctx, store.tx, hash, borrower, config)
}

func (store *TxStore) GetRecord(ctx context.Context, hash creditline.CreditHash) (creditline.CreditRecord, creditline.DueDetail, error) {
	return getRecord(ctx, store.tx, hash)
}

func (store *TxStore) PutRecord(ctx context.Context, hash creditline.CreditHash, record creditline.CreditRecord, detail creditline.DueDetail) error {
	return putRecord(ctx, store.tx, hash, record, detail)
}

func (store *TxStore) AvailableCredit(ctx context.Context, hash creditline.CreditHash) (creditline.Amount, error) {
	return availableCredit(ctx, store.tx, hash)
}

func (store *TxStore) SetAvailableCredit(ctx context.Context, hash creditline.CreditHash, available creditline.Amount) error {
	return setAvailableCredit(ctx, store.tx, hash, available)
}

func (store *TxStore) ApprovedReceivableAmount(ctx context.Context, hash creditline.CreditHash, receivableID creditline.ReceivableID) (creditline.Amount, bool, error) {
	return approvedReceivableAmount(ctx, store.tx, hash, receivableID)
}

func (store *TxStore) PutApprovedReceivable(ctx context.Context, hash creditline.CreditHash, receivableID creditline.ReceivableID, faceAmount creditline.Amount) error {
	return putApprovedReceivable(ctx, store.tx, hash, receivableID, faceAmount)
}

func getConfig(ctx context.Context, q querier, hash creditline.CreditHash) (creditline.CreditConfig, error) {
	var (
		borrowerValue        string
		creditLimitValue     int64
		numPeriodsValue      int
		yieldBpsValue        int64
		committedValue       int64
		designatedStartValue int64
		durationValue        string
		autoApproveValue     bool
	)
	err := q.QueryRow(ctx, sqlSelectConfig, hash.String()).Scan(
		&borrowerValue,
		&creditLimitValue,
		&numPeriodsValue,
		&yieldBpsValue,
		&committedValue,
		&designatedStartValue,
		&durationValue,
		&autoApproveValue,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return creditline.CreditConfig{}, wrapStoreError(errorSubjectCreditLine, errorCodeNotFound, creditline.ErrCreditNotFound)
		}
		return creditline.CreditConfig{}, wrapStoreError(errorSubjectCreditLine, errorCodeGet, err)
	}
	creditLimit, err := creditline.NewAmount(creditLimitValue)
	if err != nil {
		return creditline.CreditConfig{}, wrapStoreError(errorSubjectCreditLine, errorCodeInvalid, err)
	}
	committed, err := creditline.NewBalance(committedValue)
	if err != nil {
		return creditline.CreditConfig{}, wrapStoreError(errorSubjectCreditLine, errorCodeInvalid, err)
	}
	duration, err := creditline.ParsePeriodDuration(durationValue)
	if err != nil {
		return creditline.CreditConfig{}, wrapStoreError(errorSubjectCreditLine, errorCodeInvalid, err)
	}
	config, err := creditline.NewCreditConfig(creditLimit, numPeriodsValue, yieldBpsValue, committed, designatedStartValue, duration, autoApproveValue)
	if err != nil {
		return creditline.CreditConfig{}, wrapStoreError(errorSubjectCreditLine, errorCodeInvalid, err)
	}
	return config, nil
}

func putConfig(ctx context.Context, q querier, hash creditline.CreditHash, borrower creditline.BorrowerID, config creditline.CreditConfig) error {
	_, err := q.Exec(ctx, sqlUpsertConfig,
		hash.String(),
		borrower.String(),
		config.CreditLimit.Int64(),
		config.NumPeriods,
		config.YieldBps,
		config.CommittedAmount.Int64(),
		config.DesignatedStartUnixUTC,
		config.PeriodDuration.String(),
		config.AutoApproveReceivables,
	)
	if err != nil {
		return wrapStoreError(errorSubjectCreditLine, errorCodeUpsert, err)
	}
	return nil
}

func getRecord(ctx context.Context, q querier, hash creditline.CreditHash) (creditline.CreditRecord, creditline.DueDetail, error) {
	var (
		unbilledValue         int64
		nextDueAtValue        int64
		nextDueValue          int64
		yieldDueValue         int64
		totalPastDueValue     int64
		missedPeriodsValue    int
		remainingPeriodsValue int
		stateValue            string
		accruedYieldValue     int64
		committedYieldValue   int64
		paidThisPeriodValue   int64
		yieldPastDueValue     int64
		principalPastDueValue int64
		lateFeeValue          int64
		lateFeeUpdatedValue   int64
	)
	err := q.QueryRow(ctx, sqlSelectBill, hash.String()).Scan(
		&unbilledValue,
		&nextDueAtValue,
		&nextDueValue,
		&yieldDueValue,
		&totalPastDueValue,
		&missedPeriodsValue,
		&remainingPeriodsValue,
		&stateValue,
		&accruedYieldValue,
		&committedYieldValue,
		&paidThisPeriodValue,
		&yieldPastDueValue,
		&principalPastDueValue,
		&lateFeeValue,
		&lateFeeUpdatedValue,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return creditline.CreditRecord{}, creditline.DueDetail{}, wrapStoreError(errorSubjectBill, errorCodeNotFound, creditline.ErrCreditNotFound)
		}
		return creditline.CreditRecord{}, creditline.DueDetail{}, wrapStoreError(errorSubjectBill, errorCodeGet, err)
	}
	state, err := creditline.ParseCreditState(stateValue)
	if err != nil {
		return creditline.CreditRecord{}, creditline.DueDetail{}, wrapStoreError(errorSubjectBill, errorCodeInvalid, err)
	}
	record := creditline.CreditRecord{
		UnbilledPrincipal:  creditline.Amount(unbilledValue),
		NextDueDateUnixUTC: nextDueAtValue,
		NextDue:            creditline.Amount(nextDueValue),
		YieldDue:           creditline.Amount(yieldDueValue),
		TotalPastDue:       creditline.Amount(totalPastDueValue),
		MissedPeriods:      missedPeriodsValue,
		RemainingPeriods:   remainingPeriodsValue,
		State:              state,
	}
	detail := creditline.DueDetail{
		AccruedYield:              creditline.Amount(accruedYieldValue),
		CommittedYield:            creditline.Amount(committedYieldValue),
		PaidThisPeriod:            creditline.Amount(paidThisPeriodValue),
		YieldPastDue:              creditline.Amount(yieldPastDueValue),
		PrincipalPastDue:          creditline.Amount(principalPastDueValue),
		LateFee:                   creditline.Amount(lateFeeValue),
		LateFeeUpdatedDateUnixUTC: lateFeeUpdatedValue,
	}
	return record, detail, nil
}

func putRecord(ctx context.Context, q querier, hash creditline.CreditHash, record creditline.CreditRecord, detail creditline.DueDetail) error {
	_, err := q.Exec(ctx, sqlUpsertBill,
		hash.String(),
		record.UnbilledPrincipal.Int64(),
		record.NextDueDateUnixUTC,
		record.NextDue.Int64(),
		record.YieldDue.Int64(),
		record.TotalPastDue.Int64(),
		record.MissedPeriods,
		record.RemainingPeriods,
		record.State.String(),
		detail.AccruedYield.Int64(),
		detail.CommittedYield.Int64(),
		detail.PaidThisPeriod.Int64(),
		detail.YieldPastDue.Int64(),
		detail.PrincipalPastDue.Int64(),
		detail.LateFee.Int64(),
		detail.LateFeeUpdatedDateUnixUTC,
	)
	if err != nil {
		return wrapStoreError(errorSubjectBill, errorCodeUpsert, err)
	}
	return nil
}

func availableCredit(ctx context.Context, q querier, hash creditline.CreditHash) (creditline.Amount, error) {
	var availableValue int64
	err := q.QueryRow(ctx, sqlSelectAvailableCredit, hash.String()).Scan(&availableValue)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, wrapStoreError(errorSubjectCreditLine, errorCodeNotFound, creditline.ErrCreditNotFound)
		}
		return 0, wrapStoreError(errorSubjectCreditLine, errorCodeGet, err)
	}
	available, err := creditline.NewBalance(availableValue)
	if err != nil {
		return 0, wrapStoreError(errorSubjectCreditLine, errorCodeInvalid, err)
	}
	return available, nil
}

func setAvailableCredit(ctx context.Context, q querier, hash creditline.CreditHash, available creditline.Amount) error {
	tag, err := q.Exec(ctx, sqlUpdateAvailableCredit, hash.String(), available.Int64())
	if err != nil {
		return wrapStoreError(errorSubjectCreditLine, errorCodeUpdate, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectCreditLine, errorCodeNotFound, creditline.ErrCreditNotFound)
	}
	return nil
}

func approvedReceivableAmount(ctx context.Context, q querier, hash creditline.CreditHash, receivableID creditline.ReceivableID) (creditline.Amount, bool, error) {
	var faceValue int64
	err := q.QueryRow(ctx, sqlSelectApprovedReceivable, hash.String(), receivableID.String()).Scan(&faceValue)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, wrapStoreError(errorSubjectReceivable, errorCodeGet, err)
	}
	amount, err := creditline.NewAmount(faceValue)
	if err != nil {
		return 0, false, wrapStoreError(errorSubjectReceivable, errorCodeInvalid, err)
	}
	return amount, true, nil
}

func putApprovedReceivable(ctx context.Context, q querier, hash creditline.CreditHash, receivableID creditline.ReceivableID, faceAmount creditline.Amount) error {
	_, err := q.Exec(ctx, sqlUpsertApprovedReceivable, hash.String(), receivableID.String(), faceAmount.Int64())
	if err != nil {
		return wrapStoreError(errorSubjectReceivable, errorCodeUpsert, err)
	}
	return nil
}

func wrapStoreError(subject string, code string, err error) error {
	return creditline.WrapError(errorOperationStore, subject, code, err)
}
