package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/creditline/pkg/creditline"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	errorSubjectRegistry  = "registry"
	errorCodeRegister     = "register"
	errorCodeDuplicate    = "duplicate"
	errorCodePledge       = "pledge"
	pgUniqueViolationCode = "23505"
	sqliteConstraintCode  = 19
)

// Registry implements creditline.CollateralRegistry over the receivables
// table. Registration is create-once: face amount and ownership of a
// registered receivable never change through this interface.
type Registry struct {
	db *gorm.DB
}

// NewRegistry returns a Registry backed by gorm.DB.
func NewRegistry(db *gorm.DB) *Registry {
	return &Registry{db: db}
}

// RegisterReceivable records a new receivable owned by a borrower.
func (registry *Registry) RegisterReceivable(ctx context.Context, receivableID creditline.ReceivableID, owner creditline.BorrowerID, faceAmount creditline.Amount, maturityUnixUTC int64) error {
	receivable := Receivable{
		ReceivableID: receivableID.String(),
		OwnerID:      owner.String(),
		HeldBy:       owner.String(),
		FaceAmount:   faceAmount.Int64(),
		MaturityAt:   time.Unix(maturityUnixUTC, 0).UTC(),
	}
	err := registry.db.WithContext(ctx).Create(&receivable).Error
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectRegistry, errorCodeDuplicate, creditline.ErrReceivableAlreadyRegistered)
	}
	if err != nil {
		return wrapStoreError(errorSubjectRegistry, errorCodeRegister, err)
	}
	return nil
}

// Pledge moves custody of a receivable to the given holder.
func (registry *Registry) Pledge(ctx context.Context, receivableID creditline.ReceivableID, holder creditline.Actor) error {
	result := registry.db.WithContext(ctx).
		Model(&Receivable{}).
		Where("receivable_id = ?", receivableID.String()).
		Update("held_by", holder.String())
	if result.Error != nil {
		return wrapStoreError(errorSubjectRegistry, errorCodePledge, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectRegistry, errorCodeNotFound, creditline.ErrReceivableNotFound)
	}
	return nil
}

func (registry *Registry) AmountOf(ctx context.Context, receivableID creditline.ReceivableID) (creditline.Amount, error) {
	receivable, err := registry.get(ctx, receivableID)
	if err != nil {
		return 0, err
	}
	amount, err := creditline.NewAmount(receivable.FaceAmount)
	if err != nil {
		return 0, wrapStoreError(errorSubjectRegistry, errorCodeInvalid, err)
	}
	return amount, nil
}

func (registry *Registry) MaturityOf(ctx context.Context, receivableID creditline.ReceivableID) (int64, error) {
	receivable, err := registry.get(ctx, receivableID)
	if err != nil {
		return 0, err
	}
	return receivable.MaturityAt.Unix(), nil
}

func (registry *Registry) OwnerOf(ctx context.Context, receivableID creditline.ReceivableID) (creditline.BorrowerID, error) {
	receivable, err := registry.get(ctx, receivableID)
	if err != nil {
		return creditline.BorrowerID{}, err
	}
	owner, err := creditline.NewBorrowerID(receivable.OwnerID)
	if err != nil {
		return creditline.BorrowerID{}, wrapStoreError(errorSubjectRegistry, errorCodeInvalid, err)
	}
	return owner, nil
}

func (registry *Registry) IsHeldBy(ctx context.Context, receivableID creditline.ReceivableID, holder creditline.Actor) (bool, error) {
	receivable, err := registry.get(ctx, receivableID)
	if err != nil {
		if errors.Is(err, creditline.ErrReceivableNotFound) {
			return false, nil
		}
		return false, err
	}
	return receivable.HeldBy == holder.String(), nil
}

func (registry *Registry) get(ctx context.Context, receivableID creditline.ReceivableID) (Receivable, error) {
	var receivable Receivable
	err := registry.db.WithContext(ctx).
		Where("receivable_id = ?", receivableID.String()).
		Take(&receivable).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Receivable{}, wrapStoreError(errorSubjectRegistry, errorCodeNotFound, creditline.ErrReceivableNotFound)
		}
		return Receivable{}, wrapStoreError(errorSubjectRegistry, errorCodeGet, err)
	}
	return receivable, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
