package gormstore

import (
	"context"

	"github.com/MarkoPoloResearchLab/creditline/pkg/creditline"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	errorSubjectTreasury = "treasury"
	errorCodeTransfer    = "transfer"
	directionIn          = "in"
	directionOut         = "out"
	emptyMetadataJSON    = "{}"
)

// Treasury implements creditline.Treasury as an append-only transfer log.
// Actual fund movement is settled out of band against this log.
type Treasury struct {
	db *gorm.DB
}

// NewTreasury returns a Treasury backed by gorm.DB.
func NewTreasury(db *gorm.DB) *Treasury {
	return &Treasury{db: db}
}

func (treasury *Treasury) TransferIn(ctx context.Context, from creditline.BorrowerID, amount creditline.Amount) error {
	return treasury.record(ctx, directionIn, from.String(), amount)
}

func (treasury *Treasury) TransferOut(ctx context.Context, to creditline.BorrowerID, amount creditline.Amount) error {
	return treasury.record(ctx, directionOut, to.String(), amount)
}

func (treasury *Treasury) record(ctx context.Context, direction string, party string, amount creditline.Amount) error {
	transfer := Transfer{
		Direction: direction,
		Party:     party,
		Amount:    amount.Int64(),
		Metadata:  datatypes.JSON([]byte(emptyMetadataJSON)),
	}
	if err := treasury.db.WithContext(ctx).Create(&transfer).Error; err != nil {
		return wrapStoreError(errorSubjectTreasury, errorCodeTransfer, err)
	}
	return nil
}
