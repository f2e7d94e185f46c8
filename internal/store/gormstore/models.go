package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CreditLine holds a borrower's approved terms and available credit.
type CreditLine struct {
	CreditHash        string     `gorm:"primaryKey"`
	BorrowerID        string     `gorm:"not null;index:idx_credit_lines_borrower,unique"`
	CreditLimit       int64      `gorm:"not null"`
	NumPeriods        int        `gorm:"not null"`
	YieldBps          int64      `gorm:"not null"`
	CommittedAmount   int64      `gorm:"not null"`
	DesignatedStartAt *time.Time `gorm:""`
	PeriodDuration    string     `gorm:"not null"`
	AutoApprove       bool       `gorm:"not null"`
	AvailableCredit   int64      `gorm:"not null"`
	CreatedAt         time.Time  `gorm:"not null"`
	UpdatedAt         time.Time  `gorm:"not null"`
}

func (CreditLine) TableName() string { return "credit_lines" }

// CreditBill mirrors the per-line billing state.
type CreditBill struct {
	CreditHash        string     `gorm:"primaryKey"`
	UnbilledPrincipal int64      `gorm:"not null"`
	NextDueAt         *time.Time `gorm:""`
	NextDue           int64      `gorm:"not null"`
	YieldDue          int64      `gorm:"not null"`
	TotalPastDue      int64      `gorm:"not null"`
	MissedPeriods     int        `gorm:"not null"`
	RemainingPeriods  int        `gorm:"not null"`
	State             string     `gorm:"not null"`
	AccruedYield      int64      `gorm:"not null"`
	CommittedYield    int64      `gorm:"not null"`
	PaidThisPeriod    int64      `gorm:"not null"`
	YieldPastDue      int64      `gorm:"not null"`
	PrincipalPastDue  int64      `gorm:"not null"`
	LateFee           int64      `gorm:"not null"`
	LateFeeUpdatedAt  *time.Time `gorm:""`
	UpdatedAt         time.Time  `gorm:"not null"`
}

func (CreditBill) TableName() string { return "credit_bills" }

// ApprovedReceivable records the face amount at which a receivable was
// approved for a credit line.
type ApprovedReceivable struct {
	CreditHash   string    `gorm:"primaryKey"`
	ReceivableID string    `gorm:"primaryKey"`
	FaceAmount   int64     `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

func (ApprovedReceivable) TableName() string { return "approved_receivables" }

// Receivable mirrors the collateral registry table.
type Receivable struct {
	ReceivableID string    `gorm:"primaryKey"`
	OwnerID      string    `gorm:"not null;index:idx_receivables_owner"`
	HeldBy       string    `gorm:"not null"`
	FaceAmount   int64     `gorm:"not null"`
	MaturityAt   time.Time `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

func (Receivable) TableName() string { return "receivables" }

// Transfer is the treasury movement log.
type Transfer struct {
	TransferID string         `gorm:"type:uuid;primaryKey"`
	Direction  string         `gorm:"not null;index:idx_transfers_direction_created,priority:1"`
	Party      string         `gorm:"not null"`
	Amount     int64          `gorm:"not null"`
	Metadata   datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt  time.Time      `gorm:"not null;index:idx_transfers_direction_created,priority:2"`
}

func (Transfer) TableName() string { return "transfers" }

func (transfer *Transfer) BeforeCreate(tx *gorm.DB) error {
	if transfer.TransferID == "" {
		transfer.TransferID = uuid.NewString()
	}
	return nil
}
