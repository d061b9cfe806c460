package gormstore

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EnvelopeRecord represents the envelopes table.
type EnvelopeRecord struct {
	EnvelopeID     string          `gorm:"type:uuid;primaryKey"`
	UserID         string          `gorm:"not null;index:idx_envelopes_user"`
	Name           string          `gorm:"not null"`
	Icon           string          `gorm:""`
	Subtype        string          `gorm:"not null"`
	TargetAmount   decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Cadence        string          `gorm:"not null"`
	FrequencyWeeks int             `gorm:"not null;default:0"`
	DueDate        *time.Time      `gorm:""`
	DueDayOfMonth  int             `gorm:"not null;default:0"`
	Priority       string          `gorm:"not null"`
	CurrentBalance decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Notes          string          `gorm:""`
	Archived       bool            `gorm:"not null;default:false"`
	CreatedAt      time.Time       `gorm:"not null"`
	UpdatedAt      time.Time       `gorm:"not null"`
}

func (EnvelopeRecord) TableName() string { return "envelopes" }

func (record *EnvelopeRecord) BeforeCreate(tx *gorm.DB) error {
	if record.EnvelopeID == "" {
		record.EnvelopeID = uuid.NewString()
	}
	return nil
}

// IncomeSourceRecord mirrors the income_sources table. Position carries the
// list order, which doubles as funding order and primary/secondary meaning.
type IncomeSourceRecord struct {
	SourceID       string          `gorm:"type:uuid;primaryKey"`
	UserID         string          `gorm:"not null;index:idx_income_sources_user"`
	Name           string          `gorm:"not null"`
	Amount         decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Cadence        string          `gorm:"not null"`
	FrequencyWeeks int             `gorm:"not null;default:0"`
	NextDate       *time.Time      `gorm:""`
	Active         bool            `gorm:"not null;default:true"`
	Position       int             `gorm:"not null;default:0"`
	CreatedAt      time.Time       `gorm:"not null"`
	UpdatedAt      time.Time       `gorm:"not null"`
}

func (IncomeSourceRecord) TableName() string { return "income_sources" }

func (record *IncomeSourceRecord) BeforeCreate(tx *gorm.DB) error {
	if record.SourceID == "" {
		record.SourceID = uuid.NewString()
	}
	return nil
}

// AllocationRecord mirrors the envelope_income_allocations table: one row
// per (envelope, income source) pair.
type AllocationRecord struct {
	EnvelopeID       string          `gorm:"type:uuid;primaryKey"`
	IncomeSourceID   string          `gorm:"type:uuid;primaryKey"`
	UserID           string          `gorm:"not null;index:idx_allocations_user"`
	AllocationAmount decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	CreatedAt        time.Time       `gorm:"not null"`
	UpdatedAt        time.Time       `gorm:"not null"`
}

func (AllocationRecord) TableName() string { return "envelope_income_allocations" }

// DraftRecord mirrors the onboarding_drafts table; one draft per user.
type DraftRecord struct {
	UserID      string         `gorm:"primaryKey"`
	CurrentStep int            `gorm:"not null;default:0"`
	HighestStep int            `gorm:"not null;default:0"`
	Payload     datatypes.JSON `gorm:"not null"`
	CreatedAt   time.Time      `gorm:"not null"`
	UpdatedAt   time.Time      `gorm:"not null"`
}

func (DraftRecord) TableName() string { return "onboarding_drafts" }
