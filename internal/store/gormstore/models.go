package gormstore

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Customer represents the customers table.
type Customer struct {
	CustomerID string    `gorm:"type:uuid;primaryKey"`
	Document   string    `gorm:"size:100;not null;index:idx_customers_document_phone,priority:1"`
	Name       string    `gorm:"size:255;not null"`
	Email      string    `gorm:"size:255;not null;uniqueIndex:uniq_customers_email"`
	Phone      string    `gorm:"size:10;not null;index:idx_customers_document_phone,priority:2"`
	CreatedAt  time.Time `gorm:"not null"`
}

func (Customer) TableName() string { return "customers" }

func (customer *Customer) BeforeCreate(tx *gorm.DB) error {
	if customer.CustomerID == "" {
		customer.CustomerID = uuid.NewString()
	}
	return nil
}

// CreditLine mirrors the credit_lines table. The unique index on
// customer_id is what enforces one line per customer.
type CreditLine struct {
	CreditLineID     string          `gorm:"type:uuid;primaryKey"`
	CustomerID       string          `gorm:"type:uuid;not null;uniqueIndex:uniq_credit_lines_customer"`
	Balance          decimal.Decimal `gorm:"type:numeric(20,3);not null"`
	TotalDebt        decimal.Decimal `gorm:"type:numeric(20,3);not null"`
	TotalConsumption decimal.Decimal `gorm:"type:numeric(20,3);not null"`
	CreatedAt        time.Time       `gorm:"not null"`
	UpdatedAt        time.Time       `gorm:"not null"`
}

func (CreditLine) TableName() string { return "credit_lines" }

func (line *CreditLine) BeforeCreate(tx *gorm.DB) error {
	if line.CreditLineID == "" {
		line.CreditLineID = uuid.NewString()
	}
	return nil
}

// Token mirrors the tokens table. Value dropping to zero marks the
// token as spent; the row itself is never deleted.
type Token struct {
	TokenID      string          `gorm:"type:uuid;primaryKey"`
	CreditLineID string          `gorm:"type:uuid;not null;index:idx_tokens_credit_line"`
	Code         string          `gorm:"column:token;size:6;not null;index:idx_tokens_token_uuid,priority:1"`
	Value        decimal.Decimal `gorm:"type:numeric(20,3);not null"`
	UUID         string          `gorm:"column:uuid;size:64;not null;uniqueIndex:uniq_tokens_uuid;index:idx_tokens_token_uuid,priority:2"`
	TimeoutToken time.Time       `gorm:"column:timeout_token;not null"`
	Metadata     datatypes.JSON  `gorm:"not null"`
	CreatedAt    time.Time       `gorm:"not null"`
}

func (Token) TableName() string { return "tokens" }

func (token *Token) BeforeCreate(tx *gorm.DB) error {
	if token.TokenID == "" {
		token.TokenID = uuid.NewString()
	}
	return nil
}
