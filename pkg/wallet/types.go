package wallet

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	digitsPattern = regexp.MustCompile(`^[0-9]+$`)
	emailPattern  = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// Document is a customer identity document number.
type Document struct {
	value string
}

// Phone is a fixed-length customer phone number.
type Phone struct {
	value string
}

// Email is a validated customer email address.
type Email struct {
	value string
}

// Name is a customer display name.
type Name struct {
	value string
}

// SessionID is the opaque identifier issued alongside a token code.
type SessionID struct {
	value string
}

// TokenCode is the six-digit numeric confirmation code.
type TokenCode struct {
	value string
}

// Amount is a non-negative fixed-precision money amount.
type Amount struct {
	value decimal.Decimal
}

// NewDocument validates and normalizes a document number.
func NewDocument(raw string) (Document, error) {
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) < documentMinLen || len(trimmed) > documentMaxLen {
		return Document{}, fmt.Errorf("%w: must be %d to %d characters", ErrInvalidDocument, documentMinLen, documentMaxLen)
	}
	return Document{value: trimmed}, nil
}

// String returns the normalized document number.
func (document Document) String() string {
	return document.value
}

// NewPhone validates and normalizes a phone number.
func NewPhone(raw string) (Phone, error) {
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) != phoneLen {
		return Phone{}, fmt.Errorf("%w: must be exactly %d digits", ErrInvalidPhone, phoneLen)
	}
	if !digitsPattern.MatchString(trimmed) {
		return Phone{}, fmt.Errorf("%w: must contain only digits", ErrInvalidPhone)
	}
	return Phone{value: trimmed}, nil
}

// String returns the normalized phone number.
func (phone Phone) String() string {
	return phone.value
}

// NewEmail validates and normalizes an email address.
func NewEmail(raw string) (Email, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || len(trimmed) > emailMaxLen || !emailPattern.MatchString(trimmed) {
		return Email{}, fmt.Errorf("%w: malformed address", ErrInvalidEmail)
	}
	return Email{value: trimmed}, nil
}

// String returns the normalized address.
func (email Email) String() string {
	return email.value
}

// NewName validates and normalizes a customer name.
func NewName(raw string) (Name, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || len(trimmed) > nameMaxLen {
		return Name{}, fmt.Errorf("%w: must be 1 to %d characters", ErrInvalidName, nameMaxLen)
	}
	return Name{value: trimmed}, nil
}

// String returns the normalized name.
func (name Name) String() string {
	return name.value
}

// NewSessionID validates and normalizes a session identifier.
func NewSessionID(raw string) (SessionID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return SessionID{}, fmt.Errorf("%w: empty value", ErrInvalidSessionID)
	}
	return SessionID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id SessionID) String() string {
	return id.value
}

// NewTokenCode validates a six-digit numeric code.
func NewTokenCode(raw string) (TokenCode, error) {
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) != tokenCodeLen || !digitsPattern.MatchString(trimmed) {
		return TokenCode{}, fmt.Errorf("%w: must be %d digits", ErrInvalidTokenCode, tokenCodeLen)
	}
	return TokenCode{value: trimmed}, nil
}

// String returns the code digits.
func (code TokenCode) String() string {
	return code.value
}

// NewAmount validates a non-negative decimal amount.
func NewAmount(raw decimal.Decimal) (Amount, error) {
	if raw.IsNegative() {
		return Amount{}, fmt.Errorf("%w: must not be negative", ErrInvalidAmount)
	}
	return Amount{value: raw}, nil
}

// AmountFromFloat builds an Amount from a float payload value.
func AmountFromFloat(raw float64) (Amount, error) {
	return NewAmount(decimal.NewFromFloat(raw))
}

// ParseAmount builds an Amount from its decimal string form.
func ParseAmount(raw string) (Amount, error) {
	parsed, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	return NewAmount(parsed)
}

// Decimal returns the underlying decimal value.
func (amount Amount) Decimal() decimal.Decimal {
	return amount.value
}

// Float64 returns the closest float representation for API payloads.
func (amount Amount) Float64() float64 {
	value, _ := amount.value.Float64()
	return value
}

// String returns the decimal string form.
func (amount Amount) String() string {
	return amount.value.String()
}

// Add returns the sum of two amounts.
func (amount Amount) Add(other Amount) Amount {
	return Amount{value: amount.value.Add(other.value)}
}

// Sub returns amount minus other, failing when the result would be negative.
func (amount Amount) Sub(other Amount) (Amount, error) {
	return NewAmount(amount.value.Sub(other.value))
}

// GreaterThan reports whether amount exceeds other.
func (amount Amount) GreaterThan(other Amount) bool {
	return amount.value.GreaterThan(other.value)
}

// IsZero reports whether the amount is exactly zero.
func (amount Amount) IsZero() bool {
	return amount.value.IsZero()
}

// Equal reports value equality regardless of exponent.
func (amount Amount) Equal(other Amount) bool {
	return amount.value.Equal(other.value)
}

// Customer is a registered account owner. Identity attributes are
// immutable after registration.
type Customer struct {
	CustomerID     string
	Document       Document
	Name           Name
	Email          Email
	Phone          Phone
	CreatedUnixUTC int64
}

// CreditLine tracks the spendable balance, pending debt, and cumulative
// consumption for exactly one customer.
type CreditLine struct {
	CreditLineID     string
	CustomerID       string
	Balance          Amount
	TotalDebt        Amount
	TotalConsumption Amount
	CreatedUnixUTC   int64
}

// CreditLineListing joins a credit line with its owner's identity.
type CreditLineListing struct {
	CreditLine CreditLine
	Document   Document
	Name       Name
	Email      Email
	Phone      Phone
}

// TokenState describes where a token sits in its one-way lifecycle.
type TokenState string

const (
	TokenStateIssued   TokenState = "issued"
	TokenStateConsumed TokenState = "consumed"
	TokenStateExpired  TokenState = "expired"
)

// Token is a single-use confirmation record. Value drops to zero
// exactly once, at successful redemption.
type Token struct {
	TokenID          string
	CreditLineID     string
	Code             TokenCode
	Value            Amount
	SessionID        SessionID
	ExpiresAtUnixUTC int64
	MetadataJSON     string
	CreatedUnixUTC   int64
}

// StateAt derives the lifecycle state at the given instant. A token
// past its timeout reads as expired no matter what its value holds.
func (token Token) StateAt(nowUnixUTC int64) TokenState {
	if token.ExpiresAtUnixUTC < nowUnixUTC {
		return TokenStateExpired
	}
	if token.Value.IsZero() {
		return TokenStateConsumed
	}
	return TokenStateIssued
}

// IssuedToken is returned to the caller after token issuance. The code
// also travels out-of-band via the notifier.
type IssuedToken struct {
	SessionID SessionID
	Code      TokenCode
}

// ListQuery filters and paginates customer or credit-line listings.
type ListQuery struct {
	Search   string
	Paginate bool
	Page     int
	PerPage  int
}

// Normalize applies listing defaults and rejects nonsense paging values.
func (query ListQuery) Normalize() (ListQuery, error) {
	if query.PerPage < 0 || query.Page < 0 {
		return ListQuery{}, fmt.Errorf("%w: negative paging values", ErrInvalidListQuery)
	}
	if query.PerPage == 0 {
		query.PerPage = defaultPerPage
	}
	if query.Page == 0 {
		query.Page = 1
	}
	query.Search = strings.TrimSpace(query.Search)
	return query, nil
}

// Store is the persistence contract used by Service. Lookups made
// inside WithTx must lock the rows they return where the backend
// supports it.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	CreateCustomer(ctx context.Context, customer Customer) (Customer, error)
	GetCustomer(ctx context.Context, customerID string) (Customer, error)
	ListCustomers(ctx context.Context, query ListQuery) ([]Customer, error)
	CreateCreditLine(ctx context.Context, line CreditLine) (CreditLine, error)
	GetCreditLine(ctx context.Context, creditLineID string) (CreditLine, error)
	FindCreditLineByContact(ctx context.Context, document Document, phone Phone) (CreditLine, error)
	SaveCreditLine(ctx context.Context, line CreditLine) error
	ListCreditLines(ctx context.Context, query ListQuery) ([]CreditLineListing, error)
	CreateToken(ctx context.Context, token Token) (Token, error)
	FindToken(ctx context.Context, sessionID SessionID, code TokenCode) (Token, error)
	ConsumeToken(ctx context.Context, tokenID string) error
}
