package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/wallet/pkg/wallet"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	constraintCustomerEmail      = "uniq_customers_email"
	constraintCreditLineCustomer = "uniq_credit_lines_customer"
	defaultMetadataJSON          = "{}"
	pgUniqueViolationCode        = "23505"
	sqliteConstraintCode         = 19
	dialectPostgres              = "postgres"
	errorOperationStore          = "store"
	errorSubjectCustomer         = "customer"
	errorSubjectCreditLine       = "credit_line"
	errorSubjectToken            = "token"
	errorCodeCreate              = "create"
	errorCodeDuplicate           = "duplicate"
	errorCodeGet                 = "get"
	errorCodeInvalid             = "invalid"
	errorCodeList                = "list"
	errorCodeConsume             = "consume"
	errorCodeSave                = "save"
)

// Store implements wallet.Store using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the schema on backends without managed migrations.
func (store *Store) Migrate() error {
	return store.db.AutoMigrate(&Customer{}, &CreditLine{}, &Token{})
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore wallet.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

func (store *Store) CreateCustomer(ctx context.Context, customer wallet.Customer) (wallet.Customer, error) {
	model := Customer{
		Document:  customer.Document.String(),
		Name:      customer.Name.String(),
		Email:     customer.Email.String(),
		Phone:     customer.Phone.String(),
		CreatedAt: time.Unix(customer.CreatedUnixUTC, 0).UTC(),
	}
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now().UTC()
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err, constraintCustomerEmail) {
		return wallet.Customer{}, wrapStoreError(errorSubjectCustomer, errorCodeDuplicate, wallet.ErrEmailTaken)
	}
	if err != nil {
		return wallet.Customer{}, wrapStoreError(errorSubjectCustomer, errorCodeCreate, err)
	}
	return mapCustomer(model)
}

func (store *Store) GetCustomer(ctx context.Context, customerID string) (wallet.Customer, error) {
	var model Customer
	err := store.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return wallet.Customer{}, wrapStoreError(errorSubjectCustomer, errorCodeGet, wallet.ErrCustomerNotFound)
	}
	if err != nil {
		return wallet.Customer{}, wrapStoreError(errorSubjectCustomer, errorCodeGet, err)
	}
	return mapCustomer(model)
}

func (store *Store) ListCustomers(ctx context.Context, query wallet.ListQuery) ([]wallet.Customer, error) {
	scope := store.db.WithContext(ctx).Model(&Customer{})
	scope = applySearch(scope, query.Search, "")
	scope = applyPaging(scope.Order("created_at DESC"), query)
	var rows []Customer
	if err := scope.Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectCustomer, errorCodeList, err)
	}
	customers := make([]wallet.Customer, 0, len(rows))
	for _, row := range rows {
		customer, err := mapCustomer(row)
		if err != nil {
			return nil, err
		}
		customers = append(customers, customer)
	}
	return customers, nil
}

func (store *Store) CreateCreditLine(ctx context.Context, line wallet.CreditLine) (wallet.CreditLine, error) {
	model := CreditLine{
		CustomerID:       line.CustomerID,
		Balance:          line.Balance.Decimal(),
		TotalDebt:        line.TotalDebt.Decimal(),
		TotalConsumption: line.TotalConsumption.Decimal(),
		CreatedAt:        time.Unix(line.CreatedUnixUTC, 0).UTC(),
	}
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now().UTC()
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err, constraintCreditLineCustomer) {
		return wallet.CreditLine{}, wrapStoreError(errorSubjectCreditLine, errorCodeDuplicate, wallet.ErrCreditLineExists)
	}
	if err != nil {
		return wallet.CreditLine{}, wrapStoreError(errorSubjectCreditLine, errorCodeCreate, err)
	}
	return mapCreditLine(model)
}

func (store *Store) GetCreditLine(ctx context.Context, creditLineID string) (wallet.CreditLine, error) {
	var model CreditLine
	err := store.db.WithContext(ctx).
		Clauses(store.rowLock()...).
		Where("credit_line_id = ?", creditLineID).
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return wallet.CreditLine{}, wrapStoreError(errorSubjectCreditLine, errorCodeGet, wallet.ErrCreditLineNotFound)
	}
	if err != nil {
		return wallet.CreditLine{}, wrapStoreError(errorSubjectCreditLine, errorCodeGet, err)
	}
	return mapCreditLine(model)
}

func (store *Store) FindCreditLineByContact(ctx context.Context, document wallet.Document, phone wallet.Phone) (wallet.CreditLine, error) {
	var model CreditLine
	err := store.db.WithContext(ctx).
		Clauses(store.rowLock()...).
		Model(&CreditLine{}).
		Select("credit_lines.*").
		Joins("JOIN customers ON customers.customer_id = credit_lines.customer_id").
		Where("customers.document = ? AND customers.phone = ?", document.String(), phone.String()).
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return wallet.CreditLine{}, wrapStoreError(errorSubjectCreditLine, errorCodeGet, wallet.ErrCreditLineNotFound)
	}
	if err != nil {
		return wallet.CreditLine{}, wrapStoreError(errorSubjectCreditLine, errorCodeGet, err)
	}
	return mapCreditLine(model)
}

func (store *Store) SaveCreditLine(ctx context.Context, line wallet.CreditLine) error {
	result := store.db.WithContext(ctx).
		Model(&CreditLine{}).
		Where("credit_line_id = ?", line.CreditLineID).
		Updates(map[string]interface{}{
			"balance":           line.Balance.Decimal(),
			"total_debt":        line.TotalDebt.Decimal(),
			"total_consumption": line.TotalConsumption.Decimal(),
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectCreditLine, errorCodeSave, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectCreditLine, errorCodeSave, wallet.ErrCreditLineNotFound)
	}
	return nil
}

func (store *Store) ListCreditLines(ctx context.Context, query wallet.ListQuery) ([]wallet.CreditLineListing, error) {
	scope := store.db.WithContext(ctx).
		Model(&CreditLine{}).
		Select("credit_lines.*, customers.document, customers.name, customers.email, customers.phone").
		Joins("JOIN customers ON customers.customer_id = credit_lines.customer_id")
	scope = applySearch(scope, query.Search, "customers.")
	scope = applyPaging(scope.Order("credit_lines.created_at DESC"), query)
	var rows []creditLineRow
	if err := scope.Scan(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectCreditLine, errorCodeList, err)
	}
	listings := make([]wallet.CreditLineListing, 0, len(rows))
	for _, row := range rows {
		listing, err := mapCreditLineListing(row)
		if err != nil {
			return nil, err
		}
		listings = append(listings, listing)
	}
	return listings, nil
}

func (store *Store) CreateToken(ctx context.Context, token wallet.Token) (wallet.Token, error) {
	model := Token{
		CreditLineID: token.CreditLineID,
		Code:         token.Code.String(),
		Value:        token.Value.Decimal(),
		UUID:         token.SessionID.String(),
		TimeoutToken: time.Unix(token.ExpiresAtUnixUTC, 0).UTC(),
		Metadata:     metadataJSON(token.MetadataJSON),
		CreatedAt:    time.Unix(token.CreatedUnixUTC, 0).UTC(),
	}
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now().UTC()
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return wallet.Token{}, wrapStoreError(errorSubjectToken, errorCodeCreate, err)
	}
	return mapToken(model)
}

func (store *Store) FindToken(ctx context.Context, sessionID wallet.SessionID, code wallet.TokenCode) (wallet.Token, error) {
	var model Token
	err := store.db.WithContext(ctx).
		Clauses(store.rowLock()...).
		Where("uuid = ? AND token = ?", sessionID.String(), code.String()).
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return wallet.Token{}, wrapStoreError(errorSubjectToken, errorCodeGet, wallet.ErrTokenInvalid)
	}
	if err != nil {
		return wallet.Token{}, wrapStoreError(errorSubjectToken, errorCodeGet, err)
	}
	return mapToken(model)
}

// ConsumeToken zeroes the token value with a compare-and-set so a
// replayed redemption observes zero rows affected.
func (store *Store) ConsumeToken(ctx context.Context, tokenID string) error {
	result := store.db.WithContext(ctx).
		Model(&Token{}).
		Where("token_id = ? AND value > 0", tokenID).
		Update("value", decimal.Zero)
	if result.Error != nil {
		return wrapStoreError(errorSubjectToken, errorCodeConsume, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectToken, errorCodeConsume, wallet.ErrTokenConsumed)
	}
	return nil
}

// rowLock emits SELECT ... FOR UPDATE where the backend supports it.
// SQLite serializes writers on its own.
func (store *Store) rowLock() []clause.Expression {
	if store.db.Dialector.Name() == dialectPostgres {
		return []clause.Expression{clause.Locking{Strength: "UPDATE"}}
	}
	return nil
}

func applySearch(scope *gorm.DB, search string, columnPrefix string) *gorm.DB {
	if search == "" {
		return scope
	}
	like := "%" + search + "%"
	return scope.Where(
		columnPrefix+"document LIKE ? OR "+columnPrefix+"name LIKE ? OR "+columnPrefix+"email LIKE ? OR "+columnPrefix+"phone LIKE ?",
		like, like, like, like,
	)
}

func applyPaging(scope *gorm.DB, query wallet.ListQuery) *gorm.DB {
	if !query.Paginate {
		return scope
	}
	return scope.Offset((query.Page - 1) * query.PerPage).Limit(query.PerPage)
}

func wrapStoreError(subject string, code string, err error) error {
	return wallet.WrapError(errorOperationStore, subject, code, err)
}

type creditLineRow struct {
	CreditLineID     string
	CustomerID       string
	Balance          decimal.Decimal
	TotalDebt        decimal.Decimal
	TotalConsumption decimal.Decimal
	CreatedAt        time.Time
	Document         string
	Name             string
	Email            string
	Phone            string
}

func mapCustomer(model Customer) (wallet.Customer, error) {
	document, err := wallet.NewDocument(model.Document)
	if err != nil {
		return wallet.Customer{}, wrapStoreError(errorSubjectCustomer, errorCodeInvalid, err)
	}
	name, err := wallet.NewName(model.Name)
	if err != nil {
		return wallet.Customer{}, wrapStoreError(errorSubjectCustomer, errorCodeInvalid, err)
	}
	email, err := wallet.NewEmail(model.Email)
	if err != nil {
		return wallet.Customer{}, wrapStoreError(errorSubjectCustomer, errorCodeInvalid, err)
	}
	phone, err := wallet.NewPhone(model.Phone)
	if err != nil {
		return wallet.Customer{}, wrapStoreError(errorSubjectCustomer, errorCodeInvalid, err)
	}
	return wallet.Customer{
		CustomerID:     model.CustomerID,
		Document:       document,
		Name:           name,
		Email:          email,
		Phone:          phone,
		CreatedUnixUTC: model.CreatedAt.Unix(),
	}, nil
}

func mapCreditLine(model CreditLine) (wallet.CreditLine, error) {
	balance, err := wallet.NewAmount(model.Balance)
	if err != nil {
		return wallet.CreditLine{}, wrapStoreError(errorSubjectCreditLine, errorCodeInvalid, err)
	}
	totalDebt, err := wallet.NewAmount(model.TotalDebt)
	if err != nil {
		return wallet.CreditLine{}, wrapStoreError(errorSubjectCreditLine, errorCodeInvalid, err)
	}
	totalConsumption, err := wallet.NewAmount(model.TotalConsumption)
	if err != nil {
		return wallet.CreditLine{}, wrapStoreError(errorSubjectCreditLine, errorCodeInvalid, err)
	}
	return wallet.CreditLine{
		CreditLineID:     model.CreditLineID,
		CustomerID:       model.CustomerID,
		Balance:          balance,
		TotalDebt:        totalDebt,
		TotalConsumption: totalConsumption,
		CreatedUnixUTC:   model.CreatedAt.Unix(),
	}, nil
}

func mapCreditLineListing(row creditLineRow) (wallet.CreditLineListing, error) {
	line, err := mapCreditLine(CreditLine{
		CreditLineID:     row.CreditLineID,
		CustomerID:       row.CustomerID,
		Balance:          row.Balance,
		TotalDebt:        row.TotalDebt,
		TotalConsumption: row.TotalConsumption,
		CreatedAt:        row.CreatedAt,
	})
	if err != nil {
		return wallet.CreditLineListing{}, err
	}
	document, err := wallet.NewDocument(row.Document)
	if err != nil {
		return wallet.CreditLineListing{}, wrapStoreError(errorSubjectCreditLine, errorCodeInvalid, err)
	}
	name, err := wallet.NewName(row.Name)
	if err != nil {
		return wallet.CreditLineListing{}, wrapStoreError(errorSubjectCreditLine, errorCodeInvalid, err)
	}
	email, err := wallet.NewEmail(row.Email)
	if err != nil {
		return wallet.CreditLineListing{}, wrapStoreError(errorSubjectCreditLine, errorCodeInvalid, err)
	}
	phone, err := wallet.NewPhone(row.Phone)
	if err != nil {
		return wallet.CreditLineListing{}, wrapStoreError(errorSubjectCreditLine, errorCodeInvalid, err)
	}
	return wallet.CreditLineListing{
		CreditLine: line,
		Document:   document,
		Name:       name,
		Email:      email,
		Phone:      phone,
	}, nil
}

func mapToken(model Token) (wallet.Token, error) {
	code, err := wallet.NewTokenCode(model.Code)
	if err != nil {
		return wallet.Token{}, wrapStoreError(errorSubjectToken, errorCodeInvalid, err)
	}
	value, err := wallet.NewAmount(model.Value)
	if err != nil {
		return wallet.Token{}, wrapStoreError(errorSubjectToken, errorCodeInvalid, err)
	}
	sessionID, err := wallet.NewSessionID(model.UUID)
	if err != nil {
		return wallet.Token{}, wrapStoreError(errorSubjectToken, errorCodeInvalid, err)
	}
	return wallet.Token{
		TokenID:          model.TokenID,
		CreditLineID:     model.CreditLineID,
		Code:             code,
		Value:            value,
		SessionID:        sessionID,
		ExpiresAtUnixUTC: model.TimeoutToken.Unix(),
		MetadataJSON:     string(model.Metadata),
		CreatedUnixUTC:   model.CreatedAt.Unix(),
	}, nil
}

func metadataJSON(raw string) datatypes.JSON {
	if raw == "" {
		return datatypes.JSON([]byte(defaultMetadataJSON))
	}
	return datatypes.JSON([]byte(raw))
}

func isUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraintName
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
