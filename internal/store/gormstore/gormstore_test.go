package gormstore_test

import (
	"context"
	"errors"
	"testing"

	"github.com/MarkoPoloResearchLab/wallet/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/wallet/pkg/wallet"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestStore(test *testing.T) *gormstore.Store {
	test.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		test.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		test.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	store := gormstore.New(db)
	if err := store.Migrate(); err != nil {
		test.Fatalf("migrate: %v", err)
	}
	return store
}

func mustDocument(test *testing.T, raw string) wallet.Document {
	test.Helper()
	document, err := wallet.NewDocument(raw)
	if err != nil {
		test.Fatalf("document: %v", err)
	}
	return document
}

func mustPhone(test *testing.T, raw string) wallet.Phone {
	test.Helper()
	phone, err := wallet.NewPhone(raw)
	if err != nil {
		test.Fatalf("phone: %v", err)
	}
	return phone
}

func mustAmount(test *testing.T, raw string) wallet.Amount {
	test.Helper()
	amount, err := wallet.ParseAmount(raw)
	if err != nil {
		test.Fatalf("amount: %v", err)
	}
	return amount
}

func seedCustomer(test *testing.T, store *gormstore.Store, email string) wallet.Customer {
	test.Helper()
	name, err := wallet.NewName("Test Customer")
	if err != nil {
		test.Fatalf("name: %v", err)
	}
	address, err := wallet.NewEmail(email)
	if err != nil {
		test.Fatalf("email: %v", err)
	}
	customer, err := store.CreateCustomer(context.Background(), wallet.Customer{
		Document:       mustDocument(test, "1234567890"),
		Name:           name,
		Email:          address,
		Phone:          mustPhone(test, "3001234567"),
		CreatedUnixUTC: 1700000000,
	})
	if err != nil {
		test.Fatalf("create customer: %v", err)
	}
	return customer
}

func TestCreateCustomerDuplicateEmail(test *testing.T) {
	test.Parallel()
	store := newTestStore(test)
	seedCustomer(test, store, "dup@example.com")

	name, _ := wallet.NewName("Another Customer")
	address, _ := wallet.NewEmail("dup@example.com")
	_, err := store.CreateCustomer(context.Background(), wallet.Customer{
		Document: mustDocument(test, "0987654321"),
		Name:     name,
		Email:    address,
		Phone:    mustPhone(test, "3009999999"),
	})
	if !errors.Is(err, wallet.ErrEmailTaken) {
		test.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestCreditLineUniquePerCustomer(test *testing.T) {
	test.Parallel()
	store := newTestStore(test)
	customer := seedCustomer(test, store, "line@example.com")

	first, err := store.CreateCreditLine(context.Background(), wallet.CreditLine{
		CustomerID: customer.CustomerID,
		Balance:    mustAmount(test, "1000"),
	})
	if err != nil {
		test.Fatalf("create credit line: %v", err)
	}
	if first.CreditLineID == "" {
		test.Fatalf("expected assigned credit line id")
	}
	_, err = store.CreateCreditLine(context.Background(), wallet.CreditLine{
		CustomerID: customer.CustomerID,
		Balance:    mustAmount(test, "5"),
	})
	if !errors.Is(err, wallet.ErrCreditLineExists) {
		test.Fatalf("expected ErrCreditLineExists, got %v", err)
	}
}

func TestFindCreditLineByContact(test *testing.T) {
	test.Parallel()
	store := newTestStore(test)
	customer := seedCustomer(test, store, "contact@example.com")
	created, err := store.CreateCreditLine(context.Background(), wallet.CreditLine{
		CustomerID: customer.CustomerID,
		Balance:    mustAmount(test, "250.500"),
	})
	if err != nil {
		test.Fatalf("create credit line: %v", err)
	}

	found, err := store.FindCreditLineByContact(context.Background(), customer.Document, customer.Phone)
	if err != nil {
		test.Fatalf("find by contact: %v", err)
	}
	if found.CreditLineID != created.CreditLineID {
		test.Fatalf("expected line %s, got %s", created.CreditLineID, found.CreditLineID)
	}
	if !found.Balance.Equal(mustAmount(test, "250.500")) {
		test.Fatalf("expected balance 250.500, got %s", found.Balance)
	}

	_, err = store.FindCreditLineByContact(context.Background(), mustDocument(test, "0000000000"), customer.Phone)
	if !errors.Is(err, wallet.ErrCreditLineNotFound) {
		test.Fatalf("expected ErrCreditLineNotFound, got %v", err)
	}
}

func TestSaveCreditLinePersistsAllCounters(test *testing.T) {
	test.Parallel()
	store := newTestStore(test)
	customer := seedCustomer(test, store, "counters@example.com")
	line, err := store.CreateCreditLine(context.Background(), wallet.CreditLine{
		CustomerID: customer.CustomerID,
		Balance:    mustAmount(test, "100"),
	})
	if err != nil {
		test.Fatalf("create credit line: %v", err)
	}

	line.Balance = mustAmount(test, "70")
	line.TotalDebt = mustAmount(test, "0")
	line.TotalConsumption = mustAmount(test, "30")
	if err := store.SaveCreditLine(context.Background(), line); err != nil {
		test.Fatalf("save credit line: %v", err)
	}

	reloaded, err := store.GetCreditLine(context.Background(), line.CreditLineID)
	if err != nil {
		test.Fatalf("reload: %v", err)
	}
	if !reloaded.Balance.Equal(mustAmount(test, "70")) || !reloaded.TotalConsumption.Equal(mustAmount(test, "30")) || !reloaded.TotalDebt.IsZero() {
		test.Fatalf("unexpected counters: %+v", reloaded)
	}
}

func TestTokenConsumeIsCompareAndSet(test *testing.T) {
	test.Parallel()
	store := newTestStore(test)
	customer := seedCustomer(test, store, "token@example.com")
	line, err := store.CreateCreditLine(context.Background(), wallet.CreditLine{
		CustomerID: customer.CustomerID,
		Balance:    mustAmount(test, "100"),
	})
	if err != nil {
		test.Fatalf("create credit line: %v", err)
	}

	code, _ := wallet.NewTokenCode("135790")
	sessionID, _ := wallet.NewSessionID("session-store")
	token, err := store.CreateToken(context.Background(), wallet.Token{
		CreditLineID:     line.CreditLineID,
		Code:             code,
		Value:            mustAmount(test, "40"),
		SessionID:        sessionID,
		ExpiresAtUnixUTC: 1700000300,
		MetadataJSON:     `{"notify_email":"token@example.com"}`,
	})
	if err != nil {
		test.Fatalf("create token: %v", err)
	}

	found, err := store.FindToken(context.Background(), sessionID, code)
	if err != nil {
		test.Fatalf("find token: %v", err)
	}
	if found.TokenID != token.TokenID || !found.Value.Equal(mustAmount(test, "40")) {
		test.Fatalf("unexpected token: %+v", found)
	}
	if found.ExpiresAtUnixUTC != 1700000300 {
		test.Fatalf("expected expiry 1700000300, got %d", found.ExpiresAtUnixUTC)
	}

	if err := store.ConsumeToken(context.Background(), token.TokenID); err != nil {
		test.Fatalf("first consume: %v", err)
	}
	err = store.ConsumeToken(context.Background(), token.TokenID)
	if !errors.Is(err, wallet.ErrTokenConsumed) {
		test.Fatalf("expected ErrTokenConsumed on replay, got %v", err)
	}

	consumed, err := store.FindToken(context.Background(), sessionID, code)
	if err != nil {
		test.Fatalf("find consumed token: %v", err)
	}
	if !consumed.Value.IsZero() {
		test.Fatalf("expected zero value after consume, got %s", consumed.Value)
	}
}

func TestFindTokenRequiresExactPair(test *testing.T) {
	test.Parallel()
	store := newTestStore(test)
	customer := seedCustomer(test, store, "pair@example.com")
	line, err := store.CreateCreditLine(context.Background(), wallet.CreditLine{
		CustomerID: customer.CustomerID,
		Balance:    mustAmount(test, "100"),
	})
	if err != nil {
		test.Fatalf("create credit line: %v", err)
	}
	code, _ := wallet.NewTokenCode("111111")
	sessionID, _ := wallet.NewSessionID("session-pair")
	if _, err := store.CreateToken(context.Background(), wallet.Token{
		CreditLineID:     line.CreditLineID,
		Code:             code,
		Value:            mustAmount(test, "10"),
		SessionID:        sessionID,
		ExpiresAtUnixUTC: 1700000300,
	}); err != nil {
		test.Fatalf("create token: %v", err)
	}

	otherCode, _ := wallet.NewTokenCode("222222")
	if _, err := store.FindToken(context.Background(), sessionID, otherCode); !errors.Is(err, wallet.ErrTokenInvalid) {
		test.Fatalf("expected ErrTokenInvalid for wrong code, got %v", err)
	}
	otherSession, _ := wallet.NewSessionID("session-other")
	if _, err := store.FindToken(context.Background(), otherSession, code); !errors.Is(err, wallet.ErrTokenInvalid) {
		test.Fatalf("expected ErrTokenInvalid for wrong session, got %v", err)
	}
}

func TestListCreditLinesJoinsAndFilters(test *testing.T) {
	test.Parallel()
	store := newTestStore(test)
	customer := seedCustomer(test, store, "listing@example.com")
	if _, err := store.CreateCreditLine(context.Background(), wallet.CreditLine{
		CustomerID: customer.CustomerID,
		Balance:    mustAmount(test, "500"),
	}); err != nil {
		test.Fatalf("create credit line: %v", err)
	}

	listings, err := store.ListCreditLines(context.Background(), wallet.ListQuery{Search: "listing@", Page: 1, PerPage: 10})
	if err != nil {
		test.Fatalf("list: %v", err)
	}
	if len(listings) != 1 {
		test.Fatalf("expected one listing, got %d", len(listings))
	}
	if listings[0].Email != customer.Email {
		test.Fatalf("expected joined customer email, got %s", listings[0].Email)
	}

	empty, err := store.ListCreditLines(context.Background(), wallet.ListQuery{Search: "missing", Page: 1, PerPage: 10})
	if err != nil {
		test.Fatalf("list: %v", err)
	}
	if len(empty) != 0 {
		test.Fatalf("expected no listings, got %d", len(empty))
	}
}

func TestWithTxRollsBackOnError(test *testing.T) {
	test.Parallel()
	store := newTestStore(test)
	customer := seedCustomer(test, store, "rollback@example.com")

	sentinel := errors.New("abort")
	err := store.WithTx(context.Background(), func(ctx context.Context, txStore wallet.Store) error {
		if _, err := txStore.CreateCreditLine(ctx, wallet.CreditLine{
			CustomerID: customer.CustomerID,
			Balance:    mustAmount(test, "100"),
		}); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		test.Fatalf("expected sentinel error, got %v", err)
	}
	if _, err := store.FindCreditLineByContact(context.Background(), customer.Document, customer.Phone); !errors.Is(err, wallet.ErrCreditLineNotFound) {
		test.Fatalf("expected rollback to drop the row, got %v", err)
	}
}
