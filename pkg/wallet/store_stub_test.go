package wallet

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
)

// stubStore is an in-memory Store. WithTx serializes callers the way a
// database transaction over locked rows would.
type stubStore struct {
	txMu         sync.Mutex
	mu           sync.Mutex
	sequence     int
	customers    map[string]Customer
	creditLines  map[string]CreditLine
	tokens       map[string]Token
	failWith     error
	createdEmail map[string]bool
}

func newStubStore(test *testing.T) *stubStore {
	test.Helper()
	return &stubStore{
		customers:    map[string]Customer{},
		creditLines:  map[string]CreditLine{},
		tokens:       map[string]Token{},
		createdEmail: map[string]bool{},
	}
}

func newFailingStore(test *testing.T, failure error) *stubStore {
	test.Helper()
	store := newStubStore(test)
	store.failWith = failure
	return store
}

func (store *stubStore) nextID(prefix string) string {
	store.sequence++
	return fmt.Sprintf("%s-%d", prefix, store.sequence)
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	store.txMu.Lock()
	defer store.txMu.Unlock()
	return fn(ctx, store)
}

func (store *stubStore) CreateCustomer(_ context.Context, customer Customer) (Customer, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.failWith != nil {
		return Customer{}, store.failWith
	}
	if store.createdEmail[customer.Email.String()] {
		return Customer{}, ErrEmailTaken
	}
	customer.CustomerID = store.nextID("customer")
	store.customers[customer.CustomerID] = customer
	store.createdEmail[customer.Email.String()] = true
	return customer, nil
}

func (store *stubStore) GetCustomer(_ context.Context, customerID string) (Customer, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.failWith != nil {
		return Customer{}, store.failWith
	}
	customer, ok := store.customers[customerID]
	if !ok {
		return Customer{}, ErrCustomerNotFound
	}
	return customer, nil
}

func (store *stubStore) ListCustomers(_ context.Context, query ListQuery) ([]Customer, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.failWith != nil {
		return nil, store.failWith
	}
	customers := make([]Customer, 0, len(store.customers))
	for _, customer := range store.customers {
		if query.Search != "" && !customerMatches(customer, query.Search) {
			continue
		}
		customers = append(customers, customer)
	}
	return customers, nil
}

func customerMatches(customer Customer, search string) bool {
	for _, field := range []string{
		customer.Document.String(),
		customer.Name.String(),
		customer.Email.String(),
		customer.Phone.String(),
	} {
		if strings.Contains(field, search) {
			return true
		}
	}
	return false
}

func (store *stubStore) CreateCreditLine(_ context.Context, line CreditLine) (CreditLine, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.failWith != nil {
		return CreditLine{}, store.failWith
	}
	for _, existing := range store.creditLines {
		if existing.CustomerID == line.CustomerID {
			return CreditLine{}, ErrCreditLineExists
		}
	}
	line.CreditLineID = store.nextID("credit-line")
	store.creditLines[line.CreditLineID] = line
	return line, nil
}

func (store *stubStore) GetCreditLine(_ context.Context, creditLineID string) (CreditLine, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.failWith != nil {
		return CreditLine{}, store.failWith
	}
	line, ok := store.creditLines[creditLineID]
	if !ok {
		return CreditLine{}, ErrCreditLineNotFound
	}
	return line, nil
}

func (store *stubStore) FindCreditLineByContact(_ context.Context, document Document, phone Phone) (CreditLine, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.failWith != nil {
		return CreditLine{}, store.failWith
	}
	for _, line := range store.creditLines {
		owner, ok := store.customers[line.CustomerID]
		if !ok {
			continue
		}
		if owner.Document == document && owner.Phone == phone {
			return line, nil
		}
	}
	return CreditLine{}, ErrCreditLineNotFound
}

func (store *stubStore) SaveCreditLine(_ context.Context, line CreditLine) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.failWith != nil {
		return store.failWith
	}
	if _, ok := store.creditLines[line.CreditLineID]; !ok {
		return ErrCreditLineNotFound
	}
	store.creditLines[line.CreditLineID] = line
	return nil
}

func (store *stubStore) ListCreditLines(_ context.Context, query ListQuery) ([]CreditLineListing, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.failWith != nil {
		return nil, store.failWith
	}
	listings := make([]CreditLineListing, 0, len(store.creditLines))
	for _, line := range store.creditLines {
		owner, ok := store.customers[line.CustomerID]
		if !ok {
			continue
		}
		if query.Search != "" && !customerMatches(owner, query.Search) {
			continue
		}
		listings = append(listings, CreditLineListing{
			CreditLine: line,
			Document:   owner.Document,
			Name:       owner.Name,
			Email:      owner.Email,
			Phone:      owner.Phone,
		})
	}
	return listings, nil
}

func (store *stubStore) CreateToken(_ context.Context, token Token) (Token, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.failWith != nil {
		return Token{}, store.failWith
	}
	token.TokenID = store.nextID("token")
	store.tokens[token.TokenID] = token
	return token, nil
}

func (store *stubStore) FindToken(_ context.Context, sessionID SessionID, code TokenCode) (Token, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.failWith != nil {
		return Token{}, store.failWith
	}
	for _, token := range store.tokens {
		if token.SessionID == sessionID && token.Code == code {
			return token, nil
		}
	}
	return Token{}, ErrTokenInvalid
}

func (store *stubStore) ConsumeToken(_ context.Context, tokenID string) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.failWith != nil {
		return store.failWith
	}
	token, ok := store.tokens[tokenID]
	if !ok || token.Value.IsZero() {
		return ErrTokenConsumed
	}
	token.Value = Amount{}
	store.tokens[tokenID] = token
	return nil
}

func (store *stubStore) mustCreditLine(test *testing.T, creditLineID string) CreditLine {
	test.Helper()
	store.mu.Lock()
	defer store.mu.Unlock()
	line, ok := store.creditLines[creditLineID]
	if !ok {
		test.Fatalf("missing credit line %s", creditLineID)
	}
	return line
}

func (store *stubStore) mustToken(test *testing.T, sessionID SessionID) Token {
	test.Helper()
	store.mu.Lock()
	defer store.mu.Unlock()
	for _, token := range store.tokens {
		if token.SessionID == sessionID {
			return token
		}
	}
	test.Fatalf("missing token for session %s", sessionID)
	return Token{}
}

// recorderNotifier captures dispatched notifications.
type recorderNotifier struct {
	mu            sync.Mutex
	notifications []Notification
	failWith      error
}

func (notifier *recorderNotifier) Notify(_ context.Context, notification Notification) error {
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if notifier.failWith != nil {
		return notifier.failWith
	}
	notifier.notifications = append(notifier.notifications, notification)
	return nil
}

func mustDocument(test *testing.T, raw string) Document {
	test.Helper()
	document, err := NewDocument(raw)
	if err != nil {
		test.Fatalf("document %q: %v", raw, err)
	}
	return document
}

func mustPhone(test *testing.T, raw string) Phone {
	test.Helper()
	phone, err := NewPhone(raw)
	if err != nil {
		test.Fatalf("phone %q: %v", raw, err)
	}
	return phone
}

func mustEmail(test *testing.T, raw string) Email {
	test.Helper()
	email, err := NewEmail(raw)
	if err != nil {
		test.Fatalf("email %q: %v", raw, err)
	}
	return email
}

func mustName(test *testing.T, raw string) Name {
	test.Helper()
	name, err := NewName(raw)
	if err != nil {
		test.Fatalf("name %q: %v", raw, err)
	}
	return name
}

func mustAmount(test *testing.T, raw string) Amount {
	test.Helper()
	amount, err := ParseAmount(raw)
	if err != nil {
		test.Fatalf("amount %q: %v", raw, err)
	}
	return amount
}

func mustSessionID(test *testing.T, raw string) SessionID {
	test.Helper()
	sessionID, err := NewSessionID(raw)
	if err != nil {
		test.Fatalf("session id %q: %v", raw, err)
	}
	return sessionID
}

func mustTokenCode(test *testing.T, raw string) TokenCode {
	test.Helper()
	code, err := NewTokenCode(raw)
	if err != nil {
		test.Fatalf("token code %q: %v", raw, err)
	}
	return code
}

func mustNewService(test *testing.T, store Store, options ...ServiceOption) *Service {
	test.Helper()
	service, err := NewService(store, func() int64 { return 1000 }, options...)
	if err != nil {
		test.Fatalf("service init: %v", err)
	}
	return service
}

func seedCustomer(test *testing.T, store *stubStore) Customer {
	test.Helper()
	service := mustNewService(test, store)
	customer, err := service.RegisterCustomer(
		context.Background(),
		mustDocument(test, "1234567890"),
		mustName(test, "Ada Lovelace"),
		mustEmail(test, "ada@example.com"),
		mustPhone(test, "3001234567"),
	)
	if err != nil {
		test.Fatalf("seed customer: %v", err)
	}
	return customer
}

func seedCreditLine(test *testing.T, store *stubStore, balance string) (Customer, CreditLine) {
	test.Helper()
	customer := seedCustomer(test, store)
	service := mustNewService(test, store)
	line, err := service.OpenCreditLine(context.Background(), customer.CustomerID, mustAmount(test, balance))
	if err != nil {
		test.Fatalf("seed credit line: %v", err)
	}
	return customer, line
}
