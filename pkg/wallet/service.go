package wallet

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"

	"github.com/google/uuid"
)

// Service contains the domain logic over a Store.
type Service struct {
	store     Store
	nowFn     func() int64
	codeFn    func() (TokenCode, error)
	sessionFn func() SessionID
	notifier  Notifier
	logger    OperationLogger
}

// NewService wires a Service. The clock is injected so tests can pin
// the current instant; code and session sources default to crypto/rand
// and uuid and can be replaced through options.
func NewService(store Store, now func() int64, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{
		store:     store,
		nowFn:     now,
		codeFn:    randomTokenCode,
		sessionFn: randomSessionID,
	}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// RegisterCustomer stores a new customer. The email must not already be
// registered.
func (service *Service) RegisterCustomer(ctx context.Context, document Document, name Name, email Email, phone Phone) (Customer, error) {
	created, operationError := service.store.CreateCustomer(ctx, Customer{
		Document:       document,
		Name:           name,
		Email:          email,
		Phone:          phone,
		CreatedUnixUTC: service.nowFn(),
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationRegisterCustomer,
		Document:  document,
		Phone:     phone,
		Error:     operationError,
	})
	if operationError != nil {
		return Customer{}, operationError
	}
	return created, nil
}

// ListCustomers returns customers newest first, optionally filtered and paginated.
func (service *Service) ListCustomers(ctx context.Context, query ListQuery) ([]Customer, error) {
	var customers []Customer
	normalized, operationError := query.Normalize()
	if operationError == nil {
		customers, operationError = service.store.ListCustomers(ctx, normalized)
	}
	service.logOperation(ctx, OperationLog{
		Operation: operationListCustomers,
		Error:     operationError,
	})
	if operationError != nil {
		return nil, operationError
	}
	return customers, nil
}

// OpenCreditLine creates the single credit line a customer may own,
// starting with the given balance and zero debt and consumption.
func (service *Service) OpenCreditLine(ctx context.Context, customerID string, initialBalance Amount) (CreditLine, error) {
	var created CreditLine
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		if customerID == "" {
			return fmt.Errorf("%w: empty value", ErrInvalidCustomerID)
		}
		owner, err := transactionStore.GetCustomer(ctx, customerID)
		if err != nil {
			return err
		}
		line, err := transactionStore.CreateCreditLine(ctx, CreditLine{
			CustomerID:     owner.CustomerID,
			Balance:        initialBalance,
			CreatedUnixUTC: service.nowFn(),
		})
		if err != nil {
			return err
		}
		created = line
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationOpenCreditLine,
		Amount:    initialBalance,
		Error:     operationError,
	})
	if operationError != nil {
		return CreditLine{}, operationError
	}
	return created, nil
}

// ListCreditLines returns credit lines joined with customer identity,
// newest first, optionally filtered and paginated.
func (service *Service) ListCreditLines(ctx context.Context, query ListQuery) ([]CreditLineListing, error) {
	var listings []CreditLineListing
	normalized, operationError := query.Normalize()
	if operationError == nil {
		listings, operationError = service.store.ListCreditLines(ctx, normalized)
	}
	service.logOperation(ctx, OperationLog{
		Operation: operationListCreditLines,
		Error:     operationError,
	})
	if operationError != nil {
		return nil, operationError
	}
	return listings, nil
}

// AddBalance atomically tops up the credit line matched by the
// customer's document and phone.
func (service *Service) AddBalance(ctx context.Context, document Document, phone Phone, amount Amount) error {
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		line, err := transactionStore.FindCreditLineByContact(ctx, document, phone)
		if err != nil {
			return err
		}
		line.Balance = line.Balance.Add(amount)
		return transactionStore.SaveCreditLine(ctx, line)
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationAddBalance,
		Document:  document,
		Phone:     phone,
		Amount:    amount,
		Error:     operationError,
	})
	return operationError
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}

func (service *Service) notify(ctx context.Context, notification Notification) error {
	if service.notifier == nil || notification.Email.String() == "" {
		return nil
	}
	return service.notifier.Notify(ctx, notification)
}

func randomTokenCode() (TokenCode, error) {
	offset, err := rand.Int(rand.Reader, big.NewInt(tokenCodeSpan))
	if err != nil {
		return TokenCode{}, fmt.Errorf("%w: %v", ErrInvalidTokenCode, err)
	}
	return NewTokenCode(strconv.FormatInt(tokenCodeMin+offset.Int64(), 10))
}

func randomSessionID() SessionID {
	return SessionID{value: uuid.NewString()}
}
