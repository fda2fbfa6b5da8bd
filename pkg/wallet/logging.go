package wallet

import "context"

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records domain-level events emitted by Service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing wallet operation.
type OperationLog struct {
	Operation string
	Document  Document
	Phone     Phone
	SessionID SessionID
	Amount    Amount
	Status    string
	Error     error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// WithNotifier wires the notifier used for token issuance and settlement outcomes.
func WithNotifier(notifier Notifier) ServiceOption {
	return func(service *Service) {
		service.notifier = notifier
	}
}

// WithTokenCodeSource replaces the random code generator, letting tests
// supply deterministic codes.
func WithTokenCodeSource(source func() (TokenCode, error)) ServiceOption {
	return func(service *Service) {
		service.codeFn = source
	}
}

// WithSessionIDSource replaces the session identifier generator.
func WithSessionIDSource(source func() SessionID) ServiceOption {
	return func(service *Service) {
		service.sessionFn = source
	}
}
