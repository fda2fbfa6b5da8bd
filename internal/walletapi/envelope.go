package walletapi

import (
	"errors"
	"net/http"

	"github.com/MarkoPoloResearchLab/wallet/pkg/wallet"
)

const internalErrorMessage = "internal server error"

// Envelope is the uniform response shape shared by the JSON and XML
// surfaces: success flag, human-readable messages, payload.
type Envelope struct {
	Success  bool     `json:"success"`
	Messages []string `json:"messages"`
	Data     any      `json:"data"`
}

func successEnvelope(message string, data any) Envelope {
	if data == nil {
		data = []any{}
	}
	return Envelope{Success: true, Messages: []string{message}, Data: data}
}

func failureEnvelope(message string) Envelope {
	return Envelope{Success: false, Messages: []string{message}, Data: []any{}}
}

// failureFor translates a domain or internal error into an envelope and
// HTTP status. In production only domain messages pass through;
// everything else is redacted to a generic message.
func failureFor(err error, production bool) (Envelope, int) {
	if wallet.IsDomainError(err) {
		message := err.Error()
		if production {
			message = domainMessage(err)
		}
		return failureEnvelope(message), http.StatusBadRequest
	}
	message := internalErrorMessage
	if !production {
		message = err.Error()
	}
	return failureEnvelope(message), http.StatusInternalServerError
}

// domainMessage maps a wrapped domain error back to its sentinel text,
// dropping operation metadata and internal detail.
func domainMessage(err error) string {
	for _, sentinel := range []error{
		wallet.ErrCustomerNotFound,
		wallet.ErrCreditLineNotFound,
		wallet.ErrCreditLineExists,
		wallet.ErrEmailTaken,
		wallet.ErrDebtExceedsBalance,
		wallet.ErrInsufficientBalance,
		wallet.ErrTokenInvalid,
		wallet.ErrTokenExpired,
		wallet.ErrTokenConsumed,
		wallet.ErrNotificationFailed,
		wallet.ErrInvalidDocument,
		wallet.ErrInvalidName,
		wallet.ErrInvalidEmail,
		wallet.ErrInvalidPhone,
		wallet.ErrInvalidAmount,
		wallet.ErrInvalidCustomerID,
		wallet.ErrInvalidSessionID,
		wallet.ErrInvalidTokenCode,
		wallet.ErrInvalidListQuery,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return internalErrorMessage
}
