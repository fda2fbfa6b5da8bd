package wallet

import (
	"context"
	"encoding/json"
	"fmt"
)

const (
	subjectTokenIssued = "Debt confirmation code"
	subjectSettlement  = "Debt settlement result"
)

// IssueDebtToken reserves the requested debt on the customer's credit
// line and persists a single-use confirmation token, all within one
// transaction. The code is dispatched to notifyEmail after commit; the
// session identifier only travels back to the caller. When dispatch
// fails the issuance is already durable and the error reports exactly
// that.
func (service *Service) IssueDebtToken(ctx context.Context, document Document, phone Phone, requestedDebt Amount, notifyEmail Email) (IssuedToken, error) {
	var issued IssuedToken
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		line, err := transactionStore.FindCreditLineByContact(ctx, document, phone)
		if err != nil {
			return err
		}
		if requestedDebt.GreaterThan(line.Balance) {
			return fmt.Errorf("%w: requested %s against balance %s", ErrDebtExceedsBalance, requestedDebt, line.Balance)
		}
		line.TotalDebt = line.TotalDebt.Add(requestedDebt)
		if err := transactionStore.SaveCreditLine(ctx, line); err != nil {
			return err
		}
		code, err := service.codeFn()
		if err != nil {
			return err
		}
		sessionID := service.sessionFn()
		nowUnixUTC := service.nowFn()
		if _, err := transactionStore.CreateToken(ctx, Token{
			CreditLineID:     line.CreditLineID,
			Code:             code,
			Value:            requestedDebt,
			SessionID:        sessionID,
			ExpiresAtUnixUTC: nowUnixUTC + tokenLifetimeSeconds,
			MetadataJSON:     issueMetadata(notifyEmail, requestedDebt),
			CreatedUnixUTC:   nowUnixUTC,
		}); err != nil {
			return err
		}
		issued = IssuedToken{SessionID: sessionID, Code: code}
		return nil
	})
	if operationError == nil {
		if notifyError := service.notify(ctx, Notification{
			Email:   notifyEmail,
			Subject: subjectTokenIssued,
			Status:  NotificationStatusApproved,
			Message: fmt.Sprintf("Your confirmation code is %s. It expires in 5 minutes.", issued.Code),
		}); notifyError != nil {
			operationError = WrapError(operationIssueToken, "notifier", "dispatch", fmt.Errorf("%w: %v", ErrNotificationFailed, notifyError))
		}
	}
	service.logOperation(ctx, OperationLog{
		Operation: operationIssueToken,
		Document:  document,
		Phone:     phone,
		SessionID: issued.SessionID,
		Amount:    requestedDebt,
		Error:     operationError,
	})
	return issued, operationError
}

// RedeemToken settles the pending debt authorized by the (session,
// code) pair. The token row is locked and compare-and-set to zero so
// two racing redemptions resolve to exactly one success. Outcome
// notifications are best-effort and never change the returned result.
func (service *Service) RedeemToken(ctx context.Context, sessionID SessionID, code TokenCode, notifyEmail Email) error {
	var settled Amount
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		token, err := transactionStore.FindToken(ctx, sessionID, code)
		if err != nil {
			return err
		}
		switch token.StateAt(service.nowFn()) {
		case TokenStateExpired:
			return ErrTokenExpired
		case TokenStateConsumed:
			return ErrTokenConsumed
		}
		line, err := transactionStore.GetCreditLine(ctx, token.CreditLineID)
		if err != nil {
			return err
		}
		if token.Value.GreaterThan(line.Balance) {
			return fmt.Errorf("%w: token value %s against balance %s", ErrInsufficientBalance, token.Value, line.Balance)
		}
		// Settlement subtracts the line's aggregate pending debt, not the
		// token's own value; the two are equal in the one-live-token flow.
		pendingDebt := line.TotalDebt
		newBalance, err := line.Balance.Sub(pendingDebt)
		if err != nil {
			return fmt.Errorf("%w: pending debt %s against balance %s", ErrInsufficientBalance, pendingDebt, line.Balance)
		}
		newDebt, err := line.TotalDebt.Sub(token.Value)
		if err != nil {
			return err
		}
		line.Balance = newBalance
		line.TotalConsumption = line.TotalConsumption.Add(pendingDebt)
		line.TotalDebt = newDebt
		if err := transactionStore.SaveCreditLine(ctx, line); err != nil {
			return err
		}
		settled = pendingDebt
		return transactionStore.ConsumeToken(ctx, token.TokenID)
	})
	if operationError == nil {
		_ = service.notify(ctx, Notification{
			Email:   notifyEmail,
			Subject: subjectSettlement,
			Status:  NotificationStatusApproved,
			Message: fmt.Sprintf("Payment of %s applied successfully.", settled),
		})
	} else if IsDomainError(operationError) {
		_ = service.notify(ctx, Notification{
			Email:   notifyEmail,
			Subject: subjectSettlement,
			Status:  NotificationStatusRejected,
			Message: fmt.Sprintf("Payment could not be applied: %v.", operationError),
		})
	}
	service.logOperation(ctx, OperationLog{
		Operation: operationRedeemToken,
		SessionID: sessionID,
		Amount:    settled,
		Error:     operationError,
	})
	return operationError
}

func issueMetadata(notifyEmail Email, requestedDebt Amount) string {
	raw, err := json.Marshal(map[string]string{
		"notify_email":   notifyEmail.String(),
		"requested_debt": requestedDebt.String(),
	})
	if err != nil {
		return "{}"
	}
	return string(raw)
}
