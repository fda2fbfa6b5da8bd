package walletapi

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/MarkoPoloResearchLab/wallet/pkg/wallet"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Service is the slice of the wallet domain the API needs.
// *wallet.Service satisfies it.
type Service interface {
	RegisterCustomer(ctx context.Context, document wallet.Document, name wallet.Name, email wallet.Email, phone wallet.Phone) (wallet.Customer, error)
	ListCustomers(ctx context.Context, query wallet.ListQuery) ([]wallet.Customer, error)
	OpenCreditLine(ctx context.Context, customerID string, initialBalance wallet.Amount) (wallet.CreditLine, error)
	ListCreditLines(ctx context.Context, query wallet.ListQuery) ([]wallet.CreditLineListing, error)
	AddBalance(ctx context.Context, document wallet.Document, phone wallet.Phone, amount wallet.Amount) error
	IssueDebtToken(ctx context.Context, document wallet.Document, phone wallet.Phone, requestedDebt wallet.Amount, notifyEmail wallet.Email) (wallet.IssuedToken, error)
	RedeemToken(ctx context.Context, sessionID wallet.SessionID, code wallet.TokenCode, notifyEmail wallet.Email) error
}

type httpHandler struct {
	service Service
	cfg     Config
	logger  *zap.Logger
}

// flexString accepts both JSON strings and bare numbers, since legacy
// clients send the token code either way.
type flexString string

func (value *flexString) UnmarshalJSON(raw []byte) error {
	trimmed := bytes.Trim(bytes.TrimSpace(raw), `"`)
	*value = flexString(trimmed)
	return nil
}

type createCustomerRequest struct {
	Document string `json:"document" xml:"document"`
	Name     string `json:"name" xml:"name"`
	Email    string `json:"email" xml:"email"`
	Phone    string `json:"phone" xml:"phone"`
}

type openCreditLineRequest struct {
	CustomerID string   `json:"customer_id" xml:"customer_id"`
	Balance    *float64 `json:"balance" xml:"balance"`
}

type sendBalanceRequest struct {
	Document string   `json:"document" xml:"document"`
	Phone    string   `json:"phone" xml:"phone"`
	Balance  *float64 `json:"balance" xml:"balance"`
}

type generateTokenRequest struct {
	Document  string   `json:"document" xml:"document"`
	Phone     string   `json:"phone" xml:"phone"`
	TotalDebt *float64 `json:"total_debt" xml:"total_debt"`
	Email     string   `json:"email" xml:"email"`
}

type redeemTokenRequest struct {
	SessionID string     `json:"session_id" xml:"session_id"`
	Token     flexString `json:"token" xml:"token"`
	Email     string     `json:"email" xml:"email"`
}

type customerPayload struct {
	ID       string `json:"id" xml:"id"`
	Document string `json:"document" xml:"document"`
	Name     string `json:"name" xml:"name"`
	Email    string `json:"email" xml:"email"`
	Phone    string `json:"phone" xml:"phone"`
}

type creditLinePayload struct {
	ID               string  `json:"id" xml:"id"`
	CustomerID       string  `json:"customer_id" xml:"customer_id"`
	Balance          float64 `json:"balance" xml:"balance"`
	TotalDebt        float64 `json:"total_debt" xml:"total_debt"`
	TotalConsumption float64 `json:"total_consumption" xml:"total_consumption"`
}

type creditLineListingPayload struct {
	ID               string  `json:"id" xml:"id"`
	CustomerID       string  `json:"customer_id" xml:"customer_id"`
	Balance          float64 `json:"balance" xml:"balance"`
	TotalDebt        float64 `json:"total_debt" xml:"total_debt"`
	TotalConsumption float64 `json:"total_consumption" xml:"total_consumption"`
	Document         string  `json:"document" xml:"document"`
	Name             string  `json:"name" xml:"name"`
	Email            string  `json:"email" xml:"email"`
	Phone            string  `json:"phone" xml:"phone"`
}

type issuedTokenPayload struct {
	SessionID string `json:"session_id" xml:"session_id"`
	Token     string `json:"token" xml:"token"`
}

// Core operations shared by the JSON and XML surfaces. Each returns the
// uniform envelope plus the HTTP status to send it with.

func (handler *httpHandler) registerCustomer(ctx context.Context, request createCustomerRequest) (Envelope, int) {
	document, err := wallet.NewDocument(request.Document)
	if err != nil {
		return handler.failure(err)
	}
	name, err := wallet.NewName(request.Name)
	if err != nil {
		return handler.failure(err)
	}
	email, err := wallet.NewEmail(request.Email)
	if err != nil {
		return handler.failure(err)
	}
	phone, err := wallet.NewPhone(request.Phone)
	if err != nil {
		return handler.failure(err)
	}
	customer, err := handler.service.RegisterCustomer(ctx, document, name, email, phone)
	if err != nil {
		return handler.failure(err)
	}
	return successEnvelope("Customer registered successfully.", mapCustomerPayload(customer)), http.StatusOK
}

func (handler *httpHandler) listCustomers(ctx context.Context, query wallet.ListQuery) (Envelope, int) {
	customers, err := handler.service.ListCustomers(ctx, query)
	if err != nil {
		return handler.failure(err)
	}
	payloads := make([]customerPayload, 0, len(customers))
	for _, customer := range customers {
		payloads = append(payloads, mapCustomerPayload(customer))
	}
	return successEnvelope("Customer listing.", payloads), http.StatusOK
}

func (handler *httpHandler) openCreditLine(ctx context.Context, request openCreditLineRequest) (Envelope, int) {
	balance, err := requiredAmount(request.Balance, "balance")
	if err != nil {
		return handler.failure(err)
	}
	line, err := handler.service.OpenCreditLine(ctx, request.CustomerID, balance)
	if err != nil {
		return handler.failure(err)
	}
	return successEnvelope("Credit line opened successfully.", mapCreditLinePayload(line)), http.StatusOK
}

func (handler *httpHandler) listCreditLines(ctx context.Context, query wallet.ListQuery) (Envelope, int) {
	listings, err := handler.service.ListCreditLines(ctx, query)
	if err != nil {
		return handler.failure(err)
	}
	payloads := make([]creditLineListingPayload, 0, len(listings))
	for _, listing := range listings {
		payloads = append(payloads, creditLineListingPayload{
			ID:               listing.CreditLine.CreditLineID,
			CustomerID:       listing.CreditLine.CustomerID,
			Balance:          listing.CreditLine.Balance.Float64(),
			TotalDebt:        listing.CreditLine.TotalDebt.Float64(),
			TotalConsumption: listing.CreditLine.TotalConsumption.Float64(),
			Document:         listing.Document.String(),
			Name:             listing.Name.String(),
			Email:            listing.Email.String(),
			Phone:            listing.Phone.String(),
		})
	}
	return successEnvelope("Credit line listing.", payloads), http.StatusOK
}

func (handler *httpHandler) sendBalance(ctx context.Context, request sendBalanceRequest) (Envelope, int) {
	document, err := wallet.NewDocument(request.Document)
	if err != nil {
		return handler.failure(err)
	}
	phone, err := wallet.NewPhone(request.Phone)
	if err != nil {
		return handler.failure(err)
	}
	amount, err := requiredAmount(request.Balance, "balance")
	if err != nil {
		return handler.failure(err)
	}
	if err := handler.service.AddBalance(ctx, document, phone, amount); err != nil {
		return handler.failure(err)
	}
	return successEnvelope("Balance added successfully.", nil), http.StatusOK
}

func (handler *httpHandler) generateToken(ctx context.Context, request generateTokenRequest) (Envelope, int) {
	document, err := wallet.NewDocument(request.Document)
	if err != nil {
		return handler.failure(err)
	}
	phone, err := wallet.NewPhone(request.Phone)
	if err != nil {
		return handler.failure(err)
	}
	requestedDebt, err := requiredAmount(request.TotalDebt, "total_debt")
	if err != nil {
		return handler.failure(err)
	}
	email, err := wallet.NewEmail(request.Email)
	if err != nil {
		return handler.failure(err)
	}
	issued, err := handler.service.IssueDebtToken(ctx, document, phone, requestedDebt, email)
	if err != nil {
		return handler.failure(err)
	}
	return successEnvelope("Confirmation token generated.", issuedTokenPayload{
		SessionID: issued.SessionID.String(),
		Token:     issued.Code.String(),
	}), http.StatusOK
}

func (handler *httpHandler) redeemToken(ctx context.Context, request redeemTokenRequest) (Envelope, int) {
	sessionID, err := wallet.NewSessionID(request.SessionID)
	if err != nil {
		return handler.failure(err)
	}
	code, err := wallet.NewTokenCode(string(request.Token))
	if err != nil {
		return handler.failure(err)
	}
	var email wallet.Email
	if request.Email != "" {
		email, err = wallet.NewEmail(request.Email)
		if err != nil {
			return handler.failure(err)
		}
	}
	if err := handler.service.RedeemToken(ctx, sessionID, code, email); err != nil {
		return handler.failure(err)
	}
	return successEnvelope("Payment applied successfully.", nil), http.StatusOK
}

func (handler *httpHandler) failure(err error) (Envelope, int) {
	envelope, status := failureFor(err, handler.cfg.Production())
	if status == http.StatusInternalServerError {
		handler.logger.Error("request failed", zap.Error(err))
	}
	return envelope, status
}

// JSON bindings.

func (handler *httpHandler) handleRegisterCustomer(ctx *gin.Context) {
	var request createCustomerRequest
	if !bindJSON(ctx, &request) {
		return
	}
	envelope, status := handler.registerCustomer(ctx.Request.Context(), request)
	ctx.JSON(status, envelope)
}

func (handler *httpHandler) handleListCustomers(ctx *gin.Context) {
	envelope, status := handler.listCustomers(ctx.Request.Context(), parseListQuery(ctx.Request.URL.Query()))
	ctx.JSON(status, envelope)
}

func (handler *httpHandler) handleOpenCreditLine(ctx *gin.Context) {
	var request openCreditLineRequest
	if !bindJSON(ctx, &request) {
		return
	}
	envelope, status := handler.openCreditLine(ctx.Request.Context(), request)
	ctx.JSON(status, envelope)
}

func (handler *httpHandler) handleListCreditLines(ctx *gin.Context) {
	envelope, status := handler.listCreditLines(ctx.Request.Context(), parseListQuery(ctx.Request.URL.Query()))
	ctx.JSON(status, envelope)
}

func (handler *httpHandler) handleSendBalance(ctx *gin.Context) {
	var request sendBalanceRequest
	if !bindJSON(ctx, &request) {
		return
	}
	envelope, status := handler.sendBalance(ctx.Request.Context(), request)
	ctx.JSON(status, envelope)
}

func (handler *httpHandler) handleGenerateToken(ctx *gin.Context) {
	var request generateTokenRequest
	if !bindJSON(ctx, &request) {
		return
	}
	envelope, status := handler.generateToken(ctx.Request.Context(), request)
	ctx.JSON(status, envelope)
}

func (handler *httpHandler) handleRedeemToken(ctx *gin.Context) {
	var request redeemTokenRequest
	if !bindJSON(ctx, &request) {
		return
	}
	envelope, status := handler.redeemToken(ctx.Request.Context(), request)
	ctx.JSON(status, envelope)
}

func bindJSON(ctx *gin.Context, target any) bool {
	if err := ctx.ShouldBindJSON(target); err != nil {
		ctx.JSON(http.StatusBadRequest, failureEnvelope(fmt.Sprintf("malformed request body: %v", err)))
		return false
	}
	return true
}

func parseListQuery(values url.Values) wallet.ListQuery {
	perPage, _ := strconv.Atoi(values.Get("per_page"))
	page, _ := strconv.Atoi(values.Get("page"))
	return wallet.ListQuery{
		Search:   values.Get("search"),
		Paginate: values.Get("paginate") == "true",
		Page:     page,
		PerPage:  perPage,
	}
}

func requiredAmount(raw *float64, field string) (wallet.Amount, error) {
	if raw == nil {
		return wallet.Amount{}, fmt.Errorf("%w: %s is required", wallet.ErrInvalidAmount, field)
	}
	return wallet.AmountFromFloat(*raw)
}

func mapCustomerPayload(customer wallet.Customer) customerPayload {
	return customerPayload{
		ID:       customer.CustomerID,
		Document: customer.Document.String(),
		Name:     customer.Name.String(),
		Email:    customer.Email.String(),
		Phone:    customer.Phone.String(),
	}
}

func mapCreditLinePayload(line wallet.CreditLine) creditLinePayload {
	return creditLinePayload{
		ID:               line.CreditLineID,
		CustomerID:       line.CustomerID,
		Balance:          line.Balance.Float64(),
		TotalDebt:        line.TotalDebt.Float64(),
		TotalConsumption: line.TotalConsumption.Float64(),
	}
}
