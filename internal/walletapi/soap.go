package walletapi

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Operation element names the legacy XML clients send. The misspelled
// sendBalane is what ships in the field, so it stays.
const (
	xmlOpCreateCustomer = "createCustomer"
	xmlOpSendBalance    = "sendBalane"
	xmlOpGenerateToken  = "generateTokenTotalDebt"
	xmlOpRedeemToken    = "debtCreditLine"
)

var errOperationElementMissing = errors.New("operation element not found in request body")

// soapResponse mirrors Envelope for the XML surface. Success is rendered
// as 1 or 0 because that is what the legacy consumers expect.
type soapResponse struct {
	XMLName  xml.Name `xml:"response"`
	Success  int      `xml:"success"`
	Messages []string `xml:"messages>message"`
	Data     any      `xml:"data,omitempty"`
}

type customerItems struct {
	Items []customerPayload `xml:"item"`
}

type creditLineListingItems struct {
	Items []creditLineListingPayload `xml:"item"`
}

func (handler *httpHandler) handleSoapRegisterCustomer(ctx *gin.Context) {
	var request createCustomerRequest
	if !bindOperationXML(ctx, xmlOpCreateCustomer, &request) {
		return
	}
	envelope, status := handler.registerCustomer(ctx.Request.Context(), request)
	renderXML(ctx, status, envelope)
}

func (handler *httpHandler) handleSoapListCustomers(ctx *gin.Context) {
	envelope, status := handler.listCustomers(ctx.Request.Context(), parseListQuery(ctx.Request.URL.Query()))
	renderXML(ctx, status, envelope)
}

func (handler *httpHandler) handleSoapListCreditLines(ctx *gin.Context) {
	envelope, status := handler.listCreditLines(ctx.Request.Context(), parseListQuery(ctx.Request.URL.Query()))
	renderXML(ctx, status, envelope)
}

func (handler *httpHandler) handleSoapSendBalance(ctx *gin.Context) {
	var request sendBalanceRequest
	if !bindOperationXML(ctx, xmlOpSendBalance, &request) {
		return
	}
	envelope, status := handler.sendBalance(ctx.Request.Context(), request)
	renderXML(ctx, status, envelope)
}

func (handler *httpHandler) handleSoapGenerateToken(ctx *gin.Context) {
	var request generateTokenRequest
	if !bindOperationXML(ctx, xmlOpGenerateToken, &request) {
		return
	}
	envelope, status := handler.generateToken(ctx.Request.Context(), request)
	renderXML(ctx, status, envelope)
}

func (handler *httpHandler) handleSoapRedeemToken(ctx *gin.Context) {
	var request redeemTokenRequest
	if !bindOperationXML(ctx, xmlOpRedeemToken, &request) {
		return
	}
	envelope, status := handler.redeemToken(ctx.Request.Context(), request)
	renderXML(ctx, status, envelope)
}

func bindOperationXML(ctx *gin.Context, operation string, target any) bool {
	if err := decodeOperationElement(ctx.Request.Body, operation, target); err != nil {
		renderXML(ctx, http.StatusBadRequest, failureEnvelope(fmt.Sprintf("malformed request body: %v", err)))
		return false
	}
	return true
}

// decodeOperationElement scans the document for the first element whose
// local name matches operation and decodes it, ignoring whatever SOAP
// envelope or namespace prefixes wrap it.
func decodeOperationElement(body io.Reader, operation string, target any) error {
	decoder := xml.NewDecoder(body)
	for {
		token, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			return errOperationElementMissing
		}
		if err != nil {
			return err
		}
		start, ok := token.(xml.StartElement)
		if !ok || start.Name.Local != operation {
			continue
		}
		return decoder.DecodeElement(target, &start)
	}
}

func renderXML(ctx *gin.Context, status int, envelope Envelope) {
	success := 0
	if envelope.Success {
		success = 1
	}
	ctx.XML(status, soapResponse{
		Success:  success,
		Messages: envelope.Messages,
		Data:     xmlData(envelope.Data),
	})
}

// xmlData rewraps envelope payloads so slices nest as repeated item
// elements under a single data element.
func xmlData(data any) any {
	switch typed := data.(type) {
	case nil:
		return nil
	case []any:
		return nil
	case []customerPayload:
		return customerItems{Items: typed}
	case []creditLineListingPayload:
		return creditLineListingItems{Items: typed}
	default:
		return data
	}
}
