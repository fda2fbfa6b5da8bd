package wallet

const (
	operationRegisterCustomer = "register_customer"
	operationListCustomers    = "list_customers"
	operationOpenCreditLine   = "open_credit_line"
	operationListCreditLines  = "list_credit_lines"
	operationAddBalance       = "add_balance"
	operationIssueToken       = "issue_token"
	operationRedeemToken      = "redeem_token"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	// Confirmation tokens live for five minutes from issuance.
	tokenLifetimeSeconds int64 = 300

	tokenCodeMin  int64 = 100000
	tokenCodeSpan int64 = 900000
	tokenCodeLen        = 6

	documentMinLen = 10
	documentMaxLen = 15
	phoneLen       = 10
	nameMaxLen     = 255
	emailMaxLen    = 255

	defaultPerPage = 10
)
