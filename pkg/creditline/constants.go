package creditline

const (
	operationApproveBorrower   = "approve_borrower"
	operationApproveReceivable = "approve_receivable"
	operationDrawdown          = "drawdown"
	operationPayment           = "payment"
	operationDirectPayment     = "direct_payment"
	operationPrincipalPayment  = "principal_payment"
	operationPayAndDraw        = "pay_and_draw"
	operationTriggerDefault    = "trigger_default"
	operationClose             = "close"

	operationStatusOK    = "ok"
	operationStatusError = "error"
)
