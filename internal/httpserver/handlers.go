package httpserver

import (
	"context"
	"net/http"

	"github.com/MarkoPoloResearchLab/creditline/pkg/creditline"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type approveBorrowerRequest struct {
	CreditLimit            int64  `json:"credit_limit"`
	NumPeriods             int    `json:"num_periods"`
	YieldBps               int64  `json:"yield_bps"`
	CommittedAmount        int64  `json:"committed_amount"`
	DesignatedStartUnixUTC int64  `json:"designated_start_unix_utc"`
	PeriodDuration         string `json:"period_duration"`
	AutoApproveReceivables bool   `json:"auto_approve_receivables"`
}

type approveReceivableRequest struct {
	FaceAmount int64 `json:"face_amount"`
}

type fundsRequest struct {
	ReceivableID string `json:"receivable_id"`
	Amount       int64  `json:"amount"`
}

type directPaymentRequest struct {
	Amount int64 `json:"amount"`
}

type payAndDrawRequest struct {
	PayReceivableID  string `json:"pay_receivable_id"`
	PayAmount        int64  `json:"pay_amount"`
	DrawReceivableID string `json:"draw_receivable_id"`
	DrawAmount       int64  `json:"draw_amount"`
}

type registerReceivableRequest struct {
	Owner           string `json:"owner"`
	FaceAmount      int64  `json:"face_amount"`
	MaturityUnixUTC int64  `json:"maturity_unix_utc"`
}

type pledgeReceivableRequest struct {
	Holder string `json:"holder"`
}

type duePayload struct {
	UnbilledPrincipal  int64  `json:"unbilled_principal"`
	NextDueDateUnixUTC int64  `json:"next_due_date_unix_utc"`
	NextDue            int64  `json:"next_due"`
	YieldDue           int64  `json:"yield_due"`
	TotalPastDue       int64  `json:"total_past_due"`
	YieldPastDue       int64  `json:"yield_past_due"`
	PrincipalPastDue   int64  `json:"principal_past_due"`
	LateFee            int64  `json:"late_fee"`
	MissedPeriods      int    `json:"missed_periods"`
	RemainingPeriods   int    `json:"remaining_periods"`
	State              string `json:"state"`
}

func (server *Server) handleApproveBorrower(ctx *gin.Context) {
	caller, ok := server.caller(ctx)
	if !ok {
		return
	}
	borrower, ok := server.borrower(ctx)
	if !ok {
		return
	}
	var request approveBorrowerRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	duration, err := creditline.ParsePeriodDuration(request.PeriodDuration)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	config, err := creditline.NewCreditConfig(
		creditline.Amount(request.CreditLimit),
		request.NumPeriods,
		request.YieldBps,
		creditline.Amount(request.CommittedAmount),
		request.DesignatedStartUnixUTC,
		duration,
		request.AutoApproveReceivables,
	)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	hash, err := server.manager.ApproveBorrower(ctx.Request.Context(), caller, borrower, config)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"credit_hash": hash.String()})
}

func (server *Server) handleApproveReceivable(ctx *gin.Context) {
	caller, ok := server.caller(ctx)
	if !ok {
		return
	}
	borrower, ok := server.borrower(ctx)
	if !ok {
		return
	}
	receivableID, err := creditline.NewReceivableID(ctx.Param("receivable"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_receivable", err.Error()))
		return
	}
	var request approveReceivableRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	if err := server.manager.ApproveReceivable(ctx.Request.Context(), caller, borrower, receivableID, creditline.Amount(request.FaceAmount)); err != nil {
		server.respondError(ctx, err)
		return
	}
	server.respondAvailableCredit(ctx, borrower)
}

func (server *Server) handleDrawdown(ctx *gin.Context) {
	server.handleFundsOperation(ctx, server.engine.Drawdown)
}

func (server *Server) handlePayment(ctx *gin.Context) {
	server.handleFundsOperation(ctx, server.engine.MakePayment)
}

func (server *Server) handleDirectPayment(ctx *gin.Context) {
	caller, ok := server.caller(ctx)
	if !ok {
		return
	}
	borrower, ok := server.borrower(ctx)
	if !ok {
		return
	}
	var request directPaymentRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	if err := server.engine.MakeDirectPayment(ctx.Request.Context(), caller, borrower, creditline.Amount(request.Amount)); err != nil {
		server.respondError(ctx, err)
		return
	}
	server.respondDueInfo(ctx, borrower)
}

func (server *Server) handlePrincipalPayment(ctx *gin.Context) {
	server.handleFundsOperation(ctx, server.engine.MakePrincipalPayment)
}

func (server *Server) handleFundsOperation(ctx *gin.Context, operation func(ctx context.Context, caller creditline.Actor, borrower creditline.BorrowerID, receivableID creditline.ReceivableID, amount creditline.Amount) error) {
	caller, ok := server.caller(ctx)
	if !ok {
		return
	}
	borrower, ok := server.borrower(ctx)
	if !ok {
		return
	}
	var request fundsRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	receivableID, err := creditline.NewReceivableID(request.ReceivableID)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	if err := operation(ctx.Request.Context(), caller, borrower, receivableID, creditline.Amount(request.Amount)); err != nil {
		server.respondError(ctx, err)
		return
	}
	server.respondDueInfo(ctx, borrower)
}

func (server *Server) handlePayAndDraw(ctx *gin.Context) {
	caller, ok := server.caller(ctx)
	if !ok {
		return
	}
	borrower, ok := server.borrower(ctx)
	if !ok {
		return
	}
	var request payAndDrawRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	payReceivableID, err := creditline.NewReceivableID(request.PayReceivableID)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	drawReceivableID, err := creditline.NewReceivableID(request.DrawReceivableID)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	err = server.engine.MakePrincipalPaymentAndDrawdown(
		ctx.Request.Context(),
		caller,
		borrower,
		payReceivableID,
		creditline.Amount(request.PayAmount),
		drawReceivableID,
		creditline.Amount(request.DrawAmount),
	)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	server.respondDueInfo(ctx, borrower)
}

func (server *Server) handleTriggerDefault(ctx *gin.Context) {
	caller, ok := server.caller(ctx)
	if !ok {
		return
	}
	borrower, ok := server.borrower(ctx)
	if !ok {
		return
	}
	if err := server.engine.TriggerDefault(ctx.Request.Context(), caller, borrower); err != nil {
		server.respondError(ctx, err)
		return
	}
	server.respondDueInfo(ctx, borrower)
}

func (server *Server) handleClose(ctx *gin.Context) {
	caller, ok := server.caller(ctx)
	if !ok {
		return
	}
	borrower, ok := server.borrower(ctx)
	if !ok {
		return
	}
	if err := server.engine.Close(ctx.Request.Context(), caller, borrower); err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"status": "closed"})
}

func (server *Server) handleDueInfo(ctx *gin.Context) {
	if _, ok := server.caller(ctx); !ok {
		return
	}
	borrower, ok := server.borrower(ctx)
	if !ok {
		return
	}
	server.respondDueInfo(ctx, borrower)
}

func (server *Server) handleAvailableCredit(ctx *gin.Context) {
	if _, ok := server.caller(ctx); !ok {
		return
	}
	borrower, ok := server.borrower(ctx)
	if !ok {
		return
	}
	server.respondAvailableCredit(ctx, borrower)
}

func (server *Server) handleRegisterReceivable(ctx *gin.Context) {
	if _, ok := server.approverCaller(ctx); !ok {
		return
	}
	receivableID, err := creditline.NewReceivableID(ctx.Param("receivable"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_receivable", err.Error()))
		return
	}
	var request registerReceivableRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	owner, err := creditline.NewBorrowerID(request.Owner)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	faceAmount, err := creditline.NewAmount(request.FaceAmount)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	if err := server.registrar.RegisterReceivable(ctx.Request.Context(), receivableID, owner, faceAmount, request.MaturityUnixUTC); err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"receivable_id": receivableID.String()})
}

func (server *Server) handlePledgeReceivable(ctx *gin.Context) {
	if _, ok := server.approverCaller(ctx); !ok {
		return
	}
	receivableID, err := creditline.NewReceivableID(ctx.Param("receivable"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_receivable", err.Error()))
		return
	}
	var request pledgeReceivableRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	holder, err := creditline.NewActor(request.Holder)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	if err := server.registrar.Pledge(ctx.Request.Context(), receivableID, holder); err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"receivable_id": receivableID.String(), "held_by": holder.String()})
}

// approverCaller resolves the authenticated actor and requires the approver
// role for registry writes.
func (server *Server) approverCaller(ctx *gin.Context) (creditline.Actor, bool) {
	caller, ok := server.caller(ctx)
	if !ok {
		return creditline.Actor{}, false
	}
	isApprover, err := server.roles.IsApprover(ctx.Request.Context(), caller)
	if err != nil {
		server.respondError(ctx, err)
		return creditline.Actor{}, false
	}
	if !isApprover {
		server.respondError(ctx, creditline.ErrNotApprover)
		return creditline.Actor{}, false
	}
	return caller, true
}

func (server *Server) respondDueInfo(ctx *gin.Context, borrower creditline.BorrowerID) {
	record, detail, err := server.engine.DueInfo(ctx.Request.Context(), borrower)
	if err != nil {
		server.logger.Error("due info fetch failed", zap.Error(err))
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"due": duePayload{
		UnbilledPrincipal:  record.UnbilledPrincipal.Int64(),
		NextDueDateUnixUTC: record.NextDueDateUnixUTC,
		NextDue:            record.NextDue.Int64(),
		YieldDue:           record.YieldDue.Int64(),
		TotalPastDue:       record.TotalPastDue.Int64(),
		YieldPastDue:       detail.YieldPastDue.Int64(),
		PrincipalPastDue:   detail.PrincipalPastDue.Int64(),
		LateFee:            detail.LateFee.Int64(),
		MissedPeriods:      record.MissedPeriods,
		RemainingPeriods:   record.RemainingPeriods,
		State:              record.State.String(),
	}})
}

func (server *Server) respondAvailableCredit(ctx *gin.Context, borrower creditline.BorrowerID) {
	hash := creditline.CreditHashForBorrower(borrower)
	available, err := server.manager.AvailableCredit(ctx.Request.Context(), hash)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"credit_hash": hash.String(), "available_credit": available.Int64()})
}
