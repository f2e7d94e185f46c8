package httpserver

import (
	"errors"
	"net/http"

	"github.com/MarkoPoloResearchLab/creditline/pkg/creditline"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type errorMapping struct {
	target error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{creditline.ErrNotAuthorized, http.StatusForbidden, "not_authorized"},
	{creditline.ErrNotApprover, http.StatusForbidden, "not_approver"},
	{creditline.ErrProtocolPaused, http.StatusServiceUnavailable, "protocol_paused"},
	{creditline.ErrPoolDisabled, http.StatusServiceUnavailable, "pool_disabled"},
	{creditline.ErrCreditNotFound, http.StatusNotFound, "credit_not_found"},
	{creditline.ErrReceivableNotFound, http.StatusNotFound, "receivable_not_found"},
	{creditline.ErrReceivableAlreadyRegistered, http.StatusConflict, "receivable_exists"},
	{creditline.ErrCreditDefaulted, http.StatusConflict, "credit_defaulted"},
	{creditline.ErrCreditClosed, http.StatusConflict, "credit_closed"},
	{creditline.ErrOutstandingBalance, http.StatusConflict, "outstanding_balance"},
	{creditline.ErrCreditLimitExceeded, http.StatusUnprocessableEntity, "credit_limit_exceeded"},
	{creditline.ErrInsufficientReceivableAmount, http.StatusUnprocessableEntity, "insufficient_receivable_amount"},
	{creditline.ErrReceivableMatured, http.StatusUnprocessableEntity, "receivable_matured"},
	{creditline.ErrOwnershipMismatch, http.StatusUnprocessableEntity, "ownership_mismatch"},
	{creditline.ErrNotReceivableOwner, http.StatusUnprocessableEntity, "receivable_not_pledged"},
	{creditline.ErrZeroAmount, http.StatusBadRequest, "zero_amount"},
	{creditline.ErrZeroReceivableID, http.StatusBadRequest, "zero_receivable_id"},
	{creditline.ErrInvalidBorrowerID, http.StatusBadRequest, "invalid_borrower"},
	{creditline.ErrInvalidActor, http.StatusBadRequest, "invalid_actor"},
	{creditline.ErrInvalidParameters, http.StatusBadRequest, "invalid_parameters"},
	{creditline.ErrInvalidPeriodDuration, http.StatusBadRequest, "invalid_period_duration"},
}

// respondError translates domain errors into HTTP responses.
func (server *Server) respondError(ctx *gin.Context, err error) {
	for _, mapping := range errorMappings {
		if errors.Is(err, mapping.target) {
			ctx.JSON(mapping.status, errorResponse(mapping.code, err.Error()))
			return
		}
	}
	server.logger.Error("unmapped operation error", zap.Error(err))
	ctx.JSON(http.StatusInternalServerError, errorResponse("internal", "internal error"))
}
