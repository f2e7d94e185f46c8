package httpserver

import (
	"context"
	"net/http"

	"github.com/MarkoPoloResearchLab/creditline/internal/auth"
	"github.com/MarkoPoloResearchLab/creditline/pkg/creditline"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const claimsContextKey = "auth_claims"

// ReceivableRegistrar records receivables and custody moves in the
// collateral registry.
type ReceivableRegistrar interface {
	RegisterReceivable(ctx context.Context, receivableID creditline.ReceivableID, owner creditline.BorrowerID, faceAmount creditline.Amount, maturityUnixUTC int64) error
	Pledge(ctx context.Context, receivableID creditline.ReceivableID, holder creditline.Actor) error
}

// Server exposes manager, engine, and registry operations over HTTP.
type Server struct {
	logger    *zap.Logger
	manager   *creditline.Manager
	engine    *creditline.Engine
	registrar ReceivableRegistrar
	roles     creditline.RoleAuthority
}

// NewServer wires the handler set.
func NewServer(logger *zap.Logger, manager *creditline.Manager, engine *creditline.Engine, registrar ReceivableRegistrar, roles creditline.RoleAuthority) *Server {
	return &Server{logger: logger, manager: manager, engine: engine, registrar: registrar, roles: roles}
}

// NewRouter builds the gin router with CORS and token validation applied to
// the API group.
func NewRouter(cfg Config, validator *auth.Validator, server *Server) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           CORSMaxAge(),
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.Use(validator.GinMiddleware(claimsContextKey))

	api.POST("/borrowers/:borrower/approval", server.handleApproveBorrower)
	api.POST("/borrowers/:borrower/receivables/:receivable/approval", server.handleApproveReceivable)
	api.POST("/borrowers/:borrower/drawdowns", server.handleDrawdown)
	api.POST("/borrowers/:borrower/payments", server.handlePayment)
	api.POST("/borrowers/:borrower/direct-payments", server.handleDirectPayment)
	api.POST("/borrowers/:borrower/principal-payments", server.handlePrincipalPayment)
	api.POST("/borrowers/:borrower/pay-and-draw", server.handlePayAndDraw)
	api.POST("/borrowers/:borrower/default", server.handleTriggerDefault)
	api.POST("/borrowers/:borrower/close", server.handleClose)
	api.GET("/borrowers/:borrower/due", server.handleDueInfo)
	api.GET("/borrowers/:borrower/available-credit", server.handleAvailableCredit)

	api.POST("/receivables/:receivable", server.handleRegisterReceivable)
	api.POST("/receivables/:receivable/pledge", server.handlePledgeReceivable)

	return router
}

// caller resolves the authenticated actor from the validated token claims.
func (server *Server) caller(ctx *gin.Context) (creditline.Actor, bool) {
	claims := auth.ClaimsFrom(ctx, claimsContextKey)
	if claims == nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return creditline.Actor{}, false
	}
	actor, err := creditline.NewActor(claims.Subject)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "invalid subject"))
		return creditline.Actor{}, false
	}
	return actor, true
}

// borrower resolves the borrower path parameter.
func (server *Server) borrower(ctx *gin.Context) (creditline.BorrowerID, bool) {
	borrower, err := creditline.NewBorrowerID(ctx.Param("borrower"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_borrower", err.Error()))
		return creditline.BorrowerID{}, false
	}
	return borrower, true
}

func errorResponse(code string, message string) gin.H {
	return gin.H{"error": code, "message": message}
}
