package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const bearerPrefix = "Bearer "

var (
	ErrMissingToken  = errors.New("missing bearer token")
	ErrInvalidToken  = errors.New("invalid token")
	ErrMissingActor  = errors.New("token carries no subject")
	ErrInvalidConfig = errors.New("invalid validator config")
)

// Claims are the session claims carried by API tokens.
type Claims struct {
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Validator verifies HS256-signed bearer tokens.
type Validator struct {
	signingKey []byte
	issuer     string
}

// NewValidator returns a Validator for the given signing key and issuer.
func NewValidator(signingKey []byte, issuer string) (*Validator, error) {
	if len(signingKey) == 0 {
		return nil, fmt.Errorf("%w: signing key is empty", ErrInvalidConfig)
	}
	if strings.TrimSpace(issuer) == "" {
		return nil, fmt.Errorf("%w: issuer is empty", ErrInvalidConfig)
	}
	return &Validator{signingKey: signingKey, issuer: issuer}, nil
}

// Validate parses and verifies a raw token string.
func (validator *Validator) Validate(raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%w: unexpected signing method %v", ErrInvalidToken, token.Header["alg"])
		}
		return validator.signingKey, nil
	}, jwt.WithIssuer(validator.issuer))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrMissingActor
	}
	return claims, nil
}

// GinMiddleware validates the Authorization header and stores the claims
// under claimsKey for downstream handlers.
func (validator *Validator) GinMiddleware(claimsKey string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		header := ctx.GetHeader("Authorization")
		if !strings.HasPrefix(header, bearerPrefix) {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": ErrMissingToken.Error()})
			return
		}
		claims, err := validator.Validate(strings.TrimPrefix(header, bearerPrefix))
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": "invalid token"})
			return
		}
		ctx.Set(claimsKey, claims)
		ctx.Next()
	}
}

// ClaimsFrom extracts claims previously stored by GinMiddleware.
func ClaimsFrom(ctx *gin.Context, claimsKey string) *Claims {
	value, exists := ctx.Get(claimsKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*Claims)
	if !ok {
		return nil
	}
	return claims
}
