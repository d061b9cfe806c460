package httpapi

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/hoff1997/CodexMyBudgetMate-sub000/pkg/envelope"
)

const sessionContextKey = "session_claims"

// SessionClaims is the cookie payload minted by the external auth service.
// This middleware is the whole interface to that collaborator: it only
// verifies the signature and lifts the user id into the request context.
type SessionClaims struct {
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

func sessionMiddleware(cfg Config) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		cookie, err := ctx.Cookie(cfg.SessionCookieName)
		if err != nil || cookie == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
			return
		}
		claims := &SessionClaims{}
		token, err := jwt.ParseWithClaims(cookie, claims, func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
			}
			return []byte(cfg.SessionSigningKey), nil
		}, jwt.WithIssuer(cfg.SessionIssuer))
		if err != nil || !token.Valid || claims.UserID == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "invalid session"))
			return
		}
		ctx.Set(sessionContextKey, claims)
		ctx.Next()
	}
}

func currentUserID(ctx *gin.Context) (envelope.UserID, bool) {
	claimsValue, ok := ctx.Get(sessionContextKey)
	if !ok {
		return "", false
	}
	claims, ok := claimsValue.(*SessionClaims)
	if !ok {
		return "", false
	}
	userID, err := envelope.NewUserID(claims.UserID)
	if err != nil {
		return "", false
	}
	return userID, true
}
