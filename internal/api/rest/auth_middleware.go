package rest

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/procuredesk/tender-evaluation-backend/internal/domain/identity"
)

// AuthConfig holds JWT validation settings.
type AuthConfig struct {
	JWTSecret   []byte
	TokenExpiry time.Duration
	Issuer      string
}

// Claims are the JWT claims the engine expects. Authentication happens at
// the edge; this middleware only verifies the token and lifts the caller
// identity into the request context.
type Claims struct {
	jwt.RegisteredClaims
	UserID uuid.UUID `json:"user_id"`
	Role   string    `json:"role"`
	Email  string    `json:"email"`
}

// AuthMiddleware provides JWT-based authentication.
type AuthMiddleware struct {
	config *AuthConfig
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(config *AuthConfig) *AuthMiddleware {
	return &AuthMiddleware{config: config}
}

// Middleware returns the authentication middleware function.
func (a *AuthMiddleware) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := a.extractToken(r)
			if err != nil {
				a.writeUnauthorized(w, "Invalid authorization header")
				return
			}

			claims, err := a.validateToken(token)
			if err != nil {
				a.writeUnauthorized(w, "Invalid or expired token")
				return
			}

			caller := identity.Caller{
				ID:    claims.UserID,
				Role:  identity.Role(claims.Role),
				Email: claims.Email,
			}

			ctx := context.WithValue(r.Context(), contextKeyCaller, caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (a *AuthMiddleware) extractToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", fmt.Errorf("missing authorization header")
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", fmt.Errorf("invalid authorization format")
	}
	return parts[1], nil
}

func (a *AuthMiddleware) validateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.config.JWTSecret, nil
	},
		jwt.WithIssuer(a.config.Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if claims.UserID == uuid.Nil {
		return nil, fmt.Errorf("token missing user identity")
	}
	return claims, nil
}

func (a *AuthMiddleware) writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
	w.WriteHeader(http.StatusUnauthorized)
	fmt.Fprintf(w, `{"error":{"code":"UNAUTHORIZED","message":%q}}`, message)
}

// IssueToken mints a token for the given caller. Exposed for tooling and
// tests; production tokens come from the identity provider.
func (a *AuthMiddleware) IssueToken(caller identity.Caller, now time.Time) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.config.Issuer,
			Subject:   caller.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.config.TokenExpiry)),
		},
		UserID: caller.ID,
		Role:   string(caller.Role),
		Email:  caller.Email,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.config.JWTSecret)
}
