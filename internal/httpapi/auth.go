package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const dispatcherContextKey contextKey = "dispatcher"

// DispatcherClaims are the claims of a dispatcher API token. The subject is
// the dispatcher's user id and is recorded as a call's initiated_by.
type DispatcherClaims struct {
	jwt.RegisteredClaims
	Name string `json:"name,omitempty"`
}

// Dispatcher is the authenticated caller of the API.
type Dispatcher struct {
	ID   string
	Name string
}

// IssueToken signs a dispatcher token with HS256.
func IssueToken(secret, subject, name string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := DispatcherClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Name: name,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// withAuth requires a valid bearer token
func (r *Router) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if r.cfg.JWTSecret == "" {
			writeError(w, http.StatusServiceUnavailable, "authentication not configured")
			return
		}

		authHeader := req.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, "missing authorization header")
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			writeError(w, http.StatusUnauthorized, "invalid authorization format")
			return
		}

		token, err := jwt.ParseWithClaims(parts[1], &DispatcherClaims{}, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(r.cfg.JWTSecret), nil
		}, jwt.WithExpirationRequired())
		if err != nil || !token.Valid {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		claims, ok := token.Claims.(*DispatcherClaims)
		if !ok || claims.Subject == "" {
			writeError(w, http.StatusUnauthorized, "invalid token claims")
			return
		}

		d := &Dispatcher{ID: claims.Subject, Name: claims.Name}
		ctx := context.WithValue(req.Context(), dispatcherContextKey, d)
		next.ServeHTTP(w, req.WithContext(ctx))
	}
}

func dispatcherFrom(ctx context.Context) *Dispatcher {
	d, _ := ctx.Value(dispatcherContextKey).(*Dispatcher)
	return d
}
