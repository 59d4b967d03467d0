package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

type contextKey string

const subjectKey contextKey = "admin_subject"

// AuthMiddleware guards the admin endpoints with HS256 bearer tokens. An
// empty secret rejects everything; the admin surface is then effectively
// disabled.
type AuthMiddleware struct {
	secret []byte
}

func NewAuthMiddleware(secret string) *AuthMiddleware {
	return &AuthMiddleware{secret: []byte(secret)}
}

func (a *AuthMiddleware) extractSubject(r *http.Request) (string, error) {
	if len(a.secret) == 0 {
		return "", fmt.Errorf("admin auth not configured")
	}

	header := r.Header.Get("Authorization")
	if header == "" {
		return "", fmt.Errorf("missing Authorization header")
	}
	tokenStr := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))

	token, err := jwtlib.Parse(tokenStr, func(token *jwtlib.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid token claims")
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", fmt.Errorf("token missing sub claim")
	}
	return sub, nil
}

func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sub, err := a.extractSubject(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		ctx := context.WithValue(r.Context(), subjectKey, sub)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SubjectFromContext returns the authenticated admin subject, if any.
func SubjectFromContext(ctx context.Context) string {
	v, _ := ctx.Value(subjectKey).(string)
	return v
}
