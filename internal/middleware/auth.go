package middleware

import (
	"context"
	"net/http"
	"strings"

	"firebase.google.com/go/v4/auth"
)

const (
	UserIDKey contextKey = "userID"
	AuthKey   contextKey = "auth"

	// tokenCookie carries the ID token for websocket upgrades, which cannot
	// set an Authorization header from a browser.
	tokenCookie = "firebase_token"
)

// AuthInfo contains authenticated user information
type AuthInfo struct {
	UserID string
	Email  string
}

// TokenVerifier verifies Firebase ID tokens. *auth.Client implements it.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// AuthMiddleware validates Firebase Auth tokens
type AuthMiddleware struct {
	verifier TokenVerifier
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(verifier TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier}
}

// RequireAuth rejects requests without a valid bearer token or token cookie.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var token string
		if authHeader := r.Header.Get("Authorization"); authHeader != "" {
			// Expected format: "Bearer <token>"
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
				WriteError(w, http.StatusUnauthorized, "Invalid authorization header format")
				return
			}
			token = parts[1]
		} else if cookie, err := r.Cookie(tokenCookie); err == nil && cookie.Value != "" {
			token = cookie.Value
		}

		if token == "" {
			WriteError(w, http.StatusUnauthorized, "Missing authorization header")
			return
		}

		decodedToken, err := m.verifier.VerifyIDToken(r.Context(), token)
		if err != nil {
			WriteError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		authInfo := AuthInfo{
			UserID: decodedToken.UID,
		}
		if claims, ok := decodedToken.Claims["email"].(string); ok {
			authInfo.Email = claims
		}

		ctx := context.WithValue(r.Context(), AuthKey, authInfo)
		ctx = context.WithValue(ctx, UserIDKey, decodedToken.UID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetUserID extracts user ID from context
func GetUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok
}

// GetAuth retrieves auth info from the request context
func GetAuth(r *http.Request) (AuthInfo, bool) {
	if info, ok := r.Context().Value(AuthKey).(AuthInfo); ok {
		return info, true
	}
	return AuthInfo{}, false
}
