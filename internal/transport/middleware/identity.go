package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/frahmantamala/authz/internal"
	"github.com/frahmantamala/authz/pkg/logger"
	"github.com/golang-jwt/jwt/v5"
)

// identityClaims is the token payload callers present. The engine does
// not issue tokens; it only verifies signatures from the shared secret
// and trusts the embedded identity.
type identityClaims struct {
	OrganizationID *string `json:"org_id,omitempty"`
	jwt.RegisteredClaims
}

// Identity authenticates the caller from a Bearer token and stamps the
// resulting actor onto the request context. Requests without a valid
// token get 401 before reaching any handler.
func Identity(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeUnauthorized(w, "missing bearer token")
				return
			}

			claims := &identityClaims{}
			parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !parsed.Valid || claims.Subject == "" {
				writeUnauthorized(w, "invalid or expired token")
				return
			}

			actor := &internal.Actor{
				UserID:         claims.Subject,
				OrganizationID: claims.OrganizationID,
			}

			ctx := internal.ContextWithActor(r.Context(), actor)
			ctx = logger.With(ctx, "actor_id", actor.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(authHeader, "Bearer ")
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"code":    http.StatusUnauthorized,
		"message": message,
	})
}
