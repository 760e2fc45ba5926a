package middleware

import (
	"net/http"
	"strings"

	"github.com/tamangRajkumar/backend-final-year-project/internal/logger"
)

// TokenParser проверяет токен и возвращает ID пользователя (auth.Verifier).
type TokenParser interface {
	Parse(token string) (string, error)
}

// BearerAuth берёт токен из Authorization: Bearer или из ?token= (браузерный WebSocket не умеет заголовки).
// Без валидного токена: 401.
func BearerAuth(p TokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeFailure(w, http.StatusUnauthorized, "No token, authorization denied")
				return
			}
			userID, err := p.Parse(token)
			if err != nil {
				logger.Debugf("auth: %v", err)
				writeFailure(w, http.StatusUnauthorized, "Token is not valid")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			return strings.TrimSpace(h[7:])
		}
		return ""
	}
	return r.URL.Query().Get("token")
}
