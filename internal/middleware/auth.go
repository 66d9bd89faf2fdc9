// Package middleware содержит HTTP middleware локального API агента курьера.
package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/mmeshcher/courier-agent/internal/model"
	"github.com/mmeshcher/courier-agent/internal/session"
)

type contextKey string

const courierKey contextKey = "courier"

// SessionSource отдаёт действующий токен и профиль курьера.
type SessionSource interface {
	Token(ctx context.Context) (string, error)
	Courier() (model.Courier, bool)
}

// RequireSession пропускает запрос только при действующей сессии и кладёт курьера в контекст.
// Просроченная сессия очищается источником и отклоняется с 401.
func RequireSession(s SessionSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := s.Token(r.Context()); err != nil {
				msg := http.StatusText(http.StatusUnauthorized)
				if errors.Is(err, session.ErrSessionExpired) {
					msg = err.Error()
				}
				http.Error(w, msg, http.StatusUnauthorized)
				return
			}

			courier, ok := s.Courier()
			if !ok {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), courierKey, courier)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CourierFromContext извлекает курьера, положенного RequireSession.
func CourierFromContext(ctx context.Context) (model.Courier, bool) {
	c, ok := ctx.Value(courierKey).(model.Courier)
	return c, ok
}
