package http

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"
)

const (
	sessionName  = "storefront"
	sessionIDKey = "sid"
)

type sessionCtxKey struct{}

// SessionMiddleware gives every visitor a stable session id, kept in a
// signed cookie. The id is the key of the visitor's cart and wishlist.
func SessionMiddleware(store sessions.Store, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Get returns a fresh session alongside the error for a bad cookie.
			session, err := store.Get(r, sessionName)
			if err != nil {
				log.Debug("discarding invalid session cookie", zap.Error(err))
			}

			id, _ := session.Values[sessionIDKey].(string)
			if id == "" {
				id = uuid.NewString()
				session.Values[sessionIDKey] = id
				if err := session.Save(r, w); err != nil {
					log.Error("failed to save session", zap.Error(err))
				}
			}

			ctx := context.WithValue(r.Context(), sessionCtxKey{}, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func getSessionID(ctx context.Context) string {
	if id, ok := ctx.Value(sessionCtxKey{}).(string); ok {
		return id
	}
	return ""
}
