package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/KuldeepJha5176/chat-application/internal/auth"
)

// NewAuthMiddleware verifies the bearer credential and stamps the resolved
// identity into the request metadata. REST clients send an Authorization
// header; the websocket handshake carries the token as a query parameter
// because browsers cannot set headers on an upgrade request.
func NewAuthMiddleware(logger *slog.Logger, verifier *auth.Verifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqMeta, ok := ReqMetadataFrom(r.Context())
			if !ok {
				// previous middlewares did not run; wiring bug
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			tokenString := bearerToken(r)
			identity, err := verifier.Verify(r.Context(), tokenString)
			if err != nil {
				var vErr *auth.VerifyError
				if errors.As(err, &vErr) {
					logger.Warn("rejected unauthenticated request",
						slog.String("ip", reqMeta.IP),
						slog.String("reason", vErr.Reason),
					)
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
					return
				}
				logger.Error("token verification failed", slog.Any("error", err))
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			reqMeta.UserID = identity
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
