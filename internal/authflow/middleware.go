package authflow

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/httplog/v3"
)

// sensitiveParams are query parameters of the authorization redirect that
// must not reach the request log.
var sensitiveParams = []string{"code", "state", "access_token"}

const redacted = "REDACTED"

type originalRequestKey struct{}

// Recovery turns a handler panic into HTTP 500.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if recover() != nil {
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				// Logging of panics is handled in Logging middleware
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// Logging logs receiver requests with method, path, status, and duration.
// The authorization code and state are masked in the logged URL; handlers
// still see the request as sent.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	requestLogger := httplog.RequestLogger(logger, &httplog.Options{
		Schema: httplog.SchemaECS.Concise(true),

		// The redirect carries no useful headers; cookies never reach the log
		LogRequestHeaders:  []string{},
		LogResponseHeaders: []string{},

		RecoverPanics: false, // use dedicated middleware, panics are logged regardless
	})

	return func(next http.Handler) http.Handler {
		logged := requestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if orig, ok := r.Context().Value(originalRequestKey{}).(*http.Request); ok {
				r = orig.WithContext(r.Context())
			}
			next.ServeHTTP(w, r)
		}))

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), originalRequestKey{}, r)
			logged.ServeHTTP(w, redactRequest(r.WithContext(ctx)))
		})
	}
}

// redactRequest returns a copy of r with sensitive query values masked.
func redactRequest(r *http.Request) *http.Request {
	query := r.URL.Query()
	masked := false
	for _, name := range sensitiveParams {
		if query.Has(name) {
			query.Set(name, redacted)
			masked = true
		}
	}
	if !masked {
		return r
	}

	clone := r.Clone(r.Context())
	clone.URL.RawQuery = query.Encode()
	clone.RequestURI = clone.URL.RequestURI()
	return clone
}

// applyMiddlewares wraps h so the first middleware runs outermost.
func applyMiddlewares(h http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

