package authflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultAddress is where the client registration expects the redirect.
	DefaultAddress = "localhost:3000"
	// DefaultProvider names the /auth/{provider} routes.
	DefaultProvider = "pavlok"

	shutdownTimeout = 5 * time.Second
)

var (
	// ErrMissingCode is reported when the redirect carries neither a code nor an error.
	ErrMissingCode = errors.New("authorization redirect carried no code")
	// ErrStateMismatch is reported when the redirect's state does not match the receiver's.
	ErrStateMismatch = errors.New("authorization redirect state mismatch")
)

// AuthorizationError is an error returned by the authorization endpoint
// through the redirect (e.g. access_denied).
type AuthorizationError struct {
	Code        string
	Description string
}

func (e *AuthorizationError) Error() string {
	if e.Description == "" {
		return "authorization failed: " + e.Code
	}
	return fmt.Sprintf("authorization failed: %s: %s", e.Code, e.Description)
}

// Result is what the browser redirect delivered: an authorization code or an error.
type Result struct {
	Code string
	Err  error
}

// ResultHandler consumes an authorization result. A nil return sends the
// browser to the success page, anything else to the error page.
type ResultHandler func(ctx context.Context, res Result) error

// ReceiverOption configures a Receiver.
type ReceiverOption func(*Receiver)

// WithLogger sets the logger for request logging. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) ReceiverOption {
	return func(r *Receiver) {
		r.logger = logger
	}
}

// Receiver is the local HTTP listener that receives the OAuth redirect.
type Receiver struct {
	provider string
	host     string
	state    string
	logger   *slog.Logger

	listener net.Listener
	server   *http.Server

	// resolved is set once a redirect with the expected state reached the result handler
	resolved     atomic.Bool
	finished     chan struct{}
	finishedOnce sync.Once
}

// Listen binds the receiver's address synchronously so port-in-use errors
// surface before the browser is opened. Serve starts handling requests.
func Listen(address, provider string, opts ...ReceiverOption) (*Receiver, error) {
	if provider == "" {
		return nil, fmt.Errorf("provider cannot be empty")
	}
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return nil, fmt.Errorf("invalid callback address %q: %w", address, err)
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	r := &Receiver{
		provider: provider,
		host:     host,
		state:    uuid.NewString(),
		logger:   slog.Default(),
		listener: listener,
		finished: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Addr returns the bound listener address.
func (r *Receiver) Addr() net.Addr {
	return r.listener.Addr()
}

// LoginURL is the local URL that starts the flow; it redirects to the authorization endpoint.
func (r *Receiver) LoginURL() string {
	return r.baseURL() + "/auth/" + r.provider
}

// RedirectURL is the redirect_uri registered with the authorization server.
func (r *Receiver) RedirectURL() string {
	return r.baseURL() + "/auth/" + r.provider + "/result"
}

// State returns the anti-forgery state parameter expected on the redirect.
func (r *Receiver) State() string {
	return r.state
}

// Finished is closed once the browser was shown the success or error page
// following a redirect that reached the result handler. Pages served after a
// rejected state do not count.
func (r *Receiver) Finished() <-chan struct{} {
	return r.finished
}

func (r *Receiver) baseURL() string {
	_, port, _ := net.SplitHostPort(r.listener.Addr().String())
	return "http://" + net.JoinHostPort(r.host, port)
}

// Serve handles requests in the background and returns immediately.
// The returned channel reports a runtime failure and is closed once the
// receiver stopped, either through Shutdown or cancellation of ctx.
func (r *Receiver) Serve(ctx context.Context, authCodeURL func(state string) string, onResult ResultHandler) <-chan error {
	r.server = &http.Server{
		Handler:           r.routes(authCodeURL, onResult),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	g, gCtx := errgroup.WithContext(ctx)
	stopped := make(chan struct{})

	g.Go(func() error {
		defer close(stopped)
		if err := r.server.Serve(r.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("callback receiver: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-gCtx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = r.Shutdown(shutdownCtx)
		case <-stopped:
		}
		return nil
	})

	errCh := make(chan error, 1)
	go func() {
		if err := g.Wait(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown stops the listener, waiting for in-flight requests until ctx expires.
func (r *Receiver) Shutdown(ctx context.Context) error {
	if r.server == nil {
		return r.listener.Close()
	}

	if err := r.server.Shutdown(ctx); err != nil {
		// Graceful shutdown failed - force close
		_ = r.server.Close()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func (r *Receiver) routes(authCodeURL func(state string) string, onResult ResultHandler) http.Handler {
	mux := http.NewServeMux()
	loginPath := "/auth/" + r.provider

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, req *http.Request) {
		http.Redirect(w, req, loginPath, http.StatusFound)
	})

	mux.HandleFunc("GET "+loginPath, func(w http.ResponseWriter, req *http.Request) {
		http.Redirect(w, req, authCodeURL(r.state), http.StatusFound)
	})

	mux.HandleFunc("GET "+loginPath+"/result", func(w http.ResponseWriter, req *http.Request) {
		query := req.URL.Query()
		if query.Get("state") != r.state {
			// Forged or stale redirect; the pending login keeps waiting
			r.logger.WarnContext(req.Context(), "rejecting authorization redirect", "error", ErrStateMismatch)
			http.Redirect(w, req, "/error", http.StatusFound)
			return
		}

		res := Result{Code: query.Get("code")}
		switch {
		case query.Get("error") != "":
			res = Result{Err: &AuthorizationError{
				Code:        query.Get("error"),
				Description: query.Get("error_description"),
			}}
		case res.Code == "":
			res.Err = ErrMissingCode
		}

		err := onResult(req.Context(), res)
		r.resolved.Store(true)
		if err != nil {
			r.logger.DebugContext(req.Context(), "authorization result rejected", "error", err)
			http.Redirect(w, req, "/error", http.StatusFound)
			return
		}
		http.Redirect(w, req, "/done", http.StatusFound)
	})

	mux.HandleFunc("GET /done", func(w http.ResponseWriter, req *http.Request) {
		writeDonePage(w)
		r.markFinished()
	})

	mux.HandleFunc("GET /error", func(w http.ResponseWriter, req *http.Request) {
		writeErrorPage(w)
		r.markFinished()
	})

	return applyMiddlewares(mux,
		Logging(r.logger),
		Recovery,
	)
}

// markFinished closes Finished, but only after the result handler ran.
func (r *Receiver) markFinished() {
	if !r.resolved.Load() {
		return
	}
	r.finishedOnce.Do(func() { close(r.finished) })
}
