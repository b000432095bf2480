package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/florianilch/pavlok/internal/authflow"
	"github.com/florianilch/pavlok/internal/tokenstore"
)

const (
	// DefaultLoginTimeout bounds how long a login waits for the browser redirect.
	DefaultLoginTimeout = 5 * time.Minute

	// pageGrace is how long the receiver stays up for the browser to load the
	// success or error page after the login resolved.
	pageGrace = 5 * time.Second

	shutdownTimeout = 5 * time.Second
)

// Authorizer builds the authorization URL and exchanges codes for tokens.
type Authorizer interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
}

// Receiver is the local listener that receives the authorization redirect.
type Receiver interface {
	LoginURL() string
	RedirectURL() string
	Serve(ctx context.Context, authCodeURL func(state string) string, onResult authflow.ResultHandler) <-chan error
	Finished() <-chan struct{}
	Shutdown(ctx context.Context) error
}

// AuthorizerFactory creates an Authorizer for one login attempt.
type AuthorizerFactory func(clientID, clientSecret, redirectURL string) Authorizer

// ReceiverFactory binds a Receiver for one login attempt.
type ReceiverFactory func() (Receiver, error)

// Option configures a Session.
type Option func(*Session)

// WithCallbackAddress sets the local address the redirect is received on.
func WithCallbackAddress(address string) Option {
	return func(s *Session) {
		s.callbackAddress = address
	}
}

// WithAuthBaseURL sets the base URL of the OAuth2 authorization server.
func WithAuthBaseURL(baseURL string) Option {
	return func(s *Session) {
		s.authBaseURL = baseURL
	}
}

// WithTransport sets the base transport for token exchange requests.
func WithTransport(transport http.RoundTripper) Option {
	return func(s *Session) {
		s.transport = transport
	}
}

// WithBrowser replaces the function that opens the login URL.
func WithBrowser(open func(url string) error) Option {
	return func(s *Session) {
		s.openBrowser = open
	}
}

// WithLoginTimeout bounds the wait for the authorization redirect.
func WithLoginTimeout(timeout time.Duration) Option {
	return func(s *Session) {
		s.loginTimeout = timeout
	}
}

// WithLogger sets the session logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// Session holds the current token and the signing-in guard.
type Session struct {
	store  tokenstore.TokenStore
	logger *slog.Logger

	callbackAddress string
	authBaseURL     string
	transport       http.RoundTripper
	openBrowser     func(url string) error
	loginTimeout    time.Duration
	newAuthorizer   AuthorizerFactory
	listen          ReceiverFactory

	mu        sync.Mutex
	state     State
	token     string
	signingIn bool
	attempt   *attempt
}

// attempt is one pending login. Its fields other than the channels are guarded by Session.mu.
type attempt struct {
	results   chan LoginResult
	done      chan struct{}
	completed bool
}

// New creates a Session and loads the persisted token from store.
// The session starts Authenticated when a token was loaded, Idle otherwise.
func New(ctx context.Context, store tokenstore.TokenStore, opts ...Option) (*Session, error) {
	if store == nil {
		return nil, fmt.Errorf("missing token store")
	}

	s := &Session{
		store:           store,
		logger:          slog.Default(),
		callbackAddress: authflow.DefaultAddress,
		authBaseURL:     authflow.DefaultBaseURL,
		transport:       http.DefaultTransport,
		openBrowser:     authflow.OpenBrowser,
		loginTimeout:    DefaultLoginTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.newAuthorizer == nil {
		endpoint := authflow.NewEndpoint(s.authBaseURL)
		s.newAuthorizer = func(clientID, clientSecret, redirectURL string) Authorizer {
			return authflow.NewAuthorizer(endpoint, clientID, clientSecret, redirectURL, authflow.WithTransport(s.transport))
		}
	}
	if s.listen == nil {
		s.listen = func() (Receiver, error) {
			return authflow.Listen(s.callbackAddress, authflow.DefaultProvider, authflow.WithLogger(s.logger))
		}
	}

	cred, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading token: %w", err)
	}
	if cred.HasToken() {
		s.token = cred.Value()
		s.state = StateAuthenticated
	}

	return s, nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns the current token ("" if none) and whether a login is pending.
func (s *Session) Snapshot() (token string, signingIn bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, s.signingIn
}

// Login returns a channel that receives exactly one LoginResult.
//
// A held token is delivered immediately without network activity. A login
// already in flight is rejected with ErrLoginInProgress. Otherwise the
// callback receiver is started, the browser is sent to the login URL and
// Login returns; the result arrives once the redirect resolves, the login
// times out, or ctx is canceled.
func (s *Session) Login(ctx context.Context, clientID, clientSecret string) <-chan LoginResult {
	results := make(chan LoginResult, 1)

	s.mu.Lock()
	if s.state == StateAuthenticated && s.token != "" {
		token := s.token
		s.mu.Unlock()
		s.logger.DebugContext(ctx, "token loaded from storage, skipping login")
		results <- LoginResult{Token: token}
		return results
	}
	if s.signingIn {
		s.mu.Unlock()
		results <- LoginResult{Err: ErrLoginInProgress}
		return results
	}
	a := &attempt{results: results, done: make(chan struct{})}
	s.attempt = a
	s.signingIn = true
	s.state = StateAwaitingCallback
	s.mu.Unlock()

	s.logger.DebugContext(ctx, "no stored token, starting login")
	if err := s.begin(ctx, a, clientID, clientSecret); err != nil {
		_ = s.complete(ctx, a, "", err)
	}
	return results
}

// begin starts the receiver and opens the browser. The attempt is resolved by
// the redirect handler or by supervise.
func (s *Session) begin(ctx context.Context, a *attempt, clientID, clientSecret string) error {
	if clientID == "" {
		return errors.New("client id cannot be empty")
	}

	rcv, err := s.listen()
	if err != nil {
		return fmt.Errorf("starting callback receiver: %w", err)
	}
	auth := s.newAuthorizer(clientID, clientSecret, rcv.RedirectURL())

	attemptCtx, cancel := context.WithCancel(ctx)
	errCh := rcv.Serve(attemptCtx, auth.AuthCodeURL, s.onAuthorizationResult(a, auth))

	loginURL := rcv.LoginURL()
	s.logger.InfoContext(ctx, "waiting for authorization", "url", loginURL, "timeout", s.loginTimeout)
	if err := s.openBrowser(loginURL); err != nil {
		s.logger.WarnContext(ctx, "could not open browser, visit the URL manually", "url", loginURL, "error", err)
	}

	go s.supervise(attemptCtx, cancel, a, rcv, errCh)
	return nil
}

// supervise resolves the attempt on timeout, cancellation or receiver failure,
// then releases the receiver.
func (s *Session) supervise(ctx context.Context, cancel context.CancelFunc, a *attempt, rcv Receiver, errCh <-chan error) {
	defer cancel()

	timer := time.NewTimer(s.loginTimeout)
	defer timer.Stop()

	resolved := false
	select {
	case <-a.done:
		resolved = true
	case err, ok := <-errCh:
		switch {
		case !ok && ctx.Err() != nil:
			err = ctx.Err()
		case !ok:
			err = errors.New("callback receiver stopped")
		}
		_ = s.complete(ctx, a, "", err)
	case <-timer.C:
		_ = s.complete(ctx, a, "", ErrLoginTimeout)
	case <-ctx.Done():
		_ = s.complete(ctx, a, "", ctx.Err())
	}

	if resolved {
		// Give the browser a chance to load the indicator page
		grace := time.NewTimer(pageGrace)
		select {
		case <-rcv.Finished():
		case <-grace.C:
		case <-ctx.Done():
		}
		grace.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := rcv.Shutdown(shutdownCtx); err != nil {
		s.logger.WarnContext(shutdownCtx, "callback receiver shutdown failed", "error", err)
	}
}

// onAuthorizationResult exchanges the code carried by the redirect and
// resolves the attempt.
func (s *Session) onAuthorizationResult(a *attempt, auth Authorizer) authflow.ResultHandler {
	return func(ctx context.Context, res authflow.Result) error {
		if !s.pending(a) {
			return ErrNoLoginPending
		}
		if res.Err != nil {
			return s.complete(ctx, a, "", res.Err)
		}

		token, err := auth.Exchange(ctx, res.Code)
		if err != nil {
			return s.complete(ctx, a, "", err)
		}
		if token == nil || token.AccessToken == "" {
			return s.complete(ctx, a, "", authflow.ErrNoToken)
		}
		return s.complete(ctx, a, token.AccessToken, nil)
	}
}

func (s *Session) pending(a *attempt) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt == a && !a.completed
}

// complete resolves the attempt once and returns the error delivered to the
// caller. A late call for an already resolved attempt returns ErrNoLoginPending.
func (s *Session) complete(ctx context.Context, a *attempt, token string, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.attempt != a || a.completed {
		return ErrNoLoginPending
	}
	a.completed = true
	s.attempt = nil
	s.signingIn = false

	// The persisted record must follow the outcome even if the caller gave up
	ctx = context.WithoutCancel(ctx)

	if err == nil {
		s.logger.DebugContext(ctx, "saving token")
		if saveErr := s.store.Save(ctx, token); saveErr != nil {
			err = saveErr
		}
	} else {
		var storageErr *tokenstore.StorageError
		if !errors.As(err, &storageErr) && !errors.Is(err, ErrAuth) {
			err = fmt.Errorf("%w: %w", ErrAuth, err)
		}
		if saveErr := s.store.Save(ctx, ""); saveErr != nil {
			err = errors.Join(err, saveErr)
		}
	}

	if err != nil {
		s.logger.DebugContext(ctx, "login failed", "error", err)
		s.token = ""
		s.state = StateFailed
		a.results <- LoginResult{Err: err}
	} else {
		s.logger.InfoContext(ctx, "login succeeded")
		s.token = token
		s.state = StateAuthenticated
		a.results <- LoginResult{Token: token}
	}
	close(a.done)
	return err
}

// Logout clears the persisted token and forgets the in-memory copy.
// It is rejected while a login is pending.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.signingIn {
		return ErrLoginInProgress
	}
	if err := s.store.Clear(ctx); err != nil {
		return err
	}
	s.token = ""
	s.state = StateIdle
	return nil
}

// Invalidate drops token after the API rejected it. A token that was already
// replaced or cleared is left alone.
func (s *Session) Invalidate(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token == "" || s.token != token {
		return nil
	}
	s.logger.InfoContext(ctx, "token rejected by API, clearing")
	s.token = ""
	s.state = StateIdle
	return s.store.Clear(ctx)
}
