package pavlok

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/florianilch/pavlok/internal/authflow"
	"github.com/florianilch/pavlok/internal/session"
	"github.com/florianilch/pavlok/internal/stimulus"
	"github.com/florianilch/pavlok/internal/tokenstore"
)

// Defaults used when the corresponding option is not given.
const (
	DefaultBaseURL         = authflow.DefaultBaseURL
	DefaultCallbackAddress = authflow.DefaultAddress
	DefaultTokenFile       = "./" + tokenstore.DefaultFileName
	DefaultLoginTimeout    = session.DefaultLoginTimeout
)

// Errors reported by Client methods. Test with errors.Is.
var (
	ErrLoginInProgress      = session.ErrLoginInProgress
	ErrNotAuthenticated     = session.ErrNotAuthenticated
	ErrAuth                 = session.ErrAuth
	ErrLoginTimeout         = session.ErrLoginTimeout
	ErrIntensityOutOfBounds = stimulus.ErrIntensityOutOfBounds
	ErrTokenExpired         = stimulus.ErrTokenExpired
	ErrReadOnlyStorage      = tokenstore.ErrReadOnly
)

type (
	// TokenStore persists the access token.
	TokenStore = tokenstore.TokenStore
	// Credential is the persisted token record.
	Credential = tokenstore.Credential
	// StorageError reports that the token record could not be accessed.
	StorageError = tokenstore.StorageError
	// LoginResult carries the token or the failure of a login.
	LoginResult = session.LoginResult
	// State is the login lifecycle state.
	State = session.State
	// UnexpectedStatusError reports an API response other than 200 or 401.
	UnexpectedStatusError = stimulus.UnexpectedStatusError
	// TransportError reports a network failure during a stimulus request.
	TransportError = stimulus.TransportError
)

// Login lifecycle states.
const (
	StateIdle             = session.StateIdle
	StateAwaitingCallback = session.StateAwaitingCallback
	StateAuthenticated    = session.StateAuthenticated
	StateFailed           = session.StateFailed
)

// Option configures a Client.
type Option func(*options)

type options struct {
	store           TokenStore
	tokenFile       string
	baseURL         string
	callbackAddress string
	httpClient      *http.Client
	browser         func(url string) error
	loginTimeout    time.Duration
	logger          *slog.Logger
	verbose         bool
}

// WithTokenStore sets the token storage backend. Overrides WithTokenFile.
func WithTokenStore(store TokenStore) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithTokenFile sets the path of the JSON token record.
func WithTokenFile(path string) Option {
	return func(o *options) {
		o.tokenFile = path
	}
}

// WithBaseURL sets the API base URL serving OAuth2 and the stimulus API.
func WithBaseURL(baseURL string) Option {
	return func(o *options) {
		o.baseURL = baseURL
	}
}

// WithCallbackAddress sets the local host:port the OAuth redirect is received on.
// It must match the redirect URI registered for the client.
func WithCallbackAddress(address string) Option {
	return func(o *options) {
		o.callbackAddress = address
	}
}

// WithHTTPClient sets the client for stimulus requests and token exchange.
// A nil client selects http.DefaultClient.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		if client == nil {
			client = http.DefaultClient
		}
		o.httpClient = client
	}
}

// WithBrowser replaces the function that opens the login URL.
func WithBrowser(open func(url string) error) Option {
	return func(o *options) {
		o.browser = open
	}
}

// WithLoginTimeout bounds how long Login waits for the browser redirect.
func WithLoginTimeout(timeout time.Duration) Option {
	return func(o *options) {
		o.loginTimeout = timeout
	}
}

// WithLogger sets the logger used when verbose output is enabled.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithVerbose enables debug logging. Without it the client logs nothing.
func WithVerbose(verbose bool) Option {
	return func(o *options) {
		o.verbose = verbose
	}
}

// Client is a single-user handle on the Pavlok API.
type Client struct {
	session *session.Session
	gateway *stimulus.Gateway
}

// New creates a Client and loads any stored token.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	o := &options{
		tokenFile:       DefaultTokenFile,
		baseURL:         DefaultBaseURL,
		callbackAddress: DefaultCallbackAddress,
		httpClient:      http.DefaultClient,
		browser:         authflow.OpenBrowser,
		loginTimeout:    DefaultLoginTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}

	logger := slog.New(slog.DiscardHandler)
	if o.verbose {
		logger = o.logger
		if logger == nil {
			logger = slog.Default()
		}
		logger = logger.With("component", "pavlok")
	}

	store := o.store
	if store == nil {
		fileStore, err := tokenstore.NewFileStore(o.tokenFile, tokenstore.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to create token store: %w", err)
		}
		store = fileStore
	}

	transport := o.httpClient.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	sess, err := session.New(ctx, store,
		session.WithAuthBaseURL(o.baseURL),
		session.WithCallbackAddress(o.callbackAddress),
		session.WithTransport(transport),
		session.WithBrowser(o.browser),
		session.WithLoginTimeout(o.loginTimeout),
		session.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	gateway, err := stimulus.New(sess, o.baseURL,
		stimulus.WithHTTPClient(o.httpClient),
		stimulus.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway: %w", err)
	}

	return &Client{
		session: sess,
		gateway: gateway,
	}, nil
}

// Login returns a channel that receives exactly one LoginResult. A stored
// token is delivered immediately; otherwise the browser is opened and the
// result arrives once the authorization redirect resolves.
func (c *Client) Login(ctx context.Context, clientID, clientSecret string) <-chan LoginResult {
	return c.session.Login(ctx, clientID, clientSecret)
}

// Logout deletes the stored token.
func (c *Client) Logout(ctx context.Context) error {
	return c.session.Logout(ctx)
}

// State returns the login lifecycle state.
func (c *Client) State() State {
	return c.session.State()
}

// Beep sends a beep with intensity in [1, 255].
func (c *Client) Beep(ctx context.Context, intensity int) (string, error) {
	return c.gateway.Beep(ctx, intensity)
}

// Vibrate sends a vibration with intensity in [1, 255].
func (c *Client) Vibrate(ctx context.Context, intensity int) (string, error) {
	return c.gateway.Vibrate(ctx, intensity)
}

// Zap sends a shock with intensity in [1, 255].
func (c *Client) Zap(ctx context.Context, intensity int) (string, error) {
	return c.gateway.Zap(ctx, intensity)
}
