package stimulus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// timeLayout matches the ISO-8601 form the API receives for the time parameter.
const timeLayout = "2006-01-02T15:04:05.000Z"

// Credentials exposes the session state the gateway needs.
type Credentials interface {
	// Snapshot returns the current token ("" if none) and whether a login is pending.
	Snapshot() (token string, signingIn bool)
	// Invalidate drops token after the API rejected it.
	Invalidate(ctx context.Context, token string) error
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithHTTPClient sets the client used for stimulus requests.
func WithHTTPClient(client *http.Client) Option {
	return func(g *Gateway) {
		g.client = client
	}
}

// WithLogger sets the gateway logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// WithClock replaces the source of the request timestamp.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) {
		g.now = now
	}
}

// Gateway sends stimulus commands on behalf of an authenticated session.
type Gateway struct {
	baseURL *url.URL
	creds   Credentials
	client  *http.Client
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a Gateway for the API at baseURL.
func New(creds Credentials, baseURL string, opts ...Option) (*Gateway, error) {
	if creds == nil {
		return nil, fmt.Errorf("missing credentials")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid API base URL %q: scheme must be http or https", baseURL)
	}

	g := &Gateway{
		baseURL: u,
		creds:   creds,
		client:  http.DefaultClient,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Beep sends a beep of the given intensity.
func (g *Gateway) Beep(ctx context.Context, intensity int) (string, error) {
	return g.Perform(ctx, Request{Kind: Beep, Intensity: intensity})
}

// Vibrate sends a vibration of the given intensity.
func (g *Gateway) Vibrate(ctx context.Context, intensity int) (string, error) {
	return g.Perform(ctx, Request{Kind: Vibration, Intensity: intensity})
}

// Zap sends a shock of the given intensity.
func (g *Gateway) Zap(ctx context.Context, intensity int) (string, error) {
	return g.Perform(ctx, Request{Kind: Shock, Intensity: intensity})
}

// Perform sends one stimulus and returns a short confirmation such as "beep sent".
//
// Preconditions are checked in order without touching the network: a pending
// login, a missing token, then the request itself. A 401 response clears the
// token and yields ErrTokenExpired. Nothing is retried.
func (g *Gateway) Perform(ctx context.Context, req Request) (string, error) {
	g.logger.DebugContext(ctx, "sending stimulus", "kind", req.Kind, "intensity", req.Intensity)

	token, signingIn := g.creds.Snapshot()
	if signingIn {
		return "", ErrLoginInProgress
	}
	if token == "" {
		return "", ErrNotAuthenticated
	}
	if err := req.Validate(); err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint(req, token), nil)
	if err != nil {
		return "", fmt.Errorf("building %s request: %w", req.Kind, err)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", &TransportError{Kind: req.Kind, Err: redact(err, token)}
	}
	defer func() { _ = resp.Body.Close() }()
	// Drain so the connection can be reused
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	switch resp.StatusCode {
	case http.StatusOK:
		g.logger.InfoContext(ctx, "stimulus sent", "kind", req.Kind, "intensity", req.Intensity)
		return string(req.Kind) + " sent", nil
	case http.StatusUnauthorized:
		g.logger.WarnContext(ctx, "token rejected", "kind", req.Kind)
		if err := g.creds.Invalidate(ctx, token); err != nil {
			return "", errors.Join(ErrTokenExpired, err)
		}
		return "", ErrTokenExpired
	default:
		return "", &UnexpectedStatusError{Kind: req.Kind, StatusCode: resp.StatusCode}
	}
}

func (g *Gateway) endpoint(req Request, token string) string {
	u := *g.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/api/v1/stimuli/" + string(req.Kind) + "/" + strconv.Itoa(req.Intensity)
	u.RawPath = ""
	u.RawQuery = url.Values{
		"access_token": {token},
		"time":         {g.now().UTC().Format(timeLayout)},
	}.Encode()
	return u.String()
}

// redact strips the access token from errors that embed the request URL.
func redact(err error, token string) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &url.Error{
			Op:  urlErr.Op,
			URL: strings.ReplaceAll(urlErr.URL, url.QueryEscape(token), "REDACTED"),
			Err: urlErr.Err,
		}
	}
	return err
}
