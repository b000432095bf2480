package authflow

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// DefaultBaseURL is the Pavlok API host serving both OAuth2 and the stimulus API.
const DefaultBaseURL = "http://pavlok-mvp.herokuapp.com"

// ErrNoToken is returned when the token endpoint answers without an access token.
var ErrNoToken = errors.New("token endpoint returned no access token")

// NewEndpoint returns the OAuth2 endpoints served under the API base URL.
func NewEndpoint(baseURL string) oauth2.Endpoint {
	base := strings.TrimRight(baseURL, "/")
	return oauth2.Endpoint{
		AuthURL:   base + "/oauth/authorize",
		TokenURL:  base + "/oauth/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
}

// AuthorizerOption configures an Authorizer.
type AuthorizerOption func(*authorizerConfig)

// authorizerConfig holds configuration for NewAuthorizer.
type authorizerConfig struct {
	baseTransport http.RoundTripper
	timeout       time.Duration
}

// WithTransport sets a custom base transport for token exchange requests.
// If not provided, http.DefaultTransport is used.
func WithTransport(transport http.RoundTripper) AuthorizerOption {
	return func(c *authorizerConfig) {
		c.baseTransport = transport
	}
}

// WithExchangeTimeout bounds a single token exchange. Defaults to 30 seconds.
func WithExchangeTimeout(timeout time.Duration) AuthorizerOption {
	return func(c *authorizerConfig) {
		c.timeout = timeout
	}
}

// Authorizer drives the authorization-code grant for one client registration.
type Authorizer struct {
	config     *oauth2.Config
	httpClient *http.Client
}

// NewAuthorizer creates an Authorizer that redirects the browser back to redirectURL.
func NewAuthorizer(endpoint oauth2.Endpoint, clientID, clientSecret, redirectURL string, opts ...AuthorizerOption) *Authorizer {
	cfg := &authorizerConfig{
		baseTransport: http.DefaultTransport,
		timeout:       30 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &Authorizer{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     endpoint,
		},
		httpClient: &http.Client{
			Timeout:   cfg.timeout,
			Transport: cfg.baseTransport,
		},
	}
}

// AuthCodeURL returns the authorization endpoint URL the browser is sent to.
func (a *Authorizer) AuthCodeURL(state string) string {
	return a.config.AuthCodeURL(state)
}

// Exchange trades an authorization code for a token.
// A response without an access token is reported as ErrNoToken.
func (a *Authorizer) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	// oauth2 picks up a custom HTTP client from the context (oauth2.HTTPClient key)
	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)

	token, err := a.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchanging authorization code: %w", err)
	}
	if token == nil || token.AccessToken == "" {
		return nil, ErrNoToken
	}
	return token, nil
}
