package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/florianilch/pavlok"
	"github.com/florianilch/pavlok/internal/stimulus"
)

// App wires configuration into a Pavlok client and runs single commands against it.
type App struct {
	cfg    *Config
	client *pavlok.Client
}

// New creates a new App instance. Extra options are applied after the
// configured ones.
func New(ctx context.Context, cfg *Config, opts ...pavlok.Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := cfg.Auth.NewTokenStore()
	if err != nil {
		return nil, fmt.Errorf("failed to create token store: %w", err)
	}

	clientOpts := []pavlok.Option{
		pavlok.WithTokenStore(store),
		pavlok.WithBaseURL(cfg.Upstream.BaseURL),
		pavlok.WithCallbackAddress(cfg.Callback.Address()),
		pavlok.WithLoginTimeout(cfg.Auth.LoginTimeout),
		pavlok.WithVerbose(cfg.Verbose),
	}
	client, err := pavlok.New(ctx, append(clientOpts, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return &App{
		cfg:    cfg,
		client: client,
	}, nil
}

// State returns the client's login state.
func (a *App) State() pavlok.State {
	return a.client.State()
}

// Login blocks until the login resolved or ctx is done.
func (a *App) Login(ctx context.Context) (string, error) {
	slog.DebugContext(ctx, "logging in", "client_id", a.cfg.Auth.ClientID)

	select {
	case res := <-a.client.Login(ctx, a.cfg.Auth.ClientID, a.cfg.Auth.ClientSecret):
		if res.Err != nil {
			return "", fmt.Errorf("login: %w", res.Err)
		}
		return res.Token, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Logout removes the stored token.
func (a *App) Logout(ctx context.Context) error {
	if err := a.client.Logout(ctx); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// Stimulate sends one stimulus of the given kind.
func (a *App) Stimulate(ctx context.Context, kind stimulus.Kind, intensity int) (string, error) {
	var send func(context.Context, int) (string, error)
	switch kind {
	case stimulus.Beep:
		send = a.client.Beep
	case stimulus.Vibration:
		send = a.client.Vibrate
	case stimulus.Shock:
		send = a.client.Zap
	default:
		return "", fmt.Errorf("%w: %q", stimulus.ErrUnknownKind, kind)
	}

	msg, err := send(ctx, intensity)
	if err != nil {
		return "", fmt.Errorf("%s: %w", kind, err)
	}
	return msg, nil
}
