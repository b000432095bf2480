package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/florianilch/pavlok"
	"github.com/florianilch/pavlok/internal/app"
	"github.com/florianilch/pavlok/internal/authflow"
	"github.com/florianilch/pavlok/internal/observability"
	"github.com/florianilch/pavlok/internal/stimulus"
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string) error {
	r := &runner{stdout: os.Stdout, stderr: os.Stderr, environ: os.Environ}
	return newRootCommand(r).Run(ctx, args)
}

func newRootCommand(r *runner) *cli.Command {
	return &cli.Command{
		Name:      "pavlokctl",
		Usage:     "Pavlok remote control",
		Writer:    r.stdout,
		ErrWriter: r.stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
				Value: slog.LevelInfo.String(),
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json|otel|otlp-http|otlp-grpc)",
				Value: string(app.DefaultConfigLogFormat),
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "log client activity",
			},
			&cli.StringFlag{
				Name:  "upstream--base-url",
				Usage: "Pavlok API base URL",
				Value: app.DefaultConfigUpstreamBaseURL,
			},
			&cli.StringFlag{
				Name:  "auth--storage",
				Usage: "token storage (file|env|keyring)",
				Value: string(app.DefaultConfigAuthStorage),
			},
			&cli.StringFlag{
				Name:  "auth--file",
				Usage: "token file path for file storage",
			},
			&cli.StringFlag{
				Name:  "auth--env-key",
				Usage: "environment variable holding the token for env storage",
			},
			&cli.StringFlag{
				Name:  "auth--keyring-user",
				Usage: "keyring user for keyring storage",
			},
		},
		After: func(ctx context.Context, _ *cli.Command) error {
			return observability.Shutdown(ctx)
		},
		Commands: []*cli.Command{
			r.loginCommand(),
			r.logoutCommand(),
			r.statusCommand(),
			r.stimulusCommand("beep", "make the device beep", stimulus.Beep),
			r.stimulusCommand("vibrate", "make the device vibrate", stimulus.Vibration),
			r.stimulusCommand("zap", "send a shock", stimulus.Shock),
		},
	}
}

// runner carries the process environment into command actions.
type runner struct {
	stdout  io.Writer
	stderr  io.Writer
	environ func() []string

	// readSecret prompts for the client secret. Nil means stdin is used when it is a terminal.
	readSecret func() (string, error)
	// browser overrides how the login URL is opened.
	browser func(url string) error
}

func (r *runner) loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "authorize this machine in the browser and store the token",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "callback--host",
				Usage: "host of the OAuth redirect listener",
				Value: app.DefaultConfigCallbackHost,
			},
			&cli.IntFlag{
				Name:  "callback--port",
				Usage: "port of the OAuth redirect listener",
				Value: app.DefaultConfigCallbackPort,
			},
			&cli.StringFlag{
				Name:  "auth--client-id",
				Usage: "OAuth2 client ID",
			},
			&cli.StringFlag{
				Name:  "auth--client-secret",
				Usage: "OAuth2 client secret (prompted for if omitted)",
			},
			&cli.DurationFlag{
				Name:  "auth--login-timeout",
				Usage: "how long to wait for the browser redirect",
				Value: app.DefaultConfigLoginTimeout,
			},
		},
		Action: r.loginAction,
	}
}

func (r *runner) loginAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := r.setup(cmd)
	if err != nil {
		return err
	}
	if cfg.Auth.ClientID == "" {
		return errors.New("client ID required (--auth--client-id or PAVLOK_AUTH__CLIENT_ID)")
	}
	if cfg.Auth.ClientSecret == "" {
		secret, err := r.promptSecret()
		if err != nil {
			return err
		}
		cfg.Auth.ClientSecret = secret
	}

	application, err := r.newApp(ctx, cfg)
	if err != nil {
		return err
	}
	if _, err := application.Login(ctx); err != nil {
		return err
	}

	fmt.Fprintln(r.stdout, "logged in")
	return nil
}

func (r *runner) logoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "delete the stored token",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := r.setup(cmd)
			if err != nil {
				return err
			}
			application, err := r.newApp(ctx, cfg)
			if err != nil {
				return err
			}
			if err := application.Logout(ctx); err != nil {
				return err
			}
			fmt.Fprintln(r.stdout, "logged out")
			return nil
		},
	}
}

func (r *runner) statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "show whether a token is stored",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := r.setup(cmd)
			if err != nil {
				return err
			}
			application, err := r.newApp(ctx, cfg)
			if err != nil {
				return err
			}
			fmt.Fprintln(r.stdout, application.State())
			return nil
		},
	}
}

func (r *runner) stimulusCommand(name, usage string, kind stimulus.Kind) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: fmt.Sprintf("<intensity %d-%d>", stimulus.MinIntensity, stimulus.MaxIntensity),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.NArg() != 1 {
				return fmt.Errorf("%s takes exactly one intensity argument", name)
			}
			intensity, err := strconv.Atoi(cmd.Args().First())
			if err != nil {
				return fmt.Errorf("invalid intensity %q: %w", cmd.Args().First(), err)
			}

			cfg, err := r.setup(cmd)
			if err != nil {
				return err
			}
			application, err := r.newApp(ctx, cfg)
			if err != nil {
				return err
			}

			msg, err := application.Stimulate(ctx, kind, intensity)
			if err != nil {
				if errors.Is(err, pavlok.ErrNotAuthenticated) || errors.Is(err, pavlok.ErrTokenExpired) {
					return fmt.Errorf("%w (run \"pavlokctl login\")", err)
				}
				return err
			}
			fmt.Fprintln(r.stdout, msg)
			return nil
		},
	}
}

// setup loads configuration and installs logging for the command.
func (r *runner) setup(cmd *cli.Command) (*app.Config, error) {
	cfg, err := loadConfig(cmd.String("config"), cmd, r.environ)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Set up observability before creating app
	if err := observability.Instrument(cfg.LogLevel, string(cfg.LogFormat)); err != nil {
		return nil, fmt.Errorf("failed to set up observability layer: %w", err)
	}
	return cfg, nil
}

func (r *runner) newApp(ctx context.Context, cfg *app.Config) (*app.App, error) {
	open := r.browser
	if open == nil {
		open = func(url string) error {
			fmt.Fprintf(r.stderr, "Opening %s in your browser\n", url)
			return authflow.OpenBrowser(url)
		}
	}

	application, err := app.New(ctx, cfg,
		pavlok.WithBrowser(open),
		pavlok.WithLogger(slog.Default()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create app: %w", err)
	}
	return application, nil
}

func (r *runner) promptSecret() (string, error) {
	if r.readSecret != nil {
		return r.readSecret()
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("client secret required (--auth--client-secret or PAVLOK_AUTH__CLIENT_SECRET)")
	}

	fmt.Fprint(r.stderr, "Client secret: ")
	secret, err := term.ReadPassword(fd)
	fmt.Fprintln(r.stderr)
	if err != nil {
		return "", fmt.Errorf("reading client secret: %w", err)
	}
	return strings.TrimSpace(string(secret)), nil
}
