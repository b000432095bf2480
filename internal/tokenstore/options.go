package tokenstore

import "log/slog"

// Option configures a FileStore or KeyringStore.
type Option func(*storeOptions)

type storeOptions struct {
	logger *slog.Logger
}

// WithLogger sets the logger that reports discarded records. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *storeOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func applyOptions(opts []Option) storeOptions {
	o := storeOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
