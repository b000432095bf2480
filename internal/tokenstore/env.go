package tokenstore

import (
	"context"
	"fmt"
	"os"
)

// EnvStore provides read-only access to a token stored in an environment variable.
// Suitable for tokens issued out of band but not for interactive login.
type EnvStore struct {
	envKey string
}

// Compile-time check to ensure EnvStore implements TokenStore
var _ TokenStore = (*EnvStore)(nil)

// NewEnvStore creates an EnvStore for the given environment variable.
func NewEnvStore(envKey string) (*EnvStore, error) {
	if envKey == "" {
		return nil, fmt.Errorf("environment key cannot be empty")
	}

	return &EnvStore{
		envKey: envKey,
	}, nil
}

// Load returns the token from the environment variable. An unset or empty
// variable yields a null token.
func (e *EnvStore) Load(ctx context.Context) (Credential, error) {
	if err := ctx.Err(); err != nil {
		return Credential{}, err
	}

	return NewCredential(os.Getenv(e.envKey)), nil
}

// Save is not supported for environment variables.
func (e *EnvStore) Save(ctx context.Context, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return storageErr("save", fmt.Errorf("environment variable %s: %w", e.envKey, ErrReadOnly))
}

// Clear is not supported for environment variables.
func (e *EnvStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return storageErr("clear", fmt.Errorf("environment variable %s: %w", e.envKey, ErrReadOnly))
}
