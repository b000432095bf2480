package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/zalando/go-keyring"
)

// DefaultKeyringService is the keyring service name the CLI stores its record under.
const DefaultKeyringService = "pavlok-remote-token"

// KeyringStore keeps the Credential in OS-native secure credential storage.
// Uses macOS Keychain, Windows Credential Manager, or Linux Secret Service.
type KeyringStore struct {
	service string
	user    string
	logger  *slog.Logger
}

// Compile-time check to ensure KeyringStore implements TokenStore
var _ TokenStore = (*KeyringStore)(nil)

// NewKeyringStore creates a KeyringStore for the OS-native credential storage
// (macOS Keychain, Windows Credential Manager, etc.) using the given service and user identifiers.
func NewKeyringStore(service, user string, opts ...Option) (*KeyringStore, error) {
	if service == "" {
		return nil, fmt.Errorf("service cannot be empty")
	}
	if user == "" {
		return nil, fmt.Errorf("user cannot be empty")
	}

	return &KeyringStore{
		service: service,
		user:    user,
		logger:  applyOptions(opts).logger,
	}, nil
}

// Load returns the Credential from the system keyring. A missing or malformed
// entry is replaced with {"token": null}.
func (k *KeyringStore) Load(ctx context.Context) (Credential, error) {
	if err := ctx.Err(); err != nil {
		return Credential{}, err
	}

	secret, err := keyring.Get(k.service, k.user)
	if err == nil {
		cred, decodeErr := decodeCredential([]byte(secret))
		if decodeErr == nil {
			return cred, nil
		}
		err = decodeErr
	}
	if !errors.Is(err, keyring.ErrNotFound) {
		k.logger.WarnContext(ctx, "discarding unreadable keyring entry", "service", k.service, "user", k.user, "error", err)
	}

	if err := k.write(Credential{}); err != nil {
		return Credential{}, storageErr("create", err)
	}
	return Credential{}, nil
}

// Save overwrites the keyring entry with the Credential holding token.
func (k *KeyringStore) Save(ctx context.Context, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return storageErr("save", k.write(NewCredential(token)))
}

// Clear deletes the keyring entry. A missing entry is not an error.
func (k *KeyringStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := keyring.Delete(k.service, k.user); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return storageErr("clear", err)
	}
	return nil
}

func (k *KeyringStore) write(cred Credential) error {
	data, err := encodeCredential(cred)
	if err != nil {
		return err
	}
	return keyring.Set(k.service, k.user, string(data))
}
