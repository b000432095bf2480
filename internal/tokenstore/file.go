package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// DefaultFileName is the record name used when only a directory is configured.
const DefaultFileName = "pavlok-token.json"

// FileStore keeps the Credential as a JSON document on the local filesystem.
// Writes use temp file + rename for crash safety.
type FileStore struct {
	filePath string
	logger   *slog.Logger
}

// Compile-time check to ensure FileStore implements TokenStore
var _ TokenStore = (*FileStore)(nil)

// NewFileStore creates a FileStore for the given path, creating parent directories
// with 0700 permissions if they don't exist.
func NewFileStore(filePath string, opts ...Option) (*FileStore, error) {
	if filePath == "" {
		return nil, fmt.Errorf("file path cannot be empty")
	}

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, storageErr("create directory", err)
	}

	return &FileStore{
		filePath: filePath,
		logger:   applyOptions(opts).logger,
	}, nil
}

// Path returns the location of the token record.
func (f *FileStore) Path() string {
	return f.filePath
}

// Load returns the stored Credential. A missing, unreadable or malformed record
// is replaced with {"token": null}.
func (f *FileStore) Load(ctx context.Context) (Credential, error) {
	if err := ctx.Err(); err != nil {
		return Credential{}, err
	}

	data, err := os.ReadFile(f.filePath)
	if err == nil {
		cred, decodeErr := decodeCredential(data)
		if decodeErr == nil {
			return cred, nil
		}
		err = decodeErr
	}
	if !errors.Is(err, fs.ErrNotExist) {
		f.logger.WarnContext(ctx, "discarding unreadable token record", "path", f.filePath, "error", err)
	}

	if err := f.write(ctx, Credential{}); err != nil {
		return Credential{}, storageErr("create", err)
	}
	return Credential{}, nil
}

// Save writes the Credential with token replaced. An empty token is stored as null.
func (f *FileStore) Save(ctx context.Context, token string) error {
	return storageErr("save", f.write(ctx, NewCredential(token)))
}

// Clear deletes the record. A missing record is not an error.
func (f *FileStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.Remove(f.filePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return storageErr("clear", err)
	}
	return nil
}

// write atomically saves the record using temp file + rename.
// Sets file permissions to 0600 (owner read/write only).
func (f *FileStore) write(ctx context.Context, cred Credential) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := encodeCredential(cred)
	if err != nil {
		return err
	}

	// Temp file in the same directory so the rename stays on one filesystem
	dir := filepath.Dir(f.filePath)
	tempFile, err := os.CreateTemp(dir, "*.tmp")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()
	defer func() { _ = os.Remove(tempName) }()
	defer func() { _ = tempFile.Close() }()

	if _, err := tempFile.Write(data); err != nil {
		return err
	}
	if err := tempFile.Chmod(0600); err != nil {
		return err
	}
	if err := tempFile.Close(); err != nil {
		return err
	}

	return os.Rename(tempName, f.filePath)
}
