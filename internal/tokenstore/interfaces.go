package tokenstore

import "context"

// TokenStore reads, writes and clears the persisted Credential.
//
// Interactive login requires writable storage.
type TokenStore interface {
	// Load returns the stored Credential. A missing or unreadable record is
	// replaced by an empty one; only a failure to write that record is an error.
	Load(ctx context.Context) (Credential, error)

	// Save persists the Credential with its token replaced. An empty token is
	// stored as null.
	Save(ctx context.Context, token string) error

	// Clear removes the persisted record. Clearing an absent record succeeds.
	Clear(ctx context.Context) error
}
