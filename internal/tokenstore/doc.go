// Package tokenstore persists the Pavlok access token as a Credential record.
//
// Supports three storage backends with different security and deployment tradeoffs:
//   - File: JSON record on the local filesystem with atomic writes and secure permissions
//   - Env: Read-only environment variable access (token issued out of band)
//   - Keyring: OS-native credential storage (macOS Keychain, Windows Credential Manager, etc.)
//
// Interactive login requires writable storage (file or keyring). Env storage can only
// serve a token that was obtained elsewhere.
package tokenstore
