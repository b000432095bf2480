package tokenstore

import (
	"github.com/goccy/go-json"
)

// Credential is the persisted token record: {"token": string | null}.
type Credential struct {
	Token *string `json:"token"`
}

// NewCredential returns a Credential holding token, or a null token when token is empty.
func NewCredential(token string) Credential {
	if token == "" {
		return Credential{}
	}
	return Credential{Token: &token}
}

// Value returns the token, or "" when the record holds null.
func (c Credential) Value() string {
	if c.Token == nil {
		return ""
	}
	return *c.Token
}

// HasToken reports whether the record holds a usable token.
func (c Credential) HasToken() bool {
	return c.Value() != ""
}

func encodeCredential(c Credential) ([]byte, error) {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func decodeCredential(data []byte) (Credential, error) {
	var c Credential
	if err := json.Unmarshal(data, &c); err != nil {
		return Credential{}, err
	}
	return c, nil
}
