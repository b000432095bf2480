package tokenstore

import (
	"context"
	"errors"
	"testing"
)

func TestEnvStore(t *testing.T) {
	ctx := context.Background()

	if _, err := NewEnvStore(""); err == nil {
		t.Fatal("expected error for empty key")
	}

	t.Setenv("PAVLOK_TEST_TOKEN", "from-env")
	store, err := NewEnvStore("PAVLOK_TEST_TOKEN")
	if err != nil {
		t.Fatalf("NewEnvStore: %v", err)
	}

	cred, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cred.Value(); got != "from-env" {
		t.Errorf("token = %q, want from-env", got)
	}

	if err := store.Save(ctx, "x"); !errors.Is(err, ErrReadOnly) {
		t.Errorf("Save: got %v, want ErrReadOnly", err)
	}
	if err := store.Clear(ctx); !errors.Is(err, ErrReadOnly) {
		t.Errorf("Clear: got %v, want ErrReadOnly", err)
	}
}

func TestEnvStore_UnsetYieldsNull(t *testing.T) {
	t.Setenv("PAVLOK_TEST_TOKEN", "")
	store, err := NewEnvStore("PAVLOK_TEST_TOKEN")
	if err != nil {
		t.Fatalf("NewEnvStore: %v", err)
	}
	cred, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cred.HasToken() {
		t.Errorf("expected null token, got %q", cred.Value())
	}
}
