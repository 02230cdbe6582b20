package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	logx "wagate/pkg/logx"
)

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "creds.json")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	if _, err := st.LoadCredentials(ctx); !errors.Is(err, ErrNoCredentials) {
		t.Fatalf("empty store load = %v, want ErrNoCredentials", err)
	}

	blob := []byte(`{"noiseKey":"abc"}`)
	if err := st.SaveCredentials(ctx, blob); err != nil {
		t.Fatalf("SaveCredentials: %v", err)
	}
	got, err := st.LoadCredentials(ctx)
	if err != nil {
		t.Fatalf("LoadCredentials: %v", err)
	}
	if string(got) != string(blob) {
		t.Fatalf("round trip mismatch: %q", got)
	}

	// Saves replace, not append.
	blob2 := []byte(`{"noiseKey":"def"}`)
	if err := st.SaveCredentials(ctx, blob2); err != nil {
		t.Fatalf("SaveCredentials: %v", err)
	}
	got, err = st.LoadCredentials(ctx)
	if err != nil {
		t.Fatalf("LoadCredentials: %v", err)
	}
	if string(got) != string(blob2) {
		t.Fatalf("overwrite mismatch: %q", got)
	}
}

func TestFileStoreDirectoryPath(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	// A directory path gets a creds.json inside it (matches the common
	// "auth_info" directory layout).
	st, err := Open(Config{Driver: "file", Path: dir}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()
	if err := st.SaveCredentials(context.Background(), []byte("x")); err != nil {
		t.Fatalf("SaveCredentials: %v", err)
	}
	if _, err := st.LoadCredentials(context.Background()); err != nil {
		t.Fatalf("LoadCredentials: %v", err)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "bogus"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
