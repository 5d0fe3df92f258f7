package storage

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"postbot/pkg/logx"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	st, err := Open(Config{Path: filepath.Join(t.TempDir(), "state.json")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestFileStoreLoadEmpty(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)

	b, ok, err := st.Load(context.Background())
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if ok || b != nil {
		t.Fatalf("Load = (%q, %v) on empty store, want (nil, false)", b, ok)
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	want := []byte(`{"users":{"1":{"role":"owner"}}}`)
	if err := st.Save(ctx, want); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	got, ok, err := st.Load(ctx)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if !ok || !bytes.Equal(got, want) {
		t.Fatalf("Load = (%q, %v), want (%q, true)", got, ok, want)
	}

	// Overwrite replaces wholesale.
	next := []byte(`{"users":{}}`)
	if err := st.Save(ctx, next); err != nil {
		t.Fatalf("second Save error: %v", err)
	}
	got, _, err = st.Load(ctx)
	if err != nil {
		t.Fatalf("second Load error: %v", err)
	}
	if !bytes.Equal(got, next) {
		t.Fatalf("Load = %q after overwrite, want %q", got, next)
	}
}

func TestFileStoreLeavesNoTempFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	st, err := Open(Config{Path: filepath.Join(dir, "state.json")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	defer st.Close()

	if err := st.Save(context.Background(), []byte(`{}`)); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir error: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "state.json" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("unexpected directory contents: %v", names)
	}
}

func TestFileStoreClosed(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	if err := st.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if err := st.Save(context.Background(), []byte(`{}`)); err != ErrClosed {
		t.Fatalf("Save after close = %v, want ErrClosed", err)
	}
	if _, _, err := st.Load(context.Background()); err != ErrClosed {
		t.Fatalf("Load after close = %v, want ErrClosed", err)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "postgres", Path: "x"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestOpenFileRequiresPath(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "file"}, logx.Nop()); err == nil {
		t.Fatal("expected error for missing path")
	}
}
