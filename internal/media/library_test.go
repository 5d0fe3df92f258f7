package media

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"postbot/internal/transport"
)

func TestLibrarySaveAndRelease(t *testing.T) {
	t.Parallel()
	lib, err := NewLibrary(t.TempDir())
	if err != nil {
		t.Fatalf("NewLibrary error: %v", err)
	}

	data := []byte("jpeg bytes")
	path, err := lib.Save(-1001234, transport.MediaPhoto, "AgACAgIAAxkBAAE", data)
	if err != nil {
		t.Fatalf("Save error: %v", err)
	}
	if !strings.HasSuffix(path, ".jpg") {
		t.Fatalf("photo path %q does not end in .jpg", path)
	}
	if !strings.Contains(path, filepath.Join("channel_1001234", "photo_")) {
		t.Fatalf("unexpected blob path %q", path)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile error: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("saved blob differs from input")
	}

	if err := lib.Release(path); err != nil {
		t.Fatalf("Release error: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("blob still exists after Release")
	}
	// Releasing twice is fine.
	if err := lib.Release(path); err != nil {
		t.Fatalf("second Release error: %v", err)
	}
}

func TestLibraryVideoExtension(t *testing.T) {
	t.Parallel()
	lib, err := NewLibrary(t.TempDir())
	if err != nil {
		t.Fatalf("NewLibrary error: %v", err)
	}
	path, err := lib.Save(-5, transport.MediaVideo, "vid", []byte("mp4"))
	if err != nil {
		t.Fatalf("Save error: %v", err)
	}
	if !strings.HasSuffix(path, ".mp4") {
		t.Fatalf("video path %q does not end in .mp4", path)
	}
}

func TestLibraryReleaseChannel(t *testing.T) {
	t.Parallel()
	lib, err := NewLibrary(t.TempDir())
	if err != nil {
		t.Fatalf("NewLibrary error: %v", err)
	}
	p1, err := lib.Save(-7, transport.MediaPhoto, "a", []byte("x"))
	if err != nil {
		t.Fatalf("Save error: %v", err)
	}
	if err := lib.ReleaseChannel(-7); err != nil {
		t.Fatalf("ReleaseChannel error: %v", err)
	}
	if _, err := os.Stat(filepath.Dir(p1)); !os.IsNotExist(err) {
		t.Fatal("channel dir still exists after ReleaseChannel")
	}
}

func TestSanitize(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want string
	}{
		{in: "Abc-123_x", want: "Abc-123_x"},
		{in: "../../etc/passwd", want: "etcpasswd"},
		{in: "", want: "blob"},
		{in: "!!!", want: "blob"},
	}
	for _, tt := range tests {
		if got := sanitize(tt.in); got != tt.want {
			t.Fatalf("sanitize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
