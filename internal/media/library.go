// Package media manages the on-disk blobs backing channel queues.
//
// Each channel owns one directory under the configured root. Blobs are
// written once at staging time and deleted after a successful post (or when
// staging is aborted / the channel is deleted).
package media

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"postbot/internal/transport"
)

type Library struct {
	root string
}

func NewLibrary(root string) (*Library, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("media root dir is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Library{root: root}, nil
}

func (l *Library) Root() string { return l.root }

// ChannelDir returns (and creates) the blob directory for a channel.
// Telegram channel ids are negative; the directory name uses the magnitude.
func (l *Library) ChannelDir(channelID int64) (string, error) {
	id := channelID
	if id < 0 {
		id = -id
	}
	dir := filepath.Join(l.root, fmt.Sprintf("channel_%d", id))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// Save writes one staged blob into the channel's directory and returns its
// path. uniq disambiguates uploads landing in the same second (the platform
// file id serves well).
func (l *Library) Save(channelID int64, kind transport.MediaKind, uniq string, data []byte) (string, error) {
	dir, err := l.ChannelDir(channelID)
	if err != nil {
		return "", err
	}
	ext := ".jpg"
	if kind == transport.MediaVideo {
		ext = ".mp4"
	}
	name := fmt.Sprintf("%s_%s_%s%s", kind, time.Now().Format("20060102_150405"), sanitize(uniq), ext)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}

// Release deletes one blob. A blob that is already gone is not an error.
func (l *Library) Release(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	err := os.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// ReleaseChannel removes a channel's directory and everything in it.
func (l *Library) ReleaseChannel(channelID int64) error {
	dir, err := l.ChannelDir(channelID)
	if err != nil {
		return err
	}
	return os.RemoveAll(dir)
}

func sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	out := b.String()
	if len(out) > 64 {
		out = out[:64]
	}
	if out == "" {
		out = "blob"
	}
	return out
}
