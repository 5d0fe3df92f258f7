package storage

import (
	"context"
	"errors"
	"strings"

	logx "postbot/pkg/logx"
)

// Store is the snapshot persistence API used by the state store.
//
// Save must be atomic: a crash mid-save leaves the previously saved
// snapshot intact. Load returns ok=false when nothing was ever saved.
type Store interface {
	Save(ctx context.Context, snapshot []byte) error
	Load(ctx context.Context) (snapshot []byte, ok bool, err error)
	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
