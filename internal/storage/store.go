package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "wagate/pkg/logx"
)

// ErrNoCredentials reports an empty store (first run: the operator must
// complete the pairing flow).
var ErrNoCredentials = errors.New("no stored credentials")

// Store is the credential persistence API used by the connection supervisor.
type Store interface {
	SaveCredentials(ctx context.Context, blob []byte) error
	LoadCredentials(ctx context.Context) ([]byte, error)
	Close() error
}

// Config configures the credential store.
//
// Driver values:
//   - "file": single-file JSON blob, atomically replaced on save
//   - "sqlite": SQLite database file (optional build tag)
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + cfg.Driver)
	}
}
