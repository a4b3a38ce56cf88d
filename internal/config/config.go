// Package config defines the sync engine's configuration surface as an
// enumerated struct, deliberately rejecting duck-typed/unknown
// configuration rather than accepting an opaque map. Loading config from
// files or environment is out of scope; this package only validates a
// struct a caller has already assembled.
package config

import "github.com/yzkee/super-productivity-sub001/internal/syncerr"

// Backend selects which server implementation the client talks to.
type Backend string

const (
	BackendServer Backend = "server"
	BackendFile   Backend = "file"
	BackendWebDAV Backend = "webdav"
)

// Encryption holds the end-to-end encryption envelope settings.
type Encryption struct {
	Enabled  bool
	Password string // never persisted; held in memory only
}

// SyncConfig is the full, closed configuration surface for one client
// device's sync engine.
type SyncConfig struct {
	Backend              Backend
	BaseURL              string // required for BackendServer/BackendWebDAV
	APIKey               string
	Encryption           Encryption
	SyncIntervalMinutes  int
	IsCompressionEnabled bool
}

// Validate rejects configurations with unknown or missing required fields.
// Unknown backend values are rejected rather than silently ignored.
func (c SyncConfig) Validate() error {
	switch c.Backend {
	case BackendServer, BackendFile, BackendWebDAV:
	default:
		return syncerr.Wire.New("unknown sync backend %q", c.Backend)
	}
	if c.Backend == BackendServer || c.Backend == BackendWebDAV {
		if c.BaseURL == "" {
			return syncerr.Wire.New("baseUrl is required for backend %q", c.Backend)
		}
	}
	if c.Encryption.Enabled && c.Encryption.Password == "" {
		return syncerr.Crypto.New("encryption enabled but no password supplied")
	}
	if c.SyncIntervalMinutes < 0 {
		return syncerr.Wire.New("syncIntervalMin must be >= 0")
	}
	return nil
}
