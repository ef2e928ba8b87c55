// Package tokenstore persists access tokens and the device each one is bound
// to. Every backend binds with a compare-and-set so that concurrent first use
// of one token from two devices binds exactly one of them.
package tokenstore

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrTokenNotFound = errors.New("token not found")
	ErrAlreadyBound  = errors.New("token already bound to a device")
	ErrTokenExists   = errors.New("token already exists")
	ErrUnavailable   = errors.New("token store unavailable")
)

// Record is one row of the token table.
type Record struct {
	Token        string    `json:"token"`
	DeviceID     string    `json:"device_id"`
	RegisteredAt time.Time `json:"registered_at,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
}

// Bound reports whether the token is locked to a device.
func (r Record) Bound() bool {
	return r.DeviceID != ""
}

// Store is the token table. Implementations must be safe for concurrent use.
type Store interface {
	// ReadAll returns every record ordered by token.
	ReadAll(ctx context.Context) ([]Record, error)
	// Get returns ErrTokenNotFound for unknown tokens.
	Get(ctx context.Context, token string) (Record, error)
	// Bind locks an unbound token to deviceID. If the token is already bound
	// it returns ErrAlreadyBound together with the stored record and leaves
	// the binding untouched.
	Bind(ctx context.Context, token, deviceID string, at time.Time) (Record, error)
	// Reset clears the binding of a token. Administrative only.
	Reset(ctx context.Context, token string) error
	// Issue creates an unbound token.
	Issue(ctx context.Context, token string) error
	// Delete removes a token.
	Delete(ctx context.Context, token string) error
	Ping(ctx context.Context) error
	Close() error
}

// NormalizeDeviceID trims a stored device id and maps the empty-cell
// spellings left behind by spreadsheet exports to "".
func NormalizeDeviceID(v string) string {
	v = strings.TrimSpace(v)
	switch strings.ToLower(v) {
	case "nan", "none", "null":
		return ""
	}
	return v
}
