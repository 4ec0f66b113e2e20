package cli

import (
	"github.com/google/uuid"
)

// ParticleIDGenerator creates ids for particles started from the CLI.
type ParticleIDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 particle ids.
//
// UUIDv7 embeds a timestamp in the most significant bits, so the turn log of
// a database sorts particles by creation time.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
