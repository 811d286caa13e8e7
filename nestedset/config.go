package nestedset

import (
	"log/slog"
	"time"
)

// Config holds configuration for a Tree.
type Config struct {
	// Scope selects the tree within a shared table.
	// Default: "" (the default tree)
	Scope string

	// RefreshStaleSource makes mutations silently adopt the stored bounds of a
	// stale source handle instead of failing with ErrStaleNode.
	// Default: false
	RefreshStaleSource bool

	// SoftDeleteNodeOnly makes SoftDelete and Restore touch only the node itself.
	// Descendants are then left to an out-of-band cascade (see package stream).
	// Default: false (descendants are cascaded in the same transaction)
	SoftDeleteNodeOnly bool

	// Logger receives mutation logs.
	// Default: slog.Default()
	Logger *slog.Logger

	// Clock returns the current time for timestamps and soft deletes.
	// Default: time.Now
	Clock func() time.Time
}

// DefaultConfig returns the configuration for the default tree.
func DefaultConfig() Config {
	return Config{
		Logger: slog.Default(),
		Clock:  time.Now,
	}
}

// validate fills unset values with defaults.
func (c *Config) validate() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
}
