package sqlstore

import "log/slog"

// Config holds configuration for the Store.
type Config struct {
	// Table is the name of the node table.
	// Default: "arbor_nodes"
	Table string

	// MaxOpenConns caps the connection pool for postgres. sqlite always uses a
	// single connection.
	// Default: 80
	MaxOpenConns int

	// Tracing installs the gorm OpenTelemetry plugin in Open.
	// Default: false
	Tracing bool

	// Logger receives gorm statement logs and store diagnostics.
	// Default: slog.Default()
	Logger *slog.Logger
}

// DefaultConfig returns the configuration used by most deployments.
func DefaultConfig() Config {
	return Config{
		Table:        "arbor_nodes",
		MaxOpenConns: 80,
		Logger:       slog.Default(),
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.Table == "" {
		c.Table = "arbor_nodes"
	}
	if c.MaxOpenConns < 1 {
		c.MaxOpenConns = 80
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
