package dynamostore

import "log/slog"

// maxTransactItems is the DynamoDB limit on items per TransactWriteItems call.
const maxTransactItems = 100

// Config holds configuration for the Store.
type Config struct {
	// Table is the name of the node table.
	// Default: "arbor_nodes"
	Table string

	// MaxConflictRetries is the number of times a transaction is re-run after
	// losing a commit race.
	// Default: 3
	MaxConflictRetries int

	// MaxTransactItems caps the items written by one commit.
	// Default: 100
	// Max: 100
	MaxTransactItems int

	// Logger receives conflict and commit diagnostics.
	// Default: slog.Default()
	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Table:              "arbor_nodes",
		MaxConflictRetries: 3,
		MaxTransactItems:   maxTransactItems,
		Logger:             slog.Default(),
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.Table == "" {
		c.Table = "arbor_nodes"
	}
	if c.MaxConflictRetries < 0 {
		c.MaxConflictRetries = 0
	}
	if c.MaxTransactItems < 2 || c.MaxTransactItems > maxTransactItems {
		c.MaxTransactItems = maxTransactItems
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
