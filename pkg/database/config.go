package database

import (
	"fmt"
	"time"
)

// Config holds the SQLite event log settings
// ARCHITECTURAL DISCOVERY: connection pool tuning lives with the database
// package rather than the application config so tests construct logs directly
type Config struct {
	DatabasePath    string
	MaxConnections  int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	AppendTimeout   time.Duration
}

// DefaultConfig returns production-ready defaults
func DefaultConfig(path string) *Config {
	return &Config{
		DatabasePath:    path,
		MaxConnections:  10,
		ConnMaxLifetime: 30 * time.Second,
		ConnMaxIdleTime: 10 * time.Second,
		AppendTimeout:   5 * time.Second,
	}
}

// Validate checks the configuration before a log is constructed
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.MaxConnections <= 0 {
		return fmt.Errorf("max connections must be positive")
	}
	if c.AppendTimeout <= 0 {
		return fmt.Errorf("append timeout must be positive")
	}
	return nil
}
