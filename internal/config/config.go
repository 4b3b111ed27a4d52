package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Event log backend selection
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// ARCHITECTURAL DISCOVERY: Configuration layer serves as system-wide settings
// coordinator - clean separation between configuration and business logic
type Config struct {
	EventLog  *EventLogConfig  `json:"event_log"`
	HTTP      *HTTPConfig      `json:"http"`
	WebSocket *WebSocketConfig `json:"websocket"`
	History   *HistoryConfig   `json:"history"`
}

// EventLogConfig selects and tunes the event log backend
type EventLogConfig struct {
	Backend string        `json:"backend"`
	Path    string        `json:"path"`
	Timeout time.Duration `json:"timeout"`
}

// HTTPConfig balances performance and reliability
type HTTPConfig struct {
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	Host         string        `json:"host"`
}

// WebSocketConfig tunes per-connection heartbeat and buffering
type WebSocketConfig struct {
	PingInterval time.Duration `json:"ping_interval"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	BufferSize   int           `json:"buffer_size"`
}

// HistoryConfig bounds the catch-up backfill pages
type HistoryConfig struct {
	PageSize int `json:"page_size"`
}

// DefaultConfig returns production-ready defaults: sqlite log on the local
// filesystem, HTTP on the standard port, 30s WebSocket heartbeat
func DefaultConfig() *Config {
	return &Config{
		EventLog: &EventLogConfig{
			Backend: BackendSQLite,
			Path:    "./sessionhub.db",
			Timeout: 30 * time.Second,
		},
		HTTP: &HTTPConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			Host:         "0.0.0.0",
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Second,
			BufferSize:   100,
		},
		History: &HistoryConfig{
			PageSize: 50,
		},
	}
}

// Validate catches invalid configurations before any component starts
func (c *Config) Validate() error {
	if c.EventLog == nil {
		return fmt.Errorf("event log configuration is required")
	}

	if c.EventLog.Backend != BackendSQLite && c.EventLog.Backend != BackendMemory {
		return fmt.Errorf("event log backend must be %q or %q", BackendSQLite, BackendMemory)
	}

	if c.EventLog.Backend == BackendSQLite && c.EventLog.Path == "" {
		return fmt.Errorf("event log path cannot be empty for the sqlite backend")
	}

	if c.EventLog.Timeout <= 0 {
		return fmt.Errorf("event log timeout must be positive")
	}

	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}

	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 0 and 65535")
	}

	if c.HTTP.ReadTimeout <= 0 {
		return fmt.Errorf("HTTP read timeout must be positive")
	}

	if c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP write timeout must be positive")
	}

	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}

	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WebSocket ping interval must be positive")
	}

	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return fmt.Errorf("WebSocket read timeout must exceed the ping interval")
	}

	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket write timeout must be positive")
	}

	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}

	if c.History == nil {
		return fmt.Errorf("history configuration is required")
	}

	if c.History.PageSize <= 0 {
		return fmt.Errorf("history page size must be positive")
	}

	return nil
}

// LoadFromEnv overlays environment variables on the defaults
// FUNCTIONAL DISCOVERY: unparseable values fall back silently so a bad env
// var degrades to the default instead of blocking startup
func LoadFromEnv() *Config {
	config := DefaultConfig()

	if backend := os.Getenv("SESSIONHUB_EVENTLOG_BACKEND"); backend != "" {
		config.EventLog.Backend = backend
	}

	if path := os.Getenv("SESSIONHUB_EVENTLOG_PATH"); path != "" {
		config.EventLog.Path = path
	}

	if timeout := os.Getenv("SESSIONHUB_EVENTLOG_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.EventLog.Timeout = d
		}
	}

	if port := os.Getenv("SESSIONHUB_HTTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.HTTP.Port = p
		}
	}

	if host := os.Getenv("SESSIONHUB_HTTP_HOST"); host != "" {
		config.HTTP.Host = host
	}

	if readTimeout := os.Getenv("SESSIONHUB_HTTP_READ_TIMEOUT"); readTimeout != "" {
		if d, err := time.ParseDuration(readTimeout); err == nil {
			config.HTTP.ReadTimeout = d
		}
	}

	if writeTimeout := os.Getenv("SESSIONHUB_HTTP_WRITE_TIMEOUT"); writeTimeout != "" {
		if d, err := time.ParseDuration(writeTimeout); err == nil {
			config.HTTP.WriteTimeout = d
		}
	}

	if pingInterval := os.Getenv("SESSIONHUB_WEBSOCKET_PING_INTERVAL"); pingInterval != "" {
		if d, err := time.ParseDuration(pingInterval); err == nil {
			config.WebSocket.PingInterval = d
		}
	}

	if wsReadTimeout := os.Getenv("SESSIONHUB_WEBSOCKET_READ_TIMEOUT"); wsReadTimeout != "" {
		if d, err := time.ParseDuration(wsReadTimeout); err == nil {
			config.WebSocket.ReadTimeout = d
		}
	}

	if wsWriteTimeout := os.Getenv("SESSIONHUB_WEBSOCKET_WRITE_TIMEOUT"); wsWriteTimeout != "" {
		if d, err := time.ParseDuration(wsWriteTimeout); err == nil {
			config.WebSocket.WriteTimeout = d
		}
	}

	if bufferSize := os.Getenv("SESSIONHUB_WEBSOCKET_BUFFER_SIZE"); bufferSize != "" {
		if size, err := strconv.Atoi(bufferSize); err == nil {
			config.WebSocket.BufferSize = size
		}
	}

	if pageSize := os.Getenv("SESSIONHUB_HISTORY_PAGE_SIZE"); pageSize != "" {
		if size, err := strconv.Atoi(pageSize); err == nil {
			config.History.PageSize = size
		}
	}

	return config
}

// ConfigFile represents the JSON structure for file-based configuration
// FUNCTIONAL DISCOVERY: Separate struct for JSON parsing to handle duration strings
type ConfigFile struct {
	EventLog  *EventLogConfigFile  `json:"event_log"`
	HTTP      *HTTPConfigFile      `json:"http"`
	WebSocket *WebSocketConfigFile `json:"websocket"`
	History   *HistoryConfig       `json:"history"`
}

type EventLogConfigFile struct {
	Backend string `json:"backend"`
	Path    string `json:"path"`
	Timeout string `json:"timeout"`
}

type HTTPConfigFile struct {
	Port         int    `json:"port"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
	Host         string `json:"host"`
}

type WebSocketConfigFile struct {
	PingInterval string `json:"ping_interval"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
	BufferSize   int    `json:"buffer_size"`
}

// LoadFromFile reads JSON configuration over the defaults
func LoadFromFile(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var configFile ConfigFile
	if err := json.Unmarshal(data, &configFile); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filepath, err)
	}

	config := DefaultConfig()

	if configFile.EventLog != nil {
		if configFile.EventLog.Backend != "" {
			config.EventLog.Backend = configFile.EventLog.Backend
		}
		if configFile.EventLog.Path != "" {
			config.EventLog.Path = configFile.EventLog.Path
		}
		if configFile.EventLog.Timeout != "" {
			if d, err := time.ParseDuration(configFile.EventLog.Timeout); err == nil {
				config.EventLog.Timeout = d
			}
		}
	}

	if configFile.HTTP != nil {
		if configFile.HTTP.Port > 0 {
			config.HTTP.Port = configFile.HTTP.Port
		}
		if configFile.HTTP.Host != "" {
			config.HTTP.Host = configFile.HTTP.Host
		}
		if configFile.HTTP.ReadTimeout != "" {
			if d, err := time.ParseDuration(configFile.HTTP.ReadTimeout); err == nil {
				config.HTTP.ReadTimeout = d
			}
		}
		if configFile.HTTP.WriteTimeout != "" {
			if d, err := time.ParseDuration(configFile.HTTP.WriteTimeout); err == nil {
				config.HTTP.WriteTimeout = d
			}
		}
	}

	if configFile.WebSocket != nil {
		if configFile.WebSocket.BufferSize > 0 {
			config.WebSocket.BufferSize = configFile.WebSocket.BufferSize
		}
		if configFile.WebSocket.PingInterval != "" {
			if d, err := time.ParseDuration(configFile.WebSocket.PingInterval); err == nil {
				config.WebSocket.PingInterval = d
			}
		}
		if configFile.WebSocket.ReadTimeout != "" {
			if d, err := time.ParseDuration(configFile.WebSocket.ReadTimeout); err == nil {
				config.WebSocket.ReadTimeout = d
			}
		}
		if configFile.WebSocket.WriteTimeout != "" {
			if d, err := time.ParseDuration(configFile.WebSocket.WriteTimeout); err == nil {
				config.WebSocket.WriteTimeout = d
			}
		}
	}

	if configFile.History != nil && configFile.History.PageSize > 0 {
		config.History.PageSize = configFile.History.PageSize
	}

	// Validate after loading to catch errors early
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}

	return config, nil
}

// LoadConfigWithPrecedence resolves configuration as file > environment >
// defaults, enabling flexible deployment patterns with sane fallbacks
func LoadConfigWithPrecedence(filepath string) *Config {
	config := LoadFromEnv()

	if filepath != "" {
		if fileConfig, err := LoadFromFile(filepath); err == nil {
			config = fileConfig
		}
		// Silently ignore file errors - environment/defaults still work
	}

	return config
}
