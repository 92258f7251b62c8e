package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Queue       QueueConfig     `toml:"queue"`
	Verifier    VerifierConfig  `toml:"verifier"`
	Storage     StorageConfig   `toml:"storage"`
	Cleanup     CleanupConfig   `toml:"cleanup"`
	Imports     ImportsConfig   `toml:"imports"`
	Logging     LoggingConfig   `toml:"logging"`
	WebSocket   WebSocketConfig `toml:"websocket"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type QueueConfig struct {
	Concurrency     int     `toml:"concurrency"`       // Number of concurrent verification workers
	StartsPerSecond float64 `toml:"starts_per_second"` // Token bucket rate for attempt starts
	BufferSize      int     `toml:"buffer_size"`       // Admission channel capacity
	MaxAttempts     int     `toml:"max_attempts"`      // Executions per job including the first
	InitialBackoff  string  `toml:"initial_backoff"`   // e.g., "1s" - delay before the first retry
	MaxBackoff      string  `toml:"max_backoff"`       // e.g., "30s" - backoff ceiling
}

type VerifierConfig struct {
	RequestTimeout string `toml:"request_timeout"` // e.g., "5s" - per-request budget including body read
	MaxRedirects   int    `toml:"max_redirects"`   // Redirect hop limit per request
	MaxBodySize    int64  `toml:"max_body_size"`   // Max bytes read from GET bodies for decoding
	UserAgent      string `toml:"user_agent"`      // User agent string for verification requests
}

type StorageConfig struct {
	Type   string       `toml:"type"` // Storage backend; "badger" is the only supported value
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

// CleanupConfig controls pruning of terminal queue history
type CleanupConfig struct {
	Schedule           string `toml:"schedule"`             // Cron schedule for the cleanup job
	CompletedOlderThan string `toml:"completed_older_than"` // e.g., "24h" - age threshold for completed records
	CompletedKeep      int    `toml:"completed_keep"`       // Newest completed records kept regardless of age
	FailedOlderThan    string `toml:"failed_older_than"`    // e.g., "168h" - age threshold for failed records
	FailedKeep         int    `toml:"failed_keep"`          // Newest failed records kept regardless of age
}

// ImportsConfig controls startup loading of verification seed files
type ImportsConfig struct {
	Dir string `toml:"dir"` // Directory scanned for YAML seed files; empty disables imports
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05.000")
}

// WebSocketConfig contains configuration for WebSocket log and event streaming
type WebSocketConfig struct {
	MinLevel        string   `toml:"min_level"`        // Minimum log level to broadcast ("debug", "info", "warn", "error")
	ExcludePatterns []string `toml:"exclude_patterns"` // Log message patterns to exclude from broadcasting
	// Whitelist of event types to broadcast via WebSocket. Empty list allows all events.
	// Example: ["verification_completed", "verification_failed"]
	AllowedEvents []string `toml:"allowed_events"`
	// Throttle intervals for high-frequency events. Map of event type to duration string.
	// Example: {"verification_queued": "500ms"}
	ThrottleIntervals map[string]string `toml:"throttle_intervals"`
	// Aggregation window for stat refresh triggers. Non-terminal lifecycle
	// events accumulate and fire one refresh per window instead of one each.
	TimeThreshold string `toml:"time_threshold"` // e.g., "1s"
}

// NewDefaultConfig creates a configuration with default values
// Technical parameters are hardcoded here for production stability.
// Only user-facing settings should be exposed in probo.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Queue: QueueConfig{
			Concurrency:     10,   // Worker pool size; verification is I/O bound
			StartsPerSecond: 50,   // Attempt starts per second across all workers
			BufferSize:      1024, // Admission channel capacity
			MaxAttempts:     3,    // Initial attempt plus two retries
			InitialBackoff:  "1s",
			MaxBackoff:      "30s",
		},
		Verifier: VerifierConfig{
			RequestTimeout: "5s",
			MaxRedirects:   5,
			MaxBodySize:    10 * 1024 * 1024, // 10MB
			UserAgent:      "probo/1.0 (image link verification)",
		},
		Storage: StorageConfig{
			Type: "badger",
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Cleanup: CleanupConfig{
			Schedule:           "*/30 * * * *", // Every 30 minutes
			CompletedOlderThan: "24h",
			CompletedKeep:      1000, // Keep the newest completed records for inspection
			FailedOlderThan:    "168h",
			FailedKeep:         1000,
		},
		Imports: ImportsConfig{
			Dir: "./imports", // Default directory for request manifest files
		},
		Logging: LoggingConfig{
			Level:      "info",                     // Info level for production (debug|info|warn|error)
			Output:     []string{"stdout", "file"}, // Log to both console and file
			TimeFormat: "15:04:05.000",
		},
		WebSocket: WebSocketConfig{
			MinLevel: "info", // Default: info level and above
			ExcludePatterns: []string{
				"WebSocket client connected",
				"WebSocket client disconnected",
				"HTTP request",
				"HTTP response",
				"Publishing event",
				"Event published",
			},
			// Empty AllowedEvents allows all events
			AllowedEvents: []string{},
			// Throttle high-frequency lifecycle events to keep batch imports
			// from flooding connected clients
			ThrottleIntervals: map[string]string{
				"verification_queued":  "500ms",
				"verification_started": "500ms",
			},
			TimeThreshold: "1s", // Aggregate non-terminal events into one refresh per second
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env -> CLI
// Priority system: CLI flags > Environment variables > Config file > Defaults
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files with priority: default -> file1 -> file2 -> ... -> env -> CLI
// Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	// Start with defaults
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier files)
	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		// Unmarshal into config (merges with existing values, later values override)
		err = toml.Unmarshal(data, config)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	// Apply environment variables (overrides all file configs)
	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	// Environment configuration (highest priority: PROBO_ENV, fallback: GO_ENV)
	if env := os.Getenv("PROBO_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("PROBO_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("PROBO_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Queue configuration
	if concurrency := os.Getenv("PROBO_QUEUE_CONCURRENCY"); concurrency != "" {
		if c, err := strconv.Atoi(concurrency); err == nil {
			config.Queue.Concurrency = c
		}
	}
	if starts := os.Getenv("PROBO_QUEUE_STARTS_PER_SECOND"); starts != "" {
		if s, err := strconv.ParseFloat(starts, 64); err == nil {
			config.Queue.StartsPerSecond = s
		}
	}
	if bufferSize := os.Getenv("PROBO_QUEUE_BUFFER_SIZE"); bufferSize != "" {
		if b, err := strconv.Atoi(bufferSize); err == nil {
			config.Queue.BufferSize = b
		}
	}
	if maxAttempts := os.Getenv("PROBO_QUEUE_MAX_ATTEMPTS"); maxAttempts != "" {
		if ma, err := strconv.Atoi(maxAttempts); err == nil {
			config.Queue.MaxAttempts = ma
		}
	}
	if initialBackoff := os.Getenv("PROBO_QUEUE_INITIAL_BACKOFF"); initialBackoff != "" {
		if _, err := time.ParseDuration(initialBackoff); err == nil {
			config.Queue.InitialBackoff = initialBackoff
		}
	}
	if maxBackoff := os.Getenv("PROBO_QUEUE_MAX_BACKOFF"); maxBackoff != "" {
		if _, err := time.ParseDuration(maxBackoff); err == nil {
			config.Queue.MaxBackoff = maxBackoff
		}
	}

	// Verifier configuration
	if requestTimeout := os.Getenv("PROBO_VERIFIER_REQUEST_TIMEOUT"); requestTimeout != "" {
		if _, err := time.ParseDuration(requestTimeout); err == nil {
			config.Verifier.RequestTimeout = requestTimeout
		}
	}
	if maxRedirects := os.Getenv("PROBO_VERIFIER_MAX_REDIRECTS"); maxRedirects != "" {
		if mr, err := strconv.Atoi(maxRedirects); err == nil {
			config.Verifier.MaxRedirects = mr
		}
	}
	if maxBodySize := os.Getenv("PROBO_VERIFIER_MAX_BODY_SIZE"); maxBodySize != "" {
		if mbs, err := strconv.ParseInt(maxBodySize, 10, 64); err == nil {
			config.Verifier.MaxBodySize = mbs
		}
	}
	if userAgent := os.Getenv("PROBO_VERIFIER_USER_AGENT"); userAgent != "" {
		config.Verifier.UserAgent = userAgent
	}

	// Storage configuration
	if badgerPath := os.Getenv("PROBO_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}
	if reset := os.Getenv("PROBO_BADGER_RESET_ON_STARTUP"); reset != "" {
		if r, err := strconv.ParseBool(reset); err == nil {
			config.Storage.Badger.ResetOnStartup = r
		}
	}

	// Cleanup configuration
	if schedule := os.Getenv("PROBO_CLEANUP_SCHEDULE"); schedule != "" {
		config.Cleanup.Schedule = schedule
	}

	// Imports configuration
	if importsDir := os.Getenv("PROBO_IMPORTS_DIR"); importsDir != "" {
		config.Imports.Dir = importsDir
	}

	// Logging configuration
	if level := os.Getenv("PROBO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("PROBO_LOG_OUTPUT"); output != "" {
		if outputs := splitCSV(output); len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
	if timeFormat := os.Getenv("PROBO_LOG_TIME_FORMAT"); timeFormat != "" {
		config.Logging.TimeFormat = timeFormat
	}

	// WebSocket configuration
	if minLevel := os.Getenv("PROBO_WEBSOCKET_MIN_LEVEL"); minLevel != "" {
		config.WebSocket.MinLevel = minLevel
	}
	if excludePatterns := os.Getenv("PROBO_WEBSOCKET_EXCLUDE_PATTERNS"); excludePatterns != "" {
		if patterns := splitCSV(excludePatterns); len(patterns) > 0 {
			config.WebSocket.ExcludePatterns = patterns
		}
	}
	if allowedEvents := os.Getenv("PROBO_WEBSOCKET_ALLOWED_EVENTS"); allowedEvents != "" {
		if events := splitCSV(allowedEvents); len(events) > 0 {
			config.WebSocket.AllowedEvents = events
		}
	}
	if timeThreshold := os.Getenv("PROBO_WEBSOCKET_TIME_THRESHOLD"); timeThreshold != "" {
		if _, err := time.ParseDuration(timeThreshold); err == nil {
			config.WebSocket.TimeThreshold = timeThreshold
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	// Command-line flags have highest priority
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// splitCSV splits a comma-separated value and drops empty entries
func splitCSV(s string) []string {
	result := []string{}
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// ValidateJobSchedule validates a cron schedule expression and ensures minimum 5-minute interval
func ValidateJobSchedule(schedule string) error {
	// Parse the cron expression
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	_, err := parser.Parse(schedule)
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	// Check for minimum 5-minute interval
	// Validate minute field (first field in standard cron)
	parts := strings.Fields(schedule)
	if len(parts) < 5 {
		return fmt.Errorf("invalid cron format: expected 5 fields")
	}

	minuteField := parts[0]

	// Check for patterns that violate 5-minute minimum
	if minuteField == "*" {
		return fmt.Errorf("schedule must have minimum 5-minute interval (every minute is not allowed)")
	}

	// Check for */n patterns where n < 5
	if strings.HasPrefix(minuteField, "*/") {
		intervalStr := strings.TrimPrefix(minuteField, "*/")
		interval, err := strconv.Atoi(intervalStr)
		if err == nil && interval < 5 {
			return fmt.Errorf("schedule interval must be at least 5 minutes, got %d", interval)
		}
	}

	return nil
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
