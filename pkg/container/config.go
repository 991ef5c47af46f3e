package container

import "log/slog"

// DefaultLogService is the service name Scope.Log forwards to
const DefaultLogService = "log-service"

// Config contains configuration options shared by a domain and its scopes
type Config struct {
	// Logger for container operations (uses slog.Default if nil)
	Logger *slog.Logger
	// Metrics records container metrics (no-op if nil)
	Metrics MetricsCollector
	// LogService names the service Scope.Log forwards to
	LogService string
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Logger:     slog.Default(),
		Metrics:    NoopMetrics(),
		LogService: DefaultLogService,
	}
}

// withDefaults returns a copy with every unset option defaulted
func (c *Config) withDefaults() *Config {
	result := DefaultConfig()
	if c == nil {
		return result
	}
	if c.Logger != nil {
		result.Logger = c.Logger
	}
	if c.Metrics != nil {
		result.Metrics = c.Metrics
	}
	if c.LogService != "" {
		result.LogService = c.LogService
	}
	return result
}
