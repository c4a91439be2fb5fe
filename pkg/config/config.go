package config

import (
	"fmt"
	"path/filepath"
	"slices"
	"time"

	"github.com/goran-ethernal/ChainDispatch/internal/common"
	"github.com/goran-ethernal/ChainDispatch/internal/logger"
)

// Config represents the complete configuration for ChainDispatch.
type Config struct {
	// Networks lists the chains contracts can be bound to
	Networks []NetworkConfig `yaml:"networks" json:"networks" toml:"networks"`

	// Contracts lists the contracts, their per-network bindings and the events to dispatch
	Contracts []ContractConfig `yaml:"contracts" json:"contracts" toml:"contracts"`

	// Dispatch controls callback retry behavior
	Dispatch DispatchConfig `yaml:"dispatch" json:"dispatch" toml:"dispatch"`

	// DeadLetter stores batches abandoned after Dispatch.MaxAttempts failures
	DeadLetter *DeadLetterConfig `yaml:"dead_letter,omitempty" json:"dead_letter,omitempty" toml:"dead_letter,omitempty"`

	// Logging contains logging configuration
	Logging *LoggingConfig `yaml:"logging,omitempty" json:"logging,omitempty" toml:"logging,omitempty"`

	// Metrics contains Prometheus metrics configuration
	Metrics *MetricsConfig `yaml:"metrics,omitempty" json:"metrics,omitempty" toml:"metrics,omitempty"`
}

// NetworkConfig describes one chain and how to reach it.
type NetworkConfig struct {
	// Name is referenced by contract details (e.g. "ethereum", "base")
	Name string `yaml:"name" json:"name" toml:"name"`

	// RPCURL is the JSON-RPC endpoint; one connection per network is shared by all contracts
	RPCURL string `yaml:"rpc_url" json:"rpc_url" toml:"rpc_url"`

	// Retry contains RPC retry configuration with exponential backoff
	Retry *RetryConfig `yaml:"retry,omitempty" json:"retry,omitempty" toml:"retry,omitempty"`
}

// ApplyDefaults sets default values for optional network configuration fields.
func (n *NetworkConfig) ApplyDefaults() {
	if n.Retry != nil {
		n.Retry.ApplyDefaults()
	}
}

// RetryConfig represents RPC retry configuration with exponential backoff.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including initial request)
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts" toml:"max_attempts"`

	// InitialBackoff is the initial backoff duration before first retry
	InitialBackoff common.Duration `yaml:"initial_backoff" json:"initial_backoff" toml:"initial_backoff"`

	// MaxBackoff is the maximum backoff duration
	MaxBackoff common.Duration `yaml:"max_backoff" json:"max_backoff" toml:"max_backoff"`

	// BackoffMultiplier is the multiplier for exponential backoff
	BackoffMultiplier float64 `yaml:"backoff_multiplier" json:"backoff_multiplier" toml:"backoff_multiplier"`
}

// ApplyDefaults sets default values for retry configuration.
func (r *RetryConfig) ApplyDefaults() {
	if r.MaxAttempts == 0 {
		r.MaxAttempts = 5
	}
	if r.InitialBackoff.Duration == 0 {
		r.InitialBackoff = common.NewDuration(1 * time.Second)
	}
	if r.MaxBackoff.Duration == 0 {
		r.MaxBackoff = common.NewDuration(30 * time.Second) //nolint:mnd
	}
	if r.BackoffMultiplier == 0 {
		r.BackoffMultiplier = 2.0
	}
}

// DispatchConfig controls how failed callbacks are retried.
type DispatchConfig struct {
	// InitialBackoff is the wait after the first failed callback
	InitialBackoff common.Duration `yaml:"initial_backoff" json:"initial_backoff" toml:"initial_backoff"`

	// MaxBackoff caps the exponential wait
	MaxBackoff common.Duration `yaml:"max_backoff" json:"max_backoff" toml:"max_backoff"`

	// BackoffMultiplier grows the wait after every failure
	BackoffMultiplier float64 `yaml:"backoff_multiplier" json:"backoff_multiplier" toml:"backoff_multiplier"`

	// MaxJitter bounds the uniform random delay added to every wait
	MaxJitter common.Duration `yaml:"max_jitter" json:"max_jitter" toml:"max_jitter"`

	// MaxAttempts abandons a batch after this many callback invocations (0 = retry forever)
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts" toml:"max_attempts"`

	// ChunkSize is the block range per eth_getLogs call during backfill
	ChunkSize uint64 `yaml:"chunk_size" json:"chunk_size" toml:"chunk_size"`
}

// ApplyDefaults sets default values for dispatch configuration.
func (d *DispatchConfig) ApplyDefaults() {
	if d.InitialBackoff.Duration == 0 {
		d.InitialBackoff = common.NewDuration(100 * time.Millisecond) //nolint:mnd
	}
	if d.MaxBackoff.Duration == 0 {
		d.MaxBackoff = common.NewDuration(15 * time.Second) //nolint:mnd
	}
	if d.BackoffMultiplier == 0 {
		d.BackoffMultiplier = 2.0
	}
	if d.MaxJitter.Duration == 0 {
		d.MaxJitter = common.NewDuration(time.Second)
	}
	if d.ChunkSize == 0 {
		d.ChunkSize = 5000
	}
	// MaxAttempts defaults to 0 (unbounded)
}

// Validate checks if the dispatch configuration is valid.
func (d *DispatchConfig) Validate() error {
	if d.InitialBackoff.Duration > d.MaxBackoff.Duration {
		return fmt.Errorf("initial_backoff (%s) must not exceed max_backoff (%s)", d.InitialBackoff, d.MaxBackoff)
	}
	if d.BackoffMultiplier < 1 {
		return fmt.Errorf("backoff_multiplier must be >= 1")
	}
	if d.MaxAttempts < 0 {
		return fmt.Errorf("max_attempts must be >= 0")
	}
	if d.MaxJitter.Duration < 0 {
		return fmt.Errorf("max_jitter must not be negative")
	}

	return nil
}

// DatabaseConfig represents database configuration.
type DatabaseConfig struct {
	// Path is the file path to the SQLite database
	Path string `yaml:"path" json:"path" toml:"path"`

	// JournalMode sets the SQLite journal mode (e.g., "WAL", "DELETE")
	JournalMode string `yaml:"journal_mode" json:"journal_mode" toml:"journal_mode"`

	// Synchronous sets the synchronization level ("FULL", "NORMAL", "OFF")
	Synchronous string `yaml:"synchronous" json:"synchronous" toml:"synchronous"`

	// BusyTimeout is the time in milliseconds to wait when the database is locked
	BusyTimeout int `yaml:"busy_timeout" json:"busy_timeout" toml:"busy_timeout"`

	// MaxOpenConnections is the maximum number of open database connections
	MaxOpenConnections int `yaml:"max_open_connections" json:"max_open_connections" toml:"max_open_connections"`
}

// ApplyDefaults sets default values for optional database configuration fields.
func (d *DatabaseConfig) ApplyDefaults() {
	if d.JournalMode == "" {
		d.JournalMode = "WAL"
	}
	if d.Synchronous == "" {
		d.Synchronous = "NORMAL"
	}
	if d.BusyTimeout == 0 {
		d.BusyTimeout = 5000
	}
	if d.MaxOpenConnections == 0 {
		d.MaxOpenConnections = 4
	}
}

// Validate checks if the database configuration is valid.
func (d *DatabaseConfig) Validate() error {
	if d.Path == "" {
		return fmt.Errorf("path is required")
	}
	if !slices.Contains([]string{"WAL", "DELETE", "TRUNCATE", "PERSIST", "MEMORY"}, d.JournalMode) {
		return fmt.Errorf("journal_mode must be one of: WAL, DELETE, TRUNCATE, PERSIST, MEMORY")
	}
	if !slices.Contains([]string{"FULL", "NORMAL", "OFF"}, d.Synchronous) {
		return fmt.Errorf("synchronous must be one of: FULL, NORMAL, OFF")
	}

	return nil
}

// DeadLetterConfig enables persisting abandoned batches.
type DeadLetterConfig struct {
	Enabled bool           `yaml:"enabled" json:"enabled" toml:"enabled"`
	DB      DatabaseConfig `yaml:"db" json:"db" toml:"db"`
}

// LoggingConfig configures logging behavior with per-component log levels.
type LoggingConfig struct {
	// DefaultLevel is the default log level for all components
	// Options: "debug", "info", "warn", "error"
	DefaultLevel string `yaml:"default_level" json:"default_level" toml:"default_level"`

	// Development enables development mode (stack traces, console encoder)
	Development bool `yaml:"development" json:"development" toml:"development"`

	// ComponentLevels sets log levels for specific components
	// Available components: registry, dispatcher, provider, dead-letter, metrics, cli
	ComponentLevels map[string]string `yaml:"component_levels,omitempty" json:"component_levels,omitempty" toml:"component_levels,omitempty"` //nolint:lll
}

// ApplyDefaults sets default values for optional logging configuration fields.
func (l *LoggingConfig) ApplyDefaults() {
	if l.DefaultLevel == "" {
		l.DefaultLevel = "info"
	}
	if l.ComponentLevels == nil {
		l.ComponentLevels = make(map[string]string)
	}
}

// Validate checks if the logging configuration is valid.
func (l *LoggingConfig) Validate() error {
	if l.DefaultLevel != "" {
		if _, valid := logger.ValidLogLevels[common.ToLowerWithTrim(l.DefaultLevel)]; !valid {
			return fmt.Errorf("logging.default_level: must be one of: debug, info, warn, error")
		}
	}

	for component, level := range l.ComponentLevels {
		if _, validComponent := common.AllComponents[common.ToLowerWithTrim(component)]; !validComponent {
			return fmt.Errorf("logging.component_levels: unknown component '%s'", component)
		}

		if _, valid := logger.ValidLogLevels[common.ToLowerWithTrim(level)]; !valid {
			return fmt.Errorf("logging.component_levels[%s]: must be one of: debug, info, warn, error", component)
		}
	}

	return nil
}

// GetComponentLevel returns the log level for a specific component.
// Falls back to DefaultLevel if no component-specific level is set.
func (l *LoggingConfig) GetComponentLevel(component string) string {
	if l == nil {
		return ""
	}
	if level, ok := l.ComponentLevels[component]; ok {
		return common.ToLowerWithTrim(level)
	}
	return common.ToLowerWithTrim(l.DefaultLevel)
}

// GetDefaultLevel returns the default log level.
func (l *LoggingConfig) GetDefaultLevel() string {
	if l == nil {
		return ""
	}
	return common.ToLowerWithTrim(l.DefaultLevel)
}

// IsDevelopment returns whether development mode is enabled.
func (l *LoggingConfig) IsDevelopment() bool {
	return l != nil && l.Development
}

// MetricsConfig configures Prometheus metrics exposition.
type MetricsConfig struct {
	// Enabled controls whether metrics collection and HTTP endpoint are active
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// ListenAddress is the address to bind the metrics HTTP server to
	// Format: "host:port" or ":port"
	ListenAddress string `yaml:"listen_address" json:"listen_address" toml:"listen_address"`

	// Path is the HTTP path where metrics are exposed
	Path string `yaml:"path" json:"path" toml:"path"`
}

// ApplyDefaults sets default values for optional metrics configuration fields.
func (m *MetricsConfig) ApplyDefaults() {
	if m.ListenAddress == "" {
		m.ListenAddress = ":9090"
	}
	if m.Path == "" {
		m.Path = "/metrics"
	}
}

// Validate checks if the metrics configuration is valid.
func (m *MetricsConfig) Validate() error {
	if m.Enabled {
		if m.ListenAddress == "" {
			return fmt.Errorf("listen_address is required when metrics are enabled")
		}
		if m.Path == "" || m.Path[0] != '/' {
			return fmt.Errorf("path must start with '/'")
		}
	}
	return nil
}

// ApplyDefaults sets default values for optional configuration fields.
func (c *Config) ApplyDefaults() {
	for i := range c.Networks {
		c.Networks[i].ApplyDefaults()
	}

	c.Dispatch.ApplyDefaults()

	if c.DeadLetter != nil {
		c.DeadLetter.DB.ApplyDefaults()
	}

	if c.Logging != nil {
		c.Logging.ApplyDefaults()
	}

	if c.Metrics != nil {
		c.Metrics.ApplyDefaults()
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if len(c.Networks) == 0 {
		return fmt.Errorf("at least one network must be configured")
	}

	networks := make(map[string]struct{}, len(c.Networks))
	for i, network := range c.Networks {
		if network.Name == "" {
			return fmt.Errorf("networks[%d]: name is required", i)
		}
		if _, dup := networks[network.Name]; dup {
			return fmt.Errorf("networks[%d]: duplicate network name '%s'", i, network.Name)
		}
		networks[network.Name] = struct{}{}

		if network.RPCURL == "" {
			return fmt.Errorf("networks[%d] (%s): rpc_url is required", i, network.Name)
		}
	}

	if err := c.Dispatch.Validate(); err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}

	if c.DeadLetter != nil && c.DeadLetter.Enabled {
		if err := c.DeadLetter.DB.Validate(); err != nil {
			return fmt.Errorf("dead_letter.db: %w", err)
		}
	}

	if c.Logging != nil {
		if err := c.Logging.Validate(); err != nil {
			return err
		}
	}

	if c.Metrics != nil {
		if err := c.Metrics.Validate(); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}

	if len(c.Contracts) == 0 {
		return fmt.Errorf("at least one contract must be configured")
	}

	contractNames := make(map[string]struct{}, len(c.Contracts))
	for i, contract := range c.Contracts {
		if contract.Name == "" {
			return fmt.Errorf("contracts[%d]: name is required", i)
		}
		if _, dup := contractNames[contract.Name]; dup {
			return fmt.Errorf("contracts[%d]: duplicate contract name '%s'", i, contract.Name)
		}
		contractNames[contract.Name] = struct{}{}

		if err := contract.Validate(networks); err != nil {
			return fmt.Errorf("contracts[%d] (%s): %w", i, contract.Name, err)
		}
	}

	return nil
}

// ResolvePaths makes relative ABI paths relative to baseDir, usually the directory of the
// configuration file.
func (c *Config) ResolvePaths(baseDir string) {
	resolve := func(path string) string {
		if path == "" || filepath.IsAbs(path) {
			return path
		}
		return filepath.Join(baseDir, path)
	}

	for i := range c.Contracts {
		contract := &c.Contracts[i]
		contract.ABI = resolve(contract.ABI)

		for j := range contract.Details {
			if factory := contract.Details[j].Factory; factory != nil {
				factory.ABI = resolve(factory.ABI)
			}
		}
	}

	if c.DeadLetter != nil {
		c.DeadLetter.DB.Path = resolve(c.DeadLetter.DB.Path)
	}
}
