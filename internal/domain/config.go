package domain

import (
	"fmt"
	"time"
)

// Config holds the complete Kestrel configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines feature availability
	Tier Tier `json:"tier"`

	// Detector thresholds for the analytics core
	Detector DetectorConfig `json:"detector"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Alert policy (CEL expression over scored accounts)
	AlertPolicy string `json:"alertPolicy"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// DetectorConfig holds the thresholds and windows for the four detectors.
// Validated once at load; the core never sees an invalid config mid-run.
type DetectorConfig struct {
	// Cycle detection bounds (node count, inclusive)
	MinCycleLength int `json:"minCycleLength"`
	MaxCycleLength int `json:"maxCycleLength"`

	// Fan pattern: distinct counterparties within the window
	FanThreshold int           `json:"fanThreshold"`
	FanWindow    time.Duration `json:"fanWindow"`

	// Shell chain: max total activity (in+out) for an intermediate node
	ShellMaxActivity int `json:"shellMaxActivity"`
	MinChainLength   int `json:"minChainLength"`
	MaxChainLength   int `json:"maxChainLength"`
	MaxChains        int `json:"maxChains"`

	// Velocity: flat transaction-count threshold (in+out)
	VelocityThreshold int `json:"velocityThreshold"`

	// Ring clustering
	RingMinScore float64 `json:"ringMinScore"`
}

// Validate fails fast on threshold/window values the core cannot run with.
func (c DetectorConfig) Validate() error {
	if c.MinCycleLength < 2 {
		return fmt.Errorf("%w: minCycleLength must be >= 2, got %d", ErrInvalidConfig, c.MinCycleLength)
	}
	if c.MaxCycleLength < c.MinCycleLength {
		return fmt.Errorf("%w: maxCycleLength %d < minCycleLength %d", ErrInvalidConfig, c.MaxCycleLength, c.MinCycleLength)
	}
	if c.FanThreshold < 2 {
		return fmt.Errorf("%w: fanThreshold must be >= 2, got %d", ErrInvalidConfig, c.FanThreshold)
	}
	if c.FanWindow <= 0 {
		return fmt.Errorf("%w: fanWindow must be positive, got %v", ErrInvalidConfig, c.FanWindow)
	}
	if c.ShellMaxActivity < 1 {
		return fmt.Errorf("%w: shellMaxActivity must be >= 1, got %d", ErrInvalidConfig, c.ShellMaxActivity)
	}
	if c.MinChainLength < 3 {
		return fmt.Errorf("%w: minChainLength must be >= 3, got %d", ErrInvalidConfig, c.MinChainLength)
	}
	if c.MaxChainLength < c.MinChainLength {
		return fmt.Errorf("%w: maxChainLength %d < minChainLength %d", ErrInvalidConfig, c.MaxChainLength, c.MinChainLength)
	}
	if c.MaxChains < 1 {
		return fmt.Errorf("%w: maxChains must be >= 1, got %d", ErrInvalidConfig, c.MaxChains)
	}
	if c.VelocityThreshold < 1 {
		return fmt.Errorf("%w: velocityThreshold must be >= 1, got %d", ErrInvalidConfig, c.VelocityThreshold)
	}
	if c.RingMinScore < 0 || c.RingMinScore > 100 {
		return fmt.Errorf("%w: ringMinScore must be in [0,100], got %v", ErrInvalidConfig, c.RingMinScore)
	}
	return nil
}

// DefaultDetectorConfig returns the documented detection thresholds.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		MinCycleLength:    3,
		MaxCycleLength:    5,
		FanThreshold:      10,
		FanWindow:         72 * time.Hour,
		ShellMaxActivity:  3,
		MinChainLength:    3,
		MaxChainLength:    6,
		MaxChains:         1000,
		VelocityThreshold: 10,
		RingMinScore:      30,
	}
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds

	// AnalysisTimeout caps a single analysis run. Enforced at the service
	// boundary via context; the core itself never blocks on I/O.
	AnalysisTimeout int `json:"analysisTimeout"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled"`
	ServiceName  string `json:"serviceName"`
	ExporterType string `json:"exporterType"` // stdout, otlp, jaeger
	Endpoint     string `json:"endpoint"`
}

// Tier represents the product tier.
type Tier string

const (
	// TierCommunity is the free tier with SQLite + channels
	TierCommunity Tier = "community"

	// TierPro is the paid tier with PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30,
			WriteTimeout:    60,
			AnalysisTimeout: 30,
		},
		Tier:     TierCommunity,
		Detector: DefaultDetectorConfig(),
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     300 * time.Second,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		AlertPolicy: "score >= 80.0",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "kestrel",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "kestrel",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
