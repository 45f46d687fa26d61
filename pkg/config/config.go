package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pulseengine/pulse/pkg/errors"
)

// WeightEpsilon is the tolerance applied when checking that a weight set
// sums to 1.0.
const WeightEpsilon = 1e-9

// Config holds the application configuration
type Config struct {
	Server    ServerConfig    `json:"server"`
	Logging   LoggingConfig   `json:"logging"`
	Redis     RedisConfig     `json:"redis"`
	Sources   SourcesConfig   `json:"sources"`
	Engine    EngineConfig    `json:"engine"`
	Retry     RetryConfig     `json:"retry"`
	Cache     CacheConfig     `json:"cache"`
	Relations RelationsConfig `json:"relations"`
	Health    HealthConfig    `json:"health"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	Output string `json:"output"`
}

// RedisConfig contains the optional snapshot store connection. An empty
// Addr disables crash-recovery snapshots entirely.
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// SourcesConfig contains the endpoints of the external data providers.
// Empty URLs disable the corresponding adapter.
type SourcesConfig struct {
	TrackerURL  string `json:"tracker_url"`
	LedgerURL   string `json:"ledger_url"`
	CommsURL    string `json:"comms_url"`
	CalendarURL string `json:"calendar_url"`
}

// EngineConfig contains scheduling configuration for the scoring cycle
type EngineConfig struct {
	CycleInterval time.Duration `json:"cycle_interval"`
	CycleDeadline time.Duration `json:"cycle_deadline"`
	CallTimeout   time.Duration `json:"call_timeout"`
	MaxInFlight   int           `json:"max_in_flight"`
}

// RetryConfig contains retry policy parameters for source calls
type RetryConfig struct {
	MaxRetries int           `json:"max_retries"`
	BaseDelay  time.Duration `json:"base_delay"`
	MaxDelay   time.Duration `json:"max_delay"`
	// JitterSeed seeds the jitter RNG; 0 means seed from the clock.
	JitterSeed int64 `json:"jitter_seed"`
}

// CacheConfig contains TTL and monitoring configuration
type CacheConfig struct {
	FastTTL             time.Duration `json:"fast_ttl"`
	SlowTTL             time.Duration `json:"slow_ttl"`
	QualityThreshold    float64       `json:"quality_threshold"`
	LatencyP95Threshold time.Duration `json:"latency_p95_threshold"`
	LatencyWindow       int           `json:"latency_window"`
}

// RelationsConfig contains relationship scoring configuration
type RelationsConfig struct {
	TagWeight      float64 `json:"tag_weight"`
	OrgWeight      float64 `json:"org_weight"`
	PlaceWeight    float64 `json:"place_weight"`
	CrossRefWeight float64 `json:"cross_ref_weight"`
	MinScore       float64 `json:"min_score"`
	TopK           int     `json:"top_k"`
}

// HealthConfig contains health scoring and need detection configuration
type HealthConfig struct {
	FundingWeight      float64 `json:"funding_weight"`
	PeopleWeight       float64 `json:"people_weight"`
	MomentumWeight     float64 `json:"momentum_weight"`
	OwnershipWeight    float64 `json:"ownership_weight"`
	CompletenessWeight float64 `json:"completeness_weight"`

	// NeutralScore is assigned to a dimension whose inputs are missing, so
	// incompleteness is penalized only through the completeness dimension.
	NeutralScore float64 `json:"neutral_score"`

	CriticalFundingGap   decimal.Decimal `json:"critical_funding_gap"`
	EngagementWindowDays int             `json:"engagement_window_days"`
	LowEngagementCount   int             `json:"low_engagement_count"`
	HealthyEngagement    int             `json:"healthy_engagement"`
	StaleActivityDays    int             `json:"stale_activity_days"`
	MomentumDecayDays    int             `json:"momentum_decay_days"`
	MinFieldCoverage     float64         `json:"min_field_coverage"`
}

// Load loads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Host:         getEnvString("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnvString("LOG_LEVEL", "info"),
			Format: getEnvString("LOG_FORMAT", "json"),
			Output: getEnvString("LOG_OUTPUT", "stdout"),
		},
		Redis: RedisConfig{
			Addr:     getEnvString("REDIS_ADDR", ""),
			Password: getEnvString("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Sources: SourcesConfig{
			TrackerURL:  getEnvString("SOURCE_TRACKER_URL", ""),
			LedgerURL:   getEnvString("SOURCE_LEDGER_URL", ""),
			CommsURL:    getEnvString("SOURCE_COMMS_URL", ""),
			CalendarURL: getEnvString("SOURCE_CALENDAR_URL", ""),
		},
		Engine: EngineConfig{
			CycleInterval: getEnvDuration("ENGINE_CYCLE_INTERVAL", 5*time.Minute),
			CycleDeadline: getEnvDuration("ENGINE_CYCLE_DEADLINE", 2*time.Minute),
			CallTimeout:   getEnvDuration("ENGINE_CALL_TIMEOUT", 10*time.Second),
			MaxInFlight:   getEnvInt("ENGINE_MAX_IN_FLIGHT", 8),
		},
		Retry: RetryConfig{
			MaxRetries: getEnvInt("RETRY_MAX_RETRIES", 3),
			BaseDelay:  getEnvDuration("RETRY_BASE_DELAY", 200*time.Millisecond),
			MaxDelay:   getEnvDuration("RETRY_MAX_DELAY", 30*time.Second),
			JitterSeed: getEnvInt64("RETRY_JITTER_SEED", 0),
		},
		Cache: CacheConfig{
			FastTTL:             getEnvDuration("CACHE_FAST_TTL", 15*time.Minute),
			SlowTTL:             getEnvDuration("CACHE_SLOW_TTL", 6*time.Hour),
			QualityThreshold:    getEnvFloat("CACHE_QUALITY_THRESHOLD", 0.3),
			LatencyP95Threshold: getEnvDuration("CACHE_LATENCY_P95_THRESHOLD", 5*time.Second),
			LatencyWindow:       getEnvInt("CACHE_LATENCY_WINDOW", 100),
		},
		Relations: RelationsConfig{
			TagWeight:      getEnvFloat("RELATIONS_TAG_WEIGHT", 0.4),
			OrgWeight:      getEnvFloat("RELATIONS_ORG_WEIGHT", 0.3),
			PlaceWeight:    getEnvFloat("RELATIONS_PLACE_WEIGHT", 0.2),
			CrossRefWeight: getEnvFloat("RELATIONS_CROSS_REF_WEIGHT", 0.1),
			MinScore:       getEnvFloat("RELATIONS_MIN_SCORE", 0.3),
			TopK:           getEnvInt("RELATIONS_TOP_K", 10),
		},
		Health: HealthConfig{
			FundingWeight:        getEnvFloat("HEALTH_FUNDING_WEIGHT", 0.25),
			PeopleWeight:         getEnvFloat("HEALTH_PEOPLE_WEIGHT", 0.25),
			MomentumWeight:       getEnvFloat("HEALTH_MOMENTUM_WEIGHT", 0.20),
			OwnershipWeight:      getEnvFloat("HEALTH_OWNERSHIP_WEIGHT", 0.20),
			CompletenessWeight:   getEnvFloat("HEALTH_COMPLETENESS_WEIGHT", 0.10),
			NeutralScore:         getEnvFloat("HEALTH_NEUTRAL_SCORE", 50),
			CriticalFundingGap:   getEnvDecimal("HEALTH_CRITICAL_FUNDING_GAP", "20000"),
			EngagementWindowDays: getEnvInt("HEALTH_ENGAGEMENT_WINDOW_DAYS", 90),
			LowEngagementCount:   getEnvInt("HEALTH_LOW_ENGAGEMENT_COUNT", 1),
			HealthyEngagement:    getEnvInt("HEALTH_HEALTHY_ENGAGEMENT", 20),
			StaleActivityDays:    getEnvInt("HEALTH_STALE_ACTIVITY_DAYS", 45),
			MomentumDecayDays:    getEnvInt("HEALTH_MOMENTUM_DECAY_DAYS", 90),
			MinFieldCoverage:     getEnvFloat("HEALTH_MIN_FIELD_COVERAGE", 0.5),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration. Any violation is fatal at startup.
func (c *Config) Validate() error {
	relSum := c.Relations.TagWeight + c.Relations.OrgWeight +
		c.Relations.PlaceWeight + c.Relations.CrossRefWeight
	if math.Abs(relSum-1.0) > WeightEpsilon {
		return errors.NewConfigurationError(
			fmt.Sprintf("relationship weights must sum to 1.0, got %v", relSum))
	}

	healthSum := c.Health.FundingWeight + c.Health.PeopleWeight +
		c.Health.MomentumWeight + c.Health.OwnershipWeight + c.Health.CompletenessWeight
	if math.Abs(healthSum-1.0) > WeightEpsilon {
		return errors.NewConfigurationError(
			fmt.Sprintf("health dimension weights must sum to 1.0, got %v", healthSum))
	}

	if c.Relations.MinScore < 0 || c.Relations.MinScore > 1 {
		return errors.NewConfigurationError("relations min score must be in [0,1]")
	}
	if c.Relations.TopK <= 0 {
		return errors.NewConfigurationError("relations top-k must be positive")
	}

	if c.Health.NeutralScore < 0 || c.Health.NeutralScore > 100 {
		return errors.NewConfigurationError("health neutral score must be in [0,100]")
	}
	if c.Health.CriticalFundingGap.IsNegative() {
		return errors.NewConfigurationError("critical funding gap must not be negative")
	}
	if c.Health.EngagementWindowDays <= 0 || c.Health.StaleActivityDays <= 0 ||
		c.Health.MomentumDecayDays <= 0 || c.Health.HealthyEngagement <= 0 {
		return errors.NewConfigurationError("health day windows and engagement targets must be positive")
	}
	if c.Health.MinFieldCoverage < 0 || c.Health.MinFieldCoverage > 1 {
		return errors.NewConfigurationError("min field coverage must be in [0,1]")
	}

	if c.Engine.CycleInterval <= 0 || c.Engine.CycleDeadline <= 0 || c.Engine.CallTimeout <= 0 {
		return errors.NewConfigurationError("engine intervals and timeouts must be positive")
	}
	if c.Engine.MaxInFlight <= 0 {
		return errors.NewConfigurationError("engine max in-flight calls must be positive")
	}

	if c.Retry.MaxRetries < 0 {
		return errors.NewConfigurationError("retry count must not be negative")
	}
	if c.Retry.BaseDelay <= 0 || c.Retry.MaxDelay <= 0 {
		return errors.NewConfigurationError("retry delays must be positive")
	}

	if c.Cache.FastTTL <= 0 || c.Cache.SlowTTL <= 0 {
		return errors.NewConfigurationError("cache TTLs must be positive")
	}
	if c.Cache.QualityThreshold < 0 || c.Cache.QualityThreshold > 1 {
		return errors.NewConfigurationError("quality threshold must be in [0,1]")
	}
	if c.Cache.LatencyWindow <= 0 {
		return errors.NewConfigurationError("latency window must be positive")
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvDecimal(key, defaultValue string) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	d, _ := decimal.NewFromString(defaultValue)
	return d
}
