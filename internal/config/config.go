package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	JWT        JWTConfig        `yaml:"jwt"`
	OpenAI     OpenAIConfig     `yaml:"openai"`
	Redis      RedisConfig      `yaml:"redis"`
	Governance GovernanceConfig `yaml:"governance"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
	Mode string `yaml:"mode"` // debug, release, test
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite, mysql, postgres
	DSN    string `yaml:"dsn"`
}

type JWTConfig struct {
	Secret     string `yaml:"secret"`
	ExpireHour int    `yaml:"expire_hour"`
}

type OpenAIConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// RedisConfig backs the governance counters and the async archive queue.
// When disabled, both fall back to in-process implementations.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// TierConfig holds the per-tier quota policy.
type TierConfig struct {
	RequestsPerDay     int     `yaml:"requests_per_day"`
	MonthlyTokenBudget int64   `yaml:"monthly_token_budget"`
	DailyCostLimit     float64 `yaml:"daily_cost_limit"`
	MonthlyCostLimit   float64 `yaml:"monthly_cost_limit"`
}

// ModelCost is the USD price per 1000 tokens, input and output priced
// independently.
type ModelCost struct {
	InputCostPer1K  float64 `yaml:"input_cost_per_1k"`
	OutputCostPer1K float64 `yaml:"output_cost_per_1k"`
}

// GovernanceConfig holds the static policy tables for the AI governance
// layer: tier quotas, feature token allocations, and model prices.
type GovernanceConfig struct {
	Tiers         map[string]TierConfig `yaml:"tiers"`
	FeatureLimits map[string]float64    `yaml:"feature_limits"`
	ModelCosts    map[string]ModelCost  `yaml:"model_costs"`
	// RetentionDays controls how long archived call logs are kept.
	RetentionDays int `yaml:"retention_days"`
}

// Subscription tier names.
const (
	TierFree     = "free"
	TierStandard = "standard"
	TierPremium  = "premium"
)

// AI feature types. These are wire values shared with the frontend.
const (
	FeatureWritingContinuation  = "writingContinuation"
	FeatureCharacterDevelopment = "characterDevelopment"
	FeaturePlotAnalysis         = "plotAnalysis"
	FeatureDialogueEnhancement  = "dialogueEnhancement"
)

// DefaultFeatureFraction is applied when a feature type is not listed in
// FeatureLimits, so an unrecognized feature degrades to a conservative
// slice instead of zero. Callers must not rely on it.
const DefaultFeatureFraction = 0.25

var GlobalConfig *Config

func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	var cfg *Config

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg = DefaultConfig()
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}

		var fileCfg Config
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return nil, err
		}
		cfg = &fileCfg
	}

	cfg.fillGovernanceDefaults()
	cfg.overrideFromEnv()
	GlobalConfig = cfg
	return cfg, nil
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: "8080",
			Mode: "debug",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "novylist.db",
		},
		JWT: JWTConfig{
			Secret:     "novylist-secret-key-change-in-production",
			ExpireHour: 24,
		},
		OpenAI: OpenAIConfig{
			BaseURL: "https://api.openai.com/v1",
		},
		Redis: RedisConfig{
			Enabled: false,
			Addr:    "localhost:6379",
			DB:      0,
		},
		Governance: DefaultGovernanceConfig(),
	}
}

// DefaultGovernanceConfig returns the built-in policy tables. A config file
// may override any table wholesale; empty tables are filled from these
// defaults.
func DefaultGovernanceConfig() GovernanceConfig {
	return GovernanceConfig{
		Tiers: map[string]TierConfig{
			TierFree: {
				RequestsPerDay:     20,
				MonthlyTokenBudget: 100_000,
				DailyCostLimit:     0.25,
				MonthlyCostLimit:   5.00,
			},
			TierStandard: {
				RequestsPerDay:     100,
				MonthlyTokenBudget: 500_000,
				DailyCostLimit:     1.00,
				MonthlyCostLimit:   25.00,
			},
			// Premium limits are tracked for reporting but never enforced.
			TierPremium: {
				RequestsPerDay:     1000,
				MonthlyTokenBudget: 2_000_000,
				DailyCostLimit:     5.00,
				MonthlyCostLimit:   100.00,
			},
		},
		FeatureLimits: map[string]float64{
			FeatureWritingContinuation:  0.70,
			FeatureCharacterDevelopment: 0.10,
			FeaturePlotAnalysis:         0.10,
			FeatureDialogueEnhancement:  0.10,
		},
		ModelCosts: map[string]ModelCost{
			"gpt-3.5-turbo":     {InputCostPer1K: 0.0015, OutputCostPer1K: 0.002},
			"gpt-3.5-turbo-16k": {InputCostPer1K: 0.003, OutputCostPer1K: 0.004},
			"gpt-4":             {InputCostPer1K: 0.03, OutputCostPer1K: 0.06},
			"gpt-4-turbo":       {InputCostPer1K: 0.01, OutputCostPer1K: 0.03},
		},
		RetentionDays: 90,
	}
}

// Tier returns the quota policy for the given tier, falling back to the
// free tier for unknown names so a bad claim never grants extra budget.
func (g *GovernanceConfig) Tier(name string) TierConfig {
	if t, ok := g.Tiers[name]; ok {
		return t
	}
	return g.Tiers[TierFree]
}

// FeatureFraction returns the token allocation fraction for a feature type.
func (g *GovernanceConfig) FeatureFraction(feature string) float64 {
	if f, ok := g.FeatureLimits[feature]; ok {
		return f
	}
	return DefaultFeatureFraction
}

// ModelCostFor returns the price entry for a model, defaulting to the
// cheapest general-purpose model when the name is unknown.
func (g *GovernanceConfig) ModelCostFor(model string) ModelCost {
	if c, ok := g.ModelCosts[model]; ok {
		return c
	}
	return g.ModelCosts["gpt-3.5-turbo"]
}

func (c *Config) fillGovernanceDefaults() {
	def := DefaultGovernanceConfig()
	if len(c.Governance.Tiers) == 0 {
		c.Governance.Tiers = def.Tiers
	}
	if len(c.Governance.FeatureLimits) == 0 {
		c.Governance.FeatureLimits = def.FeatureLimits
	}
	if len(c.Governance.ModelCosts) == 0 {
		c.Governance.ModelCosts = def.ModelCosts
	}
	if c.Governance.RetentionDays <= 0 {
		c.Governance.RetentionDays = def.RetentionDays
	}
}

func (c *Config) overrideFromEnv() {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		c.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		c.Server.Port = port
	}
	if mode := os.Getenv("SERVER_MODE"); mode != "" {
		c.Server.Mode = mode
	}
	if driver := os.Getenv("DB_DRIVER"); driver != "" {
		c.Database.Driver = driver
	}
	if dsn := os.Getenv("DB_DSN"); dsn != "" {
		c.Database.DSN = dsn
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		c.JWT.Secret = secret
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		c.OpenAI.BaseURL = baseURL
	}
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		c.OpenAI.APIKey = apiKey
	}
	// Redis URL override (format: redis://:password@host:port/db)
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		c.Redis.Enabled = true
		c.parseRedisURL(redisURL)
	}
}

// parseRedisURL parses a Redis URL and sets config values
// Format: redis://:password@host:port/db
func (c *Config) parseRedisURL(redisURL string) {
	url := strings.TrimPrefix(redisURL, "redis://")

	if atIdx := strings.Index(url, "@"); atIdx != -1 {
		authPart := url[:atIdx]
		url = url[atIdx+1:]
		// Password format: :password or user:password
		if colonIdx := strings.Index(authPart, ":"); colonIdx != -1 {
			c.Redis.Password = authPart[colonIdx+1:]
		}
	}

	if slashIdx := strings.LastIndex(url, "/"); slashIdx != -1 {
		dbStr := url[slashIdx+1:]
		url = url[:slashIdx]
		if db, err := strconv.Atoi(dbStr); err == nil {
			c.Redis.DB = db
		}
	}

	c.Redis.Addr = url
}

func (c *Config) Save(configPath string) error {
	if configPath == "" {
		configPath = "config.yaml"
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0644)
}
