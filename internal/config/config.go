// Package config holds arbcore's flat configuration record, loaded
// from YAML with environment overrides, following the same
// Default()/LoadFile()/ApplyEnv()/Validate() shape the teacher repo
// uses for its own Config.
package config

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full set of options named in SPEC_FULL.md §6.
type Config struct {
	DryRun   bool   `yaml:"dry_run"`
	LogLevel string `yaml:"log_level"`
	LogDev   bool   `yaml:"log_dev"`

	Exchange ExchangeConfig `yaml:"exchange"`
	Risk     RiskConfig     `yaml:"risk"`
	Detect   DetectConfig   `yaml:"detect"`
	Exec     ExecConfig     `yaml:"exec"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	API      APIConfig      `yaml:"api"`
	Alert    AlertConfig    `yaml:"alert"`
	Store    StoreConfig    `yaml:"store"`
	LLM      LLMConfig      `yaml:"llm"`
}

type ExchangeConfig struct {
	BaseURL             string        `yaml:"base_url"`
	WSURL               string        `yaml:"ws_url"`
	APIKeyID            string        `yaml:"api_key_id"`
	APISecret           string        `yaml:"api_secret"`
	Timeout             time.Duration `yaml:"timeout"`
	RateLimitN          int           `yaml:"rate_limit_per_second"`
	FeeRatePerContractC int           `yaml:"fee_rate_per_contract_cents"`
}

// LLMConfig points at the external relationship discovery/revalidation
// collaborator (internal/adapter/llm). Disabled by default: without it
// no revalidator is wired and the catalog's revalidation sweep does
// nothing.
type LLMConfig struct {
	Enabled bool          `yaml:"enabled"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type CatalogConfig struct {
	ConfidenceFloor      float64       `yaml:"confidence_floor"`
	RevalidateInterval   time.Duration `yaml:"revalidate_interval"`
	KappaFloor           float64       `yaml:"kappa_floor"`
}

type DetectConfig struct {
	FullScanInterval        time.Duration `yaml:"full_scan_interval"`
	OpportunityRecheck      time.Duration `yaml:"opportunity_recheck"`
	OpportunityTTL          time.Duration `yaml:"opportunity_ttl"`
	MinScoreThreshold       float64       `yaml:"min_score_threshold"`
	FeeSafetyMultiplier     float64       `yaml:"fee_safety_multiplier"`
	PartitionEpsilonCents   int           `yaml:"partition_epsilon_cents"`
	ImplicationSoftThreshold int          `yaml:"implication_soft_threshold_cents"`
	RequireHumanForImplication bool       `yaml:"require_human_for_implication"`
}

type ExecConfig struct {
	OrderDeadline      time.Duration `yaml:"order_deadline"`
	HedgeWidenCents    int           `yaml:"hedge_widen_cents"`
	MaxUnwindLossCents int           `yaml:"max_unwind_loss_cents"`
	Workers            int           `yaml:"workers"`
	QueueCapacity      int           `yaml:"queue_capacity"`
	CancelRetries      int           `yaml:"cancel_retries"`
}

type RiskConfig struct {
	MaxRiskPerTradePct    float64 `yaml:"max_risk_per_trade_pct"`
	MaxDailyLossCents     int     `yaml:"max_daily_loss_cents"`
	MaxOpenPositions      int     `yaml:"max_open_positions"`
	MaxContractsPerTrade  int     `yaml:"max_contracts_per_trade"`
	MaxContractsPerMarket int     `yaml:"max_contracts_per_market"`
	AccountBalanceCents   int     `yaml:"account_balance_cents"`
	KillSwitch            bool    `yaml:"kill_switch"`
	RiskSyncInterval      time.Duration `yaml:"risk_sync_interval"`
}

type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type AlertConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

// Default returns the out-of-the-box configuration: dry-run, modest
// caps, a local sqlite file.
func Default() Config {
	return Config{
		DryRun:   true,
		LogLevel: "info",
		Exchange: ExchangeConfig{
			Timeout:             10 * time.Second,
			RateLimitN:          5,
			FeeRatePerContractC: 2,
		},
		LLM: LLMConfig{
			Timeout: 10 * time.Second,
		},
		Catalog: CatalogConfig{
			ConfidenceFloor:    0.7,
			RevalidateInterval: 7 * 24 * time.Hour,
			KappaFloor:         0.9,
		},
		Detect: DetectConfig{
			FullScanInterval:           60 * time.Second,
			OpportunityRecheck:         15 * time.Second,
			OpportunityTTL:             15 * time.Second,
			MinScoreThreshold:          0.05,
			FeeSafetyMultiplier:        2.0,
			PartitionEpsilonCents:      1,
			ImplicationSoftThreshold:   5,
			RequireHumanForImplication: true,
		},
		Exec: ExecConfig{
			OrderDeadline:      30 * time.Second,
			HedgeWidenCents:    1,
			MaxUnwindLossCents: 50,
			Workers:            4,
			QueueCapacity:      100,
			CancelRetries:      3,
		},
		Risk: RiskConfig{
			MaxRiskPerTradePct:    0.02,
			MaxDailyLossCents:     50_00,
			MaxOpenPositions:      10,
			MaxContractsPerTrade:  50,
			MaxContractsPerMarket: 200,
			AccountBalanceCents:   100_000_00,
			RiskSyncInterval:      5 * time.Second,
		},
		API: APIConfig{
			Enabled: true,
			Addr:    ":8080",
		},
		Store: StoreConfig{
			Path: "arbcore.db",
		},
	}
}

// LoadFile reads YAML config from path, starting from Default() so
// any field the file omits keeps its default value.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyEnv overlays secrets and a few operational toggles from the
// environment, so credentials never need to live in the YAML file.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("ARBCORE_API_KEY_ID"); v != "" {
		c.Exchange.APIKeyID = v
	}
	if v := os.Getenv("ARBCORE_API_SECRET"); v != "" {
		c.Exchange.APISecret = v
	}
	if v := os.Getenv("ARBCORE_ALERT_WEBHOOK"); v != "" {
		c.Alert.WebhookURL = v
	}
	if v := strings.TrimSpace(os.Getenv("ARBCORE_DRY_RUN")); v != "" {
		c.DryRun = strings.EqualFold(v, "true") || v == "1"
	}
	if v := strings.TrimSpace(os.Getenv("ARBCORE_KILL_SWITCH")); v != "" {
		c.Risk.KillSwitch = strings.EqualFold(v, "true") || v == "1"
	}
}
