// Package config provides the simulation configuration.
//
// Configuration is loaded from environment variables (with an optional .env
// file) on top of the canonical market parameterisation. CLI flags override
// loaded values in cmd/simulator. All monetary values are integer cents and
// all frequencies are per 360-day year.
package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/aristath/marketsim/internal/money"
)

// Broker lead-selection policies.
const (
	BrokerRoundRobin = "round_robin"
	BrokerWeighted   = "weighted"
)

// Severity distribution kinds.
const (
	DistLogNormal = "lognormal"
	DistPareto    = "pareto"
)

// SeverityConfig describes a damage-fraction distribution. Draws are
// clipped to [0, 1] regardless of kind.
type SeverityConfig struct {
	Dist  string  // DistLogNormal or DistPareto
	Mu    float64 // lognormal log-mean
	Sigma float64 // lognormal log-stddev
	Scale float64 // Pareto minimum damage fraction
	Shape float64 // Pareto tail index
}

// PerilConfig describes one catastrophe peril. A separate occurrence
// process runs per (peril, region) pair.
type PerilConfig struct {
	Name            string
	AnnualFrequency float64
	Regions         []string
	Severity        SeverityConfig
}

// AttritionalConfig describes the per-policy background loss process.
type AttritionalConfig struct {
	AnnualRate float64 // Poisson occurrence rate per policy-year
	Mu         float64 // damage fraction lognormal log-mean
	Sigma      float64 // damage fraction lognormal log-stddev
}

// InsurerConfig describes the insurer population and its pricing
// parameters. All insurers share one parameterisation in the canonical
// configuration.
type InsurerConfig struct {
	Count             int
	InitialCapital    money.Cents
	ExpenseLoad       float64 // load on expected loss when computing ATP
	MarginBps         int64   // underwriting margin over ATP, basis points
	MarginJitterBps   int64   // per-quote margin noise ceiling, basis points
	AppetiteMultiple  float64 // decline when cat exposure would exceed this multiple of capital; 0 disables
	ConcentrationLoad float64 // cat EL multiplier slope per unit of exposure/capital
}

// Config is the full simulation configuration for one run batch.
type Config struct {
	Seed          uint64
	Runs          int
	WarmupYears   int
	AnalysisYears int

	Population  int
	SumInsured  money.Cents
	Territories []string

	Attritional AttritionalConfig
	CatPerils   []PerilConfig

	Insurers InsurerConfig

	BrokerPolicy      string
	BrokerShares      []float64 // used by BrokerWeighted; defaults to equal shares
	AcceptProbability float64   // 1.0 = the insured always accepts the lead quote

	OutputPath string
	CSVPath    string
	IndexPath  string
	Quiet      bool
	LogLevel   string
}

// Canonical returns the default market parameterisation: one hundred
// insureds split across three territories, five insurers, attritional plus
// a single Atlantic windstorm peril.
func Canonical() *Config {
	return &Config{
		Seed:          1,
		Runs:          1,
		WarmupYears:   2,
		AnalysisYears: 10,

		Population:  100,
		SumInsured:  5_000_000_000, // 50M in cents
		Territories: []string{"NorthAtlantic", "Gulf", "Caribbean"},

		Attritional: AttritionalConfig{
			AnnualRate: 2.0,
			Mu:         math.Log(0.01),
			Sigma:      0.5,
		},
		CatPerils: []PerilConfig{
			{
				Name:            "WindstormAtlantic",
				AnnualFrequency: 0.4,
				Regions:         []string{"NorthAtlantic", "Gulf"},
				Severity: SeverityConfig{
					Dist:  DistLogNormal,
					Mu:    math.Log(0.05),
					Sigma: 0.8,
				},
			},
		},

		Insurers: InsurerConfig{
			Count:             5,
			InitialCapital:    50_000_000_000, // 500M in cents
			ExpenseLoad:       0.15,
			MarginBps:         1200,
			MarginJitterBps:   300,
			AppetiteMultiple:  4.0,
			ConcentrationLoad: 0.25,
		},

		BrokerPolicy:      BrokerRoundRobin,
		AcceptProbability: 1.0,

		OutputPath: "events.ndjson",
		LogLevel:   "info",
	}
}

// Load builds the configuration from the canonical defaults overridden by
// environment variables. A .env file in the working directory is honoured
// when present.
func Load() (*Config, error) {
	// .env is optional; ignore a missing file
	_ = godotenv.Load()

	cfg := Canonical()

	var err error
	if cfg.Seed, err = envUint("SIM_SEED", cfg.Seed); err != nil {
		return nil, err
	}
	if cfg.Runs, err = envInt("SIM_RUNS", cfg.Runs); err != nil {
		return nil, err
	}
	if cfg.WarmupYears, err = envInt("SIM_WARMUP_YEARS", cfg.WarmupYears); err != nil {
		return nil, err
	}
	if cfg.AnalysisYears, err = envInt("SIM_ANALYSIS_YEARS", cfg.AnalysisYears); err != nil {
		return nil, err
	}
	if cfg.Population, err = envInt("SIM_POPULATION", cfg.Population); err != nil {
		return nil, err
	}
	if cfg.SumInsured, err = envCents("SIM_SUM_INSURED", cfg.SumInsured); err != nil {
		return nil, err
	}
	cfg.Territories = envList("SIM_TERRITORIES", cfg.Territories)

	if cfg.Attritional.AnnualRate, err = envFloat("SIM_ATTRITIONAL_RATE", cfg.Attritional.AnnualRate); err != nil {
		return nil, err
	}
	if cfg.Attritional.Mu, err = envFloat("SIM_ATTRITIONAL_MU", cfg.Attritional.Mu); err != nil {
		return nil, err
	}
	if cfg.Attritional.Sigma, err = envFloat("SIM_ATTRITIONAL_SIGMA", cfg.Attritional.Sigma); err != nil {
		return nil, err
	}
	for i := range cfg.CatPerils {
		key := fmt.Sprintf("SIM_CAT_FREQUENCY_%d", i)
		if cfg.CatPerils[i].AnnualFrequency, err = envFloat(key, cfg.CatPerils[i].AnnualFrequency); err != nil {
			return nil, err
		}
	}

	if cfg.Insurers.Count, err = envInt("SIM_INSURER_COUNT", cfg.Insurers.Count); err != nil {
		return nil, err
	}
	if cfg.Insurers.InitialCapital, err = envCents("SIM_INSURER_CAPITAL", cfg.Insurers.InitialCapital); err != nil {
		return nil, err
	}
	if cfg.Insurers.ExpenseLoad, err = envFloat("SIM_EXPENSE_LOAD", cfg.Insurers.ExpenseLoad); err != nil {
		return nil, err
	}
	if cfg.Insurers.MarginBps, err = envInt64("SIM_MARGIN_BPS", cfg.Insurers.MarginBps); err != nil {
		return nil, err
	}
	if cfg.Insurers.MarginJitterBps, err = envInt64("SIM_MARGIN_JITTER_BPS", cfg.Insurers.MarginJitterBps); err != nil {
		return nil, err
	}
	if cfg.Insurers.AppetiteMultiple, err = envFloat("SIM_APPETITE_MULTIPLE", cfg.Insurers.AppetiteMultiple); err != nil {
		return nil, err
	}

	cfg.BrokerPolicy = envString("SIM_BROKER_POLICY", cfg.BrokerPolicy)
	if cfg.AcceptProbability, err = envFloat("SIM_ACCEPT_PROBABILITY", cfg.AcceptProbability); err != nil {
		return nil, err
	}

	cfg.OutputPath = envString("SIM_OUTPUT", cfg.OutputPath)
	cfg.CSVPath = envString("SIM_CSV", cfg.CSVPath)
	cfg.IndexPath = envString("SIM_INDEX", cfg.IndexPath)
	cfg.LogLevel = envString("SIM_LOG_LEVEL", cfg.LogLevel)

	return cfg, nil
}

// TotalYears returns warm-up plus analysis years.
func (c *Config) TotalYears() int {
	return c.WarmupYears + c.AnalysisYears
}

// Horizon returns the hard scheduling horizon in days: submissions are
// generated for every configured year and the loop then drains through a
// one-policy-term run-off window so every bound policy expires inside the
// log.
func (c *Config) Horizon() int {
	return c.TotalYears()*money.DaysPerYear + money.DaysPerYear + 2
}

// Validate checks the configuration for startup errors.
func (c *Config) Validate() error {
	if c.Runs < 1 {
		return fmt.Errorf("runs must be >= 1, got %d", c.Runs)
	}
	if c.WarmupYears < 0 {
		return fmt.Errorf("warmup years must be >= 0, got %d", c.WarmupYears)
	}
	if c.AnalysisYears < 1 {
		return fmt.Errorf("analysis years must be >= 1, got %d", c.AnalysisYears)
	}
	if c.Population < 1 {
		return fmt.Errorf("population must be >= 1, got %d", c.Population)
	}
	if c.SumInsured <= 0 {
		return fmt.Errorf("sum insured must be positive, got %d", c.SumInsured)
	}
	if len(c.Territories) == 0 {
		return fmt.Errorf("at least one territory is required")
	}
	if c.Attritional.AnnualRate < 0 {
		return fmt.Errorf("attritional rate must be >= 0, got %g", c.Attritional.AnnualRate)
	}
	if c.Attritional.Sigma < 0 {
		return fmt.Errorf("attritional sigma must be >= 0, got %g", c.Attritional.Sigma)
	}
	for _, p := range c.CatPerils {
		if p.Name == "" {
			return fmt.Errorf("cat peril name must not be empty")
		}
		if p.AnnualFrequency < 0 {
			return fmt.Errorf("cat peril %s: frequency must be >= 0, got %g", p.Name, p.AnnualFrequency)
		}
		if len(p.Regions) == 0 {
			return fmt.Errorf("cat peril %s: at least one region is required", p.Name)
		}
		if err := p.Severity.validate(); err != nil {
			return fmt.Errorf("cat peril %s: %w", p.Name, err)
		}
	}
	if c.Insurers.Count < 1 {
		return fmt.Errorf("insurer count must be >= 1, got %d", c.Insurers.Count)
	}
	if c.Insurers.InitialCapital < 0 {
		return fmt.Errorf("insurer capital must be >= 0, got %d", c.Insurers.InitialCapital)
	}
	if c.Insurers.ExpenseLoad < 0 {
		return fmt.Errorf("expense load must be >= 0, got %g", c.Insurers.ExpenseLoad)
	}
	if c.Insurers.MarginBps < 0 || c.Insurers.MarginJitterBps < 0 {
		return fmt.Errorf("margin bps must be >= 0")
	}
	if c.Insurers.AppetiteMultiple < 0 {
		return fmt.Errorf("appetite multiple must be >= 0, got %g", c.Insurers.AppetiteMultiple)
	}
	switch c.BrokerPolicy {
	case BrokerRoundRobin:
	case BrokerWeighted:
		if len(c.BrokerShares) > 0 && len(c.BrokerShares) != c.Insurers.Count {
			return fmt.Errorf("broker shares length %d does not match insurer count %d",
				len(c.BrokerShares), c.Insurers.Count)
		}
		for _, s := range c.BrokerShares {
			if s < 0 {
				return fmt.Errorf("broker shares must be >= 0, got %g", s)
			}
		}
	default:
		return fmt.Errorf("unknown broker policy %q", c.BrokerPolicy)
	}
	if c.AcceptProbability < 0 || c.AcceptProbability > 1 {
		return fmt.Errorf("accept probability must be in [0, 1], got %g", c.AcceptProbability)
	}
	return nil
}

func (s SeverityConfig) validate() error {
	switch s.Dist {
	case DistLogNormal:
		if s.Sigma < 0 {
			return fmt.Errorf("lognormal sigma must be >= 0, got %g", s.Sigma)
		}
	case DistPareto:
		if s.Scale <= 0 || s.Scale > 1 {
			return fmt.Errorf("pareto scale must be in (0, 1], got %g", s.Scale)
		}
		if s.Shape <= 0 {
			return fmt.Errorf("pareto shape must be positive, got %g", s.Shape)
		}
	default:
		return fmt.Errorf("unknown severity distribution %q", s.Dist)
	}
	return nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", key, v, err)
	}
	return n, nil
}

func envInt64(key string, fallback int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", key, v, err)
	}
	return n, nil
}

func envUint(key string, fallback uint64) (uint64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", key, v, err)
	}
	return n, nil
}

func envCents(key string, fallback money.Cents) (money.Cents, error) {
	n, err := envInt64(key, int64(fallback))
	return money.Cents(n), err
}

func envFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", key, v, err)
	}
	return f, nil
}
