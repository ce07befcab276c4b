// Package config loads application configuration from file and environment
// and initializes the global logger.
package config

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/coaching-engine/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
	Engine EngineConfig `yaml:"engine" mapstructure:"engine"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the read-only consumption API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// EngineConfig holds the tunable knobs of the pattern engine. The scoring
// formula weights themselves are fixed constants in their packages; only
// thresholds and the transition list are configurable.
type EngineConfig struct {
	// Transitions is the explicit ordered list of tier transitions the
	// analyzer mines. Empty means consecutive pairs of the default ladder.
	Transitions []model.TierTransition `yaml:"transitions" mapstructure:"transitions"`

	MinCohortSize           int     `yaml:"min_cohort_size" mapstructure:"min_cohort_size"`
	MatchRelevanceFloor     float64 `yaml:"match_relevance_floor" mapstructure:"match_relevance_floor"`
	PriorityBoostConfidence float64 `yaml:"priority_boost_confidence" mapstructure:"priority_boost_confidence"`
	UnderperformThreshold   float64 `yaml:"underperform_threshold" mapstructure:"underperform_threshold"`
	UnderperformMinAttempts int     `yaml:"underperform_min_attempts" mapstructure:"underperform_min_attempts"`
	LibraryConcurrency      int     `yaml:"library_concurrency" mapstructure:"library_concurrency"`
}

// TransitionList returns the configured transitions, falling back to
// consecutive pairs of the default tier ladder.
func (e EngineConfig) TransitionList() []model.TierTransition {
	if len(e.Transitions) > 0 {
		return e.Transitions
	}
	return model.ConsecutiveTransitions(model.TierLadder)
}

// LoadTransitionsFile reads an explicit tier transition list from a YAML
// file of {from, to} pairs. Unknown tiers are rejected up front so the
// analyzer never mines a transition that cannot be scored.
func LoadTransitionsFile(path string) ([]model.TierTransition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read transitions file %s", path)
	}

	var transitions []model.TierTransition
	if err := yaml.Unmarshal(data, &transitions); err != nil {
		return nil, eris.Wrapf(err, "config: parse transitions file %s", path)
	}
	for _, tr := range transitions {
		if !tr.From.Valid() || !tr.To.Valid() {
			return nil, eris.Errorf("config: unknown tier in transition %s -> %s", tr.From, tr.To)
		}
	}
	return transitions, nil
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("COACH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("engine.min_cohort_size", 5)
	v.SetDefault("engine.match_relevance_floor", 0.3)
	v.SetDefault("engine.priority_boost_confidence", 0.7)
	v.SetDefault("engine.underperform_threshold", 0.7)
	v.SetDefault("engine.underperform_min_attempts", 3)
	v.SetDefault("engine.library_concurrency", 4)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
