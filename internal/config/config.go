package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Engine configuration. Values load in three layers: compiled defaults,
// then an optional YAML file, then environment overrides for anything
// deployment-specific (secrets stay out of the file).

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Model    ModelConfig    `yaml:"model"`
	Evidence EvidenceConfig `yaml:"evidence"`
	Auth     AuthConfig     `yaml:"auth"`
}

type ServerConfig struct {
	Port           int     `yaml:"port"`
	RateLimitRPS   float64 `yaml:"rateLimitRps"`
	RateLimitBurst int     `yaml:"rateLimitBurst"`
	LogLevel       string  `yaml:"logLevel"`
}

type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver      string `yaml:"driver"`
	PostgresURL string `yaml:"postgresUrl"`
	SQLitePath  string `yaml:"sqlitePath"`
}

type ModelConfig struct {
	ArtifactPath string  `yaml:"artifactPath"`
	Temperature  float64 `yaml:"temperature"`
	// AutoTrainEvery triggers background training each time the persisted
	// session count reaches a multiple of this value.
	AutoTrainEvery int `yaml:"autoTrainEvery"`
}

type EvidenceConfig struct {
	SessionTTL time.Duration `yaml:"sessionTtl"`
}

type AuthConfig struct {
	// Bearer tokens mapped to subject identities for labeled submissions.
	Identities map[string]string `yaml:"identities"`
	// Confidence needed for an Authenticated verdict once enough samples
	// have been fused, and before that point.
	ThresholdSettled float64 `yaml:"thresholdSettled"`
	ThresholdEarly   float64 `yaml:"thresholdEarly"`
	// SettledSamples is the sample count past which the lower threshold
	// applies.
	SettledSamples int `yaml:"settledSamples"`
}

// Default returns the compiled-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:           8090,
			RateLimitRPS:   20,
			RateLimitBurst: 40,
			LogLevel:       "info",
		},
		Database: DatabaseConfig{
			Driver:     "sqlite",
			SQLitePath: "keyprint.db",
		},
		Model: ModelConfig{
			ArtifactPath:   "data/model_artifact.json",
			Temperature:    1.0,
			AutoTrainEvery: 10,
		},
		Evidence: EvidenceConfig{
			SessionTTL: 10 * time.Minute,
		},
		Auth: AuthConfig{
			ThresholdSettled: 0.75,
			ThresholdEarly:   0.90,
			SettledSamples:   3,
		},
	}
}

// Load reads the YAML file at path (skipped when empty or missing) and
// applies environment overrides on top of the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if cfg.Database.Driver != "postgres" && cfg.Database.Driver != "sqlite" {
		return cfg, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
	if cfg.Database.Driver == "postgres" && cfg.Database.PostgresURL == "" {
		return cfg, fmt.Errorf("postgres driver selected but no connection string (set DATABASE_URL)")
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Server.LogLevel = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.Driver = "postgres"
		cfg.Database.PostgresURL = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("MODEL_ARTIFACT_PATH"); v != "" {
		cfg.Model.ArtifactPath = v
	}
	if v := os.Getenv("MODEL_TEMPERATURE"); v != "" {
		if t, err := strconv.ParseFloat(v, 64); err == nil && t > 0 {
			cfg.Model.Temperature = t
		}
	}
}
