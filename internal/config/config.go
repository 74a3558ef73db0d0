package config

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Model backends.
const (
	BackendArtifact = "artifact"
	BackendNATS     = "nats"
)

// Threshold sources, in precedence order.
const (
	ThresholdFromEnv      = "env"
	ThresholdFromFile     = "config file"
	ThresholdFromArtifact = "artifact"
	ThresholdDefault      = "default"
)

// DefaultThreshold is the classic 0.5 cut-off used when nothing else is configured.
const DefaultThreshold = 0.5

type Config struct {
	// HTTP Configuration
	HTTPAddr    string `yaml:"http_addr"`
	FormEnabled bool   `yaml:"form_enabled"`

	// Model Configuration
	ModelName         string        `yaml:"model_name"`
	ModelPath         string        `yaml:"model_path"`
	ModelURL          string        `yaml:"model_url"`
	ModelBackend      string        `yaml:"model_backend"`
	DecisionThreshold *float64      `yaml:"decision_threshold"`
	UnknownPolicy     string        `yaml:"unknown_category_policy"`
	StrictRanges      bool          `yaml:"strict_ranges"`
	RemoteTimeout     time.Duration `yaml:"remote_timeout"`

	// NATS Configuration
	NatsURL               string        `yaml:"nats_url"`
	Stream                string        `yaml:"stream_name"`
	Subject               string        `yaml:"subject"`
	Durable               string        `yaml:"queue_durable"`
	MaxMsgs               int           `yaml:"queue_max_msgs"`
	MaxAge                time.Duration `yaml:"queue_max_age"`
	AckWait               time.Duration `yaml:"ack_wait"`
	MaxDeliver            int           `yaml:"max_deliver"`
	MaxAckPending         int           `yaml:"max_ack_pending"`
	Concurrency           int           `yaml:"worker_concurrency"`
	MonitoringTopic       string        `yaml:"monitoring_topic"`
	BackpressureThreshold int           `yaml:"backpressure_threshold"`

	// Data Directory Configuration
	DataDir string `yaml:"data_dir"`

	// Database Configuration. Empty keeps audit rows in memory.
	DBPath string `yaml:"db_path"`

	// Logging Configuration
	LogLevel      string `yaml:"log_level"`
	LogFile       string `yaml:"log_file"`
	LogMaxSizeMB  int    `yaml:"log_max_size_mb"`
	LogMaxBackups int    `yaml:"log_max_backups"`
	LogMaxAgeDays int    `yaml:"log_max_age_days"`

	// ThresholdSource records where DecisionThreshold came from.
	ThresholdSource string `yaml:"-"`
}

func defaults() *Config {
	return &Config{
		HTTPAddr:              ":8081",
		FormEnabled:           true,
		ModelName:             "ride-cancellation",
		ModelPath:             "data/models/pipeline.json",
		ModelBackend:          BackendArtifact,
		UnknownPolicy:         "artifact",
		RemoteTimeout:         5 * time.Second,
		Stream:                "RIDES",
		Subject:               "rides.predict.request",
		Durable:               "rides-wq",
		MaxMsgs:               2000,
		MaxAge:                30 * time.Second,
		AckWait:               30 * time.Second,
		MaxDeliver:            5,
		MaxAckPending:         64,
		Concurrency:           2,
		MonitoringTopic:       "monitoring.backpressure",
		BackpressureThreshold: 100,
		DataDir:               "data",
		LogLevel:              "info",
		LogMaxSizeMB:          50,
		LogMaxBackups:         5,
		LogMaxAgeDays:         14,
	}
}

// Load builds the configuration from defaults, then the optional YAML file,
// then the optional .env file and the process environment.
func Load(envFile, configFile string) (*Config, error) {
	cfg := defaults()

	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", configFile, err)
		}
		if cfg.DecisionThreshold != nil {
			cfg.ThresholdSource = ThresholdFromFile
		}
		slog.Info("Config file loaded", "file", configFile)
	}

	if envFile != "" {
		if err := loadDotEnv(envFile); err != nil {
			slog.Warn("Could not load env file", "file", envFile, "error", err)
		} else {
			slog.Info("Environment loaded", "file", envFile)
		}
	}

	cfg.HTTPAddr = getEnv("HTTP_ADDR", cfg.HTTPAddr)
	cfg.FormEnabled = getEnvBool("FORM_ENABLED", cfg.FormEnabled)

	cfg.ModelName = getEnv("MODEL_NAME", cfg.ModelName)
	cfg.ModelPath = getEnv("MODEL_PATH", cfg.ModelPath)
	cfg.ModelURL = getEnv("MODEL_URL", cfg.ModelURL)
	cfg.ModelBackend = strings.ToLower(getEnv("MODEL_BACKEND", cfg.ModelBackend))
	cfg.UnknownPolicy = strings.ToLower(getEnv("UNKNOWN_CATEGORY_POLICY", cfg.UnknownPolicy))
	cfg.StrictRanges = getEnvBool("STRICT_RANGES", cfg.StrictRanges)
	cfg.RemoteTimeout = getEnvDuration("REMOTE_TIMEOUT", cfg.RemoteTimeout)

	if val := os.Getenv("DECISION_THRESHOLD"); val != "" {
		t, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid DECISION_THRESHOLD %q: %w", val, err)
		}
		cfg.DecisionThreshold = &t
		cfg.ThresholdSource = ThresholdFromEnv
	}

	cfg.NatsURL = getEnvAllowEmpty("NATS_URL", cfg.NatsURL)
	cfg.Stream = getEnv("STREAM_NAME", cfg.Stream)
	cfg.Subject = getEnv("SUBJECT", cfg.Subject)
	cfg.Durable = getEnv("QUEUE_DURABLE", cfg.Durable)
	cfg.MaxMsgs = getEnvInt("QUEUE_MAX_MSGS", cfg.MaxMsgs)
	cfg.MaxAge = getEnvDuration("QUEUE_MAX_AGE", cfg.MaxAge)
	cfg.AckWait = getEnvDuration("ACK_WAIT", cfg.AckWait)
	cfg.MaxDeliver = getEnvInt("MAX_DELIVER", cfg.MaxDeliver)
	cfg.MaxAckPending = getEnvInt("MAX_ACK_PENDING", cfg.MaxAckPending)
	cfg.Concurrency = getEnvInt("WORKER_CONCURRENCY", cfg.Concurrency)
	cfg.MonitoringTopic = getEnv("MONITORING_TOPIC", cfg.MonitoringTopic)
	cfg.BackpressureThreshold = getEnvInt("BACKPRESSURE_THRESHOLD", cfg.BackpressureThreshold)

	cfg.DataDir = getEnv("DATA_DIR", cfg.DataDir)
	cfg.DBPath = getEnvAllowEmpty("DB_PATH", cfg.DBPath)

	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFile = getEnvAllowEmpty("LOG_FILE", cfg.LogFile)
	cfg.LogMaxSizeMB = getEnvInt("LOG_MAX_SIZE_MB", cfg.LogMaxSizeMB)
	cfg.LogMaxBackups = getEnvInt("LOG_MAX_BACKUPS", cfg.LogMaxBackups)
	cfg.LogMaxAgeDays = getEnvInt("LOG_MAX_AGE_DAYS", cfg.LogMaxAgeDays)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.ModelBackend {
	case BackendArtifact:
	case BackendNATS:
		if c.NatsURL == "" {
			return errors.New("MODEL_BACKEND=nats requires NATS_URL")
		}
	default:
		return fmt.Errorf("unsupported MODEL_BACKEND %q", c.ModelBackend)
	}

	switch c.UnknownPolicy {
	case "", "artifact", "ignore", "error":
	default:
		return fmt.Errorf("unsupported UNKNOWN_CATEGORY_POLICY %q", c.UnknownPolicy)
	}

	if t := c.DecisionThreshold; t != nil && !validThreshold(*t) {
		return fmt.Errorf("decision threshold %v outside [0, 1]", *t)
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be at least 1, got %d", c.Concurrency)
	}
	return nil
}

// ResolveThreshold picks the decision threshold: explicit configuration
// first, then the artifact's own value, then DefaultThreshold.
func (c *Config) ResolveThreshold(artifact *float64) (float64, string, error) {
	if c.DecisionThreshold != nil {
		return *c.DecisionThreshold, c.ThresholdSource, nil
	}
	if artifact != nil {
		if !validThreshold(*artifact) {
			return 0, "", fmt.Errorf("artifact decision threshold %v outside [0, 1]", *artifact)
		}
		return *artifact, ThresholdFromArtifact, nil
	}
	return DefaultThreshold, ThresholdDefault, nil
}

func validThreshold(t float64) bool {
	return !math.IsNaN(t) && t >= 0 && t <= 1
}

// NATSEnabled reports whether any NATS component should start.
func (c *Config) NATSEnabled() bool {
	return c.NatsURL != ""
}

func loadDotEnv(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) == 2 {
			key := strings.TrimSpace(parts[0])
			value := strings.Trim(strings.TrimSpace(parts[1]), `"'`)
			os.Setenv(key, value)
		}
	}
	return scanner.Err()
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getEnvAllowEmpty lets an explicitly empty variable switch a feature off.
func getEnvAllowEmpty(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
		slog.Warn("Ignoring invalid integer", "key", key, "value", val)
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
		slog.Warn("Ignoring invalid boolean", "key", key, "value", val)
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		slog.Warn("Ignoring invalid duration", "key", key, "value", val)
	}
	return defaultVal
}
