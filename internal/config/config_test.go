package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// clearEnv blanks every key the tests touch; t.Setenv restores them afterwards.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"HTTP_ADDR", "MODEL_BACKEND", "DECISION_THRESHOLD", "UNKNOWN_CATEGORY_POLICY",
		"QUEUE_MAX_AGE", "WORKER_CONCURRENCY", "STRICT_RANGES", "FORM_ENABLED",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("NATS_URL", "")
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("", "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.HTTPAddr != ":8081" || cfg.ModelBackend != BackendArtifact || !cfg.FormEnabled {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.NATSEnabled() {
		t.Error("NATS should be disabled when NATS_URL is empty")
	}

	th, src, err := cfg.ResolveThreshold(nil)
	if err != nil || th != DefaultThreshold || src != ThresholdDefault {
		t.Errorf("ResolveThreshold(nil) = %v, %q, %v", th, src, err)
	}

	fromArtifact := 0.3
	th, src, err = cfg.ResolveThreshold(&fromArtifact)
	if err != nil || th != 0.3 || src != ThresholdFromArtifact {
		t.Errorf("ResolveThreshold(0.3) = %v, %q, %v", th, src, err)
	}

	for _, bad := range []float64{2.0, -0.5, math.NaN()} {
		if _, _, err := cfg.ResolveThreshold(&bad); err == nil {
			t.Errorf("expected error for artifact threshold %v", bad)
		}
	}
}

func TestLoadPrecedence(t *testing.T) {
	clearEnv(t)
	file := writeFile(t, "config.yaml", `
http_addr: ":9000"
decision_threshold: 0.4
queue_max_age: 45s
strict_ranges: true
`)

	t.Setenv("HTTP_ADDR", ":9100")
	cfg, err := Load("", file)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.HTTPAddr != ":9100" {
		t.Errorf("env should override file, got %q", cfg.HTTPAddr)
	}
	if cfg.MaxAge != 45*time.Second || !cfg.StrictRanges {
		t.Errorf("file values not applied: max_age=%v strict=%v", cfg.MaxAge, cfg.StrictRanges)
	}
	artifact := 0.9
	th, src, _ := cfg.ResolveThreshold(&artifact)
	if th != 0.4 || src != ThresholdFromFile {
		t.Errorf("threshold = %v from %q, want 0.4 from file", th, src)
	}

	t.Setenv("DECISION_THRESHOLD", "0.7")
	cfg, err = Load("", file)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	th, src, _ = cfg.ResolveThreshold(&artifact)
	if th != 0.7 || src != ThresholdFromEnv {
		t.Errorf("threshold = %v from %q, want 0.7 from env", th, src)
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	env := writeFile(t, ".env", `
# local overrides
DECISION_THRESHOLD=0.35
WORKER_CONCURRENCY = 4
UNKNOWN_CATEGORY_POLICY="ignore"
`)

	cfg, err := Load(env, "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DecisionThreshold == nil || *cfg.DecisionThreshold != 0.35 {
		t.Errorf("threshold not loaded from .env: %v", cfg.DecisionThreshold)
	}
	if cfg.Concurrency != 4 || cfg.UnknownPolicy != "ignore" {
		t.Errorf("concurrency=%d policy=%q", cfg.Concurrency, cfg.UnknownPolicy)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"threshold above one", map[string]string{"DECISION_THRESHOLD": "1.5"}},
		{"negative threshold", map[string]string{"DECISION_THRESHOLD": "-0.1"}},
		{"unparseable threshold", map[string]string{"DECISION_THRESHOLD": "high"}},
		{"NaN threshold", map[string]string{"DECISION_THRESHOLD": "NaN"}},
		{"infinite threshold", map[string]string{"DECISION_THRESHOLD": "+Inf"}},
		{"nats backend without url", map[string]string{"MODEL_BACKEND": "nats"}},
		{"unknown backend", map[string]string{"MODEL_BACKEND": "onnx"}},
		{"unknown policy", map[string]string{"UNKNOWN_CATEGORY_POLICY": "warn"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load("", ""); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestSQLiteStoreOptIn(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_PATH", "")
	os.Unsetenv("DB_PATH")

	cfg, err := Load("", "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DBPath != "" {
		t.Errorf("DB_PATH defaults to %q, want empty", cfg.DBPath)
	}

	t.Setenv("DB_PATH", "data/audit.sqlite")
	cfg, err = Load("", "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DBPath != "data/audit.sqlite" {
		t.Errorf("DB_PATH = %q", cfg.DBPath)
	}
}

func TestMissingConfigFile(t *testing.T) {
	clearEnv(t)
	if _, err := Load("", filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}
