package config

import (
	"os"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				key := kv[:i]
				if len(key) > 10 && key[:10] == "MEMENGINE_" {
					t.Setenv(key, "")
					os.Unsetenv(key)
				}
				break
			}
		}
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("MEMENGINE_ENV", "development")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Env != Development {
		t.Errorf("Env = %v, want development", cfg.Env)
	}
	if cfg.Primary.PoolMax != 20 {
		t.Errorf("Primary.PoolMax = %d, want 20", cfg.Primary.PoolMax)
	}
	if cfg.Batch.Size != 50 {
		t.Errorf("Batch.Size = %d, want 50", cfg.Batch.Size)
	}
	if cfg.Circuit.FailureThreshold != 5 {
		t.Errorf("Circuit.FailureThreshold = %d, want 5", cfg.Circuit.FailureThreshold)
	}
	if cfg.Limits.MaxDescription != 10_000 {
		t.Errorf("Limits.MaxDescription = %d, want 10000", cfg.Limits.MaxDescription)
	}
	if cfg.Retrieval.DiversityLambda != 0.7 {
		t.Errorf("Retrieval.DiversityLambda = %v, want 0.7", cfg.Retrieval.DiversityLambda)
	}
	if cfg.ActiveEpisodeLimit != 100 {
		t.Errorf("ActiveEpisodeLimit = %d, want 100", cfg.ActiveEpisodeLimit)
	}
}

func TestLoad_InvalidEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("MEMENGINE_ENV", "staging")

	if _, err := Load(); err == nil {
		t.Error("expected error for invalid MEMENGINE_ENV")
	}
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("MEMENGINE_ENV", "development")
	t.Setenv("MEMENGINE_BATCH_SIZE", "10")
	t.Setenv("MEMENGINE_CIRCUIT_OPEN_TIMEOUT", "1m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Batch.Size != 10 {
		t.Errorf("Batch.Size = %d, want 10", cfg.Batch.Size)
	}
	if cfg.Circuit.OpenTimeout.String() != "1m0s" {
		t.Errorf("Circuit.OpenTimeout = %v, want 1m0s", cfg.Circuit.OpenTimeout)
	}
}

func TestValidate_ProductionRequiresToken(t *testing.T) {
	clearEnv(t)
	t.Setenv("MEMENGINE_ENV", "production")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected Validate() to fail without a primary token in production")
	}

	cfg.Primary.Token = "secret"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil once token is set", err)
	}
}

func TestValidate_PoolBounds(t *testing.T) {
	clearEnv(t)
	t.Setenv("MEMENGINE_ENV", "development")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	cfg.Primary.PoolMin = 10
	cfg.Primary.PoolMax = 5
	if err := cfg.Validate(); err == nil {
		t.Error("expected Validate() to reject PoolMax < PoolMin")
	}
}

func TestIsEnvironmentHelpers(t *testing.T) {
	cfg := &Config{Env: Testing}
	if cfg.IsDevelopment() || cfg.IsProduction() {
		t.Error("expected only IsTesting() to be true")
	}
	if !cfg.IsTesting() {
		t.Error("expected IsTesting() to be true")
	}
}
