package runtime

import (
	"os"
	"testing"
)

func TestIsDevelopment(t *testing.T) {
	// Save and restore environment
	savedMarble := os.Getenv("MEMENGINE_ENV")
	savedEnv := os.Getenv("ENVIRONMENT")
	defer func() {
		if savedMarble != "" {
			os.Setenv("MEMENGINE_ENV", savedMarble)
		} else {
			os.Unsetenv("MEMENGINE_ENV")
		}
		if savedEnv != "" {
			os.Setenv("ENVIRONMENT", savedEnv)
		} else {
			os.Unsetenv("ENVIRONMENT")
		}
	}()

	t.Run("true when development", func(t *testing.T) {
		os.Setenv("MEMENGINE_ENV", "development")
		os.Unsetenv("ENVIRONMENT")
		if !IsDevelopment() {
			t.Error("IsDevelopment() should return true")
		}
	})

	t.Run("false when production", func(t *testing.T) {
		os.Setenv("MEMENGINE_ENV", "production")
		if IsDevelopment() {
			t.Error("IsDevelopment() should return false for production")
		}
	})

	t.Run("true when unset (default)", func(t *testing.T) {
		os.Unsetenv("MEMENGINE_ENV")
		os.Unsetenv("ENVIRONMENT")
		if !IsDevelopment() {
			t.Error("IsDevelopment() should return true when env is unset")
		}
	})
}

func TestIsTesting(t *testing.T) {
	savedMarble := os.Getenv("MEMENGINE_ENV")
	savedEnv := os.Getenv("ENVIRONMENT")
	defer func() {
		if savedMarble != "" {
			os.Setenv("MEMENGINE_ENV", savedMarble)
		} else {
			os.Unsetenv("MEMENGINE_ENV")
		}
		if savedEnv != "" {
			os.Setenv("ENVIRONMENT", savedEnv)
		} else {
			os.Unsetenv("ENVIRONMENT")
		}
	}()

	t.Run("true when testing", func(t *testing.T) {
		os.Setenv("MEMENGINE_ENV", "testing")
		if !IsTesting() {
			t.Error("IsTesting() should return true")
		}
	})

	t.Run("false when development", func(t *testing.T) {
		os.Setenv("MEMENGINE_ENV", "development")
		if IsTesting() {
			t.Error("IsTesting() should return false for development")
		}
	})
}

func TestIsProduction(t *testing.T) {
	savedMarble := os.Getenv("MEMENGINE_ENV")
	savedEnv := os.Getenv("ENVIRONMENT")
	defer func() {
		if savedMarble != "" {
			os.Setenv("MEMENGINE_ENV", savedMarble)
		} else {
			os.Unsetenv("MEMENGINE_ENV")
		}
		if savedEnv != "" {
			os.Setenv("ENVIRONMENT", savedEnv)
		} else {
			os.Unsetenv("ENVIRONMENT")
		}
	}()

	t.Run("true when production", func(t *testing.T) {
		os.Setenv("MEMENGINE_ENV", "production")
		if !IsProduction() {
			t.Error("IsProduction() should return true")
		}
	})

	t.Run("false when development", func(t *testing.T) {
		os.Setenv("MEMENGINE_ENV", "development")
		if IsProduction() {
			t.Error("IsProduction() should return false for development")
		}
	})
}

func TestIsDevelopmentOrTesting(t *testing.T) {
	savedMarble := os.Getenv("MEMENGINE_ENV")
	savedEnv := os.Getenv("ENVIRONMENT")
	defer func() {
		if savedMarble != "" {
			os.Setenv("MEMENGINE_ENV", savedMarble)
		} else {
			os.Unsetenv("MEMENGINE_ENV")
		}
		if savedEnv != "" {
			os.Setenv("ENVIRONMENT", savedEnv)
		} else {
			os.Unsetenv("ENVIRONMENT")
		}
	}()

	t.Run("true when development", func(t *testing.T) {
		os.Setenv("MEMENGINE_ENV", "development")
		if !IsDevelopmentOrTesting() {
			t.Error("IsDevelopmentOrTesting() should return true for development")
		}
	})

	t.Run("true when testing", func(t *testing.T) {
		os.Setenv("MEMENGINE_ENV", "testing")
		if !IsDevelopmentOrTesting() {
			t.Error("IsDevelopmentOrTesting() should return true for testing")
		}
	})

	t.Run("false when production", func(t *testing.T) {
		os.Setenv("MEMENGINE_ENV", "production")
		if IsDevelopmentOrTesting() {
			t.Error("IsDevelopmentOrTesting() should return false for production")
		}
	})
}

func TestEnvWithLegacyFallback(t *testing.T) {
	savedMarble := os.Getenv("MEMENGINE_ENV")
	savedEnv := os.Getenv("ENVIRONMENT")
	defer func() {
		if savedMarble != "" {
			os.Setenv("MEMENGINE_ENV", savedMarble)
		} else {
			os.Unsetenv("MEMENGINE_ENV")
		}
		if savedEnv != "" {
			os.Setenv("ENVIRONMENT", savedEnv)
		} else {
			os.Unsetenv("ENVIRONMENT")
		}
	}()

	t.Run("MEMENGINE_ENV takes precedence", func(t *testing.T) {
		os.Setenv("MEMENGINE_ENV", "production")
		os.Setenv("ENVIRONMENT", "development")
		if Env() != Production {
			t.Error("MEMENGINE_ENV should take precedence over ENVIRONMENT")
		}
	})

	t.Run("ENVIRONMENT fallback", func(t *testing.T) {
		os.Unsetenv("MEMENGINE_ENV")
		os.Setenv("ENVIRONMENT", "testing")
		if Env() != Testing {
			t.Error("ENVIRONMENT should be used as fallback")
		}
	})
}

func TestParseEnvironmentEdgeCases(t *testing.T) {
	t.Run("case insensitive", func(t *testing.T) {
		env, ok := ParseEnvironment("PRODUCTION")
		if !ok || env != Production {
			t.Error("ParseEnvironment should be case insensitive")
		}
	})

	t.Run("mixed case", func(t *testing.T) {
		env, ok := ParseEnvironment("DeVeLoPmEnT")
		if !ok || env != Development {
			t.Error("ParseEnvironment should handle mixed case")
		}
	})

	t.Run("whitespace trimmed", func(t *testing.T) {
		env, ok := ParseEnvironment("  testing  ")
		if !ok || env != Testing {
			t.Error("ParseEnvironment should trim whitespace")
		}
	})

	t.Run("unknown returns development with ok=false", func(t *testing.T) {
		env, ok := ParseEnvironment("staging")
		if ok {
			t.Error("ParseEnvironment should return ok=false for unknown")
		}
		if env != Development {
			t.Error("ParseEnvironment should return Development for unknown")
		}
	})
}

func TestParseEnvInt64(t *testing.T) {
	t.Run("valid value", func(t *testing.T) {
		t.Setenv("TEST_PARSE_INT64", "10485760")
		v, ok := ParseEnvInt64("TEST_PARSE_INT64")
		if !ok || v != 10485760 {
			t.Errorf("ParseEnvInt64() = (%d, %v), want (10485760, true)", v, ok)
		}
	})

	t.Run("unset", func(t *testing.T) {
		os.Unsetenv("TEST_PARSE_INT64_UNSET")
		if _, ok := ParseEnvInt64("TEST_PARSE_INT64_UNSET"); ok {
			t.Error("ParseEnvInt64() should return ok=false for unset var")
		}
	})

	t.Run("invalid", func(t *testing.T) {
		t.Setenv("TEST_PARSE_INT64_BAD", "not-a-number")
		if _, ok := ParseEnvInt64("TEST_PARSE_INT64_BAD"); ok {
			t.Error("ParseEnvInt64() should return ok=false for invalid value")
		}
	})
}

func TestParseEnvFloat(t *testing.T) {
	t.Run("valid value", func(t *testing.T) {
		t.Setenv("TEST_PARSE_FLOAT", "0.7")
		v, ok := ParseEnvFloat("TEST_PARSE_FLOAT")
		if !ok || v != 0.7 {
			t.Errorf("ParseEnvFloat() = (%v, %v), want (0.7, true)", v, ok)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		t.Setenv("TEST_PARSE_FLOAT_BAD", "not-a-float")
		if _, ok := ParseEnvFloat("TEST_PARSE_FLOAT_BAD"); ok {
			t.Error("ParseEnvFloat() should return ok=false for invalid value")
		}
	})
}
