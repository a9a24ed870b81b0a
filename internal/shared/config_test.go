package shared

import (
	"testing"
	"time"
)

func TestEnvHelpers(t *testing.T) {
	t.Run("GetEnv falls back to default", func(t *testing.T) {
		if got := GetEnv("UNSET_TEST_KEY", "fallback"); got != "fallback" {
			t.Fatalf("Expected fallback, got %q", got)
		}
		t.Setenv("SET_TEST_KEY", "value")
		if got := GetEnv("SET_TEST_KEY", "fallback"); got != "value" {
			t.Fatalf("Expected value, got %q", got)
		}
	})

	t.Run("GetIntEnv parses and falls back", func(t *testing.T) {
		t.Setenv("INT_TEST_KEY", "42")
		if got := GetIntEnv("INT_TEST_KEY", 7); got != 42 {
			t.Fatalf("Expected 42, got %d", got)
		}
		t.Setenv("INT_TEST_KEY", "not-a-number")
		if got := GetIntEnv("INT_TEST_KEY", 7); got != 7 {
			t.Fatalf("Expected fallback 7, got %d", got)
		}
	})

	t.Run("GetBoolEnv parses and falls back", func(t *testing.T) {
		t.Setenv("BOOL_TEST_KEY", "true")
		if !GetBoolEnv("BOOL_TEST_KEY", false) {
			t.Fatal("Expected true")
		}
		t.Setenv("BOOL_TEST_KEY", "maybe")
		if GetBoolEnv("BOOL_TEST_KEY", false) {
			t.Fatal("Expected fallback false")
		}
	})

	t.Run("GetDurationEnv parses durations", func(t *testing.T) {
		t.Setenv("DUR_TEST_KEY", "90s")
		if got := GetDurationEnv("DUR_TEST_KEY", time.Second); got != 90*time.Second {
			t.Fatalf("Expected 90s, got %v", got)
		}
	})

	t.Run("GetStringSliceEnv splits and trims", func(t *testing.T) {
		t.Setenv("SLICE_TEST_KEY", "a, b ,c,")
		got := GetStringSliceEnv("SLICE_TEST_KEY", nil)
		if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
			t.Fatalf("Expected [a b c], got %v", got)
		}
	})
}

func TestValidateServerConfig(t *testing.T) {
	valid := &ServerConfig{
		HTTPPort: "8080",
		MongoDB:  MongoConfig{URI: "mongodb://localhost:27017", Database: "test"},
		Security: SecurityConfig{JWTSecret: "secret"},
	}
	if err := ValidateServerConfig(valid); err != nil {
		t.Fatalf("Expected valid config, got %v", err)
	}

	missing := &ServerConfig{HTTPPort: "8080"}
	if err := ValidateServerConfig(missing); err == nil {
		t.Fatal("Expected error for missing MongoDB URI")
	}
}
