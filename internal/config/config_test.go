package config

import (
	"os"
	"testing"
)

func withEnv(t *testing.T, kv map[string]string, fn func()) {
	t.Helper()
	var unset []string
	for k, v := range kv {
		old, had := os.LookupEnv(k)
		os.Setenv(k, v)
		if had {
			defer os.Setenv(k, old)
		} else {
			unset = append(unset, k)
		}
	}
	defer func() {
		for _, k := range unset {
			os.Unsetenv(k)
		}
	}()
	fn()
}

func TestLoadDefaults(t *testing.T) {
	withEnv(t, map[string]string{"ENVIRONMENT": "development"}, func() {
		c, err := Load()
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if c.APIPort != 3000 {
			t.Errorf("expected default API port 3000, got %d", c.APIPort)
		}
		if c.MessageTTLSeconds != 3600 {
			t.Errorf("expected default TTL 3600, got %d", c.MessageTTLSeconds)
		}
	})
}

func TestValidateProductionRequiresSecret(t *testing.T) {
	c := &Config{
		Mode:       ModeProduction,
		DBUser:     "u",
		DBPassword: "p",
		DBPort:     5432,
		APIPort:    3000,
		RealtimePort: 3001,
		DBMaxConns: 10,
		AuthSecret: "short",
	}
	if err := c.Validate(); err == nil {
		t.Fatal("expected validation error for short auth secret in production")
	}

	c.AuthSecret = "this-is-a-sufficiently-long-secret-value"
	if err := c.Validate(); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}

func TestValidateRejectsWildcardCORSInProduction(t *testing.T) {
	c := &Config{
		Mode:               ModeProduction,
		DBUser:             "u",
		DBPassword:         "p",
		DBPort:             5432,
		APIPort:            3000,
		RealtimePort:       3001,
		DBMaxConns:         10,
		AuthSecret:         "this-is-a-sufficiently-long-secret-value",
		CORSAllowedOrigins: []string{"*"},
	}
	if err := c.Validate(); err == nil {
		t.Fatal("expected validation error for wildcard CORS in production")
	}
}

func TestValidateDevelopmentAllowsWildcardCORSAndShortSecret(t *testing.T) {
	c := &Config{
		Mode:               ModeDevelopment,
		DBUser:             "u",
		DBPassword:         "p",
		DBPort:             5432,
		APIPort:            3000,
		RealtimePort:       3001,
		DBMaxConns:         10,
		CORSAllowedOrigins: []string{"*"},
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected development mode to tolerate wildcard CORS, got: %v", err)
	}
}

func TestValidateRejectsBadPorts(t *testing.T) {
	c := &Config{
		Mode:         ModeDevelopment,
		DBUser:       "u",
		DBPort:       70000,
		APIPort:      3000,
		RealtimePort: 3001,
		DBMaxConns:   10,
	}
	if err := c.Validate(); err == nil {
		t.Fatal("expected validation error for out-of-range port")
	}
}

func TestValidateRejectsPoolSizeBelowOne(t *testing.T) {
	c := &Config{
		Mode:         ModeDevelopment,
		DBUser:       "u",
		DBPort:       5432,
		APIPort:      3000,
		RealtimePort: 3001,
		DBMaxConns:   0,
	}
	if err := c.Validate(); err == nil {
		t.Fatal("expected validation error for pool size below 1")
	}
}

func TestValidateRejectsEmptyUser(t *testing.T) {
	c := &Config{
		Mode:         ModeDevelopment,
		DBUser:       "",
		DBPort:       5432,
		APIPort:      3000,
		RealtimePort: 3001,
		DBMaxConns:   1,
	}
	if err := c.Validate(); err == nil {
		t.Fatal("expected validation error for empty db user")
	}
}

func TestCatalogDefault(t *testing.T) {
	cat, err := LoadCatalog("")
	if err != nil {
		t.Fatalf("LoadCatalog failed: %v", err)
	}
	if !cat.IsAllowedTopic("api_endpoint_created") {
		t.Error("expected default catalog to allow api_endpoint_created")
	}
	if cat.IsAllowedTopic("not_a_real_topic") {
		t.Error("expected unknown topic to be rejected")
	}
}

func TestCatalogMissingFileFallsBackToDefault(t *testing.T) {
	cat, err := LoadCatalog("/nonexistent/path/catalog.yaml")
	if err != nil {
		t.Fatalf("LoadCatalog failed: %v", err)
	}
	if len(cat.Topics) == 0 {
		t.Error("expected fallback to default catalog")
	}
}
