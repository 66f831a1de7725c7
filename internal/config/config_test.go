package config

import (
	"os"
	"testing"
)

func TestLoad(t *testing.T) {
	// Set required env vars for all subtests
	cleanup := setEnvs(t, map[string]string{
		"DATABASE_URL":        "postgres://localhost/test",
		"MQTT_BROKER_URL":     "tcp://localhost:1883",
		"CONFD_URL":           "http://localhost:9486",
		"SERVICE_TENANT_UUID": "00000000-0000-4000-8000-000000000001",
	})
	defer cleanup()

	t.Run("defaults", func(t *testing.T) {
		cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.HTTPAddr != ":8080" {
			t.Errorf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
		}
		if cfg.LogLevel != "info" {
			t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
		}
		if cfg.MQTTTopics != "pbx/+/cel" {
			t.Errorf("MQTTTopics = %q, want pbx/+/cel", cfg.MQTTTopics)
		}
		if cfg.MQTTClientID != "cel-logd" {
			t.Errorf("MQTTClientID = %q, want cel-logd", cfg.MQTTClientID)
		}
		if cfg.ConfdTimeout.Seconds() != 5 {
			t.Errorf("ConfdTimeout = %v, want 5s", cfg.ConfdTimeout)
		}
		if cfg.DBMaxConns != 16 || cfg.DBMinConns != 2 {
			t.Errorf("pool sizing = %d/%d, want 16/2", cfg.DBMaxConns, cfg.DBMinConns)
		}
	})

	t.Run("cli_overrides_take_priority", func(t *testing.T) {
		cfg, err := Load(Overrides{
			EnvFile:       "nonexistent.env",
			HTTPAddr:      ":9090",
			LogLevel:      "debug",
			DatabaseURL:   "postgres://override/db",
			MQTTBrokerURL: "tcp://override:1883",
			ConfdURL:      "http://override:9486",
		})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.HTTPAddr != ":9090" {
			t.Errorf("HTTPAddr = %q, want :9090", cfg.HTTPAddr)
		}
		if cfg.LogLevel != "debug" {
			t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
		}
		if cfg.DatabaseURL != "postgres://override/db" {
			t.Errorf("DatabaseURL = %q, want override", cfg.DatabaseURL)
		}
		if cfg.MQTTBrokerURL != "tcp://override:1883" {
			t.Errorf("MQTTBrokerURL = %q, want override", cfg.MQTTBrokerURL)
		}
		if cfg.ConfdURL != "http://override:9486" {
			t.Errorf("ConfdURL = %q, want override", cfg.ConfdURL)
		}
	})

	t.Run("env_vars_read", func(t *testing.T) {
		cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.DatabaseURL != "postgres://localhost/test" {
			t.Errorf("DatabaseURL = %q, want postgres://localhost/test", cfg.DatabaseURL)
		}
		if cfg.ServiceTenantUUID != "00000000-0000-4000-8000-000000000001" {
			t.Errorf("ServiceTenantUUID = %q, want env value", cfg.ServiceTenantUUID)
		}
	})
}

func TestLoadMissingRequired(t *testing.T) {
	cleanup := setEnvs(t, map[string]string{
		"DATABASE_URL":        "",
		"MQTT_BROKER_URL":     "",
		"CONFD_URL":           "",
		"SERVICE_TENANT_UUID": "",
	})
	defer cleanup()
	os.Unsetenv("DATABASE_URL")
	os.Unsetenv("MQTT_BROKER_URL")
	os.Unsetenv("CONFD_URL")
	os.Unsetenv("SERVICE_TENANT_UUID")

	_, err := Load(Overrides{EnvFile: "nonexistent.env"})
	if err == nil {
		t.Error("expected error when required env vars are missing")
	}
}

// setEnvs sets environment variables and returns a cleanup function.
func setEnvs(t *testing.T, envs map[string]string) func() {
	t.Helper()
	originals := make(map[string]string)
	unset := make([]string, 0)

	for k, v := range envs {
		if orig, ok := os.LookupEnv(k); ok {
			originals[k] = orig
		} else {
			unset = append(unset, k)
		}
		os.Setenv(k, v)
	}

	return func() {
		for k, v := range originals {
			os.Setenv(k, v)
		}
		for _, k := range unset {
			os.Unsetenv(k)
		}
	}
}
