package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaultsForDevProfile(t *testing.T) {
	cfg, err := Load("tableagent-api", mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileDev {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileDev)
	}
	if cfg.HTTP.Address != ":8080" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.Observability.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.Auth.Required {
		t.Fatal("Auth.Required should default to false in dev")
	}
	if cfg.Dataset.Source != "file" || cfg.Dataset.Location != "./data/sales.parquet" {
		t.Fatalf("Dataset = %+v", cfg.Dataset)
	}
	if cfg.Agent.Enabled {
		t.Fatal("Agent.Enabled should default to false")
	}
	if cfg.Agent.MaxCalls != 3 || cfg.Agent.MaxTurns != 8 {
		t.Fatalf("Agent = %+v", cfg.Agent)
	}
	if cfg.AI.MaxTokens != 1028 {
		t.Fatalf("AI.MaxTokens = %d", cfg.AI.MaxTokens)
	}
}

func TestLoadProdProfileDefaults(t *testing.T) {
	cfg, err := Load("tableagent-api", mapLookup(map[string]string{"TABLEAGENT_PROFILE": "prod"}))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Auth.Required {
		t.Fatal("Auth.Required should default to true in prod")
	}
	if cfg.Observability.LogLevel != slog.LevelInfo {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if !cfg.ObjectStore.UseSSL || cfg.ObjectStore.AutoCreateBucket {
		t.Fatalf("ObjectStore = %+v", cfg.ObjectStore)
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	lookup := mapLookup(map[string]string{
		"TABLEAGENT_PROFILE":                  "test",
		"TABLEAGENT_SERVICE_NAME":             "tableagent-custom",
		"TABLEAGENT_HTTP_ADDR":                ":9999",
		"TABLEAGENT_HTTP_READ_TIMEOUT":        "2s",
		"TABLEAGENT_HTTP_READINESS_TIMEOUT":   "750ms",
		"TABLEAGENT_LOG_LEVEL":                "error",
		"TABLEAGENT_AUTH_REQUIRED":            "true",
		"TABLEAGENT_AUTH_STATIC_KEYS":         "k1:svc:data_reader|agent_user",
		"TABLEAGENT_DATASET_SOURCE":           "s3",
		"TABLEAGENT_DATASET_LOCATION":         "datasets/sales/sales.csv",
		"TABLEAGENT_DATASET_FORMAT":           "csv",
		"TABLEAGENT_DATASET_MAX_ROWS":         "500",
		"TABLEAGENT_DATASET_MAX_OBJECT_BYTES": "1048576",
		"TABLEAGENT_OBJECTSTORE_BUCKET":       "data-prod",
		"TABLEAGENT_OBJECTSTORE_USE_SSL":      "true",
		"TABLEAGENT_POSTGRES_DSN":             "postgres://example",
		"TABLEAGENT_AGENT_ENABLED":            "true",
		"TABLEAGENT_AGENT_DELEGATE":           "true",
		"TABLEAGENT_AGENT_GUARDED_TOOL":       "query_sql_agent",
		"TABLEAGENT_AGENT_MAX_CALLS":          "5",
		"TABLEAGENT_AGENT_MAX_TURNS":          "4",
		"TABLEAGENT_AGENT_REQUEST_TIMEOUT":    "45s",
		"TABLEAGENT_AGENT_RATE_LIMIT":         "0.5",
		"TABLEAGENT_AI_BASE_URL":              "https://api.mistral.ai",
		"TABLEAGENT_AI_API_KEY":               "secret-key",
		"TABLEAGENT_AI_MODEL":                 "ministral-8b-latest",
		"TABLEAGENT_AI_TEMPERATURE":           "0.3",
		"TABLEAGENT_AI_TIMEOUT":               "21s",
	})
	cfg, err := Load("tableagent-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Service.Name != "tableagent-custom" {
		t.Fatalf("Service.Name = %q", cfg.Service.Name)
	}
	if cfg.HTTP.Address != ":9999" || cfg.HTTP.ReadTimeout != 2*time.Second || cfg.HTTP.ReadinessTimeout != 750*time.Millisecond {
		t.Fatalf("HTTP = %+v", cfg.HTTP)
	}
	if cfg.Observability.LogLevel != slog.LevelError {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if !cfg.Auth.Required || cfg.Auth.StaticKeys != "k1:svc:data_reader|agent_user" {
		t.Fatalf("Auth = %+v", cfg.Auth)
	}
	if cfg.Dataset.Source != "s3" || cfg.Dataset.Format != "csv" || cfg.Dataset.MaxRows != 500 || cfg.Dataset.MaxObjectBytes != 1<<20 {
		t.Fatalf("Dataset = %+v", cfg.Dataset)
	}
	if cfg.ObjectStore.Bucket != "data-prod" || !cfg.ObjectStore.UseSSL {
		t.Fatalf("ObjectStore = %+v", cfg.ObjectStore)
	}
	if cfg.Postgres.DSN != "postgres://example" {
		t.Fatalf("Postgres.DSN = %q", cfg.Postgres.DSN)
	}
	if !cfg.Agent.Enabled || !cfg.Agent.Delegate || cfg.Agent.GuardedTool != "query_sql_agent" {
		t.Fatalf("Agent = %+v", cfg.Agent)
	}
	if cfg.Agent.MaxCalls != 5 || cfg.Agent.MaxTurns != 4 || cfg.Agent.RequestTimeout != 45*time.Second || cfg.Agent.RateLimit != 0.5 {
		t.Fatalf("Agent = %+v", cfg.Agent)
	}
	if cfg.AI.BaseURL != "https://api.mistral.ai" || cfg.AI.APIKey != "secret-key" || cfg.AI.Model != "ministral-8b-latest" {
		t.Fatalf("AI = %+v", cfg.AI)
	}
	if cfg.AI.Temperature != 0.3 || cfg.AI.Timeout != 21*time.Second {
		t.Fatalf("AI = %+v", cfg.AI)
	}
}

func TestLoadErrorsOnInvalidValues(t *testing.T) {
	tests := []map[string]string{
		{"TABLEAGENT_PROFILE": "oops"},
		{"TABLEAGENT_HTTP_READ_TIMEOUT": "NaN"},
		{"TABLEAGENT_DATASET_SOURCE": "ftp"},
		{"TABLEAGENT_DATASET_MAX_ROWS": "-1"},
		{"TABLEAGENT_DATASET_MAX_OBJECT_BYTES": "lots"},
		{"TABLEAGENT_AGENT_MAX_CALLS": "three"},
		{"TABLEAGENT_AGENT_MAX_TURNS": "0"},
		{"TABLEAGENT_AGENT_RATE_LIMIT": "-1"},
		{"TABLEAGENT_AI_TEMPERATURE": "bad"},
		{"TABLEAGENT_AUTH_REQUIRED": "not-bool"},
		{"TABLEAGENT_LOG_LEVEL": "verbose"},
	}
	for _, env := range tests {
		if _, err := Load("tableagent-api", mapLookup(env)); err == nil {
			t.Fatalf("Load() expected error for env %#v", env)
		}
	}
}

func TestLoadReportsFirstInvalidKey(t *testing.T) {
	_, err := Load("tableagent-api", mapLookup(map[string]string{
		"TABLEAGENT_HTTP_READ_TIMEOUT": "x",
		"TABLEAGENT_AI_TIMEOUT":        "y",
	}))
	if err == nil || !strings.Contains(err.Error(), "TABLEAGENT_HTTP_READ_TIMEOUT") {
		t.Fatalf("Load() error = %v", err)
	}
}

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
