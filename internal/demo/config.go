package demo

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Config struct {
	DatasetName string
	Rows        int
	Seed        int64
	// OutputPath is written when set, the object store upload happens when
	// Upload is true and PostgresTable is filled when named. At least one
	// target is required.
	OutputPath    string
	Upload        bool
	PostgresTable string
	StartDate     time.Time
	Days          int
}

func DefaultConfig() Config {
	return Config{
		DatasetName: "sales",
		Rows:        5000,
		Seed:        42,
		OutputPath:  "./data/sales.parquet",
		StartDate:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Days:        365,
	}
}

func LoadConfigFromEnv(lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	cfg := DefaultConfig()
	if err := applyString(lookup, "TABLEAGENT_DEMO_DATASET", &cfg.DatasetName); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "TABLEAGENT_DEMO_ROWS", &cfg.Rows); err != nil {
		return Config{}, err
	}
	if err := applyInt64(lookup, "TABLEAGENT_DEMO_SEED", &cfg.Seed); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "TABLEAGENT_DEMO_OUTPUT", &cfg.OutputPath); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "TABLEAGENT_DEMO_UPLOAD", &cfg.Upload); err != nil {
		return Config{}, err
	}
	if err := applyString(lookup, "TABLEAGENT_DEMO_POSTGRES_TABLE", &cfg.PostgresTable); err != nil {
		return Config{}, err
	}
	if err := applyDate(lookup, "TABLEAGENT_DEMO_START_DATE", &cfg.StartDate); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "TABLEAGENT_DEMO_DAYS", &cfg.Days); err != nil {
		return Config{}, err
	}

	if strings.TrimSpace(cfg.DatasetName) == "" {
		return Config{}, fmt.Errorf("TABLEAGENT_DEMO_DATASET is required")
	}
	if cfg.Rows <= 0 {
		return Config{}, fmt.Errorf("TABLEAGENT_DEMO_ROWS must be > 0")
	}
	if cfg.Days <= 0 {
		return Config{}, fmt.Errorf("TABLEAGENT_DEMO_DAYS must be > 0")
	}
	if !cfg.hasTarget() {
		return Config{}, fmt.Errorf("set TABLEAGENT_DEMO_OUTPUT, TABLEAGENT_DEMO_UPLOAD=true or TABLEAGENT_DEMO_POSTGRES_TABLE")
	}
	return cfg, nil
}

func (c Config) hasTarget() bool {
	return c.OutputPath != "" || c.Upload || c.PostgresTable != ""
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDate(lookup LookupFunc, key string, dst *time.Time) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := time.Parse(time.DateOnly, strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v.UTC()
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyInt64(lookup LookupFunc, key string, dst *int64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}
