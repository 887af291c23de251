package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default port: got %d", cfg.Server.Port)
	}
	if cfg.Retrieval.MaxResults != 5 {
		t.Errorf("default max results: got %d", cfg.Retrieval.MaxResults)
	}
	if cfg.Retrieval.SemanticWeight != 0.7 || cfg.Retrieval.KeywordWeight != 0.3 {
		t.Errorf("default weights: got %f/%f", cfg.Retrieval.SemanticWeight, cfg.Retrieval.KeywordWeight)
	}
	if cfg.Retrieval.OverallTimeout != 300*time.Millisecond {
		t.Errorf("default overall timeout: got %v", cfg.Retrieval.OverallTimeout)
	}
	if cfg.External.CacheTTL != 24*time.Hour {
		t.Errorf("default external cache TTL: got %v", cfg.External.CacheTTL)
	}
	if cfg.Kafka.Enabled {
		t.Error("kafka should default to disabled")
	}
	if cfg.Vector.Backend != "memory" {
		t.Errorf("default vector backend: got %q", cfg.Vector.Backend)
	}
}

func TestLoadYAMLFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
server:
  port: 9999
retrieval:
  maxResults: 8
  semanticWeight: 0.6
  keywordWeight: 0.4
  tenantOverrides:
    tenant-x:
      semanticWeight: 0.9
      keywordWeight: 0.1
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("yaml port override: got %d", cfg.Server.Port)
	}
	if cfg.Retrieval.MaxResults != 8 {
		t.Errorf("yaml max results override: got %d", cfg.Retrieval.MaxResults)
	}
	// Untouched fields keep their defaults.
	if cfg.Retrieval.RecordBoost != 1.0 {
		t.Errorf("record boost should keep its default, got %f", cfg.Retrieval.RecordBoost)
	}

	semantic, keyword := cfg.Retrieval.WeightsFor("tenant-x")
	if semantic != 0.9 || keyword != 0.1 {
		t.Errorf("tenant override weights: got %f/%f", semantic, keyword)
	}
	semantic, keyword = cfg.Retrieval.WeightsFor("tenant-y")
	if semantic != 0.6 || keyword != 0.4 {
		t.Errorf("fallback weights: got %f/%f", semantic, keyword)
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TULIA_SERVER_PORT", "7070")
	t.Setenv("TULIA_KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("TULIA_VECTOR_BACKEND", "chroma")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("env port override: got %d", cfg.Server.Port)
	}
	if !cfg.Kafka.Enabled || len(cfg.Kafka.Brokers) != 2 {
		t.Errorf("broker env should enable kafka with 2 brokers, got enabled=%v brokers=%v", cfg.Kafka.Enabled, cfg.Kafka.Brokers)
	}
	if cfg.Vector.Backend != "chroma" {
		t.Errorf("env backend override: got %q", cfg.Vector.Backend)
	}
}

func TestAttributionEnabledFor(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Retrieval.AttributionEnabledFor("any-tenant") {
		t.Error("attribution should default to enabled")
	}

	off := false
	cfg.Retrieval.TenantOverrides = map[string]TenantWeights{
		"tenant-quiet": {AttributionEnabled: &off},
	}
	if cfg.Retrieval.AttributionEnabledFor("tenant-quiet") {
		t.Error("tenant override should disable attribution")
	}
	if !cfg.Retrieval.AttributionEnabledFor("other") {
		t.Error("other tenants keep attribution enabled")
	}
}
