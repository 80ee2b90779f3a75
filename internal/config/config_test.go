package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
database:
  host: localhost
  name: sfp
  user: sfp
  password: secret
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Matching.Threshold != 0.5 {
		t.Errorf("expected default threshold 0.5, got %f", cfg.Matching.Threshold)
	}
	if cfg.Matching.EmbeddingDim != 128 {
		t.Errorf("expected default embedding dim 128, got %d", cfg.Matching.EmbeddingDim)
	}
	if cfg.Matching.Backend != "pgvector" {
		t.Errorf("expected default backend pgvector, got %s", cfg.Matching.Backend)
	}
	if cfg.Ingest.ExtractWorkers != 1 {
		t.Errorf("expected 1 extract worker, got %d", cfg.Ingest.ExtractWorkers)
	}
	if cfg.Ingest.PersistWorkers != 3 {
		t.Errorf("expected 3 persist workers, got %d", cfg.Ingest.PersistWorkers)
	}
	if cfg.Ingest.MaxDimension != 1280 {
		t.Errorf("expected max dimension 1280, got %d", cfg.Ingest.MaxDimension)
	}
}

func TestLoad_ExplicitValues(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
matching:
  threshold: 0.42
  embedding_dim: 512
  backend: hnsw
ingest:
  extract_workers: 2
  persist_workers: 8
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	if cfg.Matching.Threshold != 0.42 {
		t.Errorf("expected threshold 0.42, got %f", cfg.Matching.Threshold)
	}
	if cfg.Matching.EmbeddingDim != 512 {
		t.Errorf("expected embedding dim 512, got %d", cfg.Matching.EmbeddingDim)
	}
	if cfg.Matching.Backend != "hnsw" {
		t.Errorf("expected backend hnsw, got %s", cfg.Matching.Backend)
	}
	if cfg.Ingest.ExtractWorkers != 2 {
		t.Errorf("expected 2 extract workers, got %d", cfg.Ingest.ExtractWorkers)
	}
	if cfg.Ingest.PersistWorkers != 8 {
		t.Errorf("expected 8 persist workers, got %d", cfg.Ingest.PersistWorkers)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
`)

	t.Setenv("SFP_SERVER_PORT", "9100")
	t.Setenv("SFP_MATCH_THRESHOLD", "0.6")
	t.Setenv("SFP_DB_HOST", "db.internal")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != 9100 {
		t.Errorf("expected env override port 9100, got %d", cfg.Server.Port)
	}
	if cfg.Matching.Threshold != 0.6 {
		t.Errorf("expected env override threshold 0.6, got %f", cfg.Matching.Threshold)
	}
	if cfg.Database.Host != "db.internal" {
		t.Errorf("expected env override db host, got %s", cfg.Database.Host)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "localhost", Port: 5432, Name: "sfp", User: "u", Password: "p"}
	want := "postgres://u:p@localhost:5432/sfp?sslmode=disable"
	if got := d.DSN(); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}
