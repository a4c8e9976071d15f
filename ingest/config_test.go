package ingest

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eelog.yaml")
	content := `database:
  driver: postgres
  user: eqtl
  password: secret
  host: db01:5432
  sid: eelog
input_dir: /data/etl
work_dir: /var/tmp/eelog
error_dir: /data/etl/errors
converter:
  command: /opt/tracerpt
  strict: true
  keep_xml: true
log:
  file: eelog.log
  level: debug
  lang: pt_BR
  max_size_mb: 50
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Database.User != "eqtl" || cfg.Database.Host != "db01:5432" || cfg.Database.SID != "eelog" {
		t.Fatalf("unexpected database config %+v", cfg.Database)
	}
	if cfg.InputDir != "/data/etl" || cfg.WorkDir != "/var/tmp/eelog" || cfg.ErrorDir != "/data/etl/errors" {
		t.Fatalf("unexpected dirs %+v", cfg)
	}
	if cfg.Converter.Strict == nil || !*cfg.Converter.Strict || !cfg.Converter.KeepXML {
		t.Fatalf("unexpected converter config %+v", cfg.Converter)
	}
	if cfg.Log.MaxSizeMB != 50 || cfg.Log.Lang != "pt_BR" {
		t.Fatalf("unexpected log config %+v", cfg.Log)
	}
}

func TestLoadConfig_StrictUnset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eelog.yaml")
	if err := os.WriteFile(path, []byte("input_dir: .\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Converter.Strict != nil {
		t.Fatalf("expected strict unset")
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("database: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected error for invalid yaml")
	}
}
