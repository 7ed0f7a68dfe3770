package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConf(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "snappy.conf")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write temp conf: %v", err)
	}
	return path
}

func TestLoadExplicitPath(t *testing.T) {
	path := writeTempConf(t, `
[database]
server = db.internal
user = xcore
pass = secret
port = 3307

[xcore]
run_path = /tmp/run
log = /tmp/run/xcore.log
broker_home = /tmp/home
gc_interval = 90s
encrypt_args = true
metrics_addr = 127.0.0.1:9090

[plugin]
plugin_home = /tmp/plugins
`)

	cfg, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.DBServer != "db.internal" || cfg.DBPort != 3307 {
		t.Fatalf("unexpected db settings: %+v", cfg)
	}
	if cfg.RunPath != "/tmp/run" || cfg.PluginHome != "/tmp/plugins" {
		t.Fatalf("unexpected xcore/plugin settings: %+v", cfg)
	}
	if !cfg.EncryptArgs {
		t.Fatalf("EncryptArgs = false, want true")
	}
	if cfg.GCInterval.String() != "1m30s" {
		t.Fatalf("GCInterval = %v, want 1m30s", cfg.GCInterval)
	}
}

func TestLoadDefaultsWhenKeysAbsent(t *testing.T) {
	path := writeTempConf(t, "[database]\nserver = db.internal\n")

	cfg, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RunPath != "/var/lib/snappy/run" {
		t.Fatalf("RunPath = %q, want default", cfg.RunPath)
	}
	if cfg.GCInterval.String() != "5m0s" {
		t.Fatalf("GCInterval = %v, want default 5m", cfg.GCInterval)
	}
}

func TestLoadMissingFileErrors(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(cwd)
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	if _, err := Load("", ""); err == nil {
		t.Fatal("expected error when no config file is found")
	}
}
