// Package config loads the broker's INI configuration file and exposes
// typed getters, the way the original broker's conf.c wrapped ciniparser.
// gopkg.in/ini.v1 replaces ciniparser; the search path and section/key names
// are unchanged.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/ini.v1"
)

// searchPath lists candidate config file locations in priority order, the
// first readable one wins. Matches spec.md §6 verbatim (the original's
// third entry, "/var/lib/snappy/etc/snappy.conf", is generalized here to
// "<install>/etc/snappy.conf" per spec.md; installDir is passed by the
// caller, empty by default so the literal path is skipped).
func searchPath(installDir string) []string {
	paths := []string{"./snappy.conf", "/etc/snappy.conf"}
	if installDir != "" {
		paths = append(paths, installDir+"/etc/snappy.conf")
	}
	return paths
}

// Config holds every INI-sourced setting the broker needs, already
// defaulted and type-converted.
type Config struct {
	// database: section — MySQL connection parameters.
	DBServer string
	DBUser   string
	DBPass   string
	DBPort   int

	// xcore: section.
	RunPath     string // xcore:run_path — working-directory root
	LogPath     string // xcore:log — broker's own log file
	BrokerHome  string // xcore:broker_home
	GCInterval  time.Duration
	EncryptArgs bool
	EncryptKey  string // xcore:encrypt_key — base64 AES-256 key, required when encrypt_args is true
	MetricsAddr string // xcore:metrics_addr — empty disables the admin listener

	// plugin: section.
	PluginHome string
}

// Load finds the first readable file in searchPath(installDir) — or uses
// explicitPath if non-empty, bypassing the search — parses it, and returns
// a populated Config. Returns an error if no config file can be found or
// parsed.
func Load(explicitPath, installDir string) (*Config, error) {
	path := explicitPath
	if path == "" {
		for _, candidate := range searchPath(installDir) {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}
	if path == "" {
		return nil, fmt.Errorf("config: no config file found in search path")
	}

	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to load %s: %w", path, err)
	}

	db := f.Section("database")
	xcore := f.Section("xcore")
	plugin := f.Section("plugin")

	gcInterval, err := time.ParseDuration(xcore.Key("gc_interval").MustString("5m"))
	if err != nil {
		return nil, fmt.Errorf("config: invalid xcore:gc_interval: %w", err)
	}

	return &Config{
		DBServer: db.Key("server").MustString("127.0.0.1"),
		DBUser:   db.Key("user").MustString("snappy"),
		DBPass:   db.Key("pass").String(),
		DBPort:   db.Key("port").MustInt(3306),

		RunPath:     xcore.Key("run_path").MustString("/var/lib/snappy/run"),
		LogPath:     xcore.Key("log").MustString("/var/lib/snappy/run/xcore.log"),
		BrokerHome:  xcore.Key("broker_home").MustString("/var/lib/snappy"),
		GCInterval:  gcInterval,
		EncryptArgs: xcore.Key("encrypt_args").MustBool(false),
		EncryptKey:  xcore.Key("encrypt_key").String(),
		MetricsAddr: xcore.Key("metrics_addr").String(),

		PluginHome: plugin.Key("plugin_home").MustString("/var/lib/snappy/plugins"),
	}, nil
}

// DSN renders the MySQL data source name consumed by gorm.io/driver/mysql.
func (c *Config) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/snappy?parseTime=true&loc=UTC",
		c.DBUser, c.DBPass, c.DBServer, c.DBPort)
}
