// Package pluginregistry enumerates plugin directories under the
// configured plugin root, parses each one's "info" descriptor, and
// resolves plugins by name or id for the stage processors.
package pluginregistry

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/ini.v1"

	"github.com/xcore-broker/xcore/internal/jsonptr"
	"github.com/xcore-broker/xcore/internal/xerr"
)

// MaxEntries bounds the registry table, matching the original's fixed
// plugin_tbl[64].
const MaxEntries = 64

// Descriptor is one resolved plugin: its registry id, name, version, and
// the executable named in its info file.
type Descriptor struct {
	ID      int32
	Name    string
	Exec    string
	Version int32
}

// Registry holds the plugins discovered under one plugin root. Safe for
// concurrent read access; built once at startup and treated as immutable
// afterward (spec.md §5's "config and plugin registry are loaded once").
type Registry struct {
	mu         sync.RWMutex
	pluginHome string
	entries    []Descriptor
}

// Load scans pluginHome for subdirectories containing a readable "info"
// descriptor with a non-empty name and non-negative id, recording up to
// MaxEntries of them. A subdirectory missing or with an unreadable/invalid
// info file is skipped rather than failing the whole load, matching the
// original's best-effort opendir/readdir loop.
func Load(pluginHome string) (*Registry, error) {
	entries, err := os.ReadDir(pluginHome)
	if err != nil {
		return nil, fmt.Errorf("pluginregistry: read plugin home %s: %w", pluginHome, err)
	}

	reg := &Registry{pluginHome: pluginHome}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if len(reg.entries) >= MaxEntries {
			break
		}
		infoPath := filepath.Join(pluginHome, e.Name(), "info")
		d, ok := loadDescriptor(infoPath)
		if !ok {
			continue
		}
		reg.entries = append(reg.entries, d)
	}
	return reg, nil
}

func loadDescriptor(infoPath string) (Descriptor, bool) {
	f, err := ini.Load(infoPath)
	if err != nil {
		return Descriptor{}, false
	}
	sec := f.Section("")
	name := sec.Key("name").String()
	exec := sec.Key("exec").String()
	id, err := sec.Key("id").Int()
	if name == "" || exec == "" || err != nil || id < 0 {
		return Descriptor{}, false
	}
	version := sec.Key("version").MustInt(1)
	return Descriptor{ID: int32(id), Name: name, Exec: exec, Version: int32(version)}, true
}

// ByName performs a bounded linear scan for a plugin by name.
func (r *Registry) ByName(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.entries {
		if d.Name == name {
			return d, true
		}
	}
	return Descriptor{}, false
}

// ByID performs a bounded linear scan for a plugin by registry id.
func (r *Registry) ByID(id int32) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.entries {
		if d.ID == id {
			return d, true
		}
	}
	return Descriptor{}, false
}

// ExecPath returns the absolute path to d's executable:
// <plugin_root>/<plugin.name>/<plugin.info["exec"]>.
func (r *Registry) ExecPath(d Descriptor) string {
	return filepath.Join(r.pluginHome, d.Name, d.Exec)
}

// Choose parses arg (a job's arg2 JSON) for the named field — "sp_name" for
// a source plugin, "tp_name" for a target plugin — and resolves it against
// the registry. Returns xerr.EINCOMPARG if the field is absent or empty,
// xerr.ENOPLUG if it names a plugin not in the registry.
func (r *Registry) Choose(arg []byte, field string) (Descriptor, error) {
	name, err := jsonptr.GetString(arg, "."+field)
	if err != nil || name == "" {
		return Descriptor{}, xerr.EINCOMPARG
	}
	d, ok := r.ByName(name)
	if !ok {
		return Descriptor{}, xerr.ENOPLUG
	}
	return d, nil
}
