// Package processor implements the eight arg0-named job processors the
// dispatcher looks up by name and runs once per tick, per spec.md §4 and
// §5.6. Each processor receives the job row already locked inside the
// enclosing transaction and returns an error only for conditions that
// should roll that transaction back; routine state transitions are
// committed by mutating the job through ctx.Tx and returning nil.
package processor

import (
	"go.uber.org/zap"

	"github.com/xcore-broker/xcore/internal/pluginregistry"
	"github.com/xcore-broker/xcore/internal/store"
	"github.com/xcore-broker/xcore/internal/supervisor"
	"github.com/xcore-broker/xcore/internal/workdir"
	"github.com/xcore-broker/xcore/internal/xerr"
)

// Context bundles everything a processor needs beyond the job row itself.
type Context struct {
	Tx         *store.Tx
	WD         *workdir.Manager
	Registry   *pluginregistry.Registry
	Supervisor *supervisor.Supervisor
	Log        *zap.Logger
}

// Processor implements one arg0 value's state machine.
type Processor interface {
	Name() string
	Process(ctx *Context, job *store.Job) error
}

// Registry resolves a job's arg0 to the Processor that drives it.
type Registry struct {
	byName map[string]Processor
}

// NewRegistry builds a Registry containing every processor this broker
// knows how to run.
func NewRegistry() *Registry {
	r := &Registry{byName: make(map[string]Processor)}
	for _, p := range []Processor{
		newSchedProcessor(),
		newFullProcessor(),
		newRestoreProcessor(),
		newStageProcessor(snapConfig),
		newStageProcessor(exportConfig),
		newStageProcessor(putConfig),
		newStageProcessor(getConfig),
		newStageProcessor(importConfig),
	} {
		r.byName[p.Name()] = p
	}
	return r
}

// Lookup resolves arg0 to its Processor, or xerr.ENOPROC if arg0 names
// nothing this broker knows how to run.
func (r *Registry) Lookup(arg0 string) (Processor, error) {
	p, ok := r.byName[arg0]
	if !ok {
		return nil, xerr.ENOPROC
	}
	return p, nil
}
