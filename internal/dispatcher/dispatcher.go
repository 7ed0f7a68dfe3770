// Package dispatcher implements the broker's tick loop: claim one
// runnable job, run its processor inside a transaction, reap any exited
// plugin children, and repeat — sleeping when nothing is runnable or a
// tick fails.
// Grounded on the *_proc(db_conn, job_id) entry points every original
// processor file exposed, generalized into a single driver over the
// internal/processor registry.
package dispatcher

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/xcore-broker/xcore/internal/pluginregistry"
	"github.com/xcore-broker/xcore/internal/processor"
	"github.com/xcore-broker/xcore/internal/state"
	"github.com/xcore-broker/xcore/internal/store"
	"github.com/xcore-broker/xcore/internal/supervisor"
	"github.com/xcore-broker/xcore/internal/workdir"
	"github.com/xcore-broker/xcore/internal/xerr"
)

// Dispatcher owns the tick loop.
type Dispatcher struct {
	Store      *store.Store
	Registry   *processor.Registry
	Plugins    *pluginregistry.Registry
	WD         *workdir.Manager
	Supervisor *supervisor.Supervisor
	Log        *zap.Logger

	// IdleSleep is how long the loop waits after a tick finds nothing
	// runnable, before trying again.
	IdleSleep time.Duration
}

// New builds a Dispatcher. idleSleep of 0 defaults to 1s.
func New(st *store.Store, reg *processor.Registry, plugins *pluginregistry.Registry,
	wd *workdir.Manager, sup *supervisor.Supervisor, log *zap.Logger, idleSleep time.Duration) *Dispatcher {
	if idleSleep == 0 {
		idleSleep = time.Second
	}
	return &Dispatcher{
		Store: st, Registry: reg, Plugins: plugins, WD: wd, Supervisor: sup, Log: log,
		IdleSleep: idleSleep,
	}
}

// Run drives the tick loop until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := d.tick(ctx)
		supervisor.ReapAll()

		switch {
		case err == nil:
			// a job ran this tick; go again immediately
		case errors.Is(err, xerr.ENEXT):
			if !sleepOrDone(ctx, d.IdleSleep) {
				return ctx.Err()
			}
		default:
			d.Log.Error("dispatcher: tick failed", zap.Error(err))
			if !sleepOrDone(ctx, d.IdleSleep) {
				return ctx.Err()
			}
		}
	}
}

// tick claims one runnable job and runs its processor inside a single
// transaction. Returning xerr.ENEXT is the normal "nothing to do" signal;
// any other error rolls the transaction back, leaving the job as it was
// for the next tick to retry.
func (d *Dispatcher) tick(ctx context.Context) error {
	return d.Store.Transaction(ctx, func(tx *store.Tx) error {
		id, err := tx.AllocateID()
		if err != nil {
			return err
		}

		job, err := tx.Fetch(id)
		if err != nil {
			return err
		}
		if err := tx.LockTree(job.Root); err != nil {
			return err
		}

		p, err := d.Registry.Lookup(job.Arg0)
		if err != nil {
			// No processor for this arg0: terminate the job rather than
			// leave it forever runnable and forever failing to resolve.
			job.State = state.Update(job.State, state.Done)
			job.Result = int32(xerr.ENOPROC)
			if uerr := tx.UpdateStructural(job); uerr != nil {
				return uerr
			}
			return tx.SetDone(job.ID, job.Result)
		}

		pctx := &processor.Context{
			Tx: tx, WD: d.WD, Registry: d.Plugins, Supervisor: d.Supervisor, Log: d.Log,
		}
		return p.Process(pctx, job)
	})
}

// sleepOrDone waits for d to elapse, returning false early if ctx is
// cancelled first.
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
