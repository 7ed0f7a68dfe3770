package processor

import (
	"time"

	"github.com/xcore-broker/xcore/internal/joblog"
	"github.com/xcore-broker/xcore/internal/state"
	"github.com/xcore-broker/xcore/internal/store"
	"github.com/xcore-broker/xcore/internal/xerr"
)

// fullProcessor drives "bk_single_full", the orchestrator that runs a
// snapshot followed by its export as one child job chain: created ->
// ready -> blocked -> ready -> ... -> done, grounded on bk_single_full.c.
type fullProcessor struct{}

func newFullProcessor() *fullProcessor { return &fullProcessor{} }

func (p *fullProcessor) Name() string { return "bk_single_full" }

func (p *fullProcessor) Process(ctx *Context, job *store.Job) error {
	switch state.Get(job.State) {
	case state.Created:
		return p.created(ctx, job)
	case state.Ready:
		return p.ready(ctx, job)
	case state.Blocked:
		return p.blocked(ctx, job)
	case state.Done:
		return nil // terminal; shouldn't be scheduled again
	default:
		return xerr.ESTATJ
	}
}

func (p *fullProcessor) created(ctx *Context, job *store.Job) error {
	return transition(ctx, job, "bk_single_full", state.Ready, 0)
}

func (p *fullProcessor) ready(ctx *Context, job *store.Job) error {
	if job.Sub == 0 {
		if err := addChildJob(ctx, job, "snap", string(job.Arg2), 0); err != nil {
			return transitionDone(ctx, job, "bk_single_full", int32(xerr.EPROC))
		}
		return transition(ctx, job, "bk_single_full", state.Blocked, 0)
	}

	snap, err := ctx.Tx.Fetch(job.Sub)
	if err != nil {
		return err
	}
	if snap.Done == 0 {
		return nil
	}
	if snap.Result != 0 {
		return transitionDone(ctx, job, "bk_single_full", int32(xerr.ESUB))
	}

	if snap.Next == 0 {
		if err := addChildJob(ctx, job, "export", string(snap.Arg2), snap.Grp); err != nil {
			return err
		}
		return transition(ctx, job, "bk_single_full", state.Blocked, 0)
	}

	export, err := ctx.Tx.Fetch(snap.Next)
	if err != nil {
		return err
	}
	if export.Done == 0 {
		return nil
	}
	if export.Result != 0 {
		return transitionDone(ctx, job, "bk_single_full", int32(xerr.ESUB))
	}
	return transitionDone(ctx, job, "bk_single_full", 0)
}

func (p *fullProcessor) blocked(ctx *Context, job *store.Job) error {
	count, err := ctx.Tx.CountDoneChildren(job.ID)
	if err != nil {
		return err
	}
	if count == 0 {
		return nil
	}
	return transition(ctx, job, "bk_single_full", state.Ready, 0)
}

// addChildJob inserts a new CREATED job as job's next sub-stage: "snap"
// when job has no sub yet, "export" once chained after snap via the
// snap job's next pointer. grp, when non-zero, pins the new job to an
// existing scheduling group (export joins snap's group); zero lets Insert
// self-root it.
func addChildJob(ctx *Context, job *store.Job, arg0, arg2 string, grp int32) error {
	child := &store.Job{
		Parent: job.ID,
		Grp:    grp,
		Root:   job.Root,
		State:  int32(state.Created),
	}
	if child.Root == 0 {
		child.Root = job.ID
	}
	id, err := ctx.Tx.Insert(child)
	if err != nil {
		return err
	}
	if err := ctx.Tx.SetArg(id, 0, arg0); err != nil {
		return err
	}
	if err := ctx.Tx.SetArg(id, 2, arg2); err != nil {
		return err
	}
	child.FEID = job.FEID
	if err := ctx.Tx.UpdateStructural(child); err != nil {
		return err
	}

	if arg0 == "snap" {
		job.Sub = id
		if err := ctx.Tx.UpdateStructural(job); err != nil {
			return err
		}
	} else {
		snap, err := ctx.Tx.Fetch(job.Sub)
		if err != nil {
			return err
		}
		snap.Next = id
		if err := ctx.Tx.UpdateStructural(snap); err != nil {
			return err
		}
	}

	rec := joblog.Record{
		Who: id, Proc: arg0,
		StateBefore: 0, StateAfter: int32(state.Created),
		TS: time.Now().Unix(),
	}
	return ctx.Tx.AppendLog(id, rec)
}

// transition moves job to next, recording status on the record and on
// the job's result column, without marking it done.
func transition(ctx *Context, job *store.Job, proc string, next state.Sched, status int32) error {
	before := job.State
	job.State = state.Update(job.State, next)
	job.Result = status
	if err := ctx.Tx.UpdateStructural(job); err != nil {
		return err
	}
	rec := joblog.Record{
		Who: job.ID, Proc: proc,
		StateBefore: before, StateAfter: job.State,
		TS: time.Now().Unix(), Status: status,
	}
	return ctx.Tx.AppendLog(job.ID, rec)
}

// transitionDone moves job straight to Done, recording result and setting
// the done column together, per spec.md §4.6.3's terminal-state rule.
func transitionDone(ctx *Context, job *store.Job, proc string, status int32) error {
	before := job.State
	job.State = state.Update(job.State, state.Done)
	job.Result = status
	if err := ctx.Tx.UpdateStructural(job); err != nil {
		return err
	}
	if err := ctx.Tx.SetDone(job.ID, status); err != nil {
		return err
	}
	rec := joblog.Record{
		Who: job.ID, Proc: proc,
		StateBefore: before, StateAfter: job.State,
		TS: time.Now().Unix(), Status: status,
	}
	return ctx.Tx.AppendLog(job.ID, rec)
}
