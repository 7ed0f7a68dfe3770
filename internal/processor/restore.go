package processor

import (
	"github.com/xcore-broker/xcore/internal/jsonptr"
	"github.com/xcore-broker/xcore/internal/state"
	"github.com/xcore-broker/xcore/internal/store"
	"github.com/xcore-broker/xcore/internal/xerr"
)

// restoreProcessor drives "rstr_single", which spawns a single "get" child
// job to retrieve data associated with an earlier export job, grounded on
// rstr_single.c.
type restoreProcessor struct{}

func newRestoreProcessor() *restoreProcessor { return &restoreProcessor{} }

func (p *restoreProcessor) Name() string { return "rstr_single" }

func (p *restoreProcessor) Process(ctx *Context, job *store.Job) error {
	switch state.Get(job.State) {
	case state.Created:
		return p.created(ctx, job)
	case state.Ready:
		return p.ready(ctx, job)
	case state.Blocked:
		return p.blocked(ctx, job)
	case state.Done, state.Term:
		return nil // terminal, or vestigial unreachable in the original
	default:
		return xerr.ESTATJ
	}
}

// validateRestoreTarget resolves arg1's rstr_to_job_id and checks that it names a
// historical "export" job — a restore job must always point back at an
// export, never at any other stage.
func validateRestoreTarget(ctx *Context, job *store.Job) (int32, error) {
	target, err := jsonptr.GetFloat([]byte(job.Arg1), ".rstr_to_job_id")
	if err != nil {
		return 0, xerr.EINVREC
	}
	histID := int32(target)
	histArg0, err := ctx.Tx.GetArg(histID, 0)
	if err != nil {
		return 0, xerr.EINVREC
	}
	if histArg0 != "export" {
		return 0, xerr.EARG
	}
	return histID, nil
}

func (p *restoreProcessor) created(ctx *Context, job *store.Job) error {
	if _, err := validateRestoreTarget(ctx, job); err != nil {
		return transitionDone(ctx, job, "rstr_single", int32(xerr.EINVREC))
	}
	return transition(ctx, job, "rstr_single", state.Ready, 0)
}

func (p *restoreProcessor) ready(ctx *Context, job *store.Job) error {
	if job.Sub == 0 {
		if err := addGetJob(ctx, job); err != nil {
			return transitionDone(ctx, job, "rstr_single", int32(xerr.ESPAWNJ))
		}
		return transition(ctx, job, "rstr_single", state.Blocked, 0)
	}

	get, err := ctx.Tx.Fetch(job.Sub)
	if err != nil {
		return err
	}
	if get.Done == 0 {
		// The original returns -EBUSY here, but its caller ignores that
		// return value, so the effect is identical to a silent stay.
		return nil
	}
	if get.Result != 0 {
		return transitionDone(ctx, job, "rstr_single", int32(xerr.ESUB))
	}
	return transitionDone(ctx, job, "rstr_single", 0)
}

func (p *restoreProcessor) blocked(ctx *Context, job *store.Job) error {
	count, err := ctx.Tx.CountDoneChildren(job.ID)
	if err != nil {
		return err
	}
	if count == 0 {
		return nil
	}
	return transition(ctx, job, "rstr_single", state.Ready, 0)
}

// addGetJob inserts the "get" child: its restore target is arg2 if the
// frontend supplied one directly, otherwise the historical export job's
// own arg2 (the storage location get should retrieve from).
func addGetJob(ctx *Context, job *store.Job) error {
	arg2 := job.Arg2
	if arg2 == "" {
		histID, err := validateRestoreTarget(ctx, job)
		if err != nil {
			return err
		}
		v, err := ctx.Tx.GetArg(histID, 2)
		if err != nil {
			return err
		}
		arg2 = store.EncryptedString(v)
	}

	child := &store.Job{
		Parent: job.ID,
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
	if err := ctx.Tx.SetArg(id, 0, "get"); err != nil {
		return err
	}
	if err := ctx.Tx.SetArg(id, 1, job.Arg1); err != nil {
		return err
	}
	if err := ctx.Tx.SetArg(id, 2, string(arg2)); err != nil {
		return err
	}
	child.FEID = job.FEID
	if err := ctx.Tx.UpdateStructural(child); err != nil {
		return err
	}

	job.Sub = id
	return ctx.Tx.UpdateStructural(job)
}
