package processor

import (
	"fmt"
	"strconv"
	"time"

	"github.com/xcore-broker/xcore/internal/datatag"
	"github.com/xcore-broker/xcore/internal/joblog"
	"github.com/xcore-broker/xcore/internal/state"
	"github.com/xcore-broker/xcore/internal/store"
	"github.com/xcore-broker/xcore/internal/xerr"
)

// stageConfig parameterizes the single-plugin stage machine shared by
// snap, export, put, get, and import — each forks exactly one plugin
// process, waits for it across ticks, and harvests its result, differing
// only in which arg2 field names their plugin, whether they inherit data
// from a predecessor in the stage chain, and (for export/get) which stage
// they spawn as their own sibling once their own plugin exits (grounded
// on put.c's proc_created/proc_run/proc_term switch, the most complete of
// the original single-plugin stage sources).
type stageConfig struct {
	name         string
	pluginField  string // "sp_name" or "tp_name"
	inherit      bool   // pull data/ forward from the job whose next points here
	nextStage    string // "put"/"import" sibling spawned on success, "" for none
	writeRstrArg bool   // write meta/rstr_arg (= arg1) at Created; get only
	writeTag     bool   // write meta/tag (= datatag blob) at Created; export only
}

var (
	snapConfig   = stageConfig{name: "snap", pluginField: "sp_name", inherit: false}
	exportConfig = stageConfig{name: "export", pluginField: "sp_name", inherit: false, nextStage: "put", writeTag: true}
	putConfig    = stageConfig{name: "put", pluginField: "tp_name", inherit: true}
	getConfig    = stageConfig{name: "get", pluginField: "tp_name", inherit: false, nextStage: "import", writeRstrArg: true}
	importConfig = stageConfig{name: "import", pluginField: "sp_name", inherit: true}
)

type stageProcessor struct {
	cfg stageConfig
}

func newStageProcessor(cfg stageConfig) *stageProcessor {
	return &stageProcessor{cfg: cfg}
}

func (p *stageProcessor) Name() string { return p.cfg.name }

func (p *stageProcessor) Process(ctx *Context, job *store.Job) error {
	switch state.Get(job.State) {
	case state.Created:
		return p.created(ctx, job)
	case state.Run:
		return p.run(ctx, job)
	case state.Term:
		return p.term(ctx, job)
	default:
		return xerr.ESTATJ
	}
}

// created resolves the plugin, prepares the working directory (optionally
// inheriting a predecessor's data), writes the kind-specific meta files,
// forks the plugin, and advances to Run.
func (p *stageProcessor) created(ctx *Context, job *store.Job) error {
	d, err := ctx.Registry.Choose([]byte(job.Arg2), p.cfg.pluginField)
	if err != nil {
		return err
	}

	if err := ctx.WD.Prepare(job.ID); err != nil {
		return fmt.Errorf("processor: %s: prepare workdir: %w", p.cfg.name, err)
	}

	if p.cfg.inherit {
		predID, err := ctx.Tx.PredecessorByNext(job.ID)
		if err != nil {
			return err
		}
		if err := ctx.WD.Inherit(predID, job.ID); err != nil {
			return fmt.Errorf("processor: %s: inherit data from %d: %w", p.cfg.name, predID, err)
		}
	}

	if err := ctx.WD.WriteKVString(job.ID, "meta/cmd", job.Arg0); err != nil {
		return err
	}
	if err := ctx.WD.WriteKVInt(job.ID, "meta/id", int(job.ID)); err != nil {
		return err
	}
	if err := ctx.WD.WriteKVString(job.ID, "meta/arg", string(job.Arg2)); err != nil {
		return err
	}
	if p.cfg.writeRstrArg {
		if err := ctx.WD.WriteKVString(job.ID, "meta/rstr_arg", job.Arg1); err != nil {
			return err
		}
	}
	if p.cfg.writeTag {
		if err := writeDataTag(ctx, job); err != nil {
			return err
		}
	}

	execPath := ctx.Registry.ExecPath(d)
	if _, err := ctx.Supervisor.Spawn(job.ID, execPath); err != nil {
		return xerr.ESPAWNJ
	}

	return ctx.Tx.UpdateState(job.ID, state.Run)
}

// writeDataTag resolves both the source and target plugin descriptors
// named in job.Arg2 and writes the 4 KiB meta/tag block: the job id, the
// parent job id as DepID, the source/target plugin ids and versions, and
// as SnapTS the time the tag is written (no timestamp is read from the
// snap job). FragID stays zero; nothing else in the broker reads the tag
// back.
func writeDataTag(ctx *Context, job *store.Job) error {
	src, err := ctx.Registry.Choose([]byte(job.Arg2), "sp_name")
	if err != nil {
		return err
	}
	tgt, err := ctx.Registry.Choose([]byte(job.Arg2), "tp_name")
	if err != nil {
		return err
	}

	tag := datatag.Tag{
		Magic:        datatag.Magic,
		DepID:        job.Parent,
		JobID:        job.ID,
		SnapTS:       time.Now().Unix(),
		SrcPluginID:  src.ID,
		SrcPluginVer: src.Version,
		TgtPluginID:  tgt.ID,
		TgtPluginVer: tgt.Version,
	}
	b, err := datatag.Marshal(tag)
	if err != nil {
		return fmt.Errorf("processor: %s: marshal data tag: %w", exportConfig.name, err)
	}
	return ctx.WD.WriteKVBytes(job.ID, "meta/tag", b)
}

// run polls the forked plugin. While it is still alive this is a silent
// no-op tick (grounded on put.c's proc_run early "return 0" when the
// child is still alive); once it has exited, the result is harvested,
// export/get spawn their stage-chain sibling on success, and the job
// moves to Term.
func (p *stageProcessor) run(ctx *Context, job *store.Job) error {
	alive, err := ctx.Supervisor.Poll(job.ID)
	if err != nil {
		return fmt.Errorf("processor: %s: poll: %w", p.cfg.name, err)
	}
	if alive {
		return nil
	}

	res, err := ctx.Supervisor.Harvest(job.ID)
	if err != nil {
		return fmt.Errorf("processor: %s: harvest: %w", p.cfg.name, err)
	}

	result := int32(0)
	if res.Missing {
		result = int32(xerr.EBADJ)
	} else if res.Status != 0 {
		result = int32(xerr.EPLUG)
	} else if res.ArgOut != "" {
		if err := ctx.Tx.SetArg(job.ID, 2, res.ArgOut); err != nil {
			return err
		}
		job.Arg2 = store.EncryptedString(res.ArgOut)
	}

	if result == 0 && p.cfg.nextStage != "" {
		if err := spawnStageSibling(ctx, job, p.cfg.nextStage); err != nil {
			return err
		}
	}

	rec := joblog.Record{
		Who: job.ID, Proc: p.cfg.name,
		StateBefore: int32(state.Run), StateAfter: int32(state.Term),
		TS:     time.Now().Unix(),
		Status: result,
		Extra:  map[string]interface{}{"exit_status": strconv.Itoa(res.Status)},
	}
	if err := ctx.Tx.AppendLog(job.ID, rec); err != nil {
		return err
	}

	job.Result = result
	if err := ctx.Tx.UpdateStructural(job); err != nil {
		return err
	}
	return ctx.Tx.UpdateState(job.ID, state.Term)
}

// spawnStageSibling inserts the stage job chained after job — "put" after
// a successful export, "import" after a successful get — linking job.Next
// to it (the backward-lookup Inherit/Prepare walks via PredecessorByNext)
// and job.Sub to it (so term can poll it for completion). The sibling is a
// flat child of job's own parent, alongside job itself, matching the
// "backup → {snapshot, export, put}" / "restore → {get, import}" tree
// shape spec.md §2 describes.
func spawnStageSibling(ctx *Context, job *store.Job, nextStage string) error {
	child := &store.Job{
		Parent: job.Parent,
		Grp:    job.Grp,
		Root:   job.Root,
		State:  int32(state.Created),
	}
	if child.Parent == 0 {
		child.Parent = job.ID
	}
	if child.Root == 0 {
		child.Root = job.ID
	}
	id, err := ctx.Tx.Insert(child)
	if err != nil {
		return err
	}
	if err := ctx.Tx.SetArg(id, 0, nextStage); err != nil {
		return err
	}
	if err := ctx.Tx.SetArg(id, 1, job.Arg1); err != nil {
		return err
	}
	if err := ctx.Tx.SetArg(id, 2, string(job.Arg2)); err != nil {
		return err
	}
	child.FEID = job.FEID
	if err := ctx.Tx.UpdateStructural(child); err != nil {
		return err
	}

	job.Sub = id
	job.Next = id
	if err := ctx.Tx.UpdateStructural(job); err != nil {
		return err
	}

	rec := joblog.Record{
		Who: id, Proc: nextStage,
		StateBefore: 0, StateAfter: int32(state.Created),
		TS: time.Now().Unix(),
	}
	return ctx.Tx.AppendLog(id, rec)
}

// term harvests the spawned stage sibling's result (if any), propagating
// its failure into this job's own result, then cleans up the working
// directory and marks the job done.
func (p *stageProcessor) term(ctx *Context, job *store.Job) error {
	if p.cfg.nextStage != "" && job.Result == 0 && job.Sub != 0 {
		sub, err := ctx.Tx.Fetch(job.Sub)
		if err != nil {
			return err
		}
		if sub.Done == 0 {
			return nil // still running; poll again next tick
		}
		if sub.Result != 0 {
			job.Result = int32(xerr.ESUB)
			if err := ctx.Tx.UpdateStructural(job); err != nil {
				return err
			}
		}
	}

	if err := ctx.WD.Cleanup(job.ID); err != nil {
		return fmt.Errorf("processor: %s: cleanup: %w", p.cfg.name, err)
	}
	if err := ctx.Tx.UpdateState(job.ID, state.Done); err != nil {
		return err
	}
	return ctx.Tx.SetDone(job.ID, job.Result)
}
