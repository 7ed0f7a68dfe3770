package workdir

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LiveJobs is satisfied by the store so the sweep can tell a job directory
// that is simply mid-run apart from one that is truly orphaned.
type LiveJobs interface {
	JobExists(ctx context.Context, jobID int32) (bool, error)
}

// GCSweeper periodically removes working directories under RunRoot whose
// job id is no longer known to the store — the broker's own crash or a
// killed plugin can leave a directory behind with no job row to drive its
// cleanup. Not part of the original broker; added because a long-running
// fork/exec dispatcher accumulates this kind of debris and the teacher's
// services all carry some form of background sweep.
type GCSweeper struct {
	mgr      *Manager
	jobs     LiveJobs
	log      *zap.Logger
	interval time.Duration
}

// NewGCSweeper builds a sweeper over mgr's RunRoot, consulting jobs to
// decide what is safe to remove.
func NewGCSweeper(mgr *Manager, jobs LiveJobs, log *zap.Logger, interval time.Duration) *GCSweeper {
	return &GCSweeper{mgr: mgr, jobs: jobs, log: log, interval: interval}
}

// Start schedules the sweep on a gocron/v2 scheduler and returns it so the
// caller can Shutdown() it alongside the rest of the broker. The first
// sweep runs after one interval, not immediately, to avoid racing startup
// job recovery.
func (g *GCSweeper) Start(ctx context.Context) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	_, err = sched.NewJob(
		gocron.DurationJob(g.interval),
		gocron.NewTask(func() { g.sweepOnce(ctx) }),
	)
	if err != nil {
		return nil, err
	}
	sched.Start()
	return sched, nil
}

func (g *GCSweeper) sweepOnce(ctx context.Context) {
	sweepID := uuid.New().String()
	entries, err := os.ReadDir(g.mgr.RunRoot)
	if err != nil {
		g.log.Warn("gc sweep: read run root failed", zap.String("sweep_id", sweepID), zap.Error(err))
		return
	}

	var removed, freedBytes int64
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		jobID, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		live, err := g.jobs.JobExists(ctx, int32(jobID))
		if err != nil {
			g.log.Warn("gc sweep: job lookup failed", zap.String("sweep_id", sweepID), zap.Int("job_id", jobID), zap.Error(err))
			continue
		}
		if live {
			continue
		}

		dir := filepath.Join(g.mgr.RunRoot, e.Name())
		size := dirSize(dir)
		if err := os.RemoveAll(dir); err != nil {
			g.log.Warn("gc sweep: remove failed", zap.String("sweep_id", sweepID), zap.String("dir", dir), zap.Error(err))
			continue
		}
		removed++
		freedBytes += size
		g.log.Info("gc sweep: removed orphaned working directory",
			zap.String("sweep_id", sweepID), zap.Int("job_id", jobID), zap.String("freed", humanize.Bytes(uint64(size))))
	}

	if removed > 0 {
		g.log.Info("gc sweep: complete",
			zap.String("sweep_id", sweepID), zap.Int64("dirs_removed", removed), zap.String("freed_total", humanize.Bytes(uint64(freedBytes))))
	}
}

func dirSize(root string) int64 {
	var total int64
	filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		total += info.Size()
		return nil
	})
	return total
}
