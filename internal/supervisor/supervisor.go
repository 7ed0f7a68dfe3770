// Package supervisor forks and polls plugin processes. A plugin is handed
// its working directory as cwd, a bare argv[0], and an empty environment —
// the fork/exec contract in spec.md §3.4/§5.5 — and the broker never
// blocks waiting for it to exit. The only state that must survive a
// broker restart is the pid recorded in meta/pid and the job row itself,
// so liveness is rechecked with a raw signal-0 probe rather than held in
// a goroutine blocked on os/exec.Cmd.Wait.
package supervisor

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/xcore-broker/xcore/internal/workdir"
)

// Supervisor forks plugin processes into jobs' working directories and
// checks on them across dispatcher ticks.
type Supervisor struct {
	wd *workdir.Manager
}

// New returns a Supervisor rooted at wd.
func New(wd *workdir.Manager) *Supervisor {
	return &Supervisor{wd: wd}
}

// Spawn starts execPath with jobID's working directory as its current
// directory, argv = {execPath}, and an empty environment, and records the
// child's pid in meta/pid. It does not wait for the child to exit; Poll
// and Harvest observe completion across later ticks.
func (s *Supervisor) Spawn(jobID int32, execPath string) (int, error) {
	if _, err := os.Stat(execPath); err != nil {
		return 0, fmt.Errorf("supervisor: plugin executable %s: %w", execPath, err)
	}

	cmd := &exec.Cmd{
		Path: execPath,
		Args: []string{execPath},
		Dir:  s.wd.Dir(jobID),
		Env:  []string{},
	}

	devnull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return 0, fmt.Errorf("supervisor: open devnull: %w", err)
	}
	defer devnull.Close()
	cmd.Stdin = devnull
	cmd.Stdout = devnull
	cmd.Stderr = devnull

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("supervisor: start %s: %w", execPath, err)
	}

	pid := cmd.Process.Pid
	if err := s.wd.WriteKVInt(jobID, "meta/pid", pid); err != nil {
		return 0, fmt.Errorf("supervisor: record pid: %w", err)
	}
	// Release: the broker never calls cmd.Wait, so the Process handle must
	// not be kept around expecting Go's runtime to reap it for us — reaping
	// happens out-of-band via ReapAll.
	_ = cmd.Process.Release()
	return pid, nil
}

// Poll reports whether jobID's recorded child pid is still alive, probed
// with signal 0 rather than any in-memory handle so it is correct even
// after a broker restart.
func (s *Supervisor) Poll(jobID int32) (bool, error) {
	pid, err := s.wd.ReadKVInt(jobID, "meta/pid")
	if err != nil {
		if err == workdir.ErrNotFound {
			return false, fmt.Errorf("supervisor: Poll(%d): no pid recorded", jobID)
		}
		return false, err
	}
	err = syscall.Kill(pid, 0)
	if err == nil {
		return true, nil
	}
	if err == syscall.ESRCH {
		return false, nil
	}
	return false, fmt.Errorf("supervisor: Poll(%d): kill probe: %w", jobID, err)
}

// Result is what a finished plugin process left behind in its working
// directory: its exit status and the arg2 string it wants handed back to
// the job row (meta/status and meta/arg.out, per spec.md §5.5).
type Result struct {
	Status  int
	ArgOut  string
	Missing bool // meta/status was never written: a dead child, not a plugin failure
}

// Harvest reads the exit status and output argument a finished plugin
// left in its working directory. Call only after Poll reports the process
// is no longer alive.
func (s *Supervisor) Harvest(jobID int32) (Result, error) {
	status, err := s.wd.ReadKVInt(jobID, "meta/status")
	if err != nil {
		if err == workdir.ErrNotFound {
			// A plugin killed (e.g. SIGKILL) before it could write meta/status
			// leaves nothing to harvest; spec.md §8 scenario 5 distinguishes
			// this dead-child case from an ordinary nonzero plugin exit.
			return Result{Status: -1, Missing: true}, nil
		}
		return Result{}, err
	}
	argOut, err := s.wd.ReadKVString(jobID, "meta/arg.out")
	if err != nil && err != workdir.ErrNotFound {
		return Result{}, err
	}
	return Result{Status: status, ArgOut: argOut}, nil
}

// ReapAll drains any exited-but-unreaped children left by prior Spawn
// calls whose Process handle was released rather than waited on. It must
// be called periodically by the dispatcher (once per tick is sufficient)
// to avoid accumulating zombie processes; WNOHANG makes the call
// non-blocking when no child has exited.
func ReapAll() {
	for {
		var status syscall.WaitStatus
		pid, err := syscall.Wait4(-1, &status, syscall.WNOHANG, nil)
		if pid <= 0 || err != nil {
			return
		}
	}
}
