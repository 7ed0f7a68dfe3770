package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/xcore-broker/xcore/internal/joblog"
	"github.com/xcore-broker/xcore/internal/state"
	"github.com/xcore-broker/xcore/internal/xerr"
)

// argColumns maps a 0-based arg index to its column name, in the fixed
// arg0..arg7 layout spec.md §3.1 defines.
var argColumns = [8]string{"arg0", "arg1", "arg2", "arg3", "arg4", "arg5", "arg6", "arg7"}

// Store is the job tree's persistence boundary. Every mutating operation
// runs inside Transaction so the dispatcher's per-tick work is all-or-
// nothing, matching the original broker's one-tick-one-transaction
// design.
type Store struct {
	db *gorm.DB
}

// New wraps an already-open, already-migrated *gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// JobExists reports whether jobID currently has a row, satisfying
// workdir.LiveJobs for the garbage-collection sweep.
func (s *Store) JobExists(ctx context.Context, jobID int32) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Job{}).Where("id = ?", jobID).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("store: JobExists: %w", err)
	}
	return count > 0, nil
}

// Tx is the transactional handle every processor and the dispatcher tick
// loop operates against. A short lock-wait timeout is set on every
// transaction so a stuck lock surfaces as an error within one tick rather
// than stalling the dispatcher indefinitely.
type Tx struct {
	db *gorm.DB
}

// Transaction runs fn inside a MySQL transaction with a 1-second
// innodb_lock_wait_timeout, committing on success and rolling back on any
// returned error (including xerr sentinel values such as xerr.ELOG).
func (s *Store) Transaction(ctx context.Context, fn func(tx *Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(gormTx *gorm.DB) error {
		if err := gormTx.Exec("SET innodb_lock_wait_timeout = 1").Error; err != nil {
			return fmt.Errorf("store: set lock wait timeout: %w", err)
		}
		return fn(&Tx{db: gormTx})
	})
}

// LockTree takes a row lock on every job sharing rootID, the original's
// whole-tree lock used before any structural mutation so a concurrent
// tick on a sibling job can't observe a half-updated tree.
func (t *Tx) LockTree(rootID int32) error {
	var jobs []Job
	err := t.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("root = ?", rootID).Find(&jobs).Error
	if err != nil {
		return fmt.Errorf("store: LockTree: %w", err)
	}
	return nil
}

// Fetch loads one job row by id.
func (t *Tx) Fetch(id int32) (*Job, error) {
	var j Job
	err := t.db.Where("id = ?", id).First(&j).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, xerr.EBADJ
	}
	if err != nil {
		return nil, fmt.Errorf("store: Fetch(%d): %w", id, err)
	}
	return &j, nil
}

// Insert creates a new job row. Per spec.md §4.1, a job with no explicit
// parent/grp/root is self-rooted: those three columns default to the
// newly assigned id.
func (t *Tx) Insert(j *Job) (int32, error) {
	if err := t.db.Create(j).Error; err != nil {
		return 0, fmt.Errorf("store: Insert: %w", err)
	}
	if j.Parent == 0 {
		j.Parent = j.ID
	}
	if j.Grp == 0 {
		j.Grp = j.ID
	}
	if j.Root == 0 {
		j.Root = j.ID
	}
	err := t.db.Model(&Job{}).Where("id = ?", j.ID).
		Updates(map[string]interface{}{"parent": j.Parent, "grp": j.Grp, "root": j.Root}).Error
	if err != nil {
		return 0, fmt.Errorf("store: Insert: self-root: %w", err)
	}
	return j.ID, nil
}

// UpdateStructural rewrites the tree-shape and scheduling columns of one
// job (sub, next, parent, grp, root, state, done, result, policy, feid).
// Zero-value fields the caller does not intend to touch should be read
// back from Fetch first and copied forward.
func (t *Tx) UpdateStructural(j *Job) error {
	err := t.db.Model(&Job{}).Where("id = ?", j.ID).Updates(map[string]interface{}{
		"sub": j.Sub, "next": j.Next, "parent": j.Parent, "grp": j.Grp, "root": j.Root,
		"state": j.State, "done": j.Done, "result": j.Result,
		"policy": j.Policy, "feid": j.FEID,
	}).Error
	if err != nil {
		return fmt.Errorf("store: UpdateStructural(%d): %w", j.ID, err)
	}
	return nil
}

// UpdateState applies state.Update(current, next) and persists the
// result, preserving any extra-state bits in the upper three bytes.
func (t *Tx) UpdateState(id int32, next state.Sched) error {
	j, err := t.Fetch(id)
	if err != nil {
		return err
	}
	j.State = state.Update(j.State, next)
	return t.db.Model(&Job{}).Where("id = ?", id).Update("state", j.State).Error
}

// SetDone marks id as finished and records its result code.
func (t *Tx) SetDone(id int32, result int32) error {
	err := t.db.Model(&Job{}).Where("id = ?", id).
		Updates(map[string]interface{}{"done": 1, "result": result}).Error
	if err != nil {
		return fmt.Errorf("store: SetDone(%d): %w", id, err)
	}
	return nil
}

// SetArg writes argIndex (0..7) for job id. arg2 passes through
// EncryptedString so it is transparently encrypted when enabled.
func (t *Tx) SetArg(id int32, argIndex int, value string) error {
	if argIndex < 0 || argIndex > 7 {
		return fmt.Errorf("store: SetArg: index %d out of range", argIndex)
	}
	col := argColumns[argIndex]
	var stored interface{} = value
	if argIndex == 2 {
		v, err := EncryptedString(value).Value()
		if err != nil {
			return fmt.Errorf("store: SetArg: encrypt arg2: %w", err)
		}
		stored = v
	}
	err := t.db.Model(&Job{}).Where("id = ?", id).Update(col, stored).Error
	if err != nil {
		return fmt.Errorf("store: SetArg(%d, %d): %w", id, argIndex, err)
	}
	return nil
}

// GetArg reads argIndex (0..7) for job id.
func (t *Tx) GetArg(id int32, argIndex int) (string, error) {
	if argIndex < 0 || argIndex > 7 {
		return "", fmt.Errorf("store: GetArg: index %d out of range", argIndex)
	}
	j, err := t.Fetch(id)
	if err != nil {
		return "", err
	}
	switch argIndex {
	case 0:
		return j.Arg0, nil
	case 1:
		return j.Arg1, nil
	case 2:
		return string(j.Arg2), nil
	case 3:
		return j.Arg3, nil
	case 4:
		return j.Arg4, nil
	case 5:
		return j.Arg5, nil
	case 6:
		return j.Arg6, nil
	default:
		return j.Arg7, nil
	}
}

// CountDoneChildren counts rows whose parent is parentID and whose done
// column is non-zero. Under the one-child-per-job invariant (spec.md
// §4.5) a caller comparing this against zero is asking "has the job's one
// expected child finished yet."
func (t *Tx) CountDoneChildren(parentID int32) (int64, error) {
	var count int64
	err := t.db.Model(&Job{}).Where("parent = ? AND parent != id AND done != 0", parentID).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("store: CountDoneChildren(%d): %w", parentID, err)
	}
	return count, nil
}

// AllocateID claims one runnable job: READY-bit set, not done, and locks
// its row for the remainder of the transaction. Returns xerr.ENEXT when no
// job is currently runnable, the dispatcher's cue to sleep.
func (t *Tx) AllocateID() (int32, error) {
	var j Job
	err := t.db.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("done = 0 AND (state & ?) != 0", int32(state.Ready)).
		Order("id ASC").
		Limit(1).
		Find(&j).Error
	if err != nil {
		return 0, fmt.Errorf("store: AllocateID: %w", err)
	}
	if j.ID == 0 {
		return 0, xerr.ENEXT
	}
	return j.ID, nil
}

// AppendLog appends one structured record to job id's log column,
// respecting joblog.MaxSize. A full log is reported as xerr.ELOG, which
// the caller should propagate to roll back the enclosing transaction
// rather than silently drop the record.
func (t *Tx) AppendLog(id int32, rec joblog.Record) error {
	j, err := t.Fetch(id)
	if err != nil {
		return err
	}
	next, err := joblog.Append(j.Log, rec)
	if err != nil {
		return err
	}
	err = t.db.Model(&Job{}).Where("id = ?", id).Update("log", next).Error
	if err != nil {
		return fmt.Errorf("store: AppendLog(%d): %w", id, err)
	}
	return nil
}

// Children returns every job whose parent is parentID, ordered by id,
// excluding the self-parented root row.
func (t *Tx) Children(parentID int32) ([]Job, error) {
	var jobs []Job
	err := t.db.Where("parent = ? AND parent != id", parentID).Order("id ASC").Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("store: Children(%d): %w", parentID, err)
	}
	return jobs, nil
}

// PredecessorByNext finds the job whose next column points at jobID — the
// stage-chain link put and import walk backward across to find the
// export/get job whose data/ directory they inherit. Returns xerr.EBADJ if
// no job points at jobID.
func (t *Tx) PredecessorByNext(jobID int32) (int32, error) {
	var j Job
	err := t.db.Where("next = ?", jobID).First(&j).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, xerr.EBADJ
	}
	if err != nil {
		return 0, fmt.Errorf("store: PredecessorByNext(%d): %w", jobID, err)
	}
	return j.ID, nil
}
