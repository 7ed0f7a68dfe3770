// Package joblog implements the per-job structured audit log: a bounded
// JSON array of transition records stored in the job row's log column.
//
// Each record serializes as a 7-element JSON array
// [who, proc, state_before, state_after, unix_ts, status, msg_object],
// matching the layout the original broker's log_add_rec_va produced (and
// that bk_single_sched's getNextSchedTime indexes into positionally —
// "[0][4]" means "the ts field of the first record").
package joblog

import (
	"encoding/json"
	"fmt"

	"github.com/xcore-broker/xcore/internal/jsonptr"
	"github.com/xcore-broker/xcore/internal/xerr"
)

// MaxSize is the bound on a job's serialized log blob, matching the
// original's SNPY_LOG_SIZE. Append fails closed once the blob would exceed
// this: the caller's transaction must roll back rather than write a
// truncated record.
const MaxSize = 4096

// Record is one state-transition event, ready to append to a job's log.
type Record struct {
	Who         int32
	Proc        string
	StateBefore int32
	StateAfter  int32
	TS          int64
	Status      int32
	// Extra becomes additional fields on the record's msg_object, e.g.
	// {"ext_err_msg": "fork error, code: 12"}.
	Extra map[string]interface{}
}

// Append parses existing (which may be nil/empty, meaning "no records
// yet"), appends rec, and returns the new serialized blob. On overflow it
// returns existing unchanged together with xerr.ELOG — callers must treat
// this as a hard failure of the enclosing transaction, never write the
// result back, and never retry with a truncated record.
func Append(existing []byte, rec Record) ([]byte, error) {
	var records []json.RawMessage
	if len(existing) > 0 {
		if err := json.Unmarshal(existing, &records); err != nil {
			return existing, fmt.Errorf("joblog: existing blob is not a JSON array: %w", err)
		}
	}

	msg := map[string]interface{}{}
	for k, v := range rec.Extra {
		msg[k] = v
	}
	if rec.Status != 0 {
		msg["errmsg"] = errMessage(rec.Status)
	}

	entry := []interface{}{
		rec.Who, rec.Proc, rec.StateBefore, rec.StateAfter, rec.TS, rec.Status, msg,
	}
	entryRaw, err := json.Marshal(entry)
	if err != nil {
		return existing, fmt.Errorf("joblog: marshal record: %w", err)
	}

	records = append(records, json.RawMessage(entryRaw))
	out, err := json.Marshal(records)
	if err != nil {
		return existing, fmt.Errorf("joblog: marshal log: %w", err)
	}

	if len(out) > MaxSize {
		return existing, xerr.ELOG
	}
	return out, nil
}

// ValueAt looks up path (see package jsonptr) within the log blob, e.g.
// "[0][4]" for the ts field of the first record. The scheduler reads that
// same path through jsonptr.GetFloat directly rather than through ValueAt.
func ValueAt(log []byte, path string) (interface{}, error) {
	return jsonptr.Get(log, path)
}

// errMessage renders a result/status code for the automatic "errmsg" field:
// broker-domain codes get their taxonomy string, anything else is reported
// as a bare errno, exactly as spec.md §4.8 requires the two spaces stay
// disambiguated.
func errMessage(status int32) string {
	if xerr.IsBrokerCode(status) {
		return xerr.Code(status).String()
	}
	return fmt.Sprintf("errno %d", status)
}
