package joblog

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/xcore-broker/xcore/internal/xerr"
)

func TestAppendAndValueAtRoundTrip(t *testing.T) {
	blob, err := Append(nil, Record{
		Who: 1, Proc: "snap", StateBefore: 1, StateAfter: 4, TS: 1700000000, Status: 0,
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	blob, err = Append(blob, Record{
		Who: 1, Proc: "snap", StateBefore: 4, StateAfter: 32, TS: 1700000050, Status: 0,
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	var records []json.RawMessage
	if err := json.Unmarshal(blob, &records); err != nil {
		t.Fatalf("blob is not a JSON array: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}

	ts, err := ValueAt(blob, "[0][4]")
	if err != nil {
		t.Fatalf("ValueAt: %v", err)
	}
	if ts.(float64) != 1700000000 {
		t.Fatalf("ts = %v, want 1700000000", ts)
	}
}

func TestAppendSetsErrmsgOnNonZeroStatus(t *testing.T) {
	blob, err := Append(nil, Record{
		Who: 1, Proc: "snap", Status: int32(xerr.ESUB),
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if !strings.Contains(string(blob), "sub job error") {
		t.Fatalf("blob missing errmsg: %s", blob)
	}
}

func TestAppendPreservesExtraFields(t *testing.T) {
	blob, err := Append(nil, Record{
		Who: 1, Proc: "put", Status: 5,
		Extra: map[string]interface{}{"ext_err_msg": "plugin failed"},
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if !strings.Contains(string(blob), "plugin failed") {
		t.Fatalf("blob missing ext_err_msg: %s", blob)
	}
	if !strings.Contains(string(blob), "errno 5") {
		t.Fatalf("blob missing positive-errno errmsg: %s", blob)
	}
}

func TestAppendFailsClosedOnOverflow(t *testing.T) {
	blob := []byte("[]")
	bigMsg := strings.Repeat("x", MaxSize)
	_, err := Append(blob, Record{
		Who: 1, Proc: "put",
		Extra: map[string]interface{}{"ext_err_msg": bigMsg},
	})
	if err != xerr.ELOG {
		t.Fatalf("err = %v, want xerr.ELOG", err)
	}
}

func TestAppendRejectsNonArrayExisting(t *testing.T) {
	_, err := Append([]byte(`{"not":"an array"}`), Record{Proc: "put"})
	if err == nil {
		t.Fatal("expected error for non-array existing blob")
	}
}
