package jsonptr

import "testing"

func TestGetObjectKey(t *testing.T) {
	raw := []byte(`{"rstr_to_job_id": 42, "sp_name": "rbd"}`)

	id, err := GetInt(raw, ".rstr_to_job_id")
	if err != nil {
		t.Fatalf("GetInt: %v", err)
	}
	if id != 42 {
		t.Fatalf("id = %d, want 42", id)
	}

	name, err := GetString(raw, ".sp_name")
	if err != nil {
		t.Fatalf("GetString: %v", err)
	}
	if name != "rbd" {
		t.Fatalf("name = %q, want rbd", name)
	}
}

func TestGetArrayIndex(t *testing.T) {
	raw := []byte(`[[1,"proc",1,2,1700000000,0,{}]]`)

	ts, err := GetFloat(raw, "[0][4]")
	if err != nil {
		t.Fatalf("GetFloat: %v", err)
	}
	if ts != 1700000000 {
		t.Fatalf("ts = %v, want 1700000000", ts)
	}
}

func TestGetMissingKey(t *testing.T) {
	raw := []byte(`{"a": 1}`)
	if _, err := Get(raw, ".b"); err == nil {
		t.Fatal("expected error for missing key")
	}
}

func TestGetOutOfRangeIndex(t *testing.T) {
	raw := []byte(`[1,2]`)
	if _, err := Get(raw, "[5]"); err == nil {
		t.Fatal("expected error for out-of-range index")
	}
}
