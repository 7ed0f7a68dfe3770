package state

import "testing"

func TestUpdatePreservesExtraBits(t *testing.T) {
	full := int32(Created) | (0x77 << 8)
	got := Update(full, Ready)

	if Get(got) != Ready {
		t.Fatalf("Get(got) = %v, want Ready", Get(got))
	}
	if got&extraMask != full&extraMask {
		t.Fatalf("extra bits not preserved: got %#x, want %#x", got&extraMask, full&extraMask)
	}
}

func TestIsDone(t *testing.T) {
	cases := []struct {
		sched Sched
		want  bool
	}{
		{Created, false},
		{Ready, false},
		{Run, false},
		{Blocked, false},
		{Term, false},
		{Done, true},
	}
	for _, tc := range cases {
		if got := IsDone(int32(tc.sched)); got != tc.want {
			t.Errorf("IsDone(%v) = %v, want %v", tc.sched, got, tc.want)
		}
	}
}

func TestSchedStringKnownAndUnknown(t *testing.T) {
	if Created.String() != "created" {
		t.Fatalf("Created.String() = %q", Created.String())
	}
	if Sched(0).String() != "unknown" {
		t.Fatalf("Sched(0).String() = %q", Sched(0).String())
	}
}
