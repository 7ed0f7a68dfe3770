package dispatcher

import (
	"context"
	"testing"
	"time"
)

func TestNewDefaultsIdleSleep(t *testing.T) {
	d := New(nil, nil, nil, nil, nil, nil, 0)
	if d.IdleSleep != time.Second {
		t.Fatalf("IdleSleep = %v, want 1s default", d.IdleSleep)
	}

	d2 := New(nil, nil, nil, nil, nil, nil, 5*time.Second)
	if d2.IdleSleep != 5*time.Second {
		t.Fatalf("IdleSleep = %v, want explicit 5s", d2.IdleSleep)
	}
}

func TestSleepOrDoneReturnsFalseOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if sleepOrDone(ctx, time.Second) {
		t.Fatal("expected sleepOrDone to return false for an already-cancelled context")
	}
}

func TestSleepOrDoneReturnsTrueAfterElapsed(t *testing.T) {
	if !sleepOrDone(context.Background(), time.Millisecond) {
		t.Fatal("expected sleepOrDone to return true once the duration elapses")
	}
}
