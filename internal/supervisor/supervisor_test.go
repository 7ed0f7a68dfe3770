package supervisor

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xcore-broker/xcore/internal/workdir"
)

func writeFakePlugin(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fakeplugin")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o700); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSpawnRecordsPidAndPollDetectsExit(t *testing.T) {
	runRoot := t.TempDir()
	wd := workdir.New(runRoot)
	if err := wd.Prepare(1); err != nil {
		t.Fatal(err)
	}
	sup := New(wd)

	exec := writeFakePlugin(t, "echo -n 0 > meta/status\necho -n ok > meta/arg.out\n")
	pid, err := sup.Spawn(1, exec)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if pid <= 0 {
		t.Fatalf("pid = %d, want positive", pid)
	}

	gotPid, err := wd.ReadKVInt(1, "meta/pid")
	if err != nil {
		t.Fatalf("ReadKVInt meta/pid: %v", err)
	}
	if gotPid != pid {
		t.Fatalf("recorded pid %d, want %d", gotPid, pid)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		ReapAll()
		running, err := sup.Poll(1)
		if err != nil {
			t.Fatalf("Poll: %v", err)
		}
		if !running {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("fake plugin did not exit in time")
		}
		time.Sleep(10 * time.Millisecond)
	}

	res, err := sup.Harvest(1)
	if err != nil {
		t.Fatalf("Harvest: %v", err)
	}
	if res.Status != 0 || res.ArgOut != "ok" {
		t.Fatalf("Harvest = %+v, want status 0 argout ok", res)
	}
}

func TestHarvestMissingStatusReportsFailure(t *testing.T) {
	runRoot := t.TempDir()
	wd := workdir.New(runRoot)
	if err := wd.Prepare(2); err != nil {
		t.Fatal(err)
	}
	sup := New(wd)

	res, err := sup.Harvest(2)
	if err != nil {
		t.Fatalf("Harvest: %v", err)
	}
	if res.Status != -1 || !res.Missing {
		t.Fatalf("Harvest = %+v, want status -1 missing true", res)
	}
}
