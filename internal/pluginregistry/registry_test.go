package pluginregistry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/xcore-broker/xcore/internal/xerr"
)

func writePlugin(t *testing.T, root, dir, body string) {
	t.Helper()
	full := filepath.Join(root, dir)
	if err := os.MkdirAll(full, 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(full, "info"), []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestLoadSkipsInvalidEntries(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "rbd", "name = rbd\nid = 1\nexec = snpy_rbd\n")
	writePlugin(t, root, "broken", "name = \nid = 2\nexec = x\n")
	if err := os.MkdirAll(filepath.Join(root, "no-info"), 0o700); err != nil {
		t.Fatal(err)
	}

	reg, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	d, ok := reg.ByName("rbd")
	if !ok {
		t.Fatal("expected rbd plugin to be registered")
	}
	if d.ID != 1 || d.Exec != "snpy_rbd" {
		t.Fatalf("unexpected descriptor: %+v", d)
	}
	if _, ok := reg.ByName("broken"); ok {
		t.Fatal("broken plugin should not have been registered")
	}
}

func TestLoadParsesVersionWithDefault(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "rbd", "name = rbd\nid = 1\nexec = snpy_rbd\nversion = 3\n")
	writePlugin(t, root, "s3", "name = s3\nid = 2\nexec = snpy_s3\n")

	reg, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	d, ok := reg.ByName("rbd")
	if !ok || d.Version != 3 {
		t.Fatalf("rbd descriptor = %+v, want version 3", d)
	}
	d2, ok := reg.ByName("s3")
	if !ok || d2.Version != 1 {
		t.Fatalf("s3 descriptor = %+v, want default version 1", d2)
	}
}

func TestByIDAndExecPath(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "snull", "name = snull\nid = 7\nexec = snpy_snull\n")

	reg, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	d, ok := reg.ByID(7)
	if !ok {
		t.Fatal("expected plugin id 7 to resolve")
	}
	want := filepath.Join(root, "snull", "snpy_snull")
	if got := reg.ExecPath(d); got != want {
		t.Fatalf("ExecPath = %q, want %q", got, want)
	}
}

func TestChooseIncompleteAndNoPlug(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "rbd", "name = rbd\nid = 1\nexec = snpy_rbd\n")
	reg, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if _, err := reg.Choose([]byte(`{}`), "sp_name"); err != xerr.EINCOMPARG {
		t.Fatalf("err = %v, want EINCOMPARG", err)
	}
	if _, err := reg.Choose([]byte(`{"sp_name":"ghost"}`), "sp_name"); err != xerr.ENOPLUG {
		t.Fatalf("err = %v, want ENOPLUG", err)
	}

	d, err := reg.Choose([]byte(`{"sp_name":"rbd"}`), "sp_name")
	if err != nil {
		t.Fatalf("Choose: %v", err)
	}
	if d.Name != "rbd" {
		t.Fatalf("d.Name = %q, want rbd", d.Name)
	}
}

func TestLoadRespectsMaxEntries(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < MaxEntries+5; i++ {
		writePlugin(t, root, filepathName(i), "name = p\nid = 0\nexec = x\n")
	}
	reg, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(reg.entries) != MaxEntries {
		t.Fatalf("len(entries) = %d, want %d", len(reg.entries), MaxEntries)
	}
}

func filepathName(i int) string {
	return "p" + string(rune('a'+i%26)) + string(rune('0'+i/26))
}
