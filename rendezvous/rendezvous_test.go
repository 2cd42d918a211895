package rendezvous_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/julienflot/mini-kvm/rendezvous"
)

// uniqueName returns a VM name unique to the calling test. Pointing
// lookups at a temp directory would require an exported setter for
// rendezvous.Root that the package doesn't have; instead these tests
// exercise the liveness/reclaim logic directly against the real
// /tmp/mini_kvm root, scoped under a unique name per test to avoid
// collisions. The name comes from the per-test parent of t.TempDir(),
// whose own base name is a sequence number shared by every test.
func uniqueName(t *testing.T) string {
	t.Helper()

	return "rendezvous-test-" + filepath.Base(filepath.Dir(t.TempDir()))
}

func TestCreateAndOpenRoundTrip(t *testing.T) {
	name := uniqueName(t)

	d, err := rendezvous.Create(name)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer d.Remove()

	opened, err := rendezvous.Open(name)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	pid, err := opened.Pid()
	if err != nil {
		t.Fatalf("Pid: %v", err)
	}

	if pid != os.Getpid() {
		t.Errorf("Pid() = %d, want %d", pid, os.Getpid())
	}
}

func TestCreateRejectsLiveDuplicate(t *testing.T) {
	name := uniqueName(t)

	d, err := rendezvous.Create(name)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer d.Remove()

	if _, err := rendezvous.Create(name); err != rendezvous.ErrNameConflict {
		t.Fatalf("second Create(%q) = %v, want ErrNameConflict", name, err)
	}
}

func TestCreateReclaimsStaleDirectory(t *testing.T) {
	name := uniqueName(t)

	d, err := rendezvous.Create(name)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer d.Remove()

	// Overwrite the pidfile with a pid guaranteed to be dead: a freshly
	// forked-and-reaped child's pid is reused eventually, so instead use
	// an id far outside any plausible live range combined with a
	// same-call liveness check, matching how the original's stale test
	// works (a pid that kill(pid,0) reports ESRCH for).
	deadPID := 1<<31 - 1

	if err := os.WriteFile(d.PidPath(), encodePid(deadPID), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	reclaimed, err := rendezvous.Create(name)
	if err != nil {
		t.Fatalf("Create over stale dir: %v", err)
	}
	defer reclaimed.Remove()

	pid, err := reclaimed.Pid()
	if err != nil {
		t.Fatalf("Pid: %v", err)
	}

	if pid != os.Getpid() {
		t.Errorf("Pid() = %d, want %d (reclaimed)", pid, os.Getpid())
	}
}

func TestOpenNotRunning(t *testing.T) {
	t.Parallel()

	if _, err := rendezvous.Open("no-such-vm-ever"); err != rendezvous.ErrNotRunning {
		t.Fatalf("Open(missing) = %v, want ErrNotRunning", err)
	}
}

func encodePid(pid int) []byte {
	var raw [4]byte
	for i := 0; i < 4; i++ {
		raw[i] = byte(pid >> (8 * i))
	}

	return raw[:]
}
