package vm_test

import (
	"bytes"
	"io"
	"os"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/julienflot/mini-kvm/vm"
)

func discardLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)

	return l
}

func TestNewRejectsZeroMemSize(t *testing.T) {
	t.Parallel()

	if _, err := vm.New("t", 0, discardLogger()); err == nil {
		t.Fatal("New(memSize=0) succeeded, want error")
	}
}

func TestNewAndRunHalt(t *testing.T) { // nolint:paralleltest
	if os.Getuid() != 0 {
		t.Skip("requires root and /dev/kvm access")
	}

	m, err := vm.New("halt-test", 64*1024, discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer m.Close()

	// f4 is the HLT instruction.
	if err := m.LoadKernel([]byte{0xf4}); err != nil {
		t.Fatalf("LoadKernel: %v", err)
	}

	if _, err := m.AddVCPU(); err != nil {
		t.Fatalf("AddVCPU: %v", err)
	}

	if err := m.SetupVCPU(0, vm.KernelLoadAddr); err != nil {
		t.Fatalf("SetupVCPU: %v", err)
	}

	m.Run()
	m.Wait()

	if got := m.State(); got != vm.Shutdown {
		t.Errorf("State() = %v, want Shutdown", got)
	}
}

func TestDumpMemoryFormat(t *testing.T) {
	t.Parallel()

	l := discardLogger()

	m, err := vm.New("dump-test", 64, l)
	if err != nil {
		t.Skipf("vm.New unavailable in this environment: %v", err)
	}
	defer m.Close()

	for i := range m.Mem {
		m.Mem[i] = byte(i % 256)
	}

	var buf bytes.Buffer
	if err := m.DumpMemory(&buf, 0, 32, 1, 16); err != nil {
		t.Fatalf("DumpMemory: %v", err)
	}

	lines := bytes.Split(bytes.TrimRight(buf.Bytes(), "\n"), []byte("\n"))
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3 (header + 2 data lines)", len(lines))
	}

	if string(lines[0]) != "mem dump: @0 -> @32" {
		t.Errorf("header = %q", lines[0])
	}
}
