package kvm_test

import (
	"testing"

	"github.com/julienflot/mini-kvm/kvm"
)

func TestCheckAPIVersion(t *testing.T) {
	t.Parallel()

	if err := kvm.CheckAPIVersion(12); err != nil {
		t.Fatalf("CheckAPIVersion(12) = %v, want nil", err)
	}

	if err := kvm.CheckAPIVersion(11); err == nil {
		t.Fatal("CheckAPIVersion(11) succeeded, want error")
	}
}

func TestRunDataIODecode(t *testing.T) {
	t.Parallel()

	r := &kvm.RunData{}
	// direction=1 (out), size=1, port=0x3f8, offset into Data[1]
	r.Data[0] = uint64(kvm.ExitIOOut) | (1 << 8) | (0x3f8 << 16)
	r.Data[1] = 8

	direction, size, port, _, offset := r.IO()
	if direction != kvm.ExitIOOut {
		t.Errorf("direction = %d, want %d", direction, kvm.ExitIOOut)
	}

	if size != 1 {
		t.Errorf("size = %d, want 1", size)
	}

	if port != 0x3f8 {
		t.Errorf("port = %#x, want 0x3f8", port)
	}

	if offset != 8 {
		t.Errorf("offset = %d, want 8", offset)
	}
}
