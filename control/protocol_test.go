package control_test

import (
	"bytes"
	"testing"

	"github.com/julienflot/mini-kvm/control"
	"github.com/julienflot/mini-kvm/internal/errkind"
)

func TestCommandMarshalRoundTrip(t *testing.T) {
	t.Parallel()

	cmd := &control.Command{
		Tag:          control.TagDumpMem,
		VCPUMask:     0b1011,
		MemStart:     0,
		MemEnd:       -1,
		WordSize:     2,
		BytesPerLine: 16,
		CallerPID:    4242,
	}

	encoded, err := cmd.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	got, err := control.UnmarshalCommand(bytes.NewReader(encoded))
	if err != nil {
		t.Fatalf("UnmarshalCommand: %v", err)
	}

	if *got != *cmd {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, cmd)
	}
}

func TestReplyMarshalRoundTrip(t *testing.T) {
	t.Parallel()

	reply := &control.Reply{
		Tag:      control.TagShowRegs,
		Err:      errkind.Success,
		VCPUMask: 0b1,
	}
	reply.Regs[0].RIP = 0x1000
	reply.Sregs[0].CR0 = 1

	encoded, err := reply.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	got, err := control.UnmarshalReply(bytes.NewReader(encoded))
	if err != nil {
		t.Fatalf("UnmarshalReply: %v", err)
	}

	if got.Regs[0].RIP != 0x1000 {
		t.Errorf("Regs[0].RIP = %#x, want 0x1000", got.Regs[0].RIP)
	}

	if got.Sregs[0].CR0 != 1 {
		t.Errorf("Sregs[0].CR0 = %d, want 1", got.Sregs[0].CR0)
	}

	if got.Err != errkind.Success {
		t.Errorf("Err = %v, want Success", got.Err)
	}
}

func TestTagString(t *testing.T) {
	t.Parallel()

	if got := control.TagPause.String(); got != "pause" {
		t.Errorf("TagPause.String() = %q, want %q", got, "pause")
	}
}
