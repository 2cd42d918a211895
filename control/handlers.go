package control

import (
	"fmt"
	"os"

	"github.com/julienflot/mini-kvm/internal/errkind"
	"github.com/julienflot/mini-kvm/kvm"
	"github.com/julienflot/mini-kvm/vm"
)

// Dispatch handles one Command against m, implementing spec §4.J's
// table. It acquires the VM mutex for the duration of the call, matching
// the original's per-handler locking.
func Dispatch(m *vm.VM, cmd *Command) *Reply {
	m.Lock()
	defer m.Unlock()

	reply := &Reply{
		Tag:      cmd.Tag,
		Err:      errkind.Success,
		VCPUMask: cmd.VCPUMask,
		State:    m.State(),
	}

	switch cmd.Tag {
	case TagNone:
		// no-op, success

	case TagShowState:
		// state already populated above

	case TagShowRegs:
		handleShowRegs(m, cmd, reply)

	case TagDumpMem:
		handleDumpMem(m, cmd, reply)

	case TagPause:
		m.Pause()
		reply.State = m.State()

	case TagResume:
		m.Resume()
		reply.State = m.State()

	case TagShutdown:
		m.ShutdownVM()
		reply.State = m.State()

	default:
		reply.Err = errkind.UnrecognizedCommand
	}

	return reply
}

// handleShowRegs requires the VM to be paused (spec §4.J): reading vCPU
// registers while a vCPU thread may re-enter KVM_RUN at any moment would
// observe torn state.
func handleShowRegs(m *vm.VM, cmd *Command, reply *Reply) {
	if m.State() != vm.Paused {
		reply.Err = errkind.StatusCmdVMNotPaused

		return
	}

	for i := 0; i < m.VCPUCount() && i < MaxVCPUs; i++ {
		if cmd.VCPUMask&(1<<uint(i)) == 0 {
			continue
		}

		vcpu := m.VCPU(i)

		regs, err := kvm.GetRegs(vcpu.Fd())
		if err != nil {
			reply.Err = errkind.FailedIOCTL

			return
		}

		sregs, err := kvm.GetSregs(vcpu.Fd())
		if err != nil {
			reply.Err = errkind.FailedIOCTL

			return
		}

		reply.Regs[i] = regs
		reply.Sregs[i] = sregs
	}
}

// handleDumpMem requires the VM to be paused, then writes a formatted
// hex dump to the caller's own standard output via /proc/<pid>/fd/1
// (spec §4.J, §9: "the /proc/<pid>/fd/1 trick").
func handleDumpMem(m *vm.VM, cmd *Command, reply *Reply) {
	if m.State() != vm.Paused {
		reply.Err = errkind.StatusCmdVMNotPaused

		return
	}

	out, err := os.OpenFile(fmt.Sprintf("/proc/%d/fd/1", cmd.CallerPID), os.O_RDWR, 0)
	if err != nil {
		reply.Err = errkind.InternalError

		return
	}
	defer out.Close()

	if err := m.DumpMemory(out, cmd.MemStart, cmd.MemEnd, int(cmd.WordSize), int(cmd.BytesPerLine)); err != nil {
		reply.Err = errkind.InternalError
	}
}
