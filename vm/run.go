package vm

import (
	"time"
	"unsafe"

	"golang.org/x/arch/x86/x86asm"
	"golang.org/x/sys/unix"

	"github.com/julienflot/mini-kvm/kvm"
)

// pausePollInterval is the sleep a vCPU thread takes between checks of
// the VM state while PAUSED (spec §4.F: "sleep 10 ms; continue").
const pausePollInterval = 10 * time.Millisecond

// Run spawns one goroutine per provisioned vCPU, each pinned to its own
// OS thread, and transitions the VM to RUNNING (mini_kvm_start_vm). It
// returns once every run loop goroutine has started; it does not wait
// for them to exit.
func (v *VM) Run() {
	watchVCPUSignals()

	started := make(chan struct{}, v.vcpus.Len())

	for i := 0; i < v.vcpus.Len(); i++ {
		vcpu := v.vcpus.At(i)

		v.wg.Add(1)

		go v.runLoop(vcpu, started)
	}

	for i := 0; i < v.vcpus.Len(); i++ {
		<-started
	}

	v.log.Info("starting running vm")
	v.state.store(Running)
}

// Wait blocks until every vCPU's run loop has exited (the VM reached
// SHUTDOWN and every thread observed it), mirroring
// mini_kvm_clean_kvm's pthread_join loop.
func (v *VM) Wait() {
	v.wg.Wait()
}

func (v *VM) runLoop(vcpu *VCPU, started chan<- struct{}) {
	defer v.wg.Done()

	unlock := lockRunLoopThread()
	defer unlock()

	vcpu.tid.Store(int32(unix.Gettid()))
	started <- struct{}{}

	for v.state.load() != Shutdown {
		if v.state.load() == Paused {
			time.Sleep(pausePollInterval)

			continue
		}

		vcpu.running.Store(true)
		err := kvm.Run(vcpu.fd)
		vcpu.running.Store(false)

		if err != nil {
			v.log.Errorf("vcpu %d: run failed: %v", vcpu.ID, err)
			v.state.shutdown()

			break
		}

		if v.dispatchExit(vcpu) {
			break
		}
	}
}

// dispatchExit handles one KVM_RUN exit per spec §4.F's table. It
// returns true when the run loop for this vCPU should stop.
func (v *VM) dispatchExit(vcpu *VCPU) bool {
	switch vcpu.run.ExitReason {
	case kvm.ExitHLT:
		v.log.Infof("vcpu %d: KVM_EXIT_HLT", vcpu.ID)
		v.state.shutdown()

		return true

	case kvm.ExitIO:
		v.handleIO(vcpu)

		return v.state.load() == Shutdown

	case kvm.ExitIntr:
		// Spurious wakeup, or the PAUSE/RESUME signal interrupting the
		// blocked ioctl: loop back and re-check state.
		return false

	case kvm.ExitShutdown, kvm.ExitInternalError, kvm.ExitFailEntry, kvm.ExitUnknown:
		if vcpu.run.ExitReason == kvm.ExitInternalError {
			v.reportInternalError(vcpu)
		} else {
			v.log.Errorf("vcpu %d: exit reason %d", vcpu.ID, vcpu.run.ExitReason)
		}

		v.state.shutdown()

		return true

	default:
		v.log.Tracef("vcpu %d: unhandled exit reason %d", vcpu.ID, vcpu.run.ExitReason)

		return false
	}
}

// handleIO implements the single serial port this target emulates: an
// `out dx,al` to 0x3f8 writes one byte to the VM's own standard output
// (spec §8, scenario S6). Any other port is an unhandled exit.
func (v *VM) handleIO(vcpu *VCPU) {
	direction, size, port, count, offset := vcpu.run.IO()

	if port != SerialPort || direction != kvm.ExitIOOut {
		v.log.Errorf("vcpu %d: unhandled io port %#x (direction %d)", vcpu.ID, port, direction)
		v.state.shutdown()

		return
	}

	base := unsafe.Pointer(vcpu.run)
	data := unsafe.Slice((*byte)(unsafe.Add(base, uintptr(offset))), size)

	for i := uint64(0); i < count; i++ {
		_, _ = v.Serial.Write(data[:size])
	}
}

// reportInternalError mirrors original mini_kvm's debug.c: on
// KVM_EXIT_INTERNAL_ERROR, read back general registers and print them
// before the transition to SHUTDOWN, supplemented with a best-effort
// disassembly of the instruction at the faulting RIP.
func (v *VM) reportInternalError(vcpu *VCPU) {
	v.log.Errorf("vcpu %d: KVM_EXIT_INTERNAL_ERROR", vcpu.ID)

	regs, err := kvm.GetRegs(vcpu.fd)
	if err != nil {
		v.log.Errorf("vcpu %d: failed to read back regs: %v", vcpu.ID, err)

		return
	}

	v.log.Errorf("vcpu %d: rip=%#016x rsp=%#016x rflags=%#016x", vcpu.ID, regs.RIP, regs.RSP, regs.RFLAGS)

	if regs.RIP < v.MemSize {
		code := v.Mem[regs.RIP:]
		if len(code) > 15 {
			code = code[:15]
		}

		if inst, err := x86asm.Decode(code, 64); err == nil {
			v.log.Errorf("vcpu %d: faulting instruction: %s", vcpu.ID, inst.String())
		}
	}
}
