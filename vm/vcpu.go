package vm

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/julienflot/mini-kvm/kvm"
)

// VCPU is attached to a VM (spec §3). Its run-area is exclusively owned
// by the goroutine running its run loop; no command handler touches it
// directly.
type VCPU struct {
	ID  int
	fd  int
	tid atomic.Int32

	runRaw []byte
	run    *kvm.RunData

	running atomic.Bool
}

// Fd exposes the vCPU's raw device handle for register/sregs readback by
// command handlers (permitted only while the VM is paused, per spec
// §4.J).
func (c *VCPU) Fd() int { return c.fd }

// AddVCPU is mini_kvm_add_vcpu: allocate the next id, create the vCPU
// handle, map its shared run-area, and append it to the VM's sequence.
func (v *VM) AddVCPU() (*VCPU, error) {
	id := v.vcpus.Len()

	fd, err := kvm.CreateVCPU(v.vmFd, id)
	if err != nil {
		return nil, fmt.Errorf("vm: failed to create vcpu %d: %w", id, err)
	}

	runSize, err := kvm.GetVCPUMMapSize(v.kvmFd)
	if err != nil {
		return nil, fmt.Errorf("vm: failed to get vcpu %d mmap size: %w", id, err)
	}

	runRaw, err := unix.Mmap(fd, 0, runSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("vm: failed to map vcpu %d run area: %w", id, err)
	}

	vcpu := &VCPU{
		ID:     id,
		fd:     fd,
		runRaw: runRaw,
		run:    (*kvm.RunData)(unsafe.Pointer(&runRaw[0])),
	}

	v.vcpus.Append(vcpu)
	v.log.Infof("vcpu %d initialized", id)

	return vcpu, nil
}

// SetupVCPU is mini_kvm_setup_vcpu: general registers point rip at
// startAddr and rsp at the top of guest memory; segment registers are
// flattened; supported CPUID leaves are installed.
func (v *VM) SetupVCPU(id int, startAddr uint64) error {
	vcpu := v.vcpus.At(id)

	regs := kvm.Regs{
		RIP:    startAddr,
		RSP:    v.MemSize - 1,
		RBP:    v.MemSize - 1,
		RFLAGS: 0b01,
	}

	if err := kvm.SetRegs(vcpu.fd, regs); err != nil {
		return fmt.Errorf("vm: failed to set vcpu %d regs: %w", id, err)
	}

	v.log.Infof("vcpu %d regs set", id)

	sregs, err := kvm.GetSregs(vcpu.fd)
	if err != nil {
		return fmt.Errorf("vm: failed to get vcpu %d sregs: %w", id, err)
	}

	sregs.CS.Selector, sregs.CS.Base = 0, 0
	sregs.DS.Selector, sregs.DS.Base = 0, 0
	sregs.SS.Selector, sregs.SS.Base = 0, 0

	if err := kvm.SetSregs(vcpu.fd, sregs); err != nil {
		return fmt.Errorf("vm: failed to set vcpu %d sregs: %w", id, err)
	}

	v.log.Infof("vcpu %d sregs set", id)

	if err := v.installCPUID(vcpu); err != nil {
		return fmt.Errorf("vm: failed to install vcpu %d cpuid: %w", id, err)
	}

	return nil
}

// installCPUID fetches the supported extended-CPUID leaves (capped at
// 100 entries per struct kvm_cpuid2) and applies them to vcpu, disabling
// the performance-monitoring leaf and stamping the hypervisor signature
// leaf the way jamlee-t-gokvm's initCPUID does (decision #3 in
// DESIGN.md: no further leaf masking is performed).
func (v *VM) installCPUID(vcpu *VCPU) error {
	cpuid := kvm.CPUID{Nent: 100}

	if err := kvm.GetSupportedCPUID(v.kvmFd, &cpuid); err != nil {
		return err
	}

	for i := 0; i < int(cpuid.Nent); i++ {
		switch cpuid.Entries[i].Function {
		case kvm.CPUIDFuncPerMon:
			cpuid.Entries[i].Eax = 0
		case kvm.CPUIDSignature:
			cpuid.Entries[i].Eax = kvm.CPUIDFeatures
			cpuid.Entries[i].Ebx = 0x4b4d564b // "KVMK"
			cpuid.Entries[i].Ecx = 0x564b4d56 // "VMKV"
			cpuid.Entries[i].Edx = 0x4d       // "M"
		}
	}

	return kvm.SetCPUID2(vcpu.fd, &cpuid)
}
