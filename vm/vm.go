// Package vm implements spec components D (VM provisioning), E (vCPU
// provisioning) and F (the vCPU run loop), grounded on jamlee-t-gokvm's
// machine/machine.go, narrowed to original mini_kvm's scope: one guest
// memory region, N vCPUs, a single serial output port, no virtio/pci/tap.
package vm

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"unsafe"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/julienflot/mini-kvm/internal/container"
	"github.com/julienflot/mini-kvm/internal/hostcpu"
	"github.com/julienflot/mini-kvm/kvm"
)

// tssAddr is the fixed guest-physical address original mini_kvm's
// core/core.c configures on Intel hosts (TSS_ADDR in kvm/kvm.c).
const tssAddr = 0xfffbd000

// KernelLoadAddr is the fixed guest-physical address the guest binary is
// loaded at and where the initial instruction pointer is set (spec §6).
const KernelLoadAddr = 0x1000

// SerialPort is the single emulated device this target supports: an
// output-only byte port original mini_kvm's run loop writes to its own
// stdout (spec §4.F, non-goal: "emulating devices beyond a single
// serial output port").
const SerialPort = 0x3f8

var (
	ErrNoDevice           = errors.New("vm: failed to open /dev/kvm")
	ErrWrongVersion       = errors.New("vm: unsupported kvm api version")
	ErrFailedVMCreation   = errors.New("vm: failed to create vm handle")
	ErrUnsupportedCaps    = errors.New("vm: required kvm capability unsupported")
	ErrZeroMemSize        = errors.New("vm: cannot create vm with memory of size 0")
	ErrFailedAllocation   = errors.New("vm: failed to allocate guest memory")
	ErrFailedMemoryRegion = errors.New("vm: failed to register guest memory region")
)

// VM is the top-level aggregate of spec §3.
type VM struct {
	Name    string
	kvmFd   int
	vmFd    int
	MemSize uint64
	Mem     []byte

	vcpus *container.Vec[*VCPU]

	mu    sync.Mutex
	state state
	wg    sync.WaitGroup

	Serial io.Writer
	log    *logrus.Logger
	vendor hostcpu.Vendor
}

// New provisions a VM per spec §4.D's numbered sequence: opens /dev/kvm,
// validates the API version, creates the VM handle, probes for every
// required capability (user memory regions always, extended CPUID
// always, the TSS address on Intel only), configures the TSS address on
// Intel hosts, rejects a zero memSize, and maps mem_size bytes of guest
// memory at guest-physical 0.
func New(name string, memSize uint64, log *logrus.Logger) (*VM, error) {
	kvmFd, err := unix.Open("/dev/kvm", unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoDevice, err)
	}

	log.Info("/dev/kvm device opened")

	version, err := kvm.GetAPIVersion(kvmFd)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWrongVersion, err)
	}

	if err := kvm.CheckAPIVersion(version); err != nil {
		return nil, fmt.Errorf("%w: got %d", ErrWrongVersion, version)
	}

	vmFd, err := kvm.CreateVM(kvmFd)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFailedVMCreation, err)
	}

	log.Info("kvm virtual machine created")

	if support, err := kvm.CheckExtension(kvmFd, kvm.CapUserMemory); err != nil || support == 0 {
		return nil, fmt.Errorf("%w: KVM_CAP_USER_MEMORY", ErrUnsupportedCaps)
	}

	if support, err := kvm.CheckExtension(kvmFd, kvm.CapExtCPUID); err != nil || support == 0 {
		return nil, fmt.Errorf("%w: KVM_CAP_EXT_CPUID", ErrUnsupportedCaps)
	}

	vendor := hostcpu.Detect()

	if vendor.NeedsTSSAddr() {
		if support, err := kvm.CheckExtension(kvmFd, kvm.CapSetTSSAddr); err != nil || support == 0 {
			return nil, fmt.Errorf("%w: KVM_CAP_SET_TSS_ADDR", ErrUnsupportedCaps)
		}

		log.Infof("running on an Intel CPU, setting TSS addr to %#x", tssAddr)

		if err := kvm.SetTSSAddr(vmFd, tssAddr); err != nil {
			return nil, fmt.Errorf("vm: failed to set TSS address: %w", err)
		}
	}

	if memSize == 0 {
		return nil, ErrZeroMemSize
	}

	mem, err := unix.Mmap(-1, 0, int(memSize), unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_NORESERVE)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFailedAllocation, err)
	}

	log.Info("vm memory allocated")

	region := &kvm.UserspaceMemoryRegion{
		Slot:          0,
		Flags:         0,
		GuestPhysAddr: 0,
		MemorySize:    memSize,
		UserspaceAddr: uint64(uintptr(unsafe.Pointer(&mem[0]))),
	}

	if err := kvm.SetUserMemoryRegion(vmFd, region); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFailedMemoryRegion, err)
	}

	log.Info("vm memory region created at guest physical address 0x0")

	v := &VM{
		Name:    name,
		kvmFd:   kvmFd,
		vmFd:    vmFd,
		MemSize: memSize,
		Mem:     mem,
		vcpus:   container.NewVec[*VCPU](),
		Serial:  os.Stdout,
		log:     log,
		vendor:  vendor,
	}
	v.state.store(Paused)

	return v, nil
}

// State returns the current VM state. Safe to call without holding Lock.
func (v *VM) State() State { return v.state.load() }

// Lock acquires the VM mutex that spec §4.J requires command handlers to
// hold around state inspection and mutation.
func (v *VM) Lock() { v.mu.Lock() }

// Unlock releases the VM mutex.
func (v *VM) Unlock() { v.mu.Unlock() }

// VCPUCount returns the number of provisioned vCPUs.
func (v *VM) VCPUCount() int { return v.vcpus.Len() }

// VCPU returns the vCPU at index i.
func (v *VM) VCPU(i int) *VCPU { return v.vcpus.At(i) }

// LoadKernel copies a raw guest binary into guest memory at
// KernelLoadAddr (spec §6: "the guest binary is loaded at guest-physical
// 0x1000").
func (v *VM) LoadKernel(kernel []byte) error {
	if uint64(KernelLoadAddr+len(kernel)) > v.MemSize {
		return fmt.Errorf("vm: kernel of %d bytes does not fit at %#x in a %d byte region",
			len(kernel), KernelLoadAddr, v.MemSize)
	}

	copy(v.Mem[KernelLoadAddr:], kernel)

	return nil
}

// Close tears down every handle opened by New/AddVCPU, in reverse
// provisioning order, mirroring original mini_kvm's
// mini_kvm_clean_kvm.
func (v *VM) Close() error {
	for i := 0; i < v.vcpus.Len(); i++ {
		vcpu := v.vcpus.At(i)
		if vcpu.run != nil {
			_ = unix.Munmap(vcpu.runRaw)
		}

		_ = unix.Close(vcpu.fd)
	}

	if v.Mem != nil {
		_ = unix.Munmap(v.Mem)
	}

	_ = unix.Close(v.vmFd)
	_ = unix.Close(v.kvmFd)

	return nil
}
