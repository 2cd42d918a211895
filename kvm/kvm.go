// Package kvm is a thin wrapper around the Linux /dev/kvm ioctl surface,
// grounded on jamlee-t-gokvm's kvm/kvm.go, rebuilt on golang.org/x/sys/unix
// instead of the raw syscall package and narrowed to the ioctls original
// mini_kvm's kvm/kvm.c actually issues (no irqchip, no PIT: this target
// never injects interrupts).
package kvm

import (
	"errors"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	apiVersion = 12

	kvmGetAPIVersion       = 0xAE00
	kvmCreateVM            = 0xAE01
	kvmGetVCPUMMapSize     = 0xAE04
	kvmCreateVCPU          = 0xAE41
	kvmRun                 = 0xAE80
	kvmGetRegs             = 0x8090AE81
	kvmSetRegs             = 0x4090AE82
	kvmGetSregs            = 0x8138AE83
	kvmSetSregs            = 0x4138AE84
	kvmSetUserMemoryRegion = 0x4020AE46
	kvmSetTSSAddr          = 0xAE47
	kvmCheckExtension      = 0xAE03
	kvmGetSupportedCPUID   = 0xC008AE05
	kvmSetCPUID2           = 0x4008AE90

	// CapUserMemory, CapSetTSSAddr and CapExtCPUID are the three
	// capabilities probed for at VM setup, gating SetUserMemoryRegion,
	// SetTSSAddr and GetSupportedCPUID/SetCPUID2 respectively.
	CapUserMemory = 3
	CapSetTSSAddr = 4
	CapExtCPUID   = 7

	ExitUnknown       = 0
	ExitException     = 1
	ExitIO            = 2
	ExitHypercall     = 3
	ExitDebug         = 4
	ExitHLT           = 5
	ExitMMIO          = 6
	ExitIRQWindowOpen = 7
	ExitShutdown      = 8
	ExitFailEntry     = 9
	ExitIntr          = 10
	ExitSetTPR        = 11
	ExitTPRAccess     = 12
	ExitInternalError = 17

	ExitIOIn  = 0
	ExitIOOut = 1

	numInterrupts = 0x100

	// CPUIDFuncPerMon and CPUIDSignature are the two supported-CPUID
	// leaves every setup adjusts before loading them into a vCPU: the
	// performance-monitoring leaf is disabled, and the hypervisor
	// signature leaf is stamped with a KVM-like vendor string.
	CPUIDFuncPerMon = 0x0A
	CPUIDSignature  = 0x40000000
	CPUIDFeatures   = 0x40000001
)

// ErrorUnexpectedEXITReason is returned when a KVM_RUN exit carries a
// reason the run loop has no handler for.
var ErrorUnexpectedEXITReason = errors.New("unexpected kvm exit reason")

// ErrorWrongAPIVersion is returned when KVM_GET_API_VERSION doesn't
// report the only version this package speaks (12).
var ErrorWrongAPIVersion = errors.New("unsupported kvm api version")

type Regs struct {
	RAX    uint64
	RBX    uint64
	RCX    uint64
	RDX    uint64
	RSI    uint64
	RDI    uint64
	RSP    uint64
	RBP    uint64
	R8     uint64
	R9     uint64
	R10    uint64
	R11    uint64
	R12    uint64
	R13    uint64
	R14    uint64
	R15    uint64
	RIP    uint64
	RFLAGS uint64
}

type Sregs struct {
	CS              Segment
	DS              Segment
	ES              Segment
	FS              Segment
	GS              Segment
	SS              Segment
	TR              Segment
	LDT             Segment
	GDT             Descriptor
	IDT             Descriptor
	CR0             uint64
	CR2             uint64
	CR3             uint64
	CR4             uint64
	CR8             uint64
	EFER            uint64
	ApicBase        uint64
	InterruptBitmap [(numInterrupts + 63) / 64]uint64
}

type Segment struct {
	Base     uint64
	Limit    uint32
	Selector uint16
	Typ      uint8
	Present  uint8
	DPL      uint8
	DB       uint8
	S        uint8
	L        uint8
	G        uint8
	AVL      uint8
	Unusable uint8
	_        uint8
}

type Descriptor struct {
	Base  uint64
	Limit uint16
	_     [3]uint16
}

// RunData mirrors struct kvm_run, the shared memory region mmap'd over
// each vCPU's fd.
type RunData struct {
	RequestInterruptWindow     uint8
	ImmediateExit              uint8
	_                          [6]uint8
	ExitReason                 uint32
	ReadyForInterruptInjection uint8
	IfFlag                     uint8
	_                          [2]uint8
	CR8                        uint64
	ApicBase                   uint64
	Data                       [32]uint64
}

// IO decodes the io_in/io_out anonymous union of struct kvm_run when
// ExitReason is ExitIO.
func (r *RunData) IO() (direction, size, port, count, offset uint64) {
	direction = r.Data[0] & 0xFF
	size = (r.Data[0] >> 8) & 0xFF
	port = (r.Data[0] >> 16) & 0xFFFF
	count = (r.Data[0] >> 32) & 0xFFFFFFFF
	offset = r.Data[1]

	return direction, size, port, count, offset
}

type UserspaceMemoryRegion struct {
	Slot          uint32
	Flags         uint32
	GuestPhysAddr uint64
	MemorySize    uint64
	UserspaceAddr uint64
}

type CPUID struct {
	Nent    uint32
	Padding uint32
	Entries [100]CPUIDEntry2
}

type CPUIDEntry2 struct {
	Function uint32
	Index    uint32
	Flags    uint32
	Eax      uint32
	Ebx      uint32
	Ecx      uint32
	Edx      uint32
	Padding  [3]uint32
}

func GetAPIVersion(kvmFd int) (int, error) {
	return unix.IoctlRetInt(kvmFd, kvmGetAPIVersion)
}

// CheckAPIVersion opens no device; it validates a version already
// returned by GetAPIVersion against the one this package was written
// against.
func CheckAPIVersion(version int) error {
	if version != apiVersion {
		return ErrorWrongAPIVersion
	}

	return nil
}

func CreateVM(kvmFd int) (int, error) {
	return unix.IoctlRetInt(kvmFd, kvmCreateVM)
}

// CheckExtension issues KVM_CHECK_EXTENSION for the given capability
// (e.g. CapUserMemory) and returns its support level (0 means
// unsupported).
func CheckExtension(kvmFd int, capability int) (int, error) {
	ret, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(kvmFd), uintptr(kvmCheckExtension), uintptr(capability))
	if errno != 0 {
		return 0, errno
	}

	return int(ret), nil
}

func CreateVCPU(vmFd int, vcpuID int) (int, error) {
	fd, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(vmFd), uintptr(kvmCreateVCPU), uintptr(vcpuID))
	if errno != 0 {
		return 0, errno
	}

	return int(fd), nil
}

// Run issues KVM_RUN. EAGAIN/EINTR are folded into a nil error: they are
// how a blocked vCPU thread is woken by a control-plane signal rather
// than a real failure (mirrors gokvm's handling, refs kvmtool's
// kvm-cpu.c).
func Run(vcpuFd int) error {
	err := ioctlNoArg(vcpuFd, kvmRun)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
			return nil
		}
	}

	return err
}

func GetVCPUMMapSize(kvmFd int) (int, error) {
	return unix.IoctlRetInt(kvmFd, kvmGetVCPUMMapSize)
}

func GetSregs(vcpuFd int) (Sregs, error) {
	sregs := Sregs{}
	err := ioctlPtr(vcpuFd, kvmGetSregs, unsafe.Pointer(&sregs))

	return sregs, err
}

func SetSregs(vcpuFd int, sregs Sregs) error {
	return ioctlPtr(vcpuFd, kvmSetSregs, unsafe.Pointer(&sregs))
}

func GetRegs(vcpuFd int) (Regs, error) {
	regs := Regs{}
	err := ioctlPtr(vcpuFd, kvmGetRegs, unsafe.Pointer(&regs))

	return regs, err
}

func SetRegs(vcpuFd int, regs Regs) error {
	return ioctlPtr(vcpuFd, kvmSetRegs, unsafe.Pointer(&regs))
}

func SetUserMemoryRegion(vmFd int, region *UserspaceMemoryRegion) error {
	return ioctlPtr(vmFd, kvmSetUserMemoryRegion, unsafe.Pointer(region))
}

// SetTSSAddr issues KVM_SET_TSS_ADDR with an explicit addr, required on
// Intel hosts only (hostcpu.Vendor.NeedsTSSAddr), unlike jamlee-t-gokvm's
// hardcoded always-on call.
func SetTSSAddr(vmFd int, addr uint64) error {
	return ioctlArg(vmFd, kvmSetTSSAddr, uintptr(addr))
}

func GetSupportedCPUID(kvmFd int, cpuid *CPUID) error {
	return ioctlPtr(kvmFd, kvmGetSupportedCPUID, unsafe.Pointer(cpuid))
}

func SetCPUID2(vcpuFd int, cpuid *CPUID) error {
	return ioctlPtr(vcpuFd, kvmSetCPUID2, unsafe.Pointer(cpuid))
}
