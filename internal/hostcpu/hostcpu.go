// Package hostcpu identifies the host CPU vendor via CPUID, the way
// original mini_kvm's core/core.c check_cpu_vendor does with a raw
// `cpuid` asm instruction. Rather than hand-rolling inline assembly, this
// wraps github.com/intel-go/cpuid, the vendor-detection library the
// kata-containers runtime (virtcontainers/qemu_amd64.go) already imports
// in this retrieval pack for the same class of decision: configuring a
// device differently depending on whether the host is Intel or AMD.
package hostcpu

import "github.com/intel-go/cpuid"

// Vendor identifies the host CPU manufacturer.
type Vendor int

const (
	VendorUnknown Vendor = iota
	VendorIntel
	VendorAMD
)

// Detect executes CPUID function 0 (via intel-go/cpuid's cached probe) and
// classifies the 12-byte vendor string, the way check_cpu_vendor compares
// against "GenuineIntel"/"AuthenticAMD".
func Detect() Vendor {
	switch cpuid.VendorIdentificatorString {
	case "GenuineIntel":
		return VendorIntel
	case "AuthenticAMD":
		return VendorAMD
	default:
		return VendorUnknown
	}
}

// NeedsTSSAddr reports whether a task-state-segment base address must be
// configured before the first vCPU run, which spec §4.D requires on Intel
// hosts only.
func (v Vendor) NeedsTSSAddr() bool {
	return v == VendorIntel
}

func (v Vendor) String() string {
	switch v {
	case VendorIntel:
		return "GenuineIntel"
	case VendorAMD:
		return "AuthenticAMD"
	default:
		return "unknown"
	}
}
