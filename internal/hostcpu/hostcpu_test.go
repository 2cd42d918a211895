package hostcpu_test

import (
	"testing"

	"github.com/julienflot/mini-kvm/internal/hostcpu"
)

func TestNeedsTSSAddr(t *testing.T) {
	t.Parallel()

	if !hostcpu.VendorIntel.NeedsTSSAddr() {
		t.Error("VendorIntel.NeedsTSSAddr() = false, want true")
	}

	if hostcpu.VendorAMD.NeedsTSSAddr() {
		t.Error("VendorAMD.NeedsTSSAddr() = true, want false")
	}

	if hostcpu.VendorUnknown.NeedsTSSAddr() {
		t.Error("VendorUnknown.NeedsTSSAddr() = true, want false")
	}
}

func TestVendorString(t *testing.T) {
	t.Parallel()

	if got := hostcpu.VendorIntel.String(); got != "GenuineIntel" {
		t.Errorf("VendorIntel.String() = %q, want %q", got, "GenuineIntel")
	}

	if got := hostcpu.VendorAMD.String(); got != "AuthenticAMD" {
		t.Errorf("VendorAMD.String() = %q, want %q", got, "AuthenticAMD")
	}
}

func TestDetectReturnsKnownVendor(t *testing.T) {
	t.Parallel()

	v := hostcpu.Detect()
	if v != hostcpu.VendorIntel && v != hostcpu.VendorAMD && v != hostcpu.VendorUnknown {
		t.Errorf("Detect() = %v, not one of the defined Vendor constants", v)
	}
}
