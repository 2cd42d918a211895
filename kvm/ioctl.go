package kvm

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// ioctlPtr issues op against fd with arg pointing at a Go value; used for
// every ioctl that exchanges a struct (regs, sregs, memory region, cpuid)
// rather than a scalar.
func ioctlPtr(fd int, op uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), op, uintptr(arg))
	if errno != 0 {
		return errno
	}

	return nil
}

// ioctlArg issues op against fd with a scalar argument (KVM_SET_TSS_ADDR).
func ioctlArg(fd int, op uintptr, arg uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), op, arg)
	if errno != 0 {
		return errno
	}

	return nil
}

// ioctlNoArg issues op against fd with a zero argument (KVM_RUN).
func ioctlNoArg(fd int, op uintptr) error {
	return ioctlArg(fd, op, 0)
}
