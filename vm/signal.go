package vm

import (
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"golang.org/x/sys/unix"
)

// The three real-time signals spec §4.E and §6 register per vCPU thread,
// chosen as SIGRTMIN+0/1/2. Their handlers do nothing but interrupt a
// blocked run ioctl with EINTR; signal.Notify below keeps Go's runtime
// from terminating the process on delivery, and Tgkill targets the OS
// thread actually blocked in KVM_RUN.
var (
	sigPause    = syscall.Signal(unix.SIGRTMIN() + 0)
	sigResume   = syscall.Signal(unix.SIGRTMIN() + 1)
	sigShutdown = syscall.Signal(unix.SIGRTMIN() + 2)
)

// watchVCPUSignals registers the three vCPU real-time signals process
// wide. It must be called once before any vCPU thread starts; delivered
// signals are drained from the channel and otherwise ignored; their only
// job was already done by the time Notify's runtime hook ran (interrupt
// the blocking syscall on the targeted thread).
func watchVCPUSignals() {
	ch := make(chan os.Signal, 8)
	signal.Notify(ch, sigPause, sigResume, sigShutdown)

	go func() {
		for range ch {
		}
	}()
}

// raiseOnVCPUs sends sig to every provisioned vCPU's OS thread via
// tgkill, the way original mini_kvm's command handlers call
// pthread_kill on each vcpu.thread.
func (v *VM) raiseOnVCPUs(sig syscall.Signal) {
	pid := unix.Getpid()

	for i := 0; i < v.vcpus.Len(); i++ {
		tid := int(v.vcpus.At(i).tid.Load())
		if tid == 0 {
			continue // thread has not started yet
		}

		_ = unix.Tgkill(pid, tid, sig)
	}
}

// Pause transitions the VM to PAUSED and wakes every vCPU thread so the
// transition is observed promptly instead of after the next 10ms poll.
func (v *VM) Pause() {
	v.state.store(Paused)
	v.raiseOnVCPUs(sigPause)
}

// Resume transitions the VM to RUNNING and wakes every vCPU thread out
// of its pause sleep.
func (v *VM) Resume() {
	v.state.store(Running)
	v.raiseOnVCPUs(sigResume)
}

// ShutdownVM transitions the VM to SHUTDOWN (terminal) and interrupts
// every vCPU thread's blocked run ioctl.
func (v *VM) ShutdownVM() {
	v.state.shutdown()
	v.raiseOnVCPUs(sigShutdown)
}

// lockRunLoopThread pins the calling goroutine to its OS thread for the
// lifetime of a vCPU's run loop, mirroring jamlee-t-gokvm's
// RunInfiniteLoop, so the thread id captured for tgkill stays the thread
// that issues KVM_RUN.
func lockRunLoopThread() func() {
	runtime.LockOSThread()

	return runtime.UnlockOSThread
}
