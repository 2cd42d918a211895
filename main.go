// mini_kvm is a minimal user-space hypervisor: it creates, runs,
// inspects and controls x86-64 virtual machines backed by /dev/kvm.
package main

import (
	"fmt"
	"os"

	"github.com/julienflot/mini-kvm/internal/errkind"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printTopLevelUsage(os.Stderr)

		return int(errkind.UnrecognizedCommand)
	}

	switch args[0] {
	case "run":
		return cmdRun(args[1:])
	case "pause":
		return cmdPause(args[1:])
	case "resume":
		return cmdResume(args[1:])
	case "shutdown":
		return cmdShutdown(args[1:])
	case "status":
		return cmdStatus(args[1:])
	case "-h", "--help":
		printTopLevelUsage(os.Stdout)

		return int(errkind.Success)
	default:
		fmt.Fprintf(os.Stderr, "mini_kvm: unrecognized command %q\n", args[0])
		printTopLevelUsage(os.Stderr)

		return int(errkind.UnrecognizedCommand)
	}
}

func printTopLevelUsage(w *os.File) {
	fmt.Fprintln(w, "USAGE: mini_kvm <run|pause|resume|shutdown|status> [options...]")
	fmt.Fprintln(w, "\trun:      provision and run a new VM")
	fmt.Fprintln(w, "\tpause:    pause a running VM")
	fmt.Fprintln(w, "\tresume:   resume a paused VM")
	fmt.Fprintln(w, "\tshutdown: terminate a VM")
	fmt.Fprintln(w, "\tstatus:   inspect a VM's state, registers, or memory")
}
