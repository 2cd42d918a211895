package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/julienflot/mini-kvm/control"
	"github.com/julienflot/mini-kvm/internal/errkind"
)

// runSimpleCommand dials name's control socket, sends one command via
// send, and prints a short confirmation. Every one of pause/resume/
// shutdown shares this shape (spec §4.I): a --name-only subcommand that
// reports success or the errkind the server sent back.
func runSimpleCommand(name, verb string, send func(*control.Client) (*control.Reply, error)) int {
	if name == "" {
		fmt.Fprintf(os.Stderr, "%s: --name is required\n", verb)

		return int(errkind.ArgsFailed)
	}

	client, err := control.Dial(name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", verb, err)

		return int(errkind.StatusCommandFailed)
	}
	defer client.Close()

	reply, err := send(client)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", verb, err)

		return int(errkind.StatusCommandFailed)
	}

	if reply.Err != errkind.Success {
		fmt.Fprintf(os.Stderr, "%s: %v\n", verb, reply.Err)

		return int(reply.Err)
	}

	fmt.Printf("%s: ok\n", verb)

	return int(errkind.Success)
}

func simpleFlagSet(name string, namePtr *string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.StringVar(namePtr, "name", "", "name of the virtual machine")
	fs.StringVar(namePtr, "n", "", "shorthand for --name")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "USAGE: mini_kvm %s --name NAME\n", name)
	}

	return fs
}

func cmdPause(args []string) int {
	var name string

	fs := simpleFlagSet("pause", &name)
	if err := fs.Parse(args); err != nil {
		return int(errkind.ArgsFailed)
	}

	return runSimpleCommand(name, "pause", (*control.Client).Pause)
}

func cmdResume(args []string) int {
	var name string

	fs := simpleFlagSet("resume", &name)
	if err := fs.Parse(args); err != nil {
		return int(errkind.ArgsFailed)
	}

	return runSimpleCommand(name, "resume", (*control.Client).Resume)
}

func cmdShutdown(args []string) int {
	var name string

	fs := simpleFlagSet("shutdown", &name)
	if err := fs.Parse(args); err != nil {
		return int(errkind.ArgsFailed)
	}

	return runSimpleCommand(name, "shutdown", (*control.Client).Shutdown)
}
