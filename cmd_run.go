package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/julienflot/mini-kvm/control"
	"github.com/julienflot/mini-kvm/internal/errkind"
	"github.com/julienflot/mini-kvm/internal/logging"
	"github.com/julienflot/mini-kvm/internal/parse"
	"github.com/julienflot/mini-kvm/rendezvous"
	"github.com/julienflot/mini-kvm/vm"
)

func cmdRun(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)

	var name, kernelPath, memArg, logPath string

	var vcpuCount int

	fs.StringVar(&name, "name", "", "name of the virtual machine")
	fs.StringVar(&name, "n", "", "shorthand for --name")
	fs.StringVar(&kernelPath, "kernel", "", "path to the raw guest binary")
	fs.StringVar(&kernelPath, "k", "", "shorthand for --kernel")
	fs.StringVar(&memArg, "mem", "", "guest memory size, with optional K/M/G suffix")
	fs.StringVar(&memArg, "m", "", "shorthand for --mem")
	fs.IntVar(&vcpuCount, "vcpu", 1, "number of vcpus")
	fs.IntVar(&vcpuCount, "v", 1, "shorthand for --vcpu")
	fs.StringVar(&logPath, "log", "", "write logs to PATH instead of stdout")
	fs.StringVar(&logPath, "l", "", "shorthand for --log")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "USAGE: mini_kvm run")
		fmt.Fprintln(os.Stderr, "\t--name/-n: set the name of the virtual machine")
		fmt.Fprintln(os.Stderr, "\t--kernel/-k: path to the raw guest binary")
		fmt.Fprintln(os.Stderr, "\t--mem/-m: memory allocated to the virtual machine, e.g. 64M")
		fmt.Fprintln(os.Stderr, "\t--vcpu/-v: number of vcpus dedicated to the virtual machine")
		fmt.Fprintln(os.Stderr, "\t--log/-l: write logs to PATH instead of stdout")
		fmt.Fprintln(os.Stderr, "\t--help/-h: print this message")
	}

	if err := fs.Parse(args); err != nil {
		return int(errkind.ArgsFailed)
	}

	if name == "" || kernelPath == "" || memArg == "" {
		fmt.Fprintln(os.Stderr, "run: --name, --kernel and --mem are required")
		fs.Usage()

		return int(errkind.ArgsFailed)
	}

	memSize, err := parse.ParseMem(memArg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "run: failed to parse mem argument: %v\n", err)

		return int(errkind.ArgsFailed)
	}

	kernel, err := os.ReadFile(kernelPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "run: unable to open kernel code (%v)\n", err)

		return int(errkind.ArgsFailed)
	}

	log, err := logging.New(logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "run: unable to set up logging (%v)\n", err)

		return int(errkind.InternalError)
	}

	if vcpuCount < 1 {
		fmt.Fprintln(os.Stderr, "run: --vcpu must be at least 1")

		return int(errkind.ArgsFailed)
	}

	dir, err := rendezvous.Create(name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "run: %v\n", err)

		return int(errkind.FailedFSSetup)
	}
	defer dir.Remove()

	m, err := vm.New(name, memSize, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "run: %v\n", err)

		return int(errkind.FailedVMCreation)
	}
	defer m.Close()

	if err := m.LoadKernel(kernel); err != nil {
		fmt.Fprintf(os.Stderr, "run: %v\n", err)

		return int(errkind.ArgsFailed)
	}

	for i := 0; i < vcpuCount; i++ {
		if _, err := m.AddVCPU(); err != nil {
			fmt.Fprintf(os.Stderr, "run: %v\n", err)

			return int(errkind.FailedVCPUCreation)
		}

		if err := m.SetupVCPU(i, vm.KernelLoadAddr); err != nil {
			fmt.Fprintf(os.Stderr, "run: %v\n", err)

			return int(errkind.FailedVCPUCreation)
		}
	}

	server, err := control.NewServer(m, dir.SocketPath(), log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "run: %v\n", err)

		return int(errkind.FailedSocketCreation)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Info("received interrupt, shutting down")
		m.ShutdownVM()
	}()

	m.Run()

	go func() {
		m.Wait()
		m.ShutdownVM()
	}()

	if err := server.Serve(); err != nil {
		fmt.Fprintf(os.Stderr, "run: control server failed: %v\n", err)
	}

	m.Wait()

	return int(errkind.Success)
}
