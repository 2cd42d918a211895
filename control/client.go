package control

import (
	"fmt"
	"io"
	"net"
	"os"

	"github.com/julienflot/mini-kvm/rendezvous"
)

// Client is the control-plane client of spec component I: it resolves a
// VM's rendezvous directory, verifies liveness, and pipelines Command
// records over one connection.
type Client struct {
	dir  *rendezvous.Dir
	conn *net.UnixConn
}

// Dial resolves name's rendezvous directory (failing with
// rendezvous.ErrNotRunning if it doesn't exist or its owner is dead,
// spec §4.I) and connects to its control socket.
func Dial(name string) (*Client, error) {
	dir, err := rendezvous.Open(name)
	if err != nil {
		return nil, err
	}

	addr, err := net.ResolveUnixAddr("unix", dir.SocketPath())
	if err != nil {
		return nil, err
	}

	conn, err := net.DialUnix("unix", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("control: failed to connect to %s: %w", dir.SocketPath(), err)
	}

	return &Client{dir: dir, conn: conn}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

// Send writes one Command record and reads back exactly one Reply
// record (spec §9 decision #2: any transport error is treated as
// failure, not just the original's `< -1` check).
func (c *Client) Send(cmd *Command) (*Reply, error) {
	encoded, err := cmd.Marshal()
	if err != nil {
		return nil, err
	}

	if _, err := c.conn.Write(encoded); err != nil {
		return nil, fmt.Errorf("control: failed to send command: %w", err)
	}

	reply, err := UnmarshalReply(c.conn)
	if err != nil {
		return nil, fmt.Errorf("control: failed to receive reply: %w", err)
	}

	return reply, nil
}

// newCommand fills in the caller's pid, required for DUMP_MEM's
// /proc/<pid>/fd/1 trick.
func newCommand(tag Tag) *Command {
	return &Command{Tag: tag, CallerPID: int32(os.Getpid())}
}

// Pause sends PAUSE.
func (c *Client) Pause() (*Reply, error) { return c.Send(newCommand(TagPause)) }

// Resume sends RESUME.
func (c *Client) Resume() (*Reply, error) { return c.Send(newCommand(TagResume)) }

// Shutdown sends SHUTDOWN.
func (c *Client) Shutdown() (*Reply, error) { return c.Send(newCommand(TagShutdown)) }

// ShowState sends SHOW_STATE.
func (c *Client) ShowState() (*Reply, error) { return c.Send(newCommand(TagShowState)) }

// ShowRegs sends SHOW_REGS for the given vCPU bitmask.
func (c *Client) ShowRegs(vcpuMask uint64) (*Reply, error) {
	cmd := newCommand(TagShowRegs)
	cmd.VCPUMask = vcpuMask

	return c.Send(cmd)
}

// DumpMem sends DUMP_MEM over [start,end) and returns the reply; the
// actual dump text arrives out of band on the caller's own stdout via
// the server's /proc/<pid>/fd/1 write (spec §9).
func (c *Client) DumpMem(start, end, wordSize, bytesPerLine int64) (*Reply, error) {
	cmd := newCommand(TagDumpMem)
	cmd.MemStart, cmd.MemEnd, cmd.WordSize, cmd.BytesPerLine = start, end, wordSize, bytesPerLine

	return c.Send(cmd)
}

// PrintRegs formats the registers for every vCPU set in mask, the way
// original mini_kvm's debug.c's mini_kvm_print_regs/print_sregs does.
func PrintRegs(w io.Writer, reply *Reply, mask uint64) {
	for i := 0; i < MaxVCPUs; i++ {
		if mask&(1<<uint(i)) == 0 {
			continue
		}

		r := reply.Regs[i]
		fmt.Fprintf(w, "vcpu %d:\n", i)
		fmt.Fprintf(w, "rax 0x%016x\trbx 0x%016x\trcx 0x%016x\trdx 0x%016x\n", r.RAX, r.RBX, r.RCX, r.RDX)
		fmt.Fprintf(w, "r8  0x%016x\tr9  0x%016x\tr10 0x%016x\tr11 0x%016x\n", r.R8, r.R9, r.R10, r.R11)
		fmt.Fprintf(w, "r12 0x%016x\tr13 0x%016x\tr14 0x%016x\tr15 0x%016x\n", r.R12, r.R13, r.R14, r.R15)
		fmt.Fprintf(w, "rsp 0x%016x\trbp 0x%016x\trip 0x%016x\trflags 0x%016x\n", r.RSP, r.RBP, r.RIP, r.RFLAGS)
		fmt.Fprintf(w, "rdi 0x%016x\trsi 0x%016x\n", r.RDI, r.RSI)

		s := reply.Sregs[i]
		fmt.Fprintf(w, "cr0 0x%016x\tcr2 0x%016x\tcr3 0x%016x\tcr4 0x%016x\n", s.CR0, s.CR2, s.CR3, s.CR4)
	}
}
