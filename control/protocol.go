// Package control implements spec components H (control-plane server), I
// (control-plane client) and J (command handlers), grounded on original
// mini_kvm's ipc/ipc.{c,h} and commands/{pause,resume,shutdown,status}.c.
package control

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/julienflot/mini-kvm/internal/errkind"
	"github.com/julienflot/mini-kvm/internal/parse"
	"github.com/julienflot/mini-kvm/kvm"
	"github.com/julienflot/mini-kvm/vm"
)

// wireOrder is the explicit byte order spec §9 asks for in place of the
// original's raw host-endian struct send/recv ("either explicitly pack
// fields ... or refuse cross-architecture connections"): fixed,
// little-endian, regardless of host, since both ends of this socket
// always run on the same machine anyway.
var wireOrder = binary.LittleEndian

// MaxVCPUs bounds the per-vCPU arrays carried in a Reply.
const MaxVCPUs = parse.MaxVCPUs

// Tag identifies a Command's operation (spec §3).
type Tag uint32

const (
	TagNone Tag = iota
	TagPause
	TagResume
	TagShutdown
	TagShowState
	TagShowRegs
	TagDumpMem
)

func (t Tag) String() string {
	switch t {
	case TagNone:
		return "none"
	case TagPause:
		return "pause"
	case TagResume:
		return "resume"
	case TagShutdown:
		return "shutdown"
	case TagShowState:
		return "show-state"
	case TagShowRegs:
		return "show-regs"
	case TagDumpMem:
		return "dump-mem"
	default:
		return "unknown"
	}
}

// Command is the fixed-size record a client sends (spec §3).
type Command struct {
	Tag          Tag
	_            [4]byte
	VCPUMask     uint64
	MemStart     int64
	MemEnd       int64
	WordSize     int64
	BytesPerLine int64
	CallerPID    int32
	_            [4]byte
}

// Reply is the fixed-size record the server sends back (spec §3). Regs
// and Sregs are indexed by vCPU id; only the bits set in VCPUMask (and
// within range) are meaningful.
type Reply struct {
	Tag      Tag
	Err      errkind.Kind
	VCPUMask uint64
	Regs     [MaxVCPUs]kvm.Regs
	Sregs    [MaxVCPUs]kvm.Sregs
	State    vm.State
}

// Marshal encodes c in wireOrder with no padding beyond what's declared
// above, writing exactly one fixed-size record.
func (c *Command) Marshal() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, wireOrder, c); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// UnmarshalCommand reads exactly one Command record from r.
func UnmarshalCommand(r io.Reader) (*Command, error) {
	c := &Command{}
	if err := binary.Read(r, wireOrder, c); err != nil {
		return nil, err
	}

	return c, nil
}

// Marshal encodes r in wireOrder, writing exactly one fixed-size record.
func (r *Reply) Marshal() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, wireOrder, r); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// UnmarshalReply reads exactly one Reply record from r.
func UnmarshalReply(r io.Reader) (*Reply, error) {
	reply := &Reply{}
	if err := binary.Read(r, wireOrder, reply); err != nil {
		return nil, err
	}

	return reply, nil
}
