package control

import (
	"errors"
	"io"
	"net"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/julienflot/mini-kvm/vm"
)

// acceptPollInterval is the non-blocking accept()'s poll cadence (spec
// §4.H: "sleep 100 ms"), implemented here as a repeatedly-extended
// socket read/accept deadline rather than a sleep between EAGAIN
// attempts, since net.UnixListener has no non-blocking mode of its own.
const acceptPollInterval = 100 * time.Millisecond

// Server is the control-plane listener of spec component H: a single-
// threaded, sequential accept loop bound to the VM's rendezvous socket.
type Server struct {
	vm  *vm.VM
	ln  *net.UnixListener
	log *logrus.Logger
}

// NewServer binds a Unix stream socket at socketPath and listens on it
// through net.ListenUnix, which uses the system's default backlog rather
// than a small fixed one.
func NewServer(m *vm.VM, socketPath string, log *logrus.Logger) (*Server, error) {
	addr, err := net.ResolveUnixAddr("unix", socketPath)
	if err != nil {
		return nil, err
	}

	ln, err := net.ListenUnix("unix", addr)
	if err != nil {
		return nil, err
	}

	return &Server{vm: m, ln: ln, log: log}, nil
}

// Serve runs the accept loop until the VM reaches SHUTDOWN (spec §4.H).
// A single client may pipeline multiple commands on one connection; the
// server handles connections sequentially, never spawning a per-client
// goroutine, matching the original's single-threaded design.
func (s *Server) Serve() error {
	defer s.ln.Close()

	for s.vm.State() != vm.Shutdown {
		if err := s.ln.SetDeadline(time.Now().Add(acceptPollInterval)); err != nil {
			return err
		}

		conn, err := s.ln.AcceptUnix()
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}

			s.log.Warnf("control: accept failed: %v", err)

			continue
		}

		s.serveConn(conn)
	}

	return nil
}

// serveConn is the inner pipelined-command loop: read one Command,
// dispatch, write one Reply, repeat until the client closes the
// connection.
func (s *Server) serveConn(conn *net.UnixConn) {
	defer conn.Close()

	for {
		cmd, err := UnmarshalCommand(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.log.Warnf("control: failed to read command: %v", err)
			}

			return
		}

		reply := Dispatch(s.vm, cmd)

		encoded, err := reply.Marshal()
		if err != nil {
			s.log.Warnf("control: failed to encode reply: %v", err)

			return
		}

		if _, err := conn.Write(encoded); err != nil {
			s.log.Warnf("control: failed to write reply: %v", err)

			return
		}
	}
}
