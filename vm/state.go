package vm

import "sync/atomic"

// State is the VM-level state machine of spec §4.J: PAUSED and RUNNING
// may oscillate under external control, SHUTDOWN is terminal.
type State int32

const (
	Paused State = iota
	Running
	Shutdown
)

func (s State) String() string {
	switch s {
	case Paused:
		return "paused"
	case Running:
		return "running"
	case Shutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// state is a lock-free single-word store, readable by any vCPU thread
// without synchronization (spec §4.F: "all state writes happen without
// holding the mutex").
type state struct {
	v atomic.Int32
}

func (s *state) load() State {
	return State(s.v.Load())
}

// store sets the state to v unless it is already SHUTDOWN, which is
// terminal: once SHUTDOWN, no caller can move it back.
func (s *state) store(v State) {
	for {
		cur := s.v.Load()
		if State(cur) == Shutdown {
			return
		}

		if s.v.CompareAndSwap(cur, int32(v)) {
			return
		}
	}
}

// shutdown moves the state to SHUTDOWN unconditionally. Once SHUTDOWN,
// store leaves it there (testable property 5 in spec §8).
func (s *state) shutdown() {
	s.v.Store(int32(Shutdown))
}
