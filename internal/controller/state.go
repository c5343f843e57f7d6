// Package controller implements the host and worker controller processes
// from the state machines driving the cluster lifecycle,
// and the fabric message dispatch that turns incoming Tags into Agent
// commands and, for the host, into broadcast/gather orchestration.
package controller

import (
	"sync"

	"github.com/arxgeo/geodist/internal/dberr"
)

// State is a controller's lifecycle state, shared by host and worker
//.
type State int

const (
	StateIdle State = iota
	StateInitializing
	StateReady
	StateBusy
	StateTerminating
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateInitializing:
		return "Initializing"
	case StateReady:
		return "Ready"
	case StateBusy:
		return "Busy"
	case StateTerminating:
		return "Terminating"
	default:
		return "Unknown"
	}
}

// BusySubState further classifies StateBusy per command class.
type BusySubState int

const (
	SubNone BusySubState = iota
	SubPartitioning
	SubLoading
	SubIndexing
	SubEvaluating
)

func (s BusySubState) String() string {
	switch s {
	case SubPartitioning:
		return "Partitioning"
	case SubLoading:
		return "Loading"
	case SubIndexing:
		return "Indexing"
	case SubEvaluating:
		return "Evaluating"
	default:
		return "None"
	}
}

// stateMachine is the mutex-guarded state holder both HostController and
// WorkerController embed. A terminate message drives any state straight
// to Terminating; every other transition follows the
// Idle -> Initializing -> Ready -> Busy -> Ready cycle.
type stateMachine struct {
	mu    sync.Mutex
	state State
	busy  BusySubState
}

func (m *stateMachine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// enterBusy transitions Ready -> Busy(sub), rejecting the call if the
// controller is not currently Ready (a second command cannot start while
// one is in flight — the per-command ACK round-trip assumption).
func (m *stateMachine) enterBusy(sub BusySubState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateReady {
		return dberr.New(dberr.CodeCommunication, "controller is "+m.state.String()+", not Ready")
	}
	m.state = StateBusy
	m.busy = sub
	return nil
}

// leaveBusy transitions Busy -> Ready.
func (m *stateMachine) leaveBusy() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateReady
	m.busy = SubNone
}

func (m *stateMachine) initialize() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateInitializing
}

func (m *stateMachine) markReady() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateReady
}

func (m *stateMachine) terminate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateTerminating
}
