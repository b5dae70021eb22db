// Package lifecycle implements the per-folder indexing lifecycle engine:
// the legal-transition state machine (C5) and the FolderLifecycleService
// (C8) that composes file-state tracking, vector storage, the task queue,
// change detection, and the per-file indexing pipeline.
package lifecycle

import "github.com/foldermcp/folderindex/internal/kerrors"

// State is the closed set of folder lifecycle states (§4.5).
type State string

const (
	StatePending   State = "pending"
	StateScanning  State = "scanning"
	StateReady     State = "ready"
	StateIndexing  State = "indexing"
	StateActive    State = "active"
	StateError     State = "error"
)

// Event is the closed set of triggers that attempt a transition. A
// FolderLifecycleService drives these; the state machine itself never
// performs I/O to decide the outcome.
type Event string

const (
	EventStartScan   Event = "start_scan"
	EventChangesFound Event = "changes_found"
	EventNoChanges   Event = "no_changes"
	EventStartIndex  Event = "start_index"
	EventIndexDone   Event = "index_done"
	EventFault       Event = "fault"
	EventReset       Event = "reset"
)

// legalTransitions encodes §4.5's table exactly. active -> pending is only
// reachable via EventReset, matching "active -> pending only via explicit
// reset". Any state can move to error via EventFault.
var legalTransitions = map[State]map[Event]State{
	StatePending: {
		EventStartScan: StateScanning,
	},
	StateScanning: {
		EventChangesFound: StateReady,
		EventNoChanges:    StateActive,
	},
	StateReady: {
		EventStartIndex: StateIndexing,
	},
	StateIndexing: {
		EventIndexDone: StateActive,
	},
	StateActive: {
		EventStartScan: StateScanning,
		EventReset:     StatePending,
	},
	StateError: {
		EventReset: StatePending,
	},
}

// StateMachine is a pure value: Apply never mutates shared state and never
// performs I/O (§4.5, §9 "the machine is a pure function of its current
// state").
type StateMachine struct {
	current State
}

// New starts a state machine in State Pending, per §3's "created on
// configuration load" lifecycle note.
func New() *StateMachine {
	return &StateMachine{current: StatePending}
}

// Current returns the machine's state.
func (m *StateMachine) Current() State {
	return m.current
}

// Apply attempts the transition for event from the current state. Any
// state may move to Error via EventFault, which is not listed per-state
// above to avoid repeating it five times. An illegal transition leaves the
// state unchanged and returns a *kerrors.Error of kind ErrIllegalTransition.
func (m *StateMachine) Apply(event Event) error {
	if event == EventFault {
		m.current = StateError
		return nil
	}

	next, ok := legalTransitions[m.current][event]
	if !ok {
		return kerrors.IllegalTransition(string(m.current) + " does not accept " + string(event))
	}
	m.current = next
	return nil
}

// CanApply reports whether event is legal from the current state, without
// mutating it. Useful for callers that want to branch without catching an
// error.
func (m *StateMachine) CanApply(event Event) bool {
	if event == EventFault {
		return true
	}
	_, ok := legalTransitions[m.current][event]
	return ok
}
