package domain

// State is the status of one test case as reported by a worker.
type State string

const (
	StateRunning State = "running"
	StatePassed  State = "passed"
	StateFailed  State = "failed"
	StateSkipped State = "skipped"
	StateErrored State = "errored"
)

// States lists every valid State.
var States = []State{StateRunning, StatePassed, StateFailed, StateSkipped, StateErrored}

// Valid reports whether s is one of the known states.
func (s State) Valid() bool {
	for _, v := range States {
		if s == v {
			return true
		}
	}
	return false
}

// Final reports whether s ends a test's run.
func (s State) Final() bool { return s != StateRunning && s.Valid() }
