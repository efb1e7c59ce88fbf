package domain

import "time"

// TestResult is the final outcome of one test case in a run
type TestResult struct {
	ID       string        // Test id
	Title    string        // Test title
	File     string        // Full path of the file declaring the test
	Config   string        // Configuration file the test was loaded from
	State    State         // Last state reported
	Duration time.Duration // Time from running to the final state
}

// Failed reports whether the result counts as a failure. A test that never
// reached a final state has failed too.
func (r TestResult) Failed() bool {
	return r.State != StatePassed && r.State != StateSkipped
}
