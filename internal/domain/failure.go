package domain

// TestFailure represents a failed or errored test case
type TestFailure struct {
	ID       string `json:"id"`
	TestName string `json:"test_name"`
	FilePath string `json:"file_path"`
	Config   string `json:"config"`
	State    State  `json:"state"`
	Resolved bool   `json:"resolved,omitempty"` // Track if test case is marked as resolved
}

// Failures collects the failed results in order.
func Failures(results []TestResult) []TestFailure {
	var out []TestFailure
	for _, r := range results {
		if !r.Failed() {
			continue
		}
		out = append(out, TestFailure{
			ID:       r.ID,
			TestName: r.Title,
			FilePath: r.File,
			Config:   r.Config,
			State:    r.State,
		})
	}
	return out
}
