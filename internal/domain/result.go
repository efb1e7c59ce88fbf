package domain

import "time"

// RunMeta contains metadata about a test run
type RunMeta struct {
	Total           int     `json:"total"`
	Passed          int     `json:"passed"`
	Failed          int     `json:"failed"`
	Skipped         int     `json:"skipped"`
	Errored         int     `json:"errored"`
	Configs         int     `json:"configs"`
	Duration        string  `json:"duration"`
	DurationSeconds float64 `json:"duration_seconds"`
	Timestamp       string  `json:"timestamp"`
}

// RunOutput is the complete output structure for run results
type RunOutput struct {
	Meta    RunMeta       `json:"meta"`
	Details []TestFailure `json:"details"`
}

// Summarize tallies results by state. Tests still running count as errored.
func Summarize(results []TestResult, configs int, duration time.Duration, at time.Time) RunMeta {
	meta := RunMeta{
		Total:           len(results),
		Configs:         configs,
		Duration:        duration.String(),
		DurationSeconds: duration.Seconds(),
		Timestamp:       at.Format(time.RFC3339),
	}
	for _, r := range results {
		switch r.State {
		case StatePassed:
			meta.Passed++
		case StateFailed:
			meta.Failed++
		case StateSkipped:
			meta.Skipped++
		default:
			meta.Errored++
		}
	}
	return meta
}

// Unresolved returns the failures not yet marked resolved.
func (o *RunOutput) Unresolved() []TestFailure {
	var out []TestFailure
	for _, f := range o.Details {
		if !f.Resolved {
			out = append(out, f)
		}
	}
	return out
}
