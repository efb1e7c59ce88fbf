package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSummarize(t *testing.T) {
	results := []TestResult{
		{ID: "t1", Title: "adds", State: StatePassed},
		{ID: "t2", Title: "fails", File: "/repo/a.js", Config: "/repo/ava.config.js", State: StateFailed},
		{ID: "t3", Title: "later", State: StateSkipped},
		{ID: "t4", Title: "hangs", State: StateRunning},
		{ID: "t5", Title: "boom", State: StateErrored},
	}
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	meta := Summarize(results, 2, 1500*time.Millisecond, at)
	assert.Equal(t, RunMeta{
		Total:           5,
		Passed:          1,
		Failed:          1,
		Skipped:         1,
		Errored:         2,
		Configs:         2,
		Duration:        "1.5s",
		DurationSeconds: 1.5,
		Timestamp:       "2024-05-01T10:00:00Z",
	}, meta)

	failures := Failures(results)
	assert.Equal(t, []string{"fails", "hangs", "boom"}, []string{failures[0].TestName, failures[1].TestName, failures[2].TestName})
	assert.Equal(t, TestFailure{
		ID:       "t2",
		TestName: "fails",
		FilePath: "/repo/a.js",
		Config:   "/repo/ava.config.js",
		State:    StateFailed,
	}, failures[0])

	out := RunOutput{Meta: meta, Details: failures}
	out.Details[1].Resolved = true
	assert.Len(t, out.Unresolved(), 2)
}
