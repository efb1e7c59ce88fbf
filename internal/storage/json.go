package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"

	"avatx/internal/domain"
)

// ErrNoResults is returned by Load when no run has been saved yet.
var ErrNoResults = errors.New("storage: no saved results")

// Save writes the run summary and its failures to the results file.
func (s *JSONStorage) Save(results []domain.TestResult, configs int, duration time.Duration) error {
	output := domain.RunOutput{
		Meta:    domain.Summarize(results, configs, duration, s.now()),
		Details: domain.Failures(results),
	}
	return s.SaveOutput(&output)
}

// Load reads the last run from the results file.
func (s *JSONStorage) Load() (*domain.RunOutput, error) {
	path := s.cfg.GetResultsPath()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNoResults, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read results file: %w", err)
	}
	var output domain.RunOutput
	if err := json.Unmarshal(data, &output); err != nil {
		return nil, fmt.Errorf("parse results: %w", err)
	}
	return &output, nil
}

// SaveOutput writes output to the results file, replacing it atomically.
func (s *JSONStorage) SaveOutput(output *domain.RunOutput) error {
	data, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	path := s.cfg.GetResultsPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	return nil
}
