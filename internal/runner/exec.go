package runner

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/rs/zerolog"

	"avatx/internal/domain"
	"avatx/internal/logging"
	"avatx/internal/process"
	"avatx/internal/suite"
)

// Exec runs test files with the command of their configuration.
type Exec struct {
	log zerolog.Logger

	mu      sync.Mutex
	configs map[string]*Config
}

// NewExec returns an Exec runner.
func NewExec() *Exec {
	return &Exec{log: logging.For("runner"), configs: map[string]*Config{}}
}

// Discover implements suite.Runner.
func (e *Exec) Discover(ctx context.Context, configFile string) (suite.Discovery, error) {
	cfg, err := LoadConfig(configFile)
	if err != nil {
		return suite.Discovery{}, err
	}
	files, err := NewScanner(cfg.SkipDirs).Scan(cfg.Dir, cfg.Files, cfg.Exclude)
	if err != nil {
		return suite.Discovery{}, fmt.Errorf("runner: scan %s: %w", cfg.Dir, err)
	}

	var d suite.Discovery
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return suite.Discovery{}, err
		}
		titles, err := FindTitles(f, cfg.pattern)
		if err != nil {
			e.log.Warn().Err(err).Msg("skipping unreadable test file")
			continue
		}
		d.Files = append(d.Files, suite.DiscoveredFile{Path: f, Tests: titles})
	}

	e.mu.Lock()
	e.configs[configFile] = cfg
	e.mu.Unlock()
	return d, nil
}

// fileRun is one file of a run and the titles expected from it.
type fileRun struct {
	path   string
	titles []string
	filter []string
}

// Run implements suite.Runner. Files run through a pool of
// Config.Concurrency processes, or one at a time when debugging.
func (e *Exec) Run(ctx context.Context, req suite.RunRequest, report suite.Reporter) error {
	cfg, runs, err := e.plan(ctx, req)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		return nil
	}

	workerCount := cfg.Concurrency
	if req.Debug != nil {
		workerCount = 1
	}
	queue := make(chan fileRun, len(runs))
	for _, r := range runs {
		queue <- r
	}
	close(queue)

	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := range queue {
				if ctx.Err() != nil {
					return
				}
				e.runFile(ctx, cfg, req, r, report)
			}
		}()
	}
	wg.Wait()
	return ctx.Err()
}

// plan rediscovers the configuration of req and lists the selected files
// with the titles each is expected to report.
func (e *Exec) plan(ctx context.Context, req suite.RunRequest) (*Config, []fileRun, error) {
	d, err := e.Discover(ctx, req.Config)
	if err != nil {
		return nil, nil, err
	}
	e.mu.Lock()
	cfg := e.configs[req.Config]
	e.mu.Unlock()

	selected := map[string]bool{}
	for _, f := range req.Files {
		selected[f] = true
	}
	filter := map[string]bool{}
	for _, t := range req.Titles {
		filter[t] = true
	}

	var runs []fileRun
	for _, f := range d.Files {
		if req.Files != nil && !selected[f.Path] {
			continue
		}
		r := fileRun{path: f.Path}
		for _, t := range f.Tests {
			if len(filter) == 0 || filter[t] {
				r.titles = append(r.titles, t)
			}
		}
		if len(filter) > 0 {
			if len(r.titles) == 0 {
				continue
			}
			r.filter = r.titles
		}
		runs = append(runs, r)
	}
	return cfg, runs, nil
}

func (e *Exec) runFile(ctx context.Context, cfg *Config, req suite.RunRequest, r fileRun, report suite.Reporter) {
	for _, t := range r.titles {
		report(r.path, t, domain.StateRunning)
	}

	var port uint16
	if req.Debug != nil {
		port = req.Debug.Port
	}
	argv := cfg.argv(r.path, r.filter, port, req.Debug != nil)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = cfg.Dir
	cmd.Env = append(os.Environ(), process.Environ(cfg.Env)...)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	log := e.log.With().Str("file", r.path).Logger()
	if err := cmd.Start(); err != nil {
		log.Error().Err(err).Strs("argv", argv).Msg("could not start test process")
		for _, t := range r.titles {
			report(r.path, t, domain.StateErrored)
		}
		return
	}
	if req.Debug != nil && req.Debug.Ready != nil {
		if err := req.Debug.Ready(); err != nil {
			log.Warn().Err(err).Msg("debugger did not attach")
		}
	}
	runErr := cmd.Wait()
	if ctx.Err() != nil {
		return
	}

	fallback := domain.StatePassed
	if runErr != nil {
		fallback = domain.StateFailed
	}
	seen := map[string]bool{}
	for _, res := range ParseTAP(output.String()) {
		if res.Title == "" || seen[res.Title] {
			continue
		}
		seen[res.Title] = true
		if res.State == domain.StateFailed && res.Message != "" {
			log.Debug().Str("test", res.Title).Msg(res.Message)
		}
		report(r.path, res.Title, res.State)
	}
	for _, t := range r.titles {
		if !seen[t] {
			report(r.path, t, fallback)
		}
	}
}
