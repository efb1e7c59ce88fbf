// Package logging owns the process-wide zerolog logger. Components derive a
// sub-logger tagged with their source name via For.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// SourceField is the field every sub-logger carries to name its component.
const SourceField = "src"

var (
	mu   sync.RWMutex
	base = zerolog.New(os.Stderr).With().Timestamp().Logger()
)

// Init replaces the base logger. With pretty set, output goes through a
// zerolog.ConsoleWriter, otherwise one JSON object per line is written.
func Init(level string, w io.Writer, pretty bool) {
	if w == nil {
		w = os.Stderr
	}
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	SetLevel(level)

	mu.Lock()
	base = zerolog.New(w).With().Timestamp().Logger()
	mu.Unlock()
}

// SetLevel changes the global level. Unknown names fall back to info.
func SetLevel(level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

// EnableDebug toggles debug output, used by the worker's log message.
func EnableDebug(enable bool) {
	if enable {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// For returns a logger for the named component.
func For(src string) zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base.With().Str(SourceField, src).Logger()
}
