package explorer

import (
	"bytes"
	"sync"

	"github.com/rs/zerolog"
)

// lineWriter relays a worker output stream to the log one line at a time.
type lineWriter struct {
	log    zerolog.Logger
	stream string

	mu  sync.Mutex
	buf bytes.Buffer
}

func newLineWriter(log zerolog.Logger, stream string) *lineWriter {
	return &lineWriter{log: log, stream: stream}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf.Write(p)
	for {
		i := bytes.IndexByte(w.buf.Bytes(), '\n')
		if i < 0 {
			break
		}
		line := string(bytes.TrimRight(w.buf.Next(i+1), "\r\n"))
		if line != "" {
			w.log.Info().Str("stream", w.stream).Msg(line)
		}
	}
	return len(p), nil
}
