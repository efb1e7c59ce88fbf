// Package worker is the child side of the protocol: it listens on a loopback
// port, announces itself through the handshake, and serves one coordinator
// connection by driving a suite.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"avatx/internal/logging"
	"avatx/internal/metrics"
	"avatx/internal/protocol"
	"avatx/internal/suite"
	"avatx/internal/transport"
)

// Server serves the coordinator on behalf of one suite.
type Server struct {
	suite *suite.Suite
	token string
	log   zerolog.Logger
}

// New returns a Server for a suite driving runner.
func New(runner suite.Runner) *Server {
	return &Server{
		suite: suite.New(runner),
		token: uuid.NewString(),
		log:   logging.For("worker"),
	}
}

// Suite returns the served suite.
func (s *Server) Suite() *suite.Suite { return s.suite }

// Serve listens, writes the handshake line to handshake and closes it when it
// is a Closer, then serves until the coordinator disconnects or ctx ends.
func (s *Server) Serve(ctx context.Context, handshake io.Writer) error {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("worker: listen: %w", err)
	}
	port := uint16(ln.Addr().(*net.TCPAddr).Port)

	connected := make(chan *transport.Conn, 1)
	srv := &http.Server{Handler: transport.Accept(s.token, func(conn *transport.Conn) transport.Handler {
		select {
		case connected <- conn:
		default:
		}
		return s.handler(ctx, conn)
	})}
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()
	defer srv.Close()

	if _, err := fmt.Fprintln(handshake, protocol.FormatHandshake(port, s.token)); err != nil {
		return fmt.Errorf("worker: write handshake: %w", err)
	}
	if c, ok := handshake.(io.Closer); ok {
		c.Close()
	}
	s.log.Debug().Uint16("port", port).Msg("waiting for coordinator")

	var conn *transport.Conn
	select {
	case conn = <-connected:
	case err := <-serveErr:
		return fmt.Errorf("worker: serve: %w", err)
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-conn.Done():
	case <-ctx.Done():
		conn.Close()
	}
	s.suite.Cancel()
	s.suite.Drop("")
	if err := conn.Err(); err != nil {
		return fmt.Errorf("worker: connection lost: %w", err)
	}
	return nil
}

func (s *Server) send(conn *transport.Conn) func(protocol.Message) {
	return func(msg protocol.Message) {
		if err := conn.Send(msg); err != nil && !errors.Is(err, transport.ErrClosed) {
			s.log.Warn().Err(err).Str("type", string(msg.Kind())).Msg("send failed")
		}
	}
}

func (s *Server) handler(ctx context.Context, conn *transport.Conn) transport.Handler {
	send := s.send(conn)
	return func(msg protocol.Message, err error) {
		if err != nil {
			metrics.ProtocolErrors.WithLabelValues("worker").Inc()
			s.log.Warn().Err(err).Msg("dropping invalid message from coordinator")
			return
		}

		switch m := msg.(type) {
		case protocol.Log:
			logging.EnableDebug(m.Enable)
		case protocol.Load:
			if _, err := s.suite.Load(ctx, m.File, send); err != nil {
				s.log.Error().Err(err).Str("file", m.File).Msg("load failed")
			}
		case protocol.Drop:
			s.suite.Drop(m.ID)
		case protocol.Run:
			s.suite.Run(ctx, send, uuid.NewString(), m.Run)
		case protocol.Stop:
			s.suite.Cancel()
		case protocol.Debug:
			ready := func(configID string, port uint16) error {
				return conn.Request(ctx, protocol.Ready{Config: configID, Port: port})
			}
			s.suite.Debug(ctx, send, ready, m.Run, m.Port, m.Serial)
		default:
			s.log.Debug().Str("type", string(msg.Kind())).Msg("ignoring message")
		}
	}
}
