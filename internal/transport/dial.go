package transport

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const controlWriteTimeout = time.Second

func deadline() time.Time { return time.Now().Add(controlWriteTimeout) }

// URL returns the socket address of a worker listening on port.
func URL(port uint16) string {
	return "ws://" + net.JoinHostPort("127.0.0.1", strconv.Itoa(int(port))) + "/"
}

// Dial connects to the worker on port, authenticating with token.
func Dial(ctx context.Context, port uint16, token string, handler Handler) (*Conn, error) {
	header := http.Header{TokenHeader: []string{token}}
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, URL(port), header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("transport: worker rejected token: %w", err)
		}
		return nil, fmt.Errorf("transport: dial %s: %w", URL(port), err)
	}
	conn := newConn(ws, "coordinator")
	conn.start(handler)
	return conn, nil
}

// Accept returns an http.Handler upgrading requests that carry token. serve
// is given each new connection and returns the handler for its messages;
// reading starts after serve returns. One connection is served at a time,
// others get 409. The request blocks until the connection ends.
func Accept(token string, serve func(conn *Conn) Handler) http.Handler {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	var busy atomic.Bool
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(TokenHeader) != token {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if !busy.CompareAndSwap(false, true) {
			w.WriteHeader(http.StatusConflict)
			return
		}
		defer busy.Store(false)
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn := newConn(ws, "worker")
		conn.start(serve(conn))
		<-conn.Done()
	})
}
