package protocol

import "github.com/goccy/go-json"

// Frame is the envelope of every websocket message. Seq numbers a message;
// Want asks the peer to answer with a frame whose Reply equals Seq. A reply
// frame carries no body.
type Frame struct {
	Seq   uint64          `json:"seq,omitempty"`
	Want  bool            `json:"want,omitempty"`
	Reply uint64          `json:"reply,omitempty"`
	Body  json.RawMessage `json:"body,omitempty"`
}

// IsReply reports whether f acknowledges an earlier frame.
func (f Frame) IsReply() bool { return f.Reply != 0 }
