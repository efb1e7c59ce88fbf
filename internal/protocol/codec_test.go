package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"avatx/internal/domain"
)

func TestEncodeDecode_EachKind(t *testing.T) {
	msgs := []Message{
		Log{Enable: true},
		Load{File: "ava.config.js"},
		Drop{},
		Drop{ID: "c1a"},
		Run{Run: []string{"root", "f12", "t3"}},
		Stop{},
		Debug{Port: 9229, Run: []string{"c1"}, Serial: SerialPlan{X: true}},
		Prefix{ID: "c1", File: "ava.config.js", Prefix: "/repo/test"},
		File{ID: "f2", Config: "c1", File: "a.js"},
		Case{ID: "t3", File: "f2", Test: "adds"},
		Result{Test: "t3", State: domain.StatePassed},
		Done{File: "c1"},
		Ready{Config: "c1", Port: 9229},
	}
	for _, m := range msgs {
		t.Run(string(m.Kind()), func(t *testing.T) {
			raw, err := Encode(m)
			require.NoError(t, err)
			assert.Equal(t, m.Kind(), PeekType(raw))

			got, err := Decode(raw)
			require.NoError(t, err)
			if d, ok := m.(Debug); ok && d.Serial.List == nil {
				d.Serial.List = []string{}
				m = d
			}
			assert.Equal(t, m, got)
		})
	}
}

func TestDecode_Rejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		err  error
	}{
		{"not json", `{`, ErrMalformed},
		{"not an object", `[1,2]`, ErrMalformed},
		{"missing type", `{"file":"x"}`, ErrUnknownType},
		{"unknown type", `{"type":"explode"}`, ErrUnknownType},
		{"empty load file", `{"type":"load","file":""}`, nil},
		{"bad drop id", `{"type":"drop","id":"f12"}`, nil},
		{"empty run", `{"type":"run","run":[]}`, nil},
		{"bad run entry", `{"type":"run","run":["x1"]}`, nil},
		{"port out of range", `{"type":"ready","config":"c1","port":70000}`, nil},
		{"fractional port", `{"type":"ready","config":"c1","port":1.5}`, nil},
		{"bad serial list", `{"type":"debug","port":1,"run":["root"],"serial":{"x":true,"list":["f1"]}}`, nil},
		{"unknown state", `{"type":"result","test":"t1","state":"flaky"}`, nil},
		{"done with test id", `{"type":"done","file":"t1"}`, nil},
		{"prefix without file", `{"type":"prefix","id":"c1","prefix":"/x"}`, nil},
		{"log with string", `{"type":"log","enable":"yes"}`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.raw))
			require.Error(t, err)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			var verr *ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
}

func TestDecode_IgnoresExtraFields(t *testing.T) {
	m, err := Decode([]byte(`{"type":"load","file":"a.js","extra":42}`))
	require.NoError(t, err)
	assert.Equal(t, Load{File: "a.js"}, m)
}

func TestSerialPlan_XOR(t *testing.T) {
	inverted := SerialPlan{X: true, List: []string{"c1"}}
	assert.False(t, inverted.IsSerial("c1"))
	assert.True(t, inverted.IsSerial("c2"))

	listed := SerialPlan{X: false, List: []string{"c1"}}
	assert.True(t, listed.IsSerial("c1"))
	assert.False(t, listed.IsSerial("c2"))
}

func TestReceptive(t *testing.T) {
	for _, typ := range []Type{TypeLoad, TypeRun, TypeDebug, TypeReady} {
		assert.True(t, Receptive(typ), typ)
	}
	for _, typ := range []Type{TypeLog, TypeDrop, TypeStop, TypeResult, TypeDone} {
		assert.False(t, Receptive(typ), typ)
	}
}
