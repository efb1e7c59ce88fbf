// Package protocol defines the messages exchanged between the coordinator and
// its workers, and the structural validation applied to every inbound message.
package protocol

import (
	"slices"

	"github.com/goccy/go-json"

	"avatx/internal/domain"
)

// Type is the discriminator carried in every message's "type" field.
type Type string

// Control messages, coordinator to worker.
const (
	TypeLog   Type = "log"
	TypeLoad  Type = "load"
	TypeDrop  Type = "drop"
	TypeRun   Type = "run"
	TypeStop  Type = "stop"
	TypeDebug Type = "debug"
)

// Discovery and result messages, worker to coordinator.
const (
	TypePrefix Type = "prefix"
	TypeFile   Type = "file"
	TypeCase   Type = "case"
	TypeResult Type = "result"
	TypeDone   Type = "done"
	TypeReady  Type = "ready"
)

// Message is implemented by every protocol message.
type Message interface {
	Kind() Type
}

// Receptive reports whether messages of type t expect an acknowledgement.
func Receptive(t Type) bool {
	switch t {
	case TypeLoad, TypeRun, TypeDebug, TypeReady:
		return true
	}
	return false
}

// Log toggles debug logging in the worker.
type Log struct {
	Enable bool `json:"enable"`
}

// Load asks the worker to discover the tests of a configuration file.
type Load struct {
	File string `json:"file"`
}

// Drop disposes one configuration, or all of them when ID is empty.
type Drop struct {
	ID string `json:"id,omitempty"`
}

// Run executes a plan.
type Run struct {
	Run []string `json:"run"`
}

// Stop cancels every active run.
type Stop struct{}

// SerialPlan selects which configurations debug one file at a time.
// A configuration is serial when X differs from its membership in List.
type SerialPlan struct {
	X    bool     `json:"x"`
	List []string `json:"list"`
}

// MarshalJSON always emits List as an array.
func (p SerialPlan) MarshalJSON() ([]byte, error) {
	type plain SerialPlan
	if p.List == nil {
		p.List = []string{}
	}
	return json.Marshal(plain(p))
}

// IsSerial applies the XOR rule to configID.
func (p SerialPlan) IsSerial(configID string) bool {
	return p.X != slices.Contains(p.List, configID)
}

// Debug executes a plan with the debugger listening on Port.
type Debug struct {
	Port   uint16     `json:"port"`
	Run    []string   `json:"run"`
	Serial SerialPlan `json:"serial"`
}

// Prefix announces a loaded configuration and the path prefix of its files.
type Prefix struct {
	ID     string `json:"id"`
	File   string `json:"file"`
	Prefix string `json:"prefix"`
}

// File announces a test file, relative to its configuration's prefix.
type File struct {
	ID     string `json:"id"`
	Config string `json:"config"`
	File   string `json:"file"`
}

// Case announces a test case.
type Case struct {
	ID   string `json:"id"`
	File string `json:"file"`
	Test string `json:"test"`
}

// Result reports a state change of a test case.
type Result struct {
	Test  string       `json:"test"`
	State domain.State `json:"state"`
}

// Done reports that a configuration or file finished running.
type Done struct {
	File string `json:"file"`
}

// Ready reports that a debuggee is waiting for a debugger on Port.
type Ready struct {
	Config string `json:"config"`
	Port   uint16 `json:"port"`
}

func (Log) Kind() Type    { return TypeLog }
func (Load) Kind() Type   { return TypeLoad }
func (Drop) Kind() Type   { return TypeDrop }
func (Run) Kind() Type    { return TypeRun }
func (Stop) Kind() Type   { return TypeStop }
func (Debug) Kind() Type  { return TypeDebug }
func (Prefix) Kind() Type { return TypePrefix }
func (File) Kind() Type   { return TypeFile }
func (Case) Kind() Type   { return TypeCase }
func (Result) Kind() Type { return TypeResult }
func (Done) Kind() Type   { return TypeDone }
func (Ready) Kind() Type  { return TypeReady }
