package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

var (
	// ErrUnknownType is returned for a message whose type tag is missing or unrecognized.
	ErrUnknownType = errors.New("protocol: unknown message type")
	// ErrMalformed is returned when a message is not a JSON object.
	ErrMalformed = errors.New("protocol: malformed message")
)

// ValidationError describes a message that failed its structural check.
type ValidationError struct {
	Type Type
	Err  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("protocol: invalid %q message: %v", e.Type, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

var compiled = compileSchemas()

func compileSchemas() map[Type]*jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7

	out := make(map[Type]*jsonschema.Schema, len(schemas))
	for typ, src := range schemas {
		url := string(typ) + ".json"
		if err := compiler.AddResource(url, strings.NewReader(src)); err != nil {
			panic(fmt.Sprintf("protocol: schema %s: %v", typ, err))
		}
		schema, err := compiler.Compile(url)
		if err != nil {
			panic(fmt.Sprintf("protocol: schema %s: %v", typ, err))
		}
		out[typ] = schema
	}
	return out
}

// Encode marshals m with its type tag.
func Encode(m Message) ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s: %w", m.Kind(), err)
	}
	tag, err := json.Marshal(m.Kind())
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString(`{"type":`)
	buf.Write(tag)
	if body = bytes.TrimSpace(body); len(body) > 2 {
		buf.WriteByte(',')
		buf.Write(body[1:])
	} else {
		buf.WriteByte('}')
	}
	return buf.Bytes(), nil
}

// Decode validates raw against the schema of its declared type and returns the
// typed message.
func Decode(raw []byte) (Message, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, ErrMalformed
	}
	tag, _ := obj["type"].(string)
	typ := Type(tag)

	schema, ok := compiled[typ]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, tag)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, &ValidationError{Type: typ, Err: err}
	}

	msg := newMessage(typ)
	if err := json.Unmarshal(raw, msg); err != nil {
		return nil, &ValidationError{Type: typ, Err: err}
	}
	return deref(msg), nil
}

// PeekType returns the declared type of raw without validating it.
func PeekType(raw []byte) Type {
	var head struct {
		Type Type `json:"type"`
	}
	_ = json.Unmarshal(raw, &head)
	return head.Type
}

func newMessage(typ Type) any {
	switch typ {
	case TypeLog:
		return &Log{}
	case TypeLoad:
		return &Load{}
	case TypeDrop:
		return &Drop{}
	case TypeRun:
		return &Run{}
	case TypeStop:
		return &Stop{}
	case TypeDebug:
		return &Debug{}
	case TypePrefix:
		return &Prefix{}
	case TypeFile:
		return &File{}
	case TypeCase:
		return &Case{}
	case TypeResult:
		return &Result{}
	case TypeDone:
		return &Done{}
	case TypeReady:
		return &Ready{}
	}
	return nil
}

func deref(v any) Message {
	switch m := v.(type) {
	case *Log:
		return *m
	case *Load:
		return *m
	case *Drop:
		return *m
	case *Run:
		return *m
	case *Stop:
		return *m
	case *Debug:
		return *m
	case *Prefix:
		return *m
	case *File:
		return *m
	case *Case:
		return *m
	case *Result:
		return *m
	case *Done:
		return *m
	case *Ready:
		return *m
	}
	return nil
}
