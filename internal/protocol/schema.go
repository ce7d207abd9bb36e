package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

const schemaBase = "https://scenesync.dev/schemas/"

const envelopeSchema = "envelope"

// Validator checks raw messages against the embedded JSON schemas.
type Validator struct {
	schemas map[string]*jsonschema.Schema
}

// NewValidator compiles every embedded schema.
func NewValidator() (*Validator, error) {
	entries, err := schemaFS.ReadDir("schemas")
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	c.AssertFormat = true

	var names []string
	for _, e := range entries {
		name := strings.TrimSuffix(e.Name(), ".schema.json")
		raw, err := schemaFS.ReadFile("schemas/" + e.Name())
		if err != nil {
			return nil, err
		}
		if err := c.AddResource(schemaBase+e.Name(), bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", name, err)
		}
		names = append(names, name)
	}

	v := &Validator{schemas: make(map[string]*jsonschema.Schema, len(names))}
	for _, name := range names {
		s, err := c.Compile(schemaBase + name + ".schema.json")
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", name, err)
		}
		v.schemas[name] = s
	}
	if _, ok := v.schemas[envelopeSchema]; !ok {
		return nil, fmt.Errorf("envelope schema missing")
	}
	return v, nil
}

// Decode validates raw against the envelope schema and the payload schema
// of its type, then decodes the envelope. Every failure wraps
// ErrInvalidMessage.
func (v *Validator) Decode(raw []byte) (Envelope, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if err := v.schemas[envelopeSchema].Validate(doc); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	payload, ok := doc.(map[string]any)["payload"]
	if !ok {
		payload = map[string]any{}
	}
	if err := v.validatePayload(env.Type, payload); err != nil {
		return env, err
	}
	return env, nil
}

// ValidatePayload checks a decoded payload of the given message type.
func (v *Validator) ValidatePayload(typ string, payload json.RawMessage) error {
	var doc any = map[string]any{}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &doc); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}
	}
	return v.validatePayload(typ, doc)
}

func (v *Validator) validatePayload(typ string, doc any) error {
	s, ok := v.schemas[typ]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
	if err := s.Validate(doc); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrInvalidMessage, typ, err)
	}
	return nil
}
