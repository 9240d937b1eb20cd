package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// BodyKind tells how a response body was interpreted
type BodyKind int

const (
	// BodyText is a body that could not be decoded as JSON
	BodyText BodyKind = iota
	// BodyJSON is a body decoded as a single JSON value
	BodyJSON
)

func (k BodyKind) String() string {
	if k == BodyJSON {
		return "json"
	}
	return "text"
}

// Body is a response body resolved to either parsed JSON or raw text.
// ParseErr holds the decode error for text bodies.
type Body struct {
	Kind     BodyKind
	JSON     interface{}
	Raw      []byte
	ParseErr error
}

// ParseBody attempts to decode raw as JSON and falls back to text.
// Numbers are kept as json.Number so identifiers survive unchanged.
func ParseBody(raw []byte) Body {
	body := Body{Kind: BodyText, Raw: raw}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		body.ParseErr = err
		return body
	}
	// Trailing data after the first value means this is not a JSON document
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		body.ParseErr = fmt.Errorf("unexpected data after JSON value")
		return body
	}

	body.Kind = BodyJSON
	body.JSON = v
	return body
}

// IsJSON reports whether the body was decoded as JSON
func (b Body) IsJSON() bool {
	return b.Kind == BodyJSON
}

// Text returns the raw body as a string
func (b Body) Text() string {
	return string(b.Raw)
}

// String renders JSON bodies indented and text bodies verbatim
func (b Body) String() string {
	if b.Kind != BodyJSON {
		return string(b.Raw)
	}
	out, err := json.MarshalIndent(b.JSON, "", "  ")
	if err != nil {
		return string(b.Raw)
	}
	return string(out)
}

// Lookup walks nested JSON objects by key
func (b Body) Lookup(path ...string) (interface{}, bool) {
	if b.Kind != BodyJSON {
		return nil, false
	}

	var cur interface{} = b.JSON
	for _, key := range path {
		obj, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = obj[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// LookupString returns the value at path as a non-empty string.
// JSON numbers are accepted and rendered in their original form.
func (b Body) LookupString(path ...string) (string, bool) {
	v, ok := b.Lookup(path...)
	if !ok {
		return "", false
	}

	switch val := v.(type) {
	case string:
		return val, val != ""
	case json.Number:
		return val.String(), true
	default:
		return "", false
	}
}
