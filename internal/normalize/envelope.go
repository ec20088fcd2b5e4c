// Package normalize unwraps the provider's response envelope into flat
// profile and tweet records.
package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"kolmeter/internal/model"
)

// SuccessCode is the envelope code the provider uses for a good answer.
const SuccessCode = 1

// PayloadKind tells which shape the envelope's data field arrived in.
type PayloadKind int

const (
	PayloadNone PayloadKind = iota
	PayloadRawString
	PayloadParsed
)

func (k PayloadKind) String() string {
	switch k {
	case PayloadRawString:
		return "raw_string"
	case PayloadParsed:
		return "parsed"
	}
	return "none"
}

// Payload is the envelope's data field: either a JSON document encoded as a
// string or the document itself.
type Payload struct {
	Kind   PayloadKind
	raw    string
	parsed json.RawMessage
}

func (p *Payload) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*p = Payload{Kind: PayloadNone}
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*p = Payload{Kind: PayloadRawString, raw: s}
	default:
		*p = Payload{Kind: PayloadParsed, parsed: append(json.RawMessage(nil), b...)}
	}
	return nil
}

// Decode parses the payload into v. A stringified payload is parsed here and
// nowhere else.
func (p Payload) Decode(v any) error {
	var doc []byte
	switch p.Kind {
	case PayloadRawString:
		doc = []byte(p.raw)
	case PayloadParsed:
		doc = p.parsed
	default:
		return fmt.Errorf("%w: empty data", model.ErrMalformedEnvelope)
	}
	if err := json.Unmarshal(doc, v); err != nil {
		return fmt.Errorf("%w: data (%s): %v", model.ErrMalformedEnvelope, p.Kind, err)
	}
	return nil
}

// Envelope is the provider's outer wrapper.
type Envelope struct {
	Code flexInt `json:"code"`
	Msg  string  `json:"msg"`
	Data Payload `json:"data"`
}

// ProviderError is a well-formed answer the provider marked as failed, or an
// HTTP error status.
type ProviderError struct {
	HTTPStatus int
	Code       int
	Msg        string
}

func (e *ProviderError) Error() string {
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("provider http status %d: %s", e.HTTPStatus, e.Msg)
	}
	return fmt.Sprintf("provider code %d: %s", e.Code, e.Msg)
}

func (e *ProviderError) Unwrap() error { return model.ErrProviderLogical }

// DecodeEnvelope parses raw and checks the success code.
func DecodeEnvelope(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrMalformedEnvelope, err)
	}
	if int(env.Code) != SuccessCode {
		return &env, &ProviderError{Code: int(env.Code), Msg: env.Msg}
	}
	return &env, nil
}

// flexInt accepts numbers, numeric strings and null.
type flexInt int

func (n *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(b)), `"`)
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		*n = flexInt(i)
		return nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		*n = flexInt(int64(f))
		return nil
	}
	*n = 0
	return nil
}

// flexID accepts an id sent as a string, a number or null.
type flexID string

func (id *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*id = ""
		return nil
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = flexID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	if _, err := n.Int64(); err == nil {
		*id = flexID(n.String())
		return nil
	}
	f, err := n.Float64()
	if err != nil {
		return fmt.Errorf("id %s: %w", n, err)
	}
	*id = flexID(strconv.FormatFloat(f, 'f', 0, 64))
	return nil
}

// flexIDs accepts a list of string or numeric ids, or a single id.
type flexIDs []string

func (ids *flexIDs) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*ids = nil
		return nil
	}
	if b[0] != '[' {
		b = append(append([]byte{'['}, b...), ']')
	}
	var items []json.RawMessage
	if err := json.Unmarshal(b, &items); err != nil {
		return err
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		s := strings.Trim(string(bytes.TrimSpace(it)), `"`)
		if s != "" && s != "null" {
			out = append(out, s)
		}
	}
	*ids = out
	return nil
}
