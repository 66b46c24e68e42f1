package applier

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/civicvault/syncd/internal/syncerr"
	"github.com/valyala/fastjson"
)

// IdempotencyKey is the payload field holding a client generated token.
const IdempotencyKey = "idempotencyKey"

// A payload is the opaque data of a queue item, read field by field.
type payload struct {
	v *fastjson.Value
}

func parse(data []byte) (*payload, error) {
	if len(data) == 0 {
		return &payload{v: fastjson.MustParse("{}")}, nil
	}

	v, err := fastjson.ParseBytes(data)
	if err != nil {
		return nil, syncerr.Validation("Malformed payload: %s", err)
	}
	if v.Type() != fastjson.TypeObject {
		return nil, syncerr.Validation("Payload must be a JSON object.")
	}
	return &payload{v: v}, nil
}

func (p *payload) has(key string) bool {
	v := p.v.Get(key)
	return v != nil && v.Type() != fastjson.TypeNull
}

// String returns the string field and whether it is present.
func (p *payload) String(key string) (string, bool, error) {
	if !p.has(key) {
		return "", false, nil
	}
	b, err := p.v.Get(key).StringBytes()
	if err != nil {
		return "", true, syncerr.Validation("Field %s must be a string.", key)
	}
	return string(b), true, nil
}

// RequiredString returns the string field or a validation error when missing or empty.
func (p *payload) RequiredString(key string) (string, error) {
	s, ok, err := p.String(key)
	if err != nil {
		return "", err
	}
	if !ok || s == "" {
		return "", syncerr.Validation("Field %s is required.", key)
	}
	return s, nil
}

// NullableString returns nil for a missing or null field.
func (p *payload) NullableString(key string) (*string, error) {
	s, ok, err := p.String(key)
	if err != nil || !ok {
		return nil, err
	}
	return &s, nil
}

// Int returns a numeric field. Numbers sent as strings are accepted.
func (p *payload) Int(key string) (int64, bool, error) {
	if !p.has(key) {
		return 0, false, nil
	}

	v := p.v.Get(key)
	switch v.Type() {
	case fastjson.TypeNumber:
		n, err := v.Int64()
		if err != nil {
			return 0, true, syncerr.Validation("Field %s must be an integer.", key)
		}
		return n, true, nil
	case fastjson.TypeString:
		n, err := strconv.ParseInt(string(v.GetStringBytes()), 10, 64)
		if err != nil {
			return 0, true, syncerr.Validation("Field %s must be an integer.", key)
		}
		return n, true, nil
	}
	return 0, true, syncerr.Validation("Field %s must be an integer.", key)
}

// Bool returns a boolean field.
func (p *payload) Bool(key string) (bool, bool, error) {
	if !p.has(key) {
		return false, false, nil
	}
	b, err := p.v.Get(key).Bool()
	if err != nil {
		return false, true, syncerr.Validation("Field %s must be a boolean.", key)
	}
	return b, true, nil
}

// Time returns a RFC3339 timestamp field.
func (p *payload) Time(key string) (*time.Time, bool, error) {
	s, ok, err := p.String(key)
	if err != nil || !ok {
		return nil, ok, err
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil, true, syncerr.Validation("Field %s must be a RFC3339 timestamp.", key)
	}
	t = t.UTC()
	return &t, true, nil
}

// Raw returns the JSON encoding of a field.
func (p *payload) Raw(key string) json.RawMessage {
	if !p.has(key) {
		return nil
	}
	return p.v.Get(key).MarshalTo(nil)
}
