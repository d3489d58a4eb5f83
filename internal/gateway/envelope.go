package gateway

import (
	"bytes"
	"encoding/json"
)

// Unwrap normalizes the {data: T} response envelope.
//
// A top-level object carrying a "data" key is unwrapped once. If the result
// is an object whose only key is "data" it is unwrapped again; one legacy
// endpoint double wraps. Payloads without an envelope are returned unchanged.
func Unwrap(body []byte) (json.RawMessage, error) {
	body = bytes.TrimSpace(body)
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, err
	}

	inner, ok := dataField(body, false)
	if !ok {
		return body, nil
	}
	if legacy, ok := dataField(inner, true); ok {
		return legacy, nil
	}
	return inner, nil
}

// dataField returns obj.data when body is an object containing "data".
// With sole set, "data" must be the only key.
func dataField(body []byte, sole bool) (json.RawMessage, bool) {
	if len(body) == 0 || body[0] != '{' {
		return nil, false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, false
	}
	data, ok := obj["data"]
	if !ok {
		return nil, false
	}
	if sole && len(obj) != 1 {
		return nil, false
	}
	return data, true
}
