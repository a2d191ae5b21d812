package patch

import (
	"bytes"
	"encoding/json"
	"strings"
)

// DefaultUser is recorded when a payload names no user.
const DefaultUser = "unknown"

// Payload is an operation as received from a client: {op, project, user, ...}.
// It is kept raw so it can be rebroadcast and logged exactly as sent.
type Payload map[string]json.RawMessage

// ParsePayload reads a JSON object. An absent or empty body is rejected.
func ParsePayload(data []byte) (Payload, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, Reject(MsgNoJSONBody)
	}

	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, Reject("Invalid JSON body")
	}

	if len(p) == 0 {
		return nil, Reject(MsgNoJSONBody)
	}

	return p, nil
}

// Op returns the operation tag.
func (p Payload) Op() string {
	return p.String("op")
}

// Project returns the raw project name.
func (p Payload) Project() string {
	return p.String("project")
}

// User returns the acting user, or DefaultUser.
func (p Payload) User() string {
	if user := p.String("user"); user != "" {
		return user
	}

	return DefaultUser
}

// NoBroadcast reports whether the sender asked not to be echoed to the room.
func (p Payload) NoBroadcast() bool {
	return !isFalsy(p["noBroadcast"])
}

// String returns a string field. Numbers are returned as written; any other
// kind reads as "".
func (p Payload) String(key string) string {
	raw, ok := p[key]
	if !ok {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}

	return ""
}

// isFalsy reports whether a JSON value is absent, null, false, zero, or an
// empty string, object or array.
func isFalsy(raw json.RawMessage) bool {
	s := bytes.TrimSpace(raw)
	if len(s) == 0 {
		return true
	}

	var v any
	if err := json.Unmarshal(s, &v); err != nil {
		return true
	}

	switch v := v.(type) {
	case nil:
		return true
	case bool:
		return !v
	case float64:
		return v == 0
	case string:
		return v == ""
	case map[string]any:
		return len(v) == 0
	case []any:
		return len(v) == 0
	default:
		return strings.TrimSpace(string(s)) == ""
	}
}
