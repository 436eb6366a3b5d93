package model

import "encoding/json"

// Payload holds model-defined narrative content. The pipeline never
// interprets it beyond copying it between records.
type Payload map[string]any

// identityKeys are bookkeeping fields removed before a record is used as
// generation context.
var identityKeys = []string{"id", "_id", "universe_id", "created_at"}

// Clone returns a shallow copy of p. A nil payload clones to an empty one.
func (p Payload) Clone() Payload {
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Stripped returns a copy of p without identity and bookkeeping keys.
func (p Payload) Stripped() Payload {
	out := p.Clone()
	for _, k := range identityKeys {
		delete(out, k)
	}
	return out
}

// String returns the payload as indented JSON ("{}" when empty).
func (p Payload) String() string {
	if len(p) == 0 {
		return "{}"
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// Get returns the string value stored at key, or fallback when the key is
// missing or not a string.
func (p Payload) Get(key, fallback string) string {
	v, ok := p[key]
	if !ok {
		return fallback
	}
	s, ok := v.(string)
	if !ok {
		return fallback
	}
	return s
}

// Strings returns the string elements of the list stored at key. Non-string
// elements are skipped.
func (p Payload) Strings(key string) []string {
	raw, ok := p[key].([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}


// Value returns the value stored at key as a payload. Objects are returned
// as is, a string is wrapped as {"text": s} and any other value as
// {"value": v}. A missing or null value reports false.
func (p Payload) Value(key string) (Payload, bool) {
	switch v := p[key].(type) {
	case nil:
		return nil, false
	case map[string]any:
		return Payload(v), true
	case string:
		return Payload{"text": v}, true
	default:
		return Payload{"value": v}, true
	}
}
