package axm

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Resource is a JSON:API resource object as returned by the API. Attributes
// are kept raw so callers can flatten whatever fields the server sends.
type Resource struct {
	Type          string          `json:"type"`
	ID            string          `json:"id"`
	Attributes    json.RawMessage `json:"attributes,omitempty"`
	Relationships json.RawMessage `json:"relationships,omitempty"`
}

// AttributeMap decodes Attributes into a generic map. A resource without
// attributes yields an empty map.
func (r Resource) AttributeMap() (map[string]any, error) {
	out := map[string]any{}
	if isEmptyJSON(r.Attributes) {
		return out, nil
	}

	dec := json.NewDecoder(bytes.NewReader(r.Attributes))
	dec.UseNumber()

	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("axm: decoding attributes of %s %s: %w", r.Type, r.ID, err)
	}

	return out, nil
}

// Attribute returns a single string attribute, or "" if absent or not a string.
func (r Resource) Attribute(name string) string {
	m, err := r.AttributeMap()
	if err != nil {
		return ""
	}

	s, _ := m[name].(string)

	return s
}

// collectionResponse is one page of a collection endpoint.
type collectionResponse struct {
	Data []Resource `json:"data"`
	Meta struct {
		Paging struct {
			NextCursor string `json:"nextCursor"`
			Limit      int    `json:"limit"`
		} `json:"paging"`
	} `json:"meta"`
}

// documentResponse is a single-resource document. Data may be an object, an
// array, or null depending on the endpoint.
type documentResponse struct {
	Data json.RawMessage `json:"data"`
}

// isEmptyJSON reports whether raw is absent, null, {} or [].
func isEmptyJSON(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)

	switch string(t) {
	case "", "null", "{}", "[]":
		return true
	default:
		return false
	}
}
