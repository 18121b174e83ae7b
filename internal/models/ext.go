// internal/models/ext.go
package models

import (
	"encoding/json"
	"fmt"
)

// ExtFields is the schema-less side table command modules use for private
// state. Keys are module-prefixed (crd_*, ata_*, bac_*, scb_*); values are
// compact JSON. Each module defines its own typed view and serializes it in
// and out at transaction boundaries, so presence of a key doubles as the
// module's "state exists" signal.
type ExtFields map[string]json.RawMessage

// Get decodes the value stored under key into dest. The bool reports whether
// the key was present at all.
func (e ExtFields) Get(key string, dest interface{}) (bool, error) {
	raw, ok := e[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return true, fmt.Errorf("decode extension field %s: %w", key, err)
	}
	return true, nil
}

// Set encodes v and stores it under key.
func (e ExtFields) Set(key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode extension field %s: %w", key, err)
	}
	e[key] = raw
	return nil
}

// Has reports whether key is present.
func (e ExtFields) Has(key string) bool {
	_, ok := e[key]
	return ok
}

// Delete removes key.
func (e ExtFields) Delete(key string) {
	delete(e, key)
}

// Clone deep-copies the field table.
func (e ExtFields) Clone() ExtFields {
	out := make(ExtFields, len(e))
	for k, v := range e {
		cp := make(json.RawMessage, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}
