// Package format provides encoding and decoding for the store's
// persistent records and wire messages. Everything is self-delimited
// JSON with a single tag naming the variant, so one slot file or one
// TCP half-stream holds exactly one payload.
package format

import (
	"encoding/json"

	"github.com/aiifabbf/kvs/internal/errdefs"
)

// Op identifies the record variant.
type Op uint8

const (
	OpSet    Op = iota // key bound to a value
	OpRemove           // key unbound
)

// Record is a single mutation: Set carries a key and value, Remove a
// key only.
type Record struct {
	Op    Op
	Key   string
	Value string // empty for Remove
}

// recordJSON is the wire shape: {"Set":["k","v"]} or {"Remove":"k"}.
type recordJSON struct {
	Set    *[2]string `json:"Set,omitempty"`
	Remove *string    `json:"Remove,omitempty"`
}

// EncodeRecord serializes a record to its tagged JSON form.
func EncodeRecord(r Record) ([]byte, error) {
	var raw recordJSON
	switch r.Op {
	case OpSet:
		raw.Set = &[2]string{r.Key, r.Value}
	case OpRemove:
		raw.Remove = &r.Key
	default:
		return nil, errdefs.Formatf("unknown record op %d", r.Op)
	}
	return json.Marshal(raw)
}

// DecodeRecord parses a tagged JSON record. Exactly one variant tag
// must be present; anything else is a format error.
func DecodeRecord(data []byte) (Record, error) {
	var raw recordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return Record{}, errdefs.Format(err)
	}
	switch {
	case raw.Set != nil && raw.Remove == nil:
		return Record{Op: OpSet, Key: raw.Set[0], Value: raw.Set[1]}, nil
	case raw.Remove != nil && raw.Set == nil:
		return Record{Op: OpRemove, Key: *raw.Remove}, nil
	default:
		return Record{}, errdefs.Formatf("record carries no single variant tag")
	}
}
