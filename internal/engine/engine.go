// Package engine provides the storage engines behind the server: the
// native slot-log engine and the bbolt-backed alternative, both behind
// one interface.
package engine

import "github.com/aiifabbf/kvs/internal/errdefs"

// Engine names accepted by Open. Each doubles as the archive tag its
// engine writes into the store directory.
const (
	NameKV   = "kvs"
	NameBolt = "bolt"
)

// Engine is the contract every storage engine satisfies. Implementations
// are single-owner: no concurrent mutation on one instance.
type Engine interface {
	// Get returns the current value for key, with ok reporting whether
	// a binding exists. Absence is not an error.
	Get(key string) (value string, ok bool, err error)
	// Set binds key to value, overwriting any existing binding.
	Set(key, value string) error
	// Remove unbinds key. Removing an absent key fails with a
	// not-found error.
	Remove(key string) error
	// Close releases the engine's resources.
	Close() error
}

// Open creates the named engine over the store directory at root.
func Open(name, root string) (Engine, error) {
	switch name {
	case NameKV:
		return OpenKV(root)
	case NameBolt:
		return OpenBolt(root)
	default:
		return nil, errdefs.UnsupportedEngine(name)
	}
}
