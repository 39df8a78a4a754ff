package engine

import (
	"errors"
	"log/slog"

	"github.com/aiifabbf/kvs/internal/errdefs"
	"github.com/aiifabbf/kvs/internal/format"
	"github.com/aiifabbf/kvs/internal/storage"
)

// entry is the in-memory state of one live slot: the key stored there,
// and the value once it has been materialized. An uncached entry's
// value lives only in the slot file; its slot number is the entry's
// position in the array, so promotion renumbers it for free.
type entry struct {
	key    string
	value  string
	cached bool
}

// KVStore is the native log-structured engine. Live keys occupy the
// contiguous slot range [0, N); the directory maps each key to its
// slot, and removes recycle slots by promoting the highest one into
// the hole, so the on-disk layout never needs a compaction pass.
type KVStore struct {
	dir     map[string]int // key -> slot
	entries []entry        // one per live slot; len(entries) is the slot count
	log     *storage.Log
}

// OpenKV opens (or creates) a native store at root and replays the
// slot files into memory. After a successful open the directory on
// disk is canonical: slot files form exactly [0, N) for N live keys,
// and any straggler files from an interrupted run are gone.
func OpenKV(root string) (*KVStore, error) {
	log, err := storage.OpenLog(root)
	if err != nil {
		return nil, err
	}
	if err := storage.ClaimTag(root, NameKV); err != nil {
		return nil, err
	}
	s := &KVStore{
		dir: make(map[string]int),
		log: log,
	}
	if err := s.recover(); err != nil {
		return nil, err
	}
	slog.Info("engine: kvs store opened", "root", root, "keys", len(s.dir))
	return s, nil
}

// recover scans slot files from index 0 until the first gap, folding
// duplicate sets and replaying removes, then sweeps whatever the fold
// left behind above the live range.
func (s *KVStore) recover() error {
	scanned := 0
	for i := 0; ; i++ {
		rec, err := s.log.ReadSlot(i)
		if errors.Is(err, storage.ErrNoSlot) {
			break
		}
		if err != nil {
			return err
		}
		scanned = i + 1

		switch rec.Op {
		case format.OpSet:
			if j, ok := s.dir[rec.Key]; ok {
				// Later write of a known key: the newer file simply
				// takes over the key's slot.
				if err := s.log.Rename(i, j); err != nil {
					return err
				}
				continue
			}
			next := len(s.entries)
			if i != next {
				if err := s.log.Rename(i, next); err != nil {
					return err
				}
			}
			s.entries = append(s.entries, entry{key: rec.Key})
			s.dir[rec.Key] = next
		case format.OpRemove:
			j, ok := s.dir[rec.Key]
			if !ok {
				// Remove of a key with no live binding; the record's
				// file stays put until a later set is renamed over it
				// or the sweep below removes it.
				continue
			}
			if err := s.fill(j); err != nil {
				return err
			}
			delete(s.dir, rec.Key)
		}
	}

	// Files in [N, scanned) are leftovers of an interrupted run.
	for i := len(s.entries); i < scanned; i++ {
		if err := s.log.DiscardSlot(i); err != nil {
			return err
		}
	}
	if scanned > len(s.entries) {
		slog.Warn("engine: swept residual slots during recovery",
			"from", len(s.entries),
			"to", scanned)
	}
	return nil
}

// fill recycles hole j by moving the highest live slot into it,
// dropping the last entry. The caller unbinds whatever key owned j.
func (s *KVStore) fill(j int) error {
	last := len(s.entries) - 1
	if j == last {
		if err := s.log.DiscardSlot(last); err != nil {
			return err
		}
	} else {
		if err := s.log.Rename(last, j); err != nil {
			return err
		}
		moved := s.entries[last]
		s.entries[j] = moved
		s.dir[moved.key] = j
	}
	s.entries = s.entries[:last]
	return nil
}

// Get returns the value bound to key, materializing it from the slot
// file on first access and caching it for later reads.
func (s *KVStore) Get(key string) (string, bool, error) {
	j, ok := s.dir[key]
	if !ok {
		return "", false, nil
	}
	e := &s.entries[j]
	if e.cached {
		return e.value, true, nil
	}

	rec, err := s.log.ReadSlot(j)
	if err != nil {
		return "", false, err
	}
	if rec.Op == format.OpRemove {
		// A live slot must hold a set record. Drop the binding rather
		// than serve it.
		slog.Error("engine: remove record in live slot, unbinding key",
			"key", key,
			"slot", j)
		delete(s.dir, key)
		return "", false, nil
	}
	e.value = rec.Value
	e.cached = true
	return e.value, true, nil
}

// Set binds key to value. An existing binding is overwritten in place;
// a fresh one takes the next slot and is cached write-through, since
// the caller already holds the value.
func (s *KVStore) Set(key, value string) error {
	rec := format.Record{Op: format.OpSet, Key: key, Value: value}
	if j, ok := s.dir[key]; ok {
		if err := s.log.WriteSlot(j, rec); err != nil {
			return err
		}
		e := &s.entries[j]
		if e.cached {
			e.value = value
		}
		return nil
	}

	next := len(s.entries)
	if err := s.log.WriteSlot(next, rec); err != nil {
		return err
	}
	s.entries = append(s.entries, entry{key: key, value: value, cached: true})
	s.dir[key] = next
	return nil
}

// Remove unbinds key and recycles its slot. No tombstone is written;
// the log is compacted in place, at the cost of at most one rename.
func (s *KVStore) Remove(key string) error {
	j, ok := s.dir[key]
	if !ok {
		return errdefs.NotFound(key)
	}
	if err := s.fill(j); err != nil {
		return err
	}
	delete(s.dir, key)
	return nil
}

// Close releases the store. The native engine holds no open file
// handles between operations, so there is nothing to flush.
func (s *KVStore) Close() error {
	slog.Info("engine: kvs store closed", "keys", len(s.dir))
	return nil
}

// Len returns the number of live keys.
func (s *KVStore) Len() int {
	return len(s.dir)
}
