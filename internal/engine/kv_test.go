// Package engine provides unit tests for the storage engines.
package engine

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"testing"

	"github.com/aiifabbf/kvs/internal/errdefs"
	"github.com/aiifabbf/kvs/internal/format"
	"github.com/aiifabbf/kvs/internal/storage"
)

// slotFiles returns the sorted slot indices present under root,
// ignoring the tag file and anything else non-numeric.
func slotFiles(t *testing.T, root string) []int {
	t.Helper()
	dirents, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("failed to read store directory: %v", err)
	}
	var slots []int
	for _, d := range dirents {
		if i, err := strconv.Atoi(d.Name()); err == nil {
			slots = append(slots, i)
		}
	}
	sort.Ints(slots)
	return slots
}

// wantSlots asserts the store holds exactly slots [0, n).
func wantSlots(t *testing.T, root string, n int) {
	t.Helper()
	slots := slotFiles(t, root)
	if len(slots) != n {
		t.Fatalf("slot files = %v, want exactly [0, %d)", slots, n)
	}
	for i, s := range slots {
		if s != i {
			t.Fatalf("slot files = %v, want exactly [0, %d)", slots, n)
		}
	}
}

// readSlotRecord decodes the record stored in slot i.
func readSlotRecord(t *testing.T, root string, i int) format.Record {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, strconv.Itoa(i)))
	if err != nil {
		t.Fatalf("failed to read slot %d: %v", i, err)
	}
	rec, err := format.DecodeRecord(data)
	if err != nil {
		t.Fatalf("failed to decode slot %d: %v", i, err)
	}
	return rec
}

// writeSlotRecord plants an encoded record at slot i, bypassing the
// engine.
func writeSlotRecord(t *testing.T, root string, i int, rec format.Record) {
	t.Helper()
	data, err := format.EncodeRecord(rec)
	if err != nil {
		t.Fatalf("failed to encode record: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, strconv.Itoa(i)), data, 0o644); err != nil {
		t.Fatalf("failed to write slot %d: %v", i, err)
	}
}

func mustGet(t *testing.T, s *KVStore, key string) (string, bool) {
	t.Helper()
	value, ok, err := s.Get(key)
	if err != nil {
		t.Fatalf("Get(%q) error = %v", key, err)
	}
	return value, ok
}

func TestKVStoreSetGet(t *testing.T) {
	root := t.TempDir()
	store, err := OpenKV(root)
	if err != nil {
		t.Fatalf("OpenKV() error = %v", err)
	}
	defer store.Close()

	if err := store.Set("a", "1"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if value, ok := mustGet(t, store, "a"); !ok || value != "1" {
		t.Errorf("Get(a) = %q, %v, want %q, true", value, ok, "1")
	}

	// On disk: the tag file plus slot 0 holding the set record.
	tag, err := os.ReadFile(filepath.Join(root, storage.TagFile))
	if err != nil {
		t.Fatalf("tag file missing: %v", err)
	}
	if string(tag) != NameKV {
		t.Errorf("tag file = %q, want %q", tag, NameKV)
	}
	wantSlots(t, root, 1)
	if rec := readSlotRecord(t, root, 0); rec != (format.Record{Op: format.OpSet, Key: "a", Value: "1"}) {
		t.Errorf("slot 0 = %+v, want Set(a, 1)", rec)
	}
}

func TestKVStoreGetAbsent(t *testing.T) {
	store, err := OpenKV(t.TempDir())
	if err != nil {
		t.Fatalf("OpenKV() error = %v", err)
	}
	defer store.Close()

	if value, ok := mustGet(t, store, "missing"); ok {
		t.Errorf("Get(missing) = %q, true, want absent", value)
	}
}

func TestKVStoreOverwrite(t *testing.T) {
	root := t.TempDir()
	store, err := OpenKV(root)
	if err != nil {
		t.Fatalf("OpenKV() error = %v", err)
	}
	defer store.Close()

	for _, op := range [][2]string{{"a", "1"}, {"b", "2"}, {"a", "3"}} {
		if err := store.Set(op[0], op[1]); err != nil {
			t.Fatalf("Set(%q, %q) error = %v", op[0], op[1], err)
		}
	}

	if value, _ := mustGet(t, store, "a"); value != "3" {
		t.Errorf("Get(a) = %q, want 3", value)
	}
	if value, _ := mustGet(t, store, "b"); value != "2" {
		t.Errorf("Get(b) = %q, want 2", value)
	}
	// Overwrites reuse slots: still exactly two files.
	wantSlots(t, root, 2)
}

func TestKVStoreRemove(t *testing.T) {
	root := t.TempDir()
	store, err := OpenKV(root)
	if err != nil {
		t.Fatalf("OpenKV() error = %v", err)
	}
	defer store.Close()

	for _, op := range [][2]string{{"a", "1"}, {"b", "2"}, {"a", "3"}} {
		if err := store.Set(op[0], op[1]); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
	}
	if err := store.Remove("a"); err != nil {
		t.Fatalf("Remove(a) error = %v", err)
	}

	if _, ok := mustGet(t, store, "a"); ok {
		t.Error("Get(a) found a removed key")
	}
	if value, _ := mustGet(t, store, "b"); value != "2" {
		t.Errorf("Get(b) = %q, want 2", value)
	}
	// b's slot was promoted into the hole.
	wantSlots(t, root, 1)
	if rec := readSlotRecord(t, root, 0); rec != (format.Record{Op: format.OpSet, Key: "b", Value: "2"}) {
		t.Errorf("slot 0 = %+v, want Set(b, 2)", rec)
	}
}

func TestKVStoreRemoveLastSlot(t *testing.T) {
	root := t.TempDir()
	store, err := OpenKV(root)
	if err != nil {
		t.Fatalf("OpenKV() error = %v", err)
	}
	defer store.Close()

	store.Set("a", "1")
	store.Set("b", "2")
	if err := store.Remove("b"); err != nil {
		t.Fatalf("Remove(b) error = %v", err)
	}
	// The highest slot just goes away, no rename.
	wantSlots(t, root, 1)
	if value, _ := mustGet(t, store, "a"); value != "1" {
		t.Errorf("Get(a) = %q, want 1", value)
	}
}

func TestKVStoreRemoveAbsent(t *testing.T) {
	root := t.TempDir()
	store, err := OpenKV(root)
	if err != nil {
		t.Fatalf("OpenKV() error = %v", err)
	}
	defer store.Close()

	err = store.Remove("missing")
	if !errdefs.IsNotFound(err) {
		t.Fatalf("Remove(missing) error = %v, want a not-found error", err)
	}
	if err.Error() != "Key not found" {
		t.Errorf("not-found message = %q, want %q", err.Error(), "Key not found")
	}
	wantSlots(t, root, 0)
}

func TestKVStoreReopen(t *testing.T) {
	root := t.TempDir()
	store, err := OpenKV(root)
	if err != nil {
		t.Fatalf("OpenKV() error = %v", err)
	}
	store.Set("a", "1")
	store.Set("b", "2")
	store.Set("a", "3")
	store.Close()

	reopened, err := OpenKV(root)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer reopened.Close()

	if value, _ := mustGet(t, reopened, "a"); value != "3" {
		t.Errorf("Get(a) = %q, want 3", value)
	}
	if value, _ := mustGet(t, reopened, "b"); value != "2" {
		t.Errorf("Get(b) = %q, want 2", value)
	}
	wantSlots(t, root, 2)
}

func TestKVStoreRemoveUncachedThenReopen(t *testing.T) {
	// Promotion must stay correct when the promoted entry has never
	// been materialized: its implicit slot number changes underneath.
	root := t.TempDir()
	store, err := OpenKV(root)
	if err != nil {
		t.Fatalf("OpenKV() error = %v", err)
	}
	store.Set("a", "1")
	store.Set("b", "2")
	store.Set("c", "3")
	store.Close()

	// All entries are uncached after reopen.
	store, err = OpenKV(root)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	if err := store.Remove("a"); err != nil {
		t.Fatalf("Remove(a) error = %v", err)
	}
	// c was promoted from slot 2 into slot 0 while uncached; a read
	// must follow it there.
	if value, _ := mustGet(t, store, "c"); value != "3" {
		t.Errorf("Get(c) = %q, want 3", value)
	}
	if value, _ := mustGet(t, store, "b"); value != "2" {
		t.Errorf("Get(b) = %q, want 2", value)
	}
	wantSlots(t, root, 2)
	store.Close()
}

func TestKVStoreRecoveryReplaysRemoves(t *testing.T) {
	// A directory written by an append-only log of mutations, the
	// layout recovery exists to canonicalize.
	root := t.TempDir()
	if err := storage.ClaimTag(root, NameKV); err != nil {
		t.Fatalf("ClaimTag() error = %v", err)
	}
	writeSlotRecord(t, root, 0, format.Record{Op: format.OpSet, Key: "a", Value: "1"})
	writeSlotRecord(t, root, 1, format.Record{Op: format.OpSet, Key: "b", Value: "2"})
	writeSlotRecord(t, root, 2, format.Record{Op: format.OpRemove, Key: "a"})
	writeSlotRecord(t, root, 3, format.Record{Op: format.OpSet, Key: "c", Value: "3"})

	store, err := OpenKV(root)
	if err != nil {
		t.Fatalf("OpenKV() error = %v", err)
	}
	defer store.Close()

	if _, ok := mustGet(t, store, "a"); ok {
		t.Error("Get(a) found a key removed in the log")
	}
	if value, _ := mustGet(t, store, "b"); value != "2" {
		t.Errorf("Get(b) = %q, want 2", value)
	}
	if value, _ := mustGet(t, store, "c"); value != "3" {
		t.Errorf("Get(c) = %q, want 3", value)
	}
	// Recovery leaves the canonical layout behind.
	wantSlots(t, root, 2)
}

func TestKVStoreRecoveryFoldsDuplicates(t *testing.T) {
	root := t.TempDir()
	if err := storage.ClaimTag(root, NameKV); err != nil {
		t.Fatalf("ClaimTag() error = %v", err)
	}
	writeSlotRecord(t, root, 0, format.Record{Op: format.OpSet, Key: "a", Value: "old"})
	writeSlotRecord(t, root, 1, format.Record{Op: format.OpSet, Key: "a", Value: "new"})

	store, err := OpenKV(root)
	if err != nil {
		t.Fatalf("OpenKV() error = %v", err)
	}
	defer store.Close()

	if value, _ := mustGet(t, store, "a"); value != "new" {
		t.Errorf("Get(a) = %q, want the later write", value)
	}
	wantSlots(t, root, 1)
}

func TestKVStoreRecoverySweepsStraggler(t *testing.T) {
	root := t.TempDir()
	store, err := OpenKV(root)
	if err != nil {
		t.Fatalf("OpenKV() error = %v", err)
	}
	store.Set("a", "1")
	store.Close()

	// A remove record left over from an interrupted run.
	writeSlotRecord(t, root, 1, format.Record{Op: format.OpRemove, Key: "ghost"})

	store, err = OpenKV(root)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer store.Close()

	if value, _ := mustGet(t, store, "a"); value != "1" {
		t.Errorf("Get(a) = %q, want 1", value)
	}
	wantSlots(t, root, 1)
}

func TestKVStoreOpenRejectsForeignTag(t *testing.T) {
	root := t.TempDir()
	if err := storage.ClaimTag(root, NameBolt); err != nil {
		t.Fatalf("ClaimTag() error = %v", err)
	}
	_, err := OpenKV(root)
	if !errdefs.IsBadArchive(err) {
		t.Errorf("OpenKV() error = %v, want a bad-archive error", err)
	}
}

func TestKVStoreOpenRejectsMalformedSlot(t *testing.T) {
	root := t.TempDir()
	if err := storage.ClaimTag(root, NameKV); err != nil {
		t.Fatalf("ClaimTag() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "0"), []byte("garbage"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	_, err := OpenKV(root)
	if !errdefs.IsFormat(err) {
		t.Errorf("OpenKV() error = %v, want a format error", err)
	}
}

func TestKVStoreGetSelfHealsAnomaly(t *testing.T) {
	root := t.TempDir()
	store, err := OpenKV(root)
	if err != nil {
		t.Fatalf("OpenKV() error = %v", err)
	}
	store.Set("a", "1")
	store.Close()

	// Reopen so the entry is uncached, then corrupt its slot with a
	// remove record behind the engine's back.
	store, err = OpenKV(root)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer store.Close()
	writeSlotRecord(t, root, 0, format.Record{Op: format.OpRemove, Key: "a"})

	if value, ok := mustGet(t, store, "a"); ok {
		t.Errorf("Get(a) = %q, true, want the binding dropped", value)
	}
	// The key stays unbound afterwards.
	if _, ok := mustGet(t, store, "a"); ok {
		t.Error("Get(a) found the key again after self-heal")
	}
}

func TestKVStoreCaching(t *testing.T) {
	root := t.TempDir()
	store, err := OpenKV(root)
	if err != nil {
		t.Fatalf("OpenKV() error = %v", err)
	}
	store.Set("a", "1")
	store.Close()

	store, err = OpenKV(root)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer store.Close()

	// First read materializes the value.
	if value, _ := mustGet(t, store, "a"); value != "1" {
		t.Fatalf("Get(a) = %q, want 1", value)
	}
	// With the slot file gone, a second read can only come from the
	// cache.
	if err := os.Remove(filepath.Join(root, "0")); err != nil {
		t.Fatalf("failed to remove slot file: %v", err)
	}
	if value, ok := mustGet(t, store, "a"); !ok || value != "1" {
		t.Errorf("Get(a) = %q, %v, want cached 1, true", value, ok)
	}
}

func TestKVStoreWriteThrough(t *testing.T) {
	root := t.TempDir()
	store, err := OpenKV(root)
	if err != nil {
		t.Fatalf("OpenKV() error = %v", err)
	}
	defer store.Close()

	// A fresh set caches write-through; the read never touches disk.
	store.Set("a", "1")
	if err := os.Remove(filepath.Join(root, "0")); err != nil {
		t.Fatalf("failed to remove slot file: %v", err)
	}
	if value, ok := mustGet(t, store, "a"); !ok || value != "1" {
		t.Errorf("Get(a) = %q, %v, want cached 1, true", value, ok)
	}
}

func TestKVStoreSlotContiguity(t *testing.T) {
	// Every mutation must leave slot files at exactly [0, N) with N
	// live keys, whatever the order of sets and removes.
	root := t.TempDir()
	store, err := OpenKV(root)
	if err != nil {
		t.Fatalf("OpenKV() error = %v", err)
	}
	defer store.Close()

	model := make(map[string]string)
	ops := []struct {
		op    string
		key   string
		value string
	}{
		{"set", "a", "1"},
		{"set", "b", "2"},
		{"set", "c", "3"},
		{"set", "d", "4"},
		{"rm", "b", ""},
		{"set", "e", "5"},
		{"rm", "e", ""},
		{"set", "a", "10"},
		{"rm", "a", ""},
		{"rm", "d", ""},
		{"set", "f", "6"},
		{"rm", "c", ""},
		{"rm", "f", ""},
	}

	for step, op := range ops {
		switch op.op {
		case "set":
			if err := store.Set(op.key, op.value); err != nil {
				t.Fatalf("step %d: Set() error = %v", step, err)
			}
			model[op.key] = op.value
		case "rm":
			if err := store.Remove(op.key); err != nil {
				t.Fatalf("step %d: Remove() error = %v", step, err)
			}
			delete(model, op.key)
		}

		wantSlots(t, root, len(model))
		if store.Len() != len(model) {
			t.Fatalf("step %d: Len() = %d, want %d", step, store.Len(), len(model))
		}
		for key, want := range model {
			if value, ok := mustGet(t, store, key); !ok || value != want {
				t.Fatalf("step %d: Get(%q) = %q, %v, want %q, true", step, key, value, ok, want)
			}
		}
	}
}
