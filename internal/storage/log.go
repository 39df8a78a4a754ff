// Package storage owns the on-disk layout of a store directory: one
// file per slot named by its decimal index, plus the archive tag file
// that records which engine the directory belongs to.
package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/natefinch/atomic"

	"github.com/aiifabbf/kvs/internal/errdefs"
	"github.com/aiifabbf/kvs/internal/format"
)

// TagFile is the archive tag's name under the store root.
const TagFile = ".kvs"

// ErrNoSlot reports a read of a slot index with no file behind it.
// Callers distinguish it from real I/O failures during recovery.
var ErrNoSlot = errors.New("no such slot")

// Log is a handle on a store directory. It performs no caching; every
// method is a filesystem operation.
type Log struct {
	root string
}

// OpenLog creates the root directory if missing and returns a handle
// on it.
func OpenLog(root string) (*Log, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory %s: %w", root, err)
	}
	slog.Debug("storage: opened store directory", "root", root)
	return &Log{root: root}, nil
}

// Root returns the store directory path.
func (l *Log) Root() string {
	return l.root
}

// SlotPath returns the file path backing slot i.
func (l *Log) SlotPath(i int) string {
	return filepath.Join(l.root, strconv.Itoa(i))
}

// ReadSlot reads and decodes the record in slot i. Returns ErrNoSlot
// when no file exists at that index.
func (l *Log) ReadSlot(i int) (format.Record, error) {
	data, err := os.ReadFile(l.SlotPath(i))
	if errors.Is(err, fs.ErrNotExist) {
		return format.Record{}, ErrNoSlot
	}
	if err != nil {
		return format.Record{}, fmt.Errorf("failed to read slot %d: %w", i, err)
	}
	rec, err := format.DecodeRecord(data)
	if err != nil {
		return format.Record{}, fmt.Errorf("slot %d: %w", i, err)
	}
	return rec, nil
}

// WriteSlot replaces slot i with the encoded record. The write lands
// atomically via rename, so a crash leaves either the old or the new
// contents.
func (l *Log) WriteSlot(i int, rec format.Record) error {
	data, err := format.EncodeRecord(rec)
	if err != nil {
		return err
	}
	if err := atomic.WriteFile(l.SlotPath(i), bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write slot %d: %w", i, err)
	}
	return nil
}

// Rename moves the file at slot from into slot to, replacing whatever
// was there.
func (l *Log) Rename(from, to int) error {
	if err := os.Rename(l.SlotPath(from), l.SlotPath(to)); err != nil {
		return fmt.Errorf("failed to move slot %d to %d: %w", from, to, err)
	}
	return nil
}

// DiscardSlot unlinks the file at slot i. Missing files are not an
// error; recovery sweeps ranges that may be partially gone already.
func (l *Log) DiscardSlot(i int) error {
	err := os.Remove(l.SlotPath(i))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to discard slot %d: %w", i, err)
	}
	return nil
}

// ClaimTag reconciles the archive tag under root with the named engine:
// absent tags are written, matching tags accepted, and a mismatch
// surfaces as a bad-archive error. The comparison is exact.
func ClaimTag(root, tag string) error {
	path := filepath.Join(root, TagFile)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		if err := atomic.WriteFile(path, strings.NewReader(tag)); err != nil {
			return fmt.Errorf("failed to write archive tag %s: %w", path, err)
		}
		slog.Info("storage: claimed store directory", "root", root, "engine", tag)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read archive tag %s: %w", path, err)
	}
	if owner := string(data); owner != tag {
		return errdefs.BadArchive(path, owner, tag)
	}
	return nil
}
