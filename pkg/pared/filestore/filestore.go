// Package filestore is a file-backed pared.Store: the persistent-secret
// image cmd/provision lays down and cmd/car/cmd/fob load at boot. Layout
// widths come from pared.CarLayout/pared.FobLayout so producer and
// consumer can never drift on field offsets (spec.md §6.3).
//
// The on-disk format is the fields of a Layout, in ascending name order,
// each written as its fixed-width value followed by a HashSize integrity
// tag if pared.SensitiveFields marks it sensitive. Saves are written to a
// temp file and renamed into place so a crash mid-write leaves the
// previous image intact, approximating the power-loss tolerance spec.md
// §3.1 requires of the real EEPROM-backed store.
package filestore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/ironkey-labs/pared/pkg/pared"
)

// Store is a file-backed pared.Store.
type Store struct {
	mu     sync.Mutex
	path   string
	layout pared.Layout
	order  []pared.Field
	values map[pared.Field][]byte
	tags   map[pared.Field][pared.HashSize]byte
	locked map[pared.Field]bool
}

func orderedFields(layout pared.Layout) []pared.Field {
	fields := make([]pared.Field, 0, len(layout))
	for f := range layout {
		fields = append(fields, f)
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i] < fields[j] })
	return fields
}

// New builds an empty, unsaved Store for layout, to be populated by
// cmd/provision and then written with Save.
func New(path string, layout pared.Layout) *Store {
	return &Store{
		path:   path,
		layout: layout,
		order:  orderedFields(layout),
		values: make(map[pared.Field][]byte),
		tags:   make(map[pared.Field][pared.HashSize]byte),
		locked: make(map[pared.Field]bool),
	}
}

// Open reads an existing image from path, built with the same layout.
func Open(path string, layout pared.Layout) (*Store, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("filestore: read %s: %w", path, err)
	}
	s := New(path, layout)

	off := 0
	for _, field := range s.order {
		width := layout[field]
		if off+width > len(raw) {
			return nil, fmt.Errorf("filestore: %s: truncated at field %q", path, field)
		}
		value := append([]byte(nil), raw[off:off+width]...)
		off += width
		s.values[field] = value
		if pared.SensitiveFields[field] {
			if off+pared.HashSize > len(raw) {
				return nil, fmt.Errorf("filestore: %s: missing tag for field %q", path, field)
			}
			var tag [pared.HashSize]byte
			copy(tag[:], raw[off:off+pared.HashSize])
			off += pared.HashSize
			s.tags[field] = tag
		}
	}
	return s, nil
}

// Save serialises the store's current values to its path.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var buf []byte
	for _, field := range s.order {
		width := s.layout[field]
		value := s.values[field]
		if len(value) != width {
			padded := make([]byte, width)
			copy(padded, value)
			value = padded
		}
		buf = append(buf, value...)
		if pared.SensitiveFields[field] {
			tag := s.tags[field]
			buf = append(buf, tag[:]...)
		}
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".filestore-*")
	if err != nil {
		return fmt.Errorf("filestore: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("filestore: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("filestore: close temp: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("filestore: rename into place: %w", err)
	}
	return nil
}

// Seed writes field's value directly and computes its tag, bypassing the
// Lock() gate; used only by cmd/provision before the image's first Save.
func (s *Store) Seed(field pared.Field, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := append([]byte(nil), value...)
	s.values[field] = buf
	s.tags[field] = pared.Hash(buf)
}

// SeedPlain writes a plain field directly, for cmd/provision.
func (s *Store) SeedPlain(field pared.Field, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[field] = append([]byte(nil), value...)
}

func (s *Store) LoadSensitive(field pared.Field) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf, ok := s.values[field]
	if !ok {
		return nil, pared.E("Store.LoadSensitive", pared.KindInvalidHash, nil)
	}
	if pared.Hash(buf) != s.tags[field] {
		return nil, pared.E("Store.LoadSensitive", pared.KindInvalidHash, nil)
	}
	return append([]byte(nil), buf...), nil
}

func (s *Store) StoreSensitive(field pared.Field, value []byte) error {
	s.mu.Lock()
	if s.locked[field] {
		s.mu.Unlock()
		return pared.E("Store.StoreSensitive", pared.KindInvalidFlashAccess, nil)
	}
	buf := append([]byte(nil), value...)
	s.values[field] = buf
	s.tags[field] = pared.Hash(buf)
	s.mu.Unlock()
	return s.Save()
}

func (s *Store) LoadPlain(field pared.Field) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf, ok := s.values[field]
	if !ok {
		return nil, pared.E("Store.LoadPlain", pared.KindEepromRead, nil)
	}
	return append([]byte(nil), buf...), nil
}

func (s *Store) StorePlain(field pared.Field, value []byte) error {
	s.mu.Lock()
	if s.locked[field] {
		s.mu.Unlock()
		return pared.E("Store.StorePlain", pared.KindInvalidFlashAccess, nil)
	}
	s.values[field] = append([]byte(nil), value...)
	s.mu.Unlock()
	return s.Save()
}

func (s *Store) Lock(fields ...pared.Field) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range fields {
		s.locked[f] = true
	}
}
