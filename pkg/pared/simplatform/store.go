// Package simplatform provides in-memory implementations of the Platform
// Abstraction interfaces (pared.Serial, pared.Store, pared.Timer,
// pared.Button, pared.LED, pared.EntropySource), used by the unit and
// end-to-end property tests, and (Button only) by cmd/fob's simulated
// button. None of this package
// is part of the firmware core; it stands in for the chip-specific code
// spec.md §1 places out of scope.
package simplatform

import (
	"crypto/rand"
	"sync"

	"github.com/ironkey-labs/pared/pkg/pared"
)

// Store is an in-memory pared.Store backed by a map, with the same
// fail-closed integrity semantics the real EEPROM-backed store must have
// (invariant I1).
type Store struct {
	mu     sync.Mutex
	values map[pared.Field][]byte
	tags   map[pared.Field][HashSize]byte
	locked map[pared.Field]bool
}

const HashSize = pared.HashSize

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		values: make(map[pared.Field][]byte),
		tags:   make(map[pared.Field][HashSize]byte),
		locked: make(map[pared.Field]bool),
	}
}

// Seed writes field directly and computes its integrity tag, used by test
// fixtures to lay down the initial image; it bypasses the Lock() gate so
// provisioning can run before the device's first boot.
func (s *Store) Seed(field pared.Field, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := append([]byte(nil), value...)
	s.values[field] = buf
	s.tags[field] = pared.Hash(buf)
}

// SeedPlain writes a plain (untagged) field directly, for test fixtures and
// provisioning.
func (s *Store) SeedPlain(field pared.Field, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[field] = append([]byte(nil), value...)
}

// CorruptByte flips one bit of field's stored value without touching its
// tag, for exercising property P3 (integrity).
func (s *Store) CorruptByte(field pared.Field, index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if buf, ok := s.values[field]; ok && index < len(buf) {
		buf[index] ^= 0x01
	}
}

func (s *Store) LoadSensitive(field pared.Field) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf, ok := s.values[field]
	if !ok {
		return nil, pared.E("Store.LoadSensitive", pared.KindInvalidHash, nil)
	}
	want := s.tags[field]
	got := pared.Hash(buf)
	if want != got {
		return nil, pared.E("Store.LoadSensitive", pared.KindInvalidHash, nil)
	}
	return append([]byte(nil), buf...), nil
}

func (s *Store) StoreSensitive(field pared.Field, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locked[field] {
		return pared.E("Store.StoreSensitive", pared.KindInvalidFlashAccess, nil)
	}
	buf := append([]byte(nil), value...)
	s.values[field] = buf
	s.tags[field] = pared.Hash(buf)
	return nil
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
	defer s.mu.Unlock()
	if s.locked[field] {
		return pared.E("Store.StorePlain", pared.KindInvalidFlashAccess, nil)
	}
	s.values[field] = append([]byte(nil), value...)
	return nil
}

func (s *Store) Lock(fields ...pared.Field) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range fields {
		s.locked[f] = true
	}
}

// EntropySource is a crypto/rand-backed pared.EntropySource.
type EntropySource struct{}

func (EntropySource) Read(p []byte) (int, error) { return rand.Read(p) }
