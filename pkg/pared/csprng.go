package pared

import (
	"encoding/binary"
	"io"
	"math/big"
	"runtime"

	"golang.org/x/crypto/chacha20"
)

// SeedSize is the width of the persistent rng_seed field.
const SeedSize = 32

// RNG is a stream-cipher CSPRNG seeded from the persistent rng_seed, per
// spec.md §4.1.1. Construct it with SeedCSPRNG, never directly.
type RNG struct {
	cipher *chacha20.Cipher
	zero   [64]byte
}

// SeedCSPRNG performs the boot-time seed-advance sequence: read the
// persistent seed, verify its integrity tag, increment the seed as a
// little-endian big integer, write the incremented value back with a fresh
// tag, then instantiate the generator from the updated seed. Any failure is
// fatal per spec.md §4.1.1 and I2: the caller must halt without emitting
// further traffic.
func SeedCSPRNG(store Store) (*RNG, error) {
	seed, err := store.LoadSensitive(FieldRNGSeed)
	if err != nil {
		return nil, E("SeedCSPRNG", KindInvalidHash, err)
	}
	if len(seed) != SeedSize {
		return nil, E("SeedCSPRNG", KindInvalidLen, nil)
	}

	next, err := advanceSeedLE(seed)
	if err != nil {
		return nil, E("SeedCSPRNG", KindCapacityOverflow, err)
	}

	if err := store.StoreSensitive(FieldRNGSeed, next); err != nil {
		return nil, E("SeedCSPRNG", KindEepromWrite, err)
	}

	var key [32]byte
	copy(key[:], next)
	var nonce [chacha20.NonceSize]byte
	c, err := chacha20.NewUnauthenticatedCipher(key[:], nonce[:])
	if err != nil {
		return nil, E("SeedCSPRNG", KindCapacityOverflow, err)
	}
	return &RNG{cipher: c}, nil
}

// advanceSeedLE increments seed, interpreted as a little-endian unsigned
// integer, by exactly one. Wrap-around (all 0xFF seed) is counter
// exhaustion and is treated as fatal per spec.md §4.3's exhaustion clause,
// extended here to the seed itself.
func advanceSeedLE(seed []byte) ([]byte, error) {
	be := make([]byte, len(seed))
	for i, b := range seed {
		be[len(seed)-1-i] = b
	}
	n := new(big.Int).SetBytes(be)
	n.Add(n, big.NewInt(1))

	max := new(big.Int).Lsh(big.NewInt(1), uint(len(seed)*8))
	if n.Cmp(max) >= 0 {
		return nil, io.ErrShortBuffer
	}

	nb := n.Bytes()
	beOut := make([]byte, len(seed))
	copy(beOut[len(seed)-len(nb):], nb)

	leOut := make([]byte, len(seed))
	for i, b := range beOut {
		leOut[len(seed)-1-i] = b
	}
	return leOut, nil
}

// Read implements io.Reader by pulling a fresh chunk of keystream on each
// call, satisfying the io.Reader contract the rest of the protocol engine
// relies on (rand.Read-alike).
func (r *RNG) Read(p []byte) (int, error) {
	for i := 0; i < len(p); i += len(r.zero) {
		end := i + len(r.zero)
		if end > len(p) {
			end = len(p)
		}
		r.cipher.XORKeyStream(p[i:end], r.zero[:end-i])
	}
	return len(p), nil
}

// Uint32 draws a little-endian uint32 from the stream.
func (r *RNG) Uint32() uint32 {
	var b [4]byte
	_, _ = r.Read(b[:])
	return binary.LittleEndian.Uint32(b[:])
}

// Jitter executes a pseudo-random delay of up to 255 spins drawn from the
// CSPRNG before a signature verification, per spec.md §4.1.2. It is a
// hardening adjunct only and is never used to derive security properties.
// Go has no portable cycle-accurate busy-wait, so a bounded Gosched loop
// stands in for the cortex_m::asm::delay the grounding source uses; see
// DESIGN.md.
func (r *RNG) Jitter() {
	var b [1]byte
	_, _ = r.Read(b[:])
	for i := byte(0); i < b[0]; i++ {
		runtime.Gosched()
	}
}
