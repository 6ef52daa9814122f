package pared

import (
	"encoding/binary"
	"io"
)

// DrawNonce produces a fresh NonceSize-byte nonce: 20 random bytes drawn
// from rng, concatenated with the device's persistent 32-bit counter,
// which is advanced in store before the nonce is returned (spec.md §4.3).
// The same nonce must never repeat across a device's lifetime; counter
// wrap is fatal.
func DrawNonce(store Store, rng io.Reader) ([NonceSize]byte, error) {
	var nonce [NonceSize]byte

	raw, err := store.LoadPlain(FieldNonceCounter)
	if err != nil {
		return nonce, E("DrawNonce", KindEepromRead, err)
	}
	var counter uint32
	if len(raw) == 4 {
		counter = binary.LittleEndian.Uint32(raw)
	}
	if counter == 0xFFFFFFFF {
		return nonce, E("DrawNonce", KindCapacityOverflow, nil)
	}
	counter++

	next := make([]byte, 4)
	binary.LittleEndian.PutUint32(next, counter)
	if err := store.StorePlain(FieldNonceCounter, next); err != nil {
		return nonce, E("DrawNonce", KindEepromWrite, err)
	}

	if _, err := io.ReadFull(rng, nonce[:20]); err != nil {
		return nonce, E("DrawNonce", KindCapacityOverflow, err)
	}
	copy(nonce[20:], next)
	return nonce, nil
}
