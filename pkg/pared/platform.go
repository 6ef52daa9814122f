package pared

import "time"

// Serial abstracts the byte-serial link the Platform Abstraction exposes:
// send/receive with timeouts, per spec.md §1 and §4.2. Concrete
// implementations live in pkg/pared/simplatform (in-memory, for tests) and
// pkg/pared/netserial (net.Conn-backed, for the car/fob binaries).
type Serial interface {
	// ReadByte blocks indefinitely for the next byte.
	ReadByte() (byte, error)
	// ReadByteTimeout polls for the next byte, returning KindUartTimeout
	// if none arrives within the implementation's configured budget.
	ReadByteTimeout() (byte, error)
	// WriteByte writes a single byte.
	WriteByte(b byte) error
	// Write writes all of p.
	Write(p []byte) error
	// ReadFull reads exactly len(buf) bytes, each byte subject to the
	// same timeout budget as ReadByteTimeout.
	ReadFull(buf []byte) error
	// Flush drains all bytes currently readable without blocking.
	Flush()
}

// Store abstracts the word-addressable, power-loss-tolerant persistent
// store: typed sensitive fields protected by an integrity tag, and plain
// fields with no tag (spec.md §3.1).
type Store interface {
	// LoadSensitive reads field's value, verifying its companion
	// integrity tag. Fails closed (returns an *Error with KindInvalidHash)
	// on mismatch, per invariant I1.
	LoadSensitive(field Field) ([]byte, error)
	// StoreSensitive writes value and recomputes field's integrity tag.
	StoreSensitive(field Field, value []byte) error
	// LoadPlain reads a field with no integrity tag (e.g. unlock_message).
	LoadPlain(field Field) ([]byte, error)
	// StorePlain writes a field with no integrity tag.
	StorePlain(field Field, value []byte) error
	// Lock disables runtime writes to the fields spec.md §3.4 marks
	// read-only after provisioning (car_auth_privkey, paired_pubkey,
	// text_image_digest, fob_symmetric_key). Subsequent StoreSensitive /
	// StorePlain calls against a locked field return KindInvalidFlashAccess.
	Lock(fields ...Field)
}

// Timer abstracts a monotonic millisecond timer with cancellable timeouts.
type Timer interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// Button abstracts debounced push-button edge detection.
type Button interface {
	// Pressed reports whether a debounced press edge has occurred since
	// the last call, clearing the edge latch.
	Pressed() bool
}

// LED abstracts a status LED output.
type LED interface {
	Set(on bool)
}

// EntropySource abstracts the hardware entropy hook used only to seed
// provisioning-time key material; the CSPRNG itself is seeded from the
// persistent rng_seed (spec.md §1, §4.1.1), not from this interface
// directly, at runtime.
type EntropySource interface {
	Read(p []byte) (int, error)
}
