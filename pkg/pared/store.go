package pared

// Field names a persistent secret or plain region, per spec.md §3.1. Field
// values are opaque byte slices whose length is fixed by the layout table
// the field belongs to (CarLayout or FobLayout); the firmware never assumes
// one field is adjacent to another in the backing store.
type Field string

// Car-owned fields.
const (
	FieldTextImageDigest Field = "text_image_digest"
	FieldRNGSeed         Field = "rng_seed"
	FieldPairedPubKey    Field = "paired_pubkey"
	FieldCarAuthPrivKey  Field = "car_auth_privkey"
	FieldUnlockMessage   Field = "unlock_message"
	FieldFeatureMessage1 Field = "feature_message_1"
	FieldFeatureMessage2 Field = "feature_message_2"
	FieldFeatureMessage3 Field = "feature_message_3"
	// FieldNonceCounter is the persistent 32-bit monotonic counter that
	// forms the suffix of every nonce drawn by this device (spec.md §4.3).
	// Present on both car and fob.
	FieldNonceCounter Field = "nonce_counter"
)

// Fob-owned fields.
const (
	FieldCarAuthPubKey        Field = "car_auth_pubkey"
	FieldPairedPrivKey        Field = "paired_privkey"
	FieldCarID                Field = "car_id"
	FieldPinHash              Field = "pin_hash"
	FieldFobSymmetricKey      Field = "fob_symmetric_key"
	FieldPairingCooldownFlag  Field = "pairing_cooldown_flag"
	FieldFeatureFlags         Field = "feature_flags"
	FieldPackageVerifyingKey  Field = "package_verifying_key"
)

// Layout records the field widths a given device role expects, shared
// between the firmware packages and cmd/provision so that offsets can
// never drift between producer and consumer (spec.md §6.3).
type Layout map[Field]int

// CarLayout is the car's persistent region: field -> byte width of the
// value (the integrity tag, where present, is HashSize bytes in addition).
var CarLayout = Layout{
	FieldTextImageDigest: HashSize,
	FieldRNGSeed:         SeedSize,
	FieldPairedPubKey:    PubKeySize,
	FieldCarAuthPrivKey:  32,
	FieldUnlockMessage:   64,
	FieldFeatureMessage1: 64,
	FieldFeatureMessage2: 64,
	FieldFeatureMessage3: 64,
	FieldNonceCounter:    4,
}

// FobLayout is the fob's persistent region.
var FobLayout = Layout{
	FieldTextImageDigest:     HashSize,
	FieldRNGSeed:             SeedSize,
	FieldCarAuthPubKey:       PubKeySize,
	FieldPairedPrivKey:       32,
	FieldCarID:               4,
	FieldPinHash:             HashSize,
	FieldFobSymmetricKey:     32,
	FieldPairingCooldownFlag: 1,
	FieldFeatureFlags:        3,
	FieldPackageVerifyingKey: PubKeySize,
	FieldNonceCounter:        4,
}

// SensitiveFields are the fields stored as (value, integrity_tag) pairs,
// per spec.md §3.1; every other field in a Layout is a plain field.
var SensitiveFields = map[Field]bool{
	FieldRNGSeed:             true,
	FieldPairedPubKey:        true,
	FieldCarAuthPrivKey:      true,
	FieldCarAuthPubKey:       true,
	FieldPairedPrivKey:       true,
	FieldCarID:               true,
	FieldFobSymmetricKey:     true,
	FieldFeatureFlags:        true,
	FieldPackageVerifyingKey: true,
	// pin_hash is itself a commitment; it carries its own integrity tag
	// too so a corrupted commitment fails closed rather than silently
	// admitting a different PIN.
	FieldPinHash: true,
	// text_image_digest's "tag" is the boot-time recomputed image digest
	// itself (spec.md §3.1/I4); it is handled by VerifyBootImage, not by
	// the generic LoadSensitive/StoreSensitive pair.
}

// IsPaired reports whether the three fields invariant I3 requires are all
// present and pass their integrity check.
func IsPaired(store Store) bool {
	for _, f := range []Field{FieldCarID, FieldCarAuthPubKey, FieldPairedPrivKey} {
		if _, err := store.LoadSensitive(f); err != nil {
			return false
		}
	}
	return true
}

// CommitPairing atomically writes the three (really four, counting
// pin_hash) fields a successful pairing hands off, per invariant I3 and
// spec.md §4.6 step 3d. "Atomically" here means: no partial write is
// observable by a concurrent reader, which in this single-threaded,
// cooperative model reduces to "write them all before yielding control
// back to the main loop" — there is no possibility of another logical
// operation interleaving.
func CommitPairing(store Store, carID, carAuthPubKey, pairedPrivKey, pinHash []byte) error {
	if err := store.StoreSensitive(FieldCarID, carID); err != nil {
		return err
	}
	if err := store.StoreSensitive(FieldCarAuthPubKey, carAuthPubKey); err != nil {
		return err
	}
	if err := store.StoreSensitive(FieldPairedPrivKey, pairedPrivKey); err != nil {
		return err
	}
	if err := store.StoreSensitive(FieldPinHash, pinHash); err != nil {
		return err
	}
	return nil
}
