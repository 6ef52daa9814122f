package pared

// VerifyBootImage recomputes the digest of the executable image region and
// compares it to the persisted text_image_digest, per spec.md §3.3 I4 and
// §4.8 step 2. imageDigest is supplied by the caller (computed over
// whatever the platform considers its ".text" region — out of this core's
// scope per spec.md §1) rather than recomputed here.
//
// On mismatch the caller must halt immediately without emitting any wire
// traffic; this function only reports the mismatch, it does not halt the
// process itself, since "halt" is a platform-level action.
func VerifyBootImage(store Store, imageDigest [HashSize]byte) error {
	want, err := store.LoadPlain(FieldTextImageDigest)
	if err != nil {
		return E("VerifyBootImage", KindInvalidHash, err)
	}
	if len(want) != HashSize {
		return E("VerifyBootImage", KindInvalidHash, nil)
	}
	for i := 0; i < HashSize; i++ {
		if want[i] != imageDigest[i] {
			return E("VerifyBootImage", KindInvalidHash, nil)
		}
	}
	return nil
}

// RuntimeWriteLockFields are the fields spec.md §3.4 marks read-only once a
// car has been provisioned: the firmware disables flash writes to them at
// boot. Fob devices lock only fob_symmetric_key and text_image_digest (see
// BootFob); the rest of a fob's fields may be rewritten, by pairing
// (paired_privkey et al.) or by feature-enable (feature_flags).
var RuntimeWriteLockFields = []Field{
	FieldCarAuthPrivKey,
	FieldPairedPubKey,
	FieldTextImageDigest,
}

// BootCar runs the car boot sequence of spec.md §4.8: verify the image
// digest, then seed the CSPRNG, then lock the car's read-only fields.
// Returns the seeded RNG ready for the main loop.
func BootCar(store Store, imageDigest [HashSize]byte) (*RNG, error) {
	if err := VerifyBootImage(store, imageDigest); err != nil {
		return nil, err
	}
	rng, err := SeedCSPRNG(store)
	if err != nil {
		return nil, err
	}
	store.Lock(RuntimeWriteLockFields...)
	return rng, nil
}

// BootFob runs the fob boot sequence of spec.md §4.8. fob_symmetric_key is
// the fob's runtime-read-only field (spec.md §3.4).
func BootFob(store Store, imageDigest [HashSize]byte) (*RNG, error) {
	if err := VerifyBootImage(store, imageDigest); err != nil {
		return nil, err
	}
	rng, err := SeedCSPRNG(store)
	if err != nil {
		return nil, err
	}
	store.Lock(FieldFobSymmetricKey, FieldTextImageDigest)
	return rng, nil
}
