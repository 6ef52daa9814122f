package pared_test

import (
	"crypto/ecdsa"
	"encoding/binary"
	"testing"
	"time"

	"github.com/ironkey-labs/pared/pkg/pared"
	"github.com/ironkey-labs/pared/pkg/pared/simplatform"
)

// fixture wires up a paired car and fob, each with its own store and
// cross-connected serial pair, the way cmd/car and cmd/fob are wired over
// netserial in production. Tests mutate the stores directly to exercise
// failure paths rather than going through cmd/provision.
type fixture struct {
	t *testing.T

	carStore *simplatform.Store
	fobStore *simplatform.Store

	carAuthPriv  *ecdsa.PrivateKey
	pairedPriv   *ecdsa.PrivateKey
	packagePriv  *ecdsa.PrivateKey
	carID        uint32
	pin          [pared.PINSize]byte

	carBoard, fobBoard *simplatform.Serial // unlock exchange link
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	carAuthPriv, err := pared.GenerateSigningKey()
	if err != nil {
		t.Fatalf("GenerateSigningKey car_auth: %v", err)
	}
	pairedPriv, err := pared.GenerateSigningKey()
	if err != nil {
		t.Fatalf("GenerateSigningKey paired: %v", err)
	}
	packagePriv, err := pared.GenerateSigningKey()
	if err != nil {
		t.Fatalf("GenerateSigningKey package: %v", err)
	}

	carID := uint32(0xC0FFEE)
	carIDBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(carIDBuf, carID)

	carStore := simplatform.NewStore()
	carStore.Seed(pared.FieldTextImageDigest, zero(pared.HashSize))
	carStore.SeedPlain(pared.FieldTextImageDigest, zero(pared.HashSize))
	carStore.Seed(pared.FieldRNGSeed, zero(pared.SeedSize))
	carStore.Seed(pared.FieldPairedPubKey, sliceOf(pared.EncodePubKey(&pairedPriv.PublicKey)))
	carStore.Seed(pared.FieldCarAuthPrivKey, sliceOf(pared.EncodePrivKey(carAuthPriv)))
	carStore.SeedPlain(pared.FieldNonceCounter, []byte{0, 0, 0, 0})
	carStore.SeedPlain(pared.FieldUnlockMessage, pad64([]byte("car unlocked")))
	carStore.SeedPlain(pared.FieldFeatureMessage1, pad64([]byte("heated seats enabled")))
	carStore.SeedPlain(pared.FieldFeatureMessage2, pad64([]byte("remote start enabled")))
	carStore.SeedPlain(pared.FieldFeatureMessage3, pad64([]byte("valet mode enabled")))

	fobStore := simplatform.NewStore()
	fobStore.SeedPlain(pared.FieldTextImageDigest, zero(pared.HashSize))
	fobStore.Seed(pared.FieldRNGSeed, zero(pared.SeedSize))
	fobStore.Seed(pared.FieldCarAuthPubKey, sliceOf(pared.EncodePubKey(&carAuthPriv.PublicKey)))
	fobStore.Seed(pared.FieldPairedPrivKey, sliceOf(pared.EncodePrivKey(pairedPriv)))
	fobStore.Seed(pared.FieldCarID, carIDBuf)
	pin := [pared.PINSize]byte{1, 2, 3, 4}
	fobStore.Seed(pared.FieldPinHash, sliceOf(pared.Hash(pin[:])))
	fobStore.Seed(pared.FieldFobSymmetricKey, zero(32))
	fobStore.SeedPlain(pared.FieldPairingCooldownFlag, []byte{0})
	fobStore.Seed(pared.FieldFeatureFlags, []byte{0, 0, 0})
	fobStore.Seed(pared.FieldPackageVerifyingKey, sliceOf(pared.EncodePubKey(&packagePriv.PublicKey)))
	fobStore.SeedPlain(pared.FieldNonceCounter, []byte{0, 0, 0, 0})

	carBoard, fobBoard := simplatform.NewSerialPair(200 * time.Millisecond)

	return &fixture{
		t:           t,
		carStore:    carStore,
		fobStore:    fobStore,
		carAuthPriv: carAuthPriv,
		pairedPriv:  pairedPriv,
		packagePriv: packagePriv,
		carID:       carID,
		pin:         pin,
		carBoard:    carBoard,
		fobBoard:    fobBoard,
	}
}

func (f *fixture) carRNG() *pared.RNG {
	rng, err := pared.SeedCSPRNG(f.carStore)
	if err != nil {
		f.t.Fatalf("SeedCSPRNG(car): %v", err)
	}
	return rng
}

func (f *fixture) fobRNG() *pared.RNG {
	rng, err := pared.SeedCSPRNG(f.fobStore)
	if err != nil {
		f.t.Fatalf("SeedCSPRNG(fob): %v", err)
	}
	return rng
}

func zero(n int) []byte { return make([]byte, n) }

func sliceOf[N interface{ ~[32]byte | ~[64]byte | ~[68]byte }](arr N) []byte {
	switch v := any(arr).(type) {
	case [32]byte:
		return v[:]
	case [64]byte:
		return v[:]
	case [68]byte:
		return v[:]
	}
	return nil
}

func pad64(msg []byte) []byte {
	buf := make([]byte, 64)
	copy(buf, msg)
	return buf
}
