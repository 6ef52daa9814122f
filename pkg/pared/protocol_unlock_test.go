package pared_test

import (
	"testing"
	"time"

	"github.com/ironkey-labs/pared/pkg/pared"
	"github.com/ironkey-labs/pared/pkg/pared/simplatform"
)

// runUnlock drives both sides of a car/fob unlock exchange concurrently,
// the way the two real main loops run as independent processes talking
// over a UART.
func runUnlock(f *fixture) (carErr, fobErr error) {
	carHostOut, _ := simplatform.NewSerialPair(200 * time.Millisecond)

	done := make(chan struct{}, 2)
	go func() {
		carErr = pared.CarHandleUnlock(f.carBoard, carHostOut, f.carStore, f.carRNG())
		done <- struct{}{}
	}()
	go func() {
		fobErr = pared.FobUnlockInitiate(f.fobBoard, f.fobStore, f.fobRNG())
		done <- struct{}{}
	}()
	<-done
	<-done
	return carErr, fobErr
}

func TestUnlockHappyPath(t *testing.T) {
	f := newFixture(t)
	carErr, fobErr := runUnlock(f)
	if carErr != nil {
		t.Fatalf("CarHandleUnlock: %v", carErr)
	}
	if fobErr != nil {
		t.Fatalf("FobUnlockInitiate: %v", fobErr)
	}
}

// TestP1ReplayResistance: a FeaturePackage captured from one unlock exchange
// must not be accepted against a later exchange's fresh nonce (spec.md §8
// P1).
func TestP1ReplayResistance(t *testing.T) {
	f := newFixture(t)

	rng := f.fobRNG()
	featRaw, err := f.fobStore.LoadSensitive(pared.FieldFeatureFlags)
	if err != nil {
		t.Fatalf("LoadSensitive(feature_flags): %v", err)
	}
	var enabled [3]byte
	copy(enabled[:], featRaw)

	pairedPrivRaw, err := f.fobStore.LoadSensitive(pared.FieldPairedPrivKey)
	if err != nil {
		t.Fatalf("LoadSensitive(paired_privkey): %v", err)
	}
	var privEnc [32]byte
	copy(privEnc[:], pairedPrivRaw)
	priv := pared.DecodePrivKey(privEnc)

	staleNonce, err := pared.DrawNonce(f.fobStore, rng)
	if err != nil {
		t.Fatalf("DrawNonce: %v", err)
	}
	staleDigest := pared.Hash(enabled[:], staleNonce[:])
	staleSig, err := pared.Sign(priv, staleDigest[:])
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	staleFP := &pared.FeaturePackage{EnabledFeatures: enabled, Digest: staleDigest, Signature: staleSig}

	carHostOut, _ := simplatform.NewSerialPair(200 * time.Millisecond)
	done := make(chan error, 1)
	go func() {
		done <- pared.CarHandleUnlock(f.carBoard, carHostOut, f.carStore, f.carRNG())
	}()

	// Fob side: consume the fresh challenge, then reply with the stale,
	// previously-captured FeaturePackage instead of a fresh one.
	buf := make([]byte, pared.ChallengeSize)
	if err := pared.ReadyReadExact(f.fobBoard, buf); err != nil {
		t.Fatalf("ReadyReadExact(challenge): %v", err)
	}
	if err := pared.ReadyWrite(f.fobBoard, staleFP.Encode()); err != nil {
		t.Fatalf("ReadyWrite(stale feature package): %v", err)
	}

	carErr := <-done
	if !pared.IsKind(carErr, pared.KindInvalidHash) && !pared.IsKind(carErr, pared.KindSignatureError) {
		t.Fatalf("want a replay to be rejected with an invalid-hash or signature error, got %v", carErr)
	}
}

// TestP2ForgeryResistance: without paired_privkey, no FeaturePackage over
// any challenge can verify; the car must emit FrameBad (spec.md §8 P2).
func TestP2ForgeryResistance(t *testing.T) {
	f := newFixture(t)

	forged, err := pared.GenerateSigningKey()
	if err != nil {
		t.Fatalf("GenerateSigningKey: %v", err)
	}

	carHostOut, _ := simplatform.NewSerialPair(200 * time.Millisecond)
	done := make(chan error, 1)
	go func() {
		done <- pared.CarHandleUnlock(f.carBoard, carHostOut, f.carStore, f.carRNG())
	}()

	buf := make([]byte, pared.ChallengeSize)
	if err := pared.ReadyReadExact(f.fobBoard, buf); err != nil {
		t.Fatalf("ReadyReadExact(challenge): %v", err)
	}
	chal, err := pared.DecodeChallenge(buf)
	if err != nil {
		t.Fatalf("DecodeChallenge: %v", err)
	}

	var enabled [3]byte
	digest := pared.Hash(enabled[:], chal.Nonce[:])
	sig, err := pared.Sign(forged, digest[:])
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	fp := &pared.FeaturePackage{EnabledFeatures: enabled, Digest: digest, Signature: sig}
	if err := pared.ReadyWrite(f.fobBoard, fp.Encode()); err != nil {
		t.Fatalf("ReadyWrite: %v", err)
	}

	carErr := <-done
	if !pared.IsKind(carErr, pared.KindSignatureError) {
		t.Fatalf("want KindSignatureError for a reply signed by an unpaired key, got %v", carErr)
	}
}

// TestP3StoreIntegrityFailsClosed: a single flipped bit in a sensitive
// field, with its tag unchanged, must be detected at load time rather than
// silently accepted (spec.md §8 P3, invariant I1).
func TestP3StoreIntegrityFailsClosed(t *testing.T) {
	f := newFixture(t)
	f.carStore.CorruptByte(pared.FieldCarAuthPrivKey, 0)

	if _, err := f.carStore.LoadSensitive(pared.FieldCarAuthPrivKey); !pared.IsKind(err, pared.KindInvalidHash) {
		t.Fatalf("want KindInvalidHash reading a corrupted field, got %v", err)
	}
}

func TestUnlockFeatureMessagesGateOnFlags(t *testing.T) {
	f := newFixture(t)
	if err := f.fobStore.StoreSensitive(pared.FieldFeatureFlags, []byte{1, 0, 1}); err != nil {
		t.Fatalf("seed feature flags: %v", err)
	}

	carHostOut, carHostIn := simplatform.NewSerialPair(200 * time.Millisecond)
	done := make(chan error, 2)
	go func() {
		done <- pared.CarHandleUnlock(f.carBoard, carHostOut, f.carStore, f.carRNG())
	}()
	go func() {
		done <- pared.FobUnlockInitiate(f.fobBoard, f.fobStore, f.fobRNG())
	}()
	if err := <-done; err != nil {
		t.Fatalf("unlock leg failed: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("unlock leg failed: %v", err)
	}

	// car's unlock message, then feature 1 and feature 3 messages (feature 2
	// is disabled and must be skipped).
	for i := 0; i < 3; i++ {
		status, err := carHostIn.ReadByteTimeout()
		if err != nil {
			t.Fatalf("reading host status byte %d: %v", i, err)
		}
		if status != 1 {
			t.Fatalf("status byte %d: want 1, got %d", i, status)
		}
		msg := make([]byte, 64)
		if err := carHostIn.ReadFull(msg); err != nil {
			t.Fatalf("reading message %d: %v", i, err)
		}
	}
}
