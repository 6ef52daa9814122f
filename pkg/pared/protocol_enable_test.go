package pared_test

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/ironkey-labs/pared/pkg/pared"
	"github.com/ironkey-labs/pared/pkg/pared/simplatform"
)

// TestFeatureEnableHappyPath (P5, enable leg): matching signature and
// car_id enables the target feature at the correct bit position
// (spec.md §8 P5).
func TestFeatureEnableHappyPath(t *testing.T) {
	f := newFixture(t)

	var carIDLE, featureLE [4]byte
	binary.LittleEndian.PutUint32(carIDLE[:], f.carID)
	binary.LittleEndian.PutUint32(featureLE[:], 2)
	digest := pared.Hash(carIDLE[:], featureLE[:])
	sig, err := pared.Sign(f.packagePriv, digest[:])
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	pkg := &pared.EnablePackage{CarID: f.carID, FeatureNumber: 2, Digest: digest, Signature: sig}

	host, hostPeer := simplatform.NewSerialPair(200 * time.Millisecond)
	done := make(chan error, 1)
	go func() { done <- pared.FeatureEnable(host, f.fobStore, f.fobRNG()) }()

	if err := pared.ReadyWrite(hostPeer, pkg.Encode()); err != nil {
		t.Fatalf("ReadyWrite(enable package): %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("FeatureEnable: %v", err)
	}

	status, err := hostPeer.ReadByteTimeout()
	if err != nil {
		t.Fatalf("reading status: %v", err)
	}
	if status != pared.FrameOK {
		t.Fatalf("want FrameOK, got 0x%02x", status)
	}

	flags, err := f.fobStore.LoadSensitive(pared.FieldFeatureFlags)
	if err != nil {
		t.Fatalf("LoadSensitive(feature_flags): %v", err)
	}
	if flags[1] != 1 {
		t.Fatalf("want feature 2 bit set, got %v", flags)
	}
}

// TestFeatureEnableRejectsWrongCarID (P5): matching signature but mismatched
// car_id fails with KindInvalidCarId (spec.md §8 P5).
func TestFeatureEnableRejectsWrongCarID(t *testing.T) {
	f := newFixture(t)

	var carIDLE, featureLE [4]byte
	wrongCarID := f.carID + 1
	binary.LittleEndian.PutUint32(carIDLE[:], wrongCarID)
	binary.LittleEndian.PutUint32(featureLE[:], 1)
	digest := pared.Hash(carIDLE[:], featureLE[:])
	sig, err := pared.Sign(f.packagePriv, digest[:])
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	pkg := &pared.EnablePackage{CarID: wrongCarID, FeatureNumber: 1, Digest: digest, Signature: sig}

	host, hostPeer := simplatform.NewSerialPair(200 * time.Millisecond)
	done := make(chan error, 1)
	go func() { done <- pared.FeatureEnable(host, f.fobStore, f.fobRNG()) }()

	if err := pared.ReadyWrite(hostPeer, pkg.Encode()); err != nil {
		t.Fatalf("ReadyWrite: %v", err)
	}
	err = <-done
	if !pared.IsKind(err, pared.KindInvalidCarId) {
		t.Fatalf("want KindInvalidCarId, got %v", err)
	}
}

func TestFeatureEnableRejectsOutOfRangeFeature(t *testing.T) {
	f := newFixture(t)

	var carIDLE, featureLE [4]byte
	binary.LittleEndian.PutUint32(carIDLE[:], f.carID)
	binary.LittleEndian.PutUint32(featureLE[:], 7)
	digest := pared.Hash(carIDLE[:], featureLE[:])
	sig, err := pared.Sign(f.packagePriv, digest[:])
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	pkg := &pared.EnablePackage{CarID: f.carID, FeatureNumber: 7, Digest: digest, Signature: sig}

	host, hostPeer := simplatform.NewSerialPair(200 * time.Millisecond)
	done := make(chan error, 1)
	go func() { done <- pared.FeatureEnable(host, f.fobStore, f.fobRNG()) }()

	if err := pared.ReadyWrite(hostPeer, pkg.Encode()); err != nil {
		t.Fatalf("ReadyWrite: %v", err)
	}
	err = <-done
	if !pared.IsKind(err, pared.KindInvalidRegion) {
		t.Fatalf("want KindInvalidRegion, got %v", err)
	}
}

// TestFeatureEnableRejectsForeignSignature: a package signed by a key
// other than package_verifying_key must be rejected outright, and must
// not perturb the stored feature flags.
func TestFeatureEnableRejectsForeignSignature(t *testing.T) {
	f := newFixture(t)

	impostor, err := pared.GenerateSigningKey()
	if err != nil {
		t.Fatalf("GenerateSigningKey: %v", err)
	}

	var carIDLE, featureLE [4]byte
	binary.LittleEndian.PutUint32(carIDLE[:], f.carID)
	binary.LittleEndian.PutUint32(featureLE[:], 1)
	digest := pared.Hash(carIDLE[:], featureLE[:])
	sig, err := pared.Sign(impostor, digest[:])
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	pkg := &pared.EnablePackage{CarID: f.carID, FeatureNumber: 1, Digest: digest, Signature: sig}

	host, hostPeer := simplatform.NewSerialPair(200 * time.Millisecond)
	done := make(chan error, 1)
	go func() { done <- pared.FeatureEnable(host, f.fobStore, f.fobRNG()) }()

	if err := pared.ReadyWrite(hostPeer, pkg.Encode()); err != nil {
		t.Fatalf("ReadyWrite: %v", err)
	}
	err = <-done
	if !pared.IsKind(err, pared.KindSignatureError) {
		t.Fatalf("want KindSignatureError for a package signed by a foreign key, got %v", err)
	}

	flags, loadErr := f.fobStore.LoadSensitive(pared.FieldFeatureFlags)
	if loadErr != nil {
		t.Fatalf("LoadSensitive(feature_flags): %v", loadErr)
	}
	for i, b := range flags {
		if b != 0 {
			t.Fatalf("feature bit %d must not be set by a rejected package", i)
		}
	}
}
