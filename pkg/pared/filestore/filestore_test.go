package filestore_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ironkey-labs/pared/pkg/pared"
	"github.com/ironkey-labs/pared/pkg/pared/filestore"
)

func TestSaveOpenRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fob.img")

	s := filestore.New(path, pared.FobLayout)
	s.Seed(pared.FieldCarAuthPubKey, make([]byte, pared.PubKeySize))
	s.Seed(pared.FieldPairedPrivKey, make([]byte, 32))
	s.Seed(pared.FieldCarID, []byte{1, 2, 3, 4})
	s.Seed(pared.FieldPinHash, make([]byte, pared.HashSize))
	s.Seed(pared.FieldFobSymmetricKey, make([]byte, 32))
	s.SeedPlain(pared.FieldPairingCooldownFlag, []byte{0})
	s.Seed(pared.FieldFeatureFlags, []byte{1, 0, 1})
	s.Seed(pared.FieldPackageVerifyingKey, make([]byte, pared.PubKeySize))
	s.SeedPlain(pared.FieldTextImageDigest, make([]byte, pared.HashSize))
	s.Seed(pared.FieldRNGSeed, make([]byte, pared.SeedSize))
	s.SeedPlain(pared.FieldNonceCounter, []byte{0, 0, 0, 0})

	if err := s.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reopened, err := filestore.Open(path, pared.FobLayout)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	flags, err := reopened.LoadSensitive(pared.FieldFeatureFlags)
	if err != nil {
		t.Fatalf("LoadSensitive(feature_flags): %v", err)
	}
	want := []byte{1, 0, 1}
	for i := range want {
		if flags[i] != want[i] {
			t.Fatalf("feature_flags mismatch at %d: got %v want %v", i, flags, want)
		}
	}

	carID, err := reopened.LoadSensitive(pared.FieldCarID)
	if err != nil {
		t.Fatalf("LoadSensitive(car_id): %v", err)
	}
	if carID[0] != 1 || carID[3] != 4 {
		t.Fatalf("car_id mismatch: %v", carID)
	}
}

func TestOpenRejectsTruncatedImage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "truncated.img")
	if err := os.WriteFile(path, []byte{1, 2, 3}, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := filestore.Open(path, pared.CarLayout); err == nil {
		t.Fatal("Open must reject an image shorter than its layout declares")
	}
}
