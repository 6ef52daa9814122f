// Command provision builds a fresh car/fob persistent-secret image pair and
// the PEM key files the host tools sign and verify with, the way
// original_source's gen_eeprom lays down an eCTF design's EEPROM image at
// build time. Grounded on the teacher's minter: flag-driven, slog for
// progress, one-shot CLI.
package main

import (
	"crypto/sha256"
	"encoding/binary"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ironkey-labs/pared/internal/keyfile"
	"github.com/ironkey-labs/pared/pkg/pared"
	"github.com/ironkey-labs/pared/pkg/pared/filestore"
)

func main() {
	outDir := flag.String("out-dir", "./provisioned", "directory to write the car/fob images and key files into")
	carID := flag.Uint("car-id", 1, "32-bit car identifier shared by the car and its paired fob")
	pin := flag.String("pin", "123456", "6-hex-digit pairing PIN, shared out of band with a paired fob's owner")
	imageFile := flag.String("image-file", "", "path to the built firmware image to digest into text_image_digest (omit to seed an all-zero placeholder, e.g. for simplatform testing)")
	unlockMessage := flag.String("unlock-message", "Vehicle unlocked.", "message the car emits to its host on a successful unlock")
	feature1 := flag.String("feature-1-message", "Heated seats enabled.", "message emitted when feature 1 is enabled")
	feature2 := flag.String("feature-2-message", "Remote start enabled.", "message emitted when feature 2 is enabled")
	feature3 := flag.String("feature-3-message", "Valet mode enabled.", "message emitted when feature 3 is enabled")
	verbose := flag.Bool("v", false, "enable debug logging")
	logFormat := flag.String("log-format", "text", "log format: text or json")
	flag.Parse()

	configureLogging(*verbose, *logFormat)

	pinValue, err := parsePIN(*pin)
	if err != nil {
		slog.Error("invalid -pin", "error", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		slog.Error("create out-dir failed", "error", err)
		os.Exit(1)
	}

	imageDigest, err := digestImage(*imageFile)
	if err != nil {
		slog.Error("digest image failed", "error", err)
		os.Exit(1)
	}

	if err := run(*outDir, uint32(*carID), uint32(pinValue), imageDigest, *unlockMessage, *feature1, *feature2, *feature3); err != nil {
		slog.Error("provisioning failed", "error", err)
		os.Exit(1)
	}
	slog.Info("provisioning complete", "out_dir", *outDir, "car_id", uint32(*carID))
}

// parsePIN requires exactly 6 hex digits, matching original_source's
// pair_tool parse_pin (spec.md's "6-hex-digit" pairing PIN, §4.6/§6.2).
func parsePIN(s string) (uint64, error) {
	if len(s) != 6 {
		return 0, fmt.Errorf("PIN must be exactly 6 hex digits, got %d characters", len(s))
	}
	return strconv.ParseUint(s, 16, 32)
}

func configureLogging(verbose bool, format string) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, opts)))
	} else {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, opts)))
	}
}

func digestImage(path string) ([pared.HashSize]byte, error) {
	var out [pared.HashSize]byte
	if path == "" {
		return out, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return out, fmt.Errorf("read image file: %w", err)
	}
	digest := pared.Hash(raw)
	return digest, nil
}

func run(outDir string, carID, pin uint32, imageDigest [pared.HashSize]byte, unlockMessage, f1, f2, f3 string) error {
	carAuthPriv, err := pared.GenerateSigningKey()
	if err != nil {
		return fmt.Errorf("generate car_auth key: %w", err)
	}
	pairedPriv, err := pared.GenerateSigningKey()
	if err != nil {
		return fmt.Errorf("generate paired key: %w", err)
	}
	packagePriv, err := pared.GenerateSigningKey()
	if err != nil {
		return fmt.Errorf("generate package signing key: %w", err)
	}

	if err := keyfile.SavePrivateKey(filepath.Join(outDir, "package_signing_key.pem"), packagePriv); err != nil {
		return err
	}
	if err := keyfile.SavePublicKey(filepath.Join(outDir, "package_verifying_key.pem"), &packagePriv.PublicKey); err != nil {
		return err
	}

	rngSeed := sha256.Sum256([]byte(fmt.Sprintf("pared-seed-car-%d", carID)))
	fobRNGSeed := sha256.Sum256([]byte(fmt.Sprintf("pared-seed-fob-%d", carID)))

	carIDBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(carIDBuf, carID)
	pinBuf := make([]byte, pared.PINSize)
	binary.LittleEndian.PutUint32(pinBuf, pin)
	pinHash := pared.Hash(pinBuf)

	fobSymmetricKey := sha256.Sum256([]byte(fmt.Sprintf("pared-fob-symmetric-%d", carID)))

	car := filestore.New(filepath.Join(outDir, "car.img"), pared.CarLayout)
	car.SeedPlain(pared.FieldTextImageDigest, imageDigest[:])
	car.Seed(pared.FieldRNGSeed, rngSeed[:])
	car.Seed(pared.FieldPairedPubKey, sliceOf68(pared.EncodePubKey(&pairedPriv.PublicKey)))
	car.Seed(pared.FieldCarAuthPrivKey, sliceOf32(pared.EncodePrivKey(carAuthPriv)))
	car.SeedPlain(pared.FieldNonceCounter, []byte{0, 0, 0, 0})
	car.SeedPlain(pared.FieldUnlockMessage, pad(unlockMessage, pared.CarLayout[pared.FieldUnlockMessage]))
	car.SeedPlain(pared.FieldFeatureMessage1, pad(f1, pared.CarLayout[pared.FieldFeatureMessage1]))
	car.SeedPlain(pared.FieldFeatureMessage2, pad(f2, pared.CarLayout[pared.FieldFeatureMessage2]))
	car.SeedPlain(pared.FieldFeatureMessage3, pad(f3, pared.CarLayout[pared.FieldFeatureMessage3]))
	if err := car.Save(); err != nil {
		return fmt.Errorf("save car image: %w", err)
	}

	fob := filestore.New(filepath.Join(outDir, "fob.img"), pared.FobLayout)
	fob.SeedPlain(pared.FieldTextImageDigest, imageDigest[:])
	fob.Seed(pared.FieldRNGSeed, fobRNGSeed[:])
	fob.Seed(pared.FieldCarAuthPubKey, sliceOf68(pared.EncodePubKey(&carAuthPriv.PublicKey)))
	fob.Seed(pared.FieldPairedPrivKey, sliceOf32(pared.EncodePrivKey(pairedPriv)))
	fob.Seed(pared.FieldCarID, carIDBuf)
	fob.Seed(pared.FieldPinHash, sliceOf32h(pinHash))
	fob.Seed(pared.FieldFobSymmetricKey, fobSymmetricKey[:])
	fob.SeedPlain(pared.FieldPairingCooldownFlag, []byte{0})
	fob.Seed(pared.FieldFeatureFlags, []byte{0, 0, 0})
	fob.Seed(pared.FieldPackageVerifyingKey, sliceOf68(pared.EncodePubKey(&packagePriv.PublicKey)))
	fob.SeedPlain(pared.FieldNonceCounter, []byte{0, 0, 0, 0})
	if err := fob.Save(); err != nil {
		return fmt.Errorf("save fob image: %w", err)
	}

	return nil
}

func sliceOf68(arr [pared.PubKeySize]byte) []byte { return arr[:] }
func sliceOf32(arr [32]byte) []byte               { return arr[:] }
func sliceOf32h(arr [pared.HashSize]byte) []byte  { return arr[:] }

func pad(s string, width int) []byte {
	buf := make([]byte, width)
	copy(buf, s)
	return buf
}
