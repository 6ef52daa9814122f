// Command packagetool builds a signed feature-enable package for a given
// car and feature number, the Go analogue of original_source's
// package_feature host tool: same car_id/feature_number/signing-key inputs,
// written out as a binary file enabletool later delivers to a fob.
package main

import (
	"crypto/ecdsa"
	"encoding/binary"
	"flag"
	"log/slog"
	"os"

	"github.com/ironkey-labs/pared/internal/keyfile"
	"github.com/ironkey-labs/pared/pkg/pared"
)

func main() {
	packagePath := flag.String("package-file", "", "path to write the signed package to")
	carID := flag.Uint("car-id", 0, "car identifier to authorise the feature for")
	featureNumber := flag.Uint("feature-number", 0, "feature number to enable (1-3)")
	signingKeyPath := flag.String("signing-key", "", "path to the PEM-encoded package signing private key")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if *packagePath == "" || *signingKeyPath == "" {
		slog.Error("-package-file and -signing-key are required")
		os.Exit(1)
	}

	signingKey, err := keyfile.LoadPrivateKey(*signingKeyPath)
	if err != nil {
		slog.Error("load signing key failed", "error", err)
		os.Exit(1)
	}

	pkg, err := build(uint32(*carID), uint32(*featureNumber), signingKey)
	if err != nil {
		slog.Error("build package failed", "error", err)
		os.Exit(1)
	}

	if err := os.WriteFile(*packagePath, pkg.Encode(), 0o644); err != nil {
		slog.Error("write package file failed", "error", err)
		os.Exit(1)
	}
	slog.Info("package written", "path", *packagePath, "car_id", *carID, "feature_number", *featureNumber)
}

func build(carID, featureNumber uint32, signingKey *ecdsa.PrivateKey) (*pared.EnablePackage, error) {
	var carIDLE, featureLE [4]byte
	binary.LittleEndian.PutUint32(carIDLE[:], carID)
	binary.LittleEndian.PutUint32(featureLE[:], featureNumber)
	digest := pared.Hash(carIDLE[:], featureLE[:])

	sig, err := pared.Sign(signingKey, digest[:])
	if err != nil {
		return nil, err
	}

	return &pared.EnablePackage{
		CarID:         carID,
		FeatureNumber: featureNumber,
		Digest:        digest,
		Signature:     sig,
	}, nil
}
