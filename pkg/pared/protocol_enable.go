package pared

import "encoding/binary"

// FeatureEnable implements the fob's feature-enable handler, spec.md §4.7:
// the host delivers an EnablePackage; the fob validates the digest binding
// and signature, checks car_id, and sets the corresponding feature bit.
func FeatureEnable(host Serial, store Store, rng *RNG) error {
	verifyKeyRaw, err := store.LoadSensitive(FieldPackageVerifyingKey)
	if err != nil {
		SignalBad(host)
		return err
	}
	var verifyKeyEnc [PubKeySize]byte
	copy(verifyKeyEnc[:], verifyKeyRaw)
	verifyKey, err := DecodePubKey(verifyKeyEnc)
	if err != nil {
		SignalBad(host)
		return err
	}

	carIDRaw, err := store.LoadSensitive(FieldCarID)
	if err != nil {
		SignalBad(host)
		return err
	}
	carID := binary.LittleEndian.Uint32(carIDRaw)

	flagsRaw, err := store.LoadSensitive(FieldFeatureFlags)
	if err != nil {
		SignalBad(host)
		return err
	}
	var flags [3]byte
	copy(flags[:], flagsRaw)

	buf := make([]byte, EnablePackageSize)
	if err := ReadyReadExact(host, buf); err != nil {
		return err
	}
	pkg, err := DecodeEnablePackage(buf)
	if err != nil {
		SignalBad(host)
		return err
	}

	var carIDLE, featureLE [4]byte
	binary.LittleEndian.PutUint32(carIDLE[:], pkg.CarID)
	binary.LittleEndian.PutUint32(featureLE[:], pkg.FeatureNumber)
	digest := Hash(carIDLE[:], featureLE[:])

	rng.Jitter()
	if !Verify(verifyKey, pkg.Digest[:], pkg.Signature) {
		SignalBad(host)
		return E("FeatureEnable", KindSignatureError, nil)
	}
	if digest != pkg.Digest {
		SignalBad(host)
		return E("FeatureEnable", KindInvalidHash, nil)
	}

	if pkg.CarID != carID {
		SignalBad(host)
		return E("FeatureEnable", KindInvalidCarId, nil)
	}

	if pkg.FeatureNumber < 1 || pkg.FeatureNumber > 3 {
		SignalBad(host)
		return E("FeatureEnable", KindInvalidRegion, nil)
	}
	flags[pkg.FeatureNumber-1] = 1

	if err := store.StoreSensitive(FieldFeatureFlags, flags[:]); err != nil {
		SignalBad(host)
		return err
	}
	SignalOK(host)
	return nil
}
