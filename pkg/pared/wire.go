package pared

import "encoding/binary"

// The wire structs below are fixed-size records, copied directly to and
// from byte buffers with field-level accessor methods — never parsed with
// variable-length logic on the hot path (spec.md §9). Multi-byte numeric
// fields are little-endian (spec.md §4.2).

// Challenge is the car's signed nonce (spec.md §3.2, §4.4).
type Challenge struct {
	Nonce     [NonceSize]byte
	Signature [SignatureSize]byte
}

// ChallengeSize is the wire size of a Challenge.
const ChallengeSize = NonceSize + SignatureSize

// Encode serialises c to a fixed ChallengeSize buffer.
func (c *Challenge) Encode() []byte {
	buf := make([]byte, ChallengeSize)
	copy(buf[0:NonceSize], c.Nonce[:])
	copy(buf[NonceSize:], c.Signature[:])
	return buf
}

// DecodeChallenge parses buf (must be ChallengeSize bytes) into a Challenge.
func DecodeChallenge(buf []byte) (*Challenge, error) {
	if len(buf) != ChallengeSize {
		return nil, E("DecodeChallenge", KindInvalidLen, nil)
	}
	c := &Challenge{}
	copy(c.Nonce[:], buf[0:NonceSize])
	copy(c.Signature[:], buf[NonceSize:])
	return c, nil
}

// FeaturePackage is the fob's signed reply to a car challenge (spec.md
// §3.2, §6.1): 3 enabled-feature bytes, a 32-byte digest, a 64-byte
// signature, and a 1-byte alignment pad.
type FeaturePackage struct {
	EnabledFeatures [3]byte
	Digest          [HashSize]byte
	Signature       [SignatureSize]byte
}

// FeaturePackageSize is the wire size of a FeaturePackage, including its
// single alignment pad byte.
const FeaturePackageSize = 3 + 1 + HashSize + SignatureSize

func (f *FeaturePackage) Encode() []byte {
	buf := make([]byte, FeaturePackageSize)
	copy(buf[0:3], f.EnabledFeatures[:])
	// buf[3] is the alignment pad, left zero.
	copy(buf[4:4+HashSize], f.Digest[:])
	copy(buf[4+HashSize:], f.Signature[:])
	return buf
}

func DecodeFeaturePackage(buf []byte) (*FeaturePackage, error) {
	if len(buf) != FeaturePackageSize {
		return nil, E("DecodeFeaturePackage", KindInvalidLen, nil)
	}
	f := &FeaturePackage{}
	copy(f.EnabledFeatures[:], buf[0:3])
	copy(f.Digest[:], buf[4:4+HashSize])
	copy(f.Signature[:], buf[4+HashSize:])
	return f, nil
}

// FeatureBit reports whether feature index i (0..2) is set in p.
func (f *FeaturePackage) FeatureBit(i int) bool {
	if i < 0 || i >= len(f.EnabledFeatures) {
		return false
	}
	return f.EnabledFeatures[i] != 0
}

// EnablePackage authorises one feature for one car (spec.md §3.2, §4.7).
type EnablePackage struct {
	CarID         uint32
	FeatureNumber uint32
	Digest        [HashSize]byte
	Signature     [SignatureSize]byte
}

// EnablePackageSize is the wire size of an EnablePackage.
const EnablePackageSize = 4 + 4 + HashSize + SignatureSize

func (p *EnablePackage) Encode() []byte {
	buf := make([]byte, EnablePackageSize)
	binary.LittleEndian.PutUint32(buf[0:4], p.CarID)
	binary.LittleEndian.PutUint32(buf[4:8], p.FeatureNumber)
	copy(buf[8:8+HashSize], p.Digest[:])
	copy(buf[8+HashSize:], p.Signature[:])
	return buf
}

func DecodeEnablePackage(buf []byte) (*EnablePackage, error) {
	if len(buf) != EnablePackageSize {
		return nil, E("DecodeEnablePackage", KindInvalidLen, nil)
	}
	p := &EnablePackage{}
	p.CarID = binary.LittleEndian.Uint32(buf[0:4])
	p.FeatureNumber = binary.LittleEndian.Uint32(buf[4:8])
	copy(p.Digest[:], buf[8:8+HashSize])
	copy(p.Signature[:], buf[8+HashSize:])
	return p, nil
}

// PairingSecrets is the opaque blob transferred between peer fobs during
// pairing (spec.md §3.2, §4.6): car_id, car_auth_pubkey, paired_privkey,
// pin_hash, in a fixed-layout struct with well-defined offsets.
type PairingSecrets struct {
	CarID         uint32
	CarAuthPubKey [PubKeySize]byte
	PairedPrivKey [32]byte
	PinHash       [HashSize]byte
}

// PairingSecretsSize is the plaintext wire size of a PairingSecrets record.
const PairingSecretsSize = 4 + PubKeySize + 32 + HashSize

func (s *PairingSecrets) Encode() []byte {
	buf := make([]byte, PairingSecretsSize)
	binary.LittleEndian.PutUint32(buf[0:4], s.CarID)
	off := 4
	copy(buf[off:off+PubKeySize], s.CarAuthPubKey[:])
	off += PubKeySize
	copy(buf[off:off+32], s.PairedPrivKey[:])
	off += 32
	copy(buf[off:off+HashSize], s.PinHash[:])
	return buf
}

func DecodePairingSecrets(buf []byte) (*PairingSecrets, error) {
	if len(buf) != PairingSecretsSize {
		return nil, E("DecodePairingSecrets", KindInvalidLen, nil)
	}
	s := &PairingSecrets{}
	s.CarID = binary.LittleEndian.Uint32(buf[0:4])
	off := 4
	copy(s.CarAuthPubKey[:], buf[off:off+PubKeySize])
	off += PubKeySize
	copy(s.PairedPrivKey[:], buf[off:off+32])
	off += 32
	copy(s.PinHash[:], buf[off:off+HashSize])
	return s, nil
}
