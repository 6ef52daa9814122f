// Package pared implements the cryptographic protocols and on-device state
// machines of a Paired Automotive Remote Entry and Disarm (PARED) system:
// the car and fob firmware cores, independent of any chip-specific platform
// code.
package pared

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"math/big"

	"golang.org/x/crypto/blake2s"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// NonceSize is the width of the AEAD nonce and of wire nonces: 20
	// random bytes plus a 4-byte monotonic counter.
	NonceSize = 24
	// TagSize is the AEAD authentication tag width.
	TagSize = 16
	// HashSize is the width of the domain hash used for integrity tags
	// and digest bindings.
	HashSize = 32
	// SignatureSize is the fixed r||s encoding of a P-256 ECDSA signature.
	SignatureSize = 64
	// PubKeySize is the uncompressed point encoding (0x04||X||Y), padded
	// by 3 zero bytes to a 4-byte-aligned 68 bytes.
	PubKeySize = 68
	pubKeyRaw  = 65
)

// Curve is the 256-bit curve all PARED signatures are made over.
func Curve() elliptic.Curve { return elliptic.P256() }

// Hash computes the domain hash used for persistent integrity tags and
// challenge/feature-package digest binding. 32-byte BLAKE2s-256 output,
// matching the grounding source's Blake2s256 choice.
func Hash(parts ...[]byte) [HashSize]byte {
	h, err := blake2s.New256(nil)
	if err != nil {
		// blake2s.New256 only errors on an oversized key, and we pass none.
		panic(err)
	}
	for _, p := range parts {
		h.Write(p)
	}
	var out [HashSize]byte
	copy(out[:], h.Sum(nil))
	return out
}

// KeyedHash is an HMAC-SHA256 MAC for wherever a keyed integrity check is
// preferable to the unkeyed domain hash. PIN commitments (pin_hash) do not
// use it: they are the unkeyed Hash of the 4-byte PIN, with no salt.
func KeyedHash(key, data []byte) [HashSize]byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	var out [HashSize]byte
	copy(out[:], mac.Sum(nil))
	return out
}

// AEADEncrypt encrypts plaintext in place semantics (returns a fresh
// ciphertext of the same length) under key/nonce, with no associated data,
// per spec.md §4.1. Returns ciphertext and a detached tag.
func AEADEncrypt(key [32]byte, nonce [NonceSize]byte, plaintext []byte) (ciphertext []byte, tag [TagSize]byte, err error) {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, tag, E("AEADEncrypt", KindEncryptionFailure, err)
	}
	sealed := aead.Seal(nil, nonce[:], plaintext, nil)
	ciphertext = sealed[:len(sealed)-chacha20poly1305.Overhead]
	copy(tag[:], sealed[len(sealed)-chacha20poly1305.Overhead:])
	return ciphertext, tag, nil
}

// AEADDecrypt authenticates and decrypts ciphertext||tag under key/nonce.
func AEADDecrypt(key [32]byte, nonce [NonceSize]byte, ciphertext []byte, tag [TagSize]byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, E("AEADDecrypt", KindDecryptionFailure, err)
	}
	sealed := make([]byte, 0, len(ciphertext)+TagSize)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag[:]...)
	plaintext, err := aead.Open(nil, nonce[:], sealed, nil)
	if err != nil {
		return nil, E("AEADDecrypt", KindDecryptionFailure, err)
	}
	return plaintext, nil
}

// GenerateSigningKey creates a fresh P-256 ECDSA key pair.
func GenerateSigningKey() (*ecdsa.PrivateKey, error) {
	return ecdsa.GenerateKey(Curve(), rand.Reader)
}

// Sign produces a fixed-size r||s signature over msg.
func Sign(priv *ecdsa.PrivateKey, msg []byte) ([SignatureSize]byte, error) {
	var out [SignatureSize]byte
	r, s, err := ecdsa.Sign(rand.Reader, priv, msg)
	if err != nil {
		return out, E("Sign", KindSignatureError, err)
	}
	rb := r.Bytes()
	sb := s.Bytes()
	if len(rb) > 32 || len(sb) > 32 {
		return out, E("Sign", KindSignatureError, errors.New("scalar too large"))
	}
	copy(out[32-len(rb):32], rb)
	copy(out[64-len(sb):64], sb)
	return out, nil
}

// Verify checks a fixed-size r||s signature over msg against pub.
func Verify(pub *ecdsa.PublicKey, msg []byte, sig [SignatureSize]byte) bool {
	if pub == nil {
		return false
	}
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:])
	return ecdsa.Verify(pub, msg, r, s)
}

// EncodePubKey serialises pub in uncompressed form (0x04||X||Y), padded to
// PubKeySize for 32-bit alignment, as spec.md §4.1 requires.
func EncodePubKey(pub *ecdsa.PublicKey) [PubKeySize]byte {
	var out [PubKeySize]byte
	raw := elliptic.Marshal(Curve(), pub.X, pub.Y)
	copy(out[:], raw)
	return out
}

// DecodePubKey parses the PubKeySize encoding produced by EncodePubKey.
func DecodePubKey(enc [PubKeySize]byte) (*ecdsa.PublicKey, error) {
	x, y := elliptic.Unmarshal(Curve(), enc[:pubKeyRaw])
	if x == nil {
		return nil, E("DecodePubKey", KindSignatureError, errors.New("malformed public key encoding"))
	}
	return &ecdsa.PublicKey{Curve: Curve(), X: x, Y: y}, nil
}

// EncodePrivKey serialises a private scalar to 32 bytes, big-endian.
func EncodePrivKey(priv *ecdsa.PrivateKey) [32]byte {
	var out [32]byte
	b := priv.D.Bytes()
	copy(out[32-len(b):], b)
	return out
}

// DecodePrivKey reconstructs a private key from its 32-byte scalar.
func DecodePrivKey(enc [32]byte) *ecdsa.PrivateKey {
	priv := new(ecdsa.PrivateKey)
	priv.Curve = Curve()
	priv.D = new(big.Int).SetBytes(enc[:])
	priv.X, priv.Y = Curve().ScalarBaseMult(enc[:])
	return priv
}
