package pared

import (
	"encoding/binary"
	"time"
)

// LongCooldown is the extended delay imposed after any failed pairing-PIN
// attempt (spec.md §4.6's "≈230 million cycles"). Go has no portable
// cycle-accurate delay, so the cycle count is expressed as a wall-clock
// duration instead; production deployments should tune this to whatever
// wall-clock delay the target cadence implies. Tests lower it directly
// before exercising the cooldown path.
var LongCooldown = 3 * time.Second

// PINSize is the wire size of the 4-byte PIN the host sends, little-endian,
// per spec.md §4.6 step 2b / §6.2 (a 6-hex-digit PIN fits in 4 bytes as a
// little-endian integer).
const PINSize = 4

// PairingOptions controls the initiator's optional host-link diagnostics.
// spec.md §9's open question resolves in favor of NOT emitting the
// ciphertext/tag/nonce echo by default; set Diagnostics to true to restore
// the source's unconditional echo for debugging.
type PairingOptions struct {
	Diagnostics bool
}

// PairInitiate implements the paired fob's initiator role, spec.md §4.6
// step 2. hostPIN is the serial link the 4-byte PIN arrives on; peer is
// the cross-connected link to the unpaired fob.
func PairInitiate(hostPIN, peer Serial, store Store, rng *RNG, opts PairingOptions) error {
	fobKeyRaw, err := store.LoadSensitive(FieldFobSymmetricKey)
	if err != nil {
		SignalBad(hostPIN)
		return err
	}
	var fobKey [32]byte
	copy(fobKey[:], fobKeyRaw)

	pinHashRaw, err := store.LoadSensitive(FieldPinHash)
	if err != nil {
		SignalBad(hostPIN)
		return err
	}
	var pinHash [HashSize]byte
	copy(pinHash[:], pinHashRaw)

	pin := make([]byte, PINSize)
	if err := ReadyReadExact(hostPIN, pin); err != nil {
		return err
	}

	// Written BEFORE the PIN is checked: a power cycle racing the
	// verification below must still land in the cooldown window, per
	// property P4.
	if err := store.StorePlain(FieldPairingCooldownFlag, []byte{1}); err != nil {
		SignalBad(hostPIN)
		return err
	}

	candidate := Hash(pin)
	rng.Jitter()
	if candidate != pinHash {
		time.Sleep(LongCooldown)
		SignalBad(hostPIN)
		return E("PairInitiate", KindInvalidHash, nil)
	}

	if err := store.StorePlain(FieldPairingCooldownFlag, []byte{0}); err != nil {
		SignalBad(hostPIN)
		return err
	}

	carIDRaw, err := store.LoadSensitive(FieldCarID)
	if err != nil {
		SignalBad(hostPIN)
		return err
	}
	carAuthPubKeyRaw, err := store.LoadSensitive(FieldCarAuthPubKey)
	if err != nil {
		SignalBad(hostPIN)
		return err
	}
	pairedPrivKeyRaw, err := store.LoadSensitive(FieldPairedPrivKey)
	if err != nil {
		SignalBad(hostPIN)
		return err
	}

	secrets := &PairingSecrets{}
	secrets.CarID = binary.LittleEndian.Uint32(carIDRaw)
	copy(secrets.CarAuthPubKey[:], carAuthPubKeyRaw)
	copy(secrets.PairedPrivKey[:], pairedPrivKeyRaw)
	copy(secrets.PinHash[:], pinHashRaw)

	nonce, err := DrawNonce(store, rng)
	if err != nil {
		SignalBad(hostPIN)
		return err
	}
	plaintext := secrets.Encode()
	ciphertext, tag, err := AEADEncrypt(fobKey, nonce, plaintext)
	if err != nil {
		SignalBad(hostPIN)
		return err
	}

	if opts.Diagnostics {
		_ = hostPIN.Write(ciphertext)
		_ = hostPIN.Write(tag[:])
		_ = hostPIN.Write(nonce[:])
	}

	if err := ReadyWrite(peer, ciphertext); err != nil {
		SignalBad(hostPIN)
		return err
	}
	if err := ReadyWrite(peer, tag[:]); err != nil {
		SignalBad(hostPIN)
		return err
	}
	if err := ReadyWrite(peer, nonce[:]); err != nil {
		SignalBad(hostPIN)
		return err
	}

	SignalOK(hostPIN)
	return nil
}

// PairRespond implements the unpaired fob's responder role, spec.md §4.6
// step 3. peer is the cross-connected link to the initiating paired fob.
func PairRespond(peer Serial, store Store) error {
	fobKeyRaw, err := store.LoadSensitive(FieldFobSymmetricKey)
	if err != nil {
		return err
	}
	var fobKey [32]byte
	copy(fobKey[:], fobKeyRaw)

	ciphertext := make([]byte, PairingSecretsSize)
	if err := ReadyReadExact(peer, ciphertext); err != nil {
		return err
	}
	tagBuf := make([]byte, TagSize)
	if err := ReadyReadExact(peer, tagBuf); err != nil {
		return err
	}
	nonceBuf := make([]byte, NonceSize)
	if err := ReadyReadExact(peer, nonceBuf); err != nil {
		return err
	}
	var tag [TagSize]byte
	copy(tag[:], tagBuf)
	var nonce [NonceSize]byte
	copy(nonce[:], nonceBuf)

	plaintext, err := AEADDecrypt(fobKey, nonce, ciphertext, tag)
	if err != nil {
		return err
	}
	secrets, err := DecodePairingSecrets(plaintext)
	if err != nil {
		return err
	}

	carID := make([]byte, 4)
	binary.LittleEndian.PutUint32(carID, secrets.CarID)

	return CommitPairing(store, carID, secrets.CarAuthPubKey[:], secrets.PairedPrivKey[:], secrets.PinHash[:])
}

// EnforceCooldown implements the fob main loop's Idle-state cooldown check
// (spec.md §4.9: "cooldown>0 -> delay exact amount, clear flag, stay
// Idle"). Called once per main-loop iteration before any command is
// dispatched, so a power cycle mid-cooldown (property P4) still forces the
// caller through the full wait before another pairing attempt can begin.
func EnforceCooldown(store Store) error {
	flag, err := store.LoadPlain(FieldPairingCooldownFlag)
	if err != nil || len(flag) == 0 || flag[0] == 0 {
		return nil
	}
	time.Sleep(LongCooldown)
	return store.StorePlain(FieldPairingCooldownFlag, []byte{0})
}
