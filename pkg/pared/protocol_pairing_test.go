package pared_test

import (
	"testing"
	"time"

	"github.com/ironkey-labs/pared/pkg/pared"
	"github.com/ironkey-labs/pared/pkg/pared/simplatform"
)

func newUnpairedFobStore() *simplatform.Store {
	store := simplatform.NewStore()
	store.SeedPlain(pared.FieldTextImageDigest, make([]byte, pared.HashSize))
	store.Seed(pared.FieldRNGSeed, make([]byte, pared.SeedSize))
	store.Seed(pared.FieldFobSymmetricKey, make([]byte, 32))
	return store
}

func TestPairingHappyPath(t *testing.T) {
	f := newFixture(t)
	unpaired := newUnpairedFobStore()
	// The unpaired fob shares the paired fob's symmetric key, provisioned
	// as a matched pair at manufacture time.
	key, err := f.fobStore.LoadSensitive(pared.FieldFobSymmetricKey)
	if err != nil {
		t.Fatalf("LoadSensitive(fob_symmetric_key): %v", err)
	}
	if err := unpaired.StoreSensitive(pared.FieldFobSymmetricKey, key); err != nil {
		t.Fatalf("seed unpaired symmetric key: %v", err)
	}

	hostPIN, hostPINPeer := simplatform.NewSerialPair(200 * time.Millisecond)
	peerA, peerB := simplatform.NewSerialPair(200 * time.Millisecond)

	done := make(chan error, 2)
	go func() {
		done <- pared.PairInitiate(hostPIN, peerA, f.fobStore, f.fobRNG(), pared.PairingOptions{})
	}()
	go func() {
		done <- pared.PairRespond(peerB, unpaired)
	}()

	if err := pared.ReadyWrite(hostPINPeer, f.pin[:]); err != nil {
		t.Fatalf("writing PIN: %v", err)
	}

	if err := <-done; err != nil {
		t.Fatalf("PairInitiate: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("PairRespond: %v", err)
	}

	status, err := hostPINPeer.ReadByteTimeout()
	if err != nil {
		t.Fatalf("reading final status: %v", err)
	}
	if status != pared.FrameOK {
		t.Fatalf("want FrameOK, got 0x%02x", status)
	}

	if !pared.IsPaired(unpaired) {
		t.Fatal("unpaired fob should be paired after a successful exchange")
	}
}

// TestP4CooldownSurvivesPowerCycle: the cooldown flag is written before the
// PIN is checked, so a wrong PIN leaves the flag set even if the process
// were to restart immediately afterward (spec.md §8 P4).
func TestP4CooldownSurvivesPowerCycle(t *testing.T) {
	f := newFixture(t)
	pared.LongCooldown = time.Millisecond
	defer func() { pared.LongCooldown = 3 * time.Second }()

	hostPIN, hostPINPeer := simplatform.NewSerialPair(200 * time.Millisecond)
	peerA, _ := simplatform.NewSerialPair(200 * time.Millisecond)

	done := make(chan error, 1)
	go func() {
		done <- pared.PairInitiate(hostPIN, peerA, f.fobStore, f.fobRNG(), pared.PairingOptions{})
	}()
	wrongPIN := [pared.PINSize]byte{9, 9, 9, 9}
	if err := hostPINPeer.Write(wrongPIN[:]); err != nil {
		t.Fatalf("writing wrong PIN: %v", err)
	}
	err := <-done
	if !pared.IsKind(err, pared.KindInvalidHash) {
		t.Fatalf("want KindInvalidHash for a wrong PIN, got %v", err)
	}

	flag, err := f.fobStore.LoadPlain(pared.FieldPairingCooldownFlag)
	if err != nil {
		t.Fatalf("LoadPlain(cooldown flag): %v", err)
	}
	if len(flag) == 0 || flag[0] != 1 {
		t.Fatal("cooldown flag must remain set after a failed PIN attempt")
	}

	if err := pared.EnforceCooldown(f.fobStore); err != nil {
		t.Fatalf("EnforceCooldown: %v", err)
	}
	flag, err = f.fobStore.LoadPlain(pared.FieldPairingCooldownFlag)
	if err != nil {
		t.Fatalf("LoadPlain after EnforceCooldown: %v", err)
	}
	if flag[0] != 0 {
		t.Fatal("EnforceCooldown must clear the flag once the delay has elapsed")
	}
}

func TestPairingWrongPINLeavesPeerUnpaired(t *testing.T) {
	f := newFixture(t)
	pared.LongCooldown = time.Millisecond
	defer func() { pared.LongCooldown = 3 * time.Second }()

	unpaired := newUnpairedFobStore()
	key, err := f.fobStore.LoadSensitive(pared.FieldFobSymmetricKey)
	if err != nil {
		t.Fatalf("LoadSensitive(fob_symmetric_key): %v", err)
	}
	if err := unpaired.StoreSensitive(pared.FieldFobSymmetricKey, key); err != nil {
		t.Fatalf("seed unpaired symmetric key: %v", err)
	}

	hostPIN, hostPINPeer := simplatform.NewSerialPair(200 * time.Millisecond)
	peerA, _ := simplatform.NewSerialPair(200 * time.Millisecond)

	done := make(chan error, 1)
	go func() {
		done <- pared.PairInitiate(hostPIN, peerA, f.fobStore, f.fobRNG(), pared.PairingOptions{})
	}()
	wrongPIN := [pared.PINSize]byte{9, 9, 9, 9}
	_ = hostPINPeer.Write(wrongPIN[:])
	<-done

	if pared.IsPaired(unpaired) {
		t.Fatal("a rejected PIN must not leave the peer fob paired")
	}
}
