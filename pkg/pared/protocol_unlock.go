package pared

// CarHandleUnlock implements the car side of the unlock/start protocol,
// spec.md §4.4: states Idle -> ChallengeIssued -> FeatureResponseVerified
// -> MessageEmitted -> Idle. Called after the car's main loop has read the
// 'U' command byte off the board link. On any framing, integrity,
// signature, or digest-binding failure, it emits FrameBad on host and
// returns the causing error; no secret output occurs on failure (spec.md
// §4.4 Failure semantics, §7).
func CarHandleUnlock(board, host Serial, store Store, rng *RNG) error {
	privRaw, err := store.LoadSensitive(FieldCarAuthPrivKey)
	if err != nil {
		SignalBad(host)
		return err
	}
	var privEnc [32]byte
	copy(privEnc[:], privRaw)
	priv := DecodePrivKey(privEnc)

	pubRaw, err := store.LoadSensitive(FieldPairedPubKey)
	if err != nil {
		SignalBad(host)
		return err
	}
	var pubEnc [PubKeySize]byte
	copy(pubEnc[:], pubRaw)
	pub, err := DecodePubKey(pubEnc)
	if err != nil {
		SignalBad(host)
		return err
	}

	nonce, err := DrawNonce(store, rng)
	if err != nil {
		SignalBad(host)
		return err
	}
	sig, err := Sign(priv, nonce[:])
	if err != nil {
		SignalBad(host)
		return err
	}
	chal := &Challenge{Nonce: nonce, Signature: sig}
	if err := ReadyWrite(board, chal.Encode()); err != nil {
		SignalBad(host)
		return err
	}

	buf := make([]byte, FeaturePackageSize)
	if err := ReadyReadExact(board, buf); err != nil {
		SignalBad(host)
		return err
	}
	resp, err := DecodeFeaturePackage(buf)
	if err != nil {
		SignalBad(host)
		return err
	}

	// Binds the response to this challenge's nonce: replaying a captured
	// FeaturePackage against a fresh nonce fails here (property P1),
	// before the signature's validity is even in question.
	digest := Hash(resp.EnabledFeatures[:], nonce[:])
	if digest != resp.Digest {
		SignalBad(host)
		return E("CarHandleUnlock", KindInvalidHash, nil)
	}

	rng.Jitter()
	if !Verify(pub, resp.Digest[:], resp.Signature) {
		SignalBad(host)
		return E("CarHandleUnlock", KindSignatureError, nil)
	}

	return emitUnlockMessages(host, store, resp)
}

func emitUnlockMessages(host Serial, store Store, resp *FeaturePackage) error {
	unlockMsg, err := store.LoadPlain(FieldUnlockMessage)
	if err != nil {
		SignalBad(host)
		return err
	}
	if err := host.WriteByte(1); err != nil {
		return err
	}
	if err := host.Write(unlockMsg); err != nil {
		return err
	}

	featureFields := [3]Field{FieldFeatureMessage1, FieldFeatureMessage2, FieldFeatureMessage3}
	for i, field := range featureFields {
		if !resp.FeatureBit(i) {
			continue
		}
		msg, err := store.LoadPlain(field)
		if err != nil {
			SignalBad(host)
			return err
		}
		if err := host.WriteByte(1); err != nil {
			return err
		}
		if err := host.Write(msg); err != nil {
			return err
		}
	}
	return nil
}

// FobUnlockInitiate implements the fob side of unlock initiation, spec.md
// §4.5: on a debounced button press, the fob has already sent 'U' to the
// car (done by the caller's main loop) and now completes the
// challenge-response exchange.
func FobUnlockInitiate(board Serial, store Store, rng *RNG) error {
	privRaw, err := store.LoadSensitive(FieldPairedPrivKey)
	if err != nil {
		return err
	}
	var privEnc [32]byte
	copy(privEnc[:], privRaw)
	priv := DecodePrivKey(privEnc)

	pubRaw, err := store.LoadSensitive(FieldCarAuthPubKey)
	if err != nil {
		return err
	}
	var pubEnc [PubKeySize]byte
	copy(pubEnc[:], pubRaw)
	pub, err := DecodePubKey(pubEnc)
	if err != nil {
		return err
	}

	featRaw, err := store.LoadSensitive(FieldFeatureFlags)
	if err != nil {
		return err
	}

	buf := make([]byte, ChallengeSize)
	if err := ReadyReadExact(board, buf); err != nil {
		return err
	}
	chal, err := DecodeChallenge(buf)
	if err != nil {
		return err
	}

	rng.Jitter()
	if !Verify(pub, chal.Nonce[:], chal.Signature) {
		return E("FobUnlockInitiate", KindSignatureError, nil)
	}

	var enabled [3]byte
	copy(enabled[:], featRaw)
	digest := Hash(enabled[:], chal.Nonce[:])
	sig, err := Sign(priv, digest[:])
	if err != nil {
		return err
	}

	fp := &FeaturePackage{EnabledFeatures: enabled, Digest: digest, Signature: sig}
	return ReadyWrite(board, fp.Encode())
}
