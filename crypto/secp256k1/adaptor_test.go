// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package secp256k1

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAdaptorSignVerifyDecrypt(t *testing.T) {
	sk, err := GenerateKey()
	require.NoError(t, err)
	t_, err := GenerateKey()
	require.NoError(t, err)
	tPub := t_.PublicKey()

	msg := HashMessage([]byte("TxRedeem"))

	sig, err := AdaptorSign(sk, msg, tPub)
	require.NoError(t, err)
	require.NoError(t, AdaptorVerify(sk.PublicKey(), msg, tPub, sig))

	r, s := AdaptorDecrypt(sig, t_)
	require.Equal(t, 0, r.Cmp(new(big.Int).Mod(sig.rX, n)))

	der := SerializeDERSignature(r, s)
	parsedR, parsedS, err := ParseDERSignature(der)
	require.NoError(t, err)
	require.Equal(t, 0, r.Cmp(parsedR))
	require.Equal(t, 0, s.Cmp(parsedS))
}

func TestAdaptorVerify_WrongMessage(t *testing.T) {
	sk, err := GenerateKey()
	require.NoError(t, err)
	t_, err := GenerateKey()
	require.NoError(t, err)

	sig, err := AdaptorSign(sk, HashMessage([]byte("correct")), t_.PublicKey())
	require.NoError(t, err)

	err = AdaptorVerify(sk.PublicKey(), HashMessage([]byte("wrong")), t_.PublicKey(), sig)
	require.ErrorIs(t, err, ErrVerifyFailed)
}

func TestAdaptorVerify_WrongKey(t *testing.T) {
	sk, err := GenerateKey()
	require.NoError(t, err)
	other, err := GenerateKey()
	require.NoError(t, err)
	t_, err := GenerateKey()
	require.NoError(t, err)

	msg := HashMessage([]byte("TxRedeem"))
	sig, err := AdaptorSign(sk, msg, t_.PublicKey())
	require.NoError(t, err)

	err = AdaptorVerify(other.PublicKey(), msg, t_.PublicKey(), sig)
	require.ErrorIs(t, err, ErrVerifyFailed)
}

func TestAdaptorRecover(t *testing.T) {
	sk, err := GenerateKey()
	require.NoError(t, err)
	t_, err := GenerateKey()
	require.NoError(t, err)
	tPub := t_.PublicKey()

	msg := HashMessage([]byte("TxRefund"))
	sig, err := AdaptorSign(sk, msg, tPub)
	require.NoError(t, err)

	_, s := AdaptorDecrypt(sig, t_)

	recovered, err := AdaptorRecover(sig, s, tPub)
	require.NoError(t, err)
	require.Equal(t, t_.Bytes(), recovered.Bytes())
}

func TestAdaptorRecover_Fails_WrongSignature(t *testing.T) {
	sk, err := GenerateKey()
	require.NoError(t, err)
	t_, err := GenerateKey()
	require.NoError(t, err)
	tPub := t_.PublicKey()

	msg := HashMessage([]byte("TxRefund"))
	sig, err := AdaptorSign(sk, msg, tPub)
	require.NoError(t, err)

	otherT, err := GenerateKey()
	require.NoError(t, err)
	otherSig, err := AdaptorSign(sk, msg, otherT.PublicKey())
	require.NoError(t, err)
	_, otherS := AdaptorDecrypt(otherSig, otherT)

	_, err = AdaptorRecover(sig, otherS, tPub)
	require.ErrorIs(t, err, ErrRecoverFailed)
}

func TestAdaptorSignature_BytesRoundTrip(t *testing.T) {
	sk, err := GenerateKey()
	require.NoError(t, err)
	t_, err := GenerateKey()
	require.NoError(t, err)

	sig, err := AdaptorSign(sk, HashMessage([]byte("m")), t_.PublicKey())
	require.NoError(t, err)

	b := sig.Bytes()
	require.Len(t, b, adaptorSigFieldCount*32)

	restored, err := AdaptorSignatureFromBytes(b)
	require.NoError(t, err)
	require.Equal(t, sig.Bytes(), restored.Bytes())
}

func TestAdaptorSignatureFromBytes_InvalidLength(t *testing.T) {
	_, err := AdaptorSignatureFromBytes(make([]byte, adaptorSigFieldCount*32-1))
	require.Error(t, err)
}

func TestAdaptorSignature_JSONRoundTrip(t *testing.T) {
	sk, err := GenerateKey()
	require.NoError(t, err)
	t_, err := GenerateKey()
	require.NoError(t, err)

	sig, err := AdaptorSign(sk, HashMessage([]byte("json")), t_.PublicKey())
	require.NoError(t, err)

	data, err := sig.MarshalJSON()
	require.NoError(t, err)

	var restored AdaptorSignature
	require.NoError(t, restored.UnmarshalJSON(data))
	require.Equal(t, sig.Bytes(), restored.Bytes())
}
