// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package dleq

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

// randomSecret returns a 32-byte big-endian scalar strictly less than 2^252,
// the range Prove requires so the secret has a valid bit decomposition on
// both curves.
func randomSecret(t *testing.T) [32]byte {
	t.Helper()
	var b [32]byte
	_, err := rand.Read(b[:])
	require.NoError(t, err)
	b[0] &= 0x0f // clear the top 4 bits so the value is < 2^252
	return b
}

func TestProveVerify(t *testing.T) {
	secret := randomSecret(t)

	proof, secpPub, edPub, err := Prove(secret)
	require.NoError(t, err)
	require.NoError(t, proof.Verify(secpPub, edPub))
}

func TestVerify_WrongSecpKey(t *testing.T) {
	secret := randomSecret(t)
	proof, _, edPub, err := Prove(secret)
	require.NoError(t, err)

	other := randomSecret(t)
	_, otherSecpPub, _, err := Prove(other)
	require.NoError(t, err)

	err = proof.Verify(otherSecpPub, edPub)
	require.ErrorIs(t, err, ErrVerifyFailed)
}

func TestVerify_WrongEdKey(t *testing.T) {
	secret := randomSecret(t)
	proof, secpPub, _, err := Prove(secret)
	require.NoError(t, err)

	other := randomSecret(t)
	_, _, otherEdPub, err := Prove(other)
	require.NoError(t, err)

	err = proof.Verify(secpPub, otherEdPub)
	require.ErrorIs(t, err, ErrVerifyFailed)
}

func TestProof_BytesRoundTrip(t *testing.T) {
	secret := randomSecret(t)
	proof, secpPub, edPub, err := Prove(secret)
	require.NoError(t, err)

	b := proof.Bytes()
	require.Len(t, b, numBits*bitProofSize)

	restored, err := ProofFromBytes(b)
	require.NoError(t, err)
	require.NoError(t, restored.Verify(secpPub, edPub))
}

func TestProofFromBytes_InvalidLength(t *testing.T) {
	_, err := ProofFromBytes(make([]byte, numBits*bitProofSize-1))
	require.Error(t, err)
}

func TestVerify_WrongBitCount(t *testing.T) {
	secret := randomSecret(t)
	proof, secpPub, edPub, err := Prove(secret)
	require.NoError(t, err)

	proof.bits = proof.bits[:numBits-1]
	err = proof.Verify(secpPub, edPub)
	require.ErrorIs(t, err, ErrVerifyFailed)
}
