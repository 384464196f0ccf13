// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package monero

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPrivateKey_BytesRoundTrip(t *testing.T) {
	sk, err := GeneratePrivateKey()
	require.NoError(t, err)

	b := sk.Bytes()
	restored, err := NewPrivateKeyFromScalar(b)
	require.NoError(t, err)
	require.Equal(t, b, restored.Bytes())
}

func TestNewPrivateKeyFromScalar_Invalid(t *testing.T) {
	// all-0xff bytes are not a canonical (reduced) scalar encoding
	var b [32]byte
	for i := range b {
		b[i] = 0xff
	}
	_, err := NewPrivateKeyFromScalar(b)
	require.Error(t, err)
}

func TestPublicKey_BytesRoundTrip(t *testing.T) {
	sk, err := GeneratePrivateKey()
	require.NoError(t, err)
	pub := sk.PublicKey()

	restored, err := NewPublicKeyFromBytes(pub.Bytes())
	require.NoError(t, err)
	require.True(t, pub.Equal(restored))
}

func TestPrivateKey_Add(t *testing.T) {
	a, err := GeneratePrivateKey()
	require.NoError(t, err)
	b, err := GeneratePrivateKey()
	require.NoError(t, err)

	sum := a.Add(b)
	require.Equal(t, sum.Bytes(), b.Add(a).Bytes())

	// public keys must combine the same way as the underlying scalars
	sumPub := a.PublicKey().Add(b.PublicKey())
	require.True(t, sum.PublicKey().Equal(sumPub))
}

func TestPublicKey_Equal(t *testing.T) {
	a, err := GeneratePrivateKey()
	require.NoError(t, err)
	b, err := GeneratePrivateKey()
	require.NoError(t, err)

	require.True(t, a.PublicKey().Equal(a.PublicKey()))
	require.False(t, a.PublicKey().Equal(b.PublicKey()))
}

func TestStandardAddress_Deterministic(t *testing.T) {
	spend, err := GeneratePrivateKey()
	require.NoError(t, err)
	view, err := GeneratePrivateKey()
	require.NoError(t, err)

	addr1 := StandardAddress(spend.PublicKey(), view.PublicKey(), PrefixMainnet)
	addr2 := StandardAddress(spend.PublicKey(), view.PublicKey(), PrefixMainnet)
	require.Equal(t, addr1, addr2)
	require.NotEmpty(t, addr1)

	// a different network prefix must produce a different address
	addrStagenet := StandardAddress(spend.PublicKey(), view.PublicKey(), PrefixStagenet)
	require.NotEqual(t, addr1, addrStagenet)
}

func TestStandardAddress_DiffersByKey(t *testing.T) {
	spendA, err := GeneratePrivateKey()
	require.NoError(t, err)
	spendB, err := GeneratePrivateKey()
	require.NoError(t, err)
	view, err := GeneratePrivateKey()
	require.NoError(t, err)

	addrA := StandardAddress(spendA.PublicKey(), view.PublicKey(), PrefixMainnet)
	addrB := StandardAddress(spendB.PublicKey(), view.PublicKey(), PrefixMainnet)
	require.NotEqual(t, addrA, addrB)
}

func TestBase58MoneroEncode_AlphabetOnly(t *testing.T) {
	const alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"
	spend, err := GeneratePrivateKey()
	require.NoError(t, err)
	view, err := GeneratePrivateKey()
	require.NoError(t, err)

	addr := StandardAddress(spend.PublicKey(), view.PublicKey(), PrefixMainnet)
	for _, r := range addr {
		require.Contains(t, alphabet, string(r))
	}
}
