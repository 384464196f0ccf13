// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package secp256k1

import (
	"math/big"
	"testing"

	btcecdsa "github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/stretchr/testify/require"
)

func TestPrivateKey_BytesRoundTrip(t *testing.T) {
	sk, err := GenerateKey()
	require.NoError(t, err)

	restored, err := NewPrivateKeyFromBytes(sk.Bytes())
	require.NoError(t, err)
	require.Equal(t, sk.Scalar(), restored.Scalar())
}

func TestNewPrivateKeyFromBytes_InvalidLength(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
	}{
		{"empty", []byte{}},
		{"too short", make([]byte, 31)},
		{"too long", make([]byte, 33)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPrivateKeyFromBytes(tt.in)
			require.Error(t, err)
		})
	}
}

func TestPublicKey_BytesRoundTrip(t *testing.T) {
	sk, err := GenerateKey()
	require.NoError(t, err)
	pub := sk.PublicKey()

	restored, err := NewPublicKeyFromBytes(pub.Bytes())
	require.NoError(t, err)
	require.True(t, pub.Equal(restored))
}

func TestPublicKey_Add(t *testing.T) {
	a, err := GenerateKey()
	require.NoError(t, err)
	b, err := GenerateKey()
	require.NoError(t, err)

	sum := a.PublicKey().Add(b.PublicKey())

	sumScalar := new(big.Int).Add(a.Scalar(), b.Scalar())
	sumScalar.Mod(sumScalar, n)
	expectedSK, err := NewPrivateKeyFromBytes(leftPad32(sumScalar.Bytes()))
	require.NoError(t, err)

	require.True(t, sum.Equal(expectedSK.PublicKey()))
	// addition is commutative
	require.True(t, sum.Equal(b.PublicKey().Add(a.PublicKey())))
}

func TestPublicKey_Equal(t *testing.T) {
	a, err := GenerateKey()
	require.NoError(t, err)
	b, err := GenerateKey()
	require.NoError(t, err)

	require.True(t, a.PublicKey().Equal(a.PublicKey()))
	require.False(t, a.PublicKey().Equal(b.PublicKey()))
}

func TestPrivateKey_Sign(t *testing.T) {
	sk, err := GenerateKey()
	require.NoError(t, err)

	msg := HashMessage([]byte("atomic swap"))
	der, err := sk.Sign(msg)
	require.NoError(t, err)

	sig, err := btcecdsa.ParseDERSignature(der)
	require.NoError(t, err)
	require.True(t, sig.Verify(msg[:], sk.key.PubKey()))
}

func TestSerializeParseDERSignature_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		r, s *big.Int
	}{
		{"small values", big.NewInt(1), big.NewInt(2)},
		{"high s normalized", new(big.Int).Sub(n, big.NewInt(1)), new(big.Int).Sub(n, big.NewInt(1))},
		{"one byte boundary", big.NewInt(0x7f), big.NewInt(0x80)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			der := SerializeDERSignature(tt.r, tt.s)
			r, s, err := ParseDERSignature(der)
			require.NoError(t, err)
			require.Equal(t, 0, tt.r.Cmp(r))

			sNorm := new(big.Int).Set(tt.s)
			half := new(big.Int).Rsh(n, 1)
			if sNorm.Cmp(half) > 0 {
				sNorm.Sub(n, sNorm)
			}
			require.Equal(t, 0, sNorm.Cmp(s))
		})
	}
}

func TestParseDERSignature_Truncated(t *testing.T) {
	_, _, err := ParseDERSignature([]byte{0x30, 0x06, 0x02, 0x01, 0x01})
	require.Error(t, err)
}

func TestHashMessage_Deterministic(t *testing.T) {
	msg := []byte("deterministic input")
	require.Equal(t, HashMessage(msg), HashMessage(msg))
	require.NotEqual(t, HashMessage(msg), HashMessage([]byte("different input")))
}
