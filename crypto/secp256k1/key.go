// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

// Package secp256k1 wraps btcec key types and implements the ECDSA-based adaptor
// signature scheme that TxRedeem/TxRefund claims are built on (spec.md §4.1). A
// signer encrypts a signature under a public "encryption point" T; only whoever
// knows the discrete log of T can turn the encrypted signature into a valid one,
// and publishing the valid signature leaks that discrete log to anyone watching
// the chain. That leak is what lets the counterparty claim the other leg of the
// swap.
package secp256k1

import (
	"crypto/sha256"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
	btcecdsa "github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

// curve is the secp256k1 curve, shared by every point/scalar operation in this
// package.
var curve = btcec.S256()

// n is the order of the secp256k1 base point.
var n = curve.Params().N

// PrivateKey is a secp256k1 scalar, used both as an ordinary signing key and as
// the discrete log "t" of an adaptor's encryption point T = t*G.
type PrivateKey struct {
	key *btcec.PrivateKey
}

// PublicKey is a secp256k1 point.
type PublicKey struct {
	x, y *big.Int
}

// GenerateKey generates a new random private key.
func GenerateKey() (*PrivateKey, error) {
	k, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generating secp256k1 key: %w", err)
	}
	return &PrivateKey{key: k}, nil
}

// NewPrivateKeyFromBytes parses a 32-byte big-endian scalar as a private key.
func NewPrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	if len(b) != 32 {
		return nil, fmt.Errorf("invalid private key length: expected 32 bytes, got %d", len(b))
	}
	priv, _ := btcec.PrivKeyFromBytes(b)
	return &PrivateKey{key: priv}, nil
}

// Scalar returns the private key's value as a scalar mod the curve order.
func (k *PrivateKey) Scalar() *big.Int {
	return new(big.Int).Set(k.key.ToECDSA().D)
}

// Bytes returns the 32-byte big-endian encoding of the scalar.
func (k *PrivateKey) Bytes() []byte {
	b := k.key.Serialize()
	out := make([]byte, 32)
	copy(out, b)
	return out
}

// PublicKey returns the public key corresponding to k.
func (k *PrivateKey) PublicKey() *PublicKey {
	pub := k.key.ToECDSA().PublicKey
	return &PublicKey{x: pub.X, y: pub.Y}
}

// Sign produces a standard deterministic ECDSA signature over a 32-byte message
// hash (DER-encoded). Used for ordinary (non-adaptor) Bitcoin signing, e.g. the
// funder's own input in TxLock.
func (k *PrivateKey) Sign(hash [32]byte) ([]byte, error) {
	sig := btcecdsa.Sign(k.key, hash[:])
	return sig.Serialize(), nil
}

// NewPublicKeyFromBytes parses a compressed or uncompressed SEC1 public key.
func NewPublicKeyFromBytes(b []byte) (*PublicKey, error) {
	pub, err := btcec.ParsePubKey(b)
	if err != nil {
		return nil, fmt.Errorf("parsing secp256k1 public key: %w", err)
	}
	ec := pub.ToECDSA()
	return &PublicKey{x: ec.X, y: ec.Y}, nil
}

// newPublicKeyFromPoint wraps a raw curve point, without validating that it
// lies on the curve (callers are expected to derive it from curve operations).
func newPublicKeyFromPoint(x, y *big.Int) *PublicKey {
	return &PublicKey{x: x, y: y}
}

// Point returns the raw affine coordinates of the public key.
func (k *PublicKey) Point() (x, y *big.Int) {
	return k.x, k.y
}

// Bytes returns the 33-byte compressed SEC1 encoding.
func (k *PublicKey) Bytes() []byte {
	out := make([]byte, 33)
	if k.y.Bit(0) == 0 {
		out[0] = 0x02
	} else {
		out[0] = 0x03
	}
	xBytes := k.x.Bytes()
	copy(out[1+(32-len(xBytes)):], xBytes)
	return out
}

// Add returns k + other (point addition), used to combine the maker's and
// taker's partial secp256k1 keys into a joint public key where the scheme calls
// for it.
func (k *PublicKey) Add(other *PublicKey) *PublicKey {
	x, y := curve.Add(k.x, k.y, other.x, other.y)
	return newPublicKeyFromPoint(x, y)
}

// Equal reports whether two public keys represent the same point.
func (k *PublicKey) Equal(other *PublicKey) bool {
	return k.x.Cmp(other.x) == 0 && k.y.Cmp(other.y) == 0
}

// HashMessage hashes an arbitrary-length message down to the 32-byte digest used
// as the ECDSA/adaptor message input throughout this package.
func HashMessage(msg []byte) [32]byte {
	return sha256.Sum256(msg)
}

// SerializeDERSignature encodes (r, s) as a BIP-66-compliant low-S DER
// signature, the form Bitcoin script execution requires. Used for adaptor
// signatures, whose decrypted (r, s) pair doesn't come from btcec's own
// Sign and so needs re-serializing by hand.
func SerializeDERSignature(r, s *big.Int) []byte {
	sNorm := new(big.Int).Set(s)
	halfN := new(big.Int).Rsh(n, 1)
	if sNorm.Cmp(halfN) > 0 {
		sNorm.Sub(n, sNorm)
	}
	rBytes := asn1Int(r)
	sBytes := asn1Int(sNorm)

	body := make([]byte, 0, len(rBytes)+len(sBytes))
	body = append(body, rBytes...)
	body = append(body, sBytes...)

	out := make([]byte, 0, len(body)+2)
	out = append(out, 0x30, byte(len(body)))
	out = append(out, body...)
	return out
}

// ParseDERSignature decodes a BIP-66 DER-encoded ECDSA signature (without
// any trailing sighash-type byte) back into its (r, s) components.
func ParseDERSignature(der []byte) (r, s *big.Int, err error) {
	if len(der) < 8 || der[0] != 0x30 {
		return nil, nil, fmt.Errorf("invalid DER signature: bad sequence header")
	}
	seqLen := int(der[1])
	if seqLen+2 > len(der) {
		return nil, nil, fmt.Errorf("invalid DER signature: truncated")
	}
	buf := der[2 : 2+seqLen]
	if len(buf) < 2 || buf[0] != 0x02 {
		return nil, nil, fmt.Errorf("invalid DER signature: bad r marker")
	}
	rLen := int(buf[1])
	if 2+rLen > len(buf) {
		return nil, nil, fmt.Errorf("invalid DER signature: truncated r")
	}
	r = new(big.Int).SetBytes(buf[2 : 2+rLen])
	rest := buf[2+rLen:]
	if len(rest) < 2 || rest[0] != 0x02 {
		return nil, nil, fmt.Errorf("invalid DER signature: bad s marker")
	}
	sLen := int(rest[1])
	if 2+sLen > len(rest) {
		return nil, nil, fmt.Errorf("invalid DER signature: truncated s")
	}
	s = new(big.Int).SetBytes(rest[2 : 2+sLen])
	return r, s, nil
}

// asn1Int encodes v as a DER INTEGER (tag, length, minimal big-endian bytes,
// with a leading zero byte if the high bit of the first byte is set).
func asn1Int(v *big.Int) []byte {
	b := v.Bytes()
	if len(b) == 0 {
		b = []byte{0}
	}
	if b[0]&0x80 != 0 {
		b = append([]byte{0}, b...)
	}
	out := make([]byte, 0, len(b)+2)
	out = append(out, 0x02, byte(len(b)))
	out = append(out, b...)
	return out
}
