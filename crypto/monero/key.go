// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

// Package monero wraps the ed25519 scalar/point arithmetic used for the
// joint spend and view keys of a swap's shared Monero address (spec.md's
// Monero key ceremony, C3), plus Monero's base58 address encoding.
package monero

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"golang.org/x/crypto/sha3"
)

// PrivateKey is an ed25519 scalar reduced modulo the group's order ℓ. It is
// used for both spend-key and view-key shares.
type PrivateKey struct {
	scalar *edwards25519.Scalar
}

// PublicKey is an ed25519 group element.
type PublicKey struct {
	point *edwards25519.Point
}

// NewPrivateKeyFromScalar wraps a pre-reduced 32-byte little-endian scalar.
func NewPrivateKeyFromScalar(b [32]byte) (*PrivateKey, error) {
	s, err := new(edwards25519.Scalar).SetCanonicalBytes(b[:])
	if err != nil {
		return nil, fmt.Errorf("invalid ed25519 scalar: %w", err)
	}
	return &PrivateKey{scalar: s}, nil
}

// GeneratePrivateKey generates a new random scalar, suitable for a spend-key
// or view-key share.
func GeneratePrivateKey() (*PrivateKey, error) {
	var buf [64]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return nil, fmt.Errorf("generating monero key: %w", err)
	}
	s, err := new(edwards25519.Scalar).SetUniformBytes(buf[:])
	if err != nil {
		return nil, fmt.Errorf("reducing monero key: %w", err)
	}
	return &PrivateKey{scalar: s}, nil
}

// Bytes returns the 32-byte little-endian canonical encoding of the scalar.
func (k *PrivateKey) Bytes() [32]byte {
	var out [32]byte
	copy(out[:], k.scalar.Bytes())
	return out
}

// Add returns k + other mod ℓ, used to combine the maker's and taker's
// private key shares into the joint spend (or view) private key. Only ever
// computable by a single party that happens to know both shares (e.g. during
// testing, or by the party recovering via AdaptorRecover after a punish).
func (k *PrivateKey) Add(other *PrivateKey) *PrivateKey {
	return &PrivateKey{scalar: new(edwards25519.Scalar).Add(k.scalar, other.scalar)}
}

// PublicKey returns the public key corresponding to k: k*B, where B is the
// ed25519 base point.
func (k *PrivateKey) PublicKey() *PublicKey {
	return &PublicKey{point: new(edwards25519.Point).ScalarBaseMult(k.scalar)}
}

// NewPublicKeyFromBytes decodes a 32-byte compressed ed25519 point.
func NewPublicKeyFromBytes(b [32]byte) (*PublicKey, error) {
	p, err := new(edwards25519.Point).SetBytes(b[:])
	if err != nil {
		return nil, fmt.Errorf("invalid ed25519 point: %w", err)
	}
	return &PublicKey{point: p}, nil
}

// Bytes returns the 32-byte compressed encoding of the point.
func (k *PublicKey) Bytes() [32]byte {
	var out [32]byte
	copy(out[:], k.point.Bytes())
	return out
}

// Add returns the sum of two public keys: used to combine the maker's and
// taker's public spend/view key shares into the joint address's keys
// (spec.md: S = S_a + S_b, V = V_a + V_b).
func (k *PublicKey) Add(other *PublicKey) *PublicKey {
	return &PublicKey{point: new(edwards25519.Point).Add(k.point, other.point)}
}

// Equal reports whether two public keys encode the same point.
func (k *PublicKey) Equal(other *PublicKey) bool {
	return k.point.Equal(other.point) == 1
}

// AddressPrefix selects the base58 network prefix byte for a Monero address,
// per the cryptonote address-prefix table.
type AddressPrefix byte

const (
	PrefixMainnet  AddressPrefix = 18
	PrefixStagenet AddressPrefix = 24
	PrefixTestnet  AddressPrefix = 53
)

// ErrInvalidAddress is returned when a string fails to decode as a Monero
// standard address.
var ErrInvalidAddress = errors.New("invalid monero address")

// StandardAddress renders the joint (spend, view) public key pair as a
// standard (non-integrated, non-subaddress) Monero base58 address.
func StandardAddress(spend, view *PublicKey, prefix AddressPrefix) string {
	spendB := spend.Bytes()
	viewB := view.Bytes()
	payload := make([]byte, 0, 1+32+32+4)
	payload = append(payload, byte(prefix))
	payload = append(payload, spendB[:]...)
	payload = append(payload, viewB[:]...)

	checksum := keccak256(payload)
	payload = append(payload, checksum[:4]...)
	return base58MoneroEncode(payload)
}

func keccak256(b []byte) [32]byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(b)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// base58MoneroEncode implements Monero's block-wise base58 variant, which
// encodes the payload in 8-byte blocks (the final, possibly short, block
// encoded separately) rather than as one arbitrary-precision integer.
func base58MoneroEncode(data []byte) string {
	const alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"
	const fullBlockSize = 8
	const fullEncodedBlockSize = 11
	var encodedBlockSizes = [9]int{0, 2, 3, 5, 6, 7, 9, 10, 11}

	var out []byte
	for i := 0; i < len(data); i += fullBlockSize {
		end := i + fullBlockSize
		if end > len(data) {
			end = len(data)
		}
		block := data[i:end]
		encSize := encodedBlockSizes[len(block)]
		out = append(out, encodeBlock(block, alphabet, encSize)...)
	}
	_ = fullEncodedBlockSize
	return string(out)
}

func encodeBlock(block []byte, alphabet string, encodedSize int) []byte {
	num := new(bigUint).setBytes(block)
	enc := make([]byte, encodedSize)
	base := bigUint{58}
	for i := encodedSize - 1; i >= 0; i-- {
		q, r := num.divMod(&base)
		enc[i] = alphabet[r]
		num = q
	}
	return enc
}

// bigUint is a minimal big-endian unsigned integer used only for Monero's
// base58 block encoding, to avoid pulling math/big into a hot path that only
// ever deals with <=8-byte blocks.
type bigUint struct {
	v uint64
}

func (b *bigUint) setBytes(data []byte) *bigUint {
	var buf [8]byte
	copy(buf[8-len(data):], data)
	return &bigUint{v: binary.BigEndian.Uint64(buf[:])}
}

func (b *bigUint) divMod(d *bigUint) (*bigUint, byte) {
	q := b.v / d.v
	r := b.v % d.v
	return &bigUint{v: q}, byte(r)
}
