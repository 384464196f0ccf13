// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package secp256k1

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
)

// ErrVerifyFailed is returned by AdaptorVerify when a presignature does not
// match the claimed signing key, message, or encryption point.
var ErrVerifyFailed = errors.New("adaptor signature verification failed")

// ErrRecoverFailed is returned by AdaptorRecover when the decryption key
// recovered from a published signature does not open the given encryption
// point.
var ErrRecoverFailed = errors.New("could not recover decryption key from signature")

// dleqProof is a Chaum-Pedersen proof of equality of discrete logs across the
// two bases G and Y: it proves that the same scalar k was used to form both
// RHat (= k*G) and R (= k*Y), without revealing k.
type dleqProof struct {
	c *big.Int
	z *big.Int
}

// AdaptorSignature is an encrypted ECDSA signature: a presignature that
// verifies against the signer's public key and an encryption point T, but
// that only someone who knows log_G(T) can turn into a valid ECDSA signature.
// This is the σ' of spec.md §4.1.
type AdaptorSignature struct {
	rX, rY       *big.Int // R = k*T, the adapted nonce point
	rHatX, rHatY *big.Int // RHat = k*G, the corresponding plain nonce point
	sHat         *big.Int
	proof        dleqProof
}

// adaptorSigFieldCount*32 is the fixed-width wire encoding of an
// AdaptorSignature: rX, rY, rHatX, rHatY, sHat, proof.c, proof.z.
const adaptorSigFieldCount = 7

// Bytes returns the fixed-width 224-byte encoding of sig, suitable for
// sending over the wire in an EncryptedSignature message.
func (sig *AdaptorSignature) Bytes() []byte {
	out := make([]byte, 0, adaptorSigFieldCount*32)
	for _, v := range []*big.Int{sig.rX, sig.rY, sig.rHatX, sig.rHatY, sig.sHat, sig.proof.c, sig.proof.z} {
		out = append(out, leftPad32(v.Bytes())...)
	}
	return out
}

// AdaptorSignatureFromBytes decodes the fixed-width encoding produced by
// Bytes.
func AdaptorSignatureFromBytes(b []byte) (*AdaptorSignature, error) {
	if len(b) != adaptorSigFieldCount*32 {
		return nil, fmt.Errorf("invalid adaptor signature length: expected %d bytes, got %d", adaptorSigFieldCount*32, len(b))
	}
	field := func(i int) *big.Int {
		return new(big.Int).SetBytes(b[i*32 : (i+1)*32])
	}
	return &AdaptorSignature{
		rX: field(0), rY: field(1),
		rHatX: field(2), rHatY: field(3),
		sHat:  field(4),
		proof: dleqProof{c: field(5), z: field(6)},
	}, nil
}

// MarshalJSON implements json.Marshaler as a hex string of Bytes.
func (sig *AdaptorSignature) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(sig.Bytes()))
}

// UnmarshalJSON implements json.Unmarshaler.
func (sig *AdaptorSignature) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid adaptor signature hex: %w", err)
	}
	parsed, err := AdaptorSignatureFromBytes(b)
	if err != nil {
		return err
	}
	*sig = *parsed
	return nil
}

// AdaptorSign produces an encrypted signature over msg under sk, encrypted to
// the public encryption point T. Anyone who later learns t with t*G == T can
// call AdaptorDecrypt to recover a standard ECDSA signature valid under sk's
// public key.
func AdaptorSign(sk *PrivateKey, msg [32]byte, tPub *PublicKey) (*AdaptorSignature, error) {
	k, err := GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("adaptor sign: %w", err)
	}
	kScalar := k.Scalar()

	// R = k*T: the nonce point adapted by the encryption key. Its x-coordinate
	// mod n stands in for the usual ECDSA "r".
	rX, rY := curve.ScalarMult(tPub.x, tPub.y, kScalar.Bytes())
	r := new(big.Int).Mod(rX, n)
	if r.Sign() == 0 {
		return nil, fmt.Errorf("adaptor sign: got zero r, retry with fresh nonce")
	}

	// RHat = k*G: the corresponding plain nonce point, whose discrete log the
	// DLEQ proof below binds to the same k used for R.
	rHatX, rHatY := curve.ScalarBaseMult(kScalar.Bytes())

	e := new(big.Int).SetBytes(msg[:])
	e.Mod(e, n)

	x := sk.Scalar()
	sHat := new(big.Int).Mul(r, x)
	sHat.Add(sHat, e)
	sHat.Mod(sHat, n)
	kInv := new(big.Int).ModInverse(kScalar, n)
	if kInv == nil {
		return nil, fmt.Errorf("adaptor sign: nonce has no inverse mod n")
	}
	sHat.Mul(sHat, kInv)
	sHat.Mod(sHat, n)

	proof := proveDLEQ(kScalar, tPub, rHatX, rHatY, rX, rY)

	return &AdaptorSignature{
		rX: rX, rY: rY,
		rHatX: rHatX, rHatY: rHatY,
		sHat:  sHat,
		proof: *proof,
	}, nil
}

// AdaptorVerify checks that sig is a well-formed encrypted signature over msg
// under pub, encrypted to tPub. It does not require knowledge of log_G(tPub).
func AdaptorVerify(pub *PublicKey, msg [32]byte, tPub *PublicKey, sig *AdaptorSignature) error {
	if sig.sHat.Sign() == 0 {
		return ErrVerifyFailed
	}
	e := new(big.Int).SetBytes(msg[:])
	e.Mod(e, n)

	r := new(big.Int).Mod(sig.rX, n)
	if r.Sign() == 0 {
		return ErrVerifyFailed
	}

	sInv := new(big.Int).ModInverse(sig.sHat, n)
	if sInv == nil {
		return ErrVerifyFailed
	}

	// RHat' = sHat^-1 * (e*G + r*X); this must equal the RHat carried in sig,
	// reconstructing the plain nonce point without needing T's discrete log.
	u1 := new(big.Int).Mul(e, sInv)
	u1.Mod(u1, n)
	u2 := new(big.Int).Mul(r, sInv)
	u2.Mod(u2, n)

	x1, y1 := curve.ScalarBaseMult(u1.Bytes())
	x2, y2 := curve.ScalarMult(pub.x, pub.y, u2.Bytes())
	rHatX, rHatY := curve.Add(x1, y1, x2, y2)

	if rHatX.Cmp(sig.rHatX) != 0 || rHatY.Cmp(sig.rHatY) != 0 {
		return ErrVerifyFailed
	}

	if !verifyDLEQ(&sig.proof, tPub, sig.rHatX, sig.rHatY, sig.rX, sig.rY) {
		return ErrVerifyFailed
	}
	return nil
}

// AdaptorDecrypt turns a presignature into a standard ECDSA signature, given
// the decryption scalar t with t*G equal to the encryption point used at
// signing time. The returned (r, s) pair verifies under the signer's public
// key exactly like any other ECDSA signature.
func AdaptorDecrypt(sig *AdaptorSignature, t *PrivateKey) (r, s *big.Int) {
	tInv := new(big.Int).ModInverse(t.Scalar(), n)
	s = new(big.Int).Mul(sig.sHat, tInv)
	s.Mod(s, n)
	// Canonicalize to low-S, matching Bitcoin's standard signature encoding.
	half := new(big.Int).Rsh(n, 1)
	if s.Cmp(half) > 0 {
		s.Sub(n, s)
	}
	return new(big.Int).Mod(sig.rX, n), s
}

// AdaptorRecover extracts the decryption scalar t from a presignature and the
// final (r, s) ECDSA signature that was published on-chain after decryption,
// and confirms it opens tPub. This is how the losing side of a redeem/refund
// race learns the other party's secret.
func AdaptorRecover(sig *AdaptorSignature, s *big.Int, tPub *PublicKey) (*PrivateKey, error) {
	sInv := new(big.Int).ModInverse(s, n)
	if sInv == nil {
		return nil, ErrRecoverFailed
	}
	candidate := new(big.Int).Mul(sig.sHat, sInv)
	candidate.Mod(candidate, n)

	if t, ok := tryCandidate(candidate, tPub); ok {
		return t, nil
	}
	negated := new(big.Int).Sub(n, candidate)
	if t, ok := tryCandidate(negated, tPub); ok {
		return t, nil
	}
	return nil, ErrRecoverFailed
}

func tryCandidate(candidate *big.Int, tPub *PublicKey) (*PrivateKey, bool) {
	x, y := curve.ScalarBaseMult(candidate.Bytes())
	if x.Cmp(tPub.x) != 0 || y.Cmp(tPub.y) != 0 {
		return nil, false
	}
	priv, err := NewPrivateKeyFromBytes(leftPad32(candidate.Bytes()))
	if err != nil {
		return nil, false
	}
	return priv, true
}

func leftPad32(b []byte) []byte {
	if len(b) >= 32 {
		return b
	}
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out
}

// proveDLEQ proves that the same scalar k satisfies RHat = k*G and R = k*Y
// (for Y = tPub), using a Chaum-Pedersen sigma protocol made non-interactive
// via Fiat-Shamir.
func proveDLEQ(k *big.Int, tPub *PublicKey, rHatX, rHatY, rX, rY *big.Int) *dleqProof {
	u, err := GenerateKey()
	if err != nil {
		// GenerateKey only fails on an exhausted entropy source; there is no
		// sane recovery path for a signing primitive, so surface a proof that
		// will deterministically fail verification rather than panic.
		return &dleqProof{c: big.NewInt(0), z: big.NewInt(0)}
	}
	uScalar := u.Scalar()

	u1x, u1y := curve.ScalarBaseMult(uScalar.Bytes())
	u2x, u2y := curve.ScalarMult(tPub.x, tPub.y, uScalar.Bytes())

	c := fiatShamirChallenge(tPub, rHatX, rHatY, rX, rY, u1x, u1y, u2x, u2y)

	z := new(big.Int).Mul(c, k)
	z.Add(z, uScalar)
	z.Mod(z, n)

	return &dleqProof{c: c, z: z}
}

// verifyDLEQ checks a proof produced by proveDLEQ: that RHat and R share a
// discrete log across bases G and Y (= tPub).
func verifyDLEQ(proof *dleqProof, tPub *PublicKey, rHatX, rHatY, rX, rY *big.Int) bool {
	// U1 = z*G - c*RHat
	zGx, zGy := curve.ScalarBaseMult(proof.z.Bytes())
	cRHatX, cRHatY := curve.ScalarMult(rHatX, rHatY, proof.c.Bytes())
	negCRHatY := new(big.Int).Sub(curve.Params().P, cRHatY)
	u1x, u1y := curve.Add(zGx, zGy, cRHatX, negCRHatY)

	// U2 = z*Y - c*R
	zYx, zYy := curve.ScalarMult(tPub.x, tPub.y, proof.z.Bytes())
	cRx, cRy := curve.ScalarMult(rX, rY, proof.c.Bytes())
	negCRy := new(big.Int).Sub(curve.Params().P, cRy)
	u2x, u2y := curve.Add(zYx, zYy, cRx, negCRy)

	expected := fiatShamirChallenge(tPub, rHatX, rHatY, rX, rY, u1x, u1y, u2x, u2y)
	return expected.Cmp(proof.c) == 0
}

func fiatShamirChallenge(tPub *PublicKey, rHatX, rHatY, rX, rY, u1x, u1y, u2x, u2y *big.Int) *big.Int {
	h := sha256.New()
	for _, v := range []*big.Int{tPub.x, tPub.y, rHatX, rHatY, rX, rY, u1x, u1y, u2x, u2y} {
		h.Write(leftPad32(v.Bytes()))
	}
	c := new(big.Int).SetBytes(h.Sum(nil))
	return c.Mod(c, n)
}
