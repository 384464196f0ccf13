// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package monero

import (
	"github.com/athanorlabs/atomic-swap/common"
	mcrypto "github.com/athanorlabs/atomic-swap/crypto/monero"
)

// KeyPair is one party's share of the joint Monero spend/view keys.
type KeyPair struct {
	SpendPriv *mcrypto.PrivateKey // nil for the maker before AdaptorRecover
	SpendPub  *mcrypto.PublicKey
	ViewPriv  *mcrypto.PrivateKey
	ViewPub   *mcrypto.PublicKey
}

// JointKeys is the combined (maker+taker) spend/view keypair that owns the
// swap's shared Monero wallet.
type JointKeys struct {
	SpendPub *mcrypto.PublicKey
	ViewPub  *mcrypto.PublicKey
	ViewPriv *mcrypto.PrivateKey // sum of both parties' view key shares, each exchanged in full
}

// NewJointKeys combines a maker's and a taker's key shares into the joint
// spend/view keypair that both the TxLock-equivalent destination and the
// eventual sweep destination are derived from (spec.md: S = S_a + S_b,
// V = V_a + V_b). The view private key is summed too, since unlike the
// spend key it is never kept secret from either counterparty — both need it
// to watch the shared address for incoming funds.
func NewJointKeys(maker, taker *KeyPair) *JointKeys {
	return &JointKeys{
		SpendPub: maker.SpendPub.Add(taker.SpendPub),
		ViewPub:  maker.ViewPub.Add(taker.ViewPub),
		ViewPriv: maker.ViewPriv.Add(taker.ViewPriv),
	}
}

// Address renders the joint keys as a standard Monero address for env.
func (jk *JointKeys) Address(env common.Environment) string {
	return mcrypto.StandardAddress(jk.SpendPub, jk.ViewPub, prefixForEnv(env))
}

func prefixForEnv(env common.Environment) mcrypto.AddressPrefix {
	switch env {
	case common.Mainnet:
		return mcrypto.PrefixMainnet
	case common.Stagenet, common.Development:
		return mcrypto.PrefixStagenet
	default:
		return mcrypto.PrefixTestnet
	}
}

// JointSpendKey reconstructs the full joint spend private key once both
// shares are known: during ordinary completion the taker recovers the
// maker's share via AdaptorRecover from TxRedeem's published signature; on
// the refund path the maker recovers the taker's share the same way from
// TxRefund's published signature.
func JointSpendKey(maker, taker *mcrypto.PrivateKey) *mcrypto.PrivateKey {
	return maker.Add(taker)
}
