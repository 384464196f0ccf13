// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

// Package protocol holds the helpers shared between xmrmaker's and
// xmrtaker's swap state machines: generating a party's DLEQ-bound key pair,
// and sweeping a completed swap's joint Monero wallet out to the owner's
// primary wallet.
package protocol

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/wire"

	"github.com/athanorlabs/atomic-swap/common"
	mcrypto "github.com/athanorlabs/atomic-swap/crypto/monero"
	"github.com/athanorlabs/atomic-swap/crypto/secp256k1"
	"github.com/athanorlabs/atomic-swap/db"
	"github.com/athanorlabs/atomic-swap/dleq"
	moneromod "github.com/athanorlabs/atomic-swap/monero"
)

// ErrSwapIDMismatch is returned by CheckSwapID when an observed transaction
// doesn't pay into the expected swap's locking script.
var ErrSwapIDMismatch = errors.New("observed transaction does not match swap")

// KeysAndProof bundles one party's freshly generated Monero and secp256k1
// key shares together with the DLEQ proof binding them, exactly as needed
// both to send in a SendKeysMessage and to retain locally for later use as
// an adaptor signature's decryption key.
type KeysAndProof struct {
	MoneroSpendKey      *mcrypto.PrivateKey
	MoneroViewKey       *mcrypto.PrivateKey
	Secp256k1PrivateKey *secp256k1.PrivateKey
	DLEqProof           *dleq.Proof
	Secp256k1PublicKey  *secp256k1.PublicKey
	MoneroSpendPub      *mcrypto.PublicKey
}

// GenerateKeysAndProof generates a fresh Monero spend-key share, a fresh
// Monero view-key share, and a DLEQ proof binding the spend-key share's
// scalar to its secp256k1 counterpart (the adaptor signature encryption
// point this party will use).
func GenerateKeysAndProof() (*KeysAndProof, error) {
	viewKey, err := mcrypto.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generating view key share: %w", err)
	}

	var secret [32]byte
	spendScalar, err := secp256k1.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generating spend key share: %w", err)
	}
	copy(secret[:], spendScalar.Bytes())

	proof, secpPub, edPub, err := dleq.Prove(secret)
	if err != nil {
		return nil, fmt.Errorf("proving DLEQ: %w", err)
	}

	spendKey, err := mcrypto.NewPrivateKeyFromScalar(secret)
	if err != nil {
		return nil, fmt.Errorf("deriving spend key share: %w", err)
	}

	return &KeysAndProof{
		MoneroSpendKey:      spendKey,
		MoneroViewKey:       viewKey,
		Secp256k1PrivateKey: spendScalar,
		DLEqProof:           proof,
		Secp256k1PublicKey:  secpPub,
		MoneroSpendPub:      edPub,
	}, nil
}

// ClaimMonero sweeps the joint wallet reconstructed from both parties' spend
// key shares out to dest, once the caller has learned (or always held) the
// complete spend key.
func ClaimMonero(
	ctx context.Context,
	env common.Environment,
	client moneromod.Client,
	jointSpendKey *mcrypto.PrivateKey,
	jointViewKey *mcrypto.PrivateKey,
	walletFilename string,
	dest string,
) error {
	jointAddr := mcrypto.StandardAddress(jointSpendKey.PublicKey(), jointViewKey.PublicKey(), PrefixForEnv(env))

	if err := client.GenerateFromKeys(jointSpendKey, jointViewKey, jointAddr, walletFilename, ""); err != nil {
		return fmt.Errorf("generating joint wallet: %w", err)
	}
	if err := client.OpenWallet(walletFilename, ""); err != nil {
		return fmt.Errorf("opening joint wallet: %w", err)
	}
	defer func() {
		_ = client.CloseWallet()
	}()
	if err := client.Refresh(); err != nil {
		return fmt.Errorf("refreshing joint wallet: %w", err)
	}

	if _, err := client.SweepAll(dest); err != nil {
		return fmt.Errorf("sweeping joint wallet to %s: %w", dest, err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	return nil
}

// CheckSwapID verifies that an observed transaction actually pays into the
// swap identified by info: that its first output's value and locking script
// match what setup agreed on. This is the Bitcoin-native replacement for
// checking an Ethereum contract address against an event log's topic.
func CheckSwapID(tx *wire.MsgTx, info *db.RecoveryInfo) error {
	if len(tx.TxOut) == 0 {
		return fmt.Errorf("%w: transaction has no outputs", ErrSwapIDMismatch)
	}
	out := tx.TxOut[0]
	if out.Value != int64(info.FundingValue) {
		return fmt.Errorf("%w: amount %d does not match expected %d", ErrSwapIDMismatch, out.Value, info.FundingValue)
	}
	if !bytes.Equal(out.PkScript, info.PkScript) {
		return fmt.Errorf("%w: locking script does not match expected swap", ErrSwapIDMismatch)
	}
	return nil
}

// PrefixForEnv selects the Monero address prefix matching a swap
// environment's paired Monero network.
func PrefixForEnv(env common.Environment) mcrypto.AddressPrefix {
	switch env {
	case common.Mainnet:
		return mcrypto.PrefixMainnet
	case common.Stagenet, common.Development:
		return mcrypto.PrefixStagenet
	default:
		return mcrypto.PrefixTestnet
	}
}
