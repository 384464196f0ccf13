// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package bitcoin

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/athanorlabs/atomic-swap/coins"
)

// Outpoint identifies the UTXO spent by a swap transaction.
type Outpoint struct {
	Hash  chainhash.Hash
	Index uint32
}

// LockParams are the inputs needed to build TxLock, the funder's 2-of-2
// P2WSH deposit that both legs of the swap ultimately spend from.
type LockParams struct {
	FundingOutpoint Outpoint
	FundingValue    coins.SatoshiAmount
	FundingPkScript []byte // the script of FundingOutpoint, for segwit sighash
	Amount          coins.SatoshiAmount
	ChangeAmount    coins.SatoshiAmount
	ChangePkScript  []byte
	MakerPub        *btcec.PublicKey
	TakerPub        *btcec.PublicKey
	Params          *chaincfg.Params
}

// BuiltTx bundles an unsigned transaction with the data needed to sign and
// later to build the next transaction in the chain that spends it.
type BuiltTx struct {
	Tx           *wire.MsgTx
	WitnessScript []byte // only set for outputs spent via P2WSH
	PkScript     []byte  // the pkScript of the output this tx creates at index 0
	Value        coins.SatoshiAmount
}

// LockOutputScript returns the witness script and P2WSH pkScript of a
// 2-of-2 output jointly controlled by makerPub and takerPub. TxLock uses
// this directly; TxCancel reuses the same shape for its own output, so that
// TxCancel's witness can be assembled with the same AttachMultisigWitness
// helper used to spend TxLock.
func LockOutputScript(makerPub, takerPub *btcec.PublicKey, params *chaincfg.Params) (witnessScript, pkScript []byte, err error) {
	witnessScript, err = lockScript(makerPub, takerPub)
	if err != nil {
		return nil, nil, fmt.Errorf("building lock script: %w", err)
	}
	pkScript, err = p2wshAddress(witnessScript, params)
	if err != nil {
		return nil, nil, err
	}
	return witnessScript, pkScript, nil
}

// BuildTxLock constructs the unsigned funding transaction that locks Amount
// into a 2-of-2 P2WSH output shared by the maker and taker. The caller signs
// FundingOutpoint's input out-of-band (it is an ordinary wallet UTXO, not
// part of the swap contract) via txsender.
func BuildTxLock(p *LockParams) (*BuiltTx, error) {
	witnessScript, pkScript, err := LockOutputScript(p.MakerPub, p.TakerPub, p.Params)
	if err != nil {
		return nil, err
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Hash: p.FundingOutpoint.Hash, Index: p.FundingOutpoint.Index},
		Sequence:         wire.MaxTxInSequenceNum,
	})
	tx.AddTxOut(wire.NewTxOut(int64(p.Amount), pkScript))
	if p.ChangeAmount > 0 {
		tx.AddTxOut(wire.NewTxOut(int64(p.ChangeAmount), p.ChangePkScript))
	}

	return &BuiltTx{Tx: tx, WitnessScript: witnessScript, PkScript: pkScript, Value: p.Amount}, nil
}

// SpendParams describes a transaction spending a single P2WSH swap output
// (TxLock's output, or TxCancel's), destined for a single output.
type SpendParams struct {
	PrevOutpoint  Outpoint
	PrevValue     coins.SatoshiAmount
	PrevPkScript  []byte
	WitnessScript []byte
	OutputValue   coins.SatoshiAmount
	OutputScript  []byte
	Sequence      uint32 // relative-locktime sequence, 0 for no timelock
}

// buildSpendTx builds the common shape shared by TxCancel, TxRefund,
// TxPunish, TxEarlyRefund, and TxRedeem: single input from a P2WSH swap
// output, single output to the claimant.
func buildSpendTx(p *SpendParams) *wire.MsgTx {
	tx := wire.NewMsgTx(wire.TxVersion)
	sequence := p.Sequence
	if sequence == 0 {
		sequence = wire.MaxTxInSequenceNum
	}
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Hash: p.PrevOutpoint.Hash, Index: p.PrevOutpoint.Index},
		Sequence:         sequence,
	})
	tx.AddTxOut(wire.NewTxOut(int64(p.OutputValue), p.OutputScript))
	return tx
}

// BuildTxCancel builds the transaction that moves TxLock's output into a new
// 2-of-2 output that TxRefund and TxPunish spend (TxPunish's own nSequence
// carries the t2 delay), enforceable by either party only after t1 blocks
// have passed since TxLock confirmed (spec.md's cancel timelock).
func BuildTxCancel(p *SpendParams, t1 int64) *wire.MsgTx {
	tx := buildSpendTx(p)
	tx.TxIn[0].Sequence = uint32(t1)
	return tx
}

// BuildTxRefund builds the transaction giving the taker back their Bitcoin,
// spending TxCancel's output immediately (TxCancel itself already carries the
// t1 relative-timelock delay; no further delay applies to TxRefund). The
// maker's signature share is an adaptor signature the taker decrypts with
// their own Monero spend-key scalar, per spec.md's refund path.
func BuildTxRefund(p *SpendParams) *wire.MsgTx {
	return buildSpendTx(p)
}

// BuildTxPunish builds the transaction the maker uses to claim TxCancel's
// output once TxCancel has t2 confirmations, unilaterally (the taker's
// signature share is exchanged in advance), without seeing TxRefund, as
// compensation for the taker's failure to complete the swap
// (spec.md's punish path).
func BuildTxPunish(p *SpendParams, t2 int64) *wire.MsgTx {
	tx := buildSpendTx(p)
	tx.TxIn[0].Sequence = uint32(t2)
	return tx
}

// BuildTxRedeem builds the transaction the maker broadcasts to claim
// TxLock's value, using the taker's adaptor-signed share that becomes valid
// only once the maker decrypts it with its own secret (spec.md's redeem
// path, the transaction whose published signature leaks the maker's secret
// to the taker).
func BuildTxRedeem(p *SpendParams) *wire.MsgTx {
	return buildSpendTx(p)
}

// BuildTxEarlyRefund builds the cooperative early-abort transaction,
// available between BtcLocked and XmrLockTransactionSent, letting the taker
// recover their Bitcoin before the maker has committed any Monero
// (spec.md's early refund path, grounded on the original early-refund flow).
func BuildTxEarlyRefund(p *SpendParams) *wire.MsgTx {
	return buildSpendTx(p)
}

// P2WPKHScript returns the pkScript paying to pub's P2WPKH address, used as
// TxEarlyRefund's destination when only a bare refund pubkey (rather than a
// full swap script) is available.
func P2WPKHScript(pub *btcec.PublicKey, params *chaincfg.Params) ([]byte, error) {
	pkHash := btcutil.Hash160(pub.SerializeCompressed())
	addr, err := btcutil.NewAddressWitnessPubKeyHash(pkHash, params)
	if err != nil {
		return nil, fmt.Errorf("deriving P2WPKH address: %w", err)
	}
	return txscript.PayToAddrScript(addr)
}

// SignatureHash computes the BIP-143 segwit sighash for signing a swap
// transaction's sole P2WSH input.
func SignatureHash(tx *wire.MsgTx, prevValue coins.SatoshiAmount, witnessScript []byte) ([]byte, error) {
	fetcher := txscript.NewCannedPrevOutputFetcher(nil, int64(prevValue))
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)
	hash, err := txscript.CalcWitnessSigHash(witnessScript, sigHashes, txscript.SigHashAll, tx, 0, int64(prevValue))
	if err != nil {
		return nil, fmt.Errorf("computing witness sighash: %w", err)
	}
	return hash, nil
}

// AttachMultisigWitness sets tx's witness to the 2-of-2 multisig spend form:
// OP_0 <sigA> <sigB> <witnessScript>. OP_CHECKMULTISIG's well-known off-by-one
// bug requires the leading dummy element.
func AttachMultisigWitness(tx *wire.MsgTx, sigA, sigB, witnessScript []byte) {
	tx.TxIn[0].Witness = wire.TxWitness{nil, sigA, sigB, witnessScript}
}
