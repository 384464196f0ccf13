// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

// Package xmrmaker manages the swap state of individual swaps where the
// local swapd instance is the maker: it sells Monero and accepts Bitcoin in
// return (spec.md's Alice).
package xmrmaker

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/cockroachdb/apd/v3"
	"github.com/fatih/color"
	logging "github.com/ipfs/go-log"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/athanorlabs/atomic-swap/bitcoin"
	"github.com/athanorlabs/atomic-swap/coins"
	"github.com/athanorlabs/atomic-swap/common"
	"github.com/athanorlabs/atomic-swap/common/types"
	mcrypto "github.com/athanorlabs/atomic-swap/crypto/monero"
	"github.com/athanorlabs/atomic-swap/crypto/secp256k1"
	"github.com/athanorlabs/atomic-swap/db"
	"github.com/athanorlabs/atomic-swap/dleq"
	"github.com/athanorlabs/atomic-swap/net/message"
	pcommon "github.com/athanorlabs/atomic-swap/protocol"
	"github.com/athanorlabs/atomic-swap/protocol/backend"
	pswap "github.com/athanorlabs/atomic-swap/protocol/swap"
)

var log = logging.Logger("xmrmaker")

var (
	errInvalidSendKeysMessage = errors.New("invalid SendKeysMessage")
	errMissingTakerKeys       = errors.New("taker keys not yet received")
	errNoPendingRefundSig     = errors.New("no pending refund adaptor signature for this swap")
	errMalformedWitness       = errors.New("malformed transaction witness")
	// ErrNetworkMismatch is returned by HandleSendKeysMessage when the
	// counterparty's declared network doesn't match this node's configured
	// one; no keys are recorded and no Bitcoin transaction is ever built.
	ErrNetworkMismatch = errors.New("counterparty network does not match local network")
)

// swapState holds one in-progress swap's maker-side state, from setup through
// redeem, refund, or punish.
type swapState struct {
	backend.Backend

	ctx    context.Context
	cancel context.CancelFunc

	info      *pswap.Info
	peerID    peer.ID
	walletDir string

	// our own setup keys
	keys *pcommon.KeysAndProof

	// the taker's setup keys, learned via SendKeysMessage
	takerSecp256k1Pub *secp256k1.PublicKey
	takerMoneroSpend  *mcrypto.PublicKey
	takerMoneroView   *mcrypto.PrivateKey

	t1, t2 int64 // cancel, punish timelocks, in blocks

	// refundSigEnc is the adaptor signature this node produced over TxRefund
	// (its own signature share, encrypted under the taker's secp256k1 key),
	// retained so s_b can be recovered if the taker ever broadcasts TxRefund.
	refundSigEnc *secp256k1.AdaptorSignature

	// lockTx records TxLock's outpoint, value, and witness script once
	// observed on chain, so TxCancel/TxPunish/TxEarlyRefund can be built
	// against it without re-deriving it from the mempool.
	lockTx *bitcoin.BuiltTx

	// unsignedTxCancel, unsignedTxPunish, and unsignedTxEarlyRefund are
	// built once TxLock is known (both sides' witness-less shapes are
	// deterministic), so that the ordinary ECDSA signatures exchanged via
	// NotifyAuxSignatures can be assembled into a broadcastable witness
	// later without rebuilding the transaction.
	unsignedTxCancel, unsignedTxPunish, unsignedTxEarlyRefund, unsignedTxRefund *wire.MsgTx
	cancelWitnessScript, cancelPkScript                                        []byte
	cancelValue                                                                coins.SatoshiAmount

	ourCancelSig, ourPunishSig, ourEarlyRefundSig                         []byte
	counterpartyCancelSig, counterpartyPunishSig, counterpartyEarlyRefundSig []byte
}

// NewSwapStateFromStart begins a maker-side swap immediately after the
// taker's SendKeysMessage (M2) has been received and validated.
func NewSwapStateFromStart(
	b backend.Backend,
	swapID common.SwapID,
	peerID peer.ID,
	offerID types.Hash,
	providedAmount *apd.Decimal, // XMR
	rate *coins.ExchangeRate,
	t1, t2 int64,
	walletDir string,
) (*swapState, error) {
	keys, err := pcommon.GenerateKeysAndProof()
	if err != nil {
		return nil, fmt.Errorf("generating maker keys: %w", err)
	}

	info := &pswap.Info{
		ID:           swapID,
		OfferID:      offerID,
		Role:         pswap.RoleMaker,
		Provided:     providedAmount,
		ExchangeRate: rate,
		Status:       types.KeysExchanged,
	}
	if err := b.SwapManager().AddSwap(info); err != nil {
		return nil, fmt.Errorf("registering swap: %w", err)
	}

	ctx, cancel := context.WithCancel(b.Ctx())
	return &swapState{
		Backend:   b,
		ctx:       ctx,
		cancel:    cancel,
		info:      info,
		peerID:    peerID,
		keys:      keys,
		t1:        t1,
		t2:        t2,
		walletDir: walletDir,
	}, nil
}

// NewSwapStateFromRecovery reconstructs a maker-side swapState from a
// previously persisted db.RecoveryInfo and swap.Info, without re-running
// setup, so a restarted swapd can re-enter observation of a swap that
// crashed mid-flight.
func NewSwapStateFromRecovery(b backend.Backend, info *pswap.Info, recovery *db.RecoveryInfo) (*swapState, error) {
	peerID, err := peer.Decode(recovery.PeerID)
	if err != nil {
		return nil, fmt.Errorf("decoding recovered peer ID: %w", err)
	}

	secpPriv, err := secp256k1.NewPrivateKeyFromBytes(recovery.OurSecp256k1Key)
	if err != nil {
		return nil, fmt.Errorf("restoring secp256k1 key: %w", err)
	}
	spendKey, err := mcrypto.NewPrivateKeyFromScalar(recovery.OurMoneroSpendKey)
	if err != nil {
		return nil, fmt.Errorf("restoring monero spend key: %w", err)
	}
	viewKey, err := mcrypto.NewPrivateKeyFromScalar(recovery.OurMoneroViewKey)
	if err != nil {
		return nil, fmt.Errorf("restoring monero view key: %w", err)
	}

	takerSecpPub, err := secp256k1.NewPublicKeyFromBytes(recovery.TakerPubKey)
	if err != nil {
		return nil, fmt.Errorf("restoring taker secp256k1 key: %w", err)
	}
	takerMoneroSpend, err := mcrypto.NewPublicKeyFromBytes(recovery.CounterpartyMoneroSpendKey)
	if err != nil {
		return nil, fmt.Errorf("restoring taker monero spend key: %w", err)
	}
	takerMoneroView, err := mcrypto.NewPrivateKeyFromScalar(recovery.CounterpartyMoneroViewKey)
	if err != nil {
		return nil, fmt.Errorf("restoring taker monero view key: %w", err)
	}

	ctx, cancel := context.WithCancel(b.Ctx())
	s := &swapState{
		Backend: b,
		ctx:     ctx,
		cancel:  cancel,
		info:    info,
		peerID:  peerID,
		keys: &pcommon.KeysAndProof{
			MoneroSpendKey:      spendKey,
			MoneroViewKey:       viewKey,
			Secp256k1PrivateKey: secpPriv,
			Secp256k1PublicKey:  secpPriv.PublicKey(),
			MoneroSpendPub:      spendKey.PublicKey(),
		},
		takerSecp256k1Pub: takerSecpPub,
		takerMoneroSpend:  takerMoneroSpend,
		takerMoneroView:   takerMoneroView,
		t1:                recovery.CancelTimelock,
		t2:                recovery.PunishTimelock,
		walletDir:         recovery.WalletDir,
	}
	if len(recovery.OurAdaptorSig) > 0 {
		sig, err := secp256k1.AdaptorSignatureFromBytes(recovery.OurAdaptorSig)
		if err != nil {
			return nil, fmt.Errorf("restoring refund adaptor signature: %w", err)
		}
		s.refundSigEnc = sig
	}
	return s, nil
}

// SendKeysMessage builds the maker's M3 reply.
func (s *swapState) SendKeysMessage() *message.SendKeysMessage {
	return &message.SendKeysMessage{
		OfferID:            s.info.OfferID,
		Network:            s.Env(),
		ProvidedAmount:     s.info.Provided,
		PublicSpendKey:     s.keys.MoneroSpendPub.Bytes(),
		PublicViewKey:      s.keys.MoneroViewKey.Bytes(),
		Secp256k1PublicKey: s.keys.Secp256k1PublicKey.Bytes(),
		DLEqProof:          s.keys.DLEqProof.Bytes(),
	}
}

// HandleSendKeysMessage processes the taker's M2 keys: the DLEQ proof must
// verify before any Bitcoin transaction is built, per spec.md's setup
// soundness invariant.
func (s *swapState) HandleSendKeysMessage(msg *message.SendKeysMessage) error {
	if len(msg.Secp256k1PublicKey) == 0 || len(msg.DLEqProof) == 0 {
		return errInvalidSendKeysMessage
	}
	if msg.Network != s.Env() {
		return fmt.Errorf("%w: counterparty=%s local=%s", ErrNetworkMismatch, msg.Network, s.Env())
	}

	secpPub, err := secp256k1.NewPublicKeyFromBytes(msg.Secp256k1PublicKey)
	if err != nil {
		return fmt.Errorf("%w: invalid secp256k1 public key: %s", errInvalidSendKeysMessage, err)
	}
	edPub, err := mcrypto.NewPublicKeyFromBytes(msg.PublicSpendKey)
	if err != nil {
		return fmt.Errorf("%w: invalid monero public spend key: %s", errInvalidSendKeysMessage, err)
	}

	proof, err := dleq.ProofFromBytes(msg.DLEqProof)
	if err != nil {
		return fmt.Errorf("%w: invalid dleq proof encoding: %s", errInvalidSendKeysMessage, err)
	}
	if err := proof.Verify(secpPub, edPub); err != nil {
		return fmt.Errorf("%w: dleq proof: %s", errInvalidSendKeysMessage, err)
	}

	// PublicViewKey carries the taker's view key SHARE as a private scalar
	// (the view key, unlike the spend key, need not stay hidden between
	// peers once a swap is underway).
	viewPriv, err := mcrypto.NewPrivateKeyFromScalar(msg.PublicViewKey)
	if err != nil {
		return fmt.Errorf("%w: invalid monero view key: %s", errInvalidSendKeysMessage, err)
	}

	s.takerSecp256k1Pub = secpPub
	s.takerMoneroSpend = edPub
	s.takerMoneroView = viewPriv
	return nil
}

// LockScriptPubKeys returns the maker and taker secp256k1 public keys in the
// order the Bitcoin 2-of-2 scripts expect (maker first).
func (s *swapState) LockScriptPubKeys() (makerPub, takerPub *btcec.PublicKey, err error) {
	if s.takerSecp256k1Pub == nil {
		return nil, nil, errMissingTakerKeys
	}
	makerPub, err = btcec.ParsePubKey(s.keys.Secp256k1PublicKey.Bytes())
	if err != nil {
		return nil, nil, fmt.Errorf("parsing maker public key: %w", err)
	}
	takerPub, err = btcec.ParsePubKey(s.takerSecp256k1Pub.Bytes())
	if err != nil {
		return nil, nil, fmt.Errorf("parsing taker public key: %w", err)
	}
	return makerPub, takerPub, nil
}

// CheckTxLock verifies that an observed transaction funds this swap's
// expected 2-of-2 script for the agreed amount.
func (s *swapState) CheckTxLock(tx *wire.MsgTx, recovery *db.RecoveryInfo) error {
	if err := pcommon.CheckSwapID(tx, recovery); err != nil {
		return err
	}
	s.lockTx = &bitcoin.BuiltTx{
		Tx:            tx,
		WitnessScript: recovery.WitnessScript,
		PkScript:      recovery.PkScript,
		Value:         recovery.FundingValue,
	}
	s.info.Status = types.BtcLocked
	return nil
}

// BuildAuxSignatures builds TxCancel, TxPunish, and TxEarlyRefund against
// the now-known TxLock outpoint, signs this node's own share of each, and
// returns the NotifyAuxSignatures message to send the taker so that a later
// cancel, punish, or early-refund broadcast never has to wait on a live
// round trip with a counterparty who may no longer be responding.
func (s *swapState) BuildAuxSignatures(params *chaincfg.Params) (*message.NotifyAuxSignatures, error) {
	if s.lockTx == nil {
		return nil, errors.New("TxLock not yet observed")
	}
	makerPub, takerPub, err := s.LockScriptPubKeys()
	if err != nil {
		return nil, err
	}

	lockOutpoint := bitcoin.Outpoint{Hash: s.lockTx.Tx.TxHash(), Index: 0}
	cancelWitnessScript, cancelPkScript, err := bitcoin.LockOutputScript(makerPub, takerPub, params)
	if err != nil {
		return nil, err
	}
	s.cancelWitnessScript = cancelWitnessScript

	cancelFee, err := bitcoin.EstimateFee(bitcoin.CancelTxWeight, bitcoin.MinRelayFeeRate, s.lockTx.Value)
	if err != nil {
		return nil, fmt.Errorf("estimating TxCancel fee: %w", err)
	}
	cancelValue := s.lockTx.Value - cancelFee
	s.cancelValue = cancelValue
	s.cancelPkScript = cancelPkScript
	s.unsignedTxCancel = bitcoin.BuildTxCancel(&bitcoin.SpendParams{
		PrevOutpoint:  lockOutpoint,
		PrevValue:     s.lockTx.Value,
		PrevPkScript:  s.lockTx.PkScript,
		WitnessScript: s.lockTx.WitnessScript,
		OutputValue:   cancelValue,
		OutputScript:  cancelPkScript,
	}, s.t1)
	s.ourCancelSig, err = s.signOwnShare(s.unsignedTxCancel, s.lockTx.Value, s.lockTx.WitnessScript)
	if err != nil {
		return nil, fmt.Errorf("signing TxCancel: %w", err)
	}

	cancelOutpoint := bitcoin.Outpoint{Hash: s.unsignedTxCancel.TxHash(), Index: 0}
	punishDestScript, err := bitcoin.P2WPKHScript(makerPub, params)
	if err != nil {
		return nil, fmt.Errorf("deriving punish destination: %w", err)
	}
	punishFee, err := bitcoin.EstimateFee(bitcoin.PunishTxWeight, bitcoin.MinRelayFeeRate, cancelValue)
	if err != nil {
		return nil, fmt.Errorf("estimating TxPunish fee: %w", err)
	}
	s.unsignedTxPunish = bitcoin.BuildTxPunish(&bitcoin.SpendParams{
		PrevOutpoint:  cancelOutpoint,
		PrevValue:     cancelValue,
		PrevPkScript:  cancelPkScript,
		WitnessScript: cancelWitnessScript,
		OutputValue:   cancelValue - punishFee,
		OutputScript:  punishDestScript,
	}, s.t2)
	s.ourPunishSig, err = s.signOwnShare(s.unsignedTxPunish, cancelValue, cancelWitnessScript)
	if err != nil {
		return nil, fmt.Errorf("signing TxPunish: %w", err)
	}

	earlyRefundDestScript, err := bitcoin.P2WPKHScript(takerPub, params)
	if err != nil {
		return nil, fmt.Errorf("deriving early-refund destination: %w", err)
	}
	earlyRefundFee, err := bitcoin.EstimateFee(bitcoin.EarlyRefundTxWeight, bitcoin.MinRelayFeeRate, s.lockTx.Value)
	if err != nil {
		return nil, fmt.Errorf("estimating TxEarlyRefund fee: %w", err)
	}
	s.unsignedTxEarlyRefund = bitcoin.BuildTxEarlyRefund(&bitcoin.SpendParams{
		PrevOutpoint:  lockOutpoint,
		PrevValue:     s.lockTx.Value,
		PrevPkScript:  s.lockTx.PkScript,
		WitnessScript: s.lockTx.WitnessScript,
		OutputValue:   s.lockTx.Value - earlyRefundFee,
		OutputScript:  earlyRefundDestScript,
	})
	s.ourEarlyRefundSig, err = s.signOwnShare(s.unsignedTxEarlyRefund, s.lockTx.Value, s.lockTx.WitnessScript)
	if err != nil {
		return nil, fmt.Errorf("signing TxEarlyRefund: %w", err)
	}

	return &message.NotifyAuxSignatures{
		SwapID:           s.info.ID,
		TxCancelSig:      s.ourCancelSig,
		TxPunishSig:      s.ourPunishSig,
		TxEarlyRefundSig: s.ourEarlyRefundSig,
	}, nil
}

// SetCounterpartyAuxSignatures records the taker's signature shares over
// TxCancel, TxPunish, and TxEarlyRefund. An invalid signature is caught at
// broadcast time by network consensus, so it is not separately verified
// here.
func (s *swapState) SetCounterpartyAuxSignatures(msg *message.NotifyAuxSignatures) {
	s.counterpartyCancelSig = msg.TxCancelSig
	s.counterpartyPunishSig = msg.TxPunishSig
	s.counterpartyEarlyRefundSig = msg.TxEarlyRefundSig
}

// signOwnShare signs tx's sole input with this node's own setup key,
// returning a DER signature with the SigHashAll byte appended.
func (s *swapState) signOwnShare(tx *wire.MsgTx, prevValue coins.SatoshiAmount, witnessScript []byte) ([]byte, error) {
	sigHash, err := bitcoin.SignatureHash(tx, prevValue, witnessScript)
	if err != nil {
		return nil, err
	}
	var msg [32]byte
	copy(msg[:], sigHash)
	sig, err := s.keys.Secp256k1PrivateKey.Sign(msg)
	if err != nil {
		return nil, err
	}
	return append(sig, byte(txscript.SigHashAll)), nil
}

// BuildSignedTxCancel assembles TxCancel's witness from both sides' shares,
// ready to broadcast once the cancel timelock has expired.
func (s *swapState) BuildSignedTxCancel() (*wire.MsgTx, error) {
	if s.unsignedTxCancel == nil || s.counterpartyCancelSig == nil {
		return nil, errors.New("TxCancel signatures not yet available")
	}
	bitcoin.AttachMultisigWitness(s.unsignedTxCancel, s.ourCancelSig, s.counterpartyCancelSig, s.lockTx.WitnessScript)
	return s.unsignedTxCancel, nil
}

// BuildSignedTxPunish assembles TxPunish's witness from both sides' shares,
// ready to broadcast once the punish timelock has expired without a refund.
func (s *swapState) BuildSignedTxPunish() (*wire.MsgTx, error) {
	if s.unsignedTxPunish == nil || s.counterpartyPunishSig == nil {
		return nil, errors.New("TxPunish signatures not yet available")
	}
	bitcoin.AttachMultisigWitness(s.unsignedTxPunish, s.ourPunishSig, s.counterpartyPunishSig, s.cancelWitnessScript)
	return s.unsignedTxPunish, nil
}

// BuildSignedTxEarlyRefund assembles TxEarlyRefund's witness from both
// sides' shares, letting the taker recover their Bitcoin before any Monero
// has been committed.
func (s *swapState) BuildSignedTxEarlyRefund() (*wire.MsgTx, error) {
	if s.unsignedTxEarlyRefund == nil || s.counterpartyEarlyRefundSig == nil {
		return nil, errors.New("TxEarlyRefund signatures not yet available")
	}
	bitcoin.AttachMultisigWitness(s.unsignedTxEarlyRefund, s.ourEarlyRefundSig, s.counterpartyEarlyRefundSig, s.lockTx.WitnessScript)
	return s.unsignedTxEarlyRefund, nil
}

// SetRefundAdaptorSig records the adaptor signature this node produced over
// TxRefund, for later use by HandleTxRefundObserved if the taker refunds.
func (s *swapState) SetRefundAdaptorSig(sig *secp256k1.AdaptorSignature) {
	s.refundSigEnc = sig
}

// BuildRefundAdaptorSignature builds TxRefund against TxCancel's known
// output, adaptor-signs it under the taker's secp256k1 key, and returns the
// NotifyRefundAdaptorSignature to send: the taker can trivially decrypt and
// complete it with their own key, and broadcasting it is what later lets
// HandleTxRefundObserved recover the taker's Monero spend key share.
func (s *swapState) BuildRefundAdaptorSignature(params *chaincfg.Params) (*message.NotifyRefundAdaptorSignature, error) {
	if s.unsignedTxCancel == nil {
		return nil, errors.New("TxCancel not yet built")
	}
	_, takerPub, err := s.LockScriptPubKeys()
	if err != nil {
		return nil, err
	}

	refundDestScript, err := bitcoin.P2WPKHScript(takerPub, params)
	if err != nil {
		return nil, fmt.Errorf("deriving refund destination: %w", err)
	}
	refundFee, err := bitcoin.EstimateFee(bitcoin.RefundTxWeight, bitcoin.MinRelayFeeRate, s.cancelValue)
	if err != nil {
		return nil, fmt.Errorf("estimating TxRefund fee: %w", err)
	}
	refundTx := bitcoin.BuildTxRefund(&bitcoin.SpendParams{
		PrevOutpoint:  bitcoin.Outpoint{Hash: s.unsignedTxCancel.TxHash(), Index: 0},
		PrevValue:     s.cancelValue,
		PrevPkScript:  s.cancelPkScript,
		WitnessScript: s.cancelWitnessScript,
		OutputValue:   s.cancelValue - refundFee,
		OutputScript:  refundDestScript,
	})
	s.unsignedTxRefund = refundTx

	sigHash, err := bitcoin.SignatureHash(refundTx, s.cancelValue, s.cancelWitnessScript)
	if err != nil {
		return nil, fmt.Errorf("computing TxRefund sighash: %w", err)
	}
	var msg [32]byte
	copy(msg[:], sigHash)

	encSig, err := secp256k1.AdaptorSign(s.keys.Secp256k1PrivateKey, msg, s.takerSecp256k1Pub)
	if err != nil {
		return nil, fmt.Errorf("adaptor-signing TxRefund: %w", err)
	}
	s.refundSigEnc = encSig

	return &message.NotifyRefundAdaptorSignature{
		SwapID:             s.info.ID,
		EncryptedSignature: encSig.Bytes(),
	}, nil
}

// jointAddress returns the shared Monero address this swap's XMR is locked
// to: S = S_maker + S_taker, V = v_maker + v_taker.
func (s *swapState) jointAddress() string {
	spend := s.keys.MoneroSpendPub.Add(s.takerMoneroSpend)
	view := s.keys.MoneroViewKey.Add(s.takerMoneroView)
	return mcrypto.StandardAddress(spend, view, pcommon.PrefixForEnv(s.Env()))
}

// LockXMR transfers amount to the joint Monero address once TxLock has
// reached finality, and returns the NotifyTransferProof to send the taker.
func (s *swapState) LockXMR(amount coins.PiconeroAmount) (*message.NotifyTransferProof, error) {
	if s.takerMoneroSpend == nil {
		return nil, errMissingTakerKeys
	}
	dest := s.jointAddress()
	log.Infof("locking %s XMR to joint address %s", amount.AsMoneroString(), dest)

	result, err := s.XMRClient().Transfer(dest, amount.AsPiconero())
	if err != nil {
		return nil, fmt.Errorf("transferring to joint address: %w", err)
	}

	s.info.Status = types.XmrLockTransactionSent
	return &message.NotifyTransferProof{TxHash: result.TxHash, TxKey: result.TxKey}, nil
}

// HandleEncryptedSignature verifies the taker's adaptor signature on
// TxRedeem (encrypted under the maker's own secp256k1 key), builds TxRedeem
// against the known TxLock outpoint, signs the maker's own ordinary share,
// decrypts the taker's share, and attaches the completed witness, ready to
// broadcast and claim the Bitcoin.
func (s *swapState) HandleEncryptedSignature(
	params *chaincfg.Params,
	encSig *secp256k1.AdaptorSignature,
) (*wire.MsgTx, error) {
	if s.lockTx == nil {
		return nil, errors.New("TxLock not yet observed")
	}
	makerPub, _, err := s.LockScriptPubKeys()
	if err != nil {
		return nil, err
	}

	redeemDestScript, err := bitcoin.P2WPKHScript(makerPub, params)
	if err != nil {
		return nil, fmt.Errorf("deriving redeem destination: %w", err)
	}
	redeemFee, err := bitcoin.EstimateFee(bitcoin.RedeemTxWeight, bitcoin.MinRelayFeeRate, s.lockTx.Value)
	if err != nil {
		return nil, fmt.Errorf("estimating TxRedeem fee: %w", err)
	}
	redeemTx := bitcoin.BuildTxRedeem(&bitcoin.SpendParams{
		PrevOutpoint:  bitcoin.Outpoint{Hash: s.lockTx.Tx.TxHash(), Index: 0},
		PrevValue:     s.lockTx.Value,
		PrevPkScript:  s.lockTx.PkScript,
		WitnessScript: s.lockTx.WitnessScript,
		OutputValue:   s.lockTx.Value - redeemFee,
		OutputScript:  redeemDestScript,
	})

	sigHash, err := bitcoin.SignatureHash(redeemTx, s.lockTx.Value, s.lockTx.WitnessScript)
	if err != nil {
		return nil, fmt.Errorf("computing TxRedeem sighash: %w", err)
	}
	var msg [32]byte
	copy(msg[:], sigHash)

	if err := secp256k1.AdaptorVerify(s.takerSecp256k1Pub, msg, s.keys.Secp256k1PublicKey, encSig); err != nil {
		return nil, fmt.Errorf("verifying encrypted signature: %w", err)
	}
	s.info.Status = types.EncSigLearned

	makerSig, err := s.signOwnShare(redeemTx, s.lockTx.Value, s.lockTx.WitnessScript)
	if err != nil {
		return nil, fmt.Errorf("signing TxRedeem: %w", err)
	}

	r, sVal := secp256k1.AdaptorDecrypt(encSig, s.keys.Secp256k1PrivateKey)
	takerSig := append(secp256k1.SerializeDERSignature(r, sVal), byte(1)) // SigHashAll

	bitcoin.AttachMultisigWitness(redeemTx, makerSig, takerSig, s.lockTx.WitnessScript)
	s.info.Status = types.BtcRedeemTransactionPublished
	return redeemTx, nil
}

// HandleTxRefundObserved is called once TxRefund is seen confirmed on chain:
// it recovers the taker's Monero spend key share from the now-decrypted
// signature embedded in refundTx's witness, reconstructs the joint spend
// key, and sweeps the locked XMR back to the maker's own wallet.
func (s *swapState) HandleTxRefundObserved(refundTx *wire.MsgTx, ourWalletAddress string) error {
	if s.refundSigEnc == nil {
		return errNoPendingRefundSig
	}
	if len(refundTx.TxIn) == 0 || len(refundTx.TxIn[0].Witness) < 4 {
		return errMalformedWitness
	}

	// AttachMultisigWitness lays out [nil, makerSig, takerSig, witnessScript];
	// the maker's own signature share is what the taker decrypted and
	// attached, so it is the one that reveals s_b via AdaptorRecover.
	ourDecryptedSig := refundTx.TxIn[0].Witness[1]
	if len(ourDecryptedSig) < 1 {
		return errMalformedWitness
	}
	_, sVal, err := secp256k1.ParseDERSignature(ourDecryptedSig[:len(ourDecryptedSig)-1])
	if err != nil {
		return fmt.Errorf("parsing TxRefund signature: %w", err)
	}

	takerScalar, err := secp256k1.AdaptorRecover(s.refundSigEnc, sVal, s.takerSecp256k1Pub)
	if err != nil {
		return fmt.Errorf("recovering taker's monero key share: %w", err)
	}

	var scalarBytes [32]byte
	copy(scalarBytes[:], takerScalar.Bytes())
	takerSpend, err := mcrypto.NewPrivateKeyFromScalar(scalarBytes)
	if err != nil {
		return fmt.Errorf("deriving taker's monero spend key: %w", err)
	}

	jointSpend := s.keys.MoneroSpendKey.Add(takerSpend)
	jointView := s.keys.MoneroViewKey.Add(s.takerMoneroView)

	walletFile := fmt.Sprintf("%s/%s-refund", s.walletDir, s.info.ID)
	if err := pcommon.ClaimMonero(s.ctx, s.Env(), s.XMRClient(), jointSpend, jointView, walletFile, ourWalletAddress); err != nil {
		return fmt.Errorf("sweeping recovered monero: %w", err)
	}

	s.info.Status = types.CompletedRefund
	return nil
}

// HandlePunished marks the swap as punished, once TxPunish has been
// broadcast because the taker never completed the redeem and never
// refunded before the punish timelock expired.
func (s *swapState) HandlePunished() {
	s.info.Status = types.CompletedPunished
}

// NotifyCooperativeRedeem responds to the taker's post-punish recovery
// request. Once TxPunish has been broadcast the maker has already secured
// the Bitcoin, so there is nothing left to lose by releasing its Monero
// spend key share and letting the taker recover the Monero too; outside
// that state the request is refused.
func (s *swapState) NotifyCooperativeRedeem(_ *message.NotifyCooperativeRedeem) *message.NotifyCooperativeRedeem {
	resp := &message.NotifyCooperativeRedeem{SwapID: s.info.ID}
	if s.info.Status != types.CompletedPunished {
		return resp
	}
	var share [32]byte
	copy(share[:], s.keys.MoneroSpendKey.Bytes())
	resp.MakerSpendKeyShare = share
	return resp
}

// ID returns the swap's unique identifier.
func (s *swapState) ID() common.SwapID { return s.info.ID }

// Status returns the swap's current status.
func (s *swapState) Status() types.Status { return s.info.Status }

// PeerID returns the counterparty's libp2p peer ID.
func (s *swapState) PeerID() peer.ID { return s.peerID }

// Info returns the swap's manager-visible info record.
func (s *swapState) Info() *pswap.Info { return s.info }

// CancelTimelock returns t1: the confirmation depth, in blocks, TxLock must
// reach before TxCancel can be broadcast.
func (s *swapState) CancelTimelock() int64 { return s.t1 }

// PunishTimelock returns the confirmation depth TxCancel must reach before
// TxPunish becomes spendable.
func (s *swapState) PunishTimelock() int64 { return s.t2 }

// PendingCancelTxHash returns TxCancel's txid once it has been built, so a
// watcher can be pointed at it without waiting for broadcast.
func (s *swapState) PendingCancelTxHash() (chainhash.Hash, bool) {
	if s.unsignedTxCancel == nil {
		return chainhash.Hash{}, false
	}
	return s.unsignedTxCancel.TxHash(), true
}

// PendingPunishTxHash returns TxPunish's txid once it has been built.
func (s *swapState) PendingPunishTxHash() (chainhash.Hash, bool) {
	if s.unsignedTxPunish == nil {
		return chainhash.Hash{}, false
	}
	return s.unsignedTxPunish.TxHash(), true
}

// PendingRefundTxHash returns TxRefund's deterministic txid once
// BuildRefundAdaptorSignature has built it, letting a watcher notice the
// taker's broadcast without the maker ever receiving a message about it.
func (s *swapState) PendingRefundTxHash() (chainhash.Hash, bool) {
	if s.unsignedTxRefund == nil {
		return chainhash.Hash{}, false
	}
	return s.unsignedTxRefund.TxHash(), true
}

// BuildRecoveryInfo persists everything needed to reconstruct this
// swapState via NewSwapStateFromRecovery, so a restarted swapd can
// re-enter observation of a swap that crashed mid-flight.
func (s *swapState) BuildRecoveryInfo() (*db.RecoveryInfo, error) {
	if s.lockTx == nil {
		return nil, errors.New("TxLock not yet observed")
	}
	makerPub, takerPub, err := s.LockScriptPubKeys()
	if err != nil {
		return nil, err
	}

	info := &db.RecoveryInfo{
		FundingOutpoint:            bitcoin.Outpoint{Hash: s.lockTx.Tx.TxHash(), Index: 0},
		FundingValue:               s.lockTx.Value,
		WitnessScript:              s.lockTx.WitnessScript,
		PkScript:                   s.lockTx.PkScript,
		MakerPubKey:                makerPub.SerializeCompressed(),
		TakerPubKey:                takerPub.SerializeCompressed(),
		CancelTimelock:             s.t1,
		PunishTimelock:             s.t2,
		PeerID:                     s.peerID.String(),
		WalletDir:                  s.walletDir,
		OurSecp256k1Key:            s.keys.Secp256k1PrivateKey.Bytes(),
		OurMoneroSpendKey:          s.keys.MoneroSpendKey.Bytes(),
		OurMoneroViewKey:           s.keys.MoneroViewKey.Bytes(),
		CounterpartyMoneroSpendKey: s.takerMoneroSpend.Bytes(),
		CounterpartyMoneroViewKey:  s.takerMoneroView.Bytes(),
	}
	if s.refundSigEnc != nil {
		info.OurAdaptorSig = s.refundSigEnc.Bytes()
	}
	return info, nil
}

// Exit marks the swap as aborted if it has not otherwise reached a terminal
// status, and releases the swap's resources.
func (s *swapState) Exit() error {
	defer s.cancel()
	if s.info.Status.IsOngoing() {
		s.info.Status = types.CompletedAbort
	}
	if err := s.SwapManager().CompleteOngoingSwap(s.info); err != nil {
		return fmt.Errorf("marking swap complete: %w", err)
	}
	log.Info(color.New(color.Bold).Sprintf("swap %s exited with status %s", s.info.ID, s.info.Status))
	return nil
}
