// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

// Package xmrtaker manages the swap state of individual swaps where the
// local swapd instance is the taker: it sells Bitcoin and accepts Monero in
// return (spec.md's Bob).
package xmrtaker

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
	"github.com/athanorlabs/atomic-swap/monero"
	"github.com/athanorlabs/atomic-swap/net/message"
	pcommon "github.com/athanorlabs/atomic-swap/protocol"
	"github.com/athanorlabs/atomic-swap/protocol/backend"
	pswap "github.com/athanorlabs/atomic-swap/protocol/swap"
)

var log = logging.Logger("xmrtaker")

var (
	errInvalidSendKeysMessage = errors.New("invalid SendKeysMessage")
	errMissingMakerKeys       = errors.New("maker keys not yet received")
	errMissingTransferProof   = errors.New("no Monero transfer proof received for this swap")
	errMalformedWitness       = errors.New("malformed transaction witness")
	errCooperativeRedeemRejected = errors.New("maker rejected cooperative redeem request")
	// ErrNetworkMismatch is returned by HandleSendKeysMessage when the
	// counterparty's declared network doesn't match this node's configured
	// one; no keys are recorded and no Bitcoin transaction is ever built.
	ErrNetworkMismatch = errors.New("counterparty network does not match local network")
)

// swapState holds one in-progress swap's taker-side state, from setup
// through redeem, refund, or recovering from a maker punish.
type swapState struct {
	backend.Backend

	ctx    context.Context
	cancel context.CancelFunc

	info      *pswap.Info
	peerID    peer.ID
	walletDir string

	// our own setup keys
	keys *pcommon.KeysAndProof

	// the maker's setup keys, learned via SendKeysMessage
	makerSecp256k1Pub *secp256k1.PublicKey
	makerMoneroSpend  *mcrypto.PublicKey
	makerMoneroView   *mcrypto.PrivateKey

	t1, t2 int64 // cancel, punish timelocks, in blocks

	lockTx *bitcoin.BuiltTx

	unsignedTxCancel, unsignedTxPunish, unsignedTxEarlyRefund, unsignedTxRedeem *wire.MsgTx
	cancelWitnessScript, cancelPkScript                                        []byte
	cancelValue                                                                coins.SatoshiAmount

	ourCancelSig, ourPunishSig, ourEarlyRefundSig                           []byte
	counterpartyCancelSig, counterpartyPunishSig, counterpartyEarlyRefundSig []byte

	// xmrLockProof is the maker's claimed Monero transfer, received via
	// NotifyTransferProof ahead of the confirmation wait.
	xmrLockProof *message.NotifyTransferProof

	// redeemSigEnc is the adaptor signature this node produced over
	// TxRedeem (its own signature share, encrypted under the maker's
	// secp256k1 key), sent to the maker as the NotifyEncryptedSignature
	// and retained so s_a can be recovered once TxRedeem appears on chain.
	redeemSigEnc *secp256k1.AdaptorSignature
}

// NewSwapStateFromStart begins a taker-side swap immediately after this
// node has decided to take an offer and generated its own setup keys.
func NewSwapStateFromStart(
	b backend.Backend,
	swapID common.SwapID,
	peerID peer.ID,
	offerID types.Hash,
	providedAmount *apd.Decimal, // BTC
	rate *coins.ExchangeRate,
	t1, t2 int64,
	walletDir string,
) (*swapState, error) {
	keys, err := pcommon.GenerateKeysAndProof()
	if err != nil {
		return nil, fmt.Errorf("generating taker keys: %w", err)
	}

	info := &pswap.Info{
		ID:           swapID,
		OfferID:      offerID,
		Role:         pswap.RoleTaker,
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

// NewSwapStateFromRecovery reconstructs a taker-side swapState from a
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

	makerSecpPub, err := secp256k1.NewPublicKeyFromBytes(recovery.MakerPubKey)
	if err != nil {
		return nil, fmt.Errorf("restoring maker secp256k1 key: %w", err)
	}
	makerMoneroSpend, err := mcrypto.NewPublicKeyFromBytes(recovery.CounterpartyMoneroSpendKey)
	if err != nil {
		return nil, fmt.Errorf("restoring maker monero spend key: %w", err)
	}
	makerMoneroView, err := mcrypto.NewPrivateKeyFromScalar(recovery.CounterpartyMoneroViewKey)
	if err != nil {
		return nil, fmt.Errorf("restoring maker monero view key: %w", err)
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
		makerSecp256k1Pub: makerSecpPub,
		makerMoneroSpend:  makerMoneroSpend,
		makerMoneroView:   makerMoneroView,
		t1:                recovery.CancelTimelock,
		t2:                recovery.PunishTimelock,
		walletDir:         recovery.WalletDir,
	}
	if len(recovery.WitnessScript) > 0 {
		s.lockTx = &bitcoin.BuiltTx{
			WitnessScript: recovery.WitnessScript,
			PkScript:      recovery.PkScript,
			Value:         recovery.FundingValue,
		}
	}
	if len(recovery.OurAdaptorSig) > 0 {
		sig, err := secp256k1.AdaptorSignatureFromBytes(recovery.OurAdaptorSig)
		if err != nil {
			return nil, fmt.Errorf("restoring redeem adaptor signature: %w", err)
		}
		s.redeemSigEnc = sig
	}
	return s, nil
}

// SendKeysMessage builds the taker's M2 message.
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

// HandleSendKeysMessage processes the maker's M3 keys: the DLEQ proof must
// verify before TxLock is built, per spec.md's setup soundness invariant.
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

	viewPriv, err := mcrypto.NewPrivateKeyFromScalar(msg.PublicViewKey)
	if err != nil {
		return fmt.Errorf("%w: invalid monero view key: %s", errInvalidSendKeysMessage, err)
	}

	s.makerSecp256k1Pub = secpPub
	s.makerMoneroSpend = edPub
	s.makerMoneroView = viewPriv
	return nil
}

// LockScriptPubKeys returns the maker and taker secp256k1 public keys in the
// order the Bitcoin 2-of-2 scripts expect (maker first).
func (s *swapState) LockScriptPubKeys() (makerPub, takerPub *btcec.PublicKey, err error) {
	if s.makerSecp256k1Pub == nil {
		return nil, nil, errMissingMakerKeys
	}
	makerPub, err = btcec.ParsePubKey(s.makerSecp256k1Pub.Bytes())
	if err != nil {
		return nil, nil, fmt.Errorf("parsing maker public key: %w", err)
	}
	takerPub, err = btcec.ParsePubKey(s.keys.Secp256k1PublicKey.Bytes())
	if err != nil {
		return nil, nil, fmt.Errorf("parsing taker public key: %w", err)
	}
	return makerPub, takerPub, nil
}

// SetLockTx records the broadcast TxLock so later stages (TxRedeem,
// TxCancel, TxRefund) know what outpoint and script they spend.
func (s *swapState) SetLockTx(tx *bitcoin.BuiltTx) {
	s.lockTx = tx
	s.info.Status = types.BtcLocked
}

// CheckTxLock verifies that the taker's own broadcast TxLock matches the
// locally recorded recovery info, guarding against a wallet-level bug that
// would otherwise silently fund the wrong script.
func (s *swapState) CheckTxLock(tx *wire.MsgTx, recovery *db.RecoveryInfo) error {
	return pcommon.CheckSwapID(tx, recovery)
}

// BuildAuxSignatures builds TxCancel, TxPunish, and TxEarlyRefund from the
// now-known TxLock outpoint, signs the taker's own share of each, and
// returns them for the maker to countersign. TxPunish pays out to the
// maker's own pubkey and TxEarlyRefund to the taker's, mirroring the
// destinations the maker computes independently, so both parties arrive at
// identical unsigned transactions without a further round trip.
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

// SetCounterpartyAuxSignatures records the maker's signature shares over
// TxCancel, TxPunish, and TxEarlyRefund. An invalid signature is caught at
// broadcast time by network consensus, so it is not separately verified
// here.
func (s *swapState) SetCounterpartyAuxSignatures(msg *message.NotifyAuxSignatures) {
	s.counterpartyCancelSig = msg.TxCancelSig
	s.counterpartyPunishSig = msg.TxPunishSig
	s.counterpartyEarlyRefundSig = msg.TxEarlyRefundSig
}

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

// BuildSignedTxCancel assembles TxCancel's witness from both parties'
// signature shares, ready to broadcast once the cancel timelock has passed.
func (s *swapState) BuildSignedTxCancel() (*wire.MsgTx, error) {
	if s.unsignedTxCancel == nil || s.counterpartyCancelSig == nil {
		return nil, errors.New("TxCancel signatures not yet available")
	}
	bitcoin.AttachMultisigWitness(s.unsignedTxCancel, s.counterpartyCancelSig, s.ourCancelSig, s.lockTx.WitnessScript)
	return s.unsignedTxCancel, nil
}

// BuildSignedTxPunish assembles TxPunish's witness, available to the maker
// once the punish timelock has passed on an unrefunded TxCancel.
func (s *swapState) BuildSignedTxPunish() (*wire.MsgTx, error) {
	if s.unsignedTxPunish == nil || s.counterpartyPunishSig == nil {
		return nil, errors.New("TxPunish signatures not yet available")
	}
	bitcoin.AttachMultisigWitness(s.unsignedTxPunish, s.counterpartyPunishSig, s.ourPunishSig, s.cancelWitnessScript)
	return s.unsignedTxPunish, nil
}

// BuildSignedTxEarlyRefund assembles TxEarlyRefund's witness, letting the
// taker recover their Bitcoin cooperatively before the maker has committed
// any Monero.
func (s *swapState) BuildSignedTxEarlyRefund() (*wire.MsgTx, error) {
	if s.unsignedTxEarlyRefund == nil || s.counterpartyEarlyRefundSig == nil {
		return nil, errors.New("TxEarlyRefund signatures not yet available")
	}
	bitcoin.AttachMultisigWitness(s.unsignedTxEarlyRefund, s.counterpartyEarlyRefundSig, s.ourEarlyRefundSig, s.lockTx.WitnessScript)
	return s.unsignedTxEarlyRefund, nil
}

// jointAddress returns the shared Monero address this swap's XMR is locked
// to: S = S_maker + S_taker, V = v_maker + v_taker.
func (s *swapState) jointAddress() string {
	spend := s.makerMoneroSpend.Add(s.keys.MoneroSpendPub)
	view := s.makerMoneroView.Add(s.keys.MoneroViewKey)
	return mcrypto.StandardAddress(spend, view, pcommon.PrefixForEnv(s.Env()))
}

// HandleNotifyTransferProof records the maker's claimed Monero transfer
// ahead of the confirmation wait.
func (s *swapState) HandleNotifyTransferProof(proof *message.NotifyTransferProof) error {
	if proof == nil || proof.TxHash == "" {
		return errMissingTransferProof
	}
	s.xmrLockProof = proof
	return nil
}

// HandleNotifyXMRLock waits until the Monero chain has advanced
// MinSpendConfirmations blocks past its current height, then sets
// XmrLockTransactionSent. It does not check the recorded transfer proof's
// destination or amount against the joint address and the agreed amount,
// and does not look up that transfer's own confirmations.
func (s *swapState) HandleNotifyXMRLock(amount coins.PiconeroAmount) error {
	if s.makerMoneroSpend == nil {
		return errMissingMakerKeys
	}
	if s.xmrLockProof == nil {
		return errMissingTransferProof
	}
	dest := s.jointAddress()

	height, err := s.XMRClient().GetHeight()
	if err != nil {
		return fmt.Errorf("querying monero chain height: %w", err)
	}
	if err := monero.WaitForConfirmations(s.ctx, s.XMRClient(), height, monero.MinSpendConfirmations); err != nil {
		return fmt.Errorf("waiting for monero lock finality: %w", err)
	}

	log.Infof("observed monero lock (tx %s) of %s to joint address %s", s.xmrLockProof.TxHash, amount.AsMoneroString(), dest)
	s.info.Status = types.XmrLockTransactionSent
	return nil
}

// SignTxRedeem builds TxRedeem against the known TxLock outpoint
// (deterministically, the same way the maker will independently rebuild it)
// and produces the taker's own adaptor signature over it, encrypted under
// the maker's secp256k1 public key: only once the maker decrypts it with
// their own s_a and broadcasts does s_a leak back to the taker (spec.md's
// redeem path).
func (s *swapState) SignTxRedeem(params *chaincfg.Params) (*message.NotifyEncryptedSignature, error) {
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

	encSig, err := secp256k1.AdaptorSign(s.keys.Secp256k1PrivateKey, msg, s.makerSecp256k1Pub)
	if err != nil {
		return nil, fmt.Errorf("adaptor-signing TxRedeem: %w", err)
	}

	s.unsignedTxRedeem = redeemTx
	s.redeemSigEnc = encSig
	return &message.NotifyEncryptedSignature{
		SwapID:             s.info.ID,
		EncryptedSignature: encSig.Bytes(),
	}, nil
}

// HandleTxRedeemObserved is called once TxRedeem is seen confirmed on
// chain: it recovers the maker's Monero spend key share from the now
// decrypted signature embedded in redeemTx's witness, reconstructs the
// joint spend key, and sweeps the locked XMR out to the taker's own
// wallet.
func (s *swapState) HandleTxRedeemObserved(redeemTx *wire.MsgTx, ourWalletAddress string) error {
	if s.redeemSigEnc == nil {
		return errors.New("no pending redeem adaptor signature for this swap")
	}
	if len(redeemTx.TxIn) == 0 || len(redeemTx.TxIn[0].Witness) < 4 {
		return errMalformedWitness
	}

	// AttachMultisigWitness lays out [nil, makerSig, takerSig, witnessScript];
	// TxRedeem's encrypted share is the taker's own, decrypted by the maker
	// and placed in the sigB (taker) position.
	ourDecryptedSig := redeemTx.TxIn[0].Witness[2]
	if len(ourDecryptedSig) < 1 {
		return errMalformedWitness
	}
	_, sVal, err := secp256k1.ParseDERSignature(ourDecryptedSig[:len(ourDecryptedSig)-1])
	if err != nil {
		return fmt.Errorf("parsing TxRedeem signature: %w", err)
	}

	makerScalar, err := secp256k1.AdaptorRecover(s.redeemSigEnc, sVal, s.makerSecp256k1Pub)
	if err != nil {
		return fmt.Errorf("recovering maker's monero key share: %w", err)
	}

	var scalarBytes [32]byte
	copy(scalarBytes[:], makerScalar.Bytes())
	makerSpend, err := mcrypto.NewPrivateKeyFromScalar(scalarBytes)
	if err != nil {
		return fmt.Errorf("deriving maker's monero spend key: %w", err)
	}

	jointSpend := s.keys.MoneroSpendKey.Add(makerSpend)
	jointView := s.keys.MoneroViewKey.Add(s.makerMoneroView)

	walletFile := fmt.Sprintf("%s/%s-redeem", s.walletDir, s.info.ID)
	if err := pcommon.ClaimMonero(s.ctx, s.Env(), s.XMRClient(), jointSpend, jointView, walletFile, ourWalletAddress); err != nil {
		return fmt.Errorf("sweeping recovered monero: %w", err)
	}

	s.info.Status = types.CompletedSuccess
	return nil
}

// BuildSignedTxRefund builds TxRefund against TxCancel's known output
// (deterministically, the same way the maker independently built it),
// verifies and decrypts the maker's adaptor signature with the taker's own
// known secp256k1 scalar, signs the taker's own ordinary share, and attaches
// the completed witness for broadcast.
func (s *swapState) BuildSignedTxRefund(
	params *chaincfg.Params,
	makerEncSig *secp256k1.AdaptorSignature,
) (*wire.MsgTx, error) {
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

	sigHash, err := bitcoin.SignatureHash(refundTx, s.cancelValue, s.cancelWitnessScript)
	if err != nil {
		return nil, fmt.Errorf("computing TxRefund sighash: %w", err)
	}
	var msg [32]byte
	copy(msg[:], sigHash)

	if err := secp256k1.AdaptorVerify(s.makerSecp256k1Pub, msg, s.keys.Secp256k1PublicKey, makerEncSig); err != nil {
		return nil, fmt.Errorf("verifying maker's refund adaptor signature: %w", err)
	}

	r, sVal := secp256k1.AdaptorDecrypt(makerEncSig, s.keys.Secp256k1PrivateKey)
	makerSig := append(secp256k1.SerializeDERSignature(r, sVal), byte(1)) // SigHashAll

	ownSig, err := s.signOwnShare(refundTx, s.cancelValue, s.cancelWitnessScript)
	if err != nil {
		return nil, fmt.Errorf("signing TxRefund: %w", err)
	}

	bitcoin.AttachMultisigWitness(refundTx, makerSig, ownSig, s.cancelWitnessScript)
	s.info.Status = types.CompletedRefund
	return refundTx, nil
}

// HandleCooperativeRedeem completes a Monero redeem using the maker's
// voluntarily disclosed spend key share, after this swap was punished on
// the Bitcoin side. A zero share means the maker refused or has not yet
// reached CompletedPunished itself.
func (s *swapState) HandleCooperativeRedeem(msg *message.NotifyCooperativeRedeem, ourWalletAddress string) error {
	var zero [32]byte
	if msg.MakerSpendKeyShare == zero {
		return errCooperativeRedeemRejected
	}

	makerSpend, err := mcrypto.NewPrivateKeyFromScalar(msg.MakerSpendKeyShare)
	if err != nil {
		return fmt.Errorf("deriving maker's monero spend key: %w", err)
	}

	jointSpend := s.keys.MoneroSpendKey.Add(makerSpend)
	jointView := s.keys.MoneroViewKey.Add(s.makerMoneroView)

	walletFile := fmt.Sprintf("%s/%s-coop-redeem", s.walletDir, s.info.ID)
	if err := pcommon.ClaimMonero(s.ctx, s.Env(), s.XMRClient(), jointSpend, jointView, walletFile, ourWalletAddress); err != nil {
		return fmt.Errorf("sweeping recovered monero: %w", err)
	}

	s.info.Status = types.CompletedSuccess
	return nil
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

// PendingCancelTxHash returns TxCancel's txid once it has been built.
func (s *swapState) PendingCancelTxHash() (chainhash.Hash, bool) {
	if s.unsignedTxCancel == nil {
		return chainhash.Hash{}, false
	}
	return s.unsignedTxCancel.TxHash(), true
}

// PendingPunishTxHash returns TxPunish's deterministic txid once
// BuildAuxSignatures has built it, letting a watcher notice the maker's
// broadcast without the taker ever receiving a message about it.
func (s *swapState) PendingPunishTxHash() (chainhash.Hash, bool) {
	if s.unsignedTxPunish == nil {
		return chainhash.Hash{}, false
	}
	return s.unsignedTxPunish.TxHash(), true
}

// PendingEarlyRefundTxHash returns TxEarlyRefund's txid once it has been
// built.
func (s *swapState) PendingEarlyRefundTxHash() (chainhash.Hash, bool) {
	if s.unsignedTxEarlyRefund == nil {
		return chainhash.Hash{}, false
	}
	return s.unsignedTxEarlyRefund.TxHash(), true
}

// PendingRedeemTxHash returns TxRedeem's deterministic txid once
// SignTxRedeem has built it, letting this node notice the maker's
// broadcast (and recover the maker's decrypted signature share from it)
// without any network message announcing it.
func (s *swapState) PendingRedeemTxHash() (chainhash.Hash, bool) {
	if s.unsignedTxRedeem == nil {
		return chainhash.Hash{}, false
	}
	return s.unsignedTxRedeem.TxHash(), true
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
		CounterpartyMoneroSpendKey: s.makerMoneroSpend.Bytes(),
		CounterpartyMoneroViewKey:  s.makerMoneroView.Bytes(),
	}
	if s.redeemSigEnc != nil {
		info.OurAdaptorSig = s.redeemSigEnc.Bytes()
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
