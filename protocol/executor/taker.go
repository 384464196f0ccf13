// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package executor

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"

	"github.com/athanorlabs/atomic-swap/coins"
	"github.com/athanorlabs/atomic-swap/common/types"
	"github.com/athanorlabs/atomic-swap/crypto/secp256k1"
	"github.com/athanorlabs/atomic-swap/net"
	"github.com/athanorlabs/atomic-swap/net/message"
)

// runTaker drives sw to a terminal state and unregisters its session on
// exit. The caller is expected to have already carried sw past the setup
// handshake and TxLock's broadcast before calling StartTaker; initiating a
// swap is outside this package's scope.
func (ex *Executor) runTaker(sess *session, sw takerSwap) {
	defer ex.unregister(sess)
	if err := ex.driveTaker(sess, sw); err != nil {
		log.Warnf("swap %s (taker): %s", sw.ID(), err)
	}
	if err := sw.Exit(); err != nil {
		log.Warnf("swap %s (taker): %s", sw.ID(), err)
	}
}

func (ex *Executor) driveTaker(sess *session, sw takerSwap) error {
	ctx := ex.backend.Ctx()
	params := ex.backend.BitcoinParams()

	var makerRefundSig *secp256k1.AdaptorSignature

	for !sw.Status().IsTerminal() {
		ex.persist(sw)

		var err error
		switch sw.Status() {
		case types.BtcLockTransactionSeen:
			err = ex.takerAwaitFinality(ctx, sw, params)
		case types.BtcLocked:
			makerRefundSig, err = ex.takerExchangeAuxSigs(ctx, sess, sw, params)
		case types.BtcEarlyRefundable:
			err = ex.takerAwaitProofOrEarlyRefund(ctx, sess, sw)
		case types.XmrLockProofReceived:
			err = ex.takerAwaitXMRFinality(sw)
		case types.XmrLockTransactionSent:
			err = ex.takerSignAndSendEncSig(sw)
		case types.EncSigSent:
			err = ex.takerAwaitRedeemOrCancel(ctx, sw)
		case types.CancelTimelockExpired:
			err = ex.takerBuildCancel(ctx, sw)
		case types.BtcCancelled:
			err = ex.takerRefundOrPunished(ctx, sess, sw, params, makerRefundSig)
		default:
			err = fmt.Errorf("taker: no handler for status %s", sw.Status())
		}
		if err != nil {
			return err
		}
	}
	ex.persist(sw)
	return nil
}

func (ex *Executor) takerAwaitFinality(ctx context.Context, sw takerSwap, _ *chaincfg.Params) error {
	recovery, err := sw.BuildRecoveryInfo()
	if err != nil {
		return fmt.Errorf("taker has no recorded TxLock outpoint: %w", err)
	}
	if err := ex.waitFinal(ctx, recovery.FundingOutpoint.Hash, btcLockFinalityDepth); err != nil {
		return fmt.Errorf("waiting for TxLock finality: %w", err)
	}
	sw.Info().Status = types.BtcLocked
	return nil
}

// takerExchangeAuxSigs answers the maker's aux-signature and refund-
// adaptor-signature round trips, both routed to this session by SwapID,
// and returns the maker's refund adaptor signature for later use if the
// swap ends up cancelled.
func (ex *Executor) takerExchangeAuxSigs(
	ctx context.Context,
	sess *session,
	sw takerSwap,
	params *chaincfg.Params,
) (*secp256k1.AdaptorSignature, error) {
	msg, reply, err := ex.recv(ctx, sess)
	if err != nil {
		return nil, fmt.Errorf("waiting for aux signatures: %w", err)
	}
	auxMsg, ok := msg.(*message.NotifyAuxSignatures)
	if !ok {
		err := fmt.Errorf("%w: got %s, want NotifyAuxSignatures", errUnexpectedMessage, msg.Type())
		reply(nil, err)
		return nil, err
	}
	sw.SetCounterpartyAuxSignatures(auxMsg)
	ownAux, err := sw.BuildAuxSignatures(params)
	if err != nil {
		reply(nil, err)
		return nil, fmt.Errorf("building own aux signatures: %w", err)
	}
	reply(ownAux, nil)

	msg2, reply2, err := ex.recv(ctx, sess)
	if err != nil {
		return nil, fmt.Errorf("waiting for refund adaptor signature: %w", err)
	}
	refundMsg, ok := msg2.(*message.NotifyRefundAdaptorSignature)
	if !ok {
		err := fmt.Errorf("%w: got %s, want NotifyRefundAdaptorSignature", errUnexpectedMessage, msg2.Type())
		reply2(nil, err)
		return nil, err
	}
	makerSig, err := secp256k1.AdaptorSignatureFromBytes(refundMsg.EncryptedSignature)
	if err != nil {
		reply2(nil, err)
		return nil, fmt.Errorf("parsing maker's refund adaptor signature: %w", err)
	}
	reply2(&message.NotifyRefundAdaptorSignature{SwapID: sw.ID()}, nil)

	sw.Info().Status = types.BtcEarlyRefundable
	return makerSig, nil
}

// takerAwaitProofOrEarlyRefund races the happy-path NotifyTransferProof
// against a caller-triggered early refund (see Executor.RequestEarlyRefund).
// It does not watch the cancel timelock: in this state only a message, an
// early-refund request, or ctx's cancellation ends the wait.
func (ex *Executor) takerAwaitProofOrEarlyRefund(ctx context.Context, sess *session, sw takerSwap) error {
	select {
	case im := <-sess.inbox:
		return ex.takerHandleTransferProof(sw, im)
	case <-sess.earlyRefund:
		return ex.takerEarlyRefund(ctx, sw)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (ex *Executor) takerHandleTransferProof(sw takerSwap, im inboundMsg) error {
	reply := func(m message.Message, err error) { im.reply <- replyResult{msg: m, err: err} }
	proof, ok := im.msg.(*message.NotifyTransferProof)
	if !ok {
		err := fmt.Errorf("%w: got %s, want NotifyTransferProof", errUnexpectedMessage, im.msg.Type())
		reply(nil, err)
		return err
	}
	if err := sw.HandleNotifyTransferProof(proof); err != nil {
		reply(nil, err)
		return fmt.Errorf("handling transfer proof: %w", err)
	}
	reply(&message.NotifyTransferProof{}, nil)
	sw.Info().Status = types.XmrLockProofReceived
	return nil
}

func (ex *Executor) takerEarlyRefund(ctx context.Context, sw takerSwap) error {
	tx, err := sw.BuildSignedTxEarlyRefund()
	if err != nil {
		return fmt.Errorf("building TxEarlyRefund: %w", err)
	}
	txid, err := ex.backend.Broadcaster().Broadcast(tx)
	if err != nil {
		return fmt.Errorf("broadcasting TxEarlyRefund: %w", err)
	}
	if err := ex.waitFinal(ctx, txid, btcLockFinalityDepth); err != nil {
		return fmt.Errorf("waiting for TxEarlyRefund finality: %w", err)
	}
	sw.Info().Status = types.CompletedRefund
	return nil
}

func (ex *Executor) takerAwaitXMRFinality(sw takerSwap) error {
	amount, err := coins.MoneroToPiconero(sw.Info().Provided)
	if err != nil {
		return fmt.Errorf("converting swap amount: %w", err)
	}
	if err := sw.HandleNotifyXMRLock(amount); err != nil {
		return fmt.Errorf("waiting for monero lock finality: %w", err)
	}
	return nil
}

func (ex *Executor) takerSignAndSendEncSig(sw takerSwap) error {
	params := ex.backend.BitcoinParams()
	encSigMsg, err := sw.SignTxRedeem(params)
	if err != nil {
		return fmt.Errorf("signing TxRedeem: %w", err)
	}
	ex.persist(sw)
	if _, err := ex.backend.Host().SendRequest(sw.PeerID(), net.EncryptedSignatureProtocolID, encSigMsg); err != nil {
		return fmt.Errorf("sending encrypted signature: %w", err)
	}
	sw.Info().Status = types.EncSigSent
	return nil
}

// takerAwaitRedeemOrCancel races watching for the maker's predicted
// TxRedeem broadcast against the cancel timelock maturing.
func (ex *Executor) takerAwaitRedeemOrCancel(ctx context.Context, sw takerSwap) error {
	cctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		redeemTx *wire.MsgTx
		err      error
	}
	redeemCh := make(chan outcome, 1)
	go func() {
		tx, err := ex.watchPredicted(cctx, sw.PendingRedeemTxHash)
		redeemCh <- outcome{redeemTx: tx, err: err}
	}()

	recovery, err := sw.BuildRecoveryInfo()
	if err != nil {
		return fmt.Errorf("taker has no recorded TxLock outpoint: %w", err)
	}
	expired := make(chan error, 1)
	go func() { expired <- ex.waitFinal(cctx, recovery.FundingOutpoint.Hash, sw.CancelTimelock()) }()

	select {
	case err := <-expired:
		if err != nil {
			return fmt.Errorf("watching cancel timelock: %w", err)
		}
		sw.Info().Status = types.CancelTimelockExpired
		return nil
	default:
	}

	select {
	case err := <-expired:
		if err != nil {
			return fmt.Errorf("watching cancel timelock: %w", err)
		}
		sw.Info().Status = types.CancelTimelockExpired
		return nil
	case r := <-redeemCh:
		if r.err != nil {
			return fmt.Errorf("watching for TxRedeem: %w", r.err)
		}
		dest := ex.refundDestination()
		return sw.HandleTxRedeemObserved(r.redeemTx, dest)
	}
}

func (ex *Executor) takerBuildCancel(ctx context.Context, sw takerSwap) error {
	cancelTx, err := sw.BuildSignedTxCancel()
	if err != nil {
		return fmt.Errorf("building TxCancel: %w", err)
	}
	txid, err := ex.backend.Broadcaster().Broadcast(cancelTx)
	if err != nil {
		return fmt.Errorf("broadcasting TxCancel: %w", err)
	}
	if err := ex.waitFinal(ctx, txid, btcLockFinalityDepth); err != nil {
		return fmt.Errorf("waiting for TxCancel finality: %w", err)
	}
	sw.Info().Status = types.BtcCancelled
	return nil
}

// takerRefundOrPunished races broadcasting TxRefund (once the maker's
// refund adaptor signature lets this node complete it) against the punish
// timelock maturing: if the maker punishes first, this node has lost the
// race and falls back to requesting a cooperative Monero redeem.
func (ex *Executor) takerRefundOrPunished(
	ctx context.Context,
	sess *session,
	sw takerSwap,
	params *chaincfg.Params,
	makerRefundSig *secp256k1.AdaptorSignature,
) error {
	if makerRefundSig == nil {
		return fmt.Errorf("no maker refund adaptor signature on record; cannot refund")
	}
	refundTx, err := sw.BuildSignedTxRefund(params, makerRefundSig)
	if err != nil {
		return fmt.Errorf("building TxRefund: %w", err)
	}

	cctx, cancel := context.WithCancel(ctx)
	defer cancel()

	txid, ok := sw.PendingCancelTxHash()
	if !ok {
		return fmt.Errorf("TxCancel hash unavailable after BtcCancelled")
	}
	punishCh := make(chan error, 1)
	go func() { punishCh <- ex.waitFinal(cctx, txid, sw.PunishTimelock()) }()

	broadcastCh := make(chan error, 1)
	go func() {
		_, err := ex.backend.Broadcaster().Broadcast(refundTx)
		broadcastCh <- err
	}()

	select {
	case err := <-broadcastCh:
		if err != nil {
			return fmt.Errorf("broadcasting TxRefund: %w", err)
		}
		return nil // BuildSignedTxRefund already marked the swap CompletedRefund
	case err := <-punishCh:
		if err != nil {
			return fmt.Errorf("watching punish timelock: %w", err)
		}
		return ex.requestCooperativeRedeem(sess, sw)
	}
}

// requestCooperativeRedeem asks the maker to reveal its Monero spend key
// share now that this node has been punished, since the maker has nothing
// left to lose by doing so once TxPunish has landed.
func (ex *Executor) requestCooperativeRedeem(sess *session, sw takerSwap) error {
	sw.Info().Status = types.AttemptingCooperativeRedeem
	req := &message.NotifyCooperativeRedeem{SwapID: sw.ID()}
	resp, err := ex.backend.Host().SendRequest(sess.peerID, net.CooperativeXMRRedeemProtocolID, req)
	if err != nil {
		sw.Info().Status = types.CompletedPunished
		return fmt.Errorf("requesting cooperative redeem: %w", err)
	}
	coopMsg, ok := resp.(*message.NotifyCooperativeRedeem)
	if !ok {
		sw.Info().Status = types.CompletedPunished
		return fmt.Errorf("%w: got %s, want NotifyCooperativeRedeem", errUnexpectedMessage, resp.Type())
	}
	dest := ex.refundDestination()
	if err := sw.HandleCooperativeRedeem(coopMsg, dest); err != nil {
		sw.Info().Status = types.CompletedPunished
		return nil // maker refused or has not reached CompletedPunished itself; accept the loss
	}
	return nil
}
