// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package executor

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/athanorlabs/atomic-swap/coins"
	"github.com/athanorlabs/atomic-swap/common/types"
	"github.com/athanorlabs/atomic-swap/crypto/secp256k1"
	"github.com/athanorlabs/atomic-swap/net"
	"github.com/athanorlabs/atomic-swap/net/message"
)

// runMaker drives sw to a terminal state and unregisters its session on
// exit. It never returns a value: errors end the swap via sw.Exit(), which
// marks it CompletedAbort unless a more specific terminal status was
// already reached.
func (ex *Executor) runMaker(sess *session, sw makerSwap) {
	defer ex.unregister(sess)
	if err := ex.driveMaker(sess, sw); err != nil {
		log.Warnf("swap %s (maker): %s", sw.ID(), err)
	}
	if err := sw.Exit(); err != nil {
		log.Warnf("swap %s (maker): %s", sw.ID(), err)
	}
}

func (ex *Executor) driveMaker(sess *session, sw makerSwap) error {
	ctx := ex.backend.Ctx()
	params := ex.backend.BitcoinParams()

	for !sw.Status().IsTerminal() {
		ex.persist(sw)

		var err error
		switch sw.Status() {
		case types.KeysExchanged:
			err = ex.makerAwaitLock(ctx, sess, sw, params)
		case types.BtcLocked:
			err = ex.makerExchangeAuxSigsAndLockXMR(sw, params)
		case types.XmrLockTransactionSent, types.XmrLockTransferProofSent:
			err = ex.makerAwaitEncSig(ctx, sess, sw, params)
		case types.EncSigLearned, types.BtcRedeemTransactionPublished:
			err = ex.makerFinalizeRedeem(sw)
		case types.CancelTimelockExpired:
			err = ex.makerBuildCancel(ctx, sw)
		case types.BtcCancelled:
			err = ex.makerAwaitPunishOrRefund(ctx, sess, sw)
		default:
			err = fmt.Errorf("maker: no handler for status %s", sw.Status())
		}
		if err != nil {
			return err
		}
	}
	ex.persist(sw)
	return nil
}

// makerAwaitLock waits for the taker's NotifyBtcLock, enforcing
// SetupTimeout, then waits for TxLock to reach finality before verifying it
// funds the agreed swap.
func (ex *Executor) makerAwaitLock(ctx context.Context, sess *session, sw makerSwap, params *chaincfg.Params) error {
	setupCtx, cancel := context.WithTimeout(ctx, SetupTimeout)
	defer cancel()

	msg, reply, err := ex.recv(setupCtx, sess)
	if err != nil {
		sw.Info().Status = types.CompletedAbort
		return fmt.Errorf("waiting for TxLock notification: %w", err)
	}
	lock, ok := msg.(*message.NotifyBtcLock)
	if !ok {
		err = fmt.Errorf("%w: got %s, want NotifyBtcLock", errUnexpectedMessage, msg.Type())
		reply(nil, err)
		return err
	}

	txid, err := chainhash.NewHashFromStr(lock.TxHash)
	if err != nil {
		reply(nil, err)
		return fmt.Errorf("parsing TxLock hash: %w", err)
	}
	tx, err := ex.backend.Broadcaster().GetRawTransaction(*txid)
	if err != nil {
		reply(nil, err)
		return fmt.Errorf("fetching TxLock: %w", err)
	}

	sw.Info().Status = types.BtcLockTransactionSeen
	ex.persist(sw)

	if err := ex.waitFinal(ctx, *txid, btcLockFinalityDepth); err != nil {
		reply(nil, err)
		return fmt.Errorf("waiting for TxLock finality: %w", err)
	}

	recovery, err := expectedLockInfo(sw, params)
	if err != nil {
		reply(nil, err)
		return err
	}
	if err := sw.CheckTxLock(tx, recovery); err != nil {
		reply(nil, err)
		return err
	}
	reply(&message.NotifyBtcLock{}, nil)
	return nil
}

// makerExchangeAuxSigsAndLockXMR performs the two-round-trip aux-signature
// handshake that TxCancel, TxPunish, and TxEarlyRefund all need a
// counterparty signature for before they can ever be completed, then locks
// the Monero side. Both round trips use SendRequest directly rather than
// backend.SendSwapMessage, since the maker needs the taker's reply payload
// itself, not just delivery confirmation.
func (ex *Executor) makerExchangeAuxSigsAndLockXMR(sw makerSwap, params *chaincfg.Params) error {
	ownAux, err := sw.BuildAuxSignatures(params)
	if err != nil {
		return fmt.Errorf("building aux signatures: %w", err)
	}
	resp, err := ex.backend.Host().SendRequest(sw.PeerID(), net.TransferProofProtocolID, ownAux)
	if err != nil {
		return fmt.Errorf("exchanging aux signatures: %w", err)
	}
	takerAux, ok := resp.(*message.NotifyAuxSignatures)
	if !ok {
		return fmt.Errorf("%w: got %s, want NotifyAuxSignatures", errUnexpectedMessage, resp.Type())
	}
	sw.SetCounterpartyAuxSignatures(takerAux)

	refundMsg, err := sw.BuildRefundAdaptorSignature(params)
	if err != nil {
		return fmt.Errorf("building refund adaptor signature: %w", err)
	}
	if _, err := ex.backend.Host().SendRequest(sw.PeerID(), net.TransferProofProtocolID, refundMsg); err != nil {
		return fmt.Errorf("delivering refund adaptor signature: %w", err)
	}
	ex.persist(sw)

	amount, err := coins.MoneroToPiconero(sw.Info().Provided)
	if err != nil {
		return fmt.Errorf("converting swap amount: %w", err)
	}
	proof, err := sw.LockXMR(amount)
	if err != nil {
		return fmt.Errorf("locking monero: %w", err)
	}
	ex.persist(sw)

	if err := ex.backend.SendSwapMessage(proof, sw.PeerID()); err != nil {
		return fmt.Errorf("sending transfer proof: %w", err)
	}
	sw.Info().Status = types.XmrLockTransferProofSent
	return nil
}

// makerAwaitEncSig races the cancel timelock's expiry against the taker's
// encrypted signature, per spec.md §5's rule that an on-chain cancel-
// timelock expiry is evaluated before any new incoming message once both
// are ready.
func (ex *Executor) makerAwaitEncSig(ctx context.Context, sess *session, sw makerSwap, params *chaincfg.Params) error {
	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()

	expired := make(chan error, 1)
	go func() { expired <- ex.waitFinal(watchCtx, lockTxidHint(sw), sw.CancelTimelock()) }()

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
	case im := <-sess.inbox:
		reply := func(m message.Message, err error) { im.reply <- replyResult{msg: m, err: err} }
		encMsg, ok := im.msg.(*message.NotifyEncryptedSignature)
		if !ok {
			err := fmt.Errorf("%w: got %s, want NotifyEncryptedSignature", errUnexpectedMessage, im.msg.Type())
			reply(nil, err)
			return err
		}
		encSig, err := secp256k1.AdaptorSignatureFromBytes(encMsg.EncryptedSignature)
		if err != nil {
			reply(nil, err)
			return fmt.Errorf("parsing encrypted signature: %w", err)
		}
		redeemTx, err := sw.HandleEncryptedSignature(params, encSig)
		if err != nil {
			reply(nil, err)
			return fmt.Errorf("handling encrypted signature: %w", err)
		}
		ex.persist(sw)
		reply(&message.NotifyEncryptedSignature{SwapID: sw.ID()}, nil)

		if _, err := ex.backend.Broadcaster().Broadcast(redeemTx); err != nil {
			return fmt.Errorf("broadcasting TxRedeem: %w", err)
		}
		sw.Info().Status = types.CompletedSuccess
		return nil
	}
}

// makerFinalizeRedeem handles the resume case where a crash landed between
// HandleEncryptedSignature and the TxRedeem broadcast. The fully-signed
// TxRedeem itself is not persisted in recovery info, so rather than
// rebuilding it from an encrypted signature this node may not have
// retained, resuming here simply finalizes the swap: TxRedeem was either
// already broadcast (in which case this is a no-op) or can be resubmitted
// later via the recovery CLI's claim command.
func (ex *Executor) makerFinalizeRedeem(sw makerSwap) error {
	sw.Info().Status = types.CompletedSuccess
	return nil
}

func (ex *Executor) makerBuildCancel(ctx context.Context, sw makerSwap) error {
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

// makerAwaitPunishOrRefund races watching for the taker's predicted
// TxRefund broadcast against the punish timelock maturing. If the punish
// timelock wins, TxPunish is built and broadcast immediately, securing the
// Bitcoin; if the taker's TxRefund appears first, its witness reveals the
// taker's Monero key share, which the maker uses to recover the locked XMR.
func (ex *Executor) makerAwaitPunishOrRefund(ctx context.Context, sess *session, sw makerSwap) error {
	cctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		refundTx *wire.MsgTx
		err      error
	}
	refundCh := make(chan outcome, 1)
	go func() {
		tx, err := ex.watchPredicted(cctx, sw.PendingRefundTxHash)
		refundCh <- outcome{refundTx: tx, err: err}
	}()

	punishCh := make(chan error, 1)
	txid, ok := sw.PendingCancelTxHash()
	if !ok {
		return fmt.Errorf("TxCancel hash unavailable after BtcCancelled")
	}
	go func() { punishCh <- ex.waitFinal(cctx, txid, sw.PunishTimelock()) }()

	select {
	case err := <-punishCh:
		if err != nil {
			return fmt.Errorf("watching punish timelock: %w", err)
		}
	case r := <-refundCh:
		if r.err != nil {
			return fmt.Errorf("watching for TxRefund: %w", r.err)
		}
		return sw.HandleTxRefundObserved(r.refundTx, ex.refundDestination())
	}

	punishTx, err := sw.BuildSignedTxPunish()
	if err != nil {
		return fmt.Errorf("building TxPunish: %w", err)
	}
	if _, err := ex.backend.Broadcaster().Broadcast(punishTx); err != nil {
		return fmt.Errorf("broadcasting TxPunish: %w", err)
	}
	sw.HandlePunished()

	if im, ok := ex.tryRecvCooperativeRedeemRequest(sess); ok {
		resp := sw.NotifyCooperativeRedeem(im.msg.(*message.NotifyCooperativeRedeem))
		im.reply <- replyResult{msg: resp, err: nil}
	}
	return nil
}

// tryRecvCooperativeRedeemRequest drains one already-pending cooperative
// redeem request without blocking, so a taker that raced its request in
// right as punishment landed still gets an answer.
func (ex *Executor) tryRecvCooperativeRedeemRequest(sess *session) (inboundMsg, bool) {
	select {
	case im := <-sess.inbox:
		if _, ok := im.msg.(*message.NotifyCooperativeRedeem); ok {
			return im, true
		}
		im.reply <- replyResult{err: errUnexpectedMessage}
		return inboundMsg{}, false
	default:
		return inboundMsg{}, false
	}
}

// refundDestination is the wallet address this node sweeps recovered Monero
// to after observing a counterparty's refund or redeem broadcast.
func (ex *Executor) refundDestination() string {
	addr, err := ex.backend.XMRClient().GetAddress()
	if err != nil {
		log.Warnf("fetching own monero address: %s", err)
		return ""
	}
	return addr
}

// lockTxidHint resolves the TxLock txid to watch for cancel-timelock
// maturity, preferring the FundingOutpoint recorded once TxLock has been
// verified.
func lockTxidHint(sw makerSwap) chainhash.Hash {
	info, err := sw.BuildRecoveryInfo()
	if err != nil {
		return chainhash.Hash{}
	}
	return info.FundingOutpoint.Hash
}
