// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package executor

import (
	"context"
	"errors"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/athanorlabs/atomic-swap/bitcoin"
	"github.com/athanorlabs/atomic-swap/coins"
	"github.com/athanorlabs/atomic-swap/common"
	"github.com/athanorlabs/atomic-swap/db"
	"github.com/athanorlabs/atomic-swap/net/message"
	pswap "github.com/athanorlabs/atomic-swap/protocol/swap"
)

// btcLockFinalityDepth is the confirmation depth this node requires before
// treating TxLock (or, symmetrically, TxCancel maturing toward t2) as
// final, mirroring the role monero.MinSpendConfirmations plays for the
// Monero leg of a swap.
const btcLockFinalityDepth = 1

var errUnexpectedMessage = errors.New("unexpected message for current swap phase")

// recv blocks for the next inbound message delivered to sess, returning a
// reply closure the caller must invoke exactly once to unblock the Host's
// synchronous stream handler.
func (ex *Executor) recv(ctx context.Context, sess *session) (message.Message, func(message.Message, error), error) {
	select {
	case im := <-sess.inbox:
		return im.msg, func(m message.Message, err error) { im.reply <- replyResult{msg: m, err: err} }, nil
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
}

// recoverable is the shared surface of makerSwap and takerSwap needed to
// persist a swap's resumable state.
type recoverable interface {
	ID() common.SwapID
	Info() *pswap.Info
	BuildRecoveryInfo() (*db.RecoveryInfo, error)
}

// persist flushes sw's current status to the swap manager's database and,
// once TxLock has been observed, its recovery info too, so a crash after
// this point can resume from here, per spec.md §4.5's persist-before-ack
// rule. A swap that has not yet observed TxLock has no recovery info yet;
// BuildRecoveryInfo returning an error in that case is expected, not
// logged.
func (ex *Executor) persist(sw recoverable) {
	if err := ex.backend.SwapManager().WriteSwapToDB(sw.Info()); err != nil {
		log.Warnf("writing swap %s status to db: %s", sw.ID(), err)
	}
	info, err := sw.BuildRecoveryInfo()
	if err != nil {
		return
	}
	if err := ex.backend.RecoveryDB().PutRecoveryInfo(sw.ID(), info); err != nil {
		log.Warnf("persisting recovery info for swap %s: %s", sw.ID(), err)
	}
}

// lockAware is the shared surface of makerSwap and takerSwap needed to
// compute the lock output's expected witness script, pkScript, and funding
// value ahead of ever seeing TxLock itself, since a 2-of-2 P2WSH output's
// shape depends only on the two parties' static public keys.
type lockAware interface {
	LockScriptPubKeys() (makerPub, takerPub *btcec.PublicKey, err error)
	Info() *pswap.Info
}

// expectedLockInfo builds the db.RecoveryInfo CheckTxLock needs to verify an
// observed transaction, computed entirely from already-known swap
// parameters rather than from the transaction itself.
func expectedLockInfo(sw lockAware, params *chaincfg.Params) (*db.RecoveryInfo, error) {
	makerPub, takerPub, err := sw.LockScriptPubKeys()
	if err != nil {
		return nil, err
	}
	witnessScript, pkScript, err := bitcoin.LockOutputScript(makerPub, takerPub, params)
	if err != nil {
		return nil, err
	}
	amount, err := expectedFundingValue(sw.Info())
	if err != nil {
		return nil, err
	}
	return &db.RecoveryInfo{WitnessScript: witnessScript, PkScript: pkScript, FundingValue: amount}, nil
}

func expectedFundingValue(info *pswap.Info) (coins.SatoshiAmount, error) {
	if info.ExchangeRate == nil {
		return 0, errors.New("swap has no exchange rate on record")
	}
	btc, err := info.ExchangeRate.ToBTC(info.Provided)
	if err != nil {
		return 0, err
	}
	return coins.BTCToSatoshis(btc)
}

// waitFinal blocks until txid reaches requiredDepth confirmations.
func (ex *Executor) waitFinal(ctx context.Context, txid chainhash.Hash, requiredDepth int64) error {
	w := bitcoin.NewWatcher(ex.backend.Broadcaster(), txid)
	return w.WaitUntilFinal(ctx, requiredDepth)
}

// watchPredicted polls for predict's txid to appear on chain. predict is
// re-evaluated on every tick since it may only become buildable once some
// other in-flight step (e.g. TxCancel's broadcast) completes; once the
// predicted txid is observed, the full transaction is fetched so its
// witness can be inspected for a counterparty's revealed signature share.
// This lets a swap detect a counterparty's cancel/punish/refund broadcast
// without ever receiving a network message about it, since segwit txids
// exclude the witness and so are fully computable in advance by both sides.
func (ex *Executor) watchPredicted(
	ctx context.Context,
	predict func() (chainhash.Hash, bool),
) (*wire.MsgTx, error) {
	ticker := time.NewTicker(cancelPollInterval)
	defer ticker.Stop()
	for {
		if txid, ok := predict(); ok {
			if state, err := ex.backend.Broadcaster().TxState(txid); err == nil && state.Status != bitcoin.Unseen {
				return ex.backend.Broadcaster().GetRawTransaction(txid)
			}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
