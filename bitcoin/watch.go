// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package bitcoin

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	logging "github.com/ipfs/go-log"
)

var log = logging.Logger("bitcoin")

// pollInterval is how often the Watcher re-queries Broadcaster for a
// tracked transaction's state, mirroring monero.WaitForConfirmations'
// ticker-based polling.
const pollInterval = 10 * time.Second

// TxStatus is the coarse on-chain lifecycle stage of a tracked transaction.
type TxStatus byte

const (
	// Unseen means the transaction has not been observed in the mempool or
	// any block.
	Unseen TxStatus = iota
	// InMempool means the transaction has been observed unconfirmed.
	InMempool
	// Confirmed means the transaction has been observed in at least one
	// block; Depth reports how many.
	Confirmed
)

func (s TxStatus) String() string {
	switch s {
	case Unseen:
		return "Unseen"
	case InMempool:
		return "InMempool"
	case Confirmed:
		return "Confirmed"
	default:
		return "Unknown"
	}
}

// TxState is a point-in-time confirmation-depth observation of a
// transaction.
type TxState struct {
	Status TxStatus
	Depth  int64 // only meaningful when Status == Confirmed
}

// before reports whether s represents strictly less progress than other,
// the ordering a Watcher enforces so a reorg-induced dip never unwinds a
// caller's already-observed finality.
func (s TxState) before(other TxState) bool {
	if s.Status != other.Status {
		return s.Status < other.Status
	}
	return s.Depth < other.Depth
}

// Watcher polls a Broadcaster for a single transaction's confirmation state
// and exposes the wait_until_seen/wait_until_final subscription contract:
// callers block until the transaction reaches the mempool, or until it
// reaches a required confirmation depth. State only ever moves forward —
// a watcher that has reported Confirmed(3) never reports Unseen or
// Confirmed(1) again for the same txid, even if a transient RPC hiccup or
// a shallow reorg momentarily suggests otherwise.
type Watcher struct {
	chain Broadcaster
	txid  chainhash.Hash

	mu   sync.Mutex
	best TxState
}

// NewWatcher begins tracking txid against chain. The caller is responsible
// for calling WaitUntilSeen / WaitUntilFinal to drive polling; construction
// does not start a background goroutine.
func NewWatcher(chain Broadcaster, txid chainhash.Hash) *Watcher {
	return &Watcher{chain: chain, txid: txid}
}

// poll queries the current chain state and folds it into w.best, enforcing
// monotonicity, and returns the (possibly unchanged) best state seen so far.
func (w *Watcher) poll() (TxState, error) {
	cur, err := w.chain.TxState(w.txid)
	if err != nil {
		return TxState{}, fmt.Errorf("querying state of %s: %w", w.txid, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.best.before(cur) {
		w.best = cur
	}
	return w.best, nil
}

// WaitUntilSeen blocks until txid is observed in the mempool or a block, or
// until ctx is cancelled.
func (w *Watcher) WaitUntilSeen(ctx context.Context) error {
	return w.waitUntil(ctx, func(s TxState) bool { return s.Status != Unseen })
}

// WaitUntilFinal blocks until txid has reached at least requiredDepth
// confirmations, or until ctx is cancelled.
func (w *Watcher) WaitUntilFinal(ctx context.Context, requiredDepth int64) error {
	return w.waitUntil(ctx, func(s TxState) bool {
		return s.Status == Confirmed && s.Depth >= requiredDepth
	})
}

func (w *Watcher) waitUntil(ctx context.Context, done func(TxState) bool) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		state, err := w.poll()
		if err != nil {
			log.Warnf("failed to poll %s: %s", w.txid, err)
		} else if done(state) {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
