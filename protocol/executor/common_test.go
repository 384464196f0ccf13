// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package executor

import (
	"context"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/athanorlabs/atomic-swap/bitcoin"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestExecutor(t *testing.T, broadcaster bitcoin.Broadcaster) *Executor {
	t.Helper()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	b := NewMockBackend(ctrl)
	b.EXPECT().Broadcaster().Return(broadcaster).AnyTimes()
	return New(b, t.TempDir())
}

func TestWaitFinal_AlreadyConfirmed(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	var txid chainhash.Hash
	broadcaster := NewMockBroadcaster(ctrl)
	broadcaster.EXPECT().TxState(txid).Return(bitcoin.TxState{Status: bitcoin.Confirmed, Depth: 3}, nil)

	ex := newTestExecutor(t, broadcaster)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, ex.waitFinal(ctx, txid, 1))
}

func TestWaitFinal_ContextCancelled(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	var txid chainhash.Hash
	broadcaster := NewMockBroadcaster(ctrl)
	broadcaster.EXPECT().TxState(txid).Return(bitcoin.TxState{Status: bitcoin.Unseen}, nil).AnyTimes()

	ex := newTestExecutor(t, broadcaster)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, ex.waitFinal(ctx, txid, 1), context.Canceled)
}

func TestWatchPredicted_ObservesBroadcast(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	var txid chainhash.Hash
	txid[0] = 0xaa
	want := wire.NewMsgTx(wire.TxVersion)

	broadcaster := NewMockBroadcaster(ctrl)
	broadcaster.EXPECT().TxState(txid).Return(bitcoin.TxState{Status: bitcoin.InMempool}, nil)
	broadcaster.EXPECT().GetRawTransaction(txid).Return(want, nil)

	ex := newTestExecutor(t, broadcaster)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got, err := ex.watchPredicted(ctx, func() (chainhash.Hash, bool) { return txid, true })
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestWatchPredicted_NotYetBuildable(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	broadcaster := NewMockBroadcaster(ctrl)
	ex := newTestExecutor(t, broadcaster)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ex.watchPredicted(ctx, func() (chainhash.Hash, bool) { return chainhash.Hash{}, false })
	require.ErrorIs(t, err, context.Canceled)
}
