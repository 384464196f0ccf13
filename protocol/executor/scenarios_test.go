// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/golang/mock/gomock"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/athanorlabs/atomic-swap/bitcoin"
	"github.com/athanorlabs/atomic-swap/coins"
	"github.com/athanorlabs/atomic-swap/common"
	"github.com/athanorlabs/atomic-swap/common/types"
	"github.com/athanorlabs/atomic-swap/crypto/secp256k1"
	"github.com/athanorlabs/atomic-swap/db"
	"github.com/athanorlabs/atomic-swap/net/message"
	pswap "github.com/athanorlabs/atomic-swap/protocol/swap"
)

// fakeSwapManager is a minimal in-memory swap.Manager sufficient to let
// persist() run without a real chaindb behind it.
type fakeSwapManager struct{}

func (fakeSwapManager) AddSwap(*pswap.Info) error                        { return nil }
func (fakeSwapManager) WriteSwapToDB(*pswap.Info) error                  { return nil }
func (fakeSwapManager) GetPastIDs() ([]common.SwapID, error)             { return nil, nil }
func (fakeSwapManager) GetPastSwap(common.SwapID) (*pswap.Info, error)   { return nil, nil }
func (fakeSwapManager) GetOngoingSwap(common.SwapID) (pswap.Info, error) { return pswap.Info{}, nil }
func (fakeSwapManager) GetOngoingSwaps() ([]*pswap.Info, error)          { return nil, nil }
func (fakeSwapManager) CompleteOngoingSwap(*pswap.Info) error            { return nil }
func (fakeSwapManager) HasOngoingSwap(common.SwapID) bool                { return false }

// fakeMakerSwap is a bare-bones stand-in for the real xmrmaker state
// machine, implementing makerSwap with just enough behavior to drive the
// scenario under test; every method the scenario doesn't exercise returns a
// zero value or an error, exactly as a not-yet-reached step would.
type fakeMakerSwap struct {
	id     common.SwapID
	peerID peer.ID
	info   *pswap.Info
	t1, t2 int64

	pendingCancelHash chainhash.Hash
	hasPendingCancel  bool
	pendingRefundHash chainhash.Hash
	hasPendingRefund  bool
	signedTxPunish    *wire.MsgTx
}

func (f *fakeMakerSwap) ID() common.SwapID     { return f.id }
func (f *fakeMakerSwap) Status() types.Status  { return f.info.Status }
func (f *fakeMakerSwap) PeerID() peer.ID       { return f.peerID }
func (f *fakeMakerSwap) Info() *pswap.Info     { return f.info }
func (f *fakeMakerSwap) CancelTimelock() int64 { return f.t1 }
func (f *fakeMakerSwap) PunishTimelock() int64 { return f.t2 }

func (f *fakeMakerSwap) SendKeysMessage() *message.SendKeysMessage { return nil }
func (f *fakeMakerSwap) HandleSendKeysMessage(*message.SendKeysMessage) error { return nil }
func (f *fakeMakerSwap) LockScriptPubKeys() (*btcec.PublicKey, *btcec.PublicKey, error) {
	return nil, nil, errors.New("not implemented in fake")
}
func (f *fakeMakerSwap) CheckTxLock(*wire.MsgTx, *db.RecoveryInfo) error { return nil }
func (f *fakeMakerSwap) BuildAuxSignatures(*chaincfg.Params) (*message.NotifyAuxSignatures, error) {
	return nil, errors.New("not implemented in fake")
}
func (f *fakeMakerSwap) SetCounterpartyAuxSignatures(*message.NotifyAuxSignatures) {}
func (f *fakeMakerSwap) BuildSignedTxCancel() (*wire.MsgTx, error) {
	return wire.NewMsgTx(wire.TxVersion), nil
}
func (f *fakeMakerSwap) BuildSignedTxPunish() (*wire.MsgTx, error) { return f.signedTxPunish, nil }
func (f *fakeMakerSwap) BuildSignedTxEarlyRefund() (*wire.MsgTx, error) {
	return nil, errors.New("not implemented in fake")
}
func (f *fakeMakerSwap) SetRefundAdaptorSig(*secp256k1.AdaptorSignature) {}
func (f *fakeMakerSwap) BuildRefundAdaptorSignature(*chaincfg.Params) (*message.NotifyRefundAdaptorSignature, error) {
	return nil, errors.New("not implemented in fake")
}
func (f *fakeMakerSwap) LockXMR(coins.PiconeroAmount) (*message.NotifyTransferProof, error) {
	return nil, errors.New("not implemented in fake")
}
func (f *fakeMakerSwap) HandleEncryptedSignature(*chaincfg.Params, *secp256k1.AdaptorSignature) (*wire.MsgTx, error) {
	return nil, errors.New("not implemented in fake")
}
func (f *fakeMakerSwap) HandleTxRefundObserved(*wire.MsgTx, string) error { return nil }
func (f *fakeMakerSwap) HandlePunished()                                 { f.info.Status = types.CompletedPunished }
func (f *fakeMakerSwap) NotifyCooperativeRedeem(
	_ *message.NotifyCooperativeRedeem,
) *message.NotifyCooperativeRedeem {
	resp := &message.NotifyCooperativeRedeem{SwapID: f.id}
	if f.info.Status != types.CompletedPunished {
		return resp
	}
	resp.MakerSpendKeyShare = [32]byte{1}
	return resp
}
func (f *fakeMakerSwap) BuildRecoveryInfo() (*db.RecoveryInfo, error) {
	return nil, errors.New("recovery info unavailable in fake")
}
func (f *fakeMakerSwap) Exit() error {
	if f.info.Status.IsOngoing() {
		f.info.Status = types.CompletedAbort
	}
	return nil
}
func (f *fakeMakerSwap) PendingCancelTxHash() (chainhash.Hash, bool) {
	return f.pendingCancelHash, f.hasPendingCancel
}
func (f *fakeMakerSwap) PendingPunishTxHash() (chainhash.Hash, bool) { return chainhash.Hash{}, false }
func (f *fakeMakerSwap) PendingRefundTxHash() (chainhash.Hash, bool) {
	return f.pendingRefundHash, f.hasPendingRefund
}

var _ makerSwap = (*fakeMakerSwap)(nil)

// TestScenario_SilentTakerIsPunishedThenLeftUnroutable exercises spec.md
// §8 scenario 2: the taker never produces an encrypted signature, so once
// the cancel and punish timelocks both mature the maker broadcasts
// TxPunish and reaches CompletedPunished. Once that session has exited, a
// cooperative-redeem request arriving for the same swap ID has nothing to
// be routed to: the taker is left with a terminal loss rather than a
// belated share of the Monero.
func TestScenario_SilentTakerIsPunishedThenLeftUnroutable(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	var cancelTxid chainhash.Hash
	cancelTxid[0] = 0xcc

	broadcaster := NewMockBroadcaster(ctrl)
	broadcaster.EXPECT().
		TxState(cancelTxid).
		Return(bitcoin.TxState{Status: bitcoin.Confirmed, Depth: 10}, nil).
		AnyTimes()
	broadcaster.EXPECT().
		Broadcast(gomock.Any()).
		Return(chainhash.Hash{0xaa}, nil)

	b := NewMockBackend(ctrl)
	b.EXPECT().Ctx().Return(context.Background()).AnyTimes()
	b.EXPECT().BitcoinParams().Return(&chaincfg.MainNetParams).AnyTimes()
	b.EXPECT().Broadcaster().Return(broadcaster).AnyTimes()
	b.EXPECT().SwapManager().Return(fakeSwapManager{}).AnyTimes()

	ex := New(b, t.TempDir())

	swapID := common.NewSwapID()
	sw := &fakeMakerSwap{
		id:                swapID,
		peerID:            "taker-peer",
		info:              &pswap.Info{ID: swapID, Role: pswap.RoleMaker, Status: types.BtcCancelled},
		t1:                1,
		t2:                1,
		pendingCancelHash: cancelTxid,
		hasPendingCancel:  true,
		signedTxPunish:    wire.NewMsgTx(wire.TxVersion),
	}

	sess := newSession(sw.ID(), sw.PeerID())
	ex.register(sess)

	done := make(chan struct{})
	go func() {
		ex.runMaker(sess, sw)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("runMaker did not complete")
	}

	require.Equal(t, types.CompletedPunished, sw.info.Status)

	_, err := ex.routeBySwapID(&message.NotifyCooperativeRedeem{SwapID: swapID})
	require.ErrorIs(t, err, errUnknownSwap)
}

// TestScenario_ResumeFromEncSigLearned exercises spec.md §8 scenario 4: a
// crash lands after the maker verifies the taker's encrypted signature and
// persists EncSigLearned but before TxRedeem's broadcast is confirmed. On
// resume, driveMaker must carry the swap straight through to
// CompletedSuccess rather than getting stuck waiting on a message that will
// never arrive again.
func TestScenario_ResumeFromEncSigLearned(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	b := NewMockBackend(ctrl)
	b.EXPECT().Ctx().Return(context.Background()).AnyTimes()
	b.EXPECT().BitcoinParams().Return(&chaincfg.MainNetParams).AnyTimes()
	b.EXPECT().SwapManager().Return(fakeSwapManager{}).AnyTimes()

	ex := New(b, t.TempDir())

	swapID := common.NewSwapID()
	sw := &fakeMakerSwap{
		id:     swapID,
		peerID: "taker-peer",
		info:   &pswap.Info{ID: swapID, Role: pswap.RoleMaker, Status: types.EncSigLearned},
	}
	sess := newSession(sw.ID(), sw.PeerID())

	err := ex.driveMaker(sess, sw)
	require.NoError(t, err)
	require.Equal(t, types.CompletedSuccess, sw.info.Status)
}
