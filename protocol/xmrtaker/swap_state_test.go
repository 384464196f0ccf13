// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package xmrtaker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/cockroachdb/apd/v3"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/require"

	"github.com/athanorlabs/atomic-swap/bitcoin"
	"github.com/athanorlabs/atomic-swap/coins"
	"github.com/athanorlabs/atomic-swap/common"
	"github.com/athanorlabs/atomic-swap/common/types"
	mcrypto "github.com/athanorlabs/atomic-swap/crypto/monero"
	"github.com/athanorlabs/atomic-swap/crypto/secp256k1"
	"github.com/athanorlabs/atomic-swap/db"
	monerorpc "github.com/athanorlabs/atomic-swap/monero"
	"github.com/athanorlabs/atomic-swap/net"
	"github.com/athanorlabs/atomic-swap/net/message"
	"github.com/athanorlabs/atomic-swap/protocol/swap"
)

// fakeLockTx builds a deterministic stand-in for TxLock: a 2-of-2 P2WSH
// output with an empty funding input, sufficient for exercising the
// downstream cancel/redeem/refund builders without a real chain.
func fakeLockTx(t *testing.T, makerPub, takerPub *btcec.PublicKey, params *chaincfg.Params, value coins.SatoshiAmount) *bitcoin.BuiltTx {
	t.Helper()
	witnessScript, pkScript, err := bitcoin.LockOutputScript(makerPub, takerPub, params)
	require.NoError(t, err)
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(&wire.TxIn{})
	tx.AddTxOut(wire.NewTxOut(int64(value), pkScript))
	return &bitcoin.BuiltTx{Tx: tx, WitnessScript: witnessScript, PkScript: pkScript, Value: value}
}

type fakeManager struct {
	mu      sync.Mutex
	ongoing map[common.SwapID]*swap.Info
}

func newFakeManager() *fakeManager {
	return &fakeManager{ongoing: make(map[common.SwapID]*swap.Info)}
}

func (m *fakeManager) AddSwap(info *swap.Info) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ongoing[info.ID] = info
	return nil
}
func (m *fakeManager) WriteSwapToDB(_ *swap.Info) error              { return nil }
func (m *fakeManager) GetPastIDs() ([]common.SwapID, error)          { return nil, nil }
func (m *fakeManager) GetPastSwap(common.SwapID) (*swap.Info, error) { return nil, nil }
func (m *fakeManager) GetOngoingSwap(id common.SwapID) (swap.Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.ongoing[id], nil
}
func (m *fakeManager) GetOngoingSwaps() ([]*swap.Info, error) { return nil, nil }
func (m *fakeManager) CompleteOngoingSwap(info *swap.Info) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.ongoing, info.ID)
	return nil
}
func (m *fakeManager) HasOngoingSwap(id common.SwapID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.ongoing[id]
	return ok
}

type fakeMoneroClient struct {
	height uint64
}

func (c *fakeMoneroClient) GetAddress() (string, error)         { return "fake-address", nil }
func (c *fakeMoneroClient) GetBalance() (uint64, uint64, error) { return 0, 0, nil }
func (c *fakeMoneroClient) GetHeight() (uint64, error)          { return c.height, nil }
func (c *fakeMoneroClient) Transfer(to string, amount uint64) (*monerorpc.TransferResult, error) {
	return &monerorpc.TransferResult{TxHash: "fake-tx-hash", TxKey: "fake-tx-key", Amount: amount}, nil
}
func (c *fakeMoneroClient) SweepAll(to string) (*monerorpc.TransferResult, error) {
	return &monerorpc.TransferResult{TxHash: "fake-sweep-hash"}, nil
}
func (c *fakeMoneroClient) GenerateFromKeys(_, _ *mcrypto.PrivateKey, _, _, _ string) error { return nil }
func (c *fakeMoneroClient) OpenWallet(_, _ string) error                                    { return nil }
func (c *fakeMoneroClient) CloseWallet() error                                              { return nil }
func (c *fakeMoneroClient) Refresh() error                                                  { return nil }

type fakeBackend struct {
	ctx       context.Context
	env       common.Environment
	manager   swap.Manager
	xmrClient monerorpc.Client
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		ctx:       context.Background(),
		env:       common.Development,
		manager:   newFakeManager(),
		xmrClient: &fakeMoneroClient{height: 100},
	}
}

func (b *fakeBackend) Ctx() context.Context                           { return b.ctx }
func (b *fakeBackend) Env() common.Environment                        { return b.env }
func (b *fakeBackend) BitcoinParams() *chaincfg.Params                { return &chaincfg.RegressionNetParams }
func (b *fakeBackend) SwapTimeout() time.Duration                     { return time.Hour }
func (b *fakeBackend) SetSwapTimeout(time.Duration)                   {}
func (b *fakeBackend) SwapManager() swap.Manager                      { return b.manager }
func (b *fakeBackend) RecoveryDB() *db.Database                       { return nil }
func (b *fakeBackend) XMRClient() monerorpc.Client                    { return b.xmrClient }
func (b *fakeBackend) Broadcaster() bitcoin.Broadcaster                { return nil }
func (b *fakeBackend) Host() *net.Host                                { return nil }
func (b *fakeBackend) SendSwapMessage(message.Message, peer.ID) error { return nil }
func (b *fakeBackend) CloseProtocolStream(common.SwapID)              {}

func newTestSwapState(t *testing.T) *swapState {
	t.Helper()
	s, err := NewSwapStateFromStart(
		newFakeBackend(),
		common.NewSwapID(),
		peer.ID("maker-peer"),
		types.Hash{1},
		new(apd.Decimal).SetFinite(2, -1), // 0.2
		nil,
		100, 200,
		t.TempDir(),
	)
	require.NoError(t, err)
	return s
}

// TestSendAndHandleKeysMessage exercises the setup handshake from the
// taker's perspective.
func TestSendAndHandleKeysMessage(t *testing.T) {
	taker := newTestSwapState(t)
	maker := newTestSwapState(t)

	require.NoError(t, taker.HandleSendKeysMessage(maker.SendKeysMessage()))
	require.NotNil(t, taker.makerSecp256k1Pub)
	require.True(t, taker.makerSecp256k1Pub.Equal(maker.keys.Secp256k1PublicKey))
}

// TestHandleSendKeysMessage_NetworkMismatch exercises spec.md §8 scenario 5:
// a counterparty declaring a different network than this node's configured
// one must be rejected before any key material is recorded.
func TestHandleSendKeysMessage_NetworkMismatch(t *testing.T) {
	taker := newTestSwapState(t)
	maker := newTestSwapState(t)

	makerMsg := maker.SendKeysMessage()
	makerMsg.Network = common.Mainnet // newFakeBackend's Env() is common.Development
	err := taker.HandleSendKeysMessage(makerMsg)
	require.ErrorIs(t, err, ErrNetworkMismatch)
	require.Nil(t, taker.makerSecp256k1Pub)
}

// TestHandleNotifyTransferProof_Idempotent exercises spec.md §8 scenario 6:
// a transfer proof that was already accepted must be accepted again without
// error if the maker's ACK is lost and it resends the identical proof.
func TestHandleNotifyTransferProof_Idempotent(t *testing.T) {
	taker := newTestSwapState(t)

	proof := &message.NotifyTransferProof{TxHash: "deadbeef", TxKey: "feedface"}
	require.NoError(t, taker.HandleNotifyTransferProof(proof))
	require.NoError(t, taker.HandleNotifyTransferProof(proof))
	require.Equal(t, proof, taker.xmrLockProof)
}

// TestRefundRoundTrip exercises the full TxRefund adaptor flow end to end:
// the maker encrypts a signature over its own key under the taker's point,
// the taker decrypts and broadcasts, and the maker recovers the taker's
// Monero spend scalar from the now-visible signature.
func TestRefundRoundTrip(t *testing.T) {
	taker := newTestSwapState(t)
	maker := newTestSwapState(t) // stands in for the maker's key material only
	require.NoError(t, taker.HandleSendKeysMessage(maker.SendKeysMessage()))

	params := &chaincfg.RegressionNetParams
	makerPub, takerPub, err := taker.LockScriptPubKeys()
	require.NoError(t, err)
	lockTx := fakeLockTx(t, makerPub, takerPub, params, 100000)
	taker.lockTx = lockTx

	// The taker independently builds TxCancel (and, from it, the pending
	// TxRefund shape) exactly as it would after BtcLocked, in order to learn
	// cancelValue/cancelPkScript/cancelWitnessScript.
	_, err = taker.BuildAuxSignatures(params)
	require.NoError(t, err)

	refundDestScript, err := bitcoin.P2WPKHScript(takerPub, params)
	require.NoError(t, err)
	refundFee, err := bitcoin.EstimateFee(bitcoin.RefundTxWeight, bitcoin.MinRelayFeeRate, taker.cancelValue)
	require.NoError(t, err)
	refundTxTemplate := bitcoin.BuildTxRefund(&bitcoin.SpendParams{
		PrevOutpoint:  bitcoin.Outpoint{Hash: taker.unsignedTxCancel.TxHash(), Index: 0},
		PrevValue:     taker.cancelValue,
		PrevPkScript:  taker.cancelPkScript,
		WitnessScript: taker.cancelWitnessScript,
		OutputValue:   taker.cancelValue - refundFee,
		OutputScript:  refundDestScript,
	})
	sigHash, err := bitcoin.SignatureHash(refundTxTemplate, taker.cancelValue, taker.cancelWitnessScript)
	require.NoError(t, err)
	var msg [32]byte
	copy(msg[:], sigHash)

	// the maker adaptor-signs its own share, encrypted under the taker's key
	makerEncSig, err := secp256k1.AdaptorSign(maker.keys.Secp256k1PrivateKey, msg, taker.keys.Secp256k1PublicKey)
	require.NoError(t, err)

	refundTx, err := taker.BuildSignedTxRefund(params, makerEncSig)
	require.NoError(t, err)
	require.Equal(t, types.CompletedRefund, taker.info.Status)

	// Simulate the maker's side of recovery: the maker observes the now
	// broadcast TxRefund, extracts its own decrypted signature share
	// (sigA, at witness[1]), and recovers the taker's secret scalar from
	// it. This is what lets the maker reconstruct the joint Monero spend
	// key after a refund.
	makerShare := refundTx.TxIn[0].Witness[1]
	_, sVal, err := secp256k1.ParseDERSignature(makerShare[:len(makerShare)-1])
	require.NoError(t, err)

	recoveredTakerScalar, err := secp256k1.AdaptorRecover(makerEncSig, sVal, taker.keys.Secp256k1PublicKey)
	require.NoError(t, err)
	require.Equal(t, taker.keys.Secp256k1PrivateKey.Scalar(), recoveredTakerScalar.Scalar())
}
