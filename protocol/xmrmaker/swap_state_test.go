// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package xmrmaker

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

// fakeManager is a minimal in-memory swap.Manager sufficient for unit tests
// that never restart, so persistence to a real chaindb isn't needed.
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
func (m *fakeManager) WriteSwapToDB(_ *swap.Info) error { return nil }
func (m *fakeManager) GetPastIDs() ([]common.SwapID, error) { return nil, nil }
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

// fakeMoneroClient is a no-op monero.Client sufficient for exercising the
// swap-state control flow without a real monero-wallet-rpc endpoint.
type fakeMoneroClient struct {
	height uint64
}

func (c *fakeMoneroClient) GetAddress() (string, error) { return "fake-address", nil }
func (c *fakeMoneroClient) GetBalance() (uint64, uint64, error) { return 0, 0, nil }
func (c *fakeMoneroClient) GetHeight() (uint64, error) { return c.height, nil }
func (c *fakeMoneroClient) Transfer(to string, amount uint64) (*monerorpc.TransferResult, error) {
	return &monerorpc.TransferResult{TxHash: "fake-tx-hash", TxKey: "fake-tx-key", Amount: amount}, nil
}
func (c *fakeMoneroClient) SweepAll(to string) (*monerorpc.TransferResult, error) {
	return &monerorpc.TransferResult{TxHash: "fake-sweep-hash"}, nil
}
func (c *fakeMoneroClient) GenerateFromKeys(_, _ *mcrypto.PrivateKey, _, _, _ string) error { return nil }
func (c *fakeMoneroClient) OpenWallet(_, _ string) error  { return nil }
func (c *fakeMoneroClient) CloseWallet() error            { return nil }
func (c *fakeMoneroClient) Refresh() error                { return nil }

// fakeBackend implements backend.Backend with the bare minimum swapState
// actually calls.
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

func (b *fakeBackend) Ctx() context.Context           { return b.ctx }
func (b *fakeBackend) Env() common.Environment         { return b.env }
func (b *fakeBackend) BitcoinParams() *chaincfg.Params { return &chaincfg.RegressionNetParams }
func (b *fakeBackend) SwapTimeout() time.Duration      { return time.Hour }
func (b *fakeBackend) SetSwapTimeout(time.Duration)    {}
func (b *fakeBackend) SwapManager() swap.Manager       { return b.manager }
func (b *fakeBackend) RecoveryDB() *db.Database        { return nil }
func (b *fakeBackend) XMRClient() monerorpc.Client     { return b.xmrClient }
func (b *fakeBackend) Broadcaster() bitcoin.Broadcaster { return nil }
func (b *fakeBackend) Host() *net.Host                  { return nil }
func (b *fakeBackend) SendSwapMessage(message.Message, peer.ID) error { return nil }
func (b *fakeBackend) CloseProtocolStream(common.SwapID)              {}

func newTestSwapState(t *testing.T) *swapState {
	t.Helper()
	s, err := NewSwapStateFromStart(
		newFakeBackend(),
		common.NewSwapID(),
		peer.ID("taker-peer"),
		types.Hash{1},
		new(apd.Decimal).SetFinite(15, -1), // 1.5
		nil,
		100, 200,
		t.TempDir(),
	)
	require.NoError(t, err)
	return s
}

// TestSendAndHandleKeysMessage exercises the full setup handshake: the
// maker's SendKeysMessage must be accepted by a counterparty's
// HandleSendKeysMessage, and the DLEQ proof it carries must verify.
func TestSendAndHandleKeysMessage(t *testing.T) {
	maker := newTestSwapState(t)
	taker := newTestSwapState(t)

	makerMsg := maker.SendKeysMessage()
	require.NoError(t, taker.HandleSendKeysMessage(makerMsg))
	require.NotNil(t, taker.takerSecp256k1Pub)
	require.True(t, taker.takerSecp256k1Pub.Equal(maker.keys.Secp256k1PublicKey))
}

// TestHandleSendKeysMessage_InvalidProof ensures a tampered DLEQ proof is
// rejected rather than silently accepted.
func TestHandleSendKeysMessage_InvalidProof(t *testing.T) {
	maker := newTestSwapState(t)
	taker := newTestSwapState(t)

	makerMsg := maker.SendKeysMessage()
	makerMsg.DLEqProof = taker.SendKeysMessage().DLEqProof // swap in an unrelated proof
	err := taker.HandleSendKeysMessage(makerMsg)
	require.Error(t, err)
}

// TestHandleSendKeysMessage_NetworkMismatch exercises spec.md §8 scenario 5:
// a counterparty declaring a different network than this node's configured
// one must be rejected before any key material is recorded.
func TestHandleSendKeysMessage_NetworkMismatch(t *testing.T) {
	maker := newTestSwapState(t)
	taker := newTestSwapState(t)

	takerMsg := taker.SendKeysMessage()
	takerMsg.Network = common.Mainnet // newFakeBackend's Env() is common.Development
	err := maker.HandleSendKeysMessage(takerMsg)
	require.ErrorIs(t, err, ErrNetworkMismatch)
	require.Nil(t, maker.takerSecp256k1Pub)
}

// TestLockScriptPubKeys confirms the maker/taker ordering matches what the
// Bitcoin 2-of-2 script expects once both sides have exchanged keys.
func TestLockScriptPubKeys(t *testing.T) {
	maker := newTestSwapState(t)
	taker := newTestSwapState(t)
	require.NoError(t, maker.HandleSendKeysMessage(taker.SendKeysMessage()))

	makerPub, takerPub, err := maker.LockScriptPubKeys()
	require.NoError(t, err)
	require.Equal(t, maker.keys.Secp256k1PublicKey.Bytes(), makerPub.SerializeCompressed())
	require.Equal(t, taker.keys.Secp256k1PublicKey.Bytes(), takerPub.SerializeCompressed())
}

// TestRedeemRoundTrip exercises the full TxRedeem adaptor flow end to end:
// the taker encrypts a signature under the maker's key, the maker decrypts
// and broadcasts, and the taker recovers the maker's Monero spend scalar
// from the now-visible signature.
func TestRedeemRoundTrip(t *testing.T) {
	maker := newTestSwapState(t)
	taker := newTestSwapState(t) // stands in for the taker's key material only
	require.NoError(t, maker.HandleSendKeysMessage(taker.SendKeysMessage()))

	params := &chaincfg.RegressionNetParams
	makerPub, takerPub, err := maker.LockScriptPubKeys()
	require.NoError(t, err)
	lockTx := fakeLockTx(t, makerPub, takerPub, params, 100000)
	maker.lockTx = lockTx

	redeemDestScript, err := bitcoin.P2WPKHScript(makerPub, params)
	require.NoError(t, err)
	redeemFee, err := bitcoin.EstimateFee(bitcoin.RedeemTxWeight, bitcoin.MinRelayFeeRate, lockTx.Value)
	require.NoError(t, err)
	redeemTxTemplate := bitcoin.BuildTxRedeem(&bitcoin.SpendParams{
		PrevOutpoint:  bitcoin.Outpoint{Hash: lockTx.Tx.TxHash(), Index: 0},
		PrevValue:     lockTx.Value,
		PrevPkScript:  lockTx.PkScript,
		WitnessScript: lockTx.WitnessScript,
		OutputValue:   lockTx.Value - redeemFee,
		OutputScript:  redeemDestScript,
	})
	sigHash, err := bitcoin.SignatureHash(redeemTxTemplate, lockTx.Value, lockTx.WitnessScript)
	require.NoError(t, err)
	var msg [32]byte
	copy(msg[:], sigHash)

	// the taker adaptor-signs its own share, encrypted under the maker's key
	encSig, err := secp256k1.AdaptorSign(taker.keys.Secp256k1PrivateKey, msg, maker.keys.Secp256k1PublicKey)
	require.NoError(t, err)

	redeemTx, err := maker.HandleEncryptedSignature(params, encSig)
	require.NoError(t, err)
	require.Equal(t, types.BtcRedeemTransactionPublished, maker.info.Status)

	// Simulate the taker's side of recovery: the completed signature now
	// sitting in the taker's witness slot (sigB) was produced by the maker
	// decrypting encSig with its own key, so it reveals the maker's scalar.
	decryptedShare := redeemTx.TxIn[0].Witness[2]
	_, sVal, err := secp256k1.ParseDERSignature(decryptedShare[:len(decryptedShare)-1])
	require.NoError(t, err)
	recoveredMakerScalar, err := secp256k1.AdaptorRecover(encSig, sVal, maker.keys.Secp256k1PublicKey)
	require.NoError(t, err)
	require.Equal(t, maker.keys.Secp256k1PrivateKey.Scalar(), recoveredMakerScalar.Scalar())
}
