// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package protocol_test

import (
	"context"
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
	"github.com/athanorlabs/atomic-swap/protocol/xmrmaker"
	"github.com/athanorlabs/atomic-swap/protocol/xmrtaker"
)

// fakeManager is a minimal in-memory swap.Manager, just enough to let
// NewSwapStateFromStart register a swap without a real chaindb.
type fakeManager struct{ ongoing map[common.SwapID]*swap.Info }

func newFakeManager() *fakeManager {
	return &fakeManager{ongoing: make(map[common.SwapID]*swap.Info)}
}

func (m *fakeManager) AddSwap(info *swap.Info) error {
	m.ongoing[info.ID] = info
	return nil
}
func (m *fakeManager) WriteSwapToDB(*swap.Info) error              { return nil }
func (m *fakeManager) GetPastIDs() ([]common.SwapID, error)        { return nil, nil }
func (m *fakeManager) GetPastSwap(common.SwapID) (*swap.Info, error) { return nil, nil }
func (m *fakeManager) GetOngoingSwap(id common.SwapID) (swap.Info, error) {
	return *m.ongoing[id], nil
}
func (m *fakeManager) GetOngoingSwaps() ([]*swap.Info, error) { return nil, nil }
func (m *fakeManager) CompleteOngoingSwap(info *swap.Info) error {
	delete(m.ongoing, info.ID)
	return nil
}
func (m *fakeManager) HasOngoingSwap(id common.SwapID) bool {
	_, ok := m.ongoing[id]
	return ok
}

// fakeMoneroClient is a no-op monero.Client sufficient to let the Monero
// sweep calls in HandleTxRefundObserved run without a real wallet RPC.
type fakeMoneroClient struct{}

func (fakeMoneroClient) GetAddress() (string, error)         { return "fake-address", nil }
func (fakeMoneroClient) GetBalance() (uint64, uint64, error) { return 0, 0, nil }
func (fakeMoneroClient) GetHeight() (uint64, error)          { return 100, nil }
func (fakeMoneroClient) Transfer(to string, amount uint64) (*monerorpc.TransferResult, error) {
	return &monerorpc.TransferResult{TxHash: "fake-tx-hash", TxKey: "fake-tx-key", Amount: amount}, nil
}
func (fakeMoneroClient) SweepAll(string) (*monerorpc.TransferResult, error) {
	return &monerorpc.TransferResult{TxHash: "fake-sweep-hash"}, nil
}
func (fakeMoneroClient) GenerateFromKeys(_, _ *mcrypto.PrivateKey, _, _, _ string) error { return nil }
func (fakeMoneroClient) OpenWallet(_, _ string) error                                    { return nil }
func (fakeMoneroClient) CloseWallet() error                                              { return nil }
func (fakeMoneroClient) Refresh() error                                                  { return nil }

// fakeBackend implements backend.Backend with the bare minimum both
// swapState implementations actually call.
type fakeBackend struct {
	manager swap.Manager
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{manager: newFakeManager()}
}

func (b *fakeBackend) Ctx() context.Context                           { return context.Background() }
func (b *fakeBackend) Env() common.Environment                        { return common.Development }
func (b *fakeBackend) BitcoinParams() *chaincfg.Params                { return &chaincfg.RegressionNetParams }
func (b *fakeBackend) SwapTimeout() time.Duration                     { return time.Hour }
func (b *fakeBackend) SetSwapTimeout(time.Duration)                   {}
func (b *fakeBackend) SwapManager() swap.Manager                      { return b.manager }
func (b *fakeBackend) RecoveryDB() *db.Database                       { return nil }
func (b *fakeBackend) XMRClient() monerorpc.Client                    { return fakeMoneroClient{} }
func (b *fakeBackend) Broadcaster() bitcoin.Broadcaster                { return nil }
func (b *fakeBackend) Host() *net.Host                                { return nil }
func (b *fakeBackend) SendSwapMessage(message.Message, peer.ID) error { return nil }
func (b *fakeBackend) CloseProtocolStream(common.SwapID)              {}

// fakeLockTx builds a deterministic stand-in for TxLock: a 2-of-2 P2WSH
// output with an empty funding input.
func fakeLockTx(t *testing.T, makerPub, takerPub *btcec.PublicKey, params *chaincfg.Params, value coins.SatoshiAmount) *bitcoin.BuiltTx {
	t.Helper()
	witnessScript, pkScript, err := bitcoin.LockOutputScript(makerPub, takerPub, params)
	require.NoError(t, err)
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(&wire.TxIn{})
	tx.AddTxOut(wire.NewTxOut(int64(value), pkScript))
	return &bitcoin.BuiltTx{Tx: tx, WitnessScript: witnessScript, PkScript: pkScript, Value: value}
}

// TestScenario_LateRedeemLosesRaceToRefund exercises spec.md §8 scenario 3:
// the maker publishes TxRedeem late, after the taker
// has already reclaimed its Bitcoin via TxCancel+TxRefund. The maker's only
// remaining compensation is recovering the taker's Monero spend key share
// from TxRefund's witness once it is observed.
func TestScenario_LateRedeemLosesRaceToRefund(t *testing.T) {
	params := &chaincfg.RegressionNetParams

	maker, err := xmrmaker.NewSwapStateFromStart(
		newFakeBackend(), common.NewSwapID(), peer.ID("taker-peer"),
		types.Hash{1}, new(apd.Decimal).SetFinite(15, -1), nil, 100, 200, t.TempDir(),
	)
	require.NoError(t, err)
	taker, err := xmrtaker.NewSwapStateFromStart(
		newFakeBackend(), common.NewSwapID(), peer.ID("maker-peer"),
		types.Hash{1}, new(apd.Decimal).SetFinite(2, -1), nil, 100, 200, t.TempDir(),
	)
	require.NoError(t, err)

	require.NoError(t, taker.HandleSendKeysMessage(maker.SendKeysMessage()))
	require.NoError(t, maker.HandleSendKeysMessage(taker.SendKeysMessage()))

	makerPub, takerPub, err := maker.LockScriptPubKeys()
	require.NoError(t, err)
	lockTx := fakeLockTx(t, makerPub, takerPub, params, 100000)

	require.NoError(t, maker.CheckTxLock(lockTx.Tx, &db.RecoveryInfo{
		FundingValue:  lockTx.Value,
		PkScript:      lockTx.PkScript,
		WitnessScript: lockTx.WitnessScript,
	}))
	taker.SetLockTx(lockTx)

	_, err = maker.BuildAuxSignatures(params)
	require.NoError(t, err)
	_, err = taker.BuildAuxSignatures(params)
	require.NoError(t, err)

	// The taker reaches the cancel timelock first and broadcasts TxCancel
	// (its own witness assembly isn't exercised here; only TxRefund matters
	// to the maker's recovery path).
	refundMsg, err := maker.BuildRefundAdaptorSignature(params)
	require.NoError(t, err)
	makerEncSig, err := secp256k1.AdaptorSignatureFromBytes(refundMsg.EncryptedSignature)
	require.NoError(t, err)

	refundTx, err := taker.BuildSignedTxRefund(params, makerEncSig)
	require.NoError(t, err)
	require.Equal(t, types.CompletedRefund, taker.Info().Status)

	// Only now does the maker observe TxRefund on chain; by this point any
	// belated TxRedeem broadcast from the maker would lose the race to the
	// taker's already-confirmed refund.
	require.NoError(t, maker.HandleTxRefundObserved(refundTx, "maker-wallet-address"))
	require.Equal(t, types.CompletedRefund, maker.Info().Status)
}
