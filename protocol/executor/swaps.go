// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package executor

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/athanorlabs/atomic-swap/bitcoin"
	"github.com/athanorlabs/atomic-swap/coins"
	"github.com/athanorlabs/atomic-swap/common"
	"github.com/athanorlabs/atomic-swap/common/types"
	"github.com/athanorlabs/atomic-swap/crypto/secp256k1"
	"github.com/athanorlabs/atomic-swap/db"
	"github.com/athanorlabs/atomic-swap/net/message"
	pswap "github.com/athanorlabs/atomic-swap/protocol/swap"
)

// DefaultCancelTimelock and DefaultPunishTimelock are the relative-block
// timelocks this node proposes for t1 (cancel) and t2 (punish) when no
// offer-negotiation layer overrides them. Offer/quote negotiation of
// per-swap timelocks is out of spec.md's scope, so the executor fixes
// reasonable regtest-to-mainnet-scale defaults here instead of threading a
// negotiated value through a subsystem this repo doesn't implement.
const (
	DefaultCancelTimelock = int64(144) // ~1 day of Bitcoin blocks
	DefaultPunishTimelock = int64(144) // an additional ~1 day
)

// makerSwap is the exported method surface of xmrmaker's swapState that the
// executor drives. It is declared locally because swapState itself is
// unexported; Go lets a package hold and call methods on a value of an
// unexported type without ever having to name the type.
type makerSwap interface {
	ID() common.SwapID
	Status() types.Status
	PeerID() peer.ID
	Info() *pswap.Info
	CancelTimelock() int64
	PunishTimelock() int64

	SendKeysMessage() *message.SendKeysMessage
	HandleSendKeysMessage(*message.SendKeysMessage) error
	LockScriptPubKeys() (makerPub, takerPub *btcec.PublicKey, err error)
	CheckTxLock(tx *wire.MsgTx, recovery *db.RecoveryInfo) error
	BuildAuxSignatures(params *chaincfg.Params) (*message.NotifyAuxSignatures, error)
	SetCounterpartyAuxSignatures(*message.NotifyAuxSignatures)
	BuildSignedTxCancel() (*wire.MsgTx, error)
	BuildSignedTxPunish() (*wire.MsgTx, error)
	BuildSignedTxEarlyRefund() (*wire.MsgTx, error)
	SetRefundAdaptorSig(*secp256k1.AdaptorSignature)
	BuildRefundAdaptorSignature(params *chaincfg.Params) (*message.NotifyRefundAdaptorSignature, error)
	LockXMR(amount coins.PiconeroAmount) (*message.NotifyTransferProof, error)
	HandleEncryptedSignature(params *chaincfg.Params, encSig *secp256k1.AdaptorSignature) (*wire.MsgTx, error)
	HandleTxRefundObserved(refundTx *wire.MsgTx, ourWalletAddress string) error
	HandlePunished()
	NotifyCooperativeRedeem(*message.NotifyCooperativeRedeem) *message.NotifyCooperativeRedeem
	BuildRecoveryInfo() (*db.RecoveryInfo, error)
	Exit() error

	PendingCancelTxHash() (chainhash.Hash, bool)
	PendingPunishTxHash() (chainhash.Hash, bool)
	PendingRefundTxHash() (chainhash.Hash, bool)
}

// takerSwap is the exported method surface of xmrtaker's swapState that the
// executor drives.
type takerSwap interface {
	ID() common.SwapID
	Status() types.Status
	PeerID() peer.ID
	Info() *pswap.Info
	CancelTimelock() int64
	PunishTimelock() int64

	SendKeysMessage() *message.SendKeysMessage
	HandleSendKeysMessage(*message.SendKeysMessage) error
	LockScriptPubKeys() (makerPub, takerPub *btcec.PublicKey, err error)
	SetLockTx(tx *bitcoin.BuiltTx)
	CheckTxLock(tx *wire.MsgTx, recovery *db.RecoveryInfo) error
	BuildAuxSignatures(params *chaincfg.Params) (*message.NotifyAuxSignatures, error)
	SetCounterpartyAuxSignatures(*message.NotifyAuxSignatures)
	BuildSignedTxCancel() (*wire.MsgTx, error)
	BuildSignedTxPunish() (*wire.MsgTx, error)
	BuildSignedTxEarlyRefund() (*wire.MsgTx, error)
	HandleNotifyTransferProof(*message.NotifyTransferProof) error
	HandleNotifyXMRLock(amount coins.PiconeroAmount) error
	SignTxRedeem(params *chaincfg.Params) (*message.NotifyEncryptedSignature, error)
	HandleTxRedeemObserved(redeemTx *wire.MsgTx, ourWalletAddress string) error
	BuildSignedTxRefund(params *chaincfg.Params, makerEncSig *secp256k1.AdaptorSignature) (*wire.MsgTx, error)
	HandleCooperativeRedeem(msg *message.NotifyCooperativeRedeem, ourWalletAddress string) error
	BuildRecoveryInfo() (*db.RecoveryInfo, error)
	Exit() error

	PendingCancelTxHash() (chainhash.Hash, bool)
	PendingPunishTxHash() (chainhash.Hash, bool)
	PendingEarlyRefundTxHash() (chainhash.Hash, bool)
	PendingRedeemTxHash() (chainhash.Hash, bool)
}
