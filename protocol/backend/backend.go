// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

// Package backend collects the capabilities xmrmaker's and xmrtaker's swap
// state machines need but don't own themselves: chain clients, the p2p
// host, the swap manager, and the recovery database. It exists so neither
// protocol package has to import net, monero, bitcoin, and db directly.
package backend

import (
	"context"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"

	"github.com/athanorlabs/atomic-swap/bitcoin"
	"github.com/athanorlabs/atomic-swap/common"
	"github.com/athanorlabs/atomic-swap/db"
	"github.com/athanorlabs/atomic-swap/monero"
	"github.com/athanorlabs/atomic-swap/net"
	"github.com/athanorlabs/atomic-swap/net/message"
	"github.com/athanorlabs/atomic-swap/protocol/swap"
)

// Backend is the capability surface shared by both swapState implementations
// (xmrmaker's and xmrtaker's).
type Backend interface {
	Ctx() context.Context
	Env() common.Environment
	BitcoinParams() *chaincfg.Params

	SwapTimeout() time.Duration
	SetSwapTimeout(time.Duration)

	SwapManager() swap.Manager
	RecoveryDB() *db.Database
	XMRClient() monero.Client
	Broadcaster() bitcoin.Broadcaster
	Host() *net.Host

	SendSwapMessage(msg message.Message, peerID peer.ID) error
	CloseProtocolStream(id common.SwapID)
}

type backend struct {
	ctx         context.Context
	env         common.Environment
	btcParams   *chaincfg.Params
	swapTimeout time.Duration
	swapManager swap.Manager
	recoveryDB  *db.Database
	xmrClient   monero.Client
	broadcaster bitcoin.Broadcaster
	host        *net.Host
}

// Config configures a Backend.
type Config struct {
	Ctx           context.Context
	Env           common.Environment
	BitcoinParams *chaincfg.Params
	SwapTimeout   time.Duration
	SwapManager   swap.Manager
	RecoveryDB    *db.Database
	XMRClient     monero.Client
	Broadcaster   bitcoin.Broadcaster
	Host          *net.Host
}

// NewBackend constructs the concrete Backend used by swapd.
func NewBackend(cfg *Config) Backend {
	return &backend{
		ctx:         cfg.Ctx,
		env:         cfg.Env,
		btcParams:   cfg.BitcoinParams,
		swapTimeout: cfg.SwapTimeout,
		swapManager: cfg.SwapManager,
		recoveryDB:  cfg.RecoveryDB,
		xmrClient:   cfg.XMRClient,
		broadcaster: cfg.Broadcaster,
		host:        cfg.Host,
	}
}

func (b *backend) Ctx() context.Context           { return b.ctx }
func (b *backend) Env() common.Environment         { return b.env }
func (b *backend) BitcoinParams() *chaincfg.Params { return b.btcParams }
func (b *backend) SwapTimeout() time.Duration      { return b.swapTimeout }
func (b *backend) SetSwapTimeout(d time.Duration)  { b.swapTimeout = d }
func (b *backend) SwapManager() swap.Manager       { return b.swapManager }
func (b *backend) RecoveryDB() *db.Database        { return b.recoveryDB }
func (b *backend) XMRClient() monero.Client        { return b.xmrClient }
func (b *backend) Broadcaster() bitcoin.Broadcaster { return b.broadcaster }
func (b *backend) Host() *net.Host                 { return b.host }

func (b *backend) SendSwapMessage(msg message.Message, peerID peer.ID) error {
	_, err := b.host.SendRequest(peerID, protocolForMessage(msg), msg)
	return err
}

func (b *backend) CloseProtocolStream(common.SwapID) {
	// Streams are closed per-request by net.Host; nothing to do here beyond
	// documenting the call site parity with the upstream swap core, which
	// keeps long-lived per-swap streams that this transport doesn't.
}

func protocolForMessage(msg message.Message) protocol.ID {
	switch msg.Type() {
	case message.SendKeysType:
		return net.SwapSetupProtocolID
	case message.NotifyTransferProofType:
		return net.TransferProofProtocolID
	case message.NotifyEncryptedSignatureType:
		return net.EncryptedSignatureProtocolID
	case message.NotifyCooperativeRedeemType:
		return net.CooperativeXMRRedeemProtocolID
	case message.NotifyAuxSignaturesType, message.NotifyRefundAdaptorSignatureType:
		return net.TransferProofProtocolID
	default:
		return net.SwapSetupProtocolID
	}
}
