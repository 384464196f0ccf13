// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package bitcoin

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/wire"
)

// NodeConfig configures a connection to a bitcoind JSON-RPC endpoint.
type NodeConfig struct {
	Endpoint string
	User     string
	Password string
}

// NodeClient implements Broadcaster against a bitcoind JSON-RPC endpoint.
type NodeClient struct {
	rpc *rpcclient.Client
}

// NewNodeClient dials cfg.Endpoint over HTTP POST (no websocket
// notifications are used; the Watcher polls instead).
func NewNodeClient(cfg *NodeConfig) (*NodeClient, error) {
	client, err := rpcclient.New(&rpcclient.ConnConfig{
		Host:         cfg.Endpoint,
		User:         cfg.User,
		Pass:         cfg.Password,
		HTTPPostMode: true,
		DisableTLS:   true,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to bitcoin node at %s: %w", cfg.Endpoint, err)
	}
	return &NodeClient{rpc: client}, nil
}

// Broadcast submits tx to the connected node's mempool.
func (c *NodeClient) Broadcast(tx *wire.MsgTx) (chainhash.Hash, error) {
	hash, err := c.rpc.SendRawTransaction(tx, false)
	if err != nil {
		return chainhash.Hash{}, fmt.Errorf("broadcasting transaction: %w", err)
	}
	return *hash, nil
}

// GetRawTransaction fetches a transaction the node knows about, whether
// confirmed or still in the mempool.
func (c *NodeClient) GetRawTransaction(txid chainhash.Hash) (*wire.MsgTx, error) {
	tx, err := c.rpc.GetRawTransaction(&txid)
	if err != nil {
		return nil, fmt.Errorf("fetching transaction %s: %w", txid, err)
	}
	return tx.MsgTx(), nil
}

// TxState implements Broadcaster.
func (c *NodeClient) TxState(txid chainhash.Hash) (TxState, error) {
	info, err := c.rpc.GetRawTransactionVerbose(&txid)
	if err != nil {
		// bitcoind returns an RPC error for an unknown txid rather than an
		// empty result; treat any lookup failure as simply not seen yet.
		return TxState{Status: Unseen}, nil //nolint:nilerr
	}
	if info.Confirmations == 0 {
		return TxState{Status: InMempool}, nil
	}
	return TxState{Status: Confirmed, Depth: int64(info.Confirmations)}, nil
}

// Height implements Broadcaster.
func (c *NodeClient) Height() (int64, error) {
	height, err := c.rpc.GetBlockCount()
	if err != nil {
		return 0, fmt.Errorf("querying chain height: %w", err)
	}
	return height, nil
}
