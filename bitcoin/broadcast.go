// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package bitcoin

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// Broadcaster is the thin boundary onto the Electrum RPC pool (spec.md §2's
// external-interface boundary): submit a fully-signed transaction, look one
// back up by txid to confirm it actually propagated, and answer the
// confirmation-state and tip-height queries the Watcher in watch.go polls.
type Broadcaster interface {
	Broadcast(tx *wire.MsgTx) (chainhash.Hash, error)
	GetRawTransaction(txid chainhash.Hash) (*wire.MsgTx, error)

	// TxState reports txid's current confirmation state. An unseen
	// transaction is reported as {Status: Unseen}, not an error.
	TxState(txid chainhash.Hash) (TxState, error)

	// Height returns the current chain tip height, used to evaluate a
	// swap's cancel/punish timelocks against its lock height.
	Height() (int64, error)
}

// ToPSBT wraps an unsigned swap transaction in a PSBT so it can be handed to
// a signer outside the daemon process (a hardware wallet, or a front-end
// holding the user's key).
func ToPSBT(tx *wire.MsgTx) ([]byte, error) {
	packet, err := psbt.NewFromUnsignedTx(tx)
	if err != nil {
		return nil, fmt.Errorf("building PSBT: %w", err)
	}
	return packet.Serialize()
}

// FromPSBT extracts the (now fully-signed) transaction from a PSBT returned
// by an external signer.
func FromPSBT(raw []byte) (*wire.MsgTx, error) {
	packet, err := psbt.NewFromRawBytes(bytes.NewReader(raw), false)
	if err != nil {
		return nil, fmt.Errorf("parsing PSBT: %w", err)
	}
	if err := psbt.MaybeFinalizeAll(packet); err != nil {
		return nil, fmt.Errorf("finalizing PSBT: %w", err)
	}
	return psbt.Extract(packet)
}
