// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

// Package txsender submits the Bitcoin transactions a swap produces
// (TxLock, and whichever of TxRedeem/TxCancel+TxRefund/TxPunish the swap
// ends on) to the network. ExternalSender is the package's only Sender: it
// hands a PSBT to a front-end (hardware wallet, remote signer) and waits for
// the signed, broadcast result; there is no sender that signs with a key the
// daemon holds.
package txsender

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/athanorlabs/atomic-swap/bitcoin"
	"github.com/athanorlabs/atomic-swap/coins"
	"github.com/athanorlabs/atomic-swap/common"
)

var (
	errTransactionTimeout = errors.New("timed out waiting for transaction to be signed")
	transactionTimeout    = time.Minute * 2 // amount of time the front-end has to sign and broadcast
)

// Transaction is a partially-signed Bitcoin transaction sent to an external
// signer, along with the metadata needed to recognize the broadcast result.
type Transaction struct {
	PSBT       []byte // PSBT-serialized spend of the swap's locking output
	Recipient  string
	OutputSats coins.SatoshiAmount
}

// Sender submits one of a swap's transactions and reports its txid once
// broadcast.
type Sender interface {
	OngoingCh(id common.SwapID) <-chan *Transaction
	IncomingCh(id common.SwapID) chan<- chainhash.Hash
	SendTx(swapTx *wire.MsgTx) (chainhash.Hash, error)
}

// ExternalSender hands a swap's PSBT off to a process outside the daemon
// (a CLI front-end holding the user's key, or a hardware wallet bridge) and
// blocks until that process reports the transaction's broadcast txid.
type ExternalSender struct {
	ctx          context.Context
	chainParams  *chaincfg.Params
	electrum     bitcoin.Broadcaster

	sync.Mutex

	out chan *Transaction
	in  chan chainhash.Hash
}

// NewExternalSender returns a new ExternalSender bound to the given chain
// and broadcast endpoint.
func NewExternalSender(
	ctx context.Context,
	env common.Environment,
	chainParams *chaincfg.Params,
	electrum bitcoin.Broadcaster,
) (*ExternalSender, error) {
	switch env {
	case common.Mainnet, common.Stagenet:
		transactionTimeout = time.Hour
	}

	return &ExternalSender{
		ctx:         ctx,
		chainParams: chainParams,
		electrum:    electrum,
		out:         make(chan *Transaction),
		in:          make(chan chainhash.Hash),
	}, nil
}

// OngoingCh returns the channel of outgoing PSBTs awaiting a signature.
func (s *ExternalSender) OngoingCh(_ common.SwapID) <-chan *Transaction {
	return s.out
}

// IncomingCh returns the channel the external signer reports broadcast
// txids on.
func (s *ExternalSender) IncomingCh(_ common.SwapID) chan<- chainhash.Hash {
	return s.in
}

// SendTx hands an already-built (but unsigned, 2-of-2 witness-incomplete)
// swap transaction to the external signer as a PSBT and waits for it to
// come back signed and broadcast, returning the resulting txid.
func (s *ExternalSender) SendTx(swapTx *wire.MsgTx) (chainhash.Hash, error) {
	psbtBytes, err := bitcoin.ToPSBT(swapTx)
	if err != nil {
		return chainhash.Hash{}, err
	}

	tx := &Transaction{
		PSBT:       psbtBytes,
		OutputSats: coins.SatoshiAmount(swapTx.TxOut[0].Value),
	}

	s.Lock()
	defer s.Unlock()

	s.out <- tx
	var txHash chainhash.Hash
	select {
	case <-s.ctx.Done():
		return chainhash.Hash{}, s.ctx.Err()
	case <-time.After(transactionTimeout):
		return chainhash.Hash{}, errTransactionTimeout
	case txHash = <-s.in:
	}

	if _, err := s.electrum.GetRawTransaction(txHash); err != nil {
		return chainhash.Hash{}, fmt.Errorf("confirming broadcast of %s: %w", txHash, err)
	}
	return txHash, nil
}
