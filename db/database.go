// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

// Package db is the swap core's on-disk persistence layer: the "latest state"
// store keyed by SwapID (PutSwap replaces the swap's single record, so earlier
// states are not kept), the peer address book, buffered
// Monero transfer proofs, and Bitcoin-side recovery records, all backed by a
// single ChainSafe/chaindb instance (spec.md's C6, crash-safe resume).
package db

import (
	"encoding/json"
	"fmt"

	"github.com/ChainSafe/chaindb"
	logging "github.com/ipfs/go-log"

	"github.com/athanorlabs/atomic-swap/bitcoin"
	"github.com/athanorlabs/atomic-swap/coins"
	"github.com/athanorlabs/atomic-swap/common"
	"github.com/athanorlabs/atomic-swap/net/message"
	"github.com/athanorlabs/atomic-swap/protocol/swap"
)

var log = logging.Logger("db")

var (
	swapPrefix          = []byte("swap-")
	peerPrefix          = []byte("peer-")
	transferProofPrefix = []byte("xferproof-")
	recoveryPrefix      = []byte("recovery-")
)

// RecoveryInfo is everything a restarted swapd needs to recover a swap's
// Bitcoin side without re-running setup: the funding outpoint and script,
// both parties' secp256k1 keys, the cancel/punish timelocks, and the secret
// key material (this node's own key shares, the counterparty's Monero key
// shares, and any adaptor signature this node already produced) needed to
// reconstruct its swap state machine and resume watching from wherever it
// left off. It is the Bitcoin-native equivalent of the on-chain contract
// address an Ethereum swap core would persist instead.
type RecoveryInfo struct {
	FundingOutpoint bitcoin.Outpoint
	FundingValue    coins.SatoshiAmount
	WitnessScript   []byte
	PkScript        []byte
	MakerPubKey     []byte // secp256k1, SEC1 compressed
	TakerPubKey     []byte // secp256k1, SEC1 compressed
	CancelTimelock  int64  // t1, relative blocks
	PunishTimelock  int64  // t2, relative blocks

	PeerID    string // libp2p peer ID of the counterparty, for redialing
	WalletDir string

	// OurSecp256k1Key is this node's own adaptor-signing scalar, the
	// Secp256k1PrivateKey share of its KeysAndProof.
	OurSecp256k1Key []byte
	// OurMoneroSpendKey and OurMoneroViewKey are this node's own Monero key
	// shares, the MoneroSpendKey/MoneroViewKey of its KeysAndProof.
	OurMoneroSpendKey [32]byte
	OurMoneroViewKey  [32]byte

	// CounterpartyMoneroSpendKey is the counterparty's public Monero spend
	// key share, learned via SendKeysMessage.
	CounterpartyMoneroSpendKey [32]byte
	// CounterpartyMoneroViewKey is the counterparty's Monero view key
	// share, carried as a private scalar in SendKeysMessage.
	CounterpartyMoneroViewKey [32]byte

	// OurAdaptorSig is this node's own produced adaptor signature, if any:
	// the maker's TxRefund adaptor signature, or the taker's TxRedeem
	// adaptor signature, encoded via secp256k1.AdaptorSignature.Bytes().
	OurAdaptorSig []byte
}

// Database persists everything a crashed swapd needs to resume or recover:
// per-swap Info records, known peer addresses, and Monero transfer proofs
// received ahead of the swap state that will eventually consume them.
type Database struct {
	db chaindb.Database
}

// NewDatabase opens (creating if necessary) a chaindb-backed store rooted at
// dataDir.
func NewDatabase(dataDir string) (*Database, error) {
	cfg := &chaindb.Config{
		DataDir:  dataDir,
		InMemory: false,
	}
	d, err := chaindb.NewBadgerDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening chaindb at %s: %w", dataDir, err)
	}
	return &Database{db: d}, nil
}

// NewMemoryDatabase opens an in-memory store, used by tests.
func NewMemoryDatabase() (*Database, error) {
	d, err := chaindb.NewBadgerDB(&chaindb.Config{InMemory: true})
	if err != nil {
		return nil, fmt.Errorf("opening in-memory chaindb: %w", err)
	}
	return &Database{db: d}, nil
}

// Close flushes and closes the underlying store.
func (d *Database) Close() error {
	return d.db.Close()
}

// PutSwap implements swap.Database.
func (d *Database) PutSwap(info *swap.Info) error {
	b, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("marshalling swap info: %w", err)
	}
	return d.db.Put(swapKey(info.ID), b)
}

// GetSwap implements swap.Database.
func (d *Database) GetSwap(id common.SwapID) (*swap.Info, error) {
	b, err := d.db.Get(swapKey(id))
	if err != nil {
		return nil, err
	}
	info := new(swap.Info)
	if err := json.Unmarshal(b, info); err != nil {
		return nil, fmt.Errorf("unmarshalling swap info: %w", err)
	}
	return info, nil
}

// GetAllSwaps implements swap.Database.
func (d *Database) GetAllSwaps() ([]*swap.Info, error) {
	iter, err := d.db.NewIterator()
	if err != nil {
		return nil, fmt.Errorf("creating iterator: %w", err)
	}
	defer iter.Release()

	var infos []*swap.Info
	for iter.First(); iter.Valid(); iter.Next() {
		key := iter.Key()
		if !hasPrefix(key, swapPrefix) {
			continue
		}
		info := new(swap.Info)
		if err := json.Unmarshal(iter.Value(), info); err != nil {
			log.Warnf("skipping corrupt swap record %x: %s", key, err)
			continue
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// PutPeerAddresses records the last-known multiaddresses for a swap
// counterparty, so a restarted node can redial them without rediscovery.
func (d *Database) PutPeerAddresses(swapID common.SwapID, addrs []string) error {
	b, err := json.Marshal(addrs)
	if err != nil {
		return fmt.Errorf("marshalling peer addresses: %w", err)
	}
	return d.db.Put(peerKey(swapID), b)
}

// GetPeerAddresses returns the last-known multiaddresses for swapID's
// counterparty, if any were recorded.
func (d *Database) GetPeerAddresses(swapID common.SwapID) ([]string, error) {
	b, err := d.db.Get(peerKey(swapID))
	if err != nil {
		return nil, err
	}
	var addrs []string
	if err := json.Unmarshal(b, &addrs); err != nil {
		return nil, fmt.Errorf("unmarshalling peer addresses: %w", err)
	}
	return addrs, nil
}

// PutTransferProof buffers a received NotifyTransferProof until the local
// state machine has reached the point where it's expected, so a proof that
// arrives slightly early (or while the node is catching up after a restart)
// isn't dropped.
func (d *Database) PutTransferProof(swapID common.SwapID, proof *message.NotifyTransferProof) error {
	b, err := json.Marshal(proof)
	if err != nil {
		return fmt.Errorf("marshalling transfer proof: %w", err)
	}
	return d.db.Put(transferProofKey(swapID), b)
}

// GetTransferProof returns a previously buffered transfer proof for swapID,
// if one was received.
func (d *Database) GetTransferProof(swapID common.SwapID) (*message.NotifyTransferProof, error) {
	b, err := d.db.Get(transferProofKey(swapID))
	if err != nil {
		return nil, err
	}
	proof := new(message.NotifyTransferProof)
	if err := json.Unmarshal(b, proof); err != nil {
		return nil, fmt.Errorf("unmarshalling transfer proof: %w", err)
	}
	return proof, nil
}

// PutRecoveryInfo persists the Bitcoin-side recovery record for swapID,
// written once setup completes and TxLock's shape is known.
func (d *Database) PutRecoveryInfo(swapID common.SwapID, info *RecoveryInfo) error {
	b, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("marshalling recovery info: %w", err)
	}
	return d.db.Put(recoveryKey(swapID), b)
}

// GetRecoveryInfo returns the Bitcoin-side recovery record for swapID, if one
// was persisted.
func (d *Database) GetRecoveryInfo(swapID common.SwapID) (*RecoveryInfo, error) {
	b, err := d.db.Get(recoveryKey(swapID))
	if err != nil {
		return nil, err
	}
	info := new(RecoveryInfo)
	if err := json.Unmarshal(b, info); err != nil {
		return nil, fmt.Errorf("unmarshalling recovery info: %w", err)
	}
	return info, nil
}

func swapKey(id common.SwapID) []byte {
	return append(append([]byte{}, swapPrefix...), id.Bytes()...)
}

func peerKey(id common.SwapID) []byte {
	return append(append([]byte{}, peerPrefix...), id.Bytes()...)
}

func transferProofKey(id common.SwapID) []byte {
	return append(append([]byte{}, transferProofPrefix...), id.Bytes()...)
}

func recoveryKey(id common.SwapID) []byte {
	return append(append([]byte{}, recoveryPrefix...), id.Bytes()...)
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i, p := range prefix {
		if b[i] != p {
			return false
		}
	}
	return true
}
