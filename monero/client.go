// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

// Package monero manages the shared (maker+taker) Monero wallet that spec.md's
// C3 lock/sweep operations act on: deriving the joint address from both
// sides' key shares, sending the lock transfer and recording its
// TransferProof, watching for confirmation depth, and reconstructing the
// joint spend key to sweep out once both shares are known.
package monero

import (
	"context"
	"fmt"
	"time"

	logging "github.com/ipfs/go-log"

	walletrpc "github.com/MarinX/monerorpc/wallet"

	"github.com/athanorlabs/atomic-swap/common"
	mcrypto "github.com/athanorlabs/atomic-swap/crypto/monero"
)

var log = logging.Logger("monero")

// MinSpendConfirmations is the number of confirmations a Monero lock
// transfer must reach before either side treats it as final (spec.md's
// Monero finality depth).
const MinSpendConfirmations = 10

// Client is the subset of monero-wallet-rpc operations the swap core needs:
// balance/address queries, sending the lock transfer, sweeping the joint
// wallet after a successful (or recovered) swap, and the open/close wallet
// lifecycle used to swap between a per-swap joint wallet file and the node's
// primary wallet.
type Client interface {
	GetAddress() (string, error)
	GetBalance() (unlocked, total uint64, err error)
	GetHeight() (uint64, error)
	Transfer(to string, amount uint64) (*TransferResult, error)
	SweepAll(to string) (*TransferResult, error)
	GenerateFromKeys(kp *mcrypto.PrivateKey, vk *mcrypto.PrivateKey, address string, filename, password string) error
	OpenWallet(filename, password string) error
	CloseWallet() error
	Refresh() error
}

// TransferResult is the subset of a wallet-rpc transfer response the swap
// core persists as the Monero-side TransferProof.
type TransferResult struct {
	TxHash string
	TxKey  string
	Amount uint64
	Fee    uint64
}

type client struct {
	rpc walletrpc.WalletApi
	env common.Environment
}

// NewClient dials the monero-wallet-rpc endpoint at addr.
func NewClient(addr string, env common.Environment) Client {
	return &client{rpc: walletrpc.New(walletrpc.Config{Address: addr}), env: env}
}

func (c *client) GetAddress() (string, error) {
	resp, err := c.rpc.GetAddress(&walletrpc.RequestGetAddress{AccountIndex: 0})
	if err != nil {
		return "", fmt.Errorf("get_address: %w", err)
	}
	return resp.Address, nil
}

func (c *client) GetBalance() (unlocked, total uint64, err error) {
	resp, err := c.rpc.GetBalance(&walletrpc.RequestGetBalance{AccountIndex: 0})
	if err != nil {
		return 0, 0, fmt.Errorf("get_balance: %w", err)
	}
	return uint64(resp.UnlockedBalance), uint64(resp.Balance), nil
}

func (c *client) GetHeight() (uint64, error) {
	resp, err := c.rpc.GetHeight()
	if err != nil {
		return 0, fmt.Errorf("get_height: %w", err)
	}
	return uint64(resp.Height), nil
}

func (c *client) Transfer(to string, amount uint64) (*TransferResult, error) {
	resp, err := c.rpc.Transfer(&walletrpc.RequestTransfer{
		Destinations: []walletrpc.Destination{{Address: to, Amount: walletrpc.XMRAmount(amount)}},
		GetTxKey:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("transfer: %w", err)
	}
	return &TransferResult{TxHash: resp.TxHash, TxKey: resp.TxKey, Amount: amount, Fee: uint64(resp.Fee)}, nil
}

func (c *client) SweepAll(to string) (*TransferResult, error) {
	resp, err := c.rpc.SweepAll(&walletrpc.RequestSweepAll{Address: to, GetTxKeys: true})
	if err != nil {
		return nil, fmt.Errorf("sweep_all: %w", err)
	}
	if len(resp.TxHashList) == 0 {
		return nil, fmt.Errorf("sweep_all returned no transactions")
	}
	result := &TransferResult{TxHash: resp.TxHashList[0]}
	if len(resp.TxKeyList) > 0 {
		result.TxKey = resp.TxKeyList[0]
	}
	if len(resp.AmountList) > 0 {
		result.Amount = uint64(resp.AmountList[0])
	}
	return result, nil
}

func (c *client) GenerateFromKeys(spend, view *mcrypto.PrivateKey, address, filename, password string) error {
	spendBytes := spend.Bytes()
	viewBytes := view.Bytes()
	_, err := c.rpc.GenerateFromKeys(&walletrpc.RequestGenerateFromKeys{
		Address:  address,
		Spendkey: fmt.Sprintf("%x", spendBytes[:]),
		Viewkey:  fmt.Sprintf("%x", viewBytes[:]),
		Filename: filename,
		Password: password,
	})
	if err != nil {
		return fmt.Errorf("generate_from_keys: %w", err)
	}
	return nil
}

func (c *client) OpenWallet(filename, password string) error {
	if err := c.rpc.OpenWallet(&walletrpc.RequestOpenWallet{Filename: filename, Password: password}); err != nil {
		return fmt.Errorf("open_wallet: %w", err)
	}
	return nil
}

func (c *client) CloseWallet() error {
	if err := c.rpc.CloseWallet(); err != nil {
		return fmt.Errorf("close_wallet: %w", err)
	}
	return nil
}

func (c *client) Refresh() error {
	_, err := c.rpc.Refresh(&walletrpc.RequestRefresh{})
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	return nil
}

// WaitForConfirmations blocks until the wallet reports at least minConf
// confirmations for the given height (spec.md's Monero finality check), or
// until ctx is cancelled.
func WaitForConfirmations(ctx context.Context, c Client, lockHeight uint64, minConf uint64) error {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		height, err := c.GetHeight()
		if err != nil {
			log.Warnf("failed to query height while waiting for confirmations: %s", err)
		} else if height >= lockHeight+minConf {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
