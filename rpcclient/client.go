// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

// Package rpcclient is swapcli's client for swapd's JSON-RPC 2.0 HTTP
// endpoint, one thin typed method per namespace.method the rpc package
// registers.
package rpcclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/athanorlabs/atomic-swap/common"
	"github.com/athanorlabs/atomic-swap/db"
	"github.com/athanorlabs/atomic-swap/protocol/swap"
)

// Client calls swapd's JSON-RPC endpoint over HTTP.
type Client struct {
	endpoint string
	http     *http.Client
}

// NewClient returns a Client pointed at a swapd instance's HTTP endpoint,
// e.g. "http://127.0.0.1:5000".
func NewClient(endpoint string) *Client {
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
}

type jsonrpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      int         `json:"id"`
}

type jsonrpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) call(method string, params, result interface{}) error {
	reqBody, err := json.Marshal(&jsonrpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      0,
	})
	if err != nil {
		return err
	}

	resp, err := c.http.Post(c.endpoint, "application/json", bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("calling %s: %w", method, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	var rpcResp jsonrpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("decoding %s response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("%s: %s", method, rpcResp.Error.Message)
	}
	if result == nil {
		return nil
	}
	return json.Unmarshal(rpcResp.Result, result)
}

// Addresses returns swapd's libp2p listening addresses.
func (c *Client) Addresses() ([]string, error) {
	var resp struct {
		Addresses []string `json:"addresses"`
	}
	if err := c.call("net.Addresses", struct{}{}, &resp); err != nil {
		return nil, err
	}
	return resp.Addresses, nil
}

// PeerID returns swapd's own libp2p peer ID.
func (c *Client) PeerID() (string, error) {
	var resp struct {
		PeerID string `json:"peerID"`
	}
	if err := c.call("net.PeerID", struct{}{}, &resp); err != nil {
		return "", err
	}
	return resp.PeerID, nil
}

// GetOngoingSwaps returns every swap currently in progress.
func (c *Client) GetOngoingSwaps() ([]*swap.Info, error) {
	var resp struct {
		Swaps []*swap.Info `json:"swaps"`
	}
	if err := c.call("swap.GetOngoing", struct{}{}, &resp); err != nil {
		return nil, err
	}
	return resp.Swaps, nil
}

// GetPastSwapIDs returns the IDs of every swap that has reached a terminal
// status.
func (c *Client) GetPastSwapIDs() ([]common.SwapID, error) {
	var resp struct {
		IDs []common.SwapID `json:"swapIDs"`
	}
	if err := c.call("swap.GetPast", struct{}{}, &resp); err != nil {
		return nil, err
	}
	return resp.IDs, nil
}

// GetStatus returns a single swap's current or final status string.
func (c *Client) GetStatus(id common.SwapID) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	params := struct {
		OfferID common.SwapID `json:"offerID"`
	}{OfferID: id}
	if err := c.call("swap.GetStatus", params, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// GetRecoveryInfo returns the persisted Bitcoin-side recovery record for a
// swap, used by swapcli's manual recovery subcommands.
func (c *Client) GetRecoveryInfo(id common.SwapID) (*db.RecoveryInfo, error) {
	var resp struct {
		Info *db.RecoveryInfo `json:"info"`
	}
	params := struct {
		OfferID common.SwapID `json:"offerID"`
	}{OfferID: id}
	if err := c.call("database.GetRecoveryInfo", params, &resp); err != nil {
		return nil, err
	}
	return resp.Info, nil
}

// GetSwapSecret returns the hex-encoded adaptor-signing scalar swapd used
// for a swap's own signature shares, for manual recovery with external
// tooling.
func (c *Client) GetSwapSecret(id common.SwapID) (string, error) {
	var resp struct {
		Secret string `json:"secret"`
	}
	params := struct {
		OfferID common.SwapID `json:"offerID"`
	}{OfferID: id}
	if err := c.call("recovery.GetSwapSecret", params, &resp); err != nil {
		return "", err
	}
	return resp.Secret, nil
}

// Claim asks swapd to resume driving a swap that is still listed as ongoing
// but has no running executor session. A session that ended with an error
// has already been marked CompletedAbort and is not resumed.
func (c *Client) Claim(id common.SwapID) error {
	params := struct {
		OfferID common.SwapID `json:"offerID"`
	}{OfferID: id}
	return c.call("recovery.Claim", params, nil)
}

// Refund asks swapd to abandon a swap via TxEarlyRefund; its running
// session acts on the request only if and when it waits in a state that
// allows it.
func (c *Client) Refund(id common.SwapID) error {
	params := struct {
		OfferID common.SwapID `json:"offerID"`
	}{OfferID: id}
	return c.call("recovery.Refund", params, nil)
}

// Shutdown asks swapd to gracefully terminate.
func (c *Client) Shutdown() error {
	return c.call("daemon.Shutdown", struct{}{}, nil)
}

// Version returns swapd's build version string.
func (c *Client) Version() (string, error) {
	var resp struct {
		SwapdVersion string `json:"swapdVersion"`
	}
	if err := c.call("daemon.Version", struct{}{}, &resp); err != nil {
		return "", err
	}
	return resp.SwapdVersion, nil
}
