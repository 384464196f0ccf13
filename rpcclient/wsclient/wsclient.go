// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

// Package wsclient is swapcli's client for swapd's websocket endpoint,
// currently just swap_subscribeStatus.
package wsclient

import (
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"

	"github.com/athanorlabs/atomic-swap/common"
)

const subscribeSwapStatus = "swap_subscribeStatus"

// WsClient holds an open websocket connection to swapd.
type WsClient struct {
	conn *websocket.Conn
}

// Dial opens a websocket connection to swapd's "/ws" endpoint, e.g.
// "ws://127.0.0.1:5000/ws".
func Dial(endpoint string) (*WsClient, error) {
	conn, _, err := websocket.DefaultDialer.Dial(endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", endpoint, err)
	}
	return &WsClient{conn: conn}, nil
}

// Close closes the underlying connection.
func (c *WsClient) Close() error {
	return c.conn.Close()
}

type wsRequest struct {
	Method string      `json:"method"`
	Params interface{} `json:"params"`
}

type wsResponse struct {
	Result string `json:"result"`
	Error  string `json:"error"`
}

// SubscribeSwapStatus blocks reading status updates for id off the
// connection and invoking onUpdate with each one, until the server closes
// the connection (which it does once the swap reaches a terminal status).
func (c *WsClient) SubscribeSwapStatus(id common.SwapID, onUpdate func(status string)) error {
	req := wsRequest{
		Method: subscribeSwapStatus,
		Params: struct {
			OfferID common.SwapID `json:"offerID"`
		}{OfferID: id},
	}
	if err := c.conn.WriteJSON(req); err != nil {
		return err
	}

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return nil
		}
		var resp wsResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return fmt.Errorf("decoding status update: %w", err)
		}
		if resp.Error != "" {
			return fmt.Errorf("%s", resp.Error)
		}
		onUpdate(resp.Result)
	}
}
