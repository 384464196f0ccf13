// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/athanorlabs/atomic-swap/common"
	"github.com/athanorlabs/atomic-swap/protocol/swap"
)

const subscribeSwapStatus = "swap_subscribeStatus"

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// wsRequest mirrors the JSON-RPC 2.0 request envelope used over the
// websocket endpoint, the same shape the HTTP endpoint uses.
type wsRequest struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type wsResponse struct {
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// wsServer serves swap_subscribeStatus: once subscribed, it polls the
// swap's status and pushes every change to the connection until the swap
// reaches a terminal status.
type wsServer struct {
	ctx context.Context
	sm  swap.Manager
}

func newWsServer(ctx context.Context, sm swap.Manager) *wsServer {
	return &wsServer{ctx: ctx, sm: sm}
}

// ServeHTTP upgrades the connection and dispatches subscription requests.
func (s *wsServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("failed to upgrade connection to websockets: %s", err)
		return
	}
	defer conn.Close() //nolint:errcheck

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			log.Debugf("websocket connection closed: %s", err)
			return
		}

		var req wsRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			_ = conn.WriteJSON(wsResponse{Error: err.Error()})
			continue
		}

		if err := s.handleRequest(conn, &req); err != nil {
			_ = conn.WriteJSON(wsResponse{Error: err.Error()})
			continue
		}
		// a finished subscription closes the connection, which is how the
		// client learns the swap reached a terminal status
		return
	}
}

func (s *wsServer) handleRequest(conn *websocket.Conn, req *wsRequest) error {
	switch req.Method {
	case subscribeSwapStatus:
		var params struct {
			OfferID common.SwapID `json:"offerID"`
		}
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return err
		}
		return s.subscribeSwapStatus(conn, params.OfferID)
	default:
		return errInvalidMethod
	}
}

// subscribeSwapStatus polls the swap's status every second and writes it to
// the connection on every change, stopping once the swap reaches a
// terminal status. swap.Manager has no push-based status channel, so
// polling is the simplest correct replacement.
func (s *wsServer) subscribeSwapStatus(conn *websocket.Conn, id common.SwapID) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var lastStatus string
	for {
		info, err := s.sm.GetOngoingSwap(id)
		if err != nil {
			past, pastErr := s.sm.GetPastSwap(id)
			if pastErr != nil {
				return errNoSwapWithID
			}
			if past.Status.String() != lastStatus {
				if err := conn.WriteJSON(wsResponse{Result: past.Status.String()}); err != nil {
					return err
				}
			}
			return nil
		}

		if info.Status.String() != lastStatus {
			lastStatus = info.Status.String()
			if err := conn.WriteJSON(wsResponse{Result: lastStatus}); err != nil {
				return err
			}
		}

		select {
		case <-s.ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
