// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package rpc

import (
	"context"
	"net/http"
)

// DaemonService handles requests that control swapd itself, not any
// particular swap.
type DaemonService struct {
	cancel context.CancelFunc
}

// NewDaemonService ...
func NewDaemonService(cancel context.CancelFunc) *DaemonService {
	return &DaemonService{cancel: cancel}
}

// ShutdownRequest ...
type ShutdownRequest struct{}

// ShutdownResponse ...
type ShutdownResponse struct{}

// Shutdown cancels the RPC server's own context (derived from the one
// NewServer was given), which Server.Start reacts to by gracefully shutting
// down the HTTP and websocket listeners.
func (s *DaemonService) Shutdown(_ *http.Request, _ *ShutdownRequest, _ *ShutdownResponse) error {
	log.Debug("received daemon_shutdown request")
	s.cancel()
	return nil
}

// VersionRequest ...
type VersionRequest struct{}

// VersionResponse ...
type VersionResponse struct {
	SwapdVersion string `json:"swapdVersion"`
}

// Version returns the daemon's version string.
func (s *DaemonService) Version(_ *http.Request, _ *VersionRequest, resp *VersionResponse) error {
	resp.SwapdVersion = daemonVersion
	return nil
}

const daemonVersion = "0.1.0"
