// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package rpc

import (
	"net/http"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
)

// Net represents the functions required by the rpc service into the libp2p
// host (protocol/backend's SendSwapMessage path shares the same host).
type Net interface {
	Addresses() []multiaddr.Multiaddr
	PeerID() peer.ID
}

// NetService handles requests to query and manage swapd's libp2p host.
type NetService struct {
	net            Net
	isBootnodeOnly bool
}

// NewNetService ...
func NewNetService(net Net, isBootnodeOnly bool) *NetService {
	return &NetService{net: net, isBootnodeOnly: isBootnodeOnly}
}

// AddressesRequest ...
type AddressesRequest struct{}

// AddressesResponse ...
type AddressesResponse struct {
	Addresses []string `json:"addresses"`
}

// Addresses returns the multiaddresses swapd is currently listening on.
func (s *NetService) Addresses(_ *http.Request, _ *AddressesRequest, resp *AddressesResponse) error {
	for _, addr := range s.net.Addresses() {
		resp.Addresses = append(resp.Addresses, addr.String())
	}
	return nil
}

// PeerIDRequest ...
type PeerIDRequest struct{}

// PeerIDResponse ...
type PeerIDResponse struct {
	PeerID string `json:"peerID"`
}

// PeerID returns swapd's own libp2p peer ID.
func (s *NetService) PeerID(_ *http.Request, _ *PeerIDRequest, resp *PeerIDResponse) error {
	resp.PeerID = s.net.PeerID().String()
	return nil
}
