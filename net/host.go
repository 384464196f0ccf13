// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package net

import (
	"bufio"
	"context"
	"fmt"
	"sync"

	logging "github.com/ipfs/go-log"
	"github.com/libp2p/go-libp2p"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/peerstore"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/libp2p/go-libp2p/p2p/discovery/routing"
	"github.com/multiformats/go-multiaddr"

	"github.com/athanorlabs/atomic-swap/net/message"
)

var log = logging.Logger("net")

const defaultStreamTimeout = 30

// Handler processes an inbound message for one of the five swap protocols
// and returns the response to write back, or nil if the protocol is
// fire-and-forget.
type Handler func(peer.ID, message.Message) (message.Message, error)

// Config configures a Host.
type Config struct {
	Ctx            context.Context
	ListenIP       string
	Port           uint16
	KeyFile        string
	Bootnodes      []string
	IsBootnodeOnly bool
}

// Host wraps a libp2p host with the swap protocol handlers and peer
// discovery (via a Kademlia DHT) that the RPC-layer Net interface exposes to
// swapd.
type Host struct {
	ctx  context.Context
	h    host.Host
	dht  *dht.IpfsDHT
	mu   sync.RWMutex
	hdls map[protocol.ID]Handler
}

// NewHost constructs a libp2p host listening on cfg.ListenIP:cfg.Port, using
// a persisted (or freshly generated) identity key from cfg.KeyFile.
func NewHost(cfg *Config) (*Host, error) {
	priv, err := loadOrCreateKey(cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("loading node key: %w", err)
	}

	addr, err := multiaddr.NewMultiaddr(fmt.Sprintf("/ip4/%s/tcp/%d", cfg.ListenIP, cfg.Port))
	if err != nil {
		return nil, fmt.Errorf("invalid listen address: %w", err)
	}

	h, err := libp2p.New(
		libp2p.ListenAddrs(addr),
		libp2p.Identity(priv),
	)
	if err != nil {
		return nil, fmt.Errorf("constructing libp2p host: %w", err)
	}

	kdht, err := dht.New(cfg.Ctx, h, dht.Mode(dht.ModeAutoServer))
	if err != nil {
		return nil, fmt.Errorf("constructing DHT: %w", err)
	}

	return &Host{
		ctx:  cfg.Ctx,
		h:    h,
		dht:  kdht,
		hdls: make(map[protocol.ID]Handler),
	}, nil
}

// Start begins accepting connections, bootstraps the DHT, and connects to
// any configured bootnodes.
func (n *Host) Start(bootnodes []string) error {
	if err := n.dht.Bootstrap(n.ctx); err != nil {
		return fmt.Errorf("bootstrapping DHT: %w", err)
	}
	rd := routing.NewRoutingDiscovery(n.dht)
	_ = rd

	for _, addr := range bootnodes {
		ai, err := peer.AddrInfoFromString(addr)
		if err != nil {
			log.Warnf("invalid bootnode address %q: %s", addr, err)
			continue
		}
		if err := n.h.Connect(n.ctx, *ai); err != nil {
			log.Warnf("failed to connect to bootnode %s: %s", ai.ID, err)
		}
	}

	log.Infof("libp2p host started, peer ID %s", n.h.ID())
	return nil
}

// Stop tears down the host and its DHT.
func (n *Host) Stop() error {
	if err := n.dht.Close(); err != nil {
		log.Warnf("error closing DHT: %s", err)
	}
	return n.h.Close()
}

// PeerID returns this node's libp2p peer ID.
func (n *Host) PeerID() peer.ID {
	return n.h.ID()
}

// Addresses returns this node's full multiaddresses, including its peer ID,
// suitable for sharing with a counterparty out of band.
func (n *Host) Addresses() []multiaddr.Multiaddr {
	pi := peer.AddrInfo{ID: n.h.ID(), Addrs: n.h.Addrs()}
	addrs, err := peer.AddrInfoToP2pAddrs(&pi)
	if err != nil {
		log.Warnf("failed to build p2p addresses: %s", err)
		return nil
	}
	return addrs
}

// SetHandler installs the handler that answers inbound streams for pid,
// registering a raw libp2p stream handler the first time pid is used.
func (n *Host) SetHandler(pid protocol.ID, hdl Handler) {
	n.mu.Lock()
	n.hdls[pid] = hdl
	n.mu.Unlock()

	n.h.SetStreamHandler(pid, func(s network.Stream) {
		defer s.Close() //nolint:errcheck
		if err := n.serveStream(pid, s); err != nil {
			log.Debugf("error serving %s stream from %s: %s", pid, s.Conn().RemotePeer(), err)
		}
	})
}

func (n *Host) serveStream(pid protocol.ID, s network.Stream) error {
	n.mu.RLock()
	hdl := n.hdls[pid]
	n.mu.RUnlock()
	if hdl == nil {
		return fmt.Errorf("no handler registered for protocol %s", pid)
	}

	req, err := readMessage(s)
	if err != nil {
		return fmt.Errorf("reading request: %w", err)
	}

	resp, err := hdl(s.Conn().RemotePeer(), req)
	if err != nil {
		return fmt.Errorf("handling %s: %w", req.Type(), err)
	}
	if resp == nil {
		return nil
	}
	return writeMessage(s, resp)
}

// SendRequest opens a new stream to peerID over pid, writes req, and waits
// for a single response message.
func (n *Host) SendRequest(peerID peer.ID, pid protocol.ID, req message.Message) (message.Message, error) {
	s, err := n.h.NewStream(n.ctx, peerID, pid)
	if err != nil {
		return nil, fmt.Errorf("opening %s stream to %s: %w", pid, peerID, err)
	}
	defer s.Close() //nolint:errcheck

	if err := writeMessage(s, req); err != nil {
		return nil, fmt.Errorf("writing request: %w", err)
	}
	return readMessage(s)
}

func readMessage(s network.Stream) (message.Message, error) {
	r := bufio.NewReader(s)
	b, err := r.ReadBytes('\n')
	if err != nil {
		return nil, err
	}
	return message.DecodeMessage(b[:len(b)-1])
}

func writeMessage(s network.Stream, m message.Message) error {
	b, err := m.Encode()
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = s.Write(b)
	return err
}

// Connectedness reports whether this host currently has an open connection
// to peerID.
func (n *Host) Connectedness(peerID peer.ID) network.Connectedness {
	return n.h.Network().Connectedness(peerID)
}

// AddAddresses registers a peer's known addresses without dialing, used when
// learning a counterparty's address out of band (e.g. via the quote
// response).
func (n *Host) AddAddresses(ai peer.AddrInfo) {
	n.h.Peerstore().AddAddrs(ai.ID, ai.Addrs, peerstore.PermanentAddrTTL)
}
