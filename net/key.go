// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package net

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	p2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
)

// loadOrCreateKey reads a hex-encoded Ed25519 libp2p identity key from path,
// generating and persisting a fresh one if the file does not yet exist. A
// stable identity lets a swap's counterparty reconnect to the same peer ID
// across restarts, which matters for crash-safe resume (spec.md's C6).
func loadOrCreateKey(path string) (p2pcrypto.PrivKey, error) {
	if path == "" {
		priv, _, err := p2pcrypto.GenerateEd25519Key(rand.Reader)
		return priv, err
	}

	b, err := os.ReadFile(path)
	if err == nil {
		raw, decErr := hex.DecodeString(string(b))
		if decErr != nil {
			return nil, fmt.Errorf("decoding node key file %s: %w", path, decErr)
		}
		return p2pcrypto.UnmarshalPrivateKey(raw)
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading node key file %s: %w", path, err)
	}

	priv, _, err := p2pcrypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating node key: %w", err)
	}
	raw, err := p2pcrypto.MarshalPrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("marshalling node key: %w", err)
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(raw)), 0o600); err != nil {
		return nil, fmt.Errorf("writing node key file %s: %w", path, err)
	}
	return priv, nil
}
