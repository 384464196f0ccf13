// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

// Package net provides the libp2p transport that swap peers use to discover
// each other and exchange the five request-response protocols of spec.md's
// wire protocol: quoting, swap setup, the Monero transfer proof, the
// encrypted Bitcoin signature, and cooperative post-punish Monero redeem.
package net

import "github.com/libp2p/go-libp2p/core/protocol"

// protocolVersion is appended to every protocol ID below; bumping it is a
// deliberate wire break, so peers on different versions simply fail to
// negotiate a stream rather than misinterpret each other's bytes.
const protocolVersion = "1.0.0"

const (
	// QueryProtocolID is used to request a peer's currently advertised offers.
	QueryProtocolID = protocol.ID("/quote/" + protocolVersion)
	// SwapSetupProtocolID is used to exchange SendKeysMessage and agree on
	// amounts, timelocks, and fees before any coin is locked.
	SwapSetupProtocolID = protocol.ID("/swap-setup/" + protocolVersion)
	// TransferProofProtocolID carries the maker's Monero TransferProof to the
	// taker once the lock transfer has been broadcast.
	TransferProofProtocolID = protocol.ID("/transfer-proof/" + protocolVersion)
	// EncryptedSignatureProtocolID carries the taker's adaptor-encrypted
	// TxRedeem signature to the maker.
	EncryptedSignatureProtocolID = protocol.ID("/encrypted-signature/" + protocolVersion)
	// CooperativeXMRRedeemProtocolID lets a punished taker request the
	// maker's Monero key share as a courtesy, after the maker has already
	// claimed the Bitcoin via TxPunish.
	CooperativeXMRRedeemProtocolID = protocol.ID("/cooperative-xmr-redeem/" + protocolVersion)
)

// protocolIDs lists every protocol this node registers a stream handler for,
// in the order handlers are installed at startup.
var protocolIDs = []protocol.ID{
	QueryProtocolID,
	SwapSetupProtocolID,
	TransferProofProtocolID,
	EncryptedSignatureProtocolID,
	CooperativeXMRRedeemProtocolID,
}

// ProtocolIDs returns the full list of protocols a Host must install a
// stream handler for before it can participate in swaps.
func ProtocolIDs() []protocol.ID {
	out := make([]protocol.ID, len(protocolIDs))
	copy(out, protocolIDs)
	return out
}
