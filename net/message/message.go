// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

// Package message defines the wire messages exchanged over the five
// request-response protocols a swap uses (spec.md's quote, swap-setup,
// transfer-proof, encrypted-signature, and cooperative-xmr-redeem
// protocols).
package message

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/apd/v3"

	"github.com/athanorlabs/atomic-swap/common"
	"github.com/athanorlabs/atomic-swap/common/types"
)

// Type identifies a message's concrete Go type for decoding, since libp2p
// request-response streams carry raw bytes rather than self-describing
// envelopes.
type Type byte

const (
	QueryResponseType Type = iota
	SendKeysType
	NotifyBtcLockType
	NotifyXMRLockType
	NotifyTransferProofType
	NotifyEncryptedSignatureType
	NotifyCooperativeRedeemType
	NotifyRecoveryAbortType
	NotifyAuxSignaturesType
	NotifyRefundAdaptorSignatureType
	NilType
)

func (t Type) String() string {
	switch t {
	case QueryResponseType:
		return "QueryResponse"
	case SendKeysType:
		return "SendKeysMessage"
	case NotifyBtcLockType:
		return "NotifyBtcLock"
	case NotifyXMRLockType:
		return "NotifyXMRLock"
	case NotifyTransferProofType:
		return "NotifyTransferProof"
	case NotifyEncryptedSignatureType:
		return "NotifyEncryptedSignature"
	case NotifyCooperativeRedeemType:
		return "NotifyCooperativeRedeem"
	case NotifyRecoveryAbortType:
		return "NotifyRecoveryAbort"
	case NotifyAuxSignaturesType:
		return "NotifyAuxSignatures"
	case NotifyRefundAdaptorSignatureType:
		return "NotifyRefundAdaptorSignature"
	default:
		return "unknown"
	}
}

// Message must be implemented by every message sent over a swap protocol
// stream.
type Message interface {
	String() string
	Encode() ([]byte, error)
	Type() Type
}

// DecodeMessage decodes the given bytes (as written by Message.Encode) back
// into a concrete Message.
func DecodeMessage(b []byte) (Message, error) {
	if len(b) == 0 {
		return nil, errors.New("invalid message: zero length")
	}

	var m Message
	switch Type(b[0]) {
	case QueryResponseType:
		m = new(QueryResponse)
	case SendKeysType:
		m = new(SendKeysMessage)
	case NotifyBtcLockType:
		m = new(NotifyBtcLock)
	case NotifyXMRLockType:
		m = new(NotifyXMRLock)
	case NotifyTransferProofType:
		m = new(NotifyTransferProof)
	case NotifyEncryptedSignatureType:
		m = new(NotifyEncryptedSignature)
	case NotifyCooperativeRedeemType:
		m = new(NotifyCooperativeRedeem)
	case NotifyRecoveryAbortType:
		m = new(NotifyRecoveryAbort)
	case NotifyAuxSignaturesType:
		m = new(NotifyAuxSignatures)
	case NotifyRefundAdaptorSignatureType:
		m = new(NotifyRefundAdaptorSignature)
	default:
		return nil, fmt.Errorf("invalid message type %d", b[0])
	}

	if err := json.Unmarshal(b[1:], m); err != nil {
		return nil, fmt.Errorf("decoding %T: %w", m, err)
	}
	return m, nil
}

func encode(t Type, v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append([]byte{byte(t)}, b...), nil
}

// QueryResponse answers a peer's quote request (protocol "/quote/1.0.0") with
// the maker's currently advertised offers.
type QueryResponse struct {
	Offers []*types.Offer
}

func (m *QueryResponse) String() string       { return fmt.Sprintf("QueryResponse Offers=%v", m.Offers) }
func (m *QueryResponse) Encode() ([]byte, error) { return encode(QueryResponseType, m) }
func (m *QueryResponse) Type() Type              { return QueryResponseType }

// SendKeysMessage is exchanged by both parties over "/swap-setup/1.0.0" to
// establish the setup keys: secp256k1 encryption point, Monero public spend
// key share and private view key share (carried in PublicViewKey), the DLEQ
// proof binding the spend share to the encryption point, each side's refund public
// key, and the offer/amount being taken.
type SendKeysMessage struct {
	OfferID              types.Hash
	Network               common.Environment
	ProvidedAmount        *apd.Decimal
	PublicSpendKey        [32]byte
	PublicViewKey         [32]byte
	Secp256k1PublicKey    []byte // compressed SEC1
	DLEqProof             []byte
	BitcoinRefundPubKey   []byte
	EthAddress            string `json:",omitempty"` // unused; kept for wire compatibility with older peers
}

func (m *SendKeysMessage) String() string {
	return fmt.Sprintf("SendKeysMessage OfferID=%s ProvidedAmount=%s", m.OfferID, m.ProvidedAmount)
}
func (m *SendKeysMessage) Encode() ([]byte, error) { return encode(SendKeysType, m) }
func (m *SendKeysMessage) Type() Type              { return SendKeysType }

// NotifyBtcLock is sent by the taker to the maker once TxLock has been
// broadcast, carrying enough data for the maker to locate and verify it.
type NotifyBtcLock struct {
	TxHash        string
	WitnessScript []byte
}

func (m *NotifyBtcLock) String() string       { return fmt.Sprintf("NotifyBtcLock TxHash=%s", m.TxHash) }
func (m *NotifyBtcLock) Encode() ([]byte, error) { return encode(NotifyBtcLockType, m) }
func (m *NotifyBtcLock) Type() Type              { return NotifyBtcLockType }

// NotifyXMRLock is sent by the maker to the taker after broadcasting the
// Monero lock transfer, ahead of the full TransferProof.
type NotifyXMRLock struct {
	Address string
}

func (m *NotifyXMRLock) String() string       { return "NotifyXMRLock" }
func (m *NotifyXMRLock) Encode() ([]byte, error) { return encode(NotifyXMRLockType, m) }
func (m *NotifyXMRLock) Type() Type              { return NotifyXMRLockType }

// NotifyTransferProof is sent by the maker to the taker over
// "/transfer-proof/1.0.0", proving the Monero lock transfer's destination
// and amount without requiring the taker to trust the maker's wallet.
type NotifyTransferProof struct {
	TxHash string
	TxKey  string
}

func (m *NotifyTransferProof) String() string {
	return fmt.Sprintf("NotifyTransferProof TxHash=%s", m.TxHash)
}
func (m *NotifyTransferProof) Encode() ([]byte, error) { return encode(NotifyTransferProofType, m) }
func (m *NotifyTransferProof) Type() Type              { return NotifyTransferProofType }

// NotifyEncryptedSignature is sent by the taker to the maker over
// "/encrypted-signature/1.0.0": the adaptor-encrypted signature on TxRedeem
// that lets the maker claim the Bitcoin once it decrypts it with its own
// secret share.
type NotifyEncryptedSignature struct {
	SwapID             common.SwapID
	EncryptedSignature []byte
}

func (m *NotifyEncryptedSignature) String() string {
	return fmt.Sprintf("NotifyEncryptedSignature SwapID=%s", m.SwapID)
}
func (m *NotifyEncryptedSignature) Encode() ([]byte, error) {
	return encode(NotifyEncryptedSignatureType, m)
}
func (m *NotifyEncryptedSignature) Type() Type { return NotifyEncryptedSignatureType }

// NotifyCooperativeRedeem is sent over "/cooperative-xmr-redeem/1.0.0"; the
// taker requests it after being punished, and once the maker has claimed the
// Bitcoin via TxPunish (CompletedPunished), the maker can cooperatively reveal
// its key share instead of leaving the taker stuck.
type NotifyCooperativeRedeem struct {
	SwapID            common.SwapID
	MakerSpendKeyShare [32]byte // zero value means "refused"
}

func (m *NotifyCooperativeRedeem) String() string {
	return fmt.Sprintf("NotifyCooperativeRedeem SwapID=%s", m.SwapID)
}
func (m *NotifyCooperativeRedeem) Encode() ([]byte, error) {
	return encode(NotifyCooperativeRedeemType, m)
}
func (m *NotifyCooperativeRedeem) Type() Type { return NotifyCooperativeRedeemType }

// NotifyRecoveryAbort is sent by either party to voluntarily abort a swap
// that is still in its pre-lock setup phase, before any coin has moved.
type NotifyRecoveryAbort struct {
	SwapID common.SwapID
	Reason string
}

func (m *NotifyRecoveryAbort) String() string {
	return fmt.Sprintf("NotifyRecoveryAbort SwapID=%s Reason=%s", m.SwapID, m.Reason)
}
func (m *NotifyRecoveryAbort) Encode() ([]byte, error) { return encode(NotifyRecoveryAbortType, m) }
func (m *NotifyRecoveryAbort) Type() Type              { return NotifyRecoveryAbortType }

// NotifyAuxSignatures is exchanged once both sides know TxLock's outpoint
// (i.e. at BtcLocked): each side's ordinary signature share over TxCancel,
// TxPunish, and TxEarlyRefund, pre-signed while the counterparty is still
// responsive so that a later cancel, punish, or early-refund broadcast does
// not depend on a live round trip with a peer who may have disappeared.
type NotifyAuxSignatures struct {
	SwapID           common.SwapID
	TxCancelSig      []byte
	TxPunishSig      []byte
	TxEarlyRefundSig []byte
}

func (m *NotifyAuxSignatures) String() string {
	return fmt.Sprintf("NotifyAuxSignatures SwapID=%s", m.SwapID)
}
func (m *NotifyAuxSignatures) Encode() ([]byte, error) { return encode(NotifyAuxSignaturesType, m) }
func (m *NotifyAuxSignatures) Type() Type              { return NotifyAuxSignaturesType }

// NotifyRefundAdaptorSignature is sent by the maker to the taker at
// BtcLocked, right after the NotifyAuxSignatures exchange and before the
// maker locks its Monero: the maker's adaptor
// signature over TxRefund, encrypted under the taker's secp256k1 key, so the
// taker can complete and broadcast TxRefund to reclaim their Bitcoin. Once
// broadcast, the decrypted signature lets the maker recover the taker's
// Monero spend key share via HandleTxRefundObserved, the refund path's
// compensation for the maker.
type NotifyRefundAdaptorSignature struct {
	SwapID             common.SwapID
	EncryptedSignature []byte
}

func (m *NotifyRefundAdaptorSignature) String() string {
	return fmt.Sprintf("NotifyRefundAdaptorSignature SwapID=%s", m.SwapID)
}
func (m *NotifyRefundAdaptorSignature) Encode() ([]byte, error) {
	return encode(NotifyRefundAdaptorSignatureType, m)
}
func (m *NotifyRefundAdaptorSignature) Type() Type { return NotifyRefundAdaptorSignatureType }
