// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package types

// Status is the coarse, persisted, RPC-visible status of a swap. It is a superset of
// both Alice's (maker) and Bob's (taker) state spaces from spec.md §4.4; the
// per-role swap states (the swapState types of packages xmrmaker and xmrtaker) record
// a Status for persistence and for display in swapcli/get-status.
type Status byte

const (
	// ExpectingKeys is the status of a swap immediately after setup begins, before the
	// counterparty's keys have been exchanged and verified.
	ExpectingKeys Status = iota
	// KeysExchanged is set once both sides have exchanged and verified setup keys
	// (DLEQ proofs, timelocks, fees) but before any Bitcoin has been locked.
	KeysExchanged
	// BtcLockTransactionSeen is set once TxLock for this swap has been observed on
	// chain or in the mempool, but has not yet reached finality.
	BtcLockTransactionSeen
	// BtcLocked is set once TxLock has reached the configured finality depth.
	BtcLocked
	// XmrLockTransactionSent is set once the maker has broadcast the Monero lock
	// transfer to the joint address.
	XmrLockTransactionSent
	// XmrLockProofReceived is set (taker-side) once a TransferProof has been received
	// and validated, but Monero finality has not yet been reached.
	XmrLockProofReceived
	// XmrLocked is set once the Monero lock transaction has reached the configured
	// confirmation depth on the observing side.
	XmrLocked
	// XmrLockTransferProofSent is set (maker-side) once the TransferProof has been
	// delivered to and acknowledged by the taker.
	XmrLockTransferProofSent
	// EncSigSent is set (taker-side) once the encrypted signature on TxRedeem has been
	// sent to and acknowledged by the maker.
	EncSigSent
	// EncSigLearned is set (maker-side) once a valid encrypted signature for TxRedeem
	// has been received from the taker.
	EncSigLearned
	// BtcRedeemTransactionPublished is set once TxRedeem has been broadcast.
	BtcRedeemTransactionPublished
	// CancelTimelockExpired is set once the height observation shows the cancel
	// timelock (t1) has expired without a successful redeem.
	CancelTimelockExpired
	// BtcCancelled is set once TxCancel has been observed confirmed.
	BtcCancelled
	// BtcRefundPublished is set (taker-side) once TxRefund has been broadcast.
	BtcRefundPublished
	// BtcPunishable is set (maker-side) once the punish timelock (t2) has expired
	// without observing TxRefund.
	BtcPunishable
	// BtcEarlyRefundable is set (taker-side) between BtcLocked and XmrLockTransactionSent,
	// when a cooperative early abort is still possible.
	BtcEarlyRefundable
	// AttemptingCooperativeRedeem is set (taker-side) after being punished, while
	// waiting on a response to a cooperative Monero redeem request.
	AttemptingCooperativeRedeem

	// CompletedSuccess is a terminal status: the swap completed with both sides
	// receiving the coin they were owed.
	CompletedSuccess
	// CompletedRefund is a terminal status: this side got its original coin back via
	// the refund path.
	CompletedRefund
	// CompletedPunished is a terminal status: the swap ended via TxPunish. The maker
	// sets it once it has broadcast TxPunish; the taker sets it when it was punished
	// and no cooperative redeem recovered its Monero.
	CompletedPunished
	// CompletedAbort is a terminal status: the swap was aborted before any coin was
	// irreversibly committed.
	CompletedAbort
)

var statusNames = map[Status]string{
	ExpectingKeys:                  "ExpectingKeys",
	KeysExchanged:                  "KeysExchanged",
	BtcLockTransactionSeen:         "BtcLockTransactionSeen",
	BtcLocked:                      "BtcLocked",
	XmrLockTransactionSent:         "XmrLockTransactionSent",
	XmrLockProofReceived:           "XmrLockProofReceived",
	XmrLocked:                      "XmrLocked",
	XmrLockTransferProofSent:       "XmrLockTransferProofSent",
	EncSigSent:                     "EncSigSent",
	EncSigLearned:                  "EncSigLearned",
	BtcRedeemTransactionPublished:  "BtcRedeemTransactionPublished",
	CancelTimelockExpired:          "CancelTimelockExpired",
	BtcCancelled:                   "BtcCancelled",
	BtcRefundPublished:             "BtcRefundPublished",
	BtcPunishable:                  "BtcPunishable",
	BtcEarlyRefundable:             "BtcEarlyRefundable",
	AttemptingCooperativeRedeem:    "AttemptingCooperativeRedeem",
	CompletedSuccess:               "CompletedSuccess",
	CompletedRefund:                "CompletedRefund",
	CompletedPunished:              "CompletedPunished",
	CompletedAbort:                 "CompletedAbort",
}

// String implements fmt.Stringer.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "Unknown"
}

// IsOngoing returns true if the swap with this status is not yet in a terminal state.
func (s Status) IsOngoing() bool {
	switch s {
	case CompletedSuccess, CompletedRefund, CompletedPunished, CompletedAbort:
		return false
	default:
		return true
	}
}

// IsTerminal is the complement of IsOngoing, provided for readability at call sites
// that are checking for swap completion rather than for ongoing-ness.
func (s Status) IsTerminal() bool {
	return !s.IsOngoing()
}
