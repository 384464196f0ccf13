// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package rpc

import (
	"encoding/hex"
	"net/http"

	"github.com/athanorlabs/atomic-swap/common"
	"github.com/athanorlabs/atomic-swap/db"
	"github.com/athanorlabs/atomic-swap/protocol/executor"
)

// RecoveryService exposes swapd's manual recovery operations: inspecting
// the secret a swap's own signature shares are derived from, and nudging a
// stuck swap's executor session to take an early refund or re-enter
// observation.
type RecoveryService struct {
	db       *db.Database
	executor *executor.Executor
}

// NewRecoveryService constructs a RecoveryService.
func NewRecoveryService(database *db.Database, ex *executor.Executor) *RecoveryService {
	return &RecoveryService{db: database, executor: ex}
}

// GetSwapSecretRequest ...
type GetSwapSecretRequest struct {
	OfferID common.SwapID `json:"offerID"`
}

// GetSwapSecretResponse ...
type GetSwapSecretResponse struct {
	Secret string `json:"secret"` // hex-encoded secp256k1 scalar
}

// GetSwapSecret returns this node's own adaptor-signing scalar for a swap,
// hex-encoded, letting an operator manually construct recovery transactions
// with external tooling if swapd itself cannot complete the swap.
func (s *RecoveryService) GetSwapSecret(
	_ *http.Request,
	req *GetSwapSecretRequest,
	resp *GetSwapSecretResponse,
) error {
	info, err := s.db.GetRecoveryInfo(req.OfferID)
	if err != nil {
		return err
	}
	resp.Secret = hex.EncodeToString(info.OurSecp256k1Key)
	return nil
}

// ClaimRequest ...
type ClaimRequest struct {
	OfferID common.SwapID `json:"offerID"`
}

// ClaimResponse ...
type ClaimResponse struct {
	Success bool `json:"success"`
}

// Claim forces a resume-replay (Executor.ResumeSwap) of a swap the swap
// manager still lists as ongoing but that has no running executor session.
// A session that ended with an error has already been marked CompletedAbort
// by Exit, so Claim does not resume it.
func (s *RecoveryService) Claim(
	_ *http.Request,
	req *ClaimRequest,
	resp *ClaimResponse,
) error {
	if err := s.executor.ResumeSwap(req.OfferID); err != nil {
		return err
	}
	resp.Success = true
	return nil
}

// RefundRequest ...
type RefundRequest struct {
	OfferID common.SwapID `json:"offerID"`
}

// RefundResponse ...
type RefundResponse struct {
	Success bool `json:"success"`
}

// Refund asks a running taker-side session to abandon its swap via
// TxEarlyRefund; the session acts on the request only if and when it waits
// in a state that allows it.
func (s *RecoveryService) Refund(
	_ *http.Request,
	req *RefundRequest,
	resp *RefundResponse,
) error {
	if err := s.executor.RequestEarlyRefund(req.OfferID); err != nil {
		return err
	}
	resp.Success = true
	return nil
}
