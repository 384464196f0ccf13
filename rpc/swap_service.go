// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package rpc

import (
	"errors"
	"net/http"

	"github.com/athanorlabs/atomic-swap/common"
	"github.com/athanorlabs/atomic-swap/protocol/swap"
)

// SwapService handles requests that query ongoing and completed swaps.
type SwapService struct {
	manager swap.Manager
}

// NewSwapService ...
func NewSwapService(manager swap.Manager) *SwapService {
	return &SwapService{manager: manager}
}

// GetOngoingRequest ...
type GetOngoingRequest struct {
	OfferID *common.SwapID `json:"offerID,omitempty"`
}

// GetOngoingResponse ...
type GetOngoingResponse struct {
	Swaps []*swap.Info `json:"swaps"`
}

// GetOngoing returns a single ongoing swap if OfferID is set, or every
// ongoing swap otherwise.
func (s *SwapService) GetOngoing(_ *http.Request, req *GetOngoingRequest, resp *GetOngoingResponse) error {
	if req.OfferID != nil {
		info, err := s.manager.GetOngoingSwap(*req.OfferID)
		if err != nil {
			return err
		}
		resp.Swaps = []*swap.Info{&info}
		return nil
	}

	swaps, err := s.manager.GetOngoingSwaps()
	if err != nil {
		return err
	}
	resp.Swaps = swaps
	return nil
}

// GetPastRequest ...
type GetPastRequest struct{}

// GetPastResponse ...
type GetPastResponse struct {
	IDs []common.SwapID `json:"swapIDs"`
}

// GetPast returns the IDs of every swap that has reached a terminal status.
func (s *SwapService) GetPast(_ *http.Request, _ *GetPastRequest, resp *GetPastResponse) error {
	ids, err := s.manager.GetPastIDs()
	if err != nil {
		return err
	}
	resp.IDs = ids
	return nil
}

// GetStatusRequest ...
type GetStatusRequest struct {
	OfferID common.SwapID `json:"offerID"`
}

// GetStatusResponse ...
type GetStatusResponse struct {
	Status string `json:"status"`
}

// GetStatus returns a single swap's current or final status.
func (s *SwapService) GetStatus(_ *http.Request, req *GetStatusRequest, resp *GetStatusResponse) error {
	if info, err := s.manager.GetOngoingSwap(req.OfferID); err == nil {
		resp.Status = info.Status.String()
		return nil
	}

	info, err := s.manager.GetPastSwap(req.OfferID)
	if err != nil {
		return errors.New("unknown swap ID")
	}
	resp.Status = info.Status.String()
	return nil
}
