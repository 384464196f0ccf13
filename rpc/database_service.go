// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package rpc

import (
	"net/http"

	"github.com/athanorlabs/atomic-swap/common"
	"github.com/athanorlabs/atomic-swap/db"
)

// DatabaseService exposes read access to swapd's persistent recovery and
// peer-address-book records, mostly useful for manual recovery via
// swapcli's recovery subcommands.
type DatabaseService struct {
	db *db.Database
}

// NewDatabaseService ...
func NewDatabaseService(database *db.Database) *DatabaseService {
	return &DatabaseService{db: database}
}

// GetRecoveryInfoRequest ...
type GetRecoveryInfoRequest struct {
	OfferID common.SwapID `json:"offerID"`
}

// GetRecoveryInfoResponse ...
type GetRecoveryInfoResponse struct {
	Info *db.RecoveryInfo `json:"info"`
}

// GetRecoveryInfo returns the Bitcoin-side recovery record swapd persisted
// for a swap, if setup reached the point of recording one.
func (s *DatabaseService) GetRecoveryInfo(
	_ *http.Request,
	req *GetRecoveryInfoRequest,
	resp *GetRecoveryInfoResponse,
) error {
	info, err := s.db.GetRecoveryInfo(req.OfferID)
	if err != nil {
		return err
	}
	resp.Info = info
	return nil
}

// GetPeerAddressesRequest ...
type GetPeerAddressesRequest struct {
	OfferID common.SwapID `json:"offerID"`
}

// GetPeerAddressesResponse ...
type GetPeerAddressesResponse struct {
	Addresses []string `json:"addresses"`
}

// GetPeerAddresses returns the last-known multiaddresses recorded for a
// swap's counterparty.
func (s *DatabaseService) GetPeerAddresses(
	_ *http.Request,
	req *GetPeerAddressesRequest,
	resp *GetPeerAddressesResponse,
) error {
	addrs, err := s.db.GetPeerAddresses(req.OfferID)
	if err != nil {
		return err
	}
	resp.Addresses = addrs
	return nil
}
