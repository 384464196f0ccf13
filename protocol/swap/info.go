// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package swap

import (
	"time"

	"github.com/cockroachdb/apd/v3"

	"github.com/athanorlabs/atomic-swap/coins"
	"github.com/athanorlabs/atomic-swap/common"
	"github.com/athanorlabs/atomic-swap/common/types"
)

// Role distinguishes which side of a swap this node played, since the same
// Info shape is shared by both the maker's and the taker's bookkeeping.
type Role byte

const (
	// RoleMaker is the Alice-equivalent side: sells Monero, receives Bitcoin.
	RoleMaker Role = iota
	// RoleTaker is the Bob-equivalent side: sells Bitcoin, receives Monero.
	RoleTaker
)

// Info is the persisted, RPC-visible record of one swap, spanning its entire
// lifetime from setup through completion or refund.
type Info struct {
	ID           common.SwapID
	OfferID      types.Hash
	Role         Role
	Provided     *apd.Decimal // the amount (in this node's sold currency) put into the swap
	ExchangeRate *coins.ExchangeRate
	Status       types.Status
	StartTime    time.Time
	EndTime      *time.Time
}
