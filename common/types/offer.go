// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package types

import (
	"github.com/cockroachdb/apd/v3"

	"github.com/athanorlabs/atomic-swap/coins"
	"github.com/athanorlabs/atomic-swap/common"
)

// Offer represents a maker's (Alice's) advertised willingness to sell Monero for
// Bitcoin within a min/max XMR range at a fixed exchange rate. It corresponds to the
// BidQuote/offer bookkeeping side of the M0/M1 handshake in spec.md §4.4.3.
type Offer struct {
	ID              Hash               `json:"offerID"`
	Network         common.Environment `json:"network"`
	MinAmount       *apd.Decimal       `json:"minAmount"` // XMR
	MaxAmount       *apd.Decimal       `json:"maxAmount"` // XMR
	ExchangeRate    *coins.ExchangeRate `json:"exchangeRate"`
}

// IsSet returns whether this Offer has been populated (vs. the zero value, used when a
// swap's offer was discarded after a successful take).
func (o *Offer) IsSet() bool {
	return o != nil && o.MinAmount != nil
}

// OfferExtra holds additional per-offer bookkeeping that isn't part of the offer's
// on-the-wire identity: a channel for status updates.
type OfferExtra struct {
	StatusCh chan Status `json:"-"`
}
