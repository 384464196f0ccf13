// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

// Package coins defines the fixed-point BTC/XMR amount types used throughout the swap
// core, along with conversion to and from the decimal strings accepted at the CLI and
// RPC boundaries.
package coins

import (
	"fmt"
	"math/big"

	"github.com/cockroachdb/apd/v3"
)

const (
	// NumSatsDecimals is the number of decimal digits in one BTC (8, satoshi is 1e-8 BTC).
	NumSatsDecimals = 8
	// NumPiconeroDecimals is the number of decimal digits in one XMR (12, piconero is 1e-12 XMR).
	NumPiconeroDecimals = 12
)

var (
	satsPerBTC  = new(apd.Decimal).SetFinite(1, NumSatsDecimals)
	piconeroXMR = new(apd.Decimal).SetFinite(1, NumPiconeroDecimals)
	decCtx      = apd.BaseContext.WithPrecision(40)
)

// SatoshiAmount represents an amount of bitcoin in satoshis, the smallest unit that the
// Bitcoin protocol can represent (1 BTC = 100_000_000 sats).
type SatoshiAmount uint64

// NewSatoshiAmount wraps a raw satoshi count.
func NewSatoshiAmount(sats uint64) SatoshiAmount {
	return SatoshiAmount(sats)
}

// AsSatoshis returns the amount as a plain uint64.
func (a SatoshiAmount) AsSatoshis() uint64 {
	return uint64(a)
}

// AsBTC converts the satoshi amount to a decimal BTC amount.
func (a SatoshiAmount) AsBTC() *apd.Decimal {
	sats := new(apd.Decimal).SetFinite(int64(a), 0)
	btc := new(apd.Decimal)
	_, _ = decCtx.Quo(btc, sats, satsPerBTC)
	return btc
}

// AsBTCString formats the amount as a BTC decimal string.
func (a SatoshiAmount) AsBTCString() string {
	return a.AsBTC().Text('f')
}

// BTCToSatoshis converts a decimal BTC amount to a SatoshiAmount, rounding down.
func BTCToSatoshis(btc *apd.Decimal) (SatoshiAmount, error) {
	scaled := new(apd.Decimal)
	_, err := decCtx.Mul(scaled, btc, satsPerBTC)
	if err != nil {
		return 0, fmt.Errorf("failed to convert BTC amount: %w", err)
	}

	rounded := new(apd.Decimal)
	_, err = decCtx.RoundToIntegralValue(rounded, scaled)
	if err != nil {
		return 0, err
	}

	i, err := rounded.Int64()
	if err != nil {
		return 0, fmt.Errorf("BTC amount out of range: %w", err)
	}
	if i < 0 {
		return 0, fmt.Errorf("BTC amount must not be negative")
	}

	return SatoshiAmount(i), nil
}

// PiconeroAmount represents an amount of monero in piconero, the atomic unit of the
// Monero protocol (1 XMR = 1e12 piconero).
type PiconeroAmount uint64

// NewPiconeroAmount wraps a raw piconero count.
func NewPiconeroAmount(piconero uint64) PiconeroAmount {
	return PiconeroAmount(piconero)
}

// AsPiconero returns the amount as a plain uint64.
func (a PiconeroAmount) AsPiconero() uint64 {
	return uint64(a)
}

// AsMonero converts the piconero amount to a decimal XMR amount.
func (a PiconeroAmount) AsMonero() *apd.Decimal {
	pic := new(apd.Decimal).SetFinite(int64(a), 0)
	xmr := new(apd.Decimal)
	_, _ = decCtx.Quo(xmr, pic, piconeroXMR)
	return xmr
}

// AsMoneroString formats the amount as an XMR decimal string.
func (a PiconeroAmount) AsMoneroString() string {
	return a.AsMonero().Text('f')
}

// MoneroToPiconero converts a decimal XMR amount to a PiconeroAmount, rounding down.
func MoneroToPiconero(xmr *apd.Decimal) (PiconeroAmount, error) {
	scaled := new(apd.Decimal)
	_, err := decCtx.Mul(scaled, xmr, piconeroXMR)
	if err != nil {
		return 0, fmt.Errorf("failed to convert XMR amount: %w", err)
	}

	rounded := new(apd.Decimal)
	_, err = decCtx.RoundToIntegralValue(rounded, scaled)
	if err != nil {
		return 0, err
	}

	i, err := rounded.Int64()
	if err != nil {
		return 0, fmt.Errorf("XMR amount out of range: %w", err)
	}
	if i < 0 {
		return 0, fmt.Errorf("XMR amount must not be negative")
	}

	return PiconeroAmount(i), nil
}

// FmtPiconeroAsXMR formats a raw piconero uint64 as an XMR decimal string, a
// convenience for logging wallet RPC responses that don't carry PiconeroAmount.
func FmtPiconeroAsXMR(piconero uint64) string {
	return PiconeroAmount(piconero).AsMoneroString()
}

// ExchangeRate represents an XMR/BTC exchange rate: how many BTC one XMR is worth.
type ExchangeRate apd.Decimal

// ToExchangeRate wraps a decimal as an ExchangeRate.
func ToExchangeRate(d *apd.Decimal) *ExchangeRate {
	r := ExchangeRate(*d)
	return &r
}

// Decimal returns the rate as a plain *apd.Decimal.
func (r *ExchangeRate) Decimal() *apd.Decimal {
	d := apd.Decimal(*r)
	return &d
}

// String implements fmt.Stringer.
func (r *ExchangeRate) String() string {
	return r.Decimal().Text('f')
}

// ToBTC converts an XMR amount to its BTC equivalent at this exchange rate.
func (r *ExchangeRate) ToBTC(xmrAmount *apd.Decimal) (*apd.Decimal, error) {
	btc := new(apd.Decimal)
	_, err := decCtx.Mul(btc, xmrAmount, r.Decimal())
	if err != nil {
		return nil, err
	}
	return btc, nil
}

// ToXMR converts a BTC amount to its XMR equivalent at this exchange rate.
func (r *ExchangeRate) ToXMR(btcAmount *apd.Decimal) (*apd.Decimal, error) {
	if r.Decimal().IsZero() {
		return nil, fmt.Errorf("exchange rate is zero")
	}
	xmr := new(apd.Decimal)
	_, err := decCtx.Quo(xmr, btcAmount, r.Decimal())
	if err != nil {
		return nil, err
	}
	return xmr, nil
}

// BigInt returns the amount as a *big.Int; a helper for code that needs to interoperate
// with the btcsuite wire types, which use int64 satoshi counts internally.
func (a SatoshiAmount) BigInt() *big.Int {
	return new(big.Int).SetUint64(uint64(a))
}
