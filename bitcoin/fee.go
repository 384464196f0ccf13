// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

// Package bitcoin builds and watches the six on-chain transactions a swap's
// Bitcoin leg can take: TxLock, TxCancel, TxRefund, TxPunish, TxEarlyRefund,
// and TxRedeem (spec.md §4.2, C2).
package bitcoin

import (
	"fmt"

	"github.com/cockroachdb/apd/v3"

	"github.com/athanorlabs/atomic-swap/coins"
)

// MaxRelativeTxFee caps any swap transaction's fee at 10% of the amount it
// spends, mirroring the upstream swap core's MAX_RELATIVE_TX_FEE constant.
var MaxRelativeTxFee = apd.New(1, -1) // 0.1

// MaxAbsoluteTxFee caps any swap transaction's fee at 100,000 satoshis
// regardless of amount, mirroring MAX_ABSOLUTE_TX_FEE.
const MaxAbsoluteTxFee = coins.SatoshiAmount(100_000)

// MinRelayFeeRate is the minimum fee rate (sat/vByte) accepted by default
// Bitcoin Core relay policy; fee estimates are never allowed to fall below
// the fee this implies for a given transaction weight.
const MinRelayFeeRate = 1

// Approximate weights (in weight units) of the single-input,
// single-output P2WSH spends a swap builds, used to size EstimateFee calls
// when no live weight is available yet (the transaction's own signatures
// haven't been attached).
const (
	CancelTxWeight      = 564 // 2-of-2 P2WSH spend, two DER signatures
	PunishTxWeight      = 564
	EarlyRefundTxWeight = 564
	RefundTxWeight      = 564
	RedeemTxWeight      = 564
)

// EstimateFee computes a transaction's fee from its weight (in weight units,
// i.e. 4x vbytes for non-witness data) and a feerate in sat/vByte, then
// clamps the result to [weight-implied min relay fee, min(10%*amount,
// 100,000 sat)]. This calculation must match the upstream swap core's
// fee policy bit-for-bit, since both parties independently derive the same
// transactions and must agree on their exact fee.
func EstimateFee(weightUnits int64, feeRatePerVByte int64, amount coins.SatoshiAmount) (coins.SatoshiAmount, error) {
	if weightUnits <= 0 {
		return 0, fmt.Errorf("invalid transaction weight %d", weightUnits)
	}
	if feeRatePerVByte < MinRelayFeeRate {
		feeRatePerVByte = MinRelayFeeRate
	}

	vbytes := (weightUnits + 3) / 4 // ceil(weight/4)
	fee := coins.SatoshiAmount(vbytes * feeRatePerVByte)

	minFee := coins.SatoshiAmount(vbytes * MinRelayFeeRate)
	if fee < minFee {
		fee = minFee
	}

	maxByAmount, err := relativeCap(amount)
	if err != nil {
		return 0, err
	}
	maxFee := maxByAmount
	if MaxAbsoluteTxFee < maxFee {
		maxFee = MaxAbsoluteTxFee
	}

	if fee > maxFee {
		fee = maxFee
	}
	return fee, nil
}

// relativeCap returns floor(amount * MaxRelativeTxFee) in satoshis.
func relativeCap(amount coins.SatoshiAmount) (coins.SatoshiAmount, error) {
	ctx := apd.BaseContext.WithPrecision(40)
	amtDec := apd.New(int64(amount), 0)
	capped := new(apd.Decimal)
	if _, err := ctx.Mul(capped, amtDec, MaxRelativeTxFee); err != nil {
		return 0, fmt.Errorf("computing relative fee cap: %w", err)
	}
	floored := new(apd.Decimal)
	if _, err := ctx.Floor(floored, capped); err != nil {
		return 0, fmt.Errorf("flooring relative fee cap: %w", err)
	}
	u64, err := floored.Int64()
	if err != nil {
		return 0, fmt.Errorf("relative fee cap out of range: %w", err)
	}
	return coins.SatoshiAmount(u64), nil
}
