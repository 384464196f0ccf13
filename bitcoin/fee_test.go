// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package bitcoin

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/athanorlabs/atomic-swap/coins"
)

func TestEstimateFee(t *testing.T) {
	tests := []struct {
		name            string
		weightUnits     int64
		feeRatePerVByte int64
		amount          coins.SatoshiAmount
		want            coins.SatoshiAmount
	}{
		{
			name:            "ordinary fee within both caps",
			weightUnits:     CancelTxWeight,
			feeRatePerVByte: 10,
			amount:          1_000_000,
			want:            1410, // ceil(564/4)=141 vbytes * 10 sat/vByte
		},
		{
			name:            "feerate below min relay feerate is floored",
			weightUnits:     CancelTxWeight,
			feeRatePerVByte: 0,
			amount:          1_000_000,
			want:            141, // 141 vbytes * MinRelayFeeRate(1)
		},
		{
			name:            "relative cap binds before absolute cap",
			weightUnits:     CancelTxWeight,
			feeRatePerVByte: 1000,
			amount:          1000,
			want:            100, // floor(1000*0.1) = 100, below the 100,000 sat absolute cap
		},
		{
			name:            "absolute cap binds before relative cap",
			weightUnits:     CancelTxWeight,
			feeRatePerVByte: 1000,
			amount:          10_000_000,
			want:            100_000, // floor(10_000_000*0.1)=1_000_000, capped to MaxAbsoluteTxFee
		},
		{
			name:            "weight not a multiple of 4 rounds up",
			weightUnits:     563,
			feeRatePerVByte: 1,
			amount:          1_000_000,
			want:            141, // ceil(563/4) = 141 vbytes
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EstimateFee(tt.weightUnits, tt.feeRatePerVByte, tt.amount)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestEstimateFee_InvalidWeight(t *testing.T) {
	tests := []int64{0, -1, -564}
	for _, w := range tests {
		_, err := EstimateFee(w, 10, 1_000_000)
		require.Error(t, err)
	}
}
