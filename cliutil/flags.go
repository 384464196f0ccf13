// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package cliutil

import (
	"fmt"

	"github.com/cockroachdb/apd/v3"
	"github.com/urfave/cli/v2"
)

// ReadUnsignedDecimalFlag parses a non-negative decimal amount (BTC or XMR)
// passed to a string flag, rejecting anything negative or malformed.
func ReadUnsignedDecimalFlag(ctx *cli.Context, flag string) (*apd.Decimal, error) {
	str := ctx.String(flag)
	if str == "" {
		return nil, fmt.Errorf("flag --%s is required", flag)
	}

	dec, _, err := new(apd.Decimal).SetString(str)
	if err != nil {
		return nil, fmt.Errorf("invalid decimal value %q for --%s: %w", str, flag, err)
	}
	if dec.Negative {
		return nil, fmt.Errorf("--%s must not be negative", flag)
	}
	return dec, nil
}
