// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package rpc

import (
	"errors"

	"github.com/gorilla/rpc/v2/json2"
)

var (
	errInvalidMethod = errors.New("invalid method")
	errNoSwapWithID  = errors.New("unknown swap ID")
)

// NewCodec returns the JSON-RPC 2.0 codec used for the "/" HTTP endpoint.
func NewCodec() *json2.Codec {
	return json2.NewCodec()
}
