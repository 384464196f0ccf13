// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package swap

import "github.com/athanorlabs/atomic-swap/common"

// Database is the persistence interface the swap Manager needs; the
// concrete implementation lives in package db and is backed by
// ChainSafe/chaindb, keeping swap bookkeeping in the same on-disk store as
// the rest of recovery state (spec.md's C6).
type Database interface {
	PutSwap(info *Info) error
	GetSwap(id common.SwapID) (*Info, error)
	GetAllSwaps() ([]*Info, error)
}
