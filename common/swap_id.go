// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package common

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// SwapID is the opaque 128-bit identifier of a swap, per spec.md's data model. It is
// generated once at setup and never reused; it is the key under which every piece of
// per-swap state is persisted (see db.RecoveryDB).
type SwapID uuid.UUID

// NewSwapID generates a fresh random SwapID.
func NewSwapID() SwapID {
	return SwapID(uuid.New())
}

// String implements fmt.Stringer.
func (id SwapID) String() string {
	return uuid.UUID(id).String()
}

// SwapIDFromString parses a SwapID from its string representation.
func SwapIDFromString(s string) (SwapID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return SwapID{}, fmt.Errorf("invalid swap ID %q: %w", s, err)
	}
	return SwapID(u), nil
}

// MarshalJSON implements json.Marshaler.
func (id SwapID) MarshalJSON() ([]byte, error) {
	return json.Marshal(uuid.UUID(id).String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (id *SwapID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := SwapIDFromString(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Bytes returns the raw 16 bytes of the swap ID.
func (id SwapID) Bytes() []byte {
	u := uuid.UUID(id)
	return u[:]
}
