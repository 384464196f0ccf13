// Copyright 2023 The AthanorLabs/atomic-swap Authors
// SPDX-License-Identifier: LGPL-3.0-only

package bitcoin

import (
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

// lockScript returns the 2-of-2 multisig witness script locking TxLock's
// output, spendable jointly by the maker and the taker (spec.md §4.2's
// "TxLock" is a 2-of-2 P2WSH output).
func lockScript(makerPub, takerPub *btcec.PublicKey) ([]byte, error) {
	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_2)
	builder.AddData(makerPub.SerializeCompressed())
	builder.AddData(takerPub.SerializeCompressed())
	builder.AddOp(txscript.OP_2)
	builder.AddOp(txscript.OP_CHECKMULTISIG)
	return builder.Script()
}

// timelockedRefundScript returns the witness script for TxCancel's output:
// spendable either by 2-of-2 cooperation (used by TxPunish and by a
// cooperative close) or, after the punish timelock t2, unilaterally by the
// taker's refund key (used by TxRefund).
func timelockedRefundScript(makerPub, takerPub, takerRefundPub *btcec.PublicKey, t2 int64) ([]byte, error) {
	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_IF)
	builder.AddOp(txscript.OP_2)
	builder.AddData(makerPub.SerializeCompressed())
	builder.AddData(takerPub.SerializeCompressed())
	builder.AddOp(txscript.OP_2)
	builder.AddOp(txscript.OP_CHECKMULTISIG)
	builder.AddOp(txscript.OP_ELSE)
	builder.AddInt64(t2)
	builder.AddOp(txscript.OP_CHECKSEQUENCEVERIFY)
	builder.AddOp(txscript.OP_DROP)
	builder.AddData(takerRefundPub.SerializeCompressed())
	builder.AddOp(txscript.OP_CHECKSIG)
	builder.AddOp(txscript.OP_ENDIF)
	return builder.Script()
}

// p2wshAddress wraps a witness script as a P2WSH address on the given
// network.
func p2wshAddress(script []byte, _ *chaincfg.Params) ([]byte, error) {
	scriptHash := sha256.Sum256(script)
	pkScript, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_0).
		AddData(scriptHash[:]).
		Script()
	if err != nil {
		return nil, fmt.Errorf("building P2WSH output script: %w", err)
	}
	return pkScript, nil
}
