package engine

import (
	"encoding/json"
	"fmt"
	"time"

	"chain-lens/pkg/chain"
	"chain-lens/pkg/codec"
	"chain-lens/pkg/engineerr"
	"chain-lens/pkg/script"
	"chain-lens/pkg/store"
)

// resolveUTXO looks up the output (utxoTxid, utxoVout) references, first in
// the store (confirmed or mempool) and then, if sameBlockCandidates is
// non-nil, among the earlier transactions of the block currently being
// assembled; a same-block resolution carries the candidate block's hash as
// its block_hash. Returns engineerr KindUTXO if neither source has it.
func resolveUTXO(t *store.Tx, utxoTxid string, utxoVout uint32, sameBlockCandidates []*chain.Transaction, blockHash string) (*chain.TxOut, error) {
	if out, found, err := store.GetOutputRow(t, utxoTxid, utxoVout); err != nil {
		return nil, engineerr.Wrap(engineerr.KindInternal, err, "store: looking up utxo %s:%d", utxoTxid, utxoVout)
	} else if found {
		return out, nil
	}

	for _, candidate := range sameBlockCandidates {
		if candidate.Txid != utxoTxid {
			continue
		}
		for _, out := range candidate.Outputs {
			if uint32(out.N) == utxoVout {
				clone := *out
				clone.BlockHash = blockHash
				clone.Txid = candidate.Txid
				return &clone, nil
			}
		}
	}

	return nil, engineerr.New(engineerr.KindUTXO, "missing referenced utxo %s:%d", utxoTxid, utxoVout)
}

// checkNotSpent verifies (utxoTxid, utxoVout) has no existing spender,
// across every partition of transaction_vin (store-persisted, confirmed or
// mempool) and, when provided, the in-memory set of inputs already consumed
// earlier in the same block-acceptance call, so two inputs of the same
// candidate block cannot double-spend each other before either is
// persisted.
func checkNotSpent(t *store.Tx, utxoTxid string, utxoVout uint32, consumedThisCall map[string]bool) error {
	key := fmt.Sprintf("%s:%d", utxoTxid, utxoVout)
	if consumedThisCall != nil && consumedThisCall[key] {
		return engineerr.New(engineerr.KindUTXO, "utxo %s already spent", key)
	}

	var spender string
	err := t.ScanTable(store.TableTransactionVin, func(_, _ string, value []byte) (bool, error) {
		vin, err := decodeVinRow(value)
		if err != nil {
			return false, err
		}
		if vin.UTXOTxid == utxoTxid && vin.UTXOVout == utxoVout {
			spender = vin.SpentTxid
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return engineerr.Wrap(engineerr.KindInternal, err, "store: spent-check scan")
	}
	if spender != "" {
		return engineerr.New(engineerr.KindUTXO, "utxo %s already spent by %s", key, spender)
	}
	return nil
}

// verifyInputScript evaluates scriptSig ∥ scriptPubKey on the Script VM for
// vin at position inputIndex within tx, using the sighash-message builder
// and treating any VM failure as a KindScript error.
func verifyInputScript(tx *chain.Transaction, inputIndex int, timestamp time.Time) error {
	vin := tx.Vin[inputIndex]
	scriptSig, err := codec.HexToBytes(vin.ScriptSigHex)
	if err != nil {
		return engineerr.Wrap(engineerr.KindShape, err, "vin[%d] script_sig_hex", inputIndex)
	}
	scriptPubKey, err := codec.HexToBytes(vin.UTXOScriptPubkey)
	if err != nil {
		return engineerr.Wrap(engineerr.KindShape, err, "vin[%d] utxo_script_pubkey", inputIndex)
	}

	sighashFn := func(sighashType byte) ([]byte, error) {
		return tx.SighashPreimage(inputIndex, sighashType)
	}

	ok, err := script.Evaluate(scriptSig, scriptPubKey, sighashFn, timestamp)
	if err != nil {
		return engineerr.Wrap(engineerr.KindScript, err, "vin[%d] script evaluation failed", inputIndex)
	}
	if !ok {
		return engineerr.New(engineerr.KindScript, "vin[%d] script evaluated to false", inputIndex)
	}
	return nil
}

func decodeVinRow(raw []byte) (*chain.TxIn, error) {
	var vin chain.TxIn
	if err := json.Unmarshal(raw, &vin); err != nil {
		return nil, fmt.Errorf("engine: decode vin row: %w", err)
	}
	return &vin, nil
}
