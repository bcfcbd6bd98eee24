package engine

import (
	"context"
	"fmt"

	"chain-lens/pkg/chain"
	"chain-lens/pkg/engineerr"
	"chain-lens/pkg/store"
)

// AdmitToMempool validates an unconfirmed transaction: reject coinbase
// submissions, run
// the same per-input UTXO/spent/script checks as block acceptance (minus
// proof-of-work), enforce value balance, tag the transaction with the
// mempool sentinel block reference, and write it alongside its vins and
// outputs in one bbolt transaction.
func (e *Engine) AdmitToMempool(ctx context.Context, in chain.TransactionInput) (*chain.Transaction, error) {
	tx, err := chain.NewTransaction(in)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindShape, err, "transaction construction")
	}
	if tx.IsCoinbase() {
		return nil, engineerr.New(engineerr.KindConsensus, "coinbase transactions may not be submitted to the mempool")
	}

	timestamp := now()

	err = e.store.Update(func(t *store.Tx) error {
		var totalIn uint64
		consumed := make(map[string]bool)
		for i, vin := range tx.Vin {
			if err := ctx.Err(); err != nil {
				return engineerr.Wrap(engineerr.KindInternal, err, "mempool admission cancelled")
			}
			utxo, err := resolveUTXO(t, vin.UTXOTxid, vin.UTXOVout, nil, "")
			if err != nil {
				return err
			}
			if err := checkNotSpent(t, vin.UTXOTxid, vin.UTXOVout, consumed); err != nil {
				return err
			}

			vin.UTXOBlockHash = utxo.BlockHash
			vin.UTXOScriptPubkey = utxo.ScriptPubkeyHex
			vin.UTXOValue = utxo.Value
			vin.ScriptType = utxo.ScriptType
			vin.SpentTxid = tx.Txid
			vin.SpentBlockHash = chain.ZeroHash32

			if err := verifyInputScript(tx, i, timestamp); err != nil {
				return err
			}
			totalIn += utxo.Value
			consumed[fmt.Sprintf("%s:%d", vin.UTXOTxid, vin.UTXOVout)] = true
		}

		var totalOut uint64
		for _, out := range tx.Outputs {
			totalOut += out.Value
		}
		if totalIn != totalOut+tx.Fee {
			return engineerr.New(engineerr.KindUTXO, "value imbalance: inputs %d != outputs %d + fee %d", totalIn, totalOut, tx.Fee)
		}

		tx.BlockHash = chain.ZeroHash32
		tx.BlockHeight = chain.MempoolBlockHeight
		for _, out := range tx.Outputs {
			out.BlockHash = chain.ZeroHash32
			out.Txid = tx.Txid
		}

		if err := store.PutTransactionRow(t, chain.ZeroHash32, tx.Txid, store.TransactionRowFrom(tx)); err != nil {
			return engineerr.Wrap(engineerr.KindInternal, err, "writing mempool transaction row")
		}
		for _, vin := range tx.Vin {
			if err := store.PutVinRow(t, tx.Txid, vin); err != nil {
				return engineerr.Wrap(engineerr.KindInternal, err, "writing mempool vin row")
			}
		}
		for _, out := range tx.Outputs {
			if err := store.PutOutputRow(t, tx.Txid, out); err != nil {
				return engineerr.Wrap(engineerr.KindInternal, err, "writing mempool output row")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// ListMempool returns every transaction currently tagged with the mempool
// sentinel block_hash, reassembled with their vins/outputs.
func (e *Engine) ListMempool() ([]*chain.Transaction, error) {
	var out []*chain.Transaction
	err := e.store.View(func(t *store.Tx) error {
		rows, err := t.QueryPartition(store.TableTransaction, chain.ZeroHash32)
		if err != nil {
			return engineerr.Wrap(engineerr.KindInternal, err, "querying mempool")
		}
		for txid := range rows {
			tx, err := e.assembleTransaction(t, chain.ZeroHash32, txid)
			if err != nil {
				return err
			}
			out = append(out, tx)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
