package engine

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"chain-lens/pkg/chain"
	"chain-lens/pkg/engineerr"
	"chain-lens/pkg/store"
)

// CreateBlock appends a block to the chain: read the current tip, verify the
// submitted block's linkage, difficulty floor, coinbase subsidy, and every
// non-coinbase input's UTXO existence/spent-state/script, then write the
// new tip, its HISTORY row, and every transaction/vin/output row in one
// bbolt transaction. Any failure, including ctx cancellation between
// inputs, leaves the store entirely unchanged.
func (e *Engine) CreateBlock(ctx context.Context, in chain.BlockInput) (*chain.Block, error) {
	block, err := chain.NewBlock(in)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindShape, err, "block construction")
	}

	timestamp := time.Unix(int64(block.Timestamp), 0).UTC()

	err = e.store.Update(func(t *store.Tx) error {
		height, err := e.verifyLinkageAndBits(t, block)
		if err != nil {
			return err
		}

		consumed := make(map[string]bool)
		for txIndex, tx := range block.Transactions {
			if tx.IsCoinbase() {
				if err := e.verifyCoinbaseSubsidy(tx); err != nil {
					return err
				}
				continue
			}
			sameBlockCandidates := block.Transactions[:txIndex]
			for i, vin := range tx.Vin {
				if err := ctx.Err(); err != nil {
					return engineerr.Wrap(engineerr.KindInternal, err, "block acceptance cancelled")
				}
				utxo, err := resolveUTXO(t, vin.UTXOTxid, vin.UTXOVout, sameBlockCandidates, block.Hash)
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
				vin.SpentBlockHash = block.Hash

				if err := verifyInputScript(tx, i, timestamp); err != nil {
					return err
				}
				consumed[vin.UTXOTxid+":"+strconv.FormatUint(uint64(vin.UTXOVout), 10)] = true
			}
		}

		block.Height = height
		for _, tx := range block.Transactions {
			tx.BlockHash = block.Hash
			tx.BlockHeight = uint32(height)
			for _, out := range tx.Outputs {
				out.BlockHash = block.Hash
				out.Txid = tx.Txid
			}
		}

		return writeBlock(t, block)
	})
	if err != nil {
		return nil, err
	}
	return block, nil
}

// verifyLinkageAndBits reads the CURRENT sentinel and checks previous-hash
// linkage (or genesis) and the configured difficulty floor, returning the
// height the new block will be assigned.
func (e *Engine) verifyLinkageAndBits(t *store.Tx, block *chain.Block) (uint16, error) {
	if block.Bits != e.bitsFloor {
		return 0, engineerr.New(engineerr.KindConsensus, "bits %s does not match configured floor %s", block.Bits, e.bitsFloor)
	}

	sentinel, found, err := store.GetBlockRow(t, store.PartitionCurrent, chain.ZeroHash32)
	if err != nil {
		return 0, engineerr.Wrap(engineerr.KindInternal, err, "reading current tip")
	}
	if !found {
		if block.PreviousHash != chain.ZeroHash32 {
			return 0, engineerr.New(engineerr.KindConsensus, "chain is empty: block must be genesis (previous_hash all-zero)")
		}
		return 0, nil
	}
	if block.PreviousHash != sentinel.Hash {
		return 0, engineerr.New(engineerr.KindConsensus, "previous_hash %s does not match current tip %s", block.PreviousHash, sentinel.Hash)
	}
	return sentinel.Height + 1, nil
}

// verifyCoinbaseSubsidy checks a coinbase's single output carries exactly
// the configured subsidy.
func (e *Engine) verifyCoinbaseSubsidy(tx *chain.Transaction) error {
	if len(tx.Outputs) != 1 {
		return engineerr.New(engineerr.KindConsensus, "coinbase must have exactly one output, got %d", len(tx.Outputs))
	}
	if tx.Outputs[0].Value != e.subsidySats {
		return engineerr.New(engineerr.KindConsensus, "coinbase output value %d does not match configured subsidy %d", tx.Outputs[0].Value, e.subsidySats)
	}
	return nil
}

// writeBlock issues the tip-advance writes in order: CURRENT sentinel,
// HISTORY row, then each transaction's row followed by its vins and
// outputs. The whole operation runs inside one bbolt write transaction, so
// the CURRENT-before-HISTORY ordering holds trivially: readers never
// observe a transaction in flight, only fully before or fully after.
func writeBlock(t *store.Tx, block *chain.Block) error {
	row := store.BlockRowFrom(block)
	if err := store.PutBlockRow(t, store.PartitionCurrent, chain.ZeroHash32, row); err != nil {
		return engineerr.Wrap(engineerr.KindInternal, err, "writing current tip")
	}
	if err := store.PutBlockRow(t, store.PartitionHistory, block.Hash, row); err != nil {
		return engineerr.Wrap(engineerr.KindInternal, err, "writing history row")
	}
	for _, tx := range block.Transactions {
		if err := store.PutTransactionRow(t, block.Hash, tx.Txid, store.TransactionRowFrom(tx)); err != nil {
			return engineerr.Wrap(engineerr.KindInternal, err, "writing transaction row %s", tx.Txid)
		}
		for _, vin := range tx.Vin {
			if err := store.PutVinRow(t, tx.Txid, vin); err != nil {
				return engineerr.Wrap(engineerr.KindInternal, err, "writing vin row")
			}
		}
		for _, out := range tx.Outputs {
			if err := store.PutOutputRow(t, tx.Txid, out); err != nil {
				return engineerr.Wrap(engineerr.KindInternal, err, "writing output row")
			}
		}
	}
	return nil
}

// DeleteBlock performs administrative tip removal: deletes
// the target block's transactions (vins/outputs/transaction row) and its
// HISTORY row, then rewrites or clears the CURRENT sentinel. Only deleting
// from the tip backwards is supported; reorganization is out of scope.
func (e *Engine) DeleteBlock(blockHash string) error {
	return e.store.Update(func(t *store.Tx) error {
		sentinel, found, err := store.GetBlockRow(t, store.PartitionCurrent, chain.ZeroHash32)
		if err != nil {
			return engineerr.Wrap(engineerr.KindInternal, err, "reading current tip")
		}
		if !found {
			return engineerr.New(engineerr.KindConsensus, "no current tip to delete")
		}

		target, found, err := store.GetBlockRow(t, store.PartitionHistory, blockHash)
		if err != nil {
			return engineerr.Wrap(engineerr.KindInternal, err, "reading history row")
		}
		if !found {
			return engineerr.New(engineerr.KindNotFound, "block %s not found", blockHash)
		}
		if target.Hash != sentinel.Hash {
			return engineerr.New(engineerr.KindConsensus, "deletion only supported from the tip backwards; %s is not the current tip", blockHash)
		}

		txRows, err := t.QueryPartition(store.TableTransaction, blockHash)
		if err != nil {
			return engineerr.Wrap(engineerr.KindInternal, err, "listing block transactions")
		}
		for txidKey := range txRows {
			if err := t.DeletePartition(store.TableTransactionVin, txidKey); err != nil {
				return engineerr.Wrap(engineerr.KindInternal, err, "deleting vins for %s", txidKey)
			}
			if err := t.DeletePartition(store.TableTransactionOut, txidKey); err != nil {
				return engineerr.Wrap(engineerr.KindInternal, err, "deleting outputs for %s", txidKey)
			}
		}
		if err := t.DeletePartition(store.TableTransaction, blockHash); err != nil {
			return engineerr.Wrap(engineerr.KindInternal, err, "deleting transaction partition")
		}
		if err := t.Delete(store.TableBlock, store.PartitionHistory, blockHash); err != nil {
			return engineerr.Wrap(engineerr.KindInternal, err, "deleting history row")
		}

		if target.PreviousHash == chain.ZeroHash32 {
			if err := t.Delete(store.TableBlock, store.PartitionCurrent, chain.ZeroHash32); err != nil {
				return engineerr.Wrap(engineerr.KindInternal, err, "clearing current tip")
			}
			return nil
		}
		prior, found, err := store.GetBlockRow(t, store.PartitionHistory, target.PreviousHash)
		if err != nil {
			return engineerr.Wrap(engineerr.KindInternal, err, "reading prior block")
		}
		if !found {
			return engineerr.New(engineerr.KindInternal, "prior block %s missing from history", target.PreviousHash)
		}
		return store.PutBlockRow(t, store.PartitionCurrent, chain.ZeroHash32, prior)
	})
}

// LogDeletion emits a structured log line for an administrative deletion,
// called by pkg/httpapi after a successful DeleteBlock.
func (e *Engine) LogDeletion(blockHash string) {
	e.log.Info("block deleted", zap.String("block_hash", blockHash))
}
