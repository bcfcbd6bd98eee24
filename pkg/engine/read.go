package engine

import (
	"chain-lens/pkg/chain"
	"chain-lens/pkg/engineerr"
	"chain-lens/pkg/store"
)

// GetCurrentBlock implements the `GET /block/current` point read: reassembles
// the CURRENT sentinel's header plus every transaction/vin/output row filed
// under its hash. Returns a KindNotFound error when no block has ever been
// accepted.
func (e *Engine) GetCurrentBlock() (*chain.Block, error) {
	var block *chain.Block
	err := e.store.View(func(t *store.Tx) error {
		sentinel, found, err := store.GetBlockRow(t, store.PartitionCurrent, chain.ZeroHash32)
		if err != nil {
			return engineerr.Wrap(engineerr.KindInternal, err, "reading current tip")
		}
		if !found {
			return engineerr.New(engineerr.KindNotFound, "no current block")
		}

		txRows, err := t.QueryPartition(store.TableTransaction, sentinel.Hash)
		if err != nil {
			return engineerr.Wrap(engineerr.KindInternal, err, "listing block transactions")
		}
		transactions := make([]*chain.Transaction, 0, len(txRows))
		for txid := range txRows {
			tx, err := e.assembleTransaction(t, sentinel.Hash, txid)
			if err != nil {
				return err
			}
			transactions = append(transactions, tx)
		}

		block = &chain.Block{
			Hash:         sentinel.Hash,
			PreviousHash: sentinel.PreviousHash,
			MerkleRoot:   sentinel.MerkleRoot,
			Height:       sentinel.Height,
			Version:      sentinel.Version,
			Timestamp:    sentinel.Timestamp,
			Nonce:        sentinel.Nonce,
			Bits:         sentinel.Bits,
			Transactions: orderTransactionsByCoinbaseFirst(transactions),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return block, nil
}

// FindTransaction implements the `GET /transaction?txid=…` point read: the
// caller supplies only a txid, so the transaction table (partitioned by
// block_hash) must be scanned across every partition to locate it.
func (e *Engine) FindTransaction(txid string) (*chain.Transaction, error) {
	var result *chain.Transaction
	err := e.store.View(func(t *store.Tx) error {
		var blockHash string
		found := false
		scanErr := t.ScanTable(store.TableTransaction, func(partitionKey, rowKey string, _ []byte) (bool, error) {
			if rowKey != txid {
				return false, nil
			}
			blockHash = partitionKey
			found = true
			return true, nil
		})
		if scanErr != nil {
			return engineerr.Wrap(engineerr.KindInternal, scanErr, "scanning transactions for %s", txid)
		}
		if !found {
			return engineerr.New(engineerr.KindShape, "transaction %s not found", txid)
		}
		tx, err := e.assembleTransaction(t, blockHash, txid)
		if err != nil {
			return err
		}
		result = tx
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// assembleTransaction reads one TransactionRow plus its vin/output rows and
// reconstructs the full chain.Transaction document.
func (e *Engine) assembleTransaction(t *store.Tx, blockHash, txid string) (*chain.Transaction, error) {
	row, found, err := store.GetTransactionRow(t, blockHash, txid)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindInternal, err, "reading transaction row %s", txid)
	}
	if !found {
		return nil, engineerr.New(engineerr.KindNotFound, "transaction %s not found under block %s", txid, blockHash)
	}
	vins, err := store.QueryVins(t, txid)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindInternal, err, "reading vins for %s", txid)
	}
	outputs, err := store.QueryOutputs(t, txid)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.KindInternal, err, "reading outputs for %s", txid)
	}
	return &chain.Transaction{
		Txid:        row.Txid,
		Version:     row.Version,
		Locktime:    row.Locktime,
		Fee:         row.Fee,
		BlockHash:   row.BlockHash,
		BlockHeight: row.BlockHeight,
		Vin:         vins,
		Outputs:     outputs,
	}, nil
}

// orderTransactionsByCoinbaseFirst restores the coinbase-first ordering a
// block document requires; QueryPartition's underlying bbolt iteration has
// no guaranteed relation to submission order.
func orderTransactionsByCoinbaseFirst(transactions []*chain.Transaction) []*chain.Transaction {
	for i, tx := range transactions {
		if tx.IsCoinbase() {
			transactions[0], transactions[i] = transactions[i], transactions[0]
			break
		}
	}
	return transactions
}
