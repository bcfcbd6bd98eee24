package store

import (
	"encoding/json"
	"fmt"

	"chain-lens/pkg/chain"
)

// BlockRow is the block table's row shape: header fields plus height, with
// no transactions materialized (those live in the transaction/vin/output
// tables, keyed by this block's hash). uint16/uint32/uint64 fields are
// encoded through Go's json package against their declared widths, so
// there is no float64 width loss to guard against.
type BlockRow struct {
	Hash         string `json:"hash"`
	PreviousHash string `json:"previous_hash"`
	MerkleRoot   string `json:"merkle_root"`
	Height       uint16 `json:"height"`
	Version      uint32 `json:"version"`
	Timestamp    uint32 `json:"timestamp"`
	Nonce        uint32 `json:"nonce"`
	Bits         string `json:"bits"`
}

// TransactionRow is the transaction table's row shape: header-level fields
// only, no vin/outputs (those live in transaction_vin/transaction_output).
type TransactionRow struct {
	Txid        string `json:"txid"`
	Version     uint32 `json:"version"`
	Locktime    uint32 `json:"locktime"`
	Fee         uint64 `json:"fee"`
	BlockHash   string `json:"block_hash"`
	BlockHeight uint32 `json:"block_height"`
}

func BlockRowFrom(b *chain.Block) BlockRow {
	return BlockRow{
		Hash: b.Hash, PreviousHash: b.PreviousHash, MerkleRoot: b.MerkleRoot,
		Height: b.Height, Version: b.Version, Timestamp: b.Timestamp,
		Nonce: b.Nonce, Bits: b.Bits,
	}
}

func TransactionRowFrom(tx *chain.Transaction) TransactionRow {
	return TransactionRow{
		Txid: tx.Txid, Version: tx.Version, Locktime: tx.Locktime, Fee: tx.Fee,
		BlockHash: tx.BlockHash, BlockHeight: tx.BlockHeight,
	}
}

// PutBlockRow writes a BlockRow under (table/CURRENT|HISTORY, rowKey).
func PutBlockRow(t *Tx, partitionKey, rowKey string, row BlockRow) error {
	b, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("store: marshal block row: %w", err)
	}
	return t.Put(TableBlock, partitionKey, rowKey, b)
}

// GetBlockRow reads one BlockRow.
func GetBlockRow(t *Tx, partitionKey, rowKey string) (BlockRow, bool, error) {
	raw, found, err := t.Get(TableBlock, partitionKey, rowKey)
	if err != nil || !found {
		return BlockRow{}, found, err
	}
	var row BlockRow
	if err := json.Unmarshal(raw, &row); err != nil {
		return BlockRow{}, false, fmt.Errorf("store: unmarshal block row: %w", err)
	}
	return row, true, nil
}

// PutTransactionRow writes a TransactionRow under (blockHash, txid).
func PutTransactionRow(t *Tx, blockHash, txid string, row TransactionRow) error {
	b, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("store: marshal transaction row: %w", err)
	}
	return t.Put(TableTransaction, blockHash, txid, b)
}

// GetTransactionRow reads one TransactionRow.
func GetTransactionRow(t *Tx, blockHash, txid string) (TransactionRow, bool, error) {
	raw, found, err := t.Get(TableTransaction, blockHash, txid)
	if err != nil || !found {
		return TransactionRow{}, found, err
	}
	var row TransactionRow
	if err := json.Unmarshal(raw, &row); err != nil {
		return TransactionRow{}, false, fmt.Errorf("store: unmarshal transaction row: %w", err)
	}
	return row, true, nil
}

// PutVinRow writes a full TxIn record under (spentTxid, RowKeyN(vin.N)).
func PutVinRow(t *Tx, spentTxid string, vin *chain.TxIn) error {
	b, err := json.Marshal(vin)
	if err != nil {
		return fmt.Errorf("store: marshal vin row: %w", err)
	}
	return t.Put(TableTransactionVin, spentTxid, RowKeyN(uint64(vin.N)), b)
}

// PutOutputRow writes a full TxOut record under (txid, RowKeyN(out.N)).
func PutOutputRow(t *Tx, txid string, out *chain.TxOut) error {
	b, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("store: marshal output row: %w", err)
	}
	return t.Put(TableTransactionOut, txid, RowKeyN(uint64(out.N)), b)
}

// GetOutputRow reads one output record by (txid, vout).
func GetOutputRow(t *Tx, txid string, vout uint32) (*chain.TxOut, bool, error) {
	raw, found, err := t.Get(TableTransactionOut, txid, RowKeyN(uint64(vout)))
	if err != nil || !found {
		return nil, found, err
	}
	var out chain.TxOut
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, false, fmt.Errorf("store: unmarshal output row: %w", err)
	}
	return &out, true, nil
}

// QueryVins returns every vin row under one transaction's partition,
// ordered by N.
func QueryVins(t *Tx, spentTxid string) ([]*chain.TxIn, error) {
	rows, err := t.QueryPartition(TableTransactionVin, spentTxid)
	if err != nil {
		return nil, err
	}
	return decodeOrderedTxIns(rows)
}

// QueryOutputs returns every output row under one transaction's partition,
// ordered by N.
func QueryOutputs(t *Tx, txid string) ([]*chain.TxOut, error) {
	rows, err := t.QueryPartition(TableTransactionOut, txid)
	if err != nil {
		return nil, err
	}
	return decodeOrderedTxOuts(rows)
}

func decodeOrderedTxIns(rows map[string][]byte) ([]*chain.TxIn, error) {
	out := make([]*chain.TxIn, 0, len(rows))
	for rowKey, raw := range rows {
		var vin chain.TxIn
		if err := json.Unmarshal(raw, &vin); err != nil {
			return nil, fmt.Errorf("store: unmarshal vin row %s: %w", rowKey, err)
		}
		out = append(out, &vin)
	}
	sortTxInsByN(out)
	return out, nil
}

func decodeOrderedTxOuts(rows map[string][]byte) ([]*chain.TxOut, error) {
	out := make([]*chain.TxOut, 0, len(rows))
	for rowKey, raw := range rows {
		var txout chain.TxOut
		if err := json.Unmarshal(raw, &txout); err != nil {
			return nil, fmt.Errorf("store: unmarshal output row %s: %w", rowKey, err)
		}
		out = append(out, &txout)
	}
	sortTxOutsByN(out)
	return out, nil
}

func sortTxInsByN(vins []*chain.TxIn) {
	for i := 1; i < len(vins); i++ {
		for j := i; j > 0 && vins[j-1].N > vins[j].N; j-- {
			vins[j-1], vins[j] = vins[j], vins[j-1]
		}
	}
}

func sortTxOutsByN(outs []*chain.TxOut) {
	for i := 1; i < len(outs); i++ {
		for j := i; j > 0 && outs[j-1].N > outs[j].N; j-- {
			outs[j-1], outs[j] = outs[j], outs[j-1]
		}
	}
}
