// Package store implements the engine's partitioned key/value persistence
// contract: four tables, each row addressed by a (PartitionKey, RowKey)
// pair, backed by go.etcd.io/bbolt. bbolt's bucket-within-bucket model
// maps directly onto PartitionKey (an outer bucket per table) and RowKey
// (a key within it); its single-writer transaction discipline gives the
// engine's "no partial writes escape a failed call" requirement for free
// via transaction abort.
package store

import (
	"fmt"

	"go.etcd.io/bbolt"
)

// Table names.
const (
	TableBlock          = "block"
	TableTransaction    = "transaction"
	TableTransactionVin = "transaction_vin"
	TableTransactionOut = "transaction_output"
)

// Block table partition keys.
const (
	PartitionCurrent = "CURRENT"
	PartitionHistory = "HISTORY"
)

var allTables = []string{TableBlock, TableTransaction, TableTransactionVin, TableTransactionOut}

// RowKeyN encodes a positional index (a vin/output's n, or a block height)
// as a 20-digit zero-padded decimal string so that lexicographic
// bucket-key order matches numeric order.
func RowKeyN(n uint64) string {
	return fmt.Sprintf("%020d", n)
}

// Store is the process-wide handle onto the bbolt database backing all four
// tables. It is safe for concurrent use: bbolt serializes writers
// internally and allows unlimited concurrent readers alongside the one
// active writer.
type Store struct {
	db *bbolt.DB
}

// Open opens (creating if absent) the bbolt database at path and ensures
// every table's top-level bucket exists.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, table := range allTables {
			if _, err := tx.CreateBucketIfNotExists([]byte(table)); err != nil {
				return fmt.Errorf("create bucket %s: %w", table, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: init buckets: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// Tx is a single bbolt transaction scoped to one logical store operation
// (one create_block, one admit_to_mempool, or one point read), exposing the
// table operations the engine composes.
type Tx struct {
	tx       *bbolt.Tx
	writable bool
}

// Update runs fn inside a single read-write bbolt transaction: every write
// fn issues is durable only if fn returns nil, so a failure at any point
// in a multi-row write sequence leaves the store completely unchanged.
func (s *Store) Update(fn func(*Tx) error) error {
	return s.db.Update(func(btx *bbolt.Tx) error {
		return fn(&Tx{tx: btx, writable: true})
	})
}

// View runs fn inside a read-only bbolt transaction, safe to run
// concurrently with at most one active Update.
func (s *Store) View(fn func(*Tx) error) error {
	return s.db.View(func(btx *bbolt.Tx) error {
		return fn(&Tx{tx: btx, writable: false})
	})
}

func (t *Tx) partitionBucket(table, partitionKey string) (*bbolt.Bucket, error) {
	top := t.tx.Bucket([]byte(table))
	if top == nil {
		return nil, fmt.Errorf("store: unknown table %q", table)
	}
	if t.writable {
		return top.CreateBucketIfNotExists([]byte(partitionKey))
	}
	return top.Bucket([]byte(partitionKey)), nil
}

// Get reads one row's raw value. found is false if the partition or the row
// within it does not exist.
func (t *Tx) Get(table, partitionKey, rowKey string) (value []byte, found bool, err error) {
	bucket, err := t.partitionBucket(table, partitionKey)
	if err != nil {
		return nil, false, err
	}
	if bucket == nil {
		return nil, false, nil
	}
	v := bucket.Get([]byte(rowKey))
	if v == nil {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

// Put creates or overwrites one row.
func (t *Tx) Put(table, partitionKey, rowKey string, value []byte) error {
	if !t.writable {
		return fmt.Errorf("store: Put called on a read-only transaction")
	}
	bucket, err := t.partitionBucket(table, partitionKey)
	if err != nil {
		return err
	}
	return bucket.Put([]byte(rowKey), value)
}

// Delete removes one row. It is not an error for the row to already be
// absent.
func (t *Tx) Delete(table, partitionKey, rowKey string) error {
	if !t.writable {
		return fmt.Errorf("store: Delete called on a read-only transaction")
	}
	bucket, err := t.partitionBucket(table, partitionKey)
	if err != nil {
		return err
	}
	if bucket == nil {
		return nil
	}
	return bucket.Delete([]byte(rowKey))
}

// QueryPartition returns every row under one partition, keyed by RowKey.
// Used for set reads such as "all vins under one txid" or "all mempool
// transactions" (PartitionKey = the mempool sentinel block hash).
func (t *Tx) QueryPartition(table, partitionKey string) (map[string][]byte, error) {
	bucket, err := t.partitionBucket(table, partitionKey)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte)
	if bucket == nil {
		return out, nil
	}
	return out, bucket.ForEach(func(k, v []byte) error {
		value := make([]byte, len(v))
		copy(value, v)
		out[string(k)] = value
		return nil
	})
}

// ScanTable visits every row in every partition of table, used for
// whole-table predicates such as the spent-check ("any vin row, in any
// partition, whose denormalized utxo_txid/utxo_vout match"). fn may return
// stop=true to end the scan early.
func (t *Tx) ScanTable(table string, fn func(partitionKey, rowKey string, value []byte) (stop bool, err error)) error {
	top := t.tx.Bucket([]byte(table))
	if top == nil {
		return fmt.Errorf("store: unknown table %q", table)
	}
	stopped := false
	err := top.ForEach(func(partitionKey, v []byte) error {
		if stopped || v != nil {
			// v != nil shouldn't happen: every key at this level names a
			// bucket, not a value, but ForEach visits both kinds uniformly.
			return nil
		}
		partition := top.Bucket(partitionKey)
		if partition == nil {
			return nil
		}
		return partition.ForEach(func(rowKey, value []byte) error {
			if stopped {
				return nil
			}
			stop, err := fn(string(partitionKey), string(rowKey), value)
			if err != nil {
				return err
			}
			stopped = stop
			return nil
		})
	})
	return err
}

// DeletePartition removes an entire partition (every row under
// partitionKey) in one call. Block deletion uses it to drop all of a
// transaction's vins/outputs at once.
func (t *Tx) DeletePartition(table, partitionKey string) error {
	if !t.writable {
		return fmt.Errorf("store: DeletePartition called on a read-only transaction")
	}
	top := t.tx.Bucket([]byte(table))
	if top == nil {
		return fmt.Errorf("store: unknown table %q", table)
	}
	if top.Bucket([]byte(partitionKey)) == nil {
		return nil
	}
	return top.DeleteBucket([]byte(partitionKey))
}
