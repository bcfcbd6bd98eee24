package chain

import (
	"bytes"
	"fmt"

	"chain-lens/pkg/codec"
	"chain-lens/pkg/crypto"
)

// Transaction is the engine's transaction entity: a legacy-serialized,
// double-SHA-256-identified ordered sequence of inputs and outputs, plus the
// block reference the engine assigns once the transaction is included in a
// block or admitted to the mempool.
type Transaction struct {
	Txid     string `json:"txid"`
	Version  uint32 `json:"version"`
	Locktime uint32 `json:"locktime"`
	Fee      uint64 `json:"fee"`

	Vin     []*TxIn  `json:"vin"`
	Outputs []*TxOut `json:"outputs"`

	// Engine-assigned: the block this transaction belongs to, or the
	// mempool sentinel pair (ZeroHash32, MempoolBlockHeight).
	BlockHash   string `json:"block_hash"`
	BlockHeight uint32 `json:"block_height"`
}

// TransactionInput is the caller-supplied shape of a submitted transaction.
type TransactionInput struct {
	Txid     string  `json:"txid"`
	Version  uint32  `json:"version"`
	Locktime uint32  `json:"locktime"`
	Fee      *uint64 `json:"fee,omitempty"`

	Vin     []TxInInput  `json:"vin"`
	Outputs []TxOutInput `json:"outputs"`

	BlockHash   *string `json:"block_hash,omitempty"`
	BlockHeight *uint32 `json:"block_height,omitempty"`
}

// NewTransaction validates and constructs a Transaction from caller input:
// at least one vin and one output, version >= 1, recomputed txid matching
// the supplied one, positions assigned independently for vin and outputs.
func NewTransaction(in TransactionInput) (*Transaction, error) {
	if in.Version < 1 {
		return nil, fmt.Errorf("chain: transaction version must be >= 1, got %d", in.Version)
	}
	if len(in.Vin) < 1 {
		return nil, fmt.Errorf("chain: transaction must have at least one vin")
	}
	if len(in.Outputs) < 1 {
		return nil, fmt.Errorf("chain: transaction must have at least one output")
	}
	if in.BlockHash != nil || in.BlockHeight != nil {
		return nil, fmt.Errorf("chain: transaction block_hash/block_height are engine-assigned, must not be supplied")
	}
	if _, err := codec.MustHex32(in.Txid); err != nil {
		return nil, fmt.Errorf("chain: transaction txid: %w", err)
	}

	isCoinbase := len(in.Vin) == 1 && in.Vin[0].IsCoinbaseSentinel()

	vins := make([]*TxIn, len(in.Vin))
	for i, vinInput := range in.Vin {
		vin, err := NewTxIn(vinInput, isCoinbase)
		if err != nil {
			return nil, fmt.Errorf("chain: vin[%d]: %w", i, err)
		}
		vin.N = i
		vins[i] = vin
	}

	outputs := make([]*TxOut, len(in.Outputs))
	for i, outInput := range in.Outputs {
		out, err := NewTxOut(outInput)
		if err != nil {
			return nil, fmt.Errorf("chain: outputs[%d]: %w", i, err)
		}
		out.N = i
		outputs[i] = out
	}

	fee := uint64(0)
	if in.Fee != nil {
		fee = *in.Fee
	}

	tx := &Transaction{
		Txid:     in.Txid,
		Version:  in.Version,
		Locktime: in.Locktime,
		Fee:      fee,
		Vin:      vins,
		Outputs:  outputs,
	}

	msgTx, err := tx.toWireMsgTx(false, -1, "")
	if err != nil {
		return nil, fmt.Errorf("chain: transaction wire construction: %w", err)
	}
	recomputed := msgTx.TxHash().String()
	if recomputed != tx.Txid {
		return nil, fmt.Errorf("chain: txid mismatch: supplied %s, recomputed %s", tx.Txid, recomputed)
	}

	return tx, nil
}

// IsCoinbase reports whether tx's single input is the coinbase sentinel
// pair: true iff vin has exactly one element and it is the sentinel.
func (tx *Transaction) IsCoinbase() bool {
	return len(tx.Vin) == 1 && tx.Vin[0].UTXOTxid == ZeroHash32 && tx.Vin[0].UTXOVout == CoinbaseVoutSentinel
}

// raw returns the transaction's legacy serialization (no witness data) via
// wire.MsgTx.Serialize.
func (tx *Transaction) raw() ([]byte, error) {
	msgTx, err := tx.toWireMsgTx(false, -1, "")
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := msgTx.Serialize(&buf); err != nil {
		return nil, fmt.Errorf("chain: wire tx serialize: %w", err)
	}
	return buf.Bytes(), nil
}

// Raw exposes the legacy raw serialization for callers outside the package.
// The engine does not persist it; transaction rows hold header fields only.
func (tx *Transaction) Raw() ([]byte, error) {
	return tx.raw()
}

// SighashPreimage builds the 32-byte digest passed to
// pkg/crypto.VerifyECDSA for input inputIndex: every TxIn has a zero-length
// scriptSig except inputIndex, whose scriptSig is replaced by the referenced
// output's scriptPubKey (tx.Vin[inputIndex].UTXOScriptPubkey, which must
// already be populated by the engine before this is called); the 4-byte
// little-endian sighashType is appended, and the whole pre-image is
// double-SHA-256 hashed here, since VerifyECDSA applies no hashing of its
// own.
func (tx *Transaction) SighashPreimage(inputIndex int, sighashType byte) ([]byte, error) {
	if inputIndex < 0 || inputIndex >= len(tx.Vin) {
		return nil, fmt.Errorf("chain: sighash input index %d out of range", inputIndex)
	}
	target := tx.Vin[inputIndex]
	if target.UTXOScriptPubkey == "" {
		return nil, fmt.Errorf("chain: sighash: vin[%d] has no resolved utxo_script_pubkey", inputIndex)
	}

	msgTx, err := tx.toWireMsgTx(true, inputIndex, target.UTXOScriptPubkey)
	if err != nil {
		return nil, fmt.Errorf("chain: sighash wire construction: %w", err)
	}
	var buf bytes.Buffer
	if err := msgTx.Serialize(&buf); err != nil {
		return nil, fmt.Errorf("chain: sighash wire serialize: %w", err)
	}
	buf.Write(codec.IntLE(uint64(sighashType), 4))

	return crypto.Hash256(buf.Bytes()), nil
}
