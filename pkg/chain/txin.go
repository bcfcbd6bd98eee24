package chain

import (
	"fmt"

	"chain-lens/pkg/codec"
)

// TxIn is a transaction input: a reference to a previously created output
// plus the fields the chain/mempool engine denormalizes once that output is
// resolved (utxo_block_hash, utxo_script_pubkey, utxo_value, script_type,
// spent_txid, spent_block_hash, n).
type TxIn struct {
	UTXOTxid     string `json:"utxo_txid"`
	UTXOVout     uint32 `json:"utxo_vout"`
	Sequence     uint32 `json:"sequence"`
	ScriptSigAsm string `json:"script_sig_asm"`
	ScriptSigHex string `json:"script_sig_hex"`

	// Denormalized by the engine at block-acceptance/mempool-admission time.
	UTXOBlockHash    string `json:"utxo_block_hash"`
	UTXOScriptPubkey string `json:"utxo_script_pubkey"`
	UTXOValue        uint64 `json:"utxo_value"`
	ScriptType       string `json:"script_type"`
	SpentTxid        string `json:"spent_txid"`
	SpentBlockHash   string `json:"spent_block_hash"`
	N                int    `json:"n"`
}

// TxInInput is the caller-supplied shape of an input in a submitted block or
// mempool transaction.
type TxInInput struct {
	UTXOTxid     string  `json:"utxo_txid"`
	UTXOVout     uint32  `json:"utxo_vout"`
	Sequence     uint32  `json:"sequence"`
	ScriptSigAsm *string `json:"script_sig_asm,omitempty"`
	ScriptSigHex *string `json:"script_sig_hex,omitempty"`

	UTXOBlockHash    *string `json:"utxo_block_hash,omitempty"`
	UTXOScriptPubkey *string `json:"utxo_script_pubkey,omitempty"`
	UTXOValue        *uint64 `json:"utxo_value,omitempty"`
	ScriptType       *string `json:"script_type,omitempty"`
	SpentTxid        *string `json:"spent_txid,omitempty"`
	SpentBlockHash   *string `json:"spent_block_hash,omitempty"`
	N                *int    `json:"n,omitempty"`
}

// IsCoinbaseSentinel reports whether in refers to the coinbase sentinel
// pair (utxo_txid = ZeroHash32, the 64-character all-zero txid, and
// utxo_vout = 0xFFFFFFFF).
func (in TxInInput) IsCoinbaseSentinel() bool {
	return in.UTXOTxid == ZeroHash32 && in.UTXOVout == CoinbaseVoutSentinel
}

// NewTxIn validates and constructs a TxIn from caller input. A non-coinbase
// input must not use the coinbase sentinel pair; denormalized fields must
// not be supplied by the caller.
func NewTxIn(in TxInInput, isCoinbase bool) (*TxIn, error) {
	if len(in.UTXOTxid) != 64 {
		return nil, fmt.Errorf("chain: txin utxo_txid must be 64 hex chars, got %d", len(in.UTXOTxid))
	}
	if _, err := codec.MustHex32(in.UTXOTxid); err != nil {
		return nil, fmt.Errorf("chain: txin utxo_txid: %w", err)
	}
	sentinel := in.IsCoinbaseSentinel()
	if isCoinbase && !sentinel {
		return nil, fmt.Errorf("chain: coinbase input must use the (all-zero txid, 0xFFFFFFFF) sentinel pair")
	}
	if !isCoinbase && (in.UTXOTxid == ZeroHash32 || in.UTXOVout == CoinbaseVoutSentinel) {
		return nil, fmt.Errorf("chain: non-coinbase input must not use a coinbase sentinel value")
	}
	if in.UTXOBlockHash != nil || in.UTXOScriptPubkey != nil || in.UTXOValue != nil ||
		in.ScriptType != nil || in.SpentTxid != nil || in.SpentBlockHash != nil || in.N != nil {
		return nil, fmt.Errorf("chain: txin denormalized fields must not be supplied by the caller")
	}

	asmHex, err := resolveScriptPair(in.ScriptSigAsm, in.ScriptSigHex, "script_sig")
	if err != nil {
		return nil, err
	}

	return &TxIn{
		UTXOTxid:     in.UTXOTxid,
		UTXOVout:     in.UTXOVout,
		Sequence:     in.Sequence,
		ScriptSigAsm: asmHex.asm,
		ScriptSigHex: asmHex.hex,
	}, nil
}
