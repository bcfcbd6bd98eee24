package chain

import (
	"fmt"

	"chain-lens/pkg/codec"
	"chain-lens/pkg/script"
)

// TxOut is a transaction output: a value and a locking script, plus the
// fields the engine denormalizes once the output's position is known
// (block_hash, txid, n).
type TxOut struct {
	Value           uint64 `json:"value"`
	ScriptPubkeyAsm string `json:"script_pubkey_asm"`
	ScriptPubkeyHex string `json:"script_pubkey_hex"`
	ScriptType      string `json:"script_type"`

	// Denormalized by the engine; zero-valued until the owning Transaction
	// is assigned a position (NewTransaction) and a block (engine writes).
	BlockHash string `json:"block_hash"`
	Txid      string `json:"txid"`
	N         int    `json:"n"`
}

// TxOutInput is the caller-supplied shape of an output in a submitted block
// or mempool transaction: exactly one of ScriptPubkeyAsm/ScriptPubkeyHex is
// required, the other derived; denormalized fields must be absent.
type TxOutInput struct {
	Value           uint64  `json:"value"`
	ScriptPubkeyAsm *string `json:"script_pubkey_asm,omitempty"`
	ScriptPubkeyHex *string `json:"script_pubkey_hex,omitempty"`
	ScriptType      *string `json:"script_type,omitempty"`
	BlockHash       *string `json:"block_hash,omitempty"`
	Txid            *string `json:"txid,omitempty"`
	N               *int    `json:"n,omitempty"`
}

// NewTxOut validates and constructs a TxOut from caller input. Value must be
// at least 1 satoshi; exactly one of ScriptPubkeyAsm/ScriptPubkeyHex must be
// supplied, the other derived; denormalized fields must not be supplied by
// the caller.
func NewTxOut(in TxOutInput) (*TxOut, error) {
	if in.Value < 1 {
		return nil, fmt.Errorf("chain: txout value must be >= 1, got %d", in.Value)
	}
	if in.ScriptType != nil {
		return nil, fmt.Errorf("chain: txout script_type is engine-derived, must not be supplied")
	}
	if in.BlockHash != nil || in.Txid != nil || in.N != nil {
		return nil, fmt.Errorf("chain: txout denormalized fields (block_hash/txid/n) must not be supplied")
	}

	asmHex, err := resolveScriptPair(in.ScriptPubkeyAsm, in.ScriptPubkeyHex, "script_pubkey")
	if err != nil {
		return nil, err
	}

	scriptBytes, err := codec.HexToBytes(asmHex.hex)
	if err != nil {
		return nil, fmt.Errorf("chain: txout script_pubkey_hex invalid: %w", err)
	}

	return &TxOut{
		Value:           in.Value,
		ScriptPubkeyAsm: asmHex.asm,
		ScriptPubkeyHex: asmHex.hex,
		ScriptType:      ClassifyScriptPubkey(scriptBytes),
	}, nil
}

// asmHexPair is the resolved (asm, hex) form of a script supplied by either
// representation.
type asmHexPair struct {
	asm string
	hex string
}

// resolveScriptPair implements the "exactly one of asm/hex supplied, the
// other derived" contract shared by ScriptSig and ScriptPubkey fields on
// TxIn/TxOut: asm/hexStr are nil when the caller omitted the field, non-nil
// (possibly pointing at "") when supplied.
func resolveScriptPair(asm, hexStr *string, fieldName string) (asmHexPair, error) {
	switch {
	case asm != nil && hexStr != nil:
		return asmHexPair{}, fmt.Errorf("chain: exactly one of %s_asm/%s_hex must be supplied, got both", fieldName, fieldName)
	case hexStr != nil:
		derivedAsm, err := script.DisassembleHex(*hexStr)
		if err != nil {
			return asmHexPair{}, fmt.Errorf("chain: %s_hex does not disassemble: %w", fieldName, err)
		}
		return asmHexPair{asm: derivedAsm, hex: *hexStr}, nil
	case asm != nil:
		derivedHex, err := script.AssembleASM(*asm)
		if err != nil {
			return asmHexPair{}, fmt.Errorf("chain: %s_asm does not assemble: %w", fieldName, err)
		}
		return asmHexPair{asm: *asm, hex: derivedHex}, nil
	default:
		return asmHexPair{}, fmt.Errorf("chain: exactly one of %s_asm/%s_hex must be supplied, got neither", fieldName, fieldName)
	}
}
