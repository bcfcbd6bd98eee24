package chain

import (
	"bytes"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"chain-lens/pkg/codec"
)

// toWireHeader builds the wire.BlockHeader representation of a block's
// header fields, the same struct the reference node's block parser
// deserializes raw headers into.
func (b *Block) toWireHeader() (*wire.BlockHeader, error) {
	prevHash, err := chainhash.NewHashFromStr(b.PreviousHash)
	if err != nil {
		return nil, fmt.Errorf("chain: previous_hash: %w", err)
	}
	merkleHash, err := chainhash.NewHashFromStr(b.MerkleRoot)
	if err != nil {
		return nil, fmt.Errorf("chain: merkle_root: %w", err)
	}
	bits, err := BitsUint32(b.Bits)
	if err != nil {
		return nil, fmt.Errorf("chain: bits: %w", err)
	}
	return &wire.BlockHeader{
		Version:    int32(b.Version),
		PrevBlock:  *prevHash,
		MerkleRoot: *merkleHash,
		Timestamp:  time.Unix(int64(b.Timestamp), 0).UTC(),
		Bits:       bits,
		Nonce:      b.Nonce,
	}, nil
}

// headerRaw returns the 80-byte block header serialization via
// wire.BlockHeader.Serialize.
func (b *Block) headerRaw() ([]byte, error) {
	header, err := b.toWireHeader()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := header.Serialize(&buf); err != nil {
		return nil, fmt.Errorf("chain: wire header serialize: %w", err)
	}
	return buf.Bytes(), nil
}

// headerHash recomputes the block hash the way wire.BlockHeader.BlockHash
// does: double-SHA-256 of the serialized header, displayed in the reversed
// big-endian convention chainhash.Hash.String() applies.
func (b *Block) headerHash() (string, error) {
	header, err := b.toWireHeader()
	if err != nil {
		return "", err
	}
	return header.BlockHash().String(), nil
}

// toWireMsgTx builds the wire.MsgTx representation of tx. When forSighash is
// true, every input's scriptSig is zero-length except sighashInputIndex's,
// which carries sighashScriptSigHex (the legacy sighash substitution of the
// referenced output's scriptPubKey); when false every input's real scriptSig
// is serialized.
func (tx *Transaction) toWireMsgTx(forSighash bool, sighashInputIndex int, sighashScriptSigHex string) (*wire.MsgTx, error) {
	msgTx := wire.NewMsgTx(int32(tx.Version))
	for i, in := range tx.Vin {
		prevHash, err := chainhash.NewHashFromStr(in.UTXOTxid)
		if err != nil {
			return nil, fmt.Errorf("chain: vin[%d] utxo_txid: %w", i, err)
		}
		scriptSigHex := in.ScriptSigHex
		if forSighash {
			scriptSigHex = ""
			if i == sighashInputIndex {
				scriptSigHex = sighashScriptSigHex
			}
		}
		scriptSig, err := codec.HexToBytes(scriptSigHex)
		if err != nil {
			return nil, fmt.Errorf("chain: vin[%d] script_sig_hex: %w", i, err)
		}
		msgTx.AddTxIn(&wire.TxIn{
			PreviousOutPoint: wire.OutPoint{Hash: *prevHash, Index: in.UTXOVout},
			SignatureScript:  scriptSig,
			Sequence:         in.Sequence,
		})
	}
	for i, out := range tx.Outputs {
		pkScript, err := codec.HexToBytes(out.ScriptPubkeyHex)
		if err != nil {
			return nil, fmt.Errorf("chain: outputs[%d] script_pubkey_hex: %w", i, err)
		}
		msgTx.AddTxOut(&wire.TxOut{Value: int64(out.Value), PkScript: pkScript})
	}
	msgTx.LockTime = tx.Locktime
	return msgTx, nil
}

// merkleLeafHash parses a display-form (big-endian hex) txid into the
// little-endian chainhash.Hash representation used as a Merkle tree leaf.
func merkleLeafHash(txid string) (chainhash.Hash, error) {
	h, err := chainhash.NewHashFromStr(txid)
	if err != nil {
		return chainhash.Hash{}, err
	}
	return *h, nil
}
