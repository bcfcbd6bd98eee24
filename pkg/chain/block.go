package chain

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"chain-lens/pkg/codec"
)

// Block is the engine's block entity: a header plus a non-empty ordered
// transaction list, whose hash/merkle_root are recomputed and checked
// against the supplied values at construction time.
type Block struct {
	Hash         string `json:"hash"`
	PreviousHash string `json:"previous_hash"`
	MerkleRoot   string `json:"merkle_root"`
	Height       uint16 `json:"height"`
	Version      uint32 `json:"version"`
	Timestamp    uint32 `json:"timestamp"`
	Nonce        uint32 `json:"nonce"`
	Bits         string `json:"bits"`

	Transactions []*Transaction `json:"transactions"`
}

// BlockInput is the caller-supplied shape of a submitted block. Height is
// assigned by the chain engine, not supplied by the caller.
type BlockInput struct {
	Hash         string `json:"hash"`
	PreviousHash string `json:"previous_hash"`
	MerkleRoot   string `json:"merkle_root"`
	Version      uint32 `json:"version"`
	Timestamp    uint32 `json:"timestamp"`
	Nonce        uint32 `json:"nonce"`
	Bits         string `json:"bits"`

	Transactions []TransactionInput `json:"transactions"`
}

// NewBlock validates and constructs a Block from caller input: hex shape of
// the 32-byte fields, a non-empty transaction list whose first element is
// coinbase, recomputed hash/merkle_root matching the supplied values, and
// the proof-of-work check int(hash) <= target(bits).
func NewBlock(in BlockInput) (*Block, error) {
	if _, err := codec.MustHex32(in.Hash); err != nil {
		return nil, fmt.Errorf("chain: block hash: %w", err)
	}
	if _, err := codec.MustHex32(in.PreviousHash); err != nil {
		return nil, fmt.Errorf("chain: block previous_hash: %w", err)
	}
	if _, err := codec.MustHex32(in.MerkleRoot); err != nil {
		return nil, fmt.Errorf("chain: block merkle_root: %w", err)
	}
	if len(in.Bits) != 8 {
		return nil, fmt.Errorf("chain: block bits must be 8 hex chars, got %d", len(in.Bits))
	}
	if _, err := codec.HexToBytes(in.Bits); err != nil {
		return nil, fmt.Errorf("chain: block bits: %w", err)
	}
	if len(in.Transactions) < 1 {
		return nil, fmt.Errorf("chain: block must contain at least one transaction")
	}

	transactions := make([]*Transaction, len(in.Transactions))
	for i, txInput := range in.Transactions {
		tx, err := NewTransaction(txInput)
		if err != nil {
			return nil, fmt.Errorf("chain: transactions[%d]: %w", i, err)
		}
		transactions[i] = tx
	}
	if !transactions[0].IsCoinbase() {
		return nil, fmt.Errorf("chain: block's first transaction must be coinbase")
	}
	for i, tx := range transactions[1:] {
		if tx.IsCoinbase() {
			return nil, fmt.Errorf("chain: transactions[%d]: only position 0 may be coinbase", i+1)
		}
	}

	block := &Block{
		Hash:         in.Hash,
		PreviousHash: in.PreviousHash,
		MerkleRoot:   in.MerkleRoot,
		Version:      in.Version,
		Timestamp:    in.Timestamp,
		Nonce:        in.Nonce,
		Bits:         in.Bits,
		Transactions: transactions,
	}

	recomputedHash, err := block.headerHash()
	if err != nil {
		return nil, fmt.Errorf("chain: block header hash: %w", err)
	}
	if recomputedHash != block.Hash {
		return nil, fmt.Errorf("chain: block hash mismatch: supplied %s, recomputed %s", block.Hash, recomputedHash)
	}

	txids := make([]string, len(transactions))
	for i, tx := range transactions {
		txids[i] = tx.Txid
	}
	recomputedMerkle, err := MerkleRoot(txids)
	if err != nil {
		return nil, fmt.Errorf("chain: merkle root: %w", err)
	}
	if recomputedMerkle != block.MerkleRoot {
		return nil, fmt.Errorf("chain: merkle_root mismatch: supplied %s, recomputed %s", block.MerkleRoot, recomputedMerkle)
	}

	target, err := Target(block.Bits)
	if err != nil {
		return nil, fmt.Errorf("chain: target: %w", err)
	}
	hashInt := new(big.Int).SetBytes(mustHexBytes(block.Hash))
	if hashInt.Cmp(target) > 0 {
		return nil, fmt.Errorf("chain: block hash %s exceeds target for bits %s", block.Hash, block.Bits)
	}

	return block, nil
}

func mustHexBytes(s string) []byte {
	b, _ := codec.HexToBytes(s)
	return b
}

// MerkleRoot computes the Merkle root over an ordered list of txid strings
// (64-hex, display/big-endian form): each leaf is parsed
// into its little-endian chainhash form, pairs are concatenated and
// dSHA256'd via chainhash.DoubleHashH, duplicating the last element of an
// odd-length level, and the final root is displayed back in big-endian form.
func MerkleRoot(txids []string) (string, error) {
	if len(txids) == 0 {
		return "", fmt.Errorf("chain: merkle root of empty txid list")
	}
	level := make([]chainhash.Hash, len(txids))
	for i, txid := range txids {
		h, err := merkleLeafHash(txid)
		if err != nil {
			return "", fmt.Errorf("chain: merkle txid[%d]: %w", i, err)
		}
		level[i] = h
	}
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([]chainhash.Hash, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			combined := append(append([]byte{}, level[i][:]...), level[i+1][:]...)
			next = append(next, chainhash.DoubleHashH(combined))
		}
		level = next
	}
	return level[0].String(), nil
}

// Target decodes a compact-size difficulty target: bits is exponent(1 byte)
// ∥ mantissa(3 bytes) read big-endian from the 8-hex-char string, and
// target = mantissa * 256^(exponent-3).
func Target(bits string) (*big.Int, error) {
	b, err := codec.HexToBytes(bits)
	if err != nil || len(b) != 4 {
		return nil, fmt.Errorf("chain: bits must decode to 4 bytes")
	}
	exponent := int(b[0])
	mantissa := new(big.Int).SetBytes(b[1:4])
	if exponent <= 3 {
		shift := uint((3 - exponent) * 8)
		return new(big.Int).Rsh(mantissa, shift), nil
	}
	shift := uint((exponent - 3) * 8)
	return new(big.Int).Lsh(mantissa, shift), nil
}

// BitsUint32 decodes the bits field's big-endian display form into the
// uint32 value used when comparing against a configured floor.
func BitsUint32(bits string) (uint32, error) {
	b, err := codec.HexToBytes(bits)
	if err != nil || len(b) != 4 {
		return 0, fmt.Errorf("chain: bits must decode to 4 bytes")
	}
	return binary.BigEndian.Uint32(b), nil
}
