// Package chain implements the engine's entity model: Block, Transaction,
// TxIn and TxOut construction with invariant validation, Merkle root
// computation, and the byte-exact raw serialization (built on btcd's wire
// types) from which txids, block hashes and the sighash message that
// pkg/script's OP_CHECKSIG verifies are computed.
package chain

// ZeroHash32 is the 64-hex-character all-zero sentinel used as a coinbase's
// referenced txid and as a block's previous_hash when it is the genesis
// block, and as a transaction's block_hash while it sits in the mempool.
const ZeroHash32 = "0000000000000000000000000000000000000000000000000000000000000000"

// CoinbaseVoutSentinel is the utxo_vout value a coinbase TxIn must carry
// alongside ZeroHash32 as its utxo_txid.
const CoinbaseVoutSentinel uint32 = 0xFFFFFFFF

// MempoolBlockHeight is the block_height sentinel assigned to a transaction
// admitted to the mempool, in place of a real confirmed height.
const MempoolBlockHeight uint32 = 0xFFFFFFFF
