// Package engine implements the chain and mempool engines: block
// acceptance, administrative tip deletion, and unconfirmed-transaction
// admission, each resolving referenced UTXOs and evaluating their locking
// scripts against pkg/store before issuing any write.
package engine

import (
	"time"

	"go.uber.org/zap"

	"chain-lens/pkg/store"
)

// Engine holds the process-wide configuration and store handle the chain
// and mempool operations share: the configured difficulty floor and
// coinbase subsidy, and the structured logger that records administrative
// block deletions (accept/reject decisions are not logged here).
type Engine struct {
	store       *store.Store
	bitsFloor   string
	subsidySats uint64
	log         *zap.Logger
}

// New constructs an Engine. bitsFloor is the lowercase 8-hex-char
// BLOCKCHAIN_BITS configuration value; subsidySats is BLOCKCHAIN_SUBSIDY.
func New(s *store.Store, bitsFloor string, subsidySats uint64, log *zap.Logger) *Engine {
	return &Engine{store: s, bitsFloor: bitsFloor, subsidySats: subsidySats, log: log}
}

// now is overridable in tests that need deterministic mempool admission
// timestamps; production code always uses time.Now.
var now = time.Now
