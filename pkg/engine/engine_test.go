package engine

import (
	"context"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"chain-lens/pkg/chain"
	"chain-lens/pkg/engineerr"
	"chain-lens/pkg/store"
)

const (
	fixtureLooseBits = "ff000001"
	fixtureSubsidy   = uint64(5000000000)

	genesisCoinbaseTxid = "4a49d5d16cff2bc9b79629928a289db6191640360ece452830344e172203c5bd"
	genesisHash         = "659bcaefa01714a30fdf65c3802f35b718ed65a341419f05745ce35df9ae382f"

	block1CoinbaseTxid = "0f8fde5ebb5533cc71ca062c10e81c16610130279fee93158051102b76193fc2"
	spendTxid          = "179076f85bd59318a997aacc97f0923f12c2ce8a908f7566e4f8d86adf6dfd1b"
	block1Merkle       = "80f8fcb35bb61ee801676bd12308779a6533653d1a1840afd0bc10b2c393b813"
	block1Hash         = "feae220de39baadfc593457bc8ef94c7b7d5688b4e10dfd64cb62a41b9822ea6"

	mempoolTxid = "7c21e68efc083f06baa30b56f592667014b20d91fd877679f791344e029ffa0e"

	bogusMissingUTXOTxid = "757b0dbd6af4b3580cab58a5abd92e76f1f205d0d586e210145f1390a9b04c0b"
	bogusBlockMerkle     = "37aba6983524b4e115a8acea6c5a4e12d8de2b0c2e6308abc15ad16621b046f2"
	bogusBlockHash       = "242498e4cc0ff85ad9b168650e997396434602ce5bbe2d86c0601e6e07488274"
)

func strp(s string) *string { return &s }

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine-test.db")
	s, err := store.Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return New(s, fixtureLooseBits, fixtureSubsidy, zap.NewNop())
}

func genesisCoinbase() chain.TransactionInput {
	return chain.TransactionInput{
		Txid:     genesisCoinbaseTxid,
		Version:  1,
		Locktime: 0,
		Vin: []chain.TxInInput{
			{UTXOTxid: chain.ZeroHash32, UTXOVout: chain.CoinbaseVoutSentinel, Sequence: 0xFFFFFFFF, ScriptSigHex: strp("")},
		},
		Outputs: []chain.TxOutInput{
			{Value: fixtureSubsidy, ScriptPubkeyHex: strp("51")},
		},
	}
}

func genesisBlockInput() chain.BlockInput {
	return chain.BlockInput{
		Hash:         genesisHash,
		PreviousHash: chain.ZeroHash32,
		MerkleRoot:   genesisCoinbaseTxid,
		Version:      1,
		Timestamp:    1700000000,
		Nonce:        0,
		Bits:         fixtureLooseBits,
		Transactions: []chain.TransactionInput{genesisCoinbase()},
	}
}

func block1CoinbaseInput() chain.TransactionInput {
	return chain.TransactionInput{
		Txid:     block1CoinbaseTxid,
		Version:  1,
		Locktime: 1,
		Vin: []chain.TxInInput{
			{UTXOTxid: chain.ZeroHash32, UTXOVout: chain.CoinbaseVoutSentinel, Sequence: 0xFFFFFFFF, ScriptSigHex: strp("")},
		},
		Outputs: []chain.TxOutInput{
			{Value: fixtureSubsidy, ScriptPubkeyHex: strp("51")},
		},
	}
}

// spendInput spends genesis coinbase output 0 into a single output carrying
// value - fee (5000000000 available, 10000 held back as fee when block1
// spends 4999990000), and uses an
// empty scriptSig against the OP_1 scriptPubkey it resolves to, which the
// Script VM accepts without any signature.
func spendInput(txid string, outValue uint64) chain.TransactionInput {
	return chain.TransactionInput{
		Txid:     txid,
		Version:  1,
		Locktime: 0,
		Vin: []chain.TxInInput{
			{UTXOTxid: genesisCoinbaseTxid, UTXOVout: 0, Sequence: 0xFFFFFFFF, ScriptSigHex: strp("")},
		},
		Outputs: []chain.TxOutInput{
			{Value: outValue, ScriptPubkeyHex: strp("51")},
		},
	}
}

func block1Input() chain.BlockInput {
	return chain.BlockInput{
		Hash:         block1Hash,
		PreviousHash: genesisHash,
		MerkleRoot:   block1Merkle,
		Version:      1,
		Timestamp:    1700000100,
		Nonce:        0,
		Bits:         fixtureLooseBits,
		Transactions: []chain.TransactionInput{
			block1CoinbaseInput(),
			spendInput(spendTxid, 4999990000),
		},
	}
}

func TestCreateBlockAcceptsGenesis(t *testing.T) {
	e := newTestEngine(t)
	block, err := e.CreateBlock(context.Background(), genesisBlockInput())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if block.Height != 0 {
		t.Errorf("genesis height = %d, want 0", block.Height)
	}

	current, err := e.GetCurrentBlock()
	if err != nil {
		t.Fatalf("get current block: %v", err)
	}
	if current.Hash != genesisHash {
		t.Errorf("current tip hash = %s, want %s", current.Hash, genesisHash)
	}
}

func TestCreateBlockRejectsWrongBits(t *testing.T) {
	e := newTestEngine(t)
	// Changing the block's own bits would also change its recomputed hash
	// and fail construction first, so the block keeps its bits and the
	// engine is configured with a different floor instead.
	e2 := New(e.store, "1d00ffff", fixtureSubsidy, e.log)
	if _, err := e2.CreateBlock(context.Background(), genesisBlockInput()); err == nil {
		t.Fatalf("expected bits-mismatch error")
	} else if engineerr.KindOf(err) != engineerr.KindConsensus {
		t.Errorf("kind = %s, want consensus", engineerr.KindOf(err))
	}
}

func TestCreateBlockRejectsNonGenesisFirstBlock(t *testing.T) {
	e := newTestEngine(t)
	// block1 is a well-formed block whose previous_hash names genesis, which
	// this empty chain does not have.
	_, err := e.CreateBlock(context.Background(), block1Input())
	if err == nil {
		t.Fatalf("expected error: non-genesis previous_hash on empty chain")
	}
	if engineerr.KindOf(err) != engineerr.KindConsensus {
		t.Errorf("kind = %s, want consensus", engineerr.KindOf(err))
	}
}

func TestCreateBlockRejectsWrongSubsidy(t *testing.T) {
	e := newTestEngine(t)
	in := genesisBlockInput()
	// Recomputed txid won't match after mutating the value, so this must
	// fail at txid-mismatch, exercising the shape path rather than
	// consensus; the subsidy check only runs once a transaction is valid
	// in isolation. Use a fresh subsidy-mismatched engine configuration
	// instead, which is simpler: the accepted block's value no longer
	// matches e.subsidySats.
	e2 := New(e.store, fixtureLooseBits, fixtureSubsidy+1, e.log)
	_, err := e2.CreateBlock(context.Background(), in)
	if err == nil {
		t.Fatalf("expected subsidy-mismatch error")
	}
	if engineerr.KindOf(err) != engineerr.KindConsensus {
		t.Errorf("kind = %s, want consensus", engineerr.KindOf(err))
	}
}

func TestCreateBlockLinksSecondBlockAndSpendsUTXO(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.CreateBlock(context.Background(), genesisBlockInput()); err != nil {
		t.Fatalf("genesis: %v", err)
	}
	block, err := e.CreateBlock(context.Background(), block1Input())
	if err != nil {
		t.Fatalf("block1: %v", err)
	}
	if block.Height != 1 {
		t.Errorf("block1 height = %d, want 1", block.Height)
	}

	tx, err := e.FindTransaction(spendTxid)
	if err != nil {
		t.Fatalf("find spend tx: %v", err)
	}
	if tx.Vin[0].UTXOValue != fixtureSubsidy {
		t.Errorf("resolved utxo_value = %d, want %d", tx.Vin[0].UTXOValue, fixtureSubsidy)
	}
}

func TestAdmitToMempoolRejectsUTXOSpentInBlock(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.CreateBlock(context.Background(), genesisBlockInput()); err != nil {
		t.Fatalf("genesis: %v", err)
	}
	if _, err := e.CreateBlock(context.Background(), block1Input()); err != nil {
		t.Fatalf("block1: %v", err)
	}

	// A mempool submission spending genesis:0 again (already consumed by
	// spendTxid in block1) must be rejected as a double-spend.
	again := chain.TransactionInput{
		Txid:     spendTxid, // reusing the same txid is fine: it's a distinct submission attempt
		Version:  1,
		Locktime: 0,
		Vin: []chain.TxInInput{
			{UTXOTxid: genesisCoinbaseTxid, UTXOVout: 0, Sequence: 0xFFFFFFFF, ScriptSigHex: strp("")},
		},
		Outputs: []chain.TxOutInput{
			{Value: 4999990000, ScriptPubkeyHex: strp("51")},
		},
	}
	_, err := e.AdmitToMempool(context.Background(), again)
	if err == nil {
		t.Fatalf("expected double-spend rejection")
	}
	if engineerr.KindOf(err) != engineerr.KindUTXO {
		t.Errorf("kind = %s, want utxo", engineerr.KindOf(err))
	}
}

func TestCreateBlockRejectsMissingUTXO(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.CreateBlock(context.Background(), genesisBlockInput()); err != nil {
		t.Fatalf("genesis: %v", err)
	}

	// Spends vout 7 of the genesis coinbase, which was never created (the
	// coinbase has exactly one output, at vout 0).
	bogusSpend := chain.TransactionInput{
		Txid:     bogusMissingUTXOTxid,
		Version:  1,
		Locktime: 0,
		Vin: []chain.TxInInput{
			{UTXOTxid: genesisCoinbaseTxid, UTXOVout: 7, Sequence: 0xFFFFFFFF, ScriptSigHex: strp("")},
		},
		Outputs: []chain.TxOutInput{
			{Value: 4999990000, ScriptPubkeyHex: strp("51")},
		},
	}
	in := chain.BlockInput{
		Hash:         bogusBlockHash,
		PreviousHash: genesisHash,
		MerkleRoot:   bogusBlockMerkle,
		Version:      1,
		Timestamp:    1700000200,
		Nonce:        0,
		Bits:         fixtureLooseBits,
		Transactions: []chain.TransactionInput{block1CoinbaseInput(), bogusSpend},
	}
	_, err := e.CreateBlock(context.Background(), in)
	if err == nil {
		t.Fatalf("expected missing-utxo error")
	}
	if engineerr.KindOf(err) != engineerr.KindUTXO {
		t.Errorf("kind = %s, want utxo", engineerr.KindOf(err))
	}
}

func TestDeleteBlockRemovesTipAndRestoresSentinel(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.CreateBlock(context.Background(), genesisBlockInput()); err != nil {
		t.Fatalf("genesis: %v", err)
	}
	if _, err := e.CreateBlock(context.Background(), block1Input()); err != nil {
		t.Fatalf("block1: %v", err)
	}

	if err := e.DeleteBlock(block1Hash); err != nil {
		t.Fatalf("delete block1: %v", err)
	}

	current, err := e.GetCurrentBlock()
	if err != nil {
		t.Fatalf("get current block after delete: %v", err)
	}
	if current.Hash != genesisHash {
		t.Errorf("current tip after delete = %s, want genesis %s", current.Hash, genesisHash)
	}
}

func TestDeleteBlockRejectsNonTip(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.CreateBlock(context.Background(), genesisBlockInput()); err != nil {
		t.Fatalf("genesis: %v", err)
	}
	if _, err := e.CreateBlock(context.Background(), block1Input()); err != nil {
		t.Fatalf("block1: %v", err)
	}
	if err := e.DeleteBlock(genesisHash); err == nil {
		t.Fatalf("expected error deleting a non-tip block")
	}
}

func TestDeleteBlockRejectsWhenChainEmpty(t *testing.T) {
	e := newTestEngine(t)
	if err := e.DeleteBlock(genesisHash); err == nil {
		t.Fatalf("expected error deleting from an empty chain")
	} else if engineerr.KindOf(err) != engineerr.KindConsensus {
		t.Errorf("kind = %s, want consensus", engineerr.KindOf(err))
	}
}

// mempoolTxInput spends spend_txid:0 (value 4999990000, created by block1)
// into a single 4999980000-value output with a 10000 fee, balancing exactly.
func mempoolTxInput(fee uint64) chain.TransactionInput {
	return chain.TransactionInput{
		Txid:     mempoolTxid,
		Version:  1,
		Locktime: 0,
		Fee:      &fee,
		Vin: []chain.TxInInput{
			{UTXOTxid: spendTxid, UTXOVout: 0, Sequence: 0xFFFFFFFF, ScriptSigHex: strp("")},
		},
		Outputs: []chain.TxOutInput{
			{Value: 4999980000, ScriptPubkeyHex: strp("51")},
		},
	}
}

func TestAdmitToMempoolAcceptsBalancedSpend(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.CreateBlock(context.Background(), genesisBlockInput()); err != nil {
		t.Fatalf("genesis: %v", err)
	}
	if _, err := e.CreateBlock(context.Background(), block1Input()); err != nil {
		t.Fatalf("block1: %v", err)
	}

	tx, err := e.AdmitToMempool(context.Background(), mempoolTxInput(10000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tx.BlockHash != chain.ZeroHash32 || tx.BlockHeight != chain.MempoolBlockHeight {
		t.Errorf("expected mempool sentinel tagging, got %s/%d", tx.BlockHash, tx.BlockHeight)
	}

	list, err := e.ListMempool()
	if err != nil {
		t.Fatalf("list mempool: %v", err)
	}
	if len(list) != 1 || list[0].Txid != mempoolTxid {
		t.Errorf("expected one mempool entry for %s, got %+v", mempoolTxid, list)
	}
}

func TestAdmitToMempoolRejectsCoinbase(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.AdmitToMempool(context.Background(), genesisCoinbase()); err == nil {
		t.Fatalf("expected rejection of coinbase submission to mempool")
	} else if engineerr.KindOf(err) != engineerr.KindConsensus {
		t.Errorf("kind = %s, want consensus", engineerr.KindOf(err))
	}
}

func TestAdmitToMempoolRejectsValueImbalance(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.CreateBlock(context.Background(), genesisBlockInput()); err != nil {
		t.Fatalf("genesis: %v", err)
	}
	if _, err := e.CreateBlock(context.Background(), block1Input()); err != nil {
		t.Fatalf("block1: %v", err)
	}

	// Fee is not part of the wire serialization, so a mismatched fee alone
	// does not change the recomputed txid; it only breaks value balance.
	_, err := e.AdmitToMempool(context.Background(), mempoolTxInput(999999999999))
	if err == nil {
		t.Fatalf("expected value-imbalance rejection")
	}
	if engineerr.KindOf(err) != engineerr.KindUTXO {
		t.Errorf("kind = %s, want utxo", engineerr.KindOf(err))
	}
}

func TestAdmitToMempoolRejectsMissingUTXO(t *testing.T) {
	e := newTestEngine(t)
	// spendTxid's own fixture vin/output pair recomputes correctly, but on
	// an empty chain the utxo it references was never created.
	in := spendInput(spendTxid, 4999990000)
	if _, err := e.AdmitToMempool(context.Background(), in); err == nil {
		t.Fatalf("expected missing-utxo rejection on an empty chain")
	} else if engineerr.KindOf(err) != engineerr.KindUTXO {
		t.Errorf("kind = %s, want utxo", engineerr.KindOf(err))
	}
}

func TestFindTransactionMissingReturnsShapeNotNotFound(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.FindTransaction(chain.ZeroHash32)
	if err == nil {
		t.Fatalf("expected error for missing transaction")
	}
	if engineerr.KindOf(err) != engineerr.KindShape {
		t.Errorf("kind = %s, want shape (preserved quirk: missing transaction is 400, not 404)", engineerr.KindOf(err))
	}
}

func TestGetCurrentBlockNotFoundOnEmptyChain(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.GetCurrentBlock()
	if err == nil {
		t.Fatalf("expected not-found error on empty chain")
	}
	if engineerr.KindOf(err) != engineerr.KindNotFound {
		t.Errorf("kind = %s, want not_found", engineerr.KindOf(err))
	}
}

func TestListMempoolEmptyByDefault(t *testing.T) {
	e := newTestEngine(t)
	list, err := e.ListMempool()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("expected empty mempool, got %d entries", len(list))
	}
}

func TestCreateBlockCancelledContext(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.CreateBlock(context.Background(), genesisBlockInput()); err != nil {
		t.Fatalf("genesis: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.CreateBlock(ctx, block1Input())
	if err == nil {
		t.Fatalf("expected cancellation error")
	}
	if engineerr.KindOf(err) != engineerr.KindInternal {
		t.Errorf("kind = %s, want internal", engineerr.KindOf(err))
	}

	// Cancellation must not leave partial writes: block1 still absent.
	current, err := e.GetCurrentBlock()
	if err != nil {
		t.Fatalf("get current block: %v", err)
	}
	if current.Hash != genesisHash {
		t.Errorf("tip = %s, want genesis %s after cancelled acceptance", current.Hash, genesisHash)
	}
}
