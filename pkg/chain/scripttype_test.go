package chain

import (
	"encoding/hex"
	"testing"
)

func TestClassifyScriptPubkey(t *testing.T) {
	twentyBytes := "0011223344556677889900112233445566778899"
	thirtyTwoBytes := twentyBytes + "001122334455667788990011"
	compressedPubkey := "02" + thirtyTwoBytes
	uncompressedPubkey := "04" + thirtyTwoBytes + thirtyTwoBytes

	cases := []struct {
		name string
		hex  string
		want string
	}{
		{"p2pkh", "76a914" + twentyBytes + "88ac", ScriptP2PKH},
		{"p2sh", "a914" + twentyBytes + "87", ScriptP2SH},
		{"p2wpkh", "0014" + twentyBytes, ScriptP2WPKH},
		{"p2wsh", "0020" + thirtyTwoBytes, ScriptP2WSH},
		{"p2tr", "5120" + thirtyTwoBytes, ScriptP2TR},
		{"p2pk compressed", "21" + compressedPubkey + "ac", ScriptP2PK},
		{"p2pk uncompressed", "41" + uncompressedPubkey + "ac", ScriptP2PK},
		{"op_return", "6a04deadbeef", ScriptOpReturn},
		{"p2ms 1-of-2", "51" + "21" + compressedPubkey + "21" + compressedPubkey + "52ae", ScriptP2MS},
		{"custom", "5101ff", ScriptCustom},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw, err := hex.DecodeString(tc.hex)
			if err != nil {
				t.Fatalf("bad fixture hex: %v", err)
			}
			got := ClassifyScriptPubkey(raw)
			if got != tc.want {
				t.Errorf("got %s want %s", got, tc.want)
			}
		})
	}
}
