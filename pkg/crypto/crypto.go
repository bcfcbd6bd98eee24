// Package crypto implements the engine's cryptography primitives: secp256k1
// ECDSA verification with the historical low-S cutoff, DER signature parsing,
// and the hash functions used by the Script VM and entity model.
package crypto

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"golang.org/x/crypto/ripemd160"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// LowSCutoff is the historical boundary (2014-03-12 00:00:00 UTC) after which
// a high-S signature is rejected outright rather than normalized.
var LowSCutoff = time.Date(2014, time.March, 12, 0, 0, 0, 0, time.UTC)

// curveOrderHex is secp256k1's group order n.
const curveOrderHex = "FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFEBAAEDCE6AF48A03BBFD25E8CD0364141"

var curveOrder = mustBigFromHex(curveOrderHex)
var halfCurveOrder = new(big.Int).Rsh(curveOrder, 1)

func mustBigFromHex(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		panic("crypto: invalid curve order constant")
	}
	return n
}

// ValidSighashTypes is the closed set of trailing sighash selector bytes
// accepted on a DER signature: ALL, NONE, SINGLE, each optionally OR-ed with
// ANYONECANPAY (0x80).
var ValidSighashTypes = map[byte]bool{
	0x01: true, 0x02: true, 0x03: true,
	0x81: true, 0x82: true, 0x83: true,
}

// derSignature is a parsed, not-yet-range-checked DER ECDSA signature.
type derSignature struct {
	r, s *big.Int
}

// parseDER performs strict structural validation of
// 0x30 len 0x02 r_len r 0x02 s_len s, with no tolerance for unnecessary
// leading zero bytes or negative integers (top bit set without a leading
// 0x00 pad byte).
func parseDER(sig []byte) (*derSignature, error) {
	if len(sig) < 9 {
		return nil, fmt.Errorf("crypto: DER signature too short (%d bytes)", len(sig))
	}
	if sig[0] != 0x30 {
		return nil, fmt.Errorf("crypto: DER signature missing SEQUENCE tag")
	}
	seqLen := int(sig[1])
	// sig[2:] must be exactly seqLen bytes, followed by nothing (the
	// trailing sighash byte is stripped by the caller before this point).
	if seqLen != len(sig)-2 {
		return nil, fmt.Errorf("crypto: DER sequence length %d inconsistent with buffer %d", seqLen, len(sig)-2)
	}
	off := 2
	r, n, err := parseDERInteger(sig, off)
	if err != nil {
		return nil, fmt.Errorf("crypto: DER r: %w", err)
	}
	off += n
	s, n, err := parseDERInteger(sig, off)
	if err != nil {
		return nil, fmt.Errorf("crypto: DER s: %w", err)
	}
	off += n
	if off != len(sig) {
		return nil, fmt.Errorf("crypto: DER signature has %d trailing bytes", len(sig)-off)
	}
	return &derSignature{r: r, s: s}, nil
}

// parseDERInteger parses one 0x02 len value tag starting at offset and
// returns the integer, the number of bytes consumed, and an error if the
// encoding is not strictly canonical (no unnecessary leading zero, top bit
// clear on the first significant byte).
func parseDERInteger(b []byte, offset int) (*big.Int, int, error) {
	if offset+2 > len(b) {
		return nil, 0, fmt.Errorf("out of range at offset %d", offset)
	}
	if b[offset] != 0x02 {
		return nil, 0, fmt.Errorf("missing INTEGER tag at offset %d", offset)
	}
	length := int(b[offset+1])
	start := offset + 2
	end := start + length
	if length == 0 || end > len(b) {
		return nil, 0, fmt.Errorf("invalid integer length %d at offset %d", length, offset)
	}
	value := b[start:end]
	if value[0]&0x80 != 0 {
		return nil, 0, fmt.Errorf("negative integer (top bit set without padding)")
	}
	if length > 1 && value[0] == 0x00 && value[1]&0x80 == 0 {
		return nil, 0, fmt.Errorf("unnecessary leading zero byte")
	}
	return new(big.Int).SetBytes(value), 2 + length, nil
}

// VerifyECDSA checks a DER-plus-sighash-selector signature against a
// compressed or uncompressed secp256k1 public key. message32 must already
// be the 32-byte sighash digest (pkg/chain's SighashPreimage returns the
// double SHA-256 of the pre-image); no further hashing happens here.
func VerifyECDSA(pubkeyHex, sigHex string, message32 []byte, timestamp time.Time) (bool, error) {
	// Step 1: bounds on the full sig_hex (DER blob plus 1-byte sighash selector).
	if len(sigHex) < 18 || len(sigHex) > 146 {
		return false, fmt.Errorf("crypto: signature hex length %d out of bounds [18,146]", len(sigHex))
	}
	sigBytes, err := hex.DecodeString(sigHex)
	if err != nil {
		return false, fmt.Errorf("crypto: signature is not valid hex: %w", err)
	}
	if len(sigBytes) < 1 {
		return false, fmt.Errorf("crypto: empty signature")
	}

	// Step 2: trailing sighash selector byte.
	sighashByte := sigBytes[len(sigBytes)-1]
	if !ValidSighashTypes[sighashByte] {
		return false, fmt.Errorf("crypto: invalid sighash type byte 0x%02x", sighashByte)
	}
	derBytes := sigBytes[:len(sigBytes)-1]

	// Step 3: pubkey shape.
	pubkeyBytes, err := hex.DecodeString(pubkeyHex)
	if err != nil {
		return false, fmt.Errorf("crypto: pubkey is not valid hex: %w", err)
	}
	switch {
	case len(pubkeyBytes) == 33 && (pubkeyBytes[0] == 0x02 || pubkeyBytes[0] == 0x03):
	case len(pubkeyBytes) == 65 && pubkeyBytes[0] == 0x04:
	default:
		return false, fmt.Errorf("crypto: pubkey has invalid length/prefix")
	}

	// Step 4: message shape.
	if len(message32) != 32 {
		return false, fmt.Errorf("crypto: message must be exactly 32 bytes, got %d", len(message32))
	}

	// Step 5: DER structure.
	parsed, err := parseDER(derBytes)
	if err != nil {
		return false, err
	}

	// Step 6: r, s range.
	zero := big.NewInt(0)
	if parsed.r.Cmp(zero) <= 0 || parsed.r.Cmp(curveOrder) >= 0 {
		return false, fmt.Errorf("crypto: r out of range [1, n)")
	}
	if parsed.s.Cmp(zero) <= 0 || parsed.s.Cmp(curveOrder) >= 0 {
		return false, fmt.Errorf("crypto: s out of range [1, n)")
	}

	// Step 7: low-S discipline.
	s := parsed.s
	if s.Cmp(halfCurveOrder) > 0 {
		if !timestamp.Before(LowSCutoff) {
			return false, fmt.Errorf("crypto: high-S signature rejected at or after low-S cutoff")
		}
		s = new(big.Int).Sub(curveOrder, s)
	}

	// Step 8: verify using the pre-hashed 32-byte message.
	pubKey, err := secp256k1.ParsePubKey(pubkeyBytes)
	if err != nil {
		return false, fmt.Errorf("crypto: invalid public key: %w", err)
	}
	var rScalar, sScalar secp256k1.ModNScalar
	rScalar.SetByteSlice(padTo32(parsed.r.Bytes()))
	sScalar.SetByteSlice(padTo32(s.Bytes()))
	signature := ecdsa.NewSignature(&rScalar, &sScalar)
	return signature.Verify(message32, pubKey), nil
}

func padTo32(b []byte) []byte {
	if len(b) >= 32 {
		return b[len(b)-32:]
	}
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out
}

// RIPEMD160 returns the RIPEMD-160 digest of data.
func RIPEMD160(data []byte) []byte {
	h := ripemd160.New()
	h.Write(data)
	return h.Sum(nil)
}

// SHA1 returns the SHA-1 digest of data.
func SHA1(data []byte) []byte {
	sum := sha1.Sum(data)
	return sum[:]
}

// SHA256 returns the single SHA-256 digest of data.
func SHA256(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// Hash160 is RIPEMD160(SHA256(data)), the digest used in P2PKH/P2WPKH/P2SH
// script templates.
func Hash160(data []byte) []byte {
	return RIPEMD160(SHA256(data))
}

// Hash256 is SHA256(SHA256(data)), the same operation as the codec
// package's DSHA256, exposed here too for OP_HASH256 and callers that only
// import the crypto primitives.
func Hash256(data []byte) []byte {
	first := sha256.Sum256(data)
	second := sha256.Sum256(first[:])
	return second[:]
}
