// Package codec implements the engine's byte-exact wire format: fixed-width
// little-endian integers, Bitcoin's CompactSize variable-length integers, and
// the double-SHA-256 identifiers used throughout the entity model.
package codec

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrNotShortest is returned by DecodeCompactSize when the encoding read from
// the wire is not the shortest legal form for its value.
var ErrNotShortest = errors.New("codec: compact-size encoding is not the shortest legal form")

// IntLE encodes n into exactly width little-endian bytes. width must be one
// of 1, 2, 4, 8; any other value panics since it indicates a caller bug, not
// a data error.
func IntLE(n uint64, width int) []byte {
	b := make([]byte, width)
	switch width {
	case 1:
		b[0] = byte(n)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(n))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(n))
	case 8:
		binary.LittleEndian.PutUint64(b, n)
	default:
		panic(fmt.Sprintf("codec: unsupported int width %d", width))
	}
	return b
}

// DecodeIntLE decodes width little-endian bytes from b starting at offset
// and returns the value; width must be 1, 2, 4 or 8.
func DecodeIntLE(b []byte, offset, width int) (uint64, error) {
	if offset < 0 || offset+width > len(b) {
		return 0, fmt.Errorf("codec: int_le read of width %d out of range at offset %d (len %d)", width, offset, len(b))
	}
	switch width {
	case 1:
		return uint64(b[offset]), nil
	case 2:
		return uint64(binary.LittleEndian.Uint16(b[offset:])), nil
	case 4:
		return uint64(binary.LittleEndian.Uint32(b[offset:])), nil
	case 8:
		return binary.LittleEndian.Uint64(b[offset:]), nil
	default:
		return 0, fmt.Errorf("codec: unsupported int width %d", width)
	}
}

// CompactSize encodes n as a Bitcoin CompactSize: 1 byte for n < 0xFD, a 0xFD
// prefix plus 2 bytes for n <= 0xFFFF, a 0xFE prefix plus 4 bytes for
// n <= 0xFFFFFFFF, and a 0xFF prefix plus 8 bytes otherwise.
func CompactSize(n uint64) []byte {
	switch {
	case n < 0xfd:
		return []byte{byte(n)}
	case n <= 0xffff:
		return append([]byte{0xfd}, IntLE(n, 2)...)
	case n <= 0xffffffff:
		return append([]byte{0xfe}, IntLE(n, 4)...)
	default:
		return append([]byte{0xff}, IntLE(n, 8)...)
	}
}

// DecodeCompactSize decodes a CompactSize value starting at offset in b,
// returning the value and the total number of bytes consumed (including the
// prefix byte). It rejects any encoding that is not the shortest legal form
// for the decoded value.
func DecodeCompactSize(b []byte, offset int) (uint64, int, error) {
	if offset < 0 || offset >= len(b) {
		return 0, 0, fmt.Errorf("codec: compact-size read out of range at offset %d", offset)
	}
	prefix := b[offset]
	switch prefix {
	case 0xfd:
		v, err := DecodeIntLE(b, offset+1, 2)
		if err != nil {
			return 0, 0, err
		}
		if v < 0xfd {
			return 0, 0, ErrNotShortest
		}
		return v, 3, nil
	case 0xfe:
		v, err := DecodeIntLE(b, offset+1, 4)
		if err != nil {
			return 0, 0, err
		}
		if v <= 0xffff {
			return 0, 0, ErrNotShortest
		}
		return v, 5, nil
	case 0xff:
		v, err := DecodeIntLE(b, offset+1, 8)
		if err != nil {
			return 0, 0, err
		}
		if v <= 0xffffffff {
			return 0, 0, ErrNotShortest
		}
		return v, 9, nil
	default:
		return uint64(prefix), 1, nil
	}
}

// DSHA256 applies SHA-256 twice: the same double hash that txids and block
// hashes are built from, which pkg/chain computes through btcd's wire types
// rather than through this function.
func DSHA256(data []byte) []byte {
	first := sha256.Sum256(data)
	second := sha256.Sum256(first[:])
	return second[:]
}

// ReverseBytes returns a new slice with b's bytes in reverse order, used when
// converting between the little-endian wire form of a hash and its
// big-endian display/storage form.
func ReverseBytes(b []byte) []byte {
	out := make([]byte, len(b))
	for i := range b {
		out[i] = b[len(b)-1-i]
	}
	return out
}

// DSHA256Display computes DSHA256 and returns it byte-reversed, matching the
// convention used when a hash is displayed or stored (big-endian hex)
// instead of serialized onto the wire (little-endian).
func DSHA256Display(data []byte) []byte {
	return ReverseBytes(DSHA256(data))
}

// HexToBytes decodes a hex string, rejecting odd-length input explicitly
// rather than leaving it to hex.DecodeString's less specific error.
func HexToBytes(s string) ([]byte, error) {
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("codec: odd-length hex string (%d chars)", len(s))
	}
	return hex.DecodeString(s)
}

// MustHex32 validates that s decodes to exactly 32 bytes and returns them.
// Used for the engine's many 32-byte identifier fields.
func MustHex32(s string) ([]byte, error) {
	b, err := HexToBytes(s)
	if err != nil {
		return nil, err
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("codec: expected 32-byte hash, got %d bytes", len(b))
	}
	return b, nil
}

// BytesToHex is the inverse of HexToBytes.
func BytesToHex(b []byte) string {
	return hex.EncodeToString(b)
}
