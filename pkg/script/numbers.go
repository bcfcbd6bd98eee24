package script

import "fmt"

// maxNumBytes bounds arithmetic operands to 4 bytes, the script-number
// limit in this profile.
const maxNumBytes = 4

// CastToBool implements Bitcoin Script's boolean convention: false iff the
// byte-string is empty or consists of all-zero bytes save for a last byte
// equal to 0x80 (signed/negative zero); everything else is true.
func CastToBool(b []byte) bool {
	for i, v := range b {
		if v != 0 {
			if i == len(b)-1 && v == 0x80 {
				return false
			}
			return true
		}
	}
	return false
}

// scriptNumToBytes encodes n as a minimal-length little-endian signed
// integer with the sign carried in the top bit of the last byte, Bitcoin
// Script's "CScriptNum" representation.
func scriptNumToBytes(n int64) []byte {
	if n == 0 {
		return nil
	}
	neg := n < 0
	abs := n
	if neg {
		abs = -n
	}
	var out []byte
	for abs > 0 {
		out = append(out, byte(abs&0xff))
		abs >>= 8
	}
	if out[len(out)-1]&0x80 != 0 {
		if neg {
			out = append(out, 0x80)
		} else {
			out = append(out, 0x00)
		}
	} else if neg {
		out[len(out)-1] |= 0x80
	}
	return out
}

// scriptNumFromBytes decodes a script number, rejecting operands longer than
// the 4-byte profile bound.
func scriptNumFromBytes(b []byte) (int64, error) {
	if len(b) == 0 {
		return 0, nil
	}
	if len(b) > maxNumBytes {
		return 0, fmt.Errorf("script: numeric operand exceeds %d-byte bound (%d bytes)", maxNumBytes, len(b))
	}
	var result int64
	for i, v := range b {
		result |= int64(v) << uint(8*i)
	}
	// Sign bit is the top bit of the last byte.
	if b[len(b)-1]&0x80 != 0 {
		result &^= int64(0x80) << uint(8*(len(b)-1))
		result = -result
	}
	return result, nil
}
