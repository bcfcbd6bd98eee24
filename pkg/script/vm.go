// Package script implements the Script virtual machine: a two-stack
// interpreter over raw opcode bytes, covering the engine's opcode profile
// and its sighash-message/OP_CHECKSIG convention.
package script

import (
	"encoding/hex"
	"fmt"
	"time"

	"chain-lens/pkg/crypto"
)

// SighashMessageFunc builds the 32-byte pre-hashed sighash message for the
// input under validation, given the sighash selector byte taken from the
// trailing byte of the popped DER signature. The engine supplies one of
// these per input (see pkg/chain's sighash-message builder).
type SighashMessageFunc func(sighashType byte) ([]byte, error)

// Evaluate runs scriptSig followed by scriptPubKey on a fresh VM and reports
// whether the script succeeds: after both scripts run, the stack holds
// exactly one item and it casts to true. Any stack underflow, invalid
// opcode, DER failure under OP_CHECKSIGVERIFY, or reaching OP_RETURN aborts
// with a non-nil error; under OP_CHECKSIG a signature that fails to parse
// or verify pushes an empty (false) item instead.
func Evaluate(scriptSig, scriptPubKey []byte, sighash SighashMessageFunc, timestamp time.Time) (bool, error) {
	vm := &machine{sighash: sighash, timestamp: timestamp}
	if err := vm.run(scriptSig); err != nil {
		return false, fmt.Errorf("script: scriptSig: %w", err)
	}
	if err := vm.run(scriptPubKey); err != nil {
		return false, fmt.Errorf("script: scriptPubKey: %w", err)
	}
	if len(vm.stack) != 1 {
		return false, fmt.Errorf("script: final stack has %d items, want 1", len(vm.stack))
	}
	return CastToBool(vm.stack[0]), nil
}

type machine struct {
	stack     [][]byte
	alt       [][]byte
	sighash   SighashMessageFunc
	timestamp time.Time
}

func (m *machine) push(b []byte) { m.stack = append(m.stack, b) }

func (m *machine) pop() ([]byte, error) {
	if len(m.stack) == 0 {
		return nil, fmt.Errorf("stack underflow")
	}
	top := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	return top, nil
}

func (m *machine) peek(depthFromTop int) ([]byte, error) {
	idx := len(m.stack) - 1 - depthFromTop
	if idx < 0 {
		return nil, fmt.Errorf("stack underflow")
	}
	return m.stack[idx], nil
}

func (m *machine) run(script []byte) error {
	i := 0
	for i < len(script) {
		op := script[i]
		i++

		switch {
		case op == OP_0:
			m.push(nil)
			continue
		case op >= 0x01 && op <= 0x4b:
			n := int(op)
			if i+n > len(script) {
				return fmt.Errorf("push of %d bytes overruns script", n)
			}
			m.push(append([]byte{}, script[i:i+n]...))
			i += n
			continue
		case op == OP_PUSHDATA1:
			if i+1 > len(script) {
				return fmt.Errorf("OP_PUSHDATA1 missing length byte")
			}
			n := int(script[i])
			i++
			if i+n > len(script) {
				return fmt.Errorf("OP_PUSHDATA1 overruns script")
			}
			m.push(append([]byte{}, script[i:i+n]...))
			i += n
			continue
		case op == OP_PUSHDATA2:
			if i+2 > len(script) {
				return fmt.Errorf("OP_PUSHDATA2 missing length bytes")
			}
			n := int(script[i]) | int(script[i+1])<<8
			i += 2
			if i+n > len(script) {
				return fmt.Errorf("OP_PUSHDATA2 overruns script")
			}
			m.push(append([]byte{}, script[i:i+n]...))
			i += n
			continue
		case op == OP_PUSHDATA4:
			if i+4 > len(script) {
				return fmt.Errorf("OP_PUSHDATA4 missing length bytes")
			}
			n := int(script[i]) | int(script[i+1])<<8 | int(script[i+2])<<16 | int(script[i+3])<<24
			i += 4
			if i+n > len(script) {
				return fmt.Errorf("OP_PUSHDATA4 overruns script")
			}
			m.push(append([]byte{}, script[i:i+n]...))
			i += n
			continue
		case op == OP_1NEGATE:
			m.push(scriptNumToBytes(-1))
			continue
		case op >= OP_1 && op <= OP_16:
			m.push(scriptNumToBytes(int64(op - OP_1 + 1)))
			continue
		}

		if err := m.execOp(op); err != nil {
			return err
		}
	}
	return nil
}

func (m *machine) execOp(op Opcode) error {
	switch {
	case IsPlainNOP(op):
		return nil
	case op == OP_VERIFY:
		top, err := m.pop()
		if err != nil {
			return err
		}
		if !CastToBool(top) {
			return fmt.Errorf("OP_VERIFY failed")
		}
		return nil
	case op == OP_RETURN:
		return fmt.Errorf("OP_RETURN reached")
	case op == OP_TOALTSTACK:
		top, err := m.pop()
		if err != nil {
			return err
		}
		m.alt = append(m.alt, top)
		return nil
	case op == OP_FROMALTSTACK:
		if len(m.alt) == 0 {
			return fmt.Errorf("alt-stack underflow")
		}
		top := m.alt[len(m.alt)-1]
		m.alt = m.alt[:len(m.alt)-1]
		m.push(top)
		return nil
	case op == OP_2DROP:
		if _, err := m.pop(); err != nil {
			return err
		}
		if _, err := m.pop(); err != nil {
			return err
		}
		return nil
	case op == OP_2DUP:
		a, err := m.peek(1)
		if err != nil {
			return err
		}
		b, err := m.peek(0)
		if err != nil {
			return err
		}
		m.push(append([]byte{}, a...))
		m.push(append([]byte{}, b...))
		return nil
	case op == OP_3DUP:
		a, err := m.peek(2)
		if err != nil {
			return err
		}
		b, err := m.peek(1)
		if err != nil {
			return err
		}
		c, err := m.peek(0)
		if err != nil {
			return err
		}
		m.push(append([]byte{}, a...))
		m.push(append([]byte{}, b...))
		m.push(append([]byte{}, c...))
		return nil
	case op == OP_DROP:
		_, err := m.pop()
		return err
	case op == OP_DUP:
		top, err := m.peek(0)
		if err != nil {
			return err
		}
		m.push(append([]byte{}, top...))
		return nil
	case op == OP_OVER:
		item, err := m.peek(1)
		if err != nil {
			return err
		}
		m.push(append([]byte{}, item...))
		return nil
	case op == OP_ROT:
		if len(m.stack) < 3 {
			return fmt.Errorf("stack underflow")
		}
		n := len(m.stack)
		m.stack[n-3], m.stack[n-2], m.stack[n-1] = m.stack[n-2], m.stack[n-1], m.stack[n-3]
		return nil
	case op == OP_SWAP:
		if len(m.stack) < 2 {
			return fmt.Errorf("stack underflow")
		}
		n := len(m.stack)
		m.stack[n-2], m.stack[n-1] = m.stack[n-1], m.stack[n-2]
		return nil
	case op == OP_SIZE:
		top, err := m.peek(0)
		if err != nil {
			return err
		}
		m.push(scriptNumToBytes(int64(len(top))))
		return nil
	case op == OP_EQUAL:
		a, err := m.pop()
		if err != nil {
			return err
		}
		b, err := m.pop()
		if err != nil {
			return err
		}
		m.push(boolBytes(bytesEqual(a, b)))
		return nil
	case op == OP_EQUALVERIFY:
		a, err := m.pop()
		if err != nil {
			return err
		}
		b, err := m.pop()
		if err != nil {
			return err
		}
		if !bytesEqual(a, b) {
			return fmt.Errorf("OP_EQUALVERIFY failed")
		}
		return nil
	case op == OP_1ADD, op == OP_1SUB, op == OP_NEGATE, op == OP_ABS, op == OP_NOT, op == OP_0NOTEQUAL:
		return m.execUnaryNumeric(op)
	case op == OP_ADD, op == OP_SUB, op == OP_BOOLAND, op == OP_BOOLOR,
		op == OP_NUMEQUAL, op == OP_NUMEQUALVERIFY, op == OP_LESSTHAN,
		op == OP_GREATERTHAN, op == OP_MIN, op == OP_MAX:
		return m.execBinaryNumeric(op)
	case op == OP_RIPEMD160:
		top, err := m.pop()
		if err != nil {
			return err
		}
		m.push(crypto.RIPEMD160(top))
		return nil
	case op == OP_SHA1:
		top, err := m.pop()
		if err != nil {
			return err
		}
		m.push(crypto.SHA1(top))
		return nil
	case op == OP_SHA256:
		top, err := m.pop()
		if err != nil {
			return err
		}
		m.push(crypto.SHA256(top))
		return nil
	case op == OP_HASH160:
		top, err := m.pop()
		if err != nil {
			return err
		}
		m.push(crypto.Hash160(top))
		return nil
	case op == OP_HASH256:
		top, err := m.pop()
		if err != nil {
			return err
		}
		m.push(crypto.Hash256(top))
		return nil
	case op == OP_CHECKSIG, op == OP_CHECKSIGVERIFY:
		return m.execCheckSig(op == OP_CHECKSIGVERIFY)
	default:
		return fmt.Errorf("unsupported opcode 0x%02x (%s)", op, OpcodeName(op))
	}
}

func (m *machine) execCheckSig(verify bool) error {
	pubkey, err := m.pop()
	if err != nil {
		return err
	}
	sig, err := m.pop()
	if err != nil {
		return err
	}
	if len(sig) == 0 {
		if verify {
			return fmt.Errorf("OP_CHECKSIGVERIFY: empty signature")
		}
		m.push(nil)
		return nil
	}
	sighashType := sig[len(sig)-1]
	message, err := m.sighash(sighashType)
	if err != nil {
		if verify {
			return fmt.Errorf("OP_CHECKSIGVERIFY: %w", err)
		}
		m.push(nil)
		return nil
	}
	ok, err := crypto.VerifyECDSA(hex.EncodeToString(pubkey), hex.EncodeToString(sig), message, m.timestamp)
	if err != nil || !ok {
		if verify {
			if err != nil {
				return fmt.Errorf("OP_CHECKSIGVERIFY: %w", err)
			}
			return fmt.Errorf("OP_CHECKSIGVERIFY: signature invalid")
		}
		m.push(nil)
		return nil
	}
	if verify {
		return nil
	}
	m.push(scriptNumToBytes(1))
	return nil
}

func (m *machine) execUnaryNumeric(op Opcode) error {
	top, err := m.pop()
	if err != nil {
		return err
	}
	n, err := scriptNumFromBytes(top)
	if err != nil {
		return err
	}
	switch op {
	case OP_1ADD:
		m.push(scriptNumToBytes(n + 1))
	case OP_1SUB:
		m.push(scriptNumToBytes(n - 1))
	case OP_NEGATE:
		m.push(scriptNumToBytes(-n))
	case OP_ABS:
		if n < 0 {
			n = -n
		}
		m.push(scriptNumToBytes(n))
	case OP_NOT:
		m.push(boolBytes(n == 0))
	case OP_0NOTEQUAL:
		m.push(boolBytes(n != 0))
	}
	return nil
}

func (m *machine) execBinaryNumeric(op Opcode) error {
	bRaw, err := m.pop()
	if err != nil {
		return err
	}
	aRaw, err := m.pop()
	if err != nil {
		return err
	}
	a, err := scriptNumFromBytes(aRaw)
	if err != nil {
		return err
	}
	b, err := scriptNumFromBytes(bRaw)
	if err != nil {
		return err
	}
	switch op {
	case OP_ADD:
		m.push(scriptNumToBytes(a + b))
	case OP_SUB:
		m.push(scriptNumToBytes(a - b))
	case OP_BOOLAND:
		m.push(boolBytes(a != 0 && b != 0))
	case OP_BOOLOR:
		m.push(boolBytes(a != 0 || b != 0))
	case OP_NUMEQUAL:
		m.push(boolBytes(a == b))
	case OP_NUMEQUALVERIFY:
		if a != b {
			return fmt.Errorf("OP_NUMEQUALVERIFY failed")
		}
	case OP_LESSTHAN:
		m.push(boolBytes(a < b))
	case OP_GREATERTHAN:
		m.push(boolBytes(a > b))
	case OP_MIN:
		if a < b {
			m.push(scriptNumToBytes(a))
		} else {
			m.push(scriptNumToBytes(b))
		}
	case OP_MAX:
		if a > b {
			m.push(scriptNumToBytes(a))
		} else {
			m.push(scriptNumToBytes(b))
		}
	}
	return nil
}

func boolBytes(b bool) []byte {
	if b {
		return scriptNumToBytes(1)
	}
	return nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
