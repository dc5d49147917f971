// Package cmac implements AES-CMAC (NIST SP 800-38B) over AES-256, the
// message authentication primitive used by the frame codec. No example
// repo in the corpus implements CMAC, and no third-party CMAC package's
// exact import path and API surface could be verified without running
// the Go toolchain, so it is hand-rolled here directly against the NIST
// specification rather than risk depending on an unverified package name.
package cmac

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
)

// Size is the length in bytes of a CMAC tag.
const Size = 16

const rb = 0x87

// Sum computes the AES-CMAC of msg under key (must be 32 bytes for AES-256).
func Sum(key, msg []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	k1, k2 := subkeys(block)

	var mLast [Size]byte
	complete := len(msg) > 0 && len(msg)%Size == 0
	n := len(msg) / Size
	if !complete {
		n++
	}
	if n == 0 {
		n = 1
	}

	if complete {
		lastBlock := msg[len(msg)-Size:]
		xorInto(mLast[:], lastBlock, k1)
	} else {
		padded := padBlock(msg[(n-1)*Size:])
		xorInto(mLast[:], padded[:], k2)
	}

	x := make([]byte, Size)
	for i := 0; i < n-1; i++ {
		blk := msg[i*Size : (i+1)*Size]
		xored := make([]byte, Size)
		xorBytes(xored, x, blk)
		block.Encrypt(x, xored)
	}

	xored := make([]byte, Size)
	xorBytes(xored, x, mLast[:])
	tag := make([]byte, Size)
	block.Encrypt(tag, xored)
	return tag, nil
}

// Verify reports whether tag is the correct AES-CMAC of msg under key, in
// constant time.
func Verify(key, msg, tag []byte) (bool, error) {
	if len(tag) != Size {
		return false, nil
	}
	want, err := Sum(key, msg)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(want, tag) == 1, nil
}

func subkeys(block cipher.Block) (k1, k2 [Size]byte) {
	var zero, l [Size]byte
	block.Encrypt(l[:], zero[:])

	k1 = dbl(l)
	k2 = dbl(k1)
	return k1, k2
}

func dbl(in [Size]byte) [Size]byte {
	var out [Size]byte
	msb := in[0] & 0x80
	carry := byte(0)
	for i := Size - 1; i >= 0; i-- {
		out[i] = (in[i] << 1) | carry
		carry = (in[i] >> 7) & 1
	}
	if msb != 0 {
		out[Size-1] ^= rb
	}
	return out
}

func padBlock(block []byte) [Size]byte {
	var out [Size]byte
	copy(out[:], block)
	out[len(block)] = 0x80
	return out
}

func xorInto(dst, src []byte, key [Size]byte) {
	for i := range dst {
		var s byte
		if i < len(src) {
			s = src[i]
		}
		dst[i] = s ^ key[i]
	}
}

func xorBytes(dst, a, b []byte) {
	for i := range dst {
		dst[i] = a[i] ^ b[i]
	}
}
