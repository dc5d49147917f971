// Package frame implements the post-handshake wire codec (§4.3/§6.1): one
// length-prefixed, IV-prefixed, AES-256-CBC-encrypted, AES-CMAC-authenticated,
// CBOR-serialized frame per message. Grounded on the original messaging.rs
// send_message/receive_message, with bincode replaced by CBOR and JSON-style
// big-endian length prefixes (as in the teacher's own rpc/framing.go) flipped
// to the spec-mandated little-endian order.
package frame

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"net"

	"github.com/fbugreporter/server/internal/bin"
	"github.com/fbugreporter/server/internal/cmac"
	"github.com/fbugreporter/server/internal/netio"
	"github.com/fbugreporter/server/internal/svcerr"
	"github.com/fxamacker/cbor/v2"
)

const (
	// IVSize is the length in bytes of the per-frame random IV.
	IVSize = 16
	// LengthPrefixSize is the size of the u32 LE ciphertext-length header.
	LengthPrefixSize = 4
)

// Encode serializes message with CBOR, authenticates it with AES-CMAC under
// key, AES-256-CBC-encrypts payload||tag with a fresh random IV, and returns
// the full wire frame (length prefix included).
func Encode(key []byte, message any) ([]byte, error) {
	payload, err := cbor.Marshal(message)
	if err != nil {
		return nil, svcerr.Wrap(svcerr.StageFrame, svcerr.CodeEncodeFailed, err)
	}

	tag, err := cmac.Sum(key, payload)
	if err != nil {
		return nil, svcerr.Wrap(svcerr.StageFrame, svcerr.CodeEncodeFailed, err)
	}

	plain := append(payload, tag...)
	padded := pkcs7Pad(plain, aes.BlockSize)

	iv := make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, svcerr.Wrap(svcerr.StageFrame, svcerr.CodeRandomFailed, err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, svcerr.Wrap(svcerr.StageFrame, svcerr.CodeEncodeFailed, err)
	}
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	ctLen := IVSize + len(ciphertext)
	out := make([]byte, LengthPrefixSize+ctLen)
	bin.PutU32LE(out[:LengthPrefixSize], uint32(ctLen))
	copy(out[LengthPrefixSize:LengthPrefixSize+IVSize], iv)
	copy(out[LengthPrefixSize+IVSize:], ciphertext)
	return out, nil
}

// Write encodes message and writes the resulting frame to conn.
func Write(conn net.Conn, key []byte, message any) error {
	frame, err := Encode(key, message)
	if err != nil {
		return err
	}
	return netio.WriteAll(conn, frame)
}

// Read reads one frame from conn (size-capped at maxCiphertextLen) and
// decodes it into message, which must be a pointer.
func Read(conn net.Conn, key []byte, maxCiphertextLen uint32, message any) error {
	payload, err := readCiphertext(conn, maxCiphertextLen)
	if err != nil {
		return err
	}
	return decode(key, payload, message)
}

// ReadTimeout is like Read but returns ok=false (no error) if no data
// arrives within budget, matching the reporter/operator read-with-timeout
// semantics of §4.1.
func ReadTimeout(conn net.Conn, key []byte, maxCiphertextLen uint32, budgetMS uint64, message any) (ok bool, err error) {
	lenBuf := make([]byte, LengthPrefixSize)
	got, err := netio.ReadExactTimeout(conn, lenBuf, msToDuration(budgetMS))
	if err != nil {
		return false, err
	}
	if !got {
		return false, nil
	}
	n := bin.U32LE(lenBuf)
	if maxCiphertextLen > 0 && n > maxCiphertextLen {
		return false, svcerr.Wrap(svcerr.StageFrame, svcerr.CodeTooLarge,
			fmt.Errorf("frame length %d exceeds max %d", n, maxCiphertextLen))
	}
	ciphertext := make([]byte, n)
	if err := netio.ReadExact(conn, ciphertext); err != nil {
		return false, err
	}
	if err := decode(key, ciphertext, message); err != nil {
		return false, err
	}
	return true, nil
}

func readCiphertext(conn net.Conn, maxCiphertextLen uint32) ([]byte, error) {
	lenBuf := make([]byte, LengthPrefixSize)
	if err := netio.ReadExact(conn, lenBuf); err != nil {
		return nil, err
	}
	n := bin.U32LE(lenBuf)
	if maxCiphertextLen > 0 && n > maxCiphertextLen {
		return nil, svcerr.Wrap(svcerr.StageFrame, svcerr.CodeTooLarge,
			fmt.Errorf("frame length %d exceeds max %d", n, maxCiphertextLen))
	}
	ciphertext := make([]byte, n)
	if err := netio.ReadExact(conn, ciphertext); err != nil {
		return nil, err
	}
	return ciphertext, nil
}

func decode(key, ciphertext []byte, message any) error {
	if len(ciphertext) < IVSize+aes.BlockSize {
		return svcerr.Wrap(svcerr.StageFrame, svcerr.CodeDecodeFailed, fmt.Errorf("frame too short"))
	}
	iv := ciphertext[:IVSize]
	ct := ciphertext[IVSize:]
	if len(ct)%aes.BlockSize != 0 {
		return svcerr.Wrap(svcerr.StageFrame, svcerr.CodeDecodeFailed, fmt.Errorf("ciphertext not block aligned"))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return svcerr.Wrap(svcerr.StageFrame, svcerr.CodeDecodeFailed, err)
	}
	padded := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ct)

	plain, err := pkcs7Unpad(padded, aes.BlockSize)
	if err != nil {
		return svcerr.Wrap(svcerr.StageFrame, svcerr.CodeDecodeFailed, err)
	}
	if len(plain) < cmacSize {
		return svcerr.Wrap(svcerr.StageFrame, svcerr.CodeDecodeFailed, fmt.Errorf("plaintext too short for tag"))
	}
	payload := plain[:len(plain)-cmacSize]
	tag := plain[len(plain)-cmacSize:]

	ok, err := cmac.Verify(key, payload, tag)
	if err != nil {
		return svcerr.Wrap(svcerr.StageFrame, svcerr.CodeDecodeFailed, err)
	}
	if !ok {
		return svcerr.Wrap(svcerr.StageFrame, svcerr.CodeTagMismatch, nil)
	}

	if err := cbor.Unmarshal(payload, message); err != nil {
		return svcerr.Wrap(svcerr.StageFrame, svcerr.CodeDecodeFailed, err)
	}
	return nil
}
