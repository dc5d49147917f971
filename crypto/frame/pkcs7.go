package frame

import (
	"fmt"
	"time"

	"github.com/fbugreporter/server/internal/cmac"
)

const cmacSize = cmac.Size

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("pkcs7: invalid padded length %d", len(data))
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, fmt.Errorf("pkcs7: invalid padding length %d", padLen)
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("pkcs7: invalid padding bytes")
		}
	}
	return data[:len(data)-padLen], nil
}

func msToDuration(ms uint64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
