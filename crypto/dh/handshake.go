// Package dh implements the unauthenticated finite-field Diffie-Hellman
// handshake run once per connection to derive a 32-byte session key, before
// any frame is exchanged. The wire shape and key derivation are grounded in
// the original messaging.rs implementation this protocol was distilled from:
// length-prefixed big-integer exchange over a fixed RFC 5114 prime/generator,
// then a decimal-string-doubling key derivation.
package dh

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"net"

	"github.com/fbugreporter/server/internal/bin"
	"github.com/fbugreporter/server/internal/netio"
	"github.com/fbugreporter/server/internal/svcerr"
	"github.com/fxamacker/cbor/v2"
)

// RunInitiator executes the initiator role of the handshake: in this system,
// the server on accepting a connection. It sends p, g, and A, then receives
// B and derives the session key.
func RunInitiator(conn net.Conn) ([]byte, error) {
	a, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), ExponentBits))
	if err != nil {
		return nil, svcerr.Wrap(svcerr.StageHandshake, svcerr.CodeRandomFailed, err)
	}

	if err := writeBigInt(conn, P()); err != nil {
		return nil, err
	}
	if err := writeBigInt(conn, G()); err != nil {
		return nil, err
	}

	capA := new(big.Int).Exp(G(), a, P())
	if err := writeBigInt(conn, capA); err != nil {
		return nil, err
	}

	capB, err := readBigInt(conn)
	if err != nil {
		return nil, err
	}

	secret := new(big.Int).Exp(capB, a, P())
	return deriveSessionKey(secret)
}

// RunAcceptor executes the acceptor role of the handshake: in this system,
// the client/reporter on connecting. It receives p, g, and A, sends B, and
// derives the session key.
func RunAcceptor(conn net.Conn) ([]byte, error) {
	p, err := readBigInt(conn)
	if err != nil {
		return nil, err
	}
	g, err := readBigInt(conn)
	if err != nil {
		return nil, err
	}

	b, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), ExponentBits))
	if err != nil {
		return nil, svcerr.Wrap(svcerr.StageHandshake, svcerr.CodeRandomFailed, err)
	}
	capB := new(big.Int).Exp(g, b, p)

	capA, err := readBigInt(conn)
	if err != nil {
		return nil, err
	}
	if err := writeBigInt(conn, capB); err != nil {
		return nil, err
	}

	secret := new(big.Int).Exp(capA, b, p)
	return deriveSessionKey(secret)
}

func deriveSessionKey(secret *big.Int) ([]byte, error) {
	if secret.Sign() == 0 {
		return nil, svcerr.Wrap(svcerr.StageHandshake, svcerr.CodeZeroSecret, nil)
	}
	s := secret.Text(10)
	for len(s) < SessionKeySize {
		s += s
	}
	return []byte(s[:SessionKeySize]), nil
}

func writeBigInt(conn net.Conn, v *big.Int) error {
	payload, err := cbor.Marshal(v.Bytes())
	if err != nil {
		return svcerr.Wrap(svcerr.StageHandshake, svcerr.CodeEncodeFailed, err)
	}
	lenBuf := make([]byte, 8)
	bin.PutU64LE(lenBuf, uint64(len(payload)))
	if err := netio.WriteAll(conn, lenBuf); err != nil {
		return err
	}
	return netio.WriteAll(conn, payload)
}

func readBigInt(conn net.Conn) (*big.Int, error) {
	lenBuf := make([]byte, 8)
	if err := netio.ReadExact(conn, lenBuf); err != nil {
		return nil, err
	}
	n := bin.U64LE(lenBuf)
	const maxHandshakeValue = 4096
	if n > maxHandshakeValue {
		return nil, svcerr.Wrap(svcerr.StageHandshake, svcerr.CodeTooLarge,
			fmt.Errorf("handshake value length %d exceeds %d", n, maxHandshakeValue))
	}
	payload := make([]byte, n)
	if err := netio.ReadExact(conn, payload); err != nil {
		return nil, err
	}
	var raw []byte
	if err := cbor.Unmarshal(payload, &raw); err != nil {
		return nil, svcerr.Wrap(svcerr.StageHandshake, svcerr.CodeDecodeFailed, err)
	}
	return new(big.Int).SetBytes(raw), nil
}
