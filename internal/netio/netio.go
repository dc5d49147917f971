// Package netio implements bounded, exact-length reads and writes over a
// net.Conn, the byte-I/O primitive every other layer (handshake, frame
// codec) is built on.
package netio

import (
	"errors"
	"io"
	"net"
	"time"

	"github.com/fbugreporter/server/internal/svcerr"
)

const (
	// WouldBlockRetryAfter is how long a deadline-exceeded read/write is
	// retried before re-checking the overall budget.
	WouldBlockRetryAfter = 20 * time.Millisecond
	// MaxWaitTime is the hard ceiling on cumulative waiting for a single
	// read_exact/write_all call.
	MaxWaitTime = 120 * time.Second
)

// ErrRemoteClosed is returned when the peer closed the connection (read
// returned 0 bytes while more were expected).
var ErrRemoteClosed = errors.New("netio: remote closed connection")

// ReadExact reads exactly len(buf) bytes, retrying on deadline-driven
// would-block conditions until MaxWaitTime has elapsed cumulatively.
func ReadExact(conn net.Conn, buf []byte) error {
	_, err := readExact(conn, buf, MaxWaitTime, false)
	return err
}

// ReadExactTimeout reads exactly len(buf) bytes, but returns ok=false
// (not an error) if no bytes at all arrive before budget elapses.
func ReadExactTimeout(conn net.Conn, buf []byte, budget time.Duration) (ok bool, err error) {
	return readExact(conn, buf, budget, true)
}

func readExact(conn net.Conn, buf []byte, budget time.Duration, timeoutIsOK bool) (bool, error) {
	total := 0
	waited := time.Duration(0)
	for total < len(buf) {
		deadline := WouldBlockRetryAfter
		if remaining := budget - waited; remaining < deadline {
			deadline = remaining
		}
		if deadline <= 0 {
			if timeoutIsOK && total == 0 {
				return false, nil
			}
			return false, svcerr.Wrap(svcerr.StageIO, svcerr.CodeTimeout, nil)
		}

		if err := conn.SetReadDeadline(time.Now().Add(deadline)); err != nil {
			return false, svcerr.Wrap(svcerr.StageIO, svcerr.CodeExecFailed, err)
		}
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				waited += deadline
				continue
			}
			if errors.Is(err, io.EOF) && total == 0 {
				return false, ErrRemoteClosed
			}
			return false, svcerr.Wrap(svcerr.StageIO, svcerr.CodeRemoteClosed, err)
		}
		if n == 0 {
			return false, ErrRemoteClosed
		}
	}
	_ = conn.SetReadDeadline(time.Time{})
	return true, nil
}

// WriteAll writes exactly len(buf) bytes, retrying on deadline-driven
// would-block conditions until MaxWaitTime has elapsed cumulatively.
func WriteAll(conn net.Conn, buf []byte) error {
	total := 0
	waited := time.Duration(0)
	for total < len(buf) {
		deadline := WouldBlockRetryAfter
		if remaining := MaxWaitTime - waited; remaining < deadline {
			deadline = remaining
		}
		if deadline <= 0 {
			return svcerr.Wrap(svcerr.StageIO, svcerr.CodeTimeout, nil)
		}

		if err := conn.SetWriteDeadline(time.Now().Add(deadline)); err != nil {
			return svcerr.Wrap(svcerr.StageIO, svcerr.CodeExecFailed, err)
		}
		n, err := conn.Write(buf[total:])
		total += n
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				waited += deadline
				continue
			}
			return svcerr.Wrap(svcerr.StageIO, svcerr.CodeShortWrite, err)
		}
	}
	_ = conn.SetWriteDeadline(time.Time{})
	return nil
}
