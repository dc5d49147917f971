package dh_test

import (
	"bytes"
	"net"
	"testing"

	"github.com/fbugreporter/server/crypto/dh"
)

func TestHandshakeSymmetry(t *testing.T) {
	initiatorConn, acceptorConn := net.Pipe()
	defer initiatorConn.Close()
	defer acceptorConn.Close()

	initKey := make(chan []byte, 1)
	initErr := make(chan error, 1)
	go func() {
		k, err := dh.RunInitiator(initiatorConn)
		initKey <- k
		initErr <- err
	}()

	acceptKey, err := dh.RunAcceptor(acceptorConn)
	if err != nil {
		t.Fatalf("RunAcceptor: %v", err)
	}
	if err := <-initErr; err != nil {
		t.Fatalf("RunInitiator: %v", err)
	}
	k := <-initKey

	if len(k) != dh.SessionKeySize || len(acceptKey) != dh.SessionKeySize {
		t.Fatalf("unexpected key lengths: %d, %d", len(k), len(acceptKey))
	}
	if !bytes.Equal(k, acceptKey) {
		t.Fatalf("session keys differ: initiator=%x acceptor=%x", k, acceptKey)
	}
}
