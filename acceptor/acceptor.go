// Package acceptor implements the C7 connection acceptor: two TCP
// listeners (reporter, operator), nodelay sockets, a pre-accept ban check
// on the operator listener, and one goroutine per accepted connection.
// Grounded on the teacher's cmd/flowersec-tunnel/main.go listener setup and
// tunnel/server/server.go's Config/connection-count shape, generalized to
// a raw-TCP accept loop since this protocol has no HTTP/WebSocket upgrade.
package acceptor

import (
	"context"
	"log"
	"net"
	"strconv"
	"sync/atomic"

	"github.com/fbugreporter/server/banmanager"
	"github.com/fbugreporter/server/crypto/dh"
	"github.com/fbugreporter/server/observability"
	"github.com/fbugreporter/server/operatorsession"
	"github.com/fbugreporter/server/reportersession"
)

// Config is the acceptor's runtime configuration.
type Config struct {
	ReporterBindAddress string
	ReporterPort        uint16
	OperatorBindAddress string
	OperatorPort        uint16
}

// Acceptor owns the two listeners and dispatches accepted connections to
// the reporter/operator session handlers.
type Acceptor struct {
	cfg        Config
	reporter   *reportersession.Handler
	operator   *operatorsession.Handler
	banManager *banmanager.Manager
	observer   observability.Observer
	logger     *log.Logger

	reporterConns int64
	operatorConns int64

	// Ready, if set, is called once both listeners are bound and before
	// the accept loops start, so the caller can print a readiness line.
	Ready func(reporterAddr, operatorAddr net.Addr)
}

// New constructs an Acceptor. banManager is required: the operator
// listener always performs a pre-accept ban check (§4.7).
func New(cfg Config, reporter *reportersession.Handler, operator *operatorsession.Handler, banManager *banmanager.Manager, observer observability.Observer, logger *log.Logger) *Acceptor {
	if observer == nil {
		observer = observability.Noop
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Acceptor{
		cfg:        cfg,
		reporter:   reporter,
		operator:   operator,
		banManager: banManager,
		observer:   observer,
		logger:     logger,
	}
}

// Run binds both listeners and blocks, serving connections until ctx is
// canceled. It returns the first error encountered binding a listener, or
// nil on a clean shutdown.
func (a *Acceptor) Run(ctx context.Context) error {
	reporterLn, err := net.Listen("tcp", net.JoinHostPort(a.cfg.ReporterBindAddress, portString(a.cfg.ReporterPort)))
	if err != nil {
		return err
	}
	defer reporterLn.Close()

	operatorLn, err := net.Listen("tcp", net.JoinHostPort(a.cfg.OperatorBindAddress, portString(a.cfg.OperatorPort)))
	if err != nil {
		return err
	}
	defer operatorLn.Close()

	a.logger.Printf("reporter listener bound to %s", reporterLn.Addr())
	a.logger.Printf("operator listener bound to %s", operatorLn.Addr())
	if a.Ready != nil {
		a.Ready(reporterLn.Addr(), operatorLn.Addr())
	}

	go func() {
		<-ctx.Done()
		_ = reporterLn.Close()
		_ = operatorLn.Close()
	}()

	done := make(chan struct{}, 2)
	go func() { a.acceptLoop(ctx, reporterLn, a.serveReporter); done <- struct{}{} }()
	go func() { a.acceptLoop(ctx, operatorLn, a.serveOperator); done <- struct{}{} }()
	<-done
	<-done
	return nil
}

func (a *Acceptor) acceptLoop(ctx context.Context, ln net.Listener, serve func(net.Conn)) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			a.logger.Printf("accept failed on %s: %v", ln.Addr(), err)
			return
		}
		if tcpConn, ok := conn.(*net.TCPConn); ok {
			_ = tcpConn.SetNoDelay(true)
		}
		go serve(conn)
	}
}

func (a *Acceptor) serveReporter(conn net.Conn) {
	defer conn.Close()
	peer := conn.RemoteAddr().String()

	n := atomic.AddInt64(&a.reporterConns, 1)
	a.observer.ReporterConnCount(n)
	defer func() {
		n := atomic.AddInt64(&a.reporterConns, -1)
		a.observer.ReporterConnCount(n)
	}()

	key, err := dh.RunInitiator(conn)
	if err != nil {
		a.logger.Printf("reporter %s: handshake failed: %v", peer, err)
		a.observer.HandshakeFailed()
		return
	}

	a.reporter.Serve(conn, key, peer)
	a.observer.ConnectionClosed(observability.CloseReasonClean)
}

func (a *Acceptor) serveOperator(conn net.Conn) {
	host, _, _ := net.SplitHostPort(conn.RemoteAddr().String())
	peerIP := net.ParseIP(host)
	peer := conn.RemoteAddr().String()

	a.banManager.Sweep()
	if peerIP != nil && a.banManager.IsBanned(peerIP) {
		_ = conn.Close()
		a.observer.ConnectionClosed(observability.CloseReasonBanned)
		return
	}

	defer conn.Close()

	n := atomic.AddInt64(&a.operatorConns, 1)
	a.observer.OperatorConnCount(n)
	defer func() {
		n := atomic.AddInt64(&a.operatorConns, -1)
		a.observer.OperatorConnCount(n)
	}()

	key, err := dh.RunInitiator(conn)
	if err != nil {
		a.logger.Printf("operator %s: handshake failed: %v", peer, err)
		a.observer.HandshakeFailed()
		return
	}

	a.operator.Serve(conn, key, peerIP, peer)
	a.observer.ConnectionClosed(observability.CloseReasonClean)
}

func portString(port uint16) string {
	return strconv.Itoa(int(port))
}
