// Command fbugreporter-server runs the reporter and operator listeners.
// Grounded on the teacher's cmd/flowersec-tunnel/main.go shape: flag-driven
// config, stdlib logging to stdout and a file, signal-driven lifecycle
// (SIGINT/SIGTERM for graceful shutdown, SIGHUP to reopen the log file).
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fbugreporter/server/acceptor"
	"github.com/fbugreporter/server/banmanager"
	"github.com/fbugreporter/server/config"
	"github.com/fbugreporter/server/observability"
	"github.com/fbugreporter/server/observability/prom"
	"github.com/fbugreporter/server/operatorsession"
	"github.com/fbugreporter/server/protocol"
	"github.com/fbugreporter/server/reportersession"
	"github.com/fbugreporter/server/store/sqlite"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("fbugreporter-server", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "./config.yaml", "path to the server's YAML configuration file")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	logWriter, err := newReopenableFile(cfg.Storage.LogFilePath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer logWriter.Close()
	logger := log.New(io.MultiWriter(stdout, logWriter), "", log.LstdFlags)

	db, err := sqlite.Open(cfg.Storage.DatabasePath)
	if err != nil {
		logger.Printf("opening database: %v", err)
		return 1
	}
	defer db.Close()

	banManager := banmanager.New(cfg.Ban.MaxAllowedLoginAttempts, cfg.Ban.BanDuration, cfg.Ban.BanListPath, logger)

	observer := observability.NewAtomic()
	var metrics *metricsServer
	if cfg.Metrics.BindAddress != "" {
		metrics, err = startMetrics(cfg.Metrics.BindAddress, observer, logger)
		if err != nil {
			logger.Printf("starting metrics server: %v", err)
			return 1
		}
		defer metrics.Close()
	}

	reporter := &reportersession.Handler{
		Store:                    db,
		Logger:                   logger,
		Observer:                 observer,
		MaxTotalAttachmentSizeMB: cfg.Network.MaxTotalAttachmentSizeMB,
	}
	operator := &operatorsession.Handler{
		Store:       db,
		BanManager:  banManager,
		BanDuration: cfg.Ban.BanDuration,
		Logger:      logger,
		Observer:    observer,
	}

	a := acceptor.New(acceptor.Config{
		ReporterBindAddress: cfg.Network.ReporterBindAddress,
		ReporterPort:        cfg.Network.ReporterPort,
		OperatorBindAddress: cfg.Network.OperatorBindAddress,
		OperatorPort:        cfg.Network.OperatorPort,
	}, reporter, operator, banManager, observer, logger)
	a.Ready = func(reporterAddr, operatorAddr net.Addr) {
		fmt.Fprintf(stdout, "ready: reporters=%s operators=%s protocol=%d\n", reporterAddr, operatorAddr, protocol.Version)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serveErr := make(chan error, 1)
	go func() { serveErr <- a.Run(ctx) }()

	sig := make(chan os.Signal, 2)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sig)

	for {
		select {
		case err := <-serveErr:
			if err != nil {
				logger.Printf("acceptor exited: %v", err)
				return 1
			}
			return 0
		case s := <-sig:
			if s == syscall.SIGHUP {
				if err := logWriter.Reopen(); err != nil {
					logger.Printf("reopening log file: %v", err)
				}
				continue
			}
			logger.Printf("received %s, shutting down", s)
			cancel()
			<-serveErr
			return 0
		}
	}
}

// reopenableFile lets a SIGHUP handler swap the underlying *os.File (e.g.
// after an external log-rotation tool renames it) without replacing the
// *log.Logger that writes through it.
type reopenableFile struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

func newReopenableFile(path string) (*reopenableFile, error) {
	f, err := openAppend(path)
	if err != nil {
		return nil, err
	}
	return &reopenableFile{path: path, f: f}, nil
}

func openAppend(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
}

func (r *reopenableFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.f.Write(p)
}

func (r *reopenableFile) Reopen() error {
	f, err := openAppend(r.path)
	if err != nil {
		return err
	}
	r.mu.Lock()
	old := r.f
	r.f = f
	r.mu.Unlock()
	return old.Close()
}

func (r *reopenableFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.f.Close()
}

type metricsServer struct {
	srv *http.Server
	ln  net.Listener
}

func startMetrics(bindAddress string, observer *observability.Atomic, logger *log.Logger) (*metricsServer, error) {
	reg := prom.NewRegistry()
	observer.Set(prom.New(reg))

	mux := http.NewServeMux()
	mux.Handle("/metrics", prom.Handler(reg))

	ln, err := net.Listen("tcp", bindAddress)
	if err != nil {
		return nil, err
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Printf("metrics server: %v", err)
		}
	}()
	return &metricsServer{srv: srv, ln: ln}, nil
}

func (m *metricsServer) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.srv.Shutdown(ctx)
}
