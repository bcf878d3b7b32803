// Package daemon wires the gateway together and runs it until the context
// ends or a remote restart is requested.
package daemon

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"filegate/internal/config"
	"filegate/internal/db"
	"filegate/internal/httpapi"
	"filegate/internal/jailfs"
	"filegate/internal/metrics"
	"filegate/internal/session"
	"filegate/internal/setup"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"
)

// ErrRestart is returned by Run after a requested restart has drained the
// server. The caller is expected to re-launch the process.
var ErrRestart = errors.New("restart requested")

const shutdownTimeout = 10 * time.Second

type Options struct {
	Config config.Config
	Logger *slog.Logger
	// Listener, when set, is used instead of listening on Config.Addr().
	Listener net.Listener
	// Ready, when set, is called with the bound address once the server
	// accepts connections.
	Ready func(addr net.Addr)
}

func Run(ctx context.Context, opt Options) error {
	cfg := opt.Config
	lg := opt.Logger
	if lg == nil {
		lg = slog.Default()
	}

	if err := os.MkdirAll(cfg.RootDir, 0o755); err != nil {
		return fmt.Errorf("create root dir: %w", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	d, err := db.Open(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer d.Close()
	_ = os.Chmod(cfg.DBPath, 0o600)

	if _, err := setup.EnsureDefaultAdmin(ctx, d, lg); err != nil {
		return err
	}

	sessions, err := session.New(session.Options{
		Persist: d,
		TTL:     time.Duration(cfg.SessionTimeout) * time.Second,
		Logger:  lg.With("component", "sessions"),
	})
	if err != nil {
		return err
	}
	registerSessionGauge(sessions, lg)

	rs := newRestarter()
	api, err := httpapi.New(httpapi.Options{
		Config:    cfg,
		DB:        d,
		FS:        jailfs.New(cfg.RootDir),
		Sessions:  sessions,
		Restarter: rs,
		Logger:    lg,
	})
	if err != nil {
		return err
	}
	defer api.Close()

	ln, err := listen(cfg, opt.Listener)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		ErrorLog:          slog.NewLogLogger(lg.Handler(), slog.LevelWarn),
	}

	lg.Info("filegate listening",
		"addr", ln.Addr().String(),
		"tls", cfg.EnableTLS,
		"root_dir", cfg.RootDir,
		"max_connections", cfg.MaxConnections,
		"webdav", cfg.EnableWebDAV,
	)
	if opt.Ready != nil {
		opt.Ready(ln.Addr())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return sessions.Run(gctx, time.Duration(cfg.SessionSweepInterval)*time.Second)
	})

	g.Go(func() error {
		restarting := false
		select {
		case <-gctx.Done():
		case <-rs.requested():
			restarting = true
			lg.Info("restarting")
		}
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			lg.Warn("shutdown", "err", err)
		}
		if restarting {
			return ErrRestart
		}
		return nil
	})

	return g.Wait()
}

func listen(cfg config.Config, ln net.Listener) (net.Listener, error) {
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", cfg.Addr())
		if err != nil {
			return nil, err
		}
	}
	ln = netutil.LimitListener(ln, cfg.MaxConnections)
	if !cfg.EnableTLS {
		return ln, nil
	}
	certPath, keyPath := setup.TLSPaths(cfg.TLSCertPath, cfg.TLSKeyPath, cfg.DataDir)
	pair, err := setup.EnsureTLSCert(certPath, keyPath)
	if err != nil {
		_ = ln.Close()
		return nil, fmt.Errorf("load tls certificate: %w", err)
	}
	return tls.NewListener(ln, &tls.Config{
		Certificates: []tls.Certificate{pair},
		MinVersion:   tls.VersionTLS12,
	}), nil
}

func registerSessionGauge(s *session.Store, lg *slog.Logger) {
	err := prometheus.Register(metrics.ActiveSessions(s.Count))
	var are prometheus.AlreadyRegisteredError
	if err != nil && !errors.As(err, &are) {
		lg.Warn("register session gauge", "err", err)
	}
}
