// Package httpapi exposes the gateway's JSON API.
package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"filegate/internal/activity"
	"filegate/internal/authgate"
	"filegate/internal/config"
	"filegate/internal/db"
	"filegate/internal/jailfs"
	"filegate/internal/metrics"
	"filegate/internal/session"
	"filegate/internal/webdavserver"
)

// Restarter schedules a restart of the running process.
type Restarter interface {
	Restart(delay time.Duration) error
}

type Options struct {
	Config    config.Config
	DB        *db.DB
	FS        *jailfs.FS
	Sessions  *session.Store
	Restarter Restarter
	Logger    *slog.Logger
}

type Server struct {
	cfg       config.Config
	db        *db.DB
	fs        *jailfs.FS
	sessions  *session.Store
	gate      *authgate.Gate
	activity  *activity.Recorder
	restarter Restarter
	webdav    http.Handler
	logger    *slog.Logger

	allow        *ipAllowlist
	loginLimiter *fixedWindowLimiter
}

func New(opts Options) (*Server, error) {
	if opts.DB == nil || opts.FS == nil || opts.Sessions == nil {
		return nil, errors.New("db, fs and sessions are required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	allow, err := newIPAllowlist(opts.Config.AllowedIPs)
	if err != nil {
		return nil, err
	}
	attempts := opts.Config.LoginAttemptsPerMinute
	if attempts <= 0 {
		attempts = 10
	}
	s := &Server{
		cfg:       opts.Config,
		db:        opts.DB,
		fs:        opts.FS,
		sessions:  opts.Sessions,
		gate:      &authgate.Gate{Sessions: opts.Sessions, Users: opts.DB},
		activity:  activity.NewRecorder(opts.DB, opts.Logger),
		restarter: opts.Restarter,
		logger:    opts.Logger,
		allow:     allow,
	}
	if opts.Config.EnableWebDAV {
		dav, err := webdavserver.New(webdavserver.Options{
			FS:          opts.FS,
			Gate:        s.gate,
			Activity:    s.activity,
			Prefix:      opts.Config.WebDAVPrefix,
			MaxFileSize: opts.Config.MaxFileSize,
			Logger:      opts.Logger.With("component", "webdav"),
		})
		if err != nil {
			return nil, err
		}
		s.webdav = dav
	}
	s.loginLimiter = newFixedWindowLimiter(attempts, time.Minute)
	return s, nil
}

// Gate returns the authentication gate shared with other front ends.
func (s *Server) Gate() *authgate.Gate { return s.gate }

// Activity returns the audit recorder shared with other front ends.
func (s *Server) Activity() *activity.Recorder { return s.activity }

// Handler builds the full middleware chain around the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	for _, rt := range s.routes() {
		mux.Handle(rt.method+" "+rt.pattern, s.dispatch(rt))
	}
	if s.cfg.EnableMetrics {
		mux.Handle("GET /metrics", metrics.Handler())
	}
	if s.webdav != nil {
		dav := s.webdav
		mux.Handle(s.cfg.WebDAVPrefix+"/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			infoFrom(r).route = "webdav"
			dav.ServeHTTP(w, r)
		}))
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	})

	var h http.Handler = mux
	h = s.withAllowlist(h)
	h = withCORS(h)
	h = s.withRequestLog(h)
	h = s.withRecover(h)
	return h
}

// Close stops background helpers.
func (s *Server) Close() {
	s.loginLimiter.Stop()
}
