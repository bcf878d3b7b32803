// Package webdavserver mounts the sandbox root as a WebDAV share.
package webdavserver

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"filegate/internal/activity"
	"filegate/internal/apperr"
	"filegate/internal/authgate"
	"filegate/internal/jailfs"

	"golang.org/x/net/webdav"
)

const realm = `Basic realm="filegate WebDAV"`

type Options struct {
	FS       *jailfs.FS
	Gate     *authgate.Gate
	Activity *activity.Recorder
	// Prefix is the URL path the share is mounted under, without a
	// trailing slash.
	Prefix string
	// MaxFileSize caps PUT bodies; zero means no cap.
	MaxFileSize int64
	Logger      *slog.Logger
}

// Handler authenticates each request with a bearer token or HTTP basic
// credentials and serves the share to the resulting principal.
type Handler struct {
	gate     *authgate.Gate
	activity *activity.Recorder
	maxSize  int64
	logger   *slog.Logger
	dav      *webdav.Handler
}

func New(opts Options) (*Handler, error) {
	if opts.FS == nil || opts.Gate == nil {
		return nil, errors.New("webdav: fs and gate are required")
	}
	lg := opts.Logger
	if lg == nil {
		lg = slog.Default()
	}
	h := &Handler{
		gate:     opts.Gate,
		activity: opts.Activity,
		maxSize:  opts.MaxFileSize,
		logger:   lg,
	}
	h.dav = &webdav.Handler{
		Prefix:     strings.TrimSuffix(opts.Prefix, "/"),
		FileSystem: davFS{fs: opts.FS},
		LockSystem: webdav.NewMemLS(),
		Logger: func(r *http.Request, err error) {
			if err != nil {
				lg.Warn("webdav request error", "method", r.Method, "path", r.URL.Path, "err", err)
			}
		},
	}
	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p, err := h.authenticate(r)
	if err != nil {
		if apperr.Is(err, apperr.KindAuthentication) {
			w.Header().Set("WWW-Authenticate", realm)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		h.logger.Error("webdav authentication failed", "err", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	h.logger.Debug("webdav request", "user", p.Username, "method", r.Method, "path", r.URL.Path)

	if r.Method == http.MethodPut && h.maxSize > 0 {
		if r.ContentLength > h.maxSize {
			http.Error(w, "Request Entity Too Large", http.StatusRequestEntityTooLarge)
			h.audit(r, p, false, "file too large")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, h.maxSize)
	}

	sw := &statusWriter{ResponseWriter: w}
	h.dav.ServeHTTP(sw, r)
	status := sw.status
	if status == 0 {
		status = http.StatusOK
	}
	if status >= 400 {
		h.audit(r, p, false, http.StatusText(status))
		return
	}
	h.audit(r, p, true, "")
}

func (h *Handler) authenticate(r *http.Request) (*authgate.Principal, error) {
	if _, ok := authgate.BearerToken(r.Header); ok {
		return h.gate.Authenticate(r.Context(), r.Header)
	}
	username, password, ok := r.BasicAuth()
	if !ok {
		return nil, apperr.Authentication("authentication required")
	}
	return h.gate.BasicAuthenticate(r.Context(), username, password)
}

// audited reports whether a method changes or exports content. Listings
// and lock traffic are too chatty for the activity log.
func audited(method string) bool {
	switch method {
	case http.MethodGet, http.MethodPut, http.MethodDelete, "MKCOL", "MOVE", "COPY":
		return true
	}
	return false
}

func (h *Handler) audit(r *http.Request, p *authgate.Principal, ok bool, details string) {
	if h.activity == nil || !audited(r.Method) {
		return
	}
	uid := p.UserID
	h.activity.Record(r.Context(), activity.Entry{
		UserID:     &uid,
		Action:     "webdav_" + strings.ToLower(r.Method),
		Target:     strings.TrimPrefix(r.URL.Path, h.dav.Prefix),
		SourceAddr: remoteHost(r),
		OK:         ok,
		Details:    details,
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
