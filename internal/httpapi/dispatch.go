package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"net/http"

	"filegate/internal/activity"
	"filegate/internal/apperr"
	"filegate/internal/db"
	"filegate/internal/fsutil"
	"filegate/internal/metrics"
	"filegate/internal/validate"
)

const maxJSONBody = 1 << 20

// dispatch wraps a route handler with authentication, authorization, error
// mapping and auditing.
func (s *Server) dispatch(rt route) http.Handler {
	label := rt.method + " " + rt.pattern
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		infoFrom(r).route = label
		sw, ok := w.(*statusRecorder)
		if !ok {
			sw = &statusRecorder{ResponseWriter: w}
		}

		c := &call{addr: clientIP(r)}
		err := s.admit(r, rt.access, c)
		if err == nil {
			err = rt.handle(sw, r, c)
		}
		if err != nil {
			s.fail(sw, r, rt, c, err)
			return
		}
		if rt.action != "" && c.principal != nil {
			s.audit(r, rt.action, c, true)
		}
	})
}

func (s *Server) admit(r *http.Request, a access, c *call) error {
	if a == accessPublic {
		return nil
	}
	p, err := s.gate.Authenticate(r.Context(), r.Header)
	if err != nil {
		return err
	}
	c.principal = p
	if a == accessAdmin {
		return s.gate.Authorize(p, db.RoleAdmin)
	}
	return nil
}

func (s *Server) fail(w *statusRecorder, r *http.Request, rt route, c *call, err error) {
	kind := apperr.KindOf(err)
	attrs := []any{"request_id", infoFrom(r).id, "route", rt.pattern, "remote_ip", c.addr, "err", err}
	if c.principal != nil {
		attrs = append(attrs, "user", c.principal.Username)
	}
	details := apperr.Public(err)
	switch kind {
	case apperr.KindPathSecurity:
		metrics.PathViolationsTotal.Inc()
		s.logger.Warn("path outside sandbox rejected", attrs...)
		details = "path outside sandbox root"
	case apperr.KindInternal, apperr.KindIO:
		s.logger.Error("request failed", attrs...)
	}

	if rt.action != "" && c.principal != nil {
		c.details = details
		s.audit(r, rt.action, c, false)
	}
	if w.started() {
		return
	}
	if kind == apperr.KindAuthentication {
		w.Header().Set("www-authenticate", `Bearer realm="filegate"`)
	}
	writeJSON(w, apperr.Status(kind), errorBody(apperr.Public(err)))
}

func (s *Server) audit(r *http.Request, action string, c *call, ok bool) {
	e := activity.Entry{
		Action:     action,
		Target:     c.target,
		SourceAddr: c.addr,
		OK:         ok,
		Details:    c.details,
	}
	if c.principal != nil {
		uid := c.principal.UserID
		e.UserID = &uid
	}
	s.activity.Record(r.Context(), e)
}

// decodeJSON reads a bounded JSON body into v and validates its tags.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return apperr.New(apperr.KindTooLarge, "request body too large")
		}
		if errors.Is(err, io.EOF) {
			return apperr.Validation("request body is required")
		}
		return apperr.Wrap(apperr.KindValidation, "invalid json", err)
	}
	if err := validate.Struct(v); err != nil {
		return apperr.Validation(err.Error())
	}
	return nil
}

// fsError maps a filesystem error to the gateway taxonomy.
func fsError(err error, op string) error {
	switch {
	case errors.Is(err, fsutil.ErrPathTraversal):
		return apperr.PathSecurity(err)
	case errors.Is(err, fs.ErrNotExist):
		return apperr.NotFound("path not found")
	case errors.Is(err, fs.ErrExist):
		return apperr.Conflict("target already exists")
	case errors.Is(err, fs.ErrPermission):
		return apperr.Wrap(apperr.KindAuthorization, "permission denied", err)
	default:
		return apperr.IO("failed to "+op, err)
	}
}
