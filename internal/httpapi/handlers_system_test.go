package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"filegate/internal/config"
	"filegate/internal/db"
)

// TestStatusIsPublic reports the server state without a token.
func TestStatusIsPublic(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(httptest.NewRequest("GET", "/api/status", nil), "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var st struct {
		Status string `json:"status"`
		Port   int    `json:"port"`
		Drive  struct {
			Exists bool `json:"exists"`
		} `json:"drive"`
	}
	if strings.Contains(w.Body.String(), e.root) {
		t.Fatalf("status leaks host path: %s", w.Body.String())
	}
	decode(t, w, &st)
	if st.Status != "running" || st.Port != 11777 || !st.Drive.Exists {
		t.Fatalf("status=%+v", st)
	}

	w = e.do(httptest.NewRequest("GET", "/", nil), "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Server is running") {
		t.Fatalf("status page=%d %q", w.Code, w.Body.String())
	}
	if strings.Contains(w.Body.String(), e.root) {
		t.Fatalf("status page leaks host path")
	}
}

// TestUnknownRouteIsJSON404 covers unmatched paths and methods.
func TestUnknownRouteIsJSON404(t *testing.T) {
	e := newTestEnv(t)
	for _, req := range []*http.Request{
		httptest.NewRequest("GET", "/api/nope", nil),
		httptest.NewRequest("DELETE", "/api/files", nil),
	} {
		w := e.do(req, "")
		if w.Code != http.StatusNotFound || errorOf(t, w) != "not found" {
			t.Fatalf("%s %s: status=%d body=%s", req.Method, req.URL.Path, w.Code, w.Body.String())
		}
	}
}

// TestPreflightAndCORS answers OPTIONS and tags every response.
func TestPreflightAndCORS(t *testing.T) {
	e := newTestEnv(t)
	req := httptest.NewRequest("OPTIONS", "/api/upload", nil)
	req.Header.Set("access-control-request-method", "POST")
	w := e.do(req, "")
	if w.Code != http.StatusOK || w.Header().Get("access-control-max-age") != "86400" {
		t.Fatalf("preflight status=%d headers=%v", w.Code, w.Header())
	}
	w = e.do(httptest.NewRequest("GET", "/api/status", nil), "")
	if w.Header().Get("access-control-allow-origin") != "*" {
		t.Fatalf("missing cors header")
	}
	if w.Header().Get("x-request-id") == "" {
		t.Fatalf("missing request id")
	}
}

// TestAllowlistBlocksOtherAddresses refuses callers outside allowed_ips.
func TestAllowlistBlocksOtherAddresses(t *testing.T) {
	e := newTestEnv(t, func(c *config.Config) { c.AllowedIPs = []string{"10.0.0.0/8"} })
	req := httptest.NewRequest("GET", "/api/status", nil)
	if w := e.do(req, ""); w.Code != http.StatusForbidden {
		t.Fatalf("status=%d", w.Code)
	}
	req = httptest.NewRequest("GET", "/api/status", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	if w := e.do(req, ""); w.Code != http.StatusOK {
		t.Fatalf("allowed status=%d", w.Code)
	}
}

// TestActivityLogsPaging lists newest entries first.
func TestActivityLogsPaging(t *testing.T) {
	e := newTestEnv(t)
	e.addUser(t, "alice", "secret1", db.RoleUser)
	tok := e.login(t, "alice", "secret1")
	_ = e.do(httptest.NewRequest("GET", "/api/files", nil), tok)
	_ = e.do(httptest.NewRequest("GET", "/api/files", nil), tok)

	w := e.do(httptest.NewRequest("GET", "/api/activity-logs?limit=1", nil), tok)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var resp struct {
		Logs []struct {
			Action string `json:"action"`
			User   string `json:"user"`
		} `json:"logs"`
		Total int64 `json:"total"`
	}
	decode(t, w, &resp)
	if len(resp.Logs) != 1 || resp.Logs[0].Action != "list_directory" || resp.Logs[0].User != "alice" {
		t.Fatalf("logs=%+v", resp.Logs)
	}
	if resp.Total < 2 {
		t.Fatalf("total=%d", resp.Total)
	}
	if w := e.do(httptest.NewRequest("GET", "/api/activity-logs?limit=x", nil), tok); w.Code != http.StatusBadRequest {
		t.Fatalf("bad limit status=%d", w.Code)
	}
}

// TestMetricsEndpoint exposes request counters when enabled.
func TestMetricsEndpoint(t *testing.T) {
	e := newTestEnv(t)
	_ = e.do(httptest.NewRequest("GET", "/api/status", nil), "")
	w := e.do(httptest.NewRequest("GET", "/metrics", nil), "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "filegate_http_requests_total") {
		t.Fatalf("metrics status=%d", w.Code)
	}

	off := newTestEnv(t, func(c *config.Config) { c.EnableMetrics = false })
	if w := off.do(httptest.NewRequest("GET", "/metrics", nil), ""); w.Code != http.StatusNotFound {
		t.Fatalf("disabled metrics status=%d", w.Code)
	}
}

// TestWebDAVMount serves the share under the configured prefix.
func TestWebDAVMount(t *testing.T) {
	e := newTestEnv(t, func(c *config.Config) { c.EnableWebDAV = true })
	e.addUser(t, "alice", "secret1", db.RoleUser)

	req := httptest.NewRequest(http.MethodPut, "/webdav/dav.txt", strings.NewReader("via dav"))
	req.SetBasicAuth("alice", "secret1")
	if w := e.do(req, ""); w.Code != http.StatusCreated {
		t.Fatalf("PUT status=%d", w.Code)
	}
	tok := e.login(t, "alice", "secret1")
	w := e.do(httptest.NewRequest("GET", "/api/download/dav.txt", nil), tok)
	if w.Code != http.StatusOK || w.Body.String() != "via dav" {
		t.Fatalf("download status=%d body=%q", w.Code, w.Body.String())
	}

	req = httptest.NewRequest(http.MethodOptions, "/webdav/", nil)
	req.SetBasicAuth("alice", "secret1")
	w = e.do(req, "")
	if w.Code != http.StatusOK || w.Header().Get("DAV") == "" || w.Header().Get("Allow") == "" {
		t.Fatalf("OPTIONS status=%d headers=%v", w.Code, w.Header())
	}

	plain := newTestEnv(t)
	req = httptest.NewRequest(http.MethodPut, "/webdav/dav.txt", strings.NewReader("x"))
	req.SetBasicAuth("alice", "secret1")
	if w := plain.do(req, ""); w.Code != http.StatusNotFound {
		t.Fatalf("disabled webdav status=%d", w.Code)
	}
}
