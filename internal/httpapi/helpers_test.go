package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"filegate/internal/auth"
	"filegate/internal/config"
	"filegate/internal/db"
	"filegate/internal/jailfs"
	"filegate/internal/session"
)

// testLogger silences logs during handler tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

type fakeRestarter struct {
	delays []time.Duration
}

func (f *fakeRestarter) Restart(d time.Duration) error {
	f.delays = append(f.delays, d)
	return nil
}

type testEnv struct {
	srv     *Server
	h       http.Handler
	db      *db.DB
	root    string
	restart *fakeRestarter
}

func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()
	root := filepath.Join(dir, "shared")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatalf("mkdir root: %v", err)
	}
	d, err := db.Open(ctx, filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	cfg := config.Defaults()
	cfg.RootDir = root
	cfg.MaxFileSize = 1 << 20
	cfg.ChunkSize = 4096
	for _, m := range mutate {
		m(&cfg)
	}

	sessions, err := session.New(session.Options{Persist: d, TTL: time.Hour, Logger: testLogger()})
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	rs := &fakeRestarter{}
	srv, err := New(Options{
		Config:    cfg,
		DB:        d,
		FS:        jailfs.New(root),
		Sessions:  sessions,
		Restarter: rs,
		Logger:    testLogger(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, h: srv.Handler(), db: d, root: root, restart: rs}
}

func (e *testEnv) addUser(t *testing.T, username, password, role string) int64 {
	t.Helper()
	h, err := auth.HashPassword(password, auth.DefaultArgon2Params())
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	id, err := e.db.CreateUser(context.Background(), username, h, username+"@example.com", role)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return id
}

func (e *testEnv) do(req *http.Request, token string) *httptest.ResponseRecorder {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.h.ServeHTTP(w, req)
	return w
}

func (e *testEnv) doJSON(t *testing.T, method, target, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set("content-type", "application/json")
	return e.do(req, token)
}

func (e *testEnv) login(t *testing.T, username, password string) string {
	t.Helper()
	w := e.doJSON(t, "POST", "/api/login", "", map[string]string{"username": username, "password": password})
	if w.Code != http.StatusOK {
		t.Fatalf("login %s: status=%d body=%s", username, w.Code, w.Body.String())
	}
	var resp struct {
		Success bool   `json:"success"`
		Token   string `json:"token"`
	}
	decode(t, w, &resp)
	if !resp.Success || resp.Token == "" {
		t.Fatalf("login response: %s", w.Body.String())
	}
	return resp.Token
}

// uploadRequest builds a multipart upload without touching testing.T so it
// can be used from worker goroutines.
func uploadRequest(dir, filename string, content []byte) (*http.Request, string) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if dir != "" {
		_ = mw.WriteField("path", dir)
	}
	fw, _ := mw.CreateFormFile("file", filename)
	_, _ = fw.Write(content)
	_ = mw.Close()
	return httptest.NewRequest("POST", "/api/upload", &buf), mw.FormDataContentType()
}

func (e *testEnv) upload(t *testing.T, token, dir, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	req, ct := uploadRequest(dir, filename, content)
	req.Header.Set("content-type", ct)
	return e.do(req, token)
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", strings.TrimSpace(w.Body.String()), err)
	}
}

func errorOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	decode(t, w, &body)
	return body["error"]
}
