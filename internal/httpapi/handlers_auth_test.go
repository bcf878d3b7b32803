package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"filegate/internal/config"
	"filegate/internal/db"
)

// TestLoginWrongPassword answers 401 and audits login_failed without a user.
func TestLoginWrongPassword(t *testing.T) {
	e := newTestEnv(t)
	e.addUser(t, "alice", "secret1", db.RoleUser)

	w := e.doJSON(t, "POST", "/api/login", "", map[string]string{"username": "alice", "password": "wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if msg := errorOf(t, w); msg != "invalid credentials" {
		t.Fatalf("error=%q", msg)
	}

	rows, err := e.db.ListActivity(context.Background(), 10, 0)
	if err != nil {
		t.Fatalf("ListActivity: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 audit row, got %d", len(rows))
	}
	r := rows[0]
	if r.Action != "login_failed" || r.UserID != nil || r.Target != "alice" || r.Status != db.StatusError {
		t.Fatalf("audit row=%+v", r)
	}
}

// TestLoginMissingFields rejects empty credentials with 400.
func TestLoginMissingFields(t *testing.T) {
	e := newTestEnv(t)
	w := e.doJSON(t, "POST", "/api/login", "", map[string]string{"username": "alice"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", w.Code)
	}
}

// TestSecondLoginInvalidatesFirst keeps one live token per user.
func TestSecondLoginInvalidatesFirst(t *testing.T) {
	e := newTestEnv(t)
	e.addUser(t, "alice", "secret1", db.RoleUser)

	first := e.login(t, "alice", "secret1")
	second := e.login(t, "alice", "secret1")

	if w := e.do(httptest.NewRequest("GET", "/api/files", nil), first); w.Code != http.StatusUnauthorized {
		t.Fatalf("first token status=%d", w.Code)
	}
	if w := e.do(httptest.NewRequest("GET", "/api/files", nil), second); w.Code != http.StatusOK {
		t.Fatalf("second token status=%d", w.Code)
	}
}

// TestLogoutRevokesToken makes the token unusable.
func TestLogoutRevokesToken(t *testing.T) {
	e := newTestEnv(t)
	e.addUser(t, "alice", "secret1", db.RoleUser)
	tok := e.login(t, "alice", "secret1")

	if w := e.doJSON(t, "POST", "/api/logout", tok, nil); w.Code != http.StatusOK {
		t.Fatalf("logout status=%d", w.Code)
	}
	if w := e.do(httptest.NewRequest("GET", "/api/files", nil), tok); w.Code != http.StatusUnauthorized {
		t.Fatalf("status after logout=%d", w.Code)
	}
}

// TestMissingTokenIs401 requires a bearer token on session routes.
func TestMissingTokenIs401(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(httptest.NewRequest("GET", "/api/files", nil), "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d", w.Code)
	}
	if w.Header().Get("www-authenticate") == "" {
		t.Fatalf("missing www-authenticate header")
	}
}

// TestLoginRateLimited answers 429 once the per-IP budget is spent.
func TestLoginRateLimited(t *testing.T) {
	e := newTestEnv(t, func(c *config.Config) { c.LoginAttemptsPerMinute = 2 })
	body := map[string]string{"username": "ghost", "password": "x"}
	for i := 0; i < 2; i++ {
		if w := e.doJSON(t, "POST", "/api/login", "", body); w.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d status=%d", i, w.Code)
		}
	}
	w := e.doJSON(t, "POST", "/api/login", "", body)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status=%d", w.Code)
	}
	if w.Header().Get("retry-after") == "" {
		t.Fatalf("missing retry-after")
	}
}

// TestChangeOwnPassword rotates the password and ends the session.
func TestChangeOwnPassword(t *testing.T) {
	e := newTestEnv(t)
	e.addUser(t, "alice", "secret1", db.RoleUser)
	tok := e.login(t, "alice", "secret1")

	w := e.doJSON(t, "POST", "/api/account/password", tok, map[string]string{"current_password": "nope", "new_password": "secret2"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("wrong current status=%d", w.Code)
	}
	w = e.doJSON(t, "POST", "/api/account/password", tok, map[string]string{"current_password": "secret1", "new_password": "secret2"})
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if w := e.do(httptest.NewRequest("GET", "/api/files", nil), tok); w.Code != http.StatusUnauthorized {
		t.Fatalf("old session still valid: %d", w.Code)
	}
	e.login(t, "alice", "secret2")
}
