package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"filegate/internal/config"
	"filegate/internal/db"
)

// TestUsersRequireAdmin answers 403 to regular users and audits the attempt.
func TestUsersRequireAdmin(t *testing.T) {
	e := newTestEnv(t)
	e.addUser(t, "alice", "secret1", db.RoleUser)
	tok := e.login(t, "alice", "secret1")

	w := e.do(httptest.NewRequest("GET", "/api/users", nil), tok)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status=%d", w.Code)
	}
	rows, _ := e.db.ListActivity(context.Background(), 1, 0)
	if len(rows) != 1 || rows[0].Action != "list_users" || rows[0].Status != db.StatusError {
		t.Fatalf("audit=%+v", rows)
	}
}

// TestCreateAndListUsers covers creation, duplicates and listing.
func TestCreateAndListUsers(t *testing.T) {
	e := newTestEnv(t)
	e.addUser(t, "root", "secret1", db.RoleAdmin)
	tok := e.login(t, "root", "secret1")

	body := map[string]string{"username": "bob", "password": "pass123", "email": "bob@example.com"}
	if w := e.doJSON(t, "POST", "/api/users", tok, body); w.Code != http.StatusOK {
		t.Fatalf("create status=%d body=%s", w.Code, w.Body.String())
	}
	w := e.doJSON(t, "POST", "/api/users", tok, body)
	if w.Code != http.StatusBadRequest || errorOf(t, w) != "username already exists" {
		t.Fatalf("duplicate status=%d body=%s", w.Code, w.Body.String())
	}
	w = e.doJSON(t, "POST", "/api/users", tok, map[string]string{"username": "eve", "password": "pass123", "role": "root"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad role status=%d", w.Code)
	}

	w = e.do(httptest.NewRequest("GET", "/api/users", nil), tok)
	var resp struct {
		Users []userView `json:"users"`
	}
	decode(t, w, &resp)
	if len(resp.Users) != 2 {
		t.Fatalf("users=%+v", resp.Users)
	}
	bob := e.login(t, "bob", "pass123")
	if bob == "" {
		t.Fatalf("bob cannot log in")
	}
}

// TestDeactivationRevokesSessions makes the deactivated user's token fail.
func TestDeactivationRevokesSessions(t *testing.T) {
	e := newTestEnv(t)
	e.addUser(t, "root", "secret1", db.RoleAdmin)
	uid := e.addUser(t, "bob", "pass123", db.RoleUser)
	admin := e.login(t, "root", "secret1")
	bob := e.login(t, "bob", "pass123")

	w := e.doJSON(t, "DELETE", fmt.Sprintf("/api/users/%d", uid), admin, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete status=%d body=%s", w.Code, w.Body.String())
	}
	if w := e.do(httptest.NewRequest("GET", "/api/files", nil), bob); w.Code != http.StatusUnauthorized {
		t.Fatalf("bob token status=%d", w.Code)
	}
	w = e.doJSON(t, "POST", "/api/login", "", map[string]string{"username": "bob", "password": "pass123"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("inactive login status=%d", w.Code)
	}
	u, ok, _ := e.db.GetUserByID(context.Background(), uid)
	if !ok || u.Active {
		t.Fatalf("user row=%+v ok=%v", u, ok)
	}
}

// TestUpdateUser changes fields and revokes on deactivation.
func TestUpdateUser(t *testing.T) {
	e := newTestEnv(t)
	adminID := e.addUser(t, "root", "secret1", db.RoleAdmin)
	uid := e.addUser(t, "bob", "pass123", db.RoleUser)
	admin := e.login(t, "root", "secret1")
	bob := e.login(t, "bob", "pass123")

	w := e.doJSON(t, "PUT", fmt.Sprintf("/api/users/%d", uid), admin, map[string]any{"email": "new@example.com", "role": "admin"})
	if w.Code != http.StatusOK {
		t.Fatalf("update status=%d body=%s", w.Code, w.Body.String())
	}
	w = e.do(httptest.NewRequest("GET", fmt.Sprintf("/api/users/%d", uid), nil), admin)
	var resp struct {
		User userView `json:"user"`
	}
	decode(t, w, &resp)
	if resp.User.Email != "new@example.com" || resp.User.Role != "admin" || !resp.User.IsActive {
		t.Fatalf("user=%+v", resp.User)
	}

	w = e.doJSON(t, "PUT", fmt.Sprintf("/api/users/%d", uid), admin, map[string]any{"isActive": false})
	if w.Code != http.StatusOK {
		t.Fatalf("deactivate status=%d", w.Code)
	}
	if w := e.do(httptest.NewRequest("GET", "/api/files", nil), bob); w.Code != http.StatusUnauthorized {
		t.Fatalf("bob token status=%d", w.Code)
	}

	w = e.doJSON(t, "PUT", fmt.Sprintf("/api/users/%d", adminID), admin, map[string]any{"isActive": false})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("self deactivation status=%d", w.Code)
	}
	if w := e.do(httptest.NewRequest("GET", "/api/users/999", nil), admin); w.Code != http.StatusNotFound {
		t.Fatalf("missing user status=%d", w.Code)
	}
	if w := e.do(httptest.NewRequest("GET", "/api/users/abc", nil), admin); w.Code != http.StatusBadRequest {
		t.Fatalf("bad id status=%d", w.Code)
	}
}

// TestAdminChangePassword forces the target user to log in again.
func TestAdminChangePassword(t *testing.T) {
	e := newTestEnv(t)
	e.addUser(t, "root", "secret1", db.RoleAdmin)
	uid := e.addUser(t, "bob", "pass123", db.RoleUser)
	admin := e.login(t, "root", "secret1")
	bob := e.login(t, "bob", "pass123")

	w := e.doJSON(t, "POST", "/api/users/change-password", admin, map[string]any{"user_id": uid, "new_password": "newpass"})
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if w := e.do(httptest.NewRequest("GET", "/api/files", nil), bob); w.Code != http.StatusUnauthorized {
		t.Fatalf("bob token status=%d", w.Code)
	}
	e.login(t, "bob", "newpass")
}

// TestRestart schedules a restart or reports it disabled.
func TestRestart(t *testing.T) {
	e := newTestEnv(t)
	e.addUser(t, "root", "secret1", db.RoleAdmin)
	admin := e.login(t, "root", "secret1")

	w := e.doJSON(t, "POST", "/api/server/restart", admin, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if len(e.restart.delays) != 1 || e.restart.delays[0] != 3*time.Second {
		t.Fatalf("delays=%v", e.restart.delays)
	}

	off := newTestEnv(t, func(c *config.Config) { c.EnableRemoteRestart = false })
	off.addUser(t, "root", "secret1", db.RoleAdmin)
	tok := off.login(t, "root", "secret1")
	if w := off.doJSON(t, "POST", "/api/server/restart", tok, nil); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("disabled status=%d", w.Code)
	}
}
