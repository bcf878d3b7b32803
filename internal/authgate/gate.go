// Package authgate turns request credentials into an authenticated principal
// and enforces role requirements.
package authgate

import (
	"context"
	"net/http"
	"strings"

	"filegate/internal/apperr"
	"filegate/internal/auth"
	"filegate/internal/db"
	"filegate/internal/session"
)

// Users is the subset of the user store the gate reads.
type Users interface {
	GetUserByID(ctx context.Context, id int64) (*db.User, bool, error)
	GetUserByUsername(ctx context.Context, username string) (*db.User, bool, error)
}

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID   int64
	Username string
	Email    string
	Role     string
	Token    string
}


type Gate struct {
	Sessions *session.Store
	Users    Users
}

// BearerToken extracts the token of an "Authorization: Bearer <token>" header.
// The scheme is matched case-insensitively.
func BearerToken(h http.Header) (string, bool) {
	v := strings.TrimSpace(h.Get("Authorization"))
	scheme, token, ok := strings.Cut(v, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Authenticate validates the bearer session of h and loads its user.
func (g *Gate) Authenticate(ctx context.Context, h http.Header) (*Principal, error) {
	token, ok := BearerToken(h)
	if !ok {
		return nil, apperr.Authentication("authentication required")
	}
	sess, ok, err := g.Sessions.Validate(ctx, token)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "validate session", err)
	}
	if !ok {
		return nil, apperr.Authentication("invalid or expired token")
	}
	u, ok, err := g.Users.GetUserByID(ctx, sess.UserID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "load user", err)
	}
	if !ok || !u.Active {
		return nil, apperr.Authentication("account is disabled")
	}
	return principalOf(u, token), nil
}

// Authorize requires an exact role match.
func (g *Gate) Authorize(p *Principal, role string) error {
	if p == nil {
		return apperr.Authentication("authentication required")
	}
	if p.Role != role {
		return apperr.Authorization("insufficient permissions")
	}
	return nil
}

// CheckPassword verifies username/password against the user store. Unknown
// and inactive accounts cost the same hashing work as a wrong password.
func (g *Gate) CheckPassword(ctx context.Context, username, password string) (*db.User, error) {
	u, ok, err := g.Users.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "load user", err)
	}
	if !ok || !u.Active {
		auth.BurnVerify(password)
		return nil, apperr.Authentication("invalid credentials")
	}
	match, err := auth.VerifyPassword(password, u.PassHash)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "verify password", err)
	}
	if !match {
		return nil, apperr.Authentication("invalid credentials")
	}
	return u, nil
}

// BasicAuthenticate authenticates with username and password instead of a
// session. Used by clients that cannot hold a bearer token, such as WebDAV
// mounts.
func (g *Gate) BasicAuthenticate(ctx context.Context, username, password string) (*Principal, error) {
	u, err := g.CheckPassword(ctx, username, password)
	if err != nil {
		return nil, err
	}
	return principalOf(u, ""), nil
}

func principalOf(u *db.User, token string) *Principal {
	return &Principal{
		UserID:   u.ID,
		Username: u.Username,
		Email:    u.Email,
		Role:     u.Role,
		Token:    token,
	}
}
