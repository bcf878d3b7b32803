package httpapi

import (
	"net/http"
	"strings"

	"filegate/internal/activity"
	"filegate/internal/apperr"
	"filegate/internal/auth"
	"filegate/internal/authgate"
	"filegate/internal/metrics"
)

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request, c *call) error {
	if ok, wait := s.loginLimiter.Allow(c.addr); !ok {
		metrics.LoginsTotal.WithLabelValues("limited").Inc()
		w.Header().Set("retry-after", retryAfterSeconds(wait))
		writeJSON(w, http.StatusTooManyRequests, errorBody("too many login attempts"))
		return nil
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return err
	}
	req.Username = strings.TrimSpace(req.Username)

	ctx := r.Context()
	u, err := s.gate.CheckPassword(ctx, req.Username, req.Password)
	if err != nil {
		if apperr.Is(err, apperr.KindAuthentication) {
			metrics.LoginsTotal.WithLabelValues("failure").Inc()
			s.activity.Record(ctx, activity.Entry{
				Action:     "login_failed",
				Target:     req.Username,
				SourceAddr: c.addr,
				Details:    "invalid credentials",
			})
		}
		return err
	}

	sess, err := s.sessions.Create(ctx, u.ID, c.addr)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "create session", err)
	}
	if err := s.db.TouchLastLogin(ctx, u.ID); err != nil {
		s.logger.Warn("update last login", "user", u.Username, "err", err)
	}
	metrics.LoginsTotal.WithLabelValues("success").Inc()

	c.principal = &authgate.Principal{UserID: u.ID, Username: u.Username, Email: u.Email, Role: u.Role, Token: sess.Token}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"token":      sess.Token,
		"expires_at": sess.ExpiresAt.UTC(),
		"user": map[string]any{
			"id":       u.ID,
			"username": u.Username,
			"email":    u.Email,
			"role":     u.Role,
		},
	})
	return nil
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, c *call) error {
	if err := s.sessions.Revoke(r.Context(), c.principal.Token); err != nil {
		return apperr.Wrap(apperr.KindInternal, "revoke session", err)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	return nil
}

type changeOwnPasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=6"`
}

// handleChangeOwnPassword lets any user rotate their password. All of the
// user's sessions, including the current one, are revoked.
func (s *Server) handleChangeOwnPassword(w http.ResponseWriter, r *http.Request, c *call) error {
	var req changeOwnPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return err
	}
	ctx := r.Context()
	c.target = c.principal.Username
	if _, err := s.gate.CheckPassword(ctx, c.principal.Username, req.CurrentPassword); err != nil {
		if apperr.Is(err, apperr.KindAuthentication) {
			return apperr.Validation("current password is incorrect")
		}
		return err
	}
	if err := s.setPassword(r, c.principal.UserID, req.NewPassword); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	return nil
}

// setPassword stores a new digest and revokes every session of the user
// before returning.
func (s *Server) setPassword(r *http.Request, userID int64, password string) error {
	hash, err := auth.HashPassword(password, auth.DefaultArgon2Params())
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "hash password", err)
	}
	ok, err := s.db.SetUserPasswordHash(r.Context(), userID, hash)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "store password", err)
	}
	if !ok {
		return apperr.NotFound("user not found")
	}
	if err := s.sessions.RevokeAllForUser(r.Context(), userID); err != nil {
		return apperr.Wrap(apperr.KindInternal, "revoke sessions", err)
	}
	return nil
}
