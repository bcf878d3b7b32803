package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"filegate/internal/apperr"
	"filegate/internal/auth"
	"filegate/internal/db"
	"filegate/internal/validate"
)

type userView struct {
	ID        int64      `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	Role      string     `json:"role"`
	CreatedAt time.Time  `json:"created_at"`
	LastLogin *time.Time `json:"last_login"`
	IsActive  bool       `json:"is_active"`
}

func viewOf(u db.User) userView {
	v := userView{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Role:      u.Role,
		CreatedAt: time.Unix(u.CreatedAt, 0).UTC(),
		IsActive:  u.Active,
	}
	if u.LastLogin != nil {
		t := time.Unix(*u.LastLogin, 0).UTC()
		v.LastLogin = &t
	}
	return v
}

func pathUserID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid user id")
	}
	return id, nil
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request, c *call) error {
	users, err := s.db.ListUsers(r.Context())
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "list users", err)
	}
	out := make([]userView, 0, len(users))
	for _, u := range users {
		out = append(out, viewOf(u))
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": out})
	return nil
}

type createUserRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required,min=6"`
	Email    string `json:"email" validate:"omitempty,email"`
	Role     string `json:"role" validate:"omitempty,role"`
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request, c *call) error {
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return err
	}
	req.Username = strings.TrimSpace(req.Username)
	c.target = req.Username
	if err := validate.Username(req.Username); err != nil {
		return apperr.Validation(err.Error())
	}
	if req.Role == "" {
		req.Role = db.RoleUser
	}
	hash, err := auth.HashPassword(req.Password, auth.DefaultArgon2Params())
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "hash password", err)
	}
	id, err := s.db.CreateUser(r.Context(), req.Username, hash, strings.TrimSpace(req.Email), req.Role)
	if errors.Is(err, db.ErrUsernameTaken) {
		return apperr.Conflict("username already exists")
	}
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "create user", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "id": id})
	return nil
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request, c *call) error {
	id, err := pathUserID(r)
	if err != nil {
		return err
	}
	c.target = strconv.FormatInt(id, 10)
	u, ok, err := s.db.GetUserByID(r.Context(), id)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "load user", err)
	}
	if !ok {
		return apperr.NotFound("user not found")
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": viewOf(*u)})
	return nil
}

type updateUserRequest struct {
	Username *string `json:"username"`
	Email    *string `json:"email" validate:"omitempty,email"`
	Role     *string `json:"role" validate:"omitempty,role"`
	IsActive *bool   `json:"isActive"`
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request, c *call) error {
	id, err := pathUserID(r)
	if err != nil {
		return err
	}
	c.target = strconv.FormatInt(id, 10)
	var req updateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return err
	}
	if req.Username != nil {
		u := strings.TrimSpace(*req.Username)
		if err := validate.Username(u); err != nil {
			return apperr.Validation(err.Error())
		}
		req.Username = &u
	}
	if req.IsActive != nil && !*req.IsActive && id == c.principal.UserID {
		return apperr.Validation("cannot deactivate your own account")
	}

	ok, err := s.db.UpdateUser(r.Context(), id, db.UserPatch{
		Username: req.Username,
		Email:    req.Email,
		Role:     req.Role,
		Active:   req.IsActive,
	})
	if errors.Is(err, db.ErrUsernameTaken) {
		return apperr.Conflict("username already exists")
	}
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "update user", err)
	}
	if !ok {
		return apperr.NotFound("user not found")
	}
	if req.IsActive != nil && !*req.IsActive {
		if err := s.sessions.RevokeAllForUser(r.Context(), id); err != nil {
			return apperr.Wrap(apperr.KindInternal, "revoke sessions", err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	return nil
}

// handleDeleteUser deactivates the account; rows are never removed so the
// activity log keeps resolving usernames.
func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request, c *call) error {
	id, err := pathUserID(r)
	if err != nil {
		return err
	}
	c.target = strconv.FormatInt(id, 10)
	if id == c.principal.UserID {
		return apperr.Validation("cannot deactivate your own account")
	}
	inactive := false
	ok, err := s.db.UpdateUser(r.Context(), id, db.UserPatch{Active: &inactive})
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "deactivate user", err)
	}
	if !ok {
		return apperr.NotFound("user not found")
	}
	if err := s.sessions.RevokeAllForUser(r.Context(), id); err != nil {
		return apperr.Wrap(apperr.KindInternal, "revoke sessions", err)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	return nil
}

type changePasswordRequest struct {
	UserID      int64  `json:"user_id" validate:"required,min=1"`
	NewPassword string `json:"new_password" validate:"required,min=6"`
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request, c *call) error {
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return err
	}
	c.target = strconv.FormatInt(req.UserID, 10)
	if err := s.setPassword(r, req.UserID, req.NewPassword); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	return nil
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request, c *call) error {
	if s.restarter == nil || !s.cfg.EnableRemoteRestart {
		return apperr.New(apperr.KindUnavailable, "remote restart is disabled")
	}
	delay := time.Duration(s.cfg.RestartDelay) * time.Second
	if err := s.restarter.Restart(delay); err != nil {
		return apperr.Wrap(apperr.KindInternal, "schedule restart", err)
	}
	s.logger.Info("restart requested", "user", c.principal.Username, "remote_ip", c.addr, "delay", delay)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"message":       "server restart initiated",
		"restart_delay": s.cfg.RestartDelay,
	})
	return nil
}
