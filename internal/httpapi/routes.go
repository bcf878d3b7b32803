package httpapi

import (
	"net/http"

	"filegate/internal/authgate"
)

type access int

const (
	accessPublic access = iota
	accessSession
	accessAdmin
)

// call carries per-request state between the dispatcher and a handler.
// Handlers fill in target and details for the audit entry.
type call struct {
	principal *authgate.Principal
	addr      string
	target    string
	details   string
}

type handlerFunc func(w http.ResponseWriter, r *http.Request, c *call) error

type route struct {
	method  string
	pattern string
	access  access
	// action names the audit entry; empty means the route is not audited
	// by the dispatcher.
	action string
	handle handlerFunc
}

func (s *Server) routes() []route {
	return []route{
		{http.MethodGet, "/{$}", accessPublic, "", s.handleStatusPage},
		{http.MethodGet, "/api/status", accessPublic, "", s.handleStatus},
		{http.MethodPost, "/api/login", accessPublic, "login", s.handleLogin},
		{http.MethodPost, "/api/logout", accessSession, "logout", s.handleLogout},
		{http.MethodPost, "/api/account/password", accessSession, "change_own_password", s.handleChangeOwnPassword},

		{http.MethodGet, "/api/files", accessSession, "list_directory", s.handleListFiles},
		{http.MethodGet, "/api/download/{path...}", accessSession, "download", s.handleDownload},
		{http.MethodPost, "/api/upload", accessSession, "upload", s.handleUpload},
		{http.MethodPost, "/api/create-folder", accessSession, "create_folder", s.handleCreateFolder},
		{http.MethodPost, "/api/delete", accessSession, "delete", s.handleDelete},
		{http.MethodPost, "/api/rename", accessSession, "rename", s.handleRename},

		{http.MethodPost, "/api/server/restart", accessAdmin, "server_restart", s.handleRestart},
		{http.MethodGet, "/api/users", accessAdmin, "list_users", s.handleListUsers},
		{http.MethodPost, "/api/users", accessAdmin, "create_user", s.handleCreateUser},
		{http.MethodPost, "/api/users/change-password", accessAdmin, "change_password", s.handleChangePassword},
		{http.MethodGet, "/api/users/{id}", accessAdmin, "view_user", s.handleGetUser},
		{http.MethodPut, "/api/users/{id}", accessAdmin, "update_user", s.handleUpdateUser},
		{http.MethodDelete, "/api/users/{id}", accessAdmin, "delete_user", s.handleDeleteUser},

		{http.MethodGet, "/api/activity-logs", accessSession, "view_activity_logs", s.handleActivityLogs},
		{http.MethodGet, "/api/storage-stats", accessSession, "view_storage_stats", s.handleStorageStats},
	}
}
