package httpapi

import (
	"html/template"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"filegate/internal/apperr"
	"filegate/internal/diskusage"
)

// driveInfo is served to anonymous callers, so Root carries only the share
// name and never the absolute host path.
type driveInfo struct {
	Exists bool   `json:"exists"`
	Root   string `json:"root"`
	Total  uint64 `json:"total"`
	Used   uint64 `json:"used"`
	Free   uint64 `json:"free"`
}

func (s *Server) drive() driveInfo {
	d := driveInfo{Root: filepath.Base(s.fs.Root())}
	st, err := os.Stat(s.fs.Root())
	if err != nil || !st.IsDir() {
		return d
	}
	d.Exists = true
	if u, err := diskusage.Of(s.fs.Root()); err == nil {
		d.Total, d.Used, d.Free = u.Total, u.Used, u.Free
	}
	return d
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request, c *call) error {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "running",
		"port":        s.cfg.Port,
		"drive":       s.drive(),
		"connections": s.sessions.Count(),
		"config": map[string]any{
			"root_dir":        filepath.Base(s.fs.Root()),
			"max_connections": s.cfg.MaxConnections,
			"enable_tls":      s.cfg.EnableTLS,
		},
	})
	return nil
}

var statusPage = template.Must(template.New("status").Funcs(template.FuncMap{
	"gib": func(b uint64) string { return strconv.FormatFloat(float64(b)/(1<<30), 'f', 1, 64) },
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>filegate</title>
<style>
body { font-family: sans-serif; margin: 40px; background: #f5f5f5; }
.box { max-width: 600px; margin: 0 auto; background: #fff; padding: 30px; border-radius: 8px; }
.ok { color: #28a745; font-weight: bold; }
.bad { color: #dc3545; }
</style>
</head>
<body>
<div class="box">
<h1>filegate</h1>
<div class="ok">Server is running</div>
<p><strong>Port:</strong> {{.Port}}</p>
<p><strong>Root:</strong> {{.Drive.Root}}</p>
{{if .Drive.Exists}}
<p class="ok">Storage accessible</p>
<p>Total: {{gib .Drive.Total}} GB</p>
<p>Free: {{gib .Drive.Free}} GB</p>
{{else}}
<p class="bad">Storage not accessible</p>
{{end}}
<p><strong>API status:</strong> <a href="/api/status">/api/status</a></p>
</div>
</body>
</html>
`))

func (s *Server) handleStatusPage(w http.ResponseWriter, r *http.Request, c *call) error {
	w.Header().Set("content-type", "text/html; charset=utf-8")
	return statusPage.Execute(w, struct {
		Port  int
		Drive driveInfo
	}{s.cfg.Port, s.drive()})
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperr.Validation(key + " must be an integer")
	}
	return n, nil
}

func (s *Server) handleActivityLogs(w http.ResponseWriter, r *http.Request, c *call) error {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		return err
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		return err
	}
	logs, err := s.activity.List(r.Context(), limit, offset)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "list activity", err)
	}
	total, err := s.activity.Total(r.Context())
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "count activity", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs, "total": total})
	return nil
}
