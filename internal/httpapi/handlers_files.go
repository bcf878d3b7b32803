package httpapi

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"filegate/internal/apperr"
	"filegate/internal/diskusage"
	"filegate/internal/formdata"
	"filegate/internal/metrics"
	"filegate/internal/validate"
)

// uploadEnvelope is the allowance for multipart framing on top of the
// maximum file size.
const uploadEnvelope = 1 << 20

type fileEntry struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Size        int64       `json:"size"`
	Modified    string      `json:"modified"`
	Path        string      `json:"path"`
	Permissions permissions `json:"permissions"`
}

type permissions struct {
	Read   bool `json:"read"`
	Write  bool `json:"write"`
	Delete bool `json:"delete"`
}

func virtualOrRoot(p string) string {
	if strings.TrimSpace(p) == "" {
		return "/"
	}
	return p
}

// statDir resolves a virtual directory and requires it to exist.
func (s *Server) statDir(virtual string) (string, error) {
	realPath, err := s.fs.Resolve(virtual)
	if err != nil {
		return "", fsError(err, "resolve path")
	}
	st, err := s.fs.Stat(virtual)
	if err != nil {
		return "", fsError(err, "stat path")
	}
	if !st.IsDir() {
		return "", apperr.Validation("path is not a directory")
	}
	return realPath, nil
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request, c *call) error {
	dir := virtualOrRoot(r.URL.Query().Get("path"))
	c.target = dir
	dirReal, err := s.statDir(dir)
	if err != nil {
		return err
	}

	f, err := s.fs.Open(dir)
	if err != nil {
		return fsError(err, "open directory")
	}
	names, err := f.Readdirnames(-1)
	_ = f.Close()
	if err != nil {
		return fsError(err, "list directory")
	}

	files := make([]fileEntry, 0, len(names))
	for _, name := range names {
		childReal := filepath.Join(dirReal, name)
		virtual, err := s.fs.Virtual(childReal)
		if err != nil {
			continue
		}
		st, err := s.fs.Stat(virtual)
		if err != nil {
			// Unreadable entries and symlinks leaving the root are skipped.
			continue
		}
		e := fileEntry{
			Name:        name,
			Type:        "file",
			Size:        st.Size(),
			Modified:    st.ModTime().UTC().Format(time.RFC3339),
			Path:        virtual,
			Permissions: permissions{Read: true, Write: true, Delete: true},
		}
		if st.IsDir() {
			e.Type = "folder"
			e.Size = 0
		}
		files = append(files, e)
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].Type != files[j].Type {
			return files[i].Type == "folder"
		}
		return strings.ToLower(files[i].Name) < strings.ToLower(files[j].Name)
	})

	writeJSON(w, http.StatusOK, map[string]any{"path": dir, "files": files})
	return nil
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request, c *call) error {
	virtual := "/" + strings.TrimLeft(r.PathValue("path"), "/")
	c.target = virtual

	st, err := s.fs.Stat(virtual)
	if err != nil {
		return fsError(err, "stat file")
	}
	if st.IsDir() {
		return apperr.NotFound("file not found")
	}
	f, err := s.fs.Open(virtual)
	if err != nil {
		return fsError(err, "open file")
	}
	defer f.Close()

	name := st.Name()
	ctype := mime.TypeByExtension(filepath.Ext(name))
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	h := w.Header()
	h.Set("content-type", ctype)
	h.Set("content-length", fmt.Sprint(st.Size()))
	h.Set("content-disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.WriteHeader(http.StatusOK)

	chunk := s.cfg.ChunkSize
	if chunk <= 0 {
		chunk = 1 << 20
	}
	// Hide io.WriterTo/ReaderFrom so the copy goes through the chunk buffer.
	n, err := io.CopyBuffer(struct{ io.Writer }{w}, struct{ io.Reader }{f}, make([]byte, chunk))
	metrics.BytesDownloadedTotal.Add(float64(n))
	if err != nil {
		return apperr.IO("download interrupted", err)
	}
	c.details = fmt.Sprintf("Size: %d bytes", n)
	return nil
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, c *call) error {
	boundary, err := formdata.BoundaryFromContentType(r.Header.Get("content-type"))
	if err != nil {
		return apperr.Wrap(apperr.KindParse, "invalid multipart request", err)
	}
	limit := s.cfg.MaxFileSize + uploadEnvelope
	if r.ContentLength > limit {
		return apperr.New(apperr.KindTooLarge, fmt.Sprintf("file too large, maximum size is %d bytes", s.cfg.MaxFileSize))
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return apperr.New(apperr.KindTooLarge, fmt.Sprintf("file too large, maximum size is %d bytes", s.cfg.MaxFileSize))
		}
		return apperr.Wrap(apperr.KindParse, "failed to read request body", err)
	}

	form, err := formdata.Decode(body, boundary)
	if err != nil {
		if formdata.IsParseError(err) {
			return apperr.Wrap(apperr.KindParse, "malformed multipart body", err)
		}
		return apperr.Wrap(apperr.KindInternal, "decode multipart body", err)
	}
	part, ok := form.Files["file"]
	if !ok {
		return apperr.Validation("no file provided")
	}
	dir := virtualOrRoot(strings.TrimSpace(form.Fields["path"]))
	c.target = dir

	name := validate.BaseName(part.Filename)
	if err := validate.EntryName(name); err != nil {
		return apperr.Validation("invalid filename")
	}
	if int64(len(part.Content)) > s.cfg.MaxFileSize {
		return apperr.New(apperr.KindTooLarge, fmt.Sprintf("file too large, maximum size is %d bytes", s.cfg.MaxFileSize))
	}

	dirReal, err := s.statDir(dir)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return apperr.NotFound("destination directory not found")
		}
		return err
	}
	dirVirtual, err := s.fs.Virtual(dirReal)
	if err != nil {
		return fsError(err, "resolve directory")
	}

	f, stored, err := s.fs.CreateUnique(dirVirtual, name)
	if err != nil {
		return fsError(err, "create file")
	}
	target := path.Join(dirVirtual, stored)
	c.target = target
	n, werr := f.Write(part.Content)
	cerr := f.Close()
	if werr == nil {
		werr = cerr
	}
	if werr != nil {
		_ = s.fs.Remove(target)
		return apperr.IO("failed to write file", werr)
	}
	metrics.BytesUploadedTotal.Add(float64(n))
	c.details = fmt.Sprintf("Size: %d bytes", n)

	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"filename": stored,
		"size":     n,
		"path":     target,
	})
	return nil
}

type createFolderRequest struct {
	Path string `json:"path"`
	Name string `json:"name" validate:"required"`
}

func (s *Server) handleCreateFolder(w http.ResponseWriter, r *http.Request, c *call) error {
	var req createFolderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return err
	}
	parent := virtualOrRoot(req.Path)
	name := strings.TrimSpace(req.Name)
	c.target = path.Join("/", parent, name)
	if err := validate.EntryName(name); err != nil {
		return apperr.Validation(err.Error())
	}
	parentReal, err := s.statDir(parent)
	if err != nil {
		return err
	}
	parentVirtual, err := s.fs.Virtual(parentReal)
	if err != nil {
		return fsError(err, "resolve directory")
	}
	target := path.Join(parentVirtual, name)
	c.target = target
	if err := s.fs.Mkdir(target, 0o755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return apperr.Conflict("folder already exists")
		}
		return fsError(err, "create folder")
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "path": target})
	return nil
}

type deleteRequest struct {
	Path string `json:"path" validate:"required"`
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, c *call) error {
	var req deleteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return err
	}
	c.target = req.Path
	realPath, err := s.fs.Resolve(req.Path)
	if err != nil {
		return fsError(err, "resolve path")
	}
	if s.fs.IsRoot(req.Path) {
		return apperr.Validation("cannot delete the root directory")
	}
	st, err := s.fs.Stat(req.Path)
	if err != nil {
		return fsError(err, "stat path")
	}
	if v, err := s.fs.Virtual(realPath); err == nil {
		c.target = v
	}
	if st.IsDir() {
		err = s.fs.RemoveAll(req.Path)
	} else {
		err = s.fs.Remove(req.Path)
	}
	if err != nil {
		return fsError(err, "delete")
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	return nil
}

type renameRequest struct {
	OldPath string `json:"old_path" validate:"required"`
	NewName string `json:"new_name" validate:"required"`
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request, c *call) error {
	var req renameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return err
	}
	newName := strings.TrimSpace(req.NewName)
	c.target = req.OldPath + " -> " + newName
	if err := validate.EntryName(newName); err != nil {
		return apperr.Validation(err.Error())
	}
	realPath, err := s.fs.Resolve(req.OldPath)
	if err != nil {
		return fsError(err, "resolve path")
	}
	if s.fs.IsRoot(req.OldPath) {
		return apperr.Validation("cannot rename the root directory")
	}
	if _, err := s.fs.Stat(req.OldPath); err != nil {
		return fsError(err, "stat path")
	}
	oldVirtual, err := s.fs.Virtual(realPath)
	if err != nil {
		return fsError(err, "resolve path")
	}
	newVirtual := path.Join(path.Dir(oldVirtual), newName)
	c.target = oldVirtual + " -> " + newName
	if err := s.fs.RenameNoReplace(oldVirtual, newVirtual); err != nil {
		if errors.Is(err, os.ErrExist) {
			return apperr.Conflict("an entry with that name already exists")
		}
		return fsError(err, "rename")
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "path": newVirtual})
	return nil
}

func (s *Server) handleStorageStats(w http.ResponseWriter, r *http.Request, c *call) error {
	usage, err := diskusage.Of(s.fs.Root())
	if err != nil {
		s.logger.Warn("disk usage unavailable", "root", s.fs.Root(), "err", err)
		writeJSON(w, http.StatusOK, map[string]any{
			"total_storage": 0,
			"used_storage":  0,
			"free_storage":  0,
			"total_files":   0,
			"total_folders": 0,
			"error":         "drive not accessible",
		})
		return nil
	}

	var files, folders int64
	_ = s.fs.Walk("/", func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if p == "/" || p == "" {
			return nil
		}
		if info.IsDir() {
			folders++
		} else {
			files++
		}
		return nil
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"total_storage": usage.Total,
		"used_storage":  usage.Used,
		"free_storage":  usage.Free,
		"total_files":   files,
		"total_folders": folders,
	})
	return nil
}
