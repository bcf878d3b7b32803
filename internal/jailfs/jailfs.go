// Package jailfs exposes the sandbox root as an afero.Fs addressed by
// virtual paths. Every name is resolved through fsutil before use.
package jailfs

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"filegate/internal/fsutil"

	"github.com/spf13/afero"
)

// FS is an afero.Fs jailed to a single root directory.
type FS struct {
	root  string
	osfs  afero.Fs
	locks dirLocks
}

var _ afero.Fs = (*FS)(nil)

// New returns a jailed filesystem rooted at root.
func New(root string) *FS {
	return &FS{root: root, osfs: afero.NewOsFs()}
}

// Root returns the configured sandbox root.
func (f *FS) Root() string { return f.root }

// Resolve maps a virtual path to its real path.
func (f *FS) Resolve(name string) (string, error) {
	return fsutil.ResolveWithinRoot(f.root, name)
}

// Virtual maps a real path under root back to its virtual path.
func (f *FS) Virtual(real string) (string, error) {
	return fsutil.Relativize(f.root, real)
}

// IsRoot reports whether the virtual name resolves to the root itself.
func (f *FS) IsRoot(name string) bool {
	p, err := f.Resolve(name)
	if err != nil {
		return false
	}
	return fsutil.IsRoot(f.root, p)
}

// ReadDir lists the direct children of a virtual directory.
func (f *FS) ReadDir(name string) ([]os.FileInfo, error) {
	return afero.ReadDir(f, name)
}

// Walk visits every entry below a virtual directory.
func (f *FS) Walk(name string, fn filepath.WalkFunc) error {
	return afero.Walk(f, name, fn)
}

// CreateUnique creates a new file named base inside the virtual directory dir.
// If base is taken, it tries "stem_1.ext", "stem_2.ext", ... and claims the
// first free name with O_EXCL. Callers for the same directory are serialized.
func (f *FS) CreateUnique(dir, base string) (afero.File, string, error) {
	dirReal, err := f.Resolve(dir)
	if err != nil {
		return nil, "", err
	}
	unlock := f.locks.lock(dirReal)
	defer unlock()

	ext := path.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	name := base
	for n := 1; ; n++ {
		file, err := f.OpenFile(path.Join(dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return file, name, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", err
		}
		if n > 100000 {
			return nil, "", fmt.Errorf("no free name for %q", base)
		}
		name = stem + "_" + strconv.Itoa(n) + ext
	}
}

// RenameNoReplace renames oldname to newname, failing with os.ErrExist when
// newname is taken. It holds the same per-directory lock as CreateUnique so
// the check and the rename are not interleaved with uploads.
func (f *FS) RenameNoReplace(oldname, newname string) error {
	newp, err := f.local(newname)
	if err != nil {
		return err
	}
	unlock := f.locks.lock(filepath.Dir(newp))
	defer unlock()

	if _, err := f.osfs.Stat(newp); err == nil {
		return os.ErrExist
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return f.Rename(oldname, newname)
}

func (f *FS) Create(name string) (afero.File, error) {
	p, err := f.local(name)
	if err != nil {
		return nil, err
	}
	return f.osfs.Create(p)
}

func (f *FS) Mkdir(name string, perm os.FileMode) error {
	p, err := f.local(name)
	if err != nil {
		return err
	}
	return f.osfs.Mkdir(p, perm)
}

func (f *FS) MkdirAll(path string, perm os.FileMode) error {
	p, err := f.local(path)
	if err != nil {
		return err
	}
	return f.osfs.MkdirAll(p, perm)
}

func (f *FS) Open(name string) (afero.File, error) {
	p, err := f.local(name)
	if err != nil {
		return nil, err
	}
	return f.osfs.Open(p)
}

func (f *FS) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	p, err := f.local(name)
	if err != nil {
		return nil, err
	}
	return f.osfs.OpenFile(p, flag, perm)
}

func (f *FS) Remove(name string) error {
	p, err := f.local(name)
	if err != nil {
		return err
	}
	return f.osfs.Remove(p)
}

// RemoveAll refuses to remove the root itself.
func (f *FS) RemoveAll(path string) error {
	p, err := f.local(path)
	if err != nil {
		return err
	}
	if fsutil.IsRoot(f.root, p) {
		return os.ErrPermission
	}
	return f.osfs.RemoveAll(p)
}

func (f *FS) Rename(oldname, newname string) error {
	oldp, err := f.local(oldname)
	if err != nil {
		return err
	}
	newp, err := f.local(newname)
	if err != nil {
		return err
	}
	if fsutil.IsRoot(f.root, oldp) {
		return os.ErrPermission
	}
	return f.osfs.Rename(oldp, newp)
}

func (f *FS) Stat(name string) (os.FileInfo, error) {
	p, err := f.local(name)
	if err != nil {
		return nil, err
	}
	return f.osfs.Stat(p)
}

func (f *FS) Name() string { return "jailfs" }

func (f *FS) Chmod(name string, mode os.FileMode) error {
	p, err := f.local(name)
	if err != nil {
		return err
	}
	return f.osfs.Chmod(p, mode)
}

func (f *FS) Chown(name string, uid, gid int) error {
	return errors.New("chown not supported")
}

func (f *FS) Chtimes(name string, atime time.Time, mtime time.Time) error {
	p, err := f.local(name)
	if err != nil {
		return err
	}
	return f.osfs.Chtimes(p, atime, mtime)
}

func (f *FS) local(name string) (string, error) {
	return fsutil.ResolveWithinRoot(f.root, name)
}

// dirLocks hands out one mutex per real directory path.
type dirLocks struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	sync.Mutex
	refs int
}

func (d *dirLocks) lock(key string) func() {
	d.mu.Lock()
	if d.locks == nil {
		d.locks = make(map[string]*refLock)
	}
	l := d.locks[key]
	if l == nil {
		l = &refLock{}
		d.locks[key] = l
	}
	l.refs++
	d.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		d.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(d.locks, key)
		}
		d.mu.Unlock()
	}
}
