package webdavserver

import (
	"context"
	"os"

	"filegate/internal/jailfs"

	"golang.org/x/net/webdav"
)

// davFS adapts the sandbox to webdav.FileSystem. Names arrive already
// slash-cleaned by the webdav handler and are resolved again by jailfs.
type davFS struct {
	fs *jailfs.FS
}

var _ webdav.FileSystem = davFS{}

func (d davFS) Mkdir(_ context.Context, name string, perm os.FileMode) error {
	return d.fs.Mkdir(name, perm)
}

func (d davFS) OpenFile(_ context.Context, name string, flag int, perm os.FileMode) (webdav.File, error) {
	f, err := d.fs.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (d davFS) RemoveAll(_ context.Context, name string) error {
	return d.fs.RemoveAll(name)
}

func (d davFS) Rename(_ context.Context, oldName, newName string) error {
	return d.fs.Rename(oldName, newName)
}

func (d davFS) Stat(_ context.Context, name string) (os.FileInfo, error) {
	return d.fs.Stat(name)
}
