package transfer

import (
	"context"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/yurykabanov/archiver/pkg/domain"
)

// LocalMount stores archives in directories under root, usually a mounted
// network share. The file name is the remote id.
type LocalMount struct {
	root string
}

func NewLocalMount(root string) *LocalMount {
	return &LocalMount{
		root: root,
	}
}

func (m *LocalMount) Upload(ctx context.Context, localPath, container string) (string, error) {
	dir := filepath.Join(m.root, container)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", errors.Wrap(err, "unable to create container directory")
	}

	name := filepath.Base(localPath)

	// Rename doesn't work across different mount points
	tmp := filepath.Join(dir, "."+name+".part")
	if err := CopyFile(localPath, tmp); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}

	if err := os.Rename(tmp, filepath.Join(dir, name)); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}

	return name, nil
}

func (m *LocalMount) List(ctx context.Context, container, prefix string) ([]domain.RemoteFile, error) {
	entries, err := ioutil.ReadDir(filepath.Join(m.root, container))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var files []domain.RemoteFile
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}

		files = append(files, domain.RemoteFile{
			Id:        entry.Name(),
			Name:      entry.Name(),
			CreatedAt: entry.ModTime(),
		})
	}

	return files, nil
}

func (m *LocalMount) Delete(ctx context.Context, container, id string) error {
	if id != filepath.Base(id) {
		return errors.Errorf("invalid file id %q", id)
	}

	return os.Remove(filepath.Join(m.root, container, id))
}

func CopyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return
	}
	defer func() {
		if e := out.Close(); e != nil && err == nil {
			err = e
		}
	}()

	_, err = io.Copy(out, in)
	if err != nil {
		return
	}

	err = out.Sync()
	if err != nil {
		return
	}

	si, err := os.Stat(src)
	if err != nil {
		return
	}
	err = os.Chmod(dst, si.Mode())

	return
}
