package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"sigs.k8s.io/yaml"

	file "github.com/kyma-incubator/alerting-reconciler/pkg/files"
)

const timestampFormat = "20060102T150405Z"

// Store keeps point-in-time snapshots of objects before they get patched.
// Snapshots are written exactly once and never read back by the reconciler.
type Store struct {
	dir string
	now func() time.Time
}

func NewStore(dir string) *Store {
	return &Store{
		dir: dir,
		now: time.Now,
	}
}

func (s *Store) Dir() string {
	return s.dir
}

// Write serialises obj as YAML into '<prefix>-<timestamp>.yaml' and returns
// the path of the snapshot. An existing snapshot is never overwritten.
func (s *Store) Write(prefix string, obj interface{}) (string, error) {
	data, err := yaml.Marshal(obj)
	if err != nil {
		return "", errors.Wrapf(err, "failed to serialise backup '%s'", prefix)
	}

	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return "", errors.Wrapf(err, "failed to create backup directory '%s'", s.dir)
	}

	path := filepath.Join(s.dir, fmt.Sprintf("%s-%s.yaml", prefix, s.now().UTC().Format(timestampFormat)))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return "", errors.Wrapf(err, "failed to create backup file '%s'", path)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return "", errors.Wrapf(err, "failed to write backup file '%s'", path)
	}
	return path, f.Close()
}

// Purge removes the backup directory including all snapshots.
// It returns false if there was nothing to remove.
func (s *Store) Purge() (bool, error) {
	if !file.DirExists(s.dir) {
		return false, nil
	}
	if err := os.RemoveAll(s.dir); err != nil {
		return false, errors.Wrapf(err, "failed to remove backup directory '%s'", s.dir)
	}
	return true, nil
}
