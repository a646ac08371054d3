package cache

import (
	"context"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/krptodr/ravendb/client"
	"github.com/krptodr/ravendb/topology"
)

// FileStore keeps one JSON file per key inside a directory.
type FileStore struct {
	dir string
}

var _ client.TopologyCache = (*FileStore)(nil)

func NewFileStore(dir string) (*FileStore, error) {
	err := os.MkdirAll(dir, 0o700)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create cache directory %s", dir)
	}

	return &FileStore{dir: dir}, nil
}

// Path returns the file used for key.  Keys are urls, so the file is named
// after a name based uuid of the key.
func (s *FileStore) Path(key string) string {
	name := uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)).String() + ".topology.json"
	return filepath.Join(s.dir, name)
}

func (s *FileStore) Load(ctx context.Context, key string) ([]*topology.Node, error) {
	data, err := os.ReadFile(s.Path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, errors.Wrap(err, "failed to read cached topology")
	}

	return decodeNodes(data)
}

// Save replaces the file for key.  The data is written to a temporary file
// first so readers never see a partial document.
func (s *FileStore) Save(ctx context.Context, key string, nodes []*topology.Node) error {
	data, err := encodeNodes(key, nodes)
	if err != nil {
		return err
	}

	tmpFile, err := os.CreateTemp(s.dir, ".topology-*.tmp")
	if err != nil {
		return errors.Wrap(err, "failed to create temporary cache file")
	}
	tmpPath := tmpFile.Name()

	_, err = tmpFile.Write(data)
	if err == nil {
		err = tmpFile.Sync()
	}
	closeErr := tmpFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return errors.Wrap(err, "failed to write cached topology")
	}

	err = os.Rename(tmpPath, s.Path(key))
	if err != nil {
		_ = os.Remove(tmpPath)
		return errors.Wrap(err, "failed to replace cached topology")
	}

	return nil
}
