// Package localfs keeps drafts as files in a local directory.
package localfs

import (
	"context"
	"io/ioutil"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/admission"
)

const draftExt = ".draft.json"

type DraftStore struct {
	dir string
	mu  sync.RWMutex
}

var _ admission.DraftStore = (*DraftStore)(nil)

// NewDraftStore creates dir when missing.
func NewDraftStore(dir string) (*DraftStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrapf(err, "creating drafts dir %s", dir)
	}
	return &DraftStore{dir: dir}, nil
}

func (s *DraftStore) path(key string) string {
	return filepath.Join(s.dir, url.PathEscape(key)+draftExt)
}

func (s *DraftStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := ioutil.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, admission.ErrDraftNotFound
		}
		return nil, errors.Wrapf(err, "reading draft %q", key)
	}
	return data, nil
}

// Put writes to a temp file first so readers never see a partial draft.
func (s *DraftStore) Put(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := ioutil.TempFile(s.dir, ".tmp-*")
	if err != nil {
		return errors.Wrapf(err, "saving draft %q", key)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.Wrapf(err, "saving draft %q", key)
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrapf(err, "saving draft %q", key)
	}
	if err = os.Rename(tmp.Name(), s.path(key)); err != nil {
		return errors.Wrapf(err, "saving draft %q", key)
	}
	return nil
}

func (s *DraftStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(key)); err != nil {
		if os.IsNotExist(err) {
			return admission.ErrDraftNotFound
		}
		return errors.Wrapf(err, "deleting draft %q", key)
	}
	return nil
}

func (s *DraftStore) Keys(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.Wrap(err, "listing drafts")
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, draftExt) {
			continue
		}
		key, err := url.PathUnescape(strings.TrimSuffix(name, draftExt))
		if err != nil {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}
