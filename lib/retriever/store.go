package retriever

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"mmp-pipeline/lib/textutil"

	"github.com/PuerkitoBio/purell"
)

var ErrNotSaved = errors.New("no saved copy")

// Store keeps copies of downloaded payloads under a normalized url key.
type Store interface {
	// Get returns ErrNotSaved if nothing is stored under key.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

const keyFlags = purell.FlagsUsuallySafeGreedy |
	purell.FlagRemoveFragment |
	purell.FlagRemoveDuplicateSlashes |
	purell.FlagSortQuery

// Key normalizes a url so equivalent spellings share one saved copy.
func Key(link string) (string, error) {
	return purell.NormalizeURLString(link, keyFlags)
}

// DirStore saves one file per key in a directory, the layout the saved
// fixtures of the test suite use.
type DirStore struct {
	directory string
}

func NewDirStore(directory string) (DirStore, error) {
	if directory == "" {
		return DirStore{}, fmt.Errorf("a directory was not specified")
	}
	abs, err := filepath.Abs(directory)
	if err != nil {
		return DirStore{}, err
	}
	return DirStore{directory: abs}, nil
}

// Filename maps a key onto a flat file name, the scheme is dropped.
func Filename(key string) (string, error) {
	link, err := url.Parse(key)
	if err != nil {
		return "", err
	}
	name := link.Host + link.Path
	if link.RawQuery != "" {
		name += "-" + link.RawQuery
	}
	slug := textutil.Slugify(name)
	if slug == "" {
		return "", fmt.Errorf("cannot derive a file name from %q", key)
	}
	return slug + ".json", nil
}

func (s DirStore) path(key string) (string, error) {
	name, err := Filename(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.directory, name), nil
}

func (s DirStore) Get(_ context.Context, key string) ([]byte, error) {
	pth, err := s.path(key)
	if err != nil {
		return nil, err
	}
	contents, err := os.ReadFile(pth)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%s: %w", pth, ErrNotSaved)
	}
	return contents, err
}

func (s DirStore) Set(_ context.Context, key string, value []byte) error {
	pth, err := s.path(key)
	if err != nil {
		return err
	}
	err = os.MkdirAll(s.directory, 0755)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.directory, "."+strings.TrimSuffix(filepath.Base(pth), ".json")+"-*")
	if err != nil {
		return err
	}
	_, err = tmp.Write(value)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), pth)
}
