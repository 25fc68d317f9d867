// Package storage keeps uploaded document bytes on local disk and serves
// them under /files.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// URLPrefix is the route the stored objects are served from.
const URLPrefix = "/files/"

var ErrInvalidKey = errors.New("invalid storage key")

type Local struct {
	dir     string
	baseURL string
}

func NewLocal(dir, publicBaseURL string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir failed: %w", err)
	}
	return &Local{dir: dir, baseURL: strings.TrimRight(publicBaseURL, "/")}, nil
}

func (l *Local) Dir() string {
	return l.dir
}

// Put stores data under a fresh key that keeps the file extension and
// returns the key with its public URL.
func (l *Local) Put(_ context.Context, filename string, data []byte) (key, publicURL string, err error) {
	key = uuid.NewString() + strings.ToLower(filepath.Ext(filename))
	if err := os.WriteFile(filepath.Join(l.dir, key), data, 0o644); err != nil {
		return "", "", fmt.Errorf("write object failed: %w", err)
	}
	return key, l.URL(key), nil
}

func (l *Local) URL(key string) string {
	return l.baseURL + URLPrefix + key
}

// Delete removes the object; a missing object is not an error.
func (l *Local) Delete(_ context.Context, key string) error {
	if !validKey(key) {
		return ErrInvalidKey
	}
	if err := os.Remove(filepath.Join(l.dir, key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete object failed: %w", err)
	}
	return nil
}

// Open reads an object addressed by its public URL. ok is false for URLs
// that do not belong to this store.
func (l *Local) Open(_ context.Context, rawURL string) (io.ReadCloser, bool, error) {
	if !strings.HasPrefix(rawURL, l.baseURL+URLPrefix) {
		return nil, false, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, false, nil
	}
	key := path.Base(u.Path)
	if !validKey(key) {
		return nil, true, ErrInvalidKey
	}
	f, err := os.Open(filepath.Join(l.dir, key))
	if err != nil {
		return nil, true, fmt.Errorf("open object failed: %w", err)
	}
	return f, true, nil
}

func validKey(key string) bool {
	return key != "" && key != "." && key != ".." && !strings.ContainsAny(key, `/\`)
}
