// Package badger archives screenshots in an embedded BadgerDB.
package badger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// ErrNotFound is returned by Get for unknown paths.
var ErrNotFound = errors.New("object not found")

// Config controls where the database lives.
type Config struct {
	// Dir holds the badger files. Empty keeps everything in memory.
	Dir string `mapstructure:"dir"`
}

// BlobStore keys each object by its archive path.
type BlobStore struct {
	db     *badger.DB
	logger *zap.Logger
}

// Open opens (or creates) the database described by cfg.
func Open(cfg Config, logger *zap.Logger) (*BlobStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dir := strings.TrimSpace(cfg.Dir)
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = badgerLogger{logger.Sugar()}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db at %q: %w", dir, err)
	}
	logger.Info("badger archive opened", zap.String("dir", dir), zap.Bool("in_memory", dir == ""))
	return &BlobStore{db: db, logger: logger}, nil
}

// PutObject stores data under path, replacing any previous value, and
// returns a badger:// URI.
func (s *BlobStore) PutObject(_ context.Context, path string, _ string, data io.Reader) (string, error) {
	key := strings.Trim(path, "/")
	if key == "" {
		return "", errors.New("path is required")
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, data); err != nil {
		return "", fmt.Errorf("read object: %w", err)
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry([]byte(key), buf.Bytes()))
	})
	if err != nil {
		return "", fmt.Errorf("save object %s: %w", key, err)
	}
	return "badger://" + key, nil
}

// Get returns a copy of the object stored under path.
func (s *BlobStore) Get(path string) ([]byte, error) {
	key := strings.Trim(path, "/")
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load object %s: %w", key, err)
	}
	return out, nil
}

// Close flushes and closes the database.
func (s *BlobStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close badger db: %w", err)
	}
	return nil
}

// badgerLogger routes badger's internal logging through zap.
type badgerLogger struct {
	s *zap.SugaredLogger
}

func (l badgerLogger) Errorf(f string, v ...any)   { l.s.Errorf(f, v...) }
func (l badgerLogger) Warningf(f string, v ...any) { l.s.Warnf(f, v...) }
func (l badgerLogger) Infof(f string, v ...any)    { l.s.Debugf(f, v...) }
func (l badgerLogger) Debugf(f string, v ...any)   { l.s.Debugf(f, v...) }
