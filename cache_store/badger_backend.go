package cache_store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/morler/repomuse/logger"
)

const blobPrefix = "blob/"

// BadgerBackend keeps every blob as one key in an embedded Badger database.
// Badger holds a directory lock, so only one process can open it.
type BadgerBackend struct {
	db    *badger.DB
	local keyedMutex
}

// badgerLogger routes Badger's own logging to zerolog
type badgerLogger struct {
	log *logger.Logger
}

func (l badgerLogger) Errorf(f string, v ...interface{}) {
	l.log.Error().Msgf(strings.TrimSpace(f), v...)
}
func (l badgerLogger) Warningf(f string, v ...interface{}) {
	l.log.Warn().Msgf(strings.TrimSpace(f), v...)
}
func (l badgerLogger) Infof(f string, v ...interface{}) {
	l.log.Debug().Msgf(strings.TrimSpace(f), v...)
}
func (l badgerLogger) Debugf(f string, v ...interface{}) {
	l.log.Trace().Msgf(strings.TrimSpace(f), v...)
}

// NewBadgerBackend opens a persistent database under path; an empty path
// opens an in-memory one.
func NewBadgerBackend(path string) (*BadgerBackend, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(path, 0750); err != nil {
			return nil, fmt.Errorf("create cache database directory %s: %w", path, err)
		}
		opts = badger.DefaultOptions(path)
	}
	opts = opts.
		WithNumVersionsToKeep(1).
		WithLogger(badgerLogger{log: logger.Named("badger")})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &BadgerBackend{db: db}, nil
}

// Read implements Backend
func (bb *BadgerBackend) Read(_ context.Context, name string) ([]byte, error) {
	var out []byte
	err := bb.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(blobPrefix + name))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return out, nil
}

// Write implements Backend
func (bb *BadgerBackend) Write(_ context.Context, name string, data []byte) error {
	err := bb.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(blobPrefix+name), data)
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// Delete implements Backend
func (bb *BadgerBackend) Delete(_ context.Context, name string) error {
	err := bb.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(blobPrefix + name))
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	return nil
}

// Lock implements Backend with an in-process mutex
func (bb *BadgerBackend) Lock(ctx context.Context, name string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m := bb.local.get(name)
	m.Lock()
	return m.Unlock, nil
}

// List implements Backend
func (bb *BadgerBackend) List(_ context.Context) ([]BlobInfo, error) {
	var out []BlobInfo
	err := bb.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(blobPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			out = append(out, BlobInfo{
				Name:    strings.TrimPrefix(string(item.Key()), blobPrefix),
				Size:    item.ValueSize(),
				ModTime: time.Time{},
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list blobs: %w", err)
	}
	return out, nil
}

// Close implements Backend
func (bb *BadgerBackend) Close() error {
	return bb.db.Close()
}
