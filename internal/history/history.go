// Package history persists the bounded, sanitized vanish-history log
// in badger. Only header metadata and vanish reasons are stored; live
// materialization records are never persisted.
package history

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/ghostbridge/ghostbridge/pkg/lifecycle"
)

var keyPrefix = []byte("vh:")

// StoreConfig configures a Store.
type StoreConfig struct {
	Path string

	// Limit bounds the number of retained entries; older entries are
	// trimmed as new ones arrive. Defaults to 1000.
	Limit int

	Logger *logrus.Logger
}

// Store is a badger-backed lifecycle.HistorySink.
type Store struct {
	config   StoreConfig
	badgerDB *badger.DB
	seq      *badger.Sequence
}

// NewStore opens (or creates) the history database at config.Path.
func NewStore(config StoreConfig) (*Store, error) {
	if config.Logger == nil {
		config.Logger = logrus.New()
	}
	if config.Path == "" {
		return nil, fmt.Errorf("history: empty store path")
	}
	if config.Limit <= 0 {
		config.Limit = 1000
	}

	opts := badger.DefaultOptions(config.Path)
	opts.Logger = nil
	opts.SyncWrites = false

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening history store: %w", err)
	}

	seq, err := db.GetSequence([]byte("vh-seq"), 128)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("opening history sequence: %w", err)
	}

	return &Store{
		config:   config,
		badgerDB: db,
		seq:      seq,
	}, nil
}

// Append persists one history entry and trims the log to the
// configured limit.
func (s *Store) Append(entry lifecycle.HistoryEntry) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(entry); err != nil {
		return fmt.Errorf("encoding history entry %s: %w", entry.ID, err)
	}

	n, err := s.seq.Next()
	if err != nil {
		return fmt.Errorf("allocating history sequence: %w", err)
	}

	err = s.badgerDB.Update(func(txn *badger.Txn) error {
		return txn.Set(entryKey(n), buf.Bytes())
	})
	if err != nil {
		return fmt.Errorf("writing history entry %s: %w", entry.ID, err)
	}

	if err := s.trim(); err != nil {
		s.config.Logger.WithField("id", entry.ID).Errorf("trimming history: %v", err)
	}
	return nil
}

// Recent returns up to n entries, newest first.
func (s *Store) Recent(n int) ([]lifecycle.HistoryEntry, error) {
	var entries []lifecycle.HistoryEntry

	err := s.badgerDB.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = keyPrefix

		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration starts past the prefix range.
		for it.Seek(append(keyPrefix, 0xff)); it.ValidForPrefix(keyPrefix) && len(entries) < n; it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var entry lifecycle.HistoryEntry
				if err := gob.NewDecoder(bytes.NewReader(val)).Decode(&entry); err != nil {
					return err
				}
				entries = append(entries, entry)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading history: %w", err)
	}
	return entries, nil
}

// trim deletes the oldest entries beyond the configured limit.
func (s *Store) trim() error {
	return s.badgerDB.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = keyPrefix
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		var keys [][]byte
		for it.Seek(keyPrefix); it.ValidForPrefix(keyPrefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}

		excess := len(keys) - s.config.Limit
		for i := 0; i < excess; i++ {
			if err := txn.Delete(keys[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close releases the sequence and the database.
func (s *Store) Close() error {
	if err := s.seq.Release(); err != nil {
		s.config.Logger.Errorf("releasing history sequence: %v", err)
	}
	return s.badgerDB.Close()
}

func entryKey(n uint64) []byte {
	key := make([]byte, len(keyPrefix)+8)
	copy(key, keyPrefix)
	binary.BigEndian.PutUint64(key[len(keyPrefix):], n)
	return key
}

var _ lifecycle.HistorySink = (*Store)(nil)
