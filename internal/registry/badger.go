package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v4"

	"fixengine/internal/config"
)

// sessionKeyPrefix namespaces session records in the shared badger
// keyspace, the same key-prefixing scheme pkg/metadata/_ref/clients.go
// uses to separate its own record kinds (prefixNSMClient,
// prefixNSMByMonName) within one database.
const sessionKeyPrefix = "session:"

func sessionKey(id string) []byte {
	return []byte(sessionKeyPrefix + id)
}

// badgerStore is the default embedded Store backend: one BadgerDB directory
// per engine process, JSON-encoded records, one key per session.
type badgerStore struct {
	db *badgerdb.DB
}

func openBadger(cfg config.RegistryConfig) (Store, error) {
	opts := badgerdb.DefaultOptions(cfg.Path).WithLogger(nil)
	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("registry: open badger at %s: %w", cfg.Path, err)
	}
	return &badgerStore{db: db}, nil
}

func (s *badgerStore) Put(_ context.Context, rec SessionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("registry: marshal session record: %w", err)
	}
	return s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(sessionKey(rec.SessionID), data)
	})
}

func (s *badgerStore) Get(_ context.Context, sessionID string) (SessionRecord, error) {
	var rec SessionRecord
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(sessionKey(sessionID))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		return SessionRecord{}, err
	}
	return rec, nil
}

func (s *badgerStore) List(_ context.Context) ([]SessionRecord, error) {
	var recs []SessionRecord
	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(sessionKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.ValidForPrefix(opts.Prefix); it.Next() {
			var rec SessionRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			recs = append(recs, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return recs, nil
}

func (s *badgerStore) Delete(_ context.Context, sessionID string) error {
	return s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete(sessionKey(sessionID))
	})
}

func (s *badgerStore) Healthcheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(txn *badgerdb.Txn) error {
		return nil
	})
}

func (s *badgerStore) Close() error {
	return s.db.Close()
}
