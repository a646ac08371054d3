package cache

import (
	"context"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/ristretto"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/krptodr/ravendb/client"
	"github.com/krptodr/ravendb/topology"
)

const badgerKeyPrefix = "topology/"

type BadgerStoreOptions struct {
	Logger *zap.Logger

	// Dir is the badger data directory.  It is ignored when InMemory is set.
	Dir      string
	InMemory bool
}

// BadgerStore keeps topologies in an embedded badger database, with a small
// read cache in front of it.
type BadgerStore struct {
	logger    *zap.Logger
	db        *badger.DB
	readCache *ristretto.Cache

	// lock orders read-cache fills against invalidations
	lock sync.RWMutex
}

var _ client.TopologyCache = (*BadgerStore)(nil)

func NewBadgerStore(opts *BadgerStoreOptions) (*BadgerStore, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	dbOpts := badger.DefaultOptions(opts.Dir).
		WithLogger(nil).
		WithLoggingLevel(badger.ERROR)
	if opts.InMemory {
		dbOpts = badger.DefaultOptions("").
			WithInMemory(true).
			WithLogger(nil)
	}

	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open badger db")
	}

	readCache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e4,
		MaxCost:     4 << 20,
		BufferItems: 64,
	})
	if err != nil {
		// the read cache is optional
		logger.Warn("failed to create topology read cache", zap.Error(err))
		readCache = nil
	}

	return &BadgerStore{
		logger:    logger,
		db:        db,
		readCache: readCache,
	}, nil
}

func (s *BadgerStore) Load(ctx context.Context, key string) ([]*topology.Node, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	if s.readCache != nil {
		if cached, ok := s.readCache.Get(key); ok {
			return decodeNodes(cached.([]byte))
		}
	}

	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(badgerKeyPrefix + key))
		if err != nil {
			return err
		}

		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, errors.Wrap(err, "failed to read cached topology")
	}

	if s.readCache != nil {
		s.readCache.Set(key, data, int64(len(data)))
	}

	return decodeNodes(data)
}

func (s *BadgerStore) Save(ctx context.Context, key string, nodes []*topology.Node) error {
	data, err := encodeNodes(key, nodes)
	if err != nil {
		return err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(badgerKeyPrefix+key), data)
	})
	if err != nil {
		return errors.Wrap(err, "failed to write cached topology")
	}

	if s.readCache != nil {
		s.readCache.Del(key)
	}

	return nil
}

func (s *BadgerStore) Close() error {
	if s.readCache != nil {
		s.readCache.Close()
	}
	return s.db.Close()
}
