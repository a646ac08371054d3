package cache

import (
	"context"

	"github.com/pkg/errors"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/krptodr/ravendb/client"
	"github.com/krptodr/ravendb/topology"
)

const defaultEtcdKeyPrefix = "/ravendb/topology/"

type EtcdStoreOptions struct {
	EtcdClient *clientv3.Client
	KeyPrefix  string
}

// EtcdStore shares cached topologies between processes through etcd.
type EtcdStore struct {
	etcdClient *clientv3.Client
	keyPrefix  string
}

var _ client.TopologyCache = (*EtcdStore)(nil)

func NewEtcdStore(opts EtcdStoreOptions) (*EtcdStore, error) {
	if opts.EtcdClient == nil {
		return nil, errors.New("an etcd client must be specified")
	}

	keyPrefix := opts.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = defaultEtcdKeyPrefix
	}

	return &EtcdStore{
		etcdClient: opts.EtcdClient,
		keyPrefix:  keyPrefix,
	}, nil
}

func (s *EtcdStore) Load(ctx context.Context, key string) ([]*topology.Node, error) {
	resp, err := s.etcdClient.Get(ctx, s.keyPrefix+key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read cached topology from etcd")
	}

	if len(resp.Kvs) == 0 {
		return nil, nil
	}

	return decodeNodes(resp.Kvs[0].Value)
}

func (s *EtcdStore) Save(ctx context.Context, key string, nodes []*topology.Node) error {
	data, err := encodeNodes(key, nodes)
	if err != nil {
		return err
	}

	_, err = s.etcdClient.Put(ctx, s.keyPrefix+key, string(data))
	if err != nil {
		return errors.Wrap(err, "failed to write cached topology to etcd")
	}

	return nil
}
