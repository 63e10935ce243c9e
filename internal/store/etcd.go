package store

import (
	"context"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// DefaultEtcdKey is the fixed key the panel document lives under. The prefix
// leaves room for other tenants on a shared cluster.
const DefaultEtcdKey = "/heatedroof/v1/panel"

const (
	etcdDialTimeout = 5 * time.Second
	etcdOpTimeout   = 5 * time.Second
)

// EtcdStore keeps the document in an etcd cluster. Reads and writes are
// linearizable, so replicas sharing the cluster always observe the latest
// saved document.
type EtcdStore struct {
	client *clientv3.Client
	key    string
}

// NewEtcdStore dials the cluster at endpoints and stores the document under
// key (DefaultEtcdKey when empty). The caller must call Close when finished.
func NewEtcdStore(endpoints []string, key string) (*EtcdStore, error) {
	if key == "" {
		key = DefaultEtcdKey
	}
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: etcdDialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("etcd dial: %w", err)
	}
	return &EtcdStore{client: client, key: key}, nil
}

// Load fetches the document key.
func (s *EtcdStore) Load(ctx context.Context) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, etcdOpTimeout)
	defer cancel()
	resp, err := s.client.Get(ctx, s.key)
	if err != nil {
		return nil, false, fmt.Errorf("etcd get %q: %w", s.key, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, false, nil
	}
	return resp.Kvs[0].Value, true, nil
}

// Save overwrites the document key.
func (s *EtcdStore) Save(ctx context.Context, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, etcdOpTimeout)
	defer cancel()
	if _, err := s.client.Put(ctx, s.key, string(data)); err != nil {
		return fmt.Errorf("etcd put %q: %w", s.key, err)
	}
	return nil
}

// Close releases the underlying etcd client connection.
func (s *EtcdStore) Close() error {
	return s.client.Close()
}
