package nats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/NamazuStudios/elements-sub015/ports/directory"
)

type KvConfig struct {
	Connect Connector
	Bucket  string
	// TTL expires every key of the bucket; JetStream buckets have no per-key
	// expiry on Put.
	TTL time.Duration
}

// KvStore is a [directory.Store] on a JetStream key-value bucket.
type KvStore struct {
	kv      jetstream.KeyValue
	closeNc closeFunc
}

func NewKvStore(ctx context.Context, cfg KvConfig) (*KvStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("bucket is required")
	}
	if cfg.Connect == nil {
		cfg.Connect = ConnectDefault()
	}

	nc, closeNc, err := cfg.Connect()
	if err != nil {
		return nil, err
	}
	js, err := jetstream.New(nc)
	if err != nil {
		closeNc()
		return nil, err
	}
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:  cfg.Bucket,
		Storage: jetstream.MemoryStorage,
		TTL:     cfg.TTL,
	})
	if err != nil {
		closeNc()
		return nil, fmt.Errorf("nats: bucket %s: %w", cfg.Bucket, err)
	}
	return &KvStore{kv: kv, closeNc: closeNc}, nil
}

func (k *KvStore) Close() error {
	k.closeNc()
	return nil
}

func (k *KvStore) Put(ctx context.Context, key string, data []byte, _ directory.PutOptions) error {
	if _, err := k.kv.Put(ctx, key, data); err != nil {
		return fmt.Errorf("nats: put %s: %w", key, err)
	}
	return nil
}

func (k *KvStore) Get(ctx context.Context, key string) ([]byte, error) {
	e, err := k.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, directory.ErrNotFound
		}
		return nil, fmt.Errorf("nats: get %s: %w", key, err)
	}
	return e.Value(), nil
}

func (k *KvStore) Delete(ctx context.Context, key string) error {
	if err := k.kv.Purge(ctx, key); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("nats: delete %s: %w", key, err)
	}
	return nil
}

var _ directory.Store = (*KvStore)(nil)
