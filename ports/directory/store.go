package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/NamazuStudios/elements-sub015/core/ids"
)

type PutOptions struct {
	// TTL expires the entry; zero keeps it until deleted. Stores that
	// cannot expire single keys ignore it.
	TTL time.Duration
}

// Store is the key-value backend of a [StoreDirectory]. Get returns
// ErrNotFound for missing keys.
type Store interface {
	Put(ctx context.Context, key string, data []byte, opts PutOptions) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

type StoreDirectoryOpts struct {
	Log    *slog.Logger
	Store  Store
	Prefix string
	TTL    time.Duration
	Now    func() time.Time
}

// StoreDirectory keeps JSON-encoded [Record]s in a [Store].
type StoreDirectory struct {
	log    *slog.Logger
	store  Store
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

func NewStoreDirectory(opts StoreDirectoryOpts) *StoreDirectory {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.Store == nil {
		opts.Store = NewMemStore()
	}
	if opts.Prefix == "" {
		opts.Prefix = "nodes."
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &StoreDirectory{
		log:    opts.Log.With(slog.String("directory", opts.Prefix)),
		store:  opts.Store,
		prefix: opts.Prefix,
		ttl:    opts.TTL,
		now:    opts.Now,
	}
}

func (d *StoreDirectory) key(id ids.NodeID) string { return d.prefix + id.String() }

func (d *StoreDirectory) Register(ctx context.Context, id ids.NodeID, addr string) error {
	data, err := json.Marshal(Record{NodeID: id, Address: addr, RegisteredAt: d.now().UTC()})
	if err != nil {
		return err
	}
	if err := d.store.Put(ctx, d.key(id), data, PutOptions{TTL: d.ttl}); err != nil {
		return fmt.Errorf("register %s: %w", id, err)
	}
	d.log.Debug("registered", slog.String("node", id.String()), slog.String("addr", addr))
	return nil
}

func (d *StoreDirectory) Lookup(ctx context.Context, id ids.NodeID) (string, error) {
	rec, err := d.Record(ctx, id)
	if err != nil {
		return "", err
	}
	return rec.Address, nil
}

// Record returns the full record of id.
func (d *StoreDirectory) Record(ctx context.Context, id ids.NodeID) (rec Record, err error) {
	data, err := d.store.Get(ctx, d.key(id))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return rec, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return rec, fmt.Errorf("lookup %s: %w", id, err)
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("lookup %s: %w", id, err)
	}
	return rec, nil
}

func (d *StoreDirectory) Deregister(ctx context.Context, id ids.NodeID) error {
	if err := d.store.Delete(ctx, d.key(id)); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("deregister %s: %w", id, err)
	}
	d.log.Debug("deregistered", slog.String("node", id.String()))
	return nil
}

var _ Directory = (*StoreDirectory)(nil)
