package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"slices"

	"go.uber.org/multierr"

	natsadapter "github.com/NamazuStudios/elements-sub015/adapters/nats"
	redisadapter "github.com/NamazuStudios/elements-sub015/adapters/redis"
	"github.com/NamazuStudios/elements-sub015/adapters/tcp"
	"github.com/NamazuStudios/elements-sub015/core/ids"
	"github.com/NamazuStudios/elements-sub015/core/transport"
	"github.com/NamazuStudios/elements-sub015/internal/config"
	"github.com/NamazuStudios/elements-sub015/ports/directory"
)

// stack is the network and directory a command runs on.
type stack struct {
	log       *slog.Logger
	network   transport.Network
	directory directory.Directory
	// addressFor picks node bind addresses on the network.
	addressFor func(ids.NodeID) string
	closers    []func() error
}

func newStack(ctx context.Context, cfg *config.Config, log *slog.Logger) (s *stack, err error) {
	s = &stack{log: log, addressFor: func(ids.NodeID) string { return "" }}
	defer func() {
		if err != nil {
			err = multierr.Append(err, s.Close())
		}
	}()

	// one connection for the transport and the directory
	var connect natsadapter.Connector
	natsConnector := func(url string) natsadapter.Connector {
		if connect == nil {
			if url == "" {
				connect = natsadapter.ReuseConnection(natsadapter.ConnectDefault())
			} else {
				connect = natsadapter.ReuseConnection(natsadapter.ConnectURL(url))
			}
		}
		return connect
	}

	switch cfg.Network.Kind {
	case config.NetworkMemory:
		s.network = transport.NewMemoryNetwork().WithLog(log)
	case config.NetworkTCP:
		s.network = tcp.NewNetwork(tcp.Options{Log: log, DialTimeout: cfg.Network.TCP.DialTimeout})
		host := cfg.Network.TCP.Host
		s.addressFor = func(ids.NodeID) string { return net.JoinHostPort(host, "0") }
	case config.NetworkNATS:
		n, err := natsadapter.NewNetwork(natsadapter.NetworkConfig{
			Connect:       natsConnector(cfg.Network.NATS.URL),
			Log:           log,
			SubjectPrefix: cfg.Network.NATS.SubjectPrefix,
		})
		if err != nil {
			return s, err
		}
		s.network = n
		s.addressFor = func(id ids.NodeID) string { return n.NodeSubject(id.String()) }
		s.closers = append(s.closers, n.Close)
	default:
		return s, fmt.Errorf("%w: network.kind %q", config.ErrInvalid, cfg.Network.Kind)
	}

	var store directory.Store
	switch cfg.Directory.Kind {
	case config.DirectoryMemory:
		store = directory.NewMemStore()
	case config.DirectoryRedis:
		r := redisadapter.New(redisadapter.Options{
			Addr:     cfg.Directory.Redis.Addr,
			DB:       cfg.Directory.Redis.DB,
			Password: cfg.Directory.Redis.Password,
			Prefix:   cfg.Directory.Redis.Prefix,
		})
		s.closers = append(s.closers, r.Close)
		if err := r.Ping(ctx); err != nil {
			return s, fmt.Errorf("redis %s: %w", cfg.Directory.Redis.Addr, err)
		}
		store = r
	case config.DirectoryNATS:
		url := cfg.Directory.NATS.URL
		if url == "" {
			url = cfg.Network.NATS.URL
		}
		kv, err := natsadapter.NewKvStore(ctx, natsadapter.KvConfig{
			Connect: natsConnector(url),
			Bucket:  cfg.Directory.NATS.Bucket,
			TTL:     cfg.Directory.TTL,
		})
		if err != nil {
			return s, err
		}
		s.closers = append(s.closers, kv.Close)
		store = kv
	default:
		return s, fmt.Errorf("%w: directory.kind %q", config.ErrInvalid, cfg.Directory.Kind)
	}
	s.directory = directory.NewStoreDirectory(directory.StoreDirectoryOpts{
		Log:    log,
		Store:  store,
		Prefix: cfg.Directory.Prefix,
		TTL:    cfg.Directory.TTL,
	})

	log.Info("stack ready",
		slog.String("network", cfg.Network.Kind),
		slog.String("directory", cfg.Directory.Kind),
	)
	return s, nil
}

// Close releases the stack in reverse order of acquisition.
func (s *stack) Close() error {
	var err error
	for _, c := range slices.Backward(s.closers) {
		err = multierr.Append(err, c())
	}
	s.closers = nil
	return err
}
