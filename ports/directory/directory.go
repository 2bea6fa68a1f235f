// Package directory is the port through which routers learn where a node
// can be reached.
//
// A [Directory] maps NodeIDs to transport addresses. Nodes register when
// their binding is opened and deregister when it is closed; the
// demultiplexer looks destinations up before dialing them. Backends are
// pluggable through [Store]: [MemStore] in process, or the NATS KV and
// Redis stores in adapters/.
package directory

import (
	"context"
	"errors"
	"time"

	"github.com/NamazuStudios/elements-sub015/core/ids"
)

var (
	ErrNotFound = errors.New("not found")
)

// Record is what a directory stores per node.
type Record struct {
	NodeID       ids.NodeID `json:"node_id"`
	Address      string     `json:"address"`
	RegisteredAt time.Time  `json:"registered_at"`
}

type Directory interface {
	Register(ctx context.Context, id ids.NodeID, addr string) error
	// Lookup returns the address of id, or ErrNotFound.
	Lookup(ctx context.Context, id ids.NodeID) (string, error)
	Deregister(ctx context.Context, id ids.NodeID) error
}
