package node

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/NamazuStudios/elements-sub015/core/invoke"
	"github.com/NamazuStudios/elements-sub015/core/transport"
	"github.com/NamazuStudios/elements-sub015/core/wire"
)

type ClientOptions struct {
	// Socket is a dialed connection to a node or to a demultiplexer.
	Socket transport.Socket
	Codec  invoke.Codec
	// Destination, when set, routes every call through a demultiplexer to
	// that node.
	Destination uuid.UUID
}

// Outcome is one reply part. Exactly one of Result and Err is set.
type Outcome struct {
	Part   int
	Result *invoke.Result
	Err    *invoke.Error
}

// Reply collects the outcomes of one call.
type Reply struct {
	Sync  Outcome
	Async map[int]Outcome
}

// Value decodes the sync result into v, or returns the sync error.
func (r *Reply) Value(c invoke.PayloadReader, v any) error {
	if r.Sync.Err != nil {
		return r.Sync.Err
	}
	if v == nil || len(r.Sync.Result.Value) == 0 {
		return nil
	}
	return c.Read(r.Sync.Result.Value, v)
}

// Client performs invocations over a socket. Replies carry no call id, so
// calls on one client are serialized, and a call abandoned before all its
// replies arrived breaks the client: its socket is closed and later calls
// fail with ErrClientBroken.
type Client struct {
	mu     sync.Mutex
	sock   transport.Socket
	codec  invoke.Codec
	dest   uuid.UUID
	broken error
}

func NewClient(opts ClientOptions) *Client {
	if opts.Codec == nil {
		opts.Codec = invoke.JSON
	}
	return &Client{sock: opts.Socket, codec: opts.Codec, dest: opts.Destination}
}

func (c *Client) Codec() invoke.Codec { return c.codec }

// Call sends inv and waits for the sync reply plus additionalParts async
// parts, or for an async error that ends the async side early. A call
// routed to an unknown destination fails with ErrDestinationDead.
func (c *Client) Call(ctx context.Context, inv *invoke.Invocation, additionalParts int) (*Reply, error) {
	if additionalParts < 0 || additionalParts > MaxAdditionalParts {
		return nil, fmt.Errorf("%w: %d", ErrTooManyParts, additionalParts)
	}
	payload, err := c.codec.Write(inv)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.broken != nil {
		return nil, fmt.Errorf("%w: %w", ErrClientBroken, c.broken)
	}

	body := make([][]byte, 0, 3)
	if c.dest != uuid.Nil {
		body = append(body, wire.RoutingHeader{Status: wire.StatusContinue, Destination: c.dest}.Append(nil))
	}
	body = append(body, wire.RequestHeader{AdditionalParts: int32(additionalParts)}.Append(nil), payload)
	if err := c.sock.Send(ctx, wire.Join(nil, body...)); err != nil {
		return nil, err
	}

	reply, err := c.collect(ctx, additionalParts)
	if err != nil && !errors.Is(err, ErrDestinationDead) {
		c.broken = err
		_ = c.sock.Close()
	}
	return reply, err
}

func (c *Client) collect(ctx context.Context, additionalParts int) (*Reply, error) {
	reply := &Reply{Async: make(map[int]Outcome)}
	gotSync, asyncDone := false, additionalParts == 0
	for !gotSync || !asyncDone {
		var msg wire.Message
		select {
		case <-ctx.Done():
			return reply, ctx.Err()
		case <-c.sock.Done():
			return reply, c.sock.Err()
		case msg = <-c.sock.Recv():
		}

		out, err := c.decode(msg)
		if err != nil {
			return reply, err
		}
		switch {
		case out.Part == 0:
			reply.Sync, gotSync = out, true
		case out.Part <= additionalParts:
			reply.Async[out.Part] = out
			if out.Err != nil || len(reply.Async) == additionalParts {
				asyncDone = true
			}
		default:
			return reply, fmt.Errorf("%w: part %d of %d", ErrMalformedReply, out.Part, additionalParts)
		}
	}
	return reply, nil
}

func (c *Client) decode(msg wire.Message) (Outcome, error) {
	_, body, err := msg.Split()
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %w", ErrMalformedReply, err)
	}
	if c.dest != uuid.Nil {
		if len(body) == 0 {
			return Outcome{}, fmt.Errorf("%w: missing routing header", ErrMalformedReply)
		}
		var rh wire.RoutingHeader
		if err := rh.UnmarshalBinary(body[0]); err != nil {
			return Outcome{}, fmt.Errorf("%w: %w", ErrMalformedReply, err)
		}
		switch rh.Status {
		case wire.StatusDead:
			return Outcome{}, fmt.Errorf("%w: %s", ErrDestinationDead, rh.Destination)
		case wire.StatusContinue:
		default:
			return Outcome{}, fmt.Errorf("%w: %s", ErrUnexpectedStatus, rh.Status)
		}
		body = body[1:]
	}
	if len(body) != 2 {
		return Outcome{}, fmt.Errorf("%w: %d frames", ErrMalformedReply, len(body))
	}
	var h wire.ResponseHeader
	if err := h.UnmarshalBinary(body[0]); err != nil {
		return Outcome{}, fmt.Errorf("%w: %w", ErrMalformedReply, err)
	}

	out := Outcome{Part: int(h.Part)}
	switch h.Type {
	case wire.ResponseResult:
		out.Result = &invoke.Result{OK: true, Value: body[1]}
	case wire.ResponseError:
		e := new(invoke.Error)
		if err := c.codec.Read(body[1], e); err != nil {
			e = &invoke.Error{Type: invoke.KindCodec, Message: string(body[1])}
		}
		out.Err = e
	}
	return out, nil
}
