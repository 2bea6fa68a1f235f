package integration

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	natsadapter "github.com/NamazuStudios/elements-sub015/adapters/nats"
	"github.com/NamazuStudios/elements-sub015/adapters/tcp"
	"github.com/NamazuStudios/elements-sub015/core/demux"
	"github.com/NamazuStudios/elements-sub015/core/ids"
	"github.com/NamazuStudios/elements-sub015/core/invoke"
	"github.com/NamazuStudios/elements-sub015/core/node"
	"github.com/NamazuStudios/elements-sub015/core/transport"
	"github.com/NamazuStudios/elements-sub015/core/worker"
	"github.com/NamazuStudios/elements-sub015/ports/directory"
)

type greeter struct {
	instance ids.InstanceID
	healthy  atomic.Bool
}

func (g *greeter) CheckHealth(context.Context) error {
	if !g.healthy.Load() {
		return errors.New("greeter is sick")
	}
	return nil
}

func greeterRegistry() *invoke.Registry {
	reg := invoke.NewRegistry()
	reg.MustRegister(invoke.TypeDescriptor{
		Name: "Greeter",
		Methods: []invoke.Method{
			invoke.Func1("Greet", func(_ context.Context, g *greeter, name string) (string, error) {
				return "hello " + name + " from " + g.instance.String(), nil
			}),
		},
	})
	return reg
}

// instance is one running worker plus the greeter targets its factory made.
type instance struct {
	w *worker.Worker

	mu       sync.Mutex
	greeters map[ids.ApplicationID]*greeter
	created  map[ids.ApplicationID]int
}

func (i *instance) greeter(app ids.ApplicationID) *greeter {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.greeters[app]
}

func (i *instance) createdCount(app ids.ApplicationID) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.created[app]
}

type cluster struct {
	network   transport.Network
	directory *directory.StoreDirectory
	bindings  *node.NetworkBindingService
	demux     *demux.Demultiplexer
}

// newCluster runs a demux on network. addressFor, if set, picks the bind
// address of every node.
func newCluster(t *testing.T, network transport.Network, addressFor func(ids.NodeID) string) *cluster {
	t.Helper()
	slog.SetLogLoggerLevel(slog.LevelDebug)

	c := &cluster{network: network, directory: directory.NewMemory()}
	c.bindings = node.NewNetworkBindingService(node.NetworkBindingServiceOpts{
		Network:    network,
		Directory:  c.directory,
		AddressFor: addressFor,
	})
	c.demux = demux.New(demux.Options{Network: network, Directory: c.directory})
	require.NoError(t, c.demux.Start(t.Context()))
	t.Cleanup(func() { require.NoError(t, c.demux.Close()) })
	return c
}

var apps = []ids.ApplicationID{ids.ApplicationFromName("greeter-a"), ids.ApplicationFromName("greeter-b")}

func (c *cluster) startInstance(t *testing.T) *instance {
	t.Helper()
	inst := &instance{greeters: make(map[ids.ApplicationID]*greeter), created: make(map[ids.ApplicationID]int)}
	id := ids.NewInstanceID()

	w, err := worker.New(t.Context(), worker.Options{
		Instance:     id,
		Applications: apps,
		Bindings:     c.bindings,
		Factory: func(_ context.Context, app ids.ApplicationID) (*node.Node, error) {
			g := &greeter{instance: id}
			g.healthy.Store(true)
			inst.mu.Lock()
			inst.greeters[app] = g
			inst.created[app]++
			inst.mu.Unlock()
			return node.New(node.Options{
				Instance:     id,
				Application:  app,
				Registry:     greeterRegistry(),
				Container:    invoke.NewContainer().Bind("Greeter", "", g),
				DrainTimeout: time.Second,
			}), nil
		},
	})
	require.NoError(t, err)
	inst.w = w

	ctx, cancel := context.WithCancel(context.WithoutCancel(t.Context()))
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, 20*time.Millisecond) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})

	require.Eventually(t, func() bool {
		a := w.Accessor()
		defer a.Close()
		return len(a.Bindings()) == len(apps)+1
	}, 5*time.Second, 10*time.Millisecond)
	return inst
}

// call sends one greeting through the demux on a fresh socket.
func (c *cluster) call(ctx context.Context, dest ids.NodeID, name string) (string, error) {
	sock, err := c.network.Dial(ctx, c.demux.Addr())
	if err != nil {
		return "", err
	}
	defer func() { _ = sock.Close() }()

	args, err := invoke.EncodeArgs(invoke.JSON, name)
	if err != nil {
		return "", err
	}
	client := node.NewClient(node.ClientOptions{Socket: sock, Destination: dest.UUID()})
	reply, err := client.Call(ctx, &invoke.Invocation{Type: "Greeter", Method: "Greet", Arguments: args}, 0)
	if err != nil {
		return "", err
	}
	var s string
	return s, reply.Value(client.Codec(), &s)
}

func (c *cluster) mustCall(t *testing.T, dest ids.NodeID, name string) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()
	s, err := c.call(ctx, dest, name)
	require.NoError(t, err)
	return s
}

func testCluster(t *testing.T, network transport.Network, addressFor func(ids.NodeID) string) {
	c := newCluster(t, network, addressFor)
	i1 := c.startInstance(t)
	i2 := c.startInstance(t)

	t.Run("routes to every node of every instance", func(t *testing.T) {
		for _, inst := range []*instance{i1, i2} {
			for _, app := range apps {
				dest := ids.NodeFor(inst.w.Instance(), app)
				require.Equal(t, "hello bob from "+inst.w.Instance().String(), c.mustCall(t, dest, "bob"))
			}
		}
	})

	t.Run("unknown destination is dead", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
		defer cancel()
		_, err := c.call(ctx, ids.NodeID(uuid.New()), "bob")
		require.ErrorIs(t, err, node.ErrDestinationDead)
	})

	t.Run("watchdog restarts an unhealthy node", func(t *testing.T) {
		app := apps[0]
		dest := ids.NodeFor(i1.w.Instance(), app)
		i1.greeter(app).healthy.Store(false)

		require.Eventually(t, func() bool { return i1.createdCount(app) == 2 }, 5*time.Second, 10*time.Millisecond)
		require.Eventually(t, func() bool {
			ctx, cancel := context.WithTimeout(t.Context(), 200*time.Millisecond)
			defer cancel()
			_, err := c.call(ctx, dest, "alice")
			return err == nil
		}, 5*time.Second, 20*time.Millisecond)
		require.Equal(t, 1, i2.createdCount(app))
	})

	t.Run("removed node becomes dead", func(t *testing.T) {
		app := apps[1]
		dest := ids.NodeFor(i2.w.Instance(), app)

		m := i2.w.Mutator()
		require.NoError(t, m.RemoveNode(app))
		require.NoError(t, m.Commit(t.Context()))
		m.Close()

		require.Eventually(t, func() bool {
			ctx, cancel := context.WithTimeout(t.Context(), 200*time.Millisecond)
			defer cancel()
			_, err := c.call(ctx, dest, "carol")
			return errors.Is(err, node.ErrDestinationDead)
		}, 5*time.Second, 20*time.Millisecond)

		// the other instance keeps serving the application
		c.mustCall(t, ids.NodeFor(i1.w.Instance(), app), "carol")
	})

	t.Run("instance service over the demux", func(t *testing.T) {
		sock, err := c.network.Dial(t.Context(), c.demux.Addr())
		require.NoError(t, err)
		defer func() { _ = sock.Close() }()

		client := node.NewClient(node.ClientOptions{Socket: sock, Destination: i1.w.Master().ID().UUID()})
		reply, err := client.Call(t.Context(), &invoke.Invocation{Type: worker.InstanceServiceType, Method: "Describe"}, 0)
		require.NoError(t, err)
		var info worker.InstanceInfo
		require.NoError(t, reply.Value(client.Codec(), &info))
		require.Equal(t, i1.w.Instance(), info.Instance)
		require.Len(t, info.Nodes, len(apps))
	})
}

func TestCluster_Memory(t *testing.T) {
	net := transport.NewMemoryNetwork()
	t.Cleanup(func() { _ = net.Close() })
	testCluster(t, net, nil)
}

func TestCluster_TCP(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping tcp cluster in short mode")
	}
	testCluster(t, tcp.NewNetwork(tcp.Options{}), nil)
}

func TestCluster_NATS(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping nats cluster in short mode")
	}
	net, err := natsadapter.NewNetwork(natsadapter.NetworkConfig{Connect: natsadapter.NewTestContainer(t)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = net.Close() })

	// restarted nodes come back on the subject of their id
	testCluster(t, net, func(id ids.NodeID) string { return net.NodeSubject(id.String()) })
}
