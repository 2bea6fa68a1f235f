package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/NamazuStudios/elements-sub015/adapters/nats"
	"github.com/NamazuStudios/elements-sub015/adapters/tcp"
	"github.com/NamazuStudios/elements-sub015/core/demux"
	"github.com/NamazuStudios/elements-sub015/core/ids"
	"github.com/NamazuStudios/elements-sub015/core/invoke"
	"github.com/NamazuStudios/elements-sub015/core/node"
	"github.com/NamazuStudios/elements-sub015/core/transport"
	"github.com/NamazuStudios/elements-sub015/core/worker"
	"github.com/NamazuStudios/elements-sub015/ports/directory"
)

// === Config ===

// NOTE: BACKEND=nats starts a nats container unless NATS_URL is set.

var (
	logLevel    = slog.LevelInfo
	N           = getEnvInt("N", 50_000)
	batchSize   = getEnvInt("B", 1_000)
	concurrency = getEnvInt("C", 16)
	numApps     = getEnvInt("APPS", 4)
	backendType = getEnv("BACKEND", "mem")
	asyncParts  = getEnvInt("PARTS", 0)
	useDemux    = getEnvBool("DEMUX", true)
)

func getEnvBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	return v == "1" || strings.ToLower(v) == "true"
}

func getEnv(key, fallback string) string {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v, err := strconv.Atoi(getEnv(key, fmt.Sprintf("%d", fallback)))
	if err != nil {
		return fallback
	}
	return v
}

// === Application ===

type pinger struct{}

func pingRegistry() *invoke.Registry {
	reg := invoke.NewRegistry()
	reg.MustRegister(invoke.TypeDescriptor{
		Name: "Pinger",
		Methods: []invoke.Method{
			invoke.Func1("Ping", func(_ context.Context, _ *pinger, seq int) (int, error) { return seq, nil }),
			invoke.Func1("Burst", func(ctx context.Context, _ *pinger, n int) (invoke.Stream, error) {
				ch := make(chan invoke.Emission)
				go func() {
					defer close(ch)
					for i := 0; i < n; i++ {
						select {
						case ch <- invoke.Emission{Value: i}:
						case <-ctx.Done():
							return
						}
					}
				}()
				return ch, nil
			}),
		},
	})
	return reg
}

func main() {
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))

	fmt.Printf("Backend:     %s\n", backendType)
	fmt.Printf("Demux:       %s\n", strconv.FormatBool(useDemux))
	fmt.Printf("Concurrency: %d\n", concurrency)

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	lt := &natsTesting{ctx: ctx, log: log}
	defer lt.doCleanup()

	network := createNetwork(log, lt)
	dir := directory.NewMemory()

	// === worker ===

	instance := ids.NewInstanceID()
	apps := make([]ids.ApplicationID, numApps)
	for i := range apps {
		apps[i] = ids.ApplicationFromName(fmt.Sprintf("pinger-%d", i))
	}
	registry := pingRegistry()
	w, err := worker.New(ctx, worker.Options{
		Log:          log,
		Instance:     instance,
		Applications: apps,
		Bindings:     node.NewNetworkBindingService(node.NetworkBindingServiceOpts{Log: log, Network: network, Directory: dir}),
		Factory: func(_ context.Context, app ids.ApplicationID) (*node.Node, error) {
			return node.New(node.Options{
				Log:         log,
				Instance:    instance,
				Application: app,
				Registry:    registry,
				Container:   invoke.NewContainer().Bind("Pinger", "", &pinger{}),
			}), nil
		},
	})
	checkErr(err)
	checkErr(w.PostStart(ctx))
	defer func() { checkErr(w.PreClose(context.Background())) }()

	var d *demux.Demultiplexer
	if useDemux {
		d = demux.New(demux.Options{Log: log, Network: network, Directory: dir})
		checkErr(d.Start(ctx))
		defer func() { checkErr(d.Close()) }()
	}

	// === clients ===

	clients := make([]*node.Client, concurrency)
	for i := range clients {
		app := apps[i%len(apps)]
		dest := ids.NodeFor(instance, app)
		var sock transport.Socket
		if useDemux {
			sock, err = network.Dial(ctx, d.Addr())
		} else {
			var addr string
			addr, err = dir.Lookup(ctx, dest)
			checkErr(err)
			sock, err = network.Dial(ctx, addr)
		}
		checkErr(err)
		defer func() { _ = sock.Close() }()

		opts := node.ClientOptions{Socket: sock}
		if useDemux {
			opts.Destination = dest.UUID()
		}
		clients[i] = node.NewClient(opts)
	}

	// === START ===

	log.Info("==================================")
	log.Info("Starting ...")

	var (
		startAt  = time.Now()
		next     atomic.Int64
		failures atomic.Int64
		mu       sync.Mutex
		lastTime = time.Now()
		wg       sync.WaitGroup
	)
	for _, c := range clients {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(next.Add(1))
				if i > N {
					return
				}
				if err := call(ctx, c, i); err != nil {
					failures.Add(1)
					log.Warn("call failed", slog.Int("seq", i), slog.Any("error", err))
				}
				if i%100 == 0 {
					print(".")
				}
				if i%batchSize == 0 {
					mu.Lock()
					mem := getMemUsage()
					n := time.Now()
					took := n.Sub(lastTime)
					fmt.Printf(" | %5d calls | %6d ms |  %6d calls/s | (%d / %d) MiB mem (sys) |\n", batchSize, took.Milliseconds(), int(float64(batchSize)/took.Seconds()), mem.Alloc/1024/1024, mem.Sys/1024/1024)
					lastTime = n
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	// === stats ===
	println("")
	println("==========================================")

	doneAt := time.Now()
	took := doneAt.Sub(startAt)
	runtime.GC()

	fmt.Printf("total runtime: %.3f seconds\n", took.Seconds())
	fmt.Printf("        calls: %d\n", N)
	fmt.Printf("     failures: %d\n", failures.Load())
	fmt.Printf(" avg. calls/s: %d\n", int(float64(N)/took.Seconds()))
}

func call(ctx context.Context, c *node.Client, seq int) error {
	method, arg := "Ping", seq
	if asyncParts > 0 {
		method, arg = "Burst", asyncParts
	}
	args, err := invoke.EncodeArgs(c.Codec(), arg)
	if err != nil {
		return err
	}
	reply, err := c.Call(ctx, &invoke.Invocation{Type: "Pinger", Method: method, Arguments: args}, asyncParts)
	if err != nil {
		return err
	}
	if reply.Sync.Err != nil {
		return reply.Sync.Err
	}
	if asyncParts > 0 {
		return nil
	}
	var got int
	if err := reply.Value(c.Codec(), &got); err != nil {
		return err
	}
	if got != seq {
		return fmt.Errorf("ping %d answered %d", seq, got)
	}
	return nil
}

// === stats helpers ===

type MemUsage struct {
	Alloc      uint64 // bytes allocated and not yet freed (heap)
	TotalAlloc uint64 // cumulative bytes allocated
	Sys        uint64 // total bytes obtained from OS
	NumGC      uint32 // gc cycles
}

func getMemUsage() MemUsage {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return MemUsage{
		Alloc:      m.Alloc,
		TotalAlloc: m.TotalAlloc,
		Sys:        m.Sys,
		NumGC:      m.NumGC,
	}
}

// === Network ===

func createNetwork(log *slog.Logger, lt *natsTesting) transport.Network {
	switch backendType {
	case "tcp":
		return tcp.NewNetwork(tcp.Options{Log: log})
	case "nats":
		connect := nats.ConnectDefault()
		if os.Getenv("NATS_URL") == "" {
			connect = nats.NewTestContainer(lt)
		}
		n, err := nats.NewNetwork(nats.NetworkConfig{Log: log, Connect: connect, SubjectPrefix: "clstr.loadtest"})
		checkErr(err)
		lt.Cleanup(func() { _ = n.Close() })
		return n
	default:
		return transport.NewMemoryNetwork().WithLog(log)
	}
}

// === Helpers ===

func checkErr(err error) {
	if err != nil {
		panic(err)
	}
}

// === Testing Helper ===

type natsTesting struct {
	ctx      context.Context
	log      *slog.Logger
	cleanups []func()
}

func (l *natsTesting) Errorf(format string, args ...interface{}) {
	l.log.Error("LOADTEST :: " + fmt.Sprintf(format, args...))
}
func (l *natsTesting) FailNow()                 { panic("loadtest setup failed") }
func (l *natsTesting) Context() context.Context { return l.ctx }
func (l *natsTesting) Logf(format string, args ...any) {
	l.log.Info("LOADTEST :: " + fmt.Sprintf(format, args...))
}
func (l *natsTesting) Cleanup(f func()) { l.cleanups = append(l.cleanups, f) }

func (l *natsTesting) doCleanup() {
	for i := len(l.cleanups) - 1; i >= 0; i-- {
		l.cleanups[i]()
	}
}
