package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/NamazuStudios/elements-sub015/core/ids"
	"github.com/NamazuStudios/elements-sub015/core/invoke"
	"github.com/NamazuStudios/elements-sub015/core/node"
	"github.com/NamazuStudios/elements-sub015/core/transport"
	"github.com/NamazuStudios/elements-sub015/internal/config"
	"github.com/NamazuStudios/elements-sub015/internal/hrw"
)

var (
	errNoDestination = errors.New("one of --dest or --app is required")
	errNoInstance    = errors.New("--app requires --instance")
)

type callFlags struct {
	addr      string
	dest      string
	instances []string
	key       string
	app       string
	typ       string
	name      string
	method    string
	params    []string
	args      string
	parts     int
	timeout   time.Duration
}

var call callFlags

var callCmd = &cobra.Command{
	Use:   "call",
	Short: "Send one invocation through a demultiplexer",
	Long: `Send one invocation to a node through the demultiplexer at --addr and
print the sync reply and any async parts as JSON.

The destination node is --dest, or the node of --app on --instance. Given
several instances, the one owning --key by rendezvous hashing is used.
Arguments are a JSON array, one element per method parameter.

Examples:
  clstr-worker call --addr 127.0.0.1:7400 --instance $ID --app echo \
    --type Echo --method Say --args '["hello"]'

  clstr-worker call --addr 127.0.0.1:7400 --dest $NODE \
    --type Echo --method Count --args '[3]' --parts 3`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), call.timeout)
		defer cancel()
		return runCall(ctx, cfg, log, call, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(callCmd)

	f := callCmd.Flags()
	f.StringVar(&call.addr, "addr", "", "Demultiplexer frontend address (defaults to demux.address)")
	f.StringVar(&call.dest, "dest", "", "Destination node id")
	f.StringSliceVar(&call.instances, "instance", nil, "Instance ids, used with --app; with several, --key picks one")
	f.StringVar(&call.key, "key", "", "Key placed on one of several instances by rendezvous hashing")
	f.StringVar(&call.app, "app", "", "Application name, used with --instance")
	f.StringVar(&call.typ, "type", "", "Target type")
	f.StringVar(&call.name, "name", "", "Target name; empty selects the default target")
	f.StringVar(&call.method, "method", "", "Method name")
	f.StringSliceVar(&call.params, "params", nil, "Parameter type signature (comma-separated)")
	f.StringVar(&call.args, "args", "[]", "Arguments as a JSON array")
	f.IntVar(&call.parts, "parts", 0, "Number of async parts to wait for")
	f.DurationVar(&call.timeout, "timeout", 10*time.Second, "Overall call timeout")
	_ = callCmd.MarkFlagRequired("type")
	_ = callCmd.MarkFlagRequired("method")
}

func (f callFlags) destination() (uuid.UUID, error) {
	if f.dest != "" {
		id, err := ids.ParseNodeID(f.dest)
		if err != nil {
			return uuid.Nil, fmt.Errorf("--dest: %w", err)
		}
		return id.UUID(), nil
	}
	if f.app == "" {
		return uuid.Nil, errNoDestination
	}
	instances := make([]ids.InstanceID, 0, len(f.instances))
	for _, s := range f.instances {
		id, err := ids.ParseInstanceID(s)
		if err != nil {
			return uuid.Nil, fmt.Errorf("--instance: %w", err)
		}
		instances = append(instances, id)
	}
	instance, ok := hrw.Best(f.key, instances, f.app)
	if !ok {
		return uuid.Nil, errNoInstance
	}
	return ids.NodeFor(instance, ids.ApplicationFromName(f.app)).UUID(), nil
}

func (f callFlags) invocation() (*invoke.Invocation, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(f.args), &raw); err != nil {
		return nil, fmt.Errorf("--args: %w", err)
	}
	inv := &invoke.Invocation{Type: f.typ, Name: f.name, Method: f.method, Parameters: f.params}
	for _, a := range raw {
		inv.Arguments = append(inv.Arguments, a)
	}
	return inv, nil
}

type printedOutcome struct {
	Part  int             `json:"part"`
	Value json.RawMessage `json:"value,omitempty"`
	Error *invoke.Error   `json:"error,omitempty"`
}

func printable(o node.Outcome) printedOutcome {
	p := printedOutcome{Part: o.Part, Error: o.Err}
	if o.Result != nil && len(o.Result.Value) > 0 {
		p.Value = o.Result.Value
	}
	return p
}

func runCall(ctx context.Context, cfg *config.Config, log *slog.Logger, f callFlags, out io.Writer) error {
	if f.addr == "" {
		f.addr = cfg.Demux.Address
	}
	s, err := newStack(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	return callVia(ctx, s.network, log, f, out)
}

// callVia dials the demultiplexer at f.addr on network, sends the
// invocation and prints the reply to out.
func callVia(ctx context.Context, network transport.Network, log *slog.Logger, f callFlags, out io.Writer) error {
	dest, err := f.destination()
	if err != nil {
		return err
	}
	inv, err := f.invocation()
	if err != nil {
		return err
	}

	sock, err := network.Dial(ctx, f.addr)
	if err != nil {
		return err
	}
	defer func() { _ = sock.Close() }()

	reply, err := node.NewClient(node.ClientOptions{Socket: sock, Destination: dest}).Call(ctx, inv, f.parts)
	if err != nil {
		return err
	}

	result := struct {
		Sync  printedOutcome   `json:"sync"`
		Async []printedOutcome `json:"async,omitempty"`
	}{Sync: printable(reply.Sync)}
	for part := 1; part <= f.parts; part++ {
		if o, ok := reply.Async[part]; ok {
			result.Async = append(result.Async, printable(o))
		}
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return err
	}
	if reply.Sync.Err != nil {
		log.Warn("call failed", slog.String("invocation", inv.String()), slog.Any("error", reply.Sync.Err))
	}
	return nil
}
