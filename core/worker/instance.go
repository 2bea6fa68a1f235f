package worker

import (
	"context"

	"github.com/NamazuStudios/elements-sub015/core/ids"
	"github.com/NamazuStudios/elements-sub015/core/invoke"
	"github.com/NamazuStudios/elements-sub015/core/node"
)

// InstanceServiceType is the type name the master node serves the
// instance service under.
const InstanceServiceType = "Instance"

type NodeInfo struct {
	Name        string            `json:"name"`
	Application ids.ApplicationID `json:"application"`
	NodeID      ids.NodeID        `json:"node_id"`
	Phase       node.Phase        `json:"phase"`
	State       string            `json:"state"`
	Address     string            `json:"address,omitempty"`
}

type InstanceInfo struct {
	Instance ids.InstanceID `json:"instance"`
	Master   NodeInfo       `json:"master"`
	Nodes    []NodeInfo     `json:"nodes"`
}

// InstanceService exposes the worker's node set remotely through the
// master node.
type InstanceService struct {
	w *Worker
}

func NewInstanceService(w *Worker) *InstanceService { return &InstanceService{w: w} }

func nodeInfo(ctx context.Context, n *node.Node) NodeInfo {
	info := NodeInfo{
		Name:        n.Name(),
		Application: n.Application(),
		NodeID:      n.ID(),
		Phase:       n.Phase(),
		State:       n.State(ctx).String(),
	}
	if b := n.Binding(); b != nil {
		info.Address = b.Address
	}
	return info
}

// Describe lists the master and the application nodes.
func (s *InstanceService) Describe(ctx context.Context) (InstanceInfo, error) {
	a := s.w.Accessor()
	defer a.Close()

	info := InstanceInfo{Instance: s.w.instance, Master: nodeInfo(ctx, a.Master())}
	for _, n := range a.Nodes() {
		info.Nodes = append(info.Nodes, nodeInfo(ctx, n))
	}
	return info, nil
}

func (s *InstanceService) mutate(ctx context.Context, stage func(*Mutator) error) error {
	m := s.w.Mutator()
	defer m.Close()
	if err := stage(m); err != nil {
		return err
	}
	return m.Commit(ctx)
}

func (s *InstanceService) AddNode(ctx context.Context, app ids.ApplicationID) error {
	return s.mutate(ctx, func(m *Mutator) error { return m.AddNode(app) })
}

func (s *InstanceService) RemoveNode(ctx context.Context, app ids.ApplicationID) error {
	return s.mutate(ctx, func(m *Mutator) error { return m.RemoveNode(app) })
}

func (s *InstanceService) RestartNode(ctx context.Context, app ids.ApplicationID) error {
	return s.mutate(ctx, func(m *Mutator) error { return m.RestartNode(app) })
}

// InstanceRegistry describes [InstanceService] for the master node.
func InstanceRegistry() *invoke.Registry {
	reg := invoke.NewRegistry()
	reg.MustRegister(invoke.TypeDescriptor{
		Name: InstanceServiceType,
		Methods: []invoke.Method{
			invoke.Func0("Describe", func(ctx context.Context, s *InstanceService) (InstanceInfo, error) {
				return s.Describe(ctx)
			}),
			invoke.Proc1("AddNode", func(ctx context.Context, s *InstanceService, app ids.ApplicationID) error {
				return s.AddNode(ctx, app)
			}),
			invoke.Proc1("RemoveNode", func(ctx context.Context, s *InstanceService, app ids.ApplicationID) error {
				return s.RemoveNode(ctx, app)
			}),
			invoke.Proc1("RestartNode", func(ctx context.Context, s *InstanceService, app ids.ApplicationID) error {
				return s.RestartNode(ctx, app)
			}),
		},
	})
	return reg
}
