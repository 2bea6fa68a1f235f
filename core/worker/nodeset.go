package worker

import (
	"github.com/NamazuStudios/elements-sub015/core/ds"
	"github.com/NamazuStudios/elements-sub015/core/ids"
	"github.com/NamazuStudios/elements-sub015/core/node"
)

// nodeSet is a published, immutable view of the application nodes. Commits
// build a new one and swap it in.
type nodeSet struct {
	apps  *ds.Set[ids.ApplicationID]
	nodes map[ids.ApplicationID]*node.Node
}

func newNodeSet() *nodeSet {
	return &nodeSet{apps: ds.NewSet[ids.ApplicationID](), nodes: make(map[ids.ApplicationID]*node.Node)}
}

func (s *nodeSet) clone() *nodeSet {
	out := &nodeSet{apps: s.apps.Copy(), nodes: make(map[ids.ApplicationID]*node.Node, len(s.nodes))}
	for app, n := range s.nodes {
		out.nodes[app] = n
	}
	return out
}

func (s *nodeSet) get(app ids.ApplicationID) (*node.Node, bool) {
	n, ok := s.nodes[app]
	return n, ok
}

func (s *nodeSet) put(n *node.Node) {
	s.apps.Add(n.Application())
	s.nodes[n.Application()] = n
}

func (s *nodeSet) remove(app ids.ApplicationID) {
	s.apps.Remove(app)
	delete(s.nodes, app)
}

func (s *nodeSet) list() []*node.Node {
	out := make([]*node.Node, 0, s.apps.Len())
	for app := range s.apps.All() {
		out = append(out, s.nodes[app])
	}
	return out
}

func (s *nodeSet) len() int { return s.apps.Len() }
