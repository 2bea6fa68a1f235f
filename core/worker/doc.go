// Package worker manages the nodes of one instance.
//
// A [Worker] holds the master node, which serves the [InstanceService], and
// one node per hosted application. PostStart and PreClose run the node
// lifecycles in order and collect per-node failures into a [MultiError]
// instead of aborting.
//
// At runtime the application set changes only through a [Mutator]:
//
//	m := w.Mutator()
//	defer m.Close()
//	if err := m.RestartNode(app); err != nil {
//		return err
//	}
//	return m.Commit(ctx)
//
// [Watchdog] uses the same protocol to restart nodes that report themselves
// unhealthy.
package worker
