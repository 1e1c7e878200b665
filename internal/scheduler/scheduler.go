// Package scheduler orders conditions so that every referenced condition is
// evaluated before the conditions referring to it.
package scheduler

import (
	"sort"
	"strings"

	"github.com/smukkama/tsa/internal/block"
	"github.com/smukkama/tsa/internal/evalerr"
)

// Node is one condition in the dependency graph
type Node struct {
	Key  block.Ref
	Deps []block.Ref
	// Failed marks a condition that is invalid on its own; it is never
	// scheduled and its dependents are blocked
	Failed bool
}

// ReasonKind says why a condition was left out of the plan
type ReasonKind string

const (
	ReasonCycle      ReasonKind = "cycle"
	ReasonMissing    ReasonKind = "missing"
	ReasonDependency ReasonKind = "dependency"
)

// Reason explains an unscheduled condition
type Reason struct {
	Kind ReasonKind
	// Ref is the missing or failed dependency
	Ref block.Ref
	// Cycle lists the members of the cycle the condition belongs to
	Cycle []block.Ref
}

// Err returns the reason as a resolution error
func (r Reason) Err() error {
	switch r.Kind {
	case ReasonCycle:
		return evalerr.New(evalerr.KindResolution, "circular reference between %s", joinRefs(r.Cycle))
	case ReasonMissing:
		return evalerr.New(evalerr.KindResolution, "referenced condition %s not found", r.Ref)
	}
	return evalerr.New(evalerr.KindResolution, "referenced condition %s is invalid", r.Ref)
}

// Plan is the evaluation order of a collection. Conditions within a layer
// only depend on earlier layers.
type Plan struct {
	Layers  [][]block.Ref
	Cycles  [][]block.Ref
	Blocked map[block.Ref]Reason
}

// Len returns the number of scheduled conditions
func (p Plan) Len() int {
	n := 0
	for _, l := range p.Layers {
		n += len(l)
	}
	return n
}

// Build computes the plan for nodes. Failed nodes appear neither in the
// layers nor in Blocked. Cycles, including self references, and everything
// depending on a cycle, a missing or a failed condition end up in Blocked.
func Build(nodes []Node) Plan {
	g := newGraph(nodes)
	plan := Plan{Blocked: make(map[block.Ref]Reason)}

	for _, scc := range g.components() {
		if len(scc) == 1 && !g.selfLoop(scc[0]) {
			continue
		}
		cycle := make([]block.Ref, len(scc))
		for i, idx := range scc {
			cycle[i] = g.nodes[idx].Key
		}
		plan.Cycles = append(plan.Cycles, cycle)
		for _, idx := range scc {
			if !g.nodes[idx].Failed {
				plan.Blocked[g.nodes[idx].Key] = Reason{Kind: ReasonCycle, Cycle: cycle}
			}
		}
	}

	g.propagate(plan.Blocked)
	plan.Layers = g.layers(plan.Blocked)
	return plan
}

type graph struct {
	nodes []Node
	index map[block.Ref]int
	deps  [][]int
}

func newGraph(nodes []Node) *graph {
	g := &graph{index: make(map[block.Ref]int, len(nodes))}
	for _, n := range nodes {
		if _, dup := g.index[n.Key]; dup {
			continue
		}
		g.index[n.Key] = len(g.nodes)
		g.nodes = append(g.nodes, n)
	}

	g.deps = make([][]int, len(g.nodes))
	for i, n := range g.nodes {
		seen := make(map[int]bool)
		for _, d := range n.Deps {
			j, ok := g.index[d]
			if !ok || seen[j] {
				continue
			}
			seen[j] = true
			g.deps[i] = append(g.deps[i], j)
		}
	}
	return g
}

func (g *graph) selfLoop(i int) bool {
	for _, j := range g.deps[i] {
		if j == i {
			return true
		}
	}
	return false
}

// components returns the strongly connected components (Tarjan), each
// sorted by input order
func (g *graph) components() [][]int {
	var (
		counter int
		stack   []int
		out     [][]int
		index   = make([]int, len(g.nodes))
		low     = make([]int, len(g.nodes))
		onStack = make([]bool, len(g.nodes))
	)
	for i := range index {
		index[i] = -1
	}

	var visit func(v int)
	visit = func(v int) {
		index[v] = counter
		low[v] = counter
		counter++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.deps[v] {
			if index[w] < 0 {
				visit(w)
				low[v] = min(low[v], low[w])
			} else if onStack[w] {
				low[v] = min(low[v], index[w])
			}
		}

		if low[v] != index[v] {
			return
		}
		var scc []int
		for {
			w := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[w] = false
			scc = append(scc, w)
			if w == v {
				break
			}
		}
		sort.Ints(scc)
		out = append(out, scc)
	}

	for v := range g.nodes {
		if index[v] < 0 {
			visit(v)
		}
	}
	return out
}

// propagate blocks every node that depends on a missing, failed or blocked
// condition until nothing changes
func (g *graph) propagate(blocked map[block.Ref]Reason) {
	for changed := true; changed; {
		changed = false
		for _, n := range g.nodes {
			if n.Failed {
				continue
			}
			if _, ok := blocked[n.Key]; ok {
				continue
			}
			for _, d := range n.Deps {
				j, ok := g.index[d]
				if !ok {
					blocked[n.Key] = Reason{Kind: ReasonMissing, Ref: d}
					changed = true
					break
				}
				dep := g.nodes[j]
				if _, isBlocked := blocked[dep.Key]; dep.Failed || isBlocked {
					blocked[n.Key] = Reason{Kind: ReasonDependency, Ref: d}
					changed = true
					break
				}
			}
		}
	}
}

// layers runs Kahn's algorithm over the nodes that are neither failed nor
// blocked. Each layer keeps input order.
func (g *graph) layers(blocked map[block.Ref]Reason) [][]block.Ref {
	pending := make([]int, len(g.nodes))
	dependents := make([][]int, len(g.nodes))
	var ready []int

	for i, n := range g.nodes {
		if _, ok := blocked[n.Key]; ok || n.Failed {
			pending[i] = -1
			continue
		}
		pending[i] = len(g.deps[i])
		for _, j := range g.deps[i] {
			dependents[j] = append(dependents[j], i)
		}
		if pending[i] == 0 {
			ready = append(ready, i)
		}
	}

	var out [][]block.Ref
	for len(ready) > 0 {
		layer := make([]block.Ref, len(ready))
		var next []int
		for k, i := range ready {
			layer[k] = g.nodes[i].Key
			for _, d := range dependents[i] {
				pending[d]--
				if pending[d] == 0 {
					next = append(next, d)
				}
			}
		}
		sort.Ints(next)
		out = append(out, layer)
		ready = next
	}
	return out
}

func joinRefs(refs []block.Ref) string {
	parts := make([]string, len(refs))
	for i, r := range refs {
		parts[i] = r.String()
	}
	return strings.Join(parts, ", ")
}
