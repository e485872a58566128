package graph

import (
	"fmt"
	"slices"

	"github.com/nebula-labs/nebula/internal/bundle"
)

// Graph maps each bundle id to its ordered direct dependencies. A Graph is
// immutable once built and safe for concurrent reads.
type Graph struct {
	ids      []string
	deps     map[string][]string
	dangling []bundle.DanglingDependency
}

// Build validates a catalog snapshot and returns its dependency graph.
// A cycle fails with *bundle.CycleError and no graph is returned. Dependencies
// on ids outside the snapshot are kept as soft diagnostics in Dangling.
func Build(descs []bundle.Descriptor) (*Graph, error) {
	g := newGraph(len(descs))
	for _, d := range descs {
		if err := g.add(d.ID, d.Dependencies); err != nil {
			return nil, err
		}
	}
	return g.finish()
}

// FromIndex builds the graph of locally synced bundles.
func FromIndex(entries []bundle.IndexEntry) (*Graph, error) {
	g := newGraph(len(entries))
	for _, e := range entries {
		if err := g.add(e.ID, e.Dependencies); err != nil {
			return nil, err
		}
	}
	return g.finish()
}

func newGraph(n int) *Graph {
	return &Graph{
		ids:  make([]string, 0, n),
		deps: make(map[string][]string, n),
	}
}

func (g *Graph) add(id string, deps []string) error {
	if _, dup := g.deps[id]; dup {
		return fmt.Errorf("%w: %s", bundle.ErrDuplicateBundle, id)
	}
	g.ids = append(g.ids, id)
	g.deps[id] = slices.Clone(deps)
	return nil
}

func (g *Graph) finish() (*Graph, error) {
	for _, id := range g.ids {
		for _, dep := range g.deps[id] {
			if _, ok := g.deps[dep]; !ok {
				g.dangling = append(g.dangling, bundle.DanglingDependency{From: id, Missing: dep})
			}
		}
	}
	if err := g.detectCycle(); err != nil {
		return nil, err
	}
	return g, nil
}

const (
	unvisited = iota
	onPath
	done
)

// detectCycle runs a DFS in snapshot order and reports the first back edge as
// the full cycle path.
func (g *Graph) detectCycle() error {
	state := make(map[string]int, len(g.ids))
	var path []string

	var visit func(id string) error
	visit = func(id string) error {
		state[id] = onPath
		path = append(path, id)
		for _, dep := range g.deps[id] {
			if _, ok := g.deps[dep]; !ok {
				continue
			}
			switch state[dep] {
			case onPath:
				start := slices.Index(path, dep)
				cycle := append(slices.Clone(path[start:]), dep)
				return &bundle.CycleError{Path: cycle}
			case unvisited:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		path = path[:len(path)-1]
		state[id] = done
		return nil
	}

	for _, id := range g.ids {
		if state[id] == unvisited {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}

// Has reports whether id is a node of the graph.
func (g *Graph) Has(id string) bool {
	_, ok := g.deps[id]
	return ok
}

// IDs returns node ids in snapshot order.
func (g *Graph) IDs() []string {
	return slices.Clone(g.ids)
}

// Deps returns the declared direct dependencies of id, dangling ones included.
func (g *Graph) Deps(id string) []string {
	return slices.Clone(g.deps[id])
}

// Dangling returns dependencies that point outside the graph.
func (g *Graph) Dangling() []bundle.DanglingDependency {
	return slices.Clone(g.dangling)
}

// Closure returns root and its transitive dependencies, dependencies first
// and root last. Dependencies are visited in declared order; dangling ids are
// omitted.
func (g *Graph) Closure(root string) ([]string, error) {
	if !g.Has(root) {
		return nil, fmt.Errorf("%w: %s", bundle.ErrUnknownBundle, root)
	}
	seen := make(map[string]bool)
	var order []string

	var visit func(id string)
	visit = func(id string) {
		seen[id] = true
		for _, dep := range g.deps[id] {
			if !seen[dep] && g.Has(dep) {
				visit(dep)
			}
		}
		order = append(order, id)
	}
	visit(root)
	return order, nil
}

// UnloadOrder returns the reverse of Closure: root first.
func (g *Graph) UnloadOrder(root string) ([]string, error) {
	order, err := g.Closure(root)
	if err != nil {
		return nil, err
	}
	slices.Reverse(order)
	return order, nil
}

// MissingFrom returns the dangling dependencies reachable from root.
func (g *Graph) MissingFrom(root string) []bundle.DanglingDependency {
	closure, err := g.Closure(root)
	if err != nil {
		return nil
	}
	var out []bundle.DanglingDependency
	for _, id := range closure {
		for _, dep := range g.deps[id] {
			if !g.Has(dep) {
				out = append(out, bundle.DanglingDependency{From: id, Missing: dep})
			}
		}
	}
	return out
}
