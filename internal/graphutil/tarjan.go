// Package graphutil provides a small Tarjan strongly-connected-components
// implementation used to topologically order build stages and detect
// cycles among them.
package graphutil

import (
	"github.com/pmengelbert/stack"
	"k8s.io/apimachinery/pkg/util/sets"
)

// Node is one entry in the graph, identified by Name. Edges point at the
// names of nodes that must come before this node in the returned order
// (i.e. dependencies).
type Node struct {
	Name    string
	Depends []string
}

type vertex struct {
	name    string
	index   *int
	lowlink int
	onStack bool
}

// Cycle is returned when the graph is not a DAG. Members lists the node
// names that form the strongly-connected component.
type Cycle struct {
	Members []string
}

func (c *Cycle) Error() string {
	s := "{ "
	for i, m := range c.Members {
		if i > 0 {
			s += ", "
		}
		s += m
	}
	return s + " }"
}

// TopoSort returns nodes ordered so that every node appears after all of
// its dependencies (dependency-first order), using Tarjan's
// strongly-connected-components algorithm. Any strongly-connected
// component larger than one node indicates a cycle and is reported via
// *Cycle.
func TopoSort(nodes []Node) ([]string, error) {
	vertices := make(map[string]*vertex, len(nodes))
	order := make([]string, 0, len(nodes))
	for _, n := range nodes {
		vertices[n.Name] = &vertex{name: n.Name}
		order = append(order, n.Name)
	}

	deps := make(map[string][]string, len(nodes))
	for _, n := range nodes {
		// a stage can reference the same dependency through several
		// mounts; keep one edge each, in first-reference order so the
		// traversal (and thus the emitted order) stays deterministic
		seen := sets.New[string]()
		uniq := make([]string, 0, len(n.Depends))
		for _, d := range n.Depends {
			if seen.Has(d) {
				continue
			}
			seen.Insert(d)
			uniq = append(uniq, d)
		}
		deps[n.Name] = uniq
	}

	index := 0
	s := stack.New[*vertex]()
	var components [][]*vertex

	var strongConnect func(v *vertex)
	strongConnect = func(v *vertex) {
		v.index = new(int)
		*v.index = index
		v.lowlink = index
		index++

		s.Push(v)
		v.onStack = true

		for _, dep := range deps[v.name] {
			w, ok := vertices[dep]
			if !ok {
				// dependency outside the node set; caller is
				// responsible for having validated references exist.
				continue
			}
			if w.index == nil {
				strongConnect(w)
				if w.lowlink < v.lowlink {
					v.lowlink = w.lowlink
				}
				continue
			}
			if w.onStack && *w.index < v.lowlink {
				v.lowlink = *w.index
			}
		}

		if v.lowlink == *v.index {
			var component []*vertex
			for {
				opt := s.Pop()
				if !opt.IsSome() {
					break
				}
				w := opt.Unwrap()
				w.onStack = false
				component = append(component, w)
				if w == v {
					break
				}
			}
			components = append(components, component)
		}
	}

	for _, name := range order {
		if vertices[name].index != nil {
			continue
		}
		strongConnect(vertices[name])
	}

	for _, c := range components {
		if len(c) > 1 {
			members := make([]string, len(c))
			for i, v := range c {
				members[i] = v.name
			}
			return nil, &Cycle{Members: members}
		}
		if len(c) == 1 && dependsOnSelf(c[0].name, deps) {
			return nil, &Cycle{Members: []string{c[0].name}}
		}
	}

	// With edges pointing at dependencies, Tarjan closes off a
	// component only after every component reachable from it, so the
	// emission order is already dependency-first.
	out := make([]string, 0, len(nodes))
	for _, c := range components {
		out = append(out, c[0].name)
	}
	return out, nil
}

func dependsOnSelf(name string, deps map[string][]string) bool {
	for _, d := range deps[name] {
		if d == name {
			return true
		}
	}
	return false
}
