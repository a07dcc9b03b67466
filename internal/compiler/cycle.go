package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/clockwork/internal/ir"
	"github.com/roach88/clockwork/internal/machine"
)

// CycleWarning reports instances whose dependencies form a cycle.
//
// Cycles are warnings, not errors: propagation marks instances dirty
// rather than evaluating them recursively, so a cycle costs extra passes
// but terminates. Interlocks between two machines are common and
// intentional.
type CycleWarning struct {
	Path    []string `json:"path"`    // ["a", "b", "a"]
	Message string   `json:"message"` // human-readable description
	Level   string   `json:"level"`   // "warning"
}

// AnalyzeCycles finds dependency cycles between the program's instances.
//
// An instance depends on the machines named by its parameters and on the
// machines its class's stable-state conditions, handlers and transition
// guards refer to. Strongly connected components of more than one
// instance are reported, in a deterministic order.
func AnalyzeCycles(p *Program) []CycleWarning {
	if p == nil || len(p.Instances) == 0 {
		return []CycleWarning{}
	}
	graph := buildDependencyGraph(p)

	var warnings []CycleWarning
	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 {
			warnings = append(warnings, cycleSCCToWarning(scc, graph))
		}
	}
	if warnings == nil {
		return []CycleWarning{}
	}
	return warnings
}

// dependencyGraph maps an instance to the instances it depends on.
type dependencyGraph map[string][]string

func buildDependencyGraph(p *Program) dependencyGraph {
	graph := make(dependencyGraph)
	instances := map[string]bool{}
	for _, d := range p.Instances {
		instances[d.Name] = true
	}

	for _, d := range p.Instances {
		graph[d.Name] = []string{}
		c, _ := p.Class(d.Class)

		// Parameter names resolve to the machines passed for them.
		bound := map[string]string{}
		for i, v := range d.Params {
			s, ok := v.(ir.String)
			if !ok || !instances[string(s)] {
				continue
			}
			addEdge(graph, d.Name, string(s))
			if c != nil && i < len(c.Parameters) {
				bound[c.Parameters[i].Name] = string(s)
			}
		}
		if c == nil {
			continue
		}
		resolve := func(name string) {
			if target, ok := bound[name]; ok {
				addEdge(graph, d.Name, target)
			} else if instances[name] {
				addEdge(graph, d.Name, name)
			}
		}
		for _, ss := range c.StableStates {
			machineRefs(ss.Condition, resolve)
			for _, h := range ss.Subconditions {
				machineRefs(h.Condition, resolve)
			}
		}
		for _, t := range c.Transitions {
			machineRefs(t.Condition, resolve)
		}
	}
	return graph
}

func addEdge(graph dependencyGraph, from, to string) {
	if from == to || slices.Contains(graph[from], to) {
		return
	}
	graph[from] = append(graph[from], to)
}

// machineRefs calls visit with every name e may use as a machine.
func machineRefs(e machine.Expr, visit func(string)) {
	switch x := e.(type) {
	case machine.Sym:
		head := x.Name
		if h, _, ok := ir.SplitName(x.Name); ok {
			head = h
		}
		visit(head)
	case machine.Unary:
		machineRefs(x.X, visit)
	case machine.Binary:
		machineRefs(x.L, visit)
		machineRefs(x.R, visit)
	case machine.Is:
		visit(x.Machine)
	case machine.EnabledQuery:
		visit(x.Machine)
	case machine.ListQuery:
		visit(x.List)
		if x.Arg != nil {
			machineRefs(x.Arg, visit)
		}
	case machine.Cast:
		machineRefs(x.X, visit)
	}
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes are visited in sorted order so the result is deterministic.
func tarjanSCC(graph dependencyGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			slices.Sort(scc)
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	slices.Sort(nodes)
	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

func cycleSCCToWarning(scc []string, graph dependencyGraph) CycleWarning {
	path := reconstructCyclePath(scc, graph)
	return CycleWarning{
		Path:    path,
		Message: fmt.Sprintf("dependency cycle: %s", strings.Join(path, " → ")),
		Level:   "warning",
	}
}

// reconstructCyclePath walks edges inside the SCC from its first member
// until it returns to it.
func reconstructCyclePath(scc []string, graph dependencyGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}
	inSCC := make(map[string]bool, len(scc))
	for _, node := range scc {
		inSCC[node] = true
	}

	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)
	for {
		visited[current] = true
		var next string
		for _, neighbor := range graph[current] {
			if inSCC[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}
		if next == "" {
			break
		}
		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}
	return path
}
