package compiler

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/roach88/fluxgear/internal/engine"
	"github.com/roach88/fluxgear/internal/rules"
)

// CycleWarning represents a chain of effects that can keep re-arming itself.
//
// Cycles are warnings, not errors, because they may be intentional:
// a retry loop gated by a when clause terminates once state moves on.
type CycleWarning struct {
	Path    []string `json:"path"`    // Cycle path: ["PING", "PONG", "PING"]
	Message string   `json:"message"` // Human-readable description
	Level   string   `json:"level"`   // "warning" or "info"
}

// AnalyzeCycles performs static cycle analysis on a program's effects.
//
// Only deferred dispatches can loop: messages emitted by a transform are
// consumed and reduced but never transformed again. The graph therefore has
// one node per event type, with an edge E -> D when handling E (its emitted
// messages, plus CHANGE if any of them is reduced) runs an effect that
// dispatches D.
//
// The algorithm:
//  1. Build the event -> event graph from transforms, reductions and effects
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1 or self-loops as a potential cycle warning
//
// A DAG (no cycles) returns an empty warning list.
func AnalyzeCycles(p *rules.Program) []CycleWarning {
	warnings := []CycleWarning{}
	if len(p.Effects) == 0 {
		return warnings
	}

	graph := buildDependencyGraph(p)
	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(scc[0], graph)) {
			warnings = append(warnings, cycleSCCToWarning(scc, graph))
		}
	}
	return warnings
}

// dependencyGraph maps event type -> event types it may dispatch.
type dependencyGraph map[string][]string

// buildDependencyGraph constructs the event dispatch graph.
//
// For each event type that can enter the pipeline:
//   - Expand it into the messages its transforms emit (itself if none match)
//   - Collect the dispatch targets of effects on those messages
//   - Add CHANGE's targets when any of those messages has a reduction
func buildDependencyGraph(p *rules.Program) dependencyGraph {
	emits := make(map[string][]string)
	for _, r := range p.Transforms {
		if _, ok := emits[r.On]; !ok {
			emits[r.On] = []string{}
		}
		for _, e := range r.Emit {
			emits[r.On] = append(emits[r.On], e.Type)
		}
	}
	reduced := make(map[string]bool)
	for _, r := range p.Reductions {
		reduced[r.On] = true
	}
	dispatches := make(map[string][]string)
	for _, e := range p.Effects {
		if e.Dispatch != "" {
			dispatches[e.On] = appendUnique(dispatches[e.On], e.Dispatch)
		}
	}

	change := engine.Change.Name()
	events := append([]string{engine.Init.Name()}, p.Messages...)
	for _, targets := range dispatches {
		events = append(events, targets...)
	}

	graph := make(dependencyGraph)
	for _, ev := range events {
		if _, done := graph[ev]; done {
			continue
		}
		produced, ok := emits[ev]
		if !ok {
			produced = []string{ev}
		}

		next := []string{}
		changes := false
		for _, m := range produced {
			for _, d := range dispatches[m] {
				next = appendUnique(next, d)
			}
			changes = changes || reduced[m]
		}
		if changes {
			for _, d := range dispatches[change] {
				next = appendUnique(next, d)
			}
		}
		graph[ev] = next
	}

	return graph
}

func appendUnique(list []string, s string) []string {
	if slices.Contains(list, s) {
		return list
	}
	return append(list, s)
}

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node string, graph dependencyGraph) bool {
	for _, neighbor := range graph[node] {
		if neighbor == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
//
// Returns a list of SCCs, where each SCC is a list of event types.
// Single-node SCCs without self-loops are NOT cycles.
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
		// Set the depth index for v
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		// Consider successors of v
		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				// Successor w has not yet been visited; recurse on it
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				// Successor w is on stack and hence in the current SCC
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// If v is a root node, pop the stack and create an SCC
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
			sccs = append(sccs, scc)
		}
	}

	// Visit nodes in sorted order so warnings are deterministic
	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)
	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

// cycleSCCToWarning converts an SCC to a CycleWarning.
//
// The path shows the cycle sequence by reconstructing a path through the SCC.
// For self-loops, the path is [type, type].
// For multi-node cycles, the path shows a cycle traversal.
func cycleSCCToWarning(scc []string, graph dependencyGraph) CycleWarning {
	if len(scc) == 1 {
		// Self-loop
		name := scc[0]
		return CycleWarning{
			Path:    []string{name, name},
			Message: fmt.Sprintf("Self-dispatching effect detected: %s → %s", name, name),
			Level:   "warning",
		}
	}

	// Multi-node cycle - reconstruct a cycle path
	path := reconstructCyclePath(scc, graph)

	pathStr := strings.Join(path, " → ")
	return CycleWarning{
		Path:    path,
		Message: fmt.Sprintf("Potential cycle detected: %s", pathStr),
		Level:   "warning",
	}
}

// reconstructCyclePath builds a cycle path from an SCC.
//
// Strategy: Start at first node in SCC, follow edges to other SCC members,
// continue until we return to start node.
func reconstructCyclePath(scc []string, graph dependencyGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}

	// Build set of SCC members for fast lookup
	sccSet := make(map[string]bool)
	for _, node := range scc {
		sccSet[node] = true
	}

	// Start at the smallest name for a stable path
	start := slices.Min(scc)
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	// Follow edges within SCC until we return to start
	for {
		visited[current] = true

		// Find next SCC member reachable from current
		var next string
		for _, neighbor := range graph[current] {
			if sccSet[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}

		if next == "" {
			// No more unvisited neighbors in SCC
			break
		}

		path = append(path, next)

		if next == start {
			// Completed the cycle
			break
		}

		current = next
	}

	return path
}

// UnusedMessages returns declared messages that no rule mentions, in
// declaration order. Dispatching one runs the pipeline but changes nothing.
func UnusedMessages(p *rules.Program) []string {
	used := map[string]bool{}
	for _, name := range p.Referenced() {
		used[name] = true
	}
	var out []string
	for _, m := range p.Messages {
		if !used[m] {
			out = append(out, m)
		}
	}
	return out
}
