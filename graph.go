package fyreflow

import "sort"

// Graph is the precomputed adjacency form of a Flow: normalized links,
// forward/backward adjacency maps, a deterministic traversal order, and
// the resolved entry step. Construction is pure — same Flow in, same
// Graph out.
type Graph struct {
	Flow             Flow
	Order            []string            // deterministic traversal order
	EntrySteps       []string            // steps with no incoming edges (or bootstrap fallback)
	OutgoingByStepID map[string][]Link   // normalized, self-loop-free, unknown-endpoint-free
	IncomingByStepID map[string][]Link
}

// BuildGraph normalizes a Flow's links and computes its traversal order
// and entry steps (spec §4.1). Links referencing unknown step ids and
// self-loops are dropped; an omitted Condition defaults to "always".
func BuildGraph(f Flow) *Graph {
	known := make(map[string]bool, len(f.Steps))
	for _, s := range f.Steps {
		known[s.ID] = true
	}

	outgoing := make(map[string][]Link, len(f.Steps))
	incoming := make(map[string][]Link, len(f.Steps))
	for _, l := range f.Links {
		if l.SourceStepID == l.TargetStepID {
			continue
		}
		if !known[l.SourceStepID] || !known[l.TargetStepID] {
			continue
		}
		l.Condition = l.normalizedCondition()
		outgoing[l.SourceStepID] = append(outgoing[l.SourceStepID], l)
		incoming[l.TargetStepID] = append(incoming[l.TargetStepID], l)
	}

	g := &Graph{
		Flow:             f,
		OutgoingByStepID: outgoing,
		IncomingByStepID: incoming,
	}
	g.Order = g.topologicalOrder()
	g.EntrySteps = g.entrySteps()
	return g
}

// topologicalOrder returns a deterministic ordering of step ids: a
// Kahn's-algorithm topological sort when the graph is acyclic, or a
// stable fallback preserving declaration order when it is not (the
// engine tolerates cycles — they are bounded by retry/execution caps,
// not rejected at load time).
func (g *Graph) topologicalOrder() []string {
	inDegree := make(map[string]int, len(g.Flow.Steps))
	declared := make([]string, 0, len(g.Flow.Steps))
	for _, s := range g.Flow.Steps {
		inDegree[s.ID] = 0
		declared = append(declared, s.ID)
	}
	for target, links := range g.IncomingByStepID {
		inDegree[target] = len(links)
	}

	queue := make([]string, 0, len(declared))
	for _, id := range declared {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	order := make([]string, 0, len(declared))
	for len(queue) > 0 {
		sort.Strings(queue) // stable pick among ties, by id
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)
		for _, l := range g.OutgoingByStepID[node] {
			inDegree[l.TargetStepID]--
			if inDegree[l.TargetStepID] == 0 {
				queue = append(queue, l.TargetStepID)
			}
		}
	}

	if len(order) == len(declared) {
		return order
	}
	// Cycle present: fall back to declaration order verbatim.
	return declared
}

// entrySteps returns the steps with no incoming edges, in declared
// order. If none exist (a pure cycle), the step tagged "orchestrator"
// is used as bootstrap; absent that, the first declared step.
func (g *Graph) entrySteps() []string {
	var entries []string
	for _, s := range g.Flow.Steps {
		if len(g.IncomingByStepID[s.ID]) == 0 {
			entries = append(entries, s.ID)
		}
	}
	if len(entries) > 0 {
		return entries
	}
	for _, s := range g.Flow.Steps {
		if s.Role == RoleOrchestrator {
			return []string{s.ID}
		}
	}
	if len(g.Flow.Steps) > 0 {
		return []string{g.Flow.Steps[0].ID}
	}
	return nil
}

// RouteSuccessors returns the distinct target step ids reached from
// stepID whose link condition matches the given outcome (spec §4.6
// "Routing"). Order follows declaration order of the outgoing links.
func (g *Graph) RouteSuccessors(stepID string, outcome WorkflowOutcome) []string {
	links := g.OutgoingByStepID[stepID]
	var targets []string
	seen := make(map[string]bool, len(links))
	for _, l := range links {
		if !outcome.matchesCondition(l.Condition) {
			continue
		}
		if seen[l.TargetStepID] {
			continue
		}
		seen[l.TargetStepID] = true
		targets = append(targets, l.TargetStepID)
	}
	return targets
}

// HasOutgoing reports whether stepID has any outgoing link at all,
// used to distinguish a true dead end from a routing miss.
func (g *Graph) HasOutgoing(stepID string) bool {
	return len(g.OutgoingByStepID[stepID]) > 0
}

// Unvisited returns the steps not present in visited, in traversal
// order (g.Order).
func (g *Graph) Unvisited(visited map[string]bool) []string {
	var out []string
	for _, id := range g.Order {
		if !visited[id] {
			out = append(out, id)
		}
	}
	return out
}

// FallbackAnchor resolves the disconnected-fallback anchor the
// scheduler queues when its work queue runs dry but unvisited steps
// remain, per the documented precedence (spec design notes §9):
//
//  1. the first unvisited successor of a completed step, searching
//     completionOrder (stored oldest first) from the most recent
//     completion backwards, whatever the link's condition;
//  2. any step that has been attempted at least once, remains
//     unvisited, and is not currently in flight;
//  3. the orchestrator-tagged step, if unvisited;
//  4. the first unvisited step in traversal order (g.Order), as an
//     unconditional last resort so the scheduler never stalls.
//
// Returns "" only when every step is visited.
func (g *Graph) FallbackAnchor(visited map[string]bool, completionOrder []string, attempted, inFlight func(string) bool) string {
	for i := len(completionOrder) - 1; i >= 0; i-- {
		for _, l := range g.OutgoingByStepID[completionOrder[i]] {
			if !visited[l.TargetStepID] {
				return l.TargetStepID
			}
		}
	}

	for _, id := range g.Order {
		if !visited[id] && attempted(id) && !inFlight(id) {
			return id
		}
	}

	if oid, ok := g.orchestratorStepID(); ok && !visited[oid] {
		return oid
	}

	for _, id := range g.Order {
		if !visited[id] {
			return id
		}
	}
	return ""
}

// orchestratorStepID returns the id of the step tagged RoleOrchestrator, if any.
func (g *Graph) orchestratorStepID() (string, bool) {
	for _, s := range g.Flow.Steps {
		if s.Role == RoleOrchestrator {
			return s.ID, true
		}
	}
	return "", false
}
