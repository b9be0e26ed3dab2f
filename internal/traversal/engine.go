// Package traversal implements bounded, cycle-safe walks over the
// knowledge graph: subgraph slicing, downstream impact, and upstream
// rationale tracing.
//
// Every walk is read-only, keeps a visited set so cyclic graphs
// terminate, and is bounded by both a hop depth and a node budget.
// A dangling edge endpoint encountered mid-walk is skipped, never fatal.
package traversal

import (
	"fmt"
	"strings"

	"github.com/opal-se/opal/internal/graph"
)

// Bounds used when the caller supplies none.
const (
	DefaultSliceDepth  = 1
	DefaultImpactDepth = 2
	MaxDepth           = 5
	DefaultNodeBudget  = 500
)

// ImpactRelations are the relation types a change propagates along.
var ImpactRelations = []string{graph.RelDependsOn, graph.RelBlocks, graph.RelTracesTo}

// Engine runs bounded graph walks against the store.
type Engine struct {
	store      *graph.Store
	maxDepth   int
	nodeBudget int
}

// New creates a traversal engine. maxDepth caps how many hops any walk
// may take and nodeBudget caps the total nodes any single walk may
// collect; zero applies MaxDepth and DefaultNodeBudget respectively.
func New(store *graph.Store, maxDepth, nodeBudget int) *Engine {
	if maxDepth <= 0 {
		maxDepth = MaxDepth
	}
	if nodeBudget <= 0 {
		nodeBudget = DefaultNodeBudget
	}
	return &Engine{store: store, maxDepth: maxDepth, nodeBudget: nodeBudget}
}

// Slice is a bounded neighborhood of the graph around one or more roots.
type Slice struct {
	Nodes   []graph.Node `json:"nodes"`
	Edges   []graph.Edge `json:"edges"`
	Summary string       `json:"summary"`
}

// GetSystemSlice walks breadth-first from the root nodes, collecting
// nodes and edges reachable within depth hops in either direction,
// restricted to the given relation types (empty means all). Each node and
// edge appears exactly once.
func (e *Engine) GetSystemSlice(rootIDs []string, depth int, relationTypes []string) (*Slice, error) {
	if len(rootIDs) == 0 {
		return nil, graph.Invalidf("at least one root node id is required")
	}
	depth = e.clampDepth(depth, DefaultSliceDepth)

	type queueItem struct {
		id    string
		depth int
	}

	visited := map[string]bool{}
	seenEdges := map[string]bool{}
	var queue []queueItem
	slice := &Slice{}

	for _, id := range rootIDs {
		node, err := e.store.GetNode(id)
		if err != nil {
			return nil, err
		}
		if !visited[node.ID] {
			visited[node.ID] = true
			slice.Nodes = append(slice.Nodes, *node)
			queue = append(queue, queueItem{id: node.ID, depth: 0})
		}
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if current.depth >= depth || len(slice.Nodes) >= e.nodeBudget {
			continue
		}

		edges, err := e.store.EdgesTouching(current.id, relationTypes)
		if err != nil {
			return nil, err
		}
		for _, edge := range edges {
			if !seenEdges[edge.ID] {
				seenEdges[edge.ID] = true
				slice.Edges = append(slice.Edges, edge)
			}

			otherID := edge.ToNodeID
			if otherID == current.id {
				otherID = edge.FromNodeID
			}
			if visited[otherID] {
				continue
			}
			visited[otherID] = true

			other, err := e.store.GetNode(otherID)
			if err != nil {
				continue // dangling or soft-deleted endpoint: skip
			}
			slice.Nodes = append(slice.Nodes, *other)
			if len(slice.Nodes) >= e.nodeBudget {
				break
			}
			queue = append(queue, queueItem{id: otherID, depth: current.depth + 1})
		}
	}

	slice.Summary = fmt.Sprintf("Found %d nodes and %d edges around %s with radius %d",
		len(slice.Nodes), len(slice.Edges), strings.Join(shortIDs(rootIDs), ", "), depth)
	return slice, nil
}

// ImpactedNode is one node reached by an impact or rationale trace.
type ImpactedNode struct {
	Node         graph.Node `json:"node"`
	Depth        int        `json:"depth"`
	RelationType string     `json:"relation_type"`
}

// TraceResult holds an impact or rationale trace.
type TraceResult struct {
	Root          graph.Node     `json:"root"`
	Impacted      []ImpactedNode `json:"impacted"`
	Edges         []graph.Edge   `json:"edges"`
	DepthReached  int            `json:"depth_reached"`
	TotalImpacted int            `json:"total_impacted"`
}

// TraceDownstreamImpact walks forward along impact-carrying relations
// from the root, collecting everything a change to it could affect.
func (e *Engine) TraceDownstreamImpact(rootID string, maxDepth int) (*TraceResult, error) {
	return e.trace(rootID, maxDepth, false)
}

// TraceUpstreamRationale is the reverse walk: it collects the chain of
// requirements and dependencies that justify the root's existence.
func (e *Engine) TraceUpstreamRationale(rootID string, maxDepth int) (*TraceResult, error) {
	return e.trace(rootID, maxDepth, true)
}

func (e *Engine) trace(rootID string, maxDepth int, reverse bool) (*TraceResult, error) {
	maxDepth = e.clampDepth(maxDepth, DefaultImpactDepth)

	root, err := e.store.GetNode(rootID)
	if err != nil {
		return nil, err
	}

	type queueItem struct {
		id    string
		depth int
	}

	visited := map[string]bool{root.ID: true}
	seenEdges := map[string]bool{}
	queue := []queueItem{{id: root.ID, depth: 0}}
	result := &TraceResult{Root: *root}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if current.depth >= maxDepth || len(result.Impacted) >= e.nodeBudget {
			continue
		}

		edges, err := e.store.EdgesTouching(current.id, ImpactRelations)
		if err != nil {
			return nil, err
		}
		for _, edge := range edges {
			nextID, follows := followEdge(edge, current.id, reverse)
			if !follows || visited[nextID] {
				continue
			}

			node, err := e.store.GetNode(nextID)
			if err != nil {
				continue // skip dangling references mid-walk
			}
			visited[nextID] = true
			if !seenEdges[edge.ID] {
				seenEdges[edge.ID] = true
				result.Edges = append(result.Edges, edge)
			}

			depth := current.depth + 1
			result.Impacted = append(result.Impacted, ImpactedNode{
				Node:         *node,
				Depth:        depth,
				RelationType: edge.RelationType,
			})
			if depth > result.DepthReached {
				result.DepthReached = depth
			}
			if len(result.Impacted) >= e.nodeBudget {
				break
			}
			queue = append(queue, queueItem{id: nextID, depth: depth})
		}
	}

	result.TotalImpacted = len(result.Impacted)
	return result, nil
}

// followEdge resolves which endpoint a trace continues to, honoring edge
// direction: forward traces follow from→to, reverse traces to→from, and
// bidirectional edges carry impact both ways.
func followEdge(edge graph.Edge, currentID string, reverse bool) (string, bool) {
	if edge.Directionality == graph.Bidirectional {
		if edge.FromNodeID == currentID {
			return edge.ToNodeID, true
		}
		return edge.FromNodeID, true
	}
	if !reverse && edge.FromNodeID == currentID {
		return edge.ToNodeID, true
	}
	if reverse && edge.ToNodeID == currentID {
		return edge.FromNodeID, true
	}
	return "", false
}

// clampDepth bounds a requested depth by the engine's configured cap.
// The fallback itself is clamped too, so a cap below the default still
// holds.
func (e *Engine) clampDepth(depth, fallback int) int {
	if depth <= 0 {
		depth = fallback
	}
	if depth > e.maxDepth {
		return e.maxDepth
	}
	return depth
}

func shortIDs(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		if len(id) > 8 {
			id = id[:8]
		}
		out[i] = id
	}
	return out
}
