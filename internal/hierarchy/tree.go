package hierarchy

import (
	"sort"

	"github.com/opal-se/opal/internal/graph"
)

// DefaultTreeDepth bounds getHierarchyTree recursion when the caller gives
// no explicit depth; the full hierarchy is five levels deep.
const DefaultTreeDepth = 5

// TreeStats are the aggregates bubbled up the hierarchy tree.
type TreeStats struct {
	WorkPackagesTotal int `json:"work_packages_total"`
	WorkPackagesDone  int `json:"work_packages_done"`
	PhasesAtGate      int `json:"phases_at_gate"`
}

// TreeNode is one node of the aggregated hierarchy tree.
type TreeNode struct {
	Node     graph.Node  `json:"node"`
	Children []*TreeNode `json:"children,omitempty"`
	Stats    TreeStats   `json:"stats"`
}

// GetHierarchyTree recursively builds the containment tree under a node,
// aggregating work-package and gate statistics upward. Recursion stops at
// maxDepth to bound cost on large trees.
func (s *Service) GetHierarchyTree(nodeID string, maxDepth int) (*TreeNode, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultTreeDepth
	}
	node, err := s.store.GetNode(nodeID)
	if err != nil {
		return nil, err
	}
	return s.buildTree(node, maxDepth)
}

func (s *Service) buildTree(node *graph.Node, depthLeft int) (*TreeNode, error) {
	tn := &TreeNode{Node: *node}

	if node.Type == graph.TypePhase {
		children, err := s.store.ContainmentChildren(node.ID, false)
		if err != nil {
			return nil, err
		}
		for _, c := range children {
			if c.Type != graph.TypeTask {
				continue
			}
			tn.Stats.WorkPackagesTotal++
			if workPackageDone(c.Status) {
				tn.Stats.WorkPackagesDone++
			}
			if depthLeft > 1 {
				tn.Children = append(tn.Children, &TreeNode{Node: c})
			}
		}
		if node.Status == StatusAtGate {
			tn.Stats.PhasesAtGate = 1
		}
		return tn, nil
	}

	if depthLeft <= 1 {
		return tn, nil
	}

	children, err := s.store.ContainmentChildren(node.ID, false)
	if err != nil {
		return nil, err
	}
	sort.Slice(children, func(i, j int) bool {
		return compareWBS(children[i].MetaString(MetaWBS), children[j].MetaString(MetaWBS)) < 0
	})

	for i := range children {
		child, err := s.buildTree(&children[i], depthLeft-1)
		if err != nil {
			return nil, err
		}
		tn.Children = append(tn.Children, child)
		tn.Stats.WorkPackagesTotal += child.Stats.WorkPackagesTotal
		tn.Stats.WorkPackagesDone += child.Stats.WorkPackagesDone
		tn.Stats.PhasesAtGate += child.Stats.PhasesAtGate
	}
	return tn, nil
}

// WorkPackageContext is the hierarchy chain above a task. Levels absent
// from a partially built hierarchy are listed in MissingLevels instead of
// failing the walk.
type WorkPackageContext struct {
	Task          *graph.Node `json:"task"`
	Phase         *graph.Node `json:"phase,omitempty"`
	Project       *graph.Node `json:"project,omitempty"`
	Program       *graph.Node `json:"program,omitempty"`
	Mission       *graph.Node `json:"mission,omitempty"`
	MissingLevels []string    `json:"missing_levels,omitempty"`
}

// GetWorkPackageContext walks "contains" parent edges upward from a task,
// expecting phase→project→program→mission. When a parent's type does not
// match the next expected level the walk advances the expected-level
// cursor without consuming the parent, tolerating a partially built
// hierarchy. The walk is bounded by a visited set and the level list.
func (s *Service) GetWorkPackageContext(taskID string) (*WorkPackageContext, error) {
	task, err := s.store.GetNode(taskID)
	if err != nil {
		return nil, err
	}
	if task.Type != graph.TypeTask {
		return nil, graph.Invalidf("node %s is a %s, expected %s", task.ID, task.Type, graph.TypeTask)
	}

	ctx := &WorkPackageContext{Task: task}
	expected := []string{graph.TypePhase, graph.TypeProject, graph.TypeProgram, graph.TypeMission}
	level := 0

	visited := map[string]bool{task.ID: true}
	currentID := task.ID

	for level < len(expected) {
		parentID, err := s.store.ContainmentParent(currentID)
		if err != nil {
			return nil, err
		}
		if parentID == "" || visited[parentID] {
			break
		}
		parent, err := s.store.GetNode(parentID)
		if err != nil {
			// Dangling containment reference mid-walk: stop, don't fail.
			break
		}

		if parent.Type != expected[level] {
			// Missing level: advance the cursor, retry the same parent.
			ctx.MissingLevels = append(ctx.MissingLevels, expected[level])
			level++
			continue
		}

		switch parent.Type {
		case graph.TypePhase:
			ctx.Phase = parent
		case graph.TypeProject:
			ctx.Project = parent
		case graph.TypeProgram:
			ctx.Program = parent
		case graph.TypeMission:
			ctx.Mission = parent
		}
		visited[parent.ID] = true
		currentID = parent.ID
		level++
	}

	for ; level < len(expected); level++ {
		found := false
		switch expected[level] {
		case graph.TypePhase:
			found = ctx.Phase != nil
		case graph.TypeProject:
			found = ctx.Project != nil
		case graph.TypeProgram:
			found = ctx.Program != nil
		case graph.TypeMission:
			found = ctx.Mission != nil
		}
		if !found {
			ctx.MissingLevels = append(ctx.MissingLevels, expected[level])
		}
	}
	return ctx, nil
}
