// Package hierarchy builds and governs the mission→program→project→phase→
// work-package containment tree on top of the graph store.
//
// Hierarchy levels are ordinary graph nodes linked by "contains" edges, so
// every mutation here flows through the store's audited mutation API. The
// service adds WBS numbering, the phase-gate state machine, tree
// aggregation, and the default-hierarchy bootstrap.
package hierarchy

import (
	"strings"
	"sync"

	"github.com/opal-se/opal/internal/graph"
)

// Phase statuses driven by the gate state machine.
const (
	StatusPlanning   = "planning"
	StatusNotStarted = "not_started"
	StatusInProgress = "in_progress"
	StatusAtGate     = "at_gate"
	StatusComplete   = "complete"
	StatusCancelled  = "cancelled"
)

// Default status for mission/program/project nodes.
const StatusActive = "active"

// Gate review decisions.
const (
	DecisionProceed = "proceed"
	DecisionHold    = "hold"
	DecisionRevise  = "revise"
	DecisionCancel  = "cancel"
)

// Metadata keys maintained on hierarchy nodes.
const (
	MetaWBS        = "wbs_number"
	MetaParentID   = "parent_id"
	MetaIsDefault  = "is_default"
	MetaPhaseID    = "phase_id"
	MetaGateReview = "gate_review"
)

const sourceSystem = "hierarchy"

// Service provides hierarchy operations over the graph store.
type Service struct {
	store *graph.Store

	// WBS numbering is a read-then-write (scan siblings, insert next
	// number); concurrent creations under one parent are serialized
	// per parent key.
	mu          sync.Mutex
	parentLocks map[string]*sync.Mutex
}

// New creates a hierarchy service over the given store.
func New(store *graph.Store) *Service {
	return &Service{
		store:       store,
		parentLocks: make(map[string]*sync.Mutex),
	}
}

// Store exposes the underlying graph store (read paths in tools use it).
func (s *Service) Store() *graph.Store { return s.store }

// lockParent acquires the per-parent critical section used for WBS
// generation and returns its release func.
func (s *Service) lockParent(key string) func() {
	s.mu.Lock()
	l, ok := s.parentLocks[key]
	if !ok {
		l = &sync.Mutex{}
		s.parentLocks[key] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// CreateParams holds the common input for hierarchy node creation.
type CreateParams struct {
	ProjectID   string `json:"project_id"`
	ParentID    string `json:"parent_id,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Owner       string `json:"owner,omitempty"`
	CreatedBy   string `json:"created_by,omitempty"`
}

// CreateMission creates a root-level mission with a fresh top-level WBS
// number ("{max+1}.0").
func (s *Service) CreateMission(p CreateParams) (*graph.Node, error) {
	if p.ProjectID == "" {
		return nil, graph.Invalidf("project_id is required")
	}
	unlock := s.lockParent(p.ProjectID + "/root")
	defer unlock()

	wbs, err := s.nextRootWBS(p.ProjectID)
	if err != nil {
		return nil, err
	}
	return s.store.CreateNode(graph.CreateNodeParams{
		ProjectID:   p.ProjectID,
		Type:        graph.TypeMission,
		Title:       p.Title,
		Description: p.Description,
		Status:      StatusActive,
		Owner:       p.Owner,
		CreatedBy:   p.CreatedBy,
		Metadata: map[string]any{
			MetaWBS: wbs,
		},
		SourceSystem: sourceSystem,
	})
}

// CreateProgram creates a program under a mission.
func (s *Service) CreateProgram(p CreateParams) (*graph.Node, error) {
	return s.createChild(p, graph.TypeMission, graph.TypeProgram, StatusActive)
}

// CreateProject creates a project under a program.
func (s *Service) CreateProject(p CreateParams) (*graph.Node, error) {
	return s.createChild(p, graph.TypeProgram, graph.TypeProject, StatusActive)
}

// CreatePhase creates a phase under a project. Phases start not_started;
// the gate machine moves them forward.
func (s *Service) CreatePhase(p CreateParams) (*graph.Node, error) {
	return s.createChild(p, graph.TypeProject, graph.TypePhase, StatusNotStarted)
}

// createChild validates the parent, generates the child's WBS number under
// the per-parent lock, creates the node, and links it with a "contains"
// edge. Node create, edge create, and their audit events each commit
// through the store's transactional mutation API.
func (s *Service) createChild(p CreateParams, parentType, childType, status string) (*graph.Node, error) {
	if p.ParentID == "" {
		return nil, graph.Invalidf("parent_id is required for %s creation", childType)
	}

	parent, err := s.store.GetNode(p.ParentID)
	if err != nil {
		return nil, err
	}
	if parent.Type != parentType {
		return nil, graph.Invalidf("parent %s is a %s, expected %s", parent.ID, parent.Type, parentType)
	}
	if p.ProjectID == "" {
		p.ProjectID = parent.ProjectID
	}
	if p.ProjectID != parent.ProjectID {
		return nil, graph.InvalidReferencef("parent %s belongs to project %s, not %s",
			parent.ID, parent.ProjectID, p.ProjectID)
	}

	unlock := s.lockParent(parent.ID)
	defer unlock()

	wbs, err := s.nextChildWBS(parent, childType)
	if err != nil {
		return nil, err
	}

	node, err := s.store.CreateNode(graph.CreateNodeParams{
		ProjectID:   p.ProjectID,
		Type:        childType,
		Title:       p.Title,
		Description: p.Description,
		Status:      status,
		Owner:       p.Owner,
		CreatedBy:   p.CreatedBy,
		Metadata: map[string]any{
			MetaWBS:      wbs,
			MetaParentID: parent.ID,
		},
		SourceSystem: sourceSystem,
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.store.CreateEdge(graph.CreateEdgeParams{
		ProjectID:    p.ProjectID,
		FromNodeID:   parent.ID,
		ToNodeID:     node.ID,
		RelationType: graph.RelContains,
		SourceSystem: sourceSystem,
	}); err != nil {
		return nil, err
	}
	return node, nil
}

// AddWorkPackageToPhase links an existing Task node into a phase: it gets
// a WBS number under the phase, the phase id in its metadata, and a
// "contains" edge from the phase.
func (s *Service) AddWorkPackageToPhase(phaseID, taskID string) (*graph.Node, error) {
	phase, err := s.store.GetNode(phaseID)
	if err != nil {
		return nil, err
	}
	if phase.Type != graph.TypePhase {
		return nil, graph.Invalidf("node %s is a %s, expected %s", phase.ID, phase.Type, graph.TypePhase)
	}

	task, err := s.store.GetNode(taskID)
	if err != nil {
		return nil, err
	}
	if task.Type != graph.TypeTask {
		return nil, graph.Invalidf("node %s is a %s, expected %s", task.ID, task.Type, graph.TypeTask)
	}
	if task.ProjectID != phase.ProjectID {
		return nil, graph.InvalidReferencef("task %s belongs to project %s, not %s",
			task.ID, task.ProjectID, phase.ProjectID)
	}

	unlock := s.lockParent(phase.ID)
	defer unlock()

	wbs, err := s.nextChildWBS(phase, graph.TypeTask)
	if err != nil {
		return nil, err
	}

	// Edge first: the forest check rejects a task that already has a
	// parent before any metadata is touched.
	edge, err := s.store.CreateEdge(graph.CreateEdgeParams{
		ProjectID:    phase.ProjectID,
		FromNodeID:   phase.ID,
		ToNodeID:     task.ID,
		RelationType: graph.RelContains,
		SourceSystem: sourceSystem,
	})
	if err != nil {
		return nil, err
	}

	// The edge and the metadata commit in separate transactions. If the
	// numbering update loses to a concurrent mutation of the task, unlink
	// it again so the task is never left attached but unnumbered.
	updated, err := s.store.UpdateNode(task.ID, graph.UpdateNodeParams{
		Metadata: map[string]any{
			MetaWBS:      wbs,
			MetaParentID: phase.ID,
			MetaPhaseID:  phase.ID,
		},
		SourceSystem: sourceSystem,
	})
	if err != nil {
		_ = s.store.DeleteEdge(edge.ID, sourceSystem)
		return nil, err
	}
	return updated, nil
}

// workPackageDone reports whether a work package counts as finished.
// Tasks imported from external trackers arrive with "completed".
func workPackageDone(status string) bool {
	switch strings.ToLower(status) {
	case "done", "completed":
		return true
	}
	return false
}
