package hierarchy

import (
	"sort"

	"github.com/opal-se/opal/internal/graph"
)

// GateReview is the reviewer decision recorded on a phase. Each review
// submission overwrites the previous one.
type GateReview struct {
	Decision   string `json:"decision"`
	Feedback   string `json:"feedback,omitempty"`
	ReviewedBy string `json:"reviewed_by,omitempty"`
	ReviewedAt string `json:"reviewed_at"`
}

// GateResult describes what a review did: the phase's new status plus any
// cascade (next phase activated, project completed).
type GateResult struct {
	Phase              *graph.Node `json:"phase"`
	NextPhaseActivated *graph.Node `json:"next_phase_activated,omitempty"`
	ProjectCompleted   *graph.Node `json:"project_completed,omitempty"`
}

// ReviewPhaseGate applies a gate decision to a phase.
//
// proceed requires every linked work package to be done (vacuously true
// with none) and completes the phase; the project's next phase by WBS
// order becomes in_progress, or the project itself completes when no
// active phase remains. hold parks the phase at_gate, revise sends it
// back to in_progress, cancel cancels it. Every transition records the
// gate review and emits a status_changed event through the store.
func (s *Service) ReviewPhaseGate(phaseID, decision, feedback, reviewedBy string) (*GateResult, error) {
	phase, err := s.store.GetNode(phaseID)
	if err != nil {
		return nil, err
	}
	if phase.Type != graph.TypePhase {
		return nil, graph.Invalidf("node %s is a %s, expected %s", phase.ID, phase.Type, graph.TypePhase)
	}

	var target string
	switch decision {
	case DecisionProceed:
		target = StatusComplete
	case DecisionHold:
		target = StatusAtGate
	case DecisionRevise:
		target = StatusInProgress
	case DecisionCancel:
		target = StatusCancelled
	default:
		return nil, graph.Invalidf("unknown gate decision %q (proceed, hold, revise, cancel)", decision)
	}

	if decision == DecisionProceed {
		pending, err := s.pendingWorkPackages(phase.ID)
		if err != nil {
			return nil, err
		}
		if len(pending) > 0 {
			return nil, graph.InvalidStatef(
				"cannot proceed: %d work package(s) not done in phase %s", len(pending), phase.ID)
		}
	}

	review := GateReview{
		Decision:   decision,
		Feedback:   feedback,
		ReviewedBy: reviewedBy,
		ReviewedAt: graph.Now(),
	}
	updated, err := s.store.UpdateNode(phase.ID, graph.UpdateNodeParams{
		Status: &target,
		Metadata: map[string]any{
			MetaGateReview: map[string]any{
				"decision":    review.Decision,
				"feedback":    review.Feedback,
				"reviewed_by": review.ReviewedBy,
				"reviewed_at": review.ReviewedAt,
			},
		},
		SourceSystem: sourceSystem,
	})
	if err != nil {
		return nil, err
	}

	result := &GateResult{Phase: updated}
	if decision == DecisionProceed {
		if err := s.cascadeProceed(updated, result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// cascadeProceed activates the project's next phase by WBS order, or
// completes the project when every phase has reached a terminal status.
func (s *Service) cascadeProceed(phase *graph.Node, result *GateResult) error {
	projectID, err := s.store.ContainmentParent(phase.ID)
	if err != nil {
		return err
	}
	if projectID == "" {
		return nil // detached phase, nothing to cascade
	}
	project, err := s.store.GetNode(projectID)
	if err != nil || project.Type != graph.TypeProject {
		return nil
	}

	phases, err := s.projectPhases(project.ID)
	if err != nil {
		return err
	}

	thisWBS := phase.MetaString(MetaWBS)
	for _, ph := range phases {
		if ph.ID == phase.ID || compareWBS(ph.MetaString(MetaWBS), thisWBS) <= 0 {
			continue
		}
		if ph.Status == StatusComplete || ph.Status == StatusCancelled {
			continue
		}
		status := StatusInProgress
		next, err := s.store.UpdateNode(ph.ID, graph.UpdateNodeParams{
			Status:       &status,
			SourceSystem: sourceSystem,
		})
		if err != nil {
			return err
		}
		result.NextPhaseActivated = next
		return nil
	}

	// No next phase: complete the project when nothing is left open.
	for _, ph := range phases {
		if ph.ID == phase.ID {
			continue
		}
		if ph.Status != StatusComplete && ph.Status != StatusCancelled {
			return nil
		}
	}
	status := StatusComplete
	done, err := s.store.UpdateNode(project.ID, graph.UpdateNodeParams{
		Status:       &status,
		SourceSystem: sourceSystem,
	})
	if err != nil {
		return err
	}
	result.ProjectCompleted = done
	return nil
}

// projectPhases returns a project's live phases in WBS order.
func (s *Service) projectPhases(projectNodeID string) ([]graph.Node, error) {
	children, err := s.store.ContainmentChildren(projectNodeID, false)
	if err != nil {
		return nil, err
	}
	var phases []graph.Node
	for _, c := range children {
		if c.Type == graph.TypePhase {
			phases = append(phases, c)
		}
	}
	sort.Slice(phases, func(i, j int) bool {
		return compareWBS(phases[i].MetaString(MetaWBS), phases[j].MetaString(MetaWBS)) < 0
	})
	return phases, nil
}

// pendingWorkPackages returns the phase's live work packages that are not
// yet done.
func (s *Service) pendingWorkPackages(phaseID string) ([]graph.Node, error) {
	children, err := s.store.ContainmentChildren(phaseID, false)
	if err != nil {
		return nil, err
	}
	var pending []graph.Node
	for _, c := range children {
		if c.Type == graph.TypeTask && !workPackageDone(c.Status) {
			pending = append(pending, c)
		}
	}
	return pending, nil
}

// PendingGateReviews returns the project's phases waiting at a gate.
func (s *Service) PendingGateReviews(projectID string) ([]graph.Node, error) {
	return s.store.ListNodes(graph.NodeFilter{
		ProjectID: projectID,
		Type:      graph.TypePhase,
		Status:    StatusAtGate,
	})
}
