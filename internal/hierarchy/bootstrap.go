package hierarchy

import (
	"github.com/opal-se/opal/internal/graph"
)

// DefaultHierarchy holds the ids of the bootstrap chain for legacy tasks.
type DefaultHierarchy struct {
	MissionID string `json:"mission_id"`
	ProgramID string `json:"program_id"`
	ProjectID string `json:"project_id"`
	PhaseID   string `json:"phase_id"`
	Created   bool   `json:"created"`
}

// EnsureDefaultHierarchy idempotently locates (by the is_default metadata
// flag) or creates one mission→program→project→phase chain that orphaned
// legacy tasks can be parked under. Repeated calls return the same ids.
func (s *Service) EnsureDefaultHierarchy(projectID string) (*DefaultHierarchy, error) {
	if projectID == "" {
		return nil, graph.Invalidf("project_id is required")
	}

	unlock := s.lockParent(projectID + "/default")
	defer unlock()

	result := &DefaultHierarchy{}

	mission, err := s.findDefault(projectID, graph.TypeMission, "")
	if err != nil {
		return nil, err
	}
	if mission == nil {
		mission, err = s.CreateMission(CreateParams{
			ProjectID:   projectID,
			Title:       "Default Mission",
			Description: "Bootstrap hierarchy for unassigned work",
		})
		if err != nil {
			return nil, err
		}
		if mission, err = s.markDefault(mission.ID); err != nil {
			return nil, err
		}
		result.Created = true
	}
	result.MissionID = mission.ID

	program, err := s.findDefault(projectID, graph.TypeProgram, mission.ID)
	if err != nil {
		return nil, err
	}
	if program == nil {
		program, err = s.CreateProgram(CreateParams{
			ProjectID: projectID,
			ParentID:  mission.ID,
			Title:     "Default Program",
		})
		if err != nil {
			return nil, err
		}
		if program, err = s.markDefault(program.ID); err != nil {
			return nil, err
		}
		result.Created = true
	}
	result.ProgramID = program.ID

	project, err := s.findDefault(projectID, graph.TypeProject, program.ID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		project, err = s.CreateProject(CreateParams{
			ProjectID: projectID,
			ParentID:  program.ID,
			Title:     "Default Project",
		})
		if err != nil {
			return nil, err
		}
		if project, err = s.markDefault(project.ID); err != nil {
			return nil, err
		}
		result.Created = true
	}
	result.ProjectID = project.ID

	phase, err := s.findDefault(projectID, graph.TypePhase, project.ID)
	if err != nil {
		return nil, err
	}
	if phase == nil {
		phase, err = s.CreatePhase(CreateParams{
			ProjectID: projectID,
			ParentID:  project.ID,
			Title:     "Default Phase",
		})
		if err != nil {
			return nil, err
		}
		// The bootstrap phase is immediately workable.
		status := StatusInProgress
		if _, err := s.store.UpdateNode(phase.ID, graph.UpdateNodeParams{
			Status:       &status,
			SourceSystem: sourceSystem,
		}); err != nil {
			return nil, err
		}
		if phase, err = s.markDefault(phase.ID); err != nil {
			return nil, err
		}
		result.Created = true
	}
	result.PhaseID = phase.ID

	return result, nil
}

// findDefault returns the live node of the given type flagged is_default,
// optionally restricted to children of a parent.
func (s *Service) findDefault(projectID, nodeType, parentID string) (*graph.Node, error) {
	var candidates []graph.Node
	var err error
	if parentID != "" {
		candidates, err = s.store.ContainmentChildren(parentID, false)
	} else {
		candidates, err = s.store.NodesByType(projectID, nodeType, false)
	}
	if err != nil {
		return nil, err
	}
	for i := range candidates {
		c := &candidates[i]
		if c.Type == nodeType && c.MetaBool(MetaIsDefault) {
			return c, nil
		}
	}
	return nil, nil
}

func (s *Service) markDefault(nodeID string) (*graph.Node, error) {
	return s.store.UpdateNode(nodeID, graph.UpdateNodeParams{
		Metadata:     map[string]any{MetaIsDefault: true},
		SourceSystem: sourceSystem,
	})
}
