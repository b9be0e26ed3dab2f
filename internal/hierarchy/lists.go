package hierarchy

import (
	"sort"

	"github.com/opal-se/opal/internal/graph"
)

// ListMissions returns a project's live missions in WBS order.
func (s *Service) ListMissions(projectID string) ([]graph.Node, error) {
	return s.listLevel(projectID, graph.TypeMission, "")
}

// ListPrograms returns live programs, optionally under one mission.
func (s *Service) ListPrograms(projectID, missionID string) ([]graph.Node, error) {
	return s.listLevel(projectID, graph.TypeProgram, missionID)
}

// ListProjects returns live projects, optionally under one program.
func (s *Service) ListProjects(projectID, programID string) ([]graph.Node, error) {
	return s.listLevel(projectID, graph.TypeProject, programID)
}

// ListPhases returns live phases, optionally under one project node.
func (s *Service) ListPhases(projectID, projectNodeID string) ([]graph.Node, error) {
	return s.listLevel(projectID, graph.TypePhase, projectNodeID)
}

// ListWorkPackages returns live work packages, optionally under one phase.
func (s *Service) ListWorkPackages(projectID, phaseID string) ([]graph.Node, error) {
	return s.listLevel(projectID, graph.TypeTask, phaseID)
}

// listLevel scans either a parent's containment children or the project's
// nodes of one type, WBS-ordered. Soft-deleted nodes never appear.
func (s *Service) listLevel(projectID, nodeType, parentID string) ([]graph.Node, error) {
	var nodes []graph.Node
	var err error
	if parentID != "" {
		children, cerr := s.store.ContainmentChildren(parentID, false)
		if cerr != nil {
			return nil, cerr
		}
		for _, c := range children {
			if c.Type == nodeType {
				nodes = append(nodes, c)
			}
		}
	} else {
		if projectID == "" {
			return nil, graph.Invalidf("project_id or parent id is required")
		}
		nodes, err = s.store.NodesByType(projectID, nodeType, false)
		if err != nil {
			return nil, err
		}
	}

	sort.Slice(nodes, func(i, j int) bool {
		return compareWBS(nodes[i].MetaString(MetaWBS), nodes[j].MetaString(MetaWBS)) < 0
	})
	return nodes, nil
}
