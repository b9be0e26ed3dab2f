package rules

import (
	"fmt"
	"sort"

	"github.com/opal-se/opal/internal/graph"
)

// AllocationReport lists requirements with no allocated component,
// components nothing is allocated to, and cross-subsystem allocations.
type AllocationReport struct {
	ProjectID               string       `json:"project_id"`
	UnallocatedRequirements []graph.Node `json:"unallocated_requirements"`
	UnusedComponents        []graph.Node `json:"unused_components"`
	SubsystemConflicts      []Finding    `json:"subsystem_conflicts,omitempty"`
	Summary                 string       `json:"summary"`
}

// CheckAllocationConsistency scans ALLOCATED_TO coverage between the
// project's requirements and components.
func (e *Engine) CheckAllocationConsistency(projectID string) (*AllocationReport, error) {
	if projectID == "" {
		return nil, graph.Invalidf("project_id is required")
	}
	ctx, err := e.snapshot(projectID)
	if err != nil {
		return nil, err
	}
	return allocationReport(ctx), nil
}

func allocationReport(ctx *Context) *AllocationReport {
	allocated := map[string]bool{} // requirement id -> allocated somewhere
	used := map[string]bool{}      // component id -> has an allocation
	report := &AllocationReport{ProjectID: ctx.ProjectID}

	for _, e := range ctx.EdgesOfType(graph.RelAllocatedTo) {
		from := ctx.NodeByID(e.FromNodeID)
		to := ctx.NodeByID(e.ToNodeID)
		if from == nil || to == nil || to.Type != graph.TypeComponent {
			continue
		}
		allocated[from.ID] = true
		used[to.ID] = true

		// A requirement tagged with a subsystem allocated to a component
		// of a different subsystem is worth a look.
		if from.Subsystem() != "" && to.Subsystem() != "" && from.Subsystem() != to.Subsystem() {
			report.SubsystemConflicts = append(report.SubsystemConflicts, Finding{
				NodeID: from.ID,
				EdgeID: e.ID,
				Message: fmt.Sprintf("%q (subsystem %s) is allocated to %q (subsystem %s)",
					from.Title, from.Subsystem(), to.Title, to.Subsystem()),
			})
		}
	}

	for _, req := range ctx.NodesOfType(graph.TypeRequirement) {
		if !allocated[req.ID] {
			report.UnallocatedRequirements = append(report.UnallocatedRequirements, req)
		}
	}
	for _, comp := range ctx.NodesOfType(graph.TypeComponent) {
		if !used[comp.ID] {
			report.UnusedComponents = append(report.UnusedComponents, comp)
		}
	}

	sort.Slice(report.UnallocatedRequirements, func(i, j int) bool {
		return report.UnallocatedRequirements[i].Title < report.UnallocatedRequirements[j].Title
	})
	sort.Slice(report.UnusedComponents, func(i, j int) bool {
		return report.UnusedComponents[i].Title < report.UnusedComponents[j].Title
	})
	report.Summary = fmt.Sprintf("%d unallocated requirement(s), %d unused component(s), %d subsystem conflict(s)",
		len(report.UnallocatedRequirements), len(report.UnusedComponents), len(report.SubsystemConflicts))
	return report
}

// checkAllocationConsistency is the rule-engine wrapper around the
// allocation scan.
func checkAllocationConsistency(ctx *Context) []Finding {
	report := allocationReport(ctx)

	var findings []Finding
	for _, req := range report.UnallocatedRequirements {
		findings = append(findings, Finding{
			NodeID:  req.ID,
			Message: fmt.Sprintf("requirement %q is not allocated to any component", req.Title),
		})
	}
	for _, comp := range report.UnusedComponents {
		findings = append(findings, Finding{
			NodeID:   comp.ID,
			Severity: SeverityInfo,
			Message:  fmt.Sprintf("component %q has no allocated requirements", comp.Title),
		})
	}
	findings = append(findings, report.SubsystemConflicts...)
	return findings
}
