package rules

import (
	"fmt"
	"sort"

	"github.com/opal-se/opal/internal/graph"
)

// VerificationGaps lists requirements with no verifying test and tests
// that verify nothing.
type VerificationGaps struct {
	ProjectID              string       `json:"project_id"`
	Subsystem              string       `json:"subsystem,omitempty"`
	UnverifiedRequirements []graph.Node `json:"unverified_requirements"`
	OrphanTests            []graph.Node `json:"orphan_tests"`
	Summary                string       `json:"summary"`
}

// FindVerificationGaps scans the project's requirements and tests for
// missing VERIFIED_BY coverage in either direction. A non-empty subsystem
// restricts the scan to nodes carrying that subsystem tag.
func (e *Engine) FindVerificationGaps(projectID, subsystem string) (*VerificationGaps, error) {
	if projectID == "" {
		return nil, graph.Invalidf("project_id is required")
	}
	ctx, err := e.snapshot(projectID)
	if err != nil {
		return nil, err
	}
	return verificationGaps(ctx, subsystem), nil
}

// verificationGaps computes the gap report from one snapshot. A
// requirement counts as verified only when a live VERIFIED_BY edge leads
// to a live Test node; a test is orphaned when no live VERIFIED_BY edge
// reaches it. Verifying edges count regardless of subsystem, so a
// cross-subsystem test still verifies its requirement.
func verificationGaps(ctx *Context, subsystem string) *VerificationGaps {
	verified := map[string]bool{} // requirement id -> has verifying test
	covering := map[string]bool{} // test id -> verifies something
	for _, e := range ctx.EdgesOfType(graph.RelVerifiedBy) {
		to := ctx.NodeByID(e.ToNodeID)
		if to == nil || to.Type != graph.TypeTest {
			continue
		}
		verified[e.FromNodeID] = true
		covering[e.ToNodeID] = true
	}

	gaps := &VerificationGaps{ProjectID: ctx.ProjectID, Subsystem: subsystem}
	for _, req := range ctx.NodesOfType(graph.TypeRequirement) {
		if subsystem != "" && req.Subsystem() != subsystem {
			continue
		}
		if !verified[req.ID] {
			gaps.UnverifiedRequirements = append(gaps.UnverifiedRequirements, req)
		}
	}
	for _, test := range ctx.NodesOfType(graph.TypeTest) {
		if subsystem != "" && test.Subsystem() != subsystem {
			continue
		}
		if !covering[test.ID] {
			gaps.OrphanTests = append(gaps.OrphanTests, test)
		}
	}

	sort.Slice(gaps.UnverifiedRequirements, func(i, j int) bool {
		return gaps.UnverifiedRequirements[i].Title < gaps.UnverifiedRequirements[j].Title
	})
	sort.Slice(gaps.OrphanTests, func(i, j int) bool {
		return gaps.OrphanTests[i].Title < gaps.OrphanTests[j].Title
	})
	gaps.Summary = fmt.Sprintf("%d unverified requirement(s), %d orphan test(s)",
		len(gaps.UnverifiedRequirements), len(gaps.OrphanTests))
	return gaps
}

// checkVerificationGaps is the rule-engine wrapper around the gap scan.
func checkVerificationGaps(ctx *Context) []Finding {
	gaps := verificationGaps(ctx, "")

	var findings []Finding
	for _, req := range gaps.UnverifiedRequirements {
		findings = append(findings, Finding{
			NodeID:  req.ID,
			Message: fmt.Sprintf("requirement %q has no verifying test", req.Title),
		})
	}
	for _, test := range gaps.OrphanTests {
		findings = append(findings, Finding{
			NodeID:  test.ID,
			Message: fmt.Sprintf("test %q does not verify any requirement", test.Title),
		})
	}
	return findings
}
