package rules

import (
	"fmt"
	"sort"

	"github.com/opal-se/opal/internal/graph"
)

// CoverageBucket is verification coverage for one group of requirements.
type CoverageBucket struct {
	Total    int     `json:"total"`
	Verified int     `json:"verified"`
	Percent  float64 `json:"percent"`
}

// CoverageMetrics is project-wide verification coverage, broken down by
// subsystem and by node type. Requirements without a subsystem tag land
// in "untagged".
type CoverageMetrics struct {
	ProjectID   string                    `json:"project_id"`
	Subsystem   string                    `json:"subsystem,omitempty"`
	Overall     CoverageBucket            `json:"overall"`
	BySubsystem map[string]CoverageBucket `json:"by_subsystem"`
	ByType      map[string]CoverageBucket `json:"by_type"`
	Summary     string                    `json:"summary"`
}

// GetVerificationCoverageMetrics computes what fraction of the project's
// requirements carry at least one verifying test, overall, per subsystem,
// and per node type. The by-type split also covers non-Requirement types
// placed under test (e.g. Interfaces with a VERIFIED_BY edge). A non-empty
// subsystem restricts every count to nodes carrying that tag.
func (e *Engine) GetVerificationCoverageMetrics(projectID, subsystem string) (*CoverageMetrics, error) {
	if projectID == "" {
		return nil, graph.Invalidf("project_id is required")
	}
	ctx, err := e.snapshot(projectID)
	if err != nil {
		return nil, err
	}

	verified := map[string]bool{}
	countedTypes := map[string]bool{graph.TypeRequirement: true}
	for _, edge := range ctx.EdgesOfType(graph.RelVerifiedBy) {
		to := ctx.NodeByID(edge.ToNodeID)
		if to == nil || to.Type != graph.TypeTest {
			continue
		}
		verified[edge.FromNodeID] = true
		if from := ctx.NodeByID(edge.FromNodeID); from != nil {
			countedTypes[from.Type] = true
		}
	}

	metrics := &CoverageMetrics{
		ProjectID:   projectID,
		Subsystem:   subsystem,
		BySubsystem: map[string]CoverageBucket{},
		ByType:      map[string]CoverageBucket{},
	}
	for _, n := range ctx.Nodes {
		if !countedTypes[n.Type] {
			continue
		}
		if subsystem != "" && n.Subsystem() != subsystem {
			continue
		}
		bucket := metrics.ByType[n.Type]
		bucket.Total++
		if verified[n.ID] {
			bucket.Verified++
		}
		metrics.ByType[n.Type] = bucket
	}
	for _, req := range ctx.NodesOfType(graph.TypeRequirement) {
		if subsystem != "" && req.Subsystem() != subsystem {
			continue
		}
		tag := req.Subsystem()
		if tag == "" {
			tag = "untagged"
		}
		bucket := metrics.BySubsystem[tag]
		bucket.Total++
		metrics.Overall.Total++
		if verified[req.ID] {
			bucket.Verified++
			metrics.Overall.Verified++
		}
		metrics.BySubsystem[tag] = bucket
	}

	metrics.Overall.Percent = percent(metrics.Overall.Verified, metrics.Overall.Total)
	for name, bucket := range metrics.BySubsystem {
		bucket.Percent = percent(bucket.Verified, bucket.Total)
		metrics.BySubsystem[name] = bucket
	}
	for name, bucket := range metrics.ByType {
		bucket.Percent = percent(bucket.Verified, bucket.Total)
		metrics.ByType[name] = bucket
	}

	var parts []string
	for _, name := range sortedBucketNames(metrics.BySubsystem) {
		b := metrics.BySubsystem[name]
		parts = append(parts, fmt.Sprintf("%s %d/%d", name, b.Verified, b.Total))
	}
	metrics.Summary = fmt.Sprintf("%d/%d requirements verified (%.1f%%)",
		metrics.Overall.Verified, metrics.Overall.Total, metrics.Overall.Percent)
	if len(parts) > 0 {
		metrics.Summary += "; by subsystem: "
		for i, p := range parts {
			if i > 0 {
				metrics.Summary += ", "
			}
			metrics.Summary += p
		}
	}
	return metrics, nil
}

func percent(verified, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(verified) / float64(total) * 100
}

func sortedBucketNames(buckets map[string]CoverageBucket) []string {
	names := make([]string, 0, len(buckets))
	for name := range buckets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
