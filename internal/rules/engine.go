// Package rules runs consistency checks over a project's knowledge graph.
//
// Checks are registered as rules with a stable id and severity; the engine
// evaluates them against a single snapshot of the project's nodes and
// edges so one run sees a consistent picture.
package rules

import (
	"fmt"
	"sort"

	"github.com/opal-se/opal/internal/graph"
)

// Finding severities.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
	SeverityInfo    = "info"
)

// snapshotLimit caps how many nodes and edges one check run loads.
const snapshotLimit = 10000

// Finding is one violation reported by a rule.
type Finding struct {
	RuleID   string `json:"rule_id"`
	Severity string `json:"severity"`
	NodeID   string `json:"node_id,omitempty"`
	EdgeID   string `json:"edge_id,omitempty"`
	Message  string `json:"message"`
}

// Context is the project snapshot a rule evaluates against.
type Context struct {
	ProjectID string
	Nodes     []graph.Node
	Edges     []graph.Edge

	nodesByID map[string]*graph.Node
}

// NodeByID returns a node from the snapshot, or nil.
func (c *Context) NodeByID(id string) *graph.Node {
	return c.nodesByID[id]
}

// NodesOfType returns the snapshot's nodes of one type.
func (c *Context) NodesOfType(nodeType string) []graph.Node {
	var out []graph.Node
	for _, n := range c.Nodes {
		if n.Type == nodeType {
			out = append(out, n)
		}
	}
	return out
}

// EdgesOfType returns the snapshot's edges of one relation type.
func (c *Context) EdgesOfType(relationType string) []graph.Edge {
	var out []graph.Edge
	for _, e := range c.Edges {
		if e.RelationType == relationType {
			out = append(out, e)
		}
	}
	return out
}

// Rule is one registered consistency check.
type Rule struct {
	ID          string
	Severity    string
	Description string
	Evaluate    func(*Context) []Finding
}

// Report is the outcome of a check run.
type Report struct {
	ProjectID  string         `json:"project_id"`
	RulesRun   []string       `json:"rules_run"`
	Findings   []Finding      `json:"findings"`
	BySeverity map[string]int `json:"by_severity"`
	ByRule     map[string]int `json:"by_rule"`
	Summary    string         `json:"summary"`
}

// Engine evaluates registered rules against the store.
type Engine struct {
	store *graph.Store
	rules []Rule
}

// New creates an engine with the built-in rule set registered.
func New(store *graph.Store) *Engine {
	e := &Engine{store: store}
	e.Register(Rule{
		ID:          "verification-gaps",
		Severity:    SeverityWarning,
		Description: "requirements without a verifying test, and tests verifying nothing",
		Evaluate:    checkVerificationGaps,
	})
	e.Register(Rule{
		ID:          "allocation-consistency",
		Severity:    SeverityWarning,
		Description: "requirements not allocated to a component, and unused components",
		Evaluate:    checkAllocationConsistency,
	})
	e.Register(Rule{
		ID:          "containment-forest",
		Severity:    SeverityError,
		Description: "nodes with more than one containment parent",
		Evaluate:    checkContainmentForest,
	})
	e.Register(Rule{
		ID:          "dangling-edges",
		Severity:    SeverityError,
		Description: "live edges whose endpoints are missing or deleted",
		Evaluate:    checkDanglingEdges,
	})
	return e
}

// Register adds a rule. Registering an existing id replaces it.
func (e *Engine) Register(r Rule) {
	for i := range e.rules {
		if e.rules[i].ID == r.ID {
			e.rules[i] = r
			return
		}
	}
	e.rules = append(e.rules, r)
}

// Rules returns the registered rules in registration order.
func (e *Engine) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// RunConsistencyChecks evaluates the named rules (all registered rules
// when ruleIDs is empty) against one snapshot of the project.
func (e *Engine) RunConsistencyChecks(projectID string, ruleIDs []string) (*Report, error) {
	if projectID == "" {
		return nil, graph.Invalidf("project_id is required")
	}

	selected, err := e.selectRules(ruleIDs)
	if err != nil {
		return nil, err
	}

	ctx, err := e.snapshot(projectID)
	if err != nil {
		return nil, err
	}

	report := &Report{
		ProjectID:  projectID,
		BySeverity: map[string]int{},
		ByRule:     map[string]int{},
	}
	for _, rule := range selected {
		report.RulesRun = append(report.RulesRun, rule.ID)
		for _, f := range rule.Evaluate(ctx) {
			if f.RuleID == "" {
				f.RuleID = rule.ID
			}
			if f.Severity == "" {
				f.Severity = rule.Severity
			}
			report.Findings = append(report.Findings, f)
			report.BySeverity[f.Severity]++
			report.ByRule[f.RuleID]++
		}
	}

	sort.SliceStable(report.Findings, func(i, j int) bool {
		return severityRank(report.Findings[i].Severity) < severityRank(report.Findings[j].Severity)
	})
	report.Summary = fmt.Sprintf("%d finding(s) across %d rule(s): %d error, %d warning, %d info",
		len(report.Findings), len(selected),
		report.BySeverity[SeverityError], report.BySeverity[SeverityWarning], report.BySeverity[SeverityInfo])
	return report, nil
}

func (e *Engine) selectRules(ruleIDs []string) ([]Rule, error) {
	if len(ruleIDs) == 0 {
		return e.rules, nil
	}
	var selected []Rule
	for _, id := range ruleIDs {
		found := false
		for _, r := range e.rules {
			if r.ID == id {
				selected = append(selected, r)
				found = true
				break
			}
		}
		if !found {
			return nil, graph.Invalidf("unknown rule %q", id)
		}
	}
	return selected, nil
}

// snapshot loads the project's live nodes and edges once per run.
func (e *Engine) snapshot(projectID string) (*Context, error) {
	nodes, err := e.store.ListNodes(graph.NodeFilter{ProjectID: projectID, Limit: snapshotLimit})
	if err != nil {
		return nil, err
	}
	edges, err := e.store.ListEdges(graph.EdgeFilter{ProjectID: projectID, Limit: snapshotLimit})
	if err != nil {
		return nil, err
	}

	ctx := &Context{
		ProjectID: projectID,
		Nodes:     nodes,
		Edges:     edges,
		nodesByID: make(map[string]*graph.Node, len(nodes)),
	}
	for i := range ctx.Nodes {
		ctx.nodesByID[ctx.Nodes[i].ID] = &ctx.Nodes[i]
	}
	return ctx, nil
}

func severityRank(s string) int {
	switch s {
	case SeverityError:
		return 0
	case SeverityWarning:
		return 1
	default:
		return 2
	}
}

// checkContainmentForest reports nodes carrying more than one live
// containment parent. The store rejects these on write, so a finding here
// means data arrived outside the API or a migration went wrong.
func checkContainmentForest(ctx *Context) []Finding {
	parents := map[string]int{}
	for _, e := range ctx.EdgesOfType(graph.RelContains) {
		parents[e.ToNodeID]++
	}

	var findings []Finding
	for nodeID, count := range parents {
		if count <= 1 {
			continue
		}
		findings = append(findings, Finding{
			NodeID:  nodeID,
			Message: fmt.Sprintf("node %s has %d containment parents, expected at most 1", nodeID, count),
		})
	}
	sort.Slice(findings, func(i, j int) bool { return findings[i].NodeID < findings[j].NodeID })
	return findings
}

// checkDanglingEdges reports live edges referencing nodes absent from the
// live snapshot (missing or soft-deleted endpoints).
func checkDanglingEdges(ctx *Context) []Finding {
	var findings []Finding
	for _, e := range ctx.Edges {
		for _, endpoint := range []string{e.FromNodeID, e.ToNodeID} {
			if ctx.NodeByID(endpoint) == nil {
				findings = append(findings, Finding{
					EdgeID:  e.ID,
					Message: fmt.Sprintf("edge %s (%s) references missing or deleted node %s", e.ID, e.RelationType, endpoint),
				})
			}
		}
	}
	return findings
}
