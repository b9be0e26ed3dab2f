package rules

import (
	"testing"

	"github.com/opal-se/opal/internal/graph"
)

// ─── Test helpers ────────────────────────────────────────────────────────────

func newTestEngine(t *testing.T) (*Engine, *graph.Store) {
	t.Helper()
	store, err := graph.New(graph.Config{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return New(store), store
}

func node(t *testing.T, s *graph.Store, nodeType, title, subsystem string) *graph.Node {
	t.Helper()
	var meta map[string]any
	if subsystem != "" {
		meta = map[string]any{"subsystem": subsystem}
	}
	n, err := s.CreateNode(graph.CreateNodeParams{
		ProjectID: "proj-1",
		Type:      nodeType,
		Title:     title,
		Metadata:  meta,
	})
	if err != nil {
		t.Fatalf("create %s %q: %v", nodeType, title, err)
	}
	return n
}

func link(t *testing.T, s *graph.Store, from, to *graph.Node, relation string) {
	t.Helper()
	if _, err := s.CreateEdge(graph.CreateEdgeParams{
		FromNodeID:   from.ID,
		ToNodeID:     to.ID,
		RelationType: relation,
	}); err != nil {
		t.Fatalf("link %s -> %s: %v", from.Title, to.Title, err)
	}
}

// ─── Verification gaps ───────────────────────────────────────────────────────

func TestFindVerificationGaps(t *testing.T) {
	e, s := newTestEngine(t)
	verified := node(t, s, graph.TypeRequirement, "verified req", "")
	unverified := node(t, s, graph.TypeRequirement, "unverified req", "")
	covering := node(t, s, graph.TypeTest, "covering test", "")
	orphan := node(t, s, graph.TypeTest, "orphan test", "")
	link(t, s, verified, covering, graph.RelVerifiedBy)

	gaps, err := e.FindVerificationGaps("proj-1", "")
	if err != nil {
		t.Fatalf("FindVerificationGaps: %v", err)
	}
	if len(gaps.UnverifiedRequirements) != 1 || gaps.UnverifiedRequirements[0].ID != unverified.ID {
		t.Errorf("unverified = %+v", gaps.UnverifiedRequirements)
	}
	if len(gaps.OrphanTests) != 1 || gaps.OrphanTests[0].ID != orphan.ID {
		t.Errorf("orphans = %+v", gaps.OrphanTests)
	}
}

func TestFindVerificationGaps_EdgeToNonTestDoesNotCount(t *testing.T) {
	e, s := newTestEngine(t)
	req := node(t, s, graph.TypeRequirement, "req", "")
	note := node(t, s, graph.TypeNote, "note", "")
	link(t, s, req, note, graph.RelVerifiedBy)

	gaps, err := e.FindVerificationGaps("proj-1", "")
	if err != nil {
		t.Fatalf("FindVerificationGaps: %v", err)
	}
	if len(gaps.UnverifiedRequirements) != 1 {
		t.Errorf("unverified = %d, want 1 (a note is not a test)", len(gaps.UnverifiedRequirements))
	}
}

func TestFindVerificationGaps_SubsystemScope(t *testing.T) {
	e, s := newTestEngine(t)
	power := node(t, s, graph.TypeRequirement, "power req", "power")
	node(t, s, graph.TypeRequirement, "thermal req", "thermal")
	node(t, s, graph.TypeTest, "thermal test", "thermal")

	gaps, err := e.FindVerificationGaps("proj-1", "power")
	if err != nil {
		t.Fatalf("FindVerificationGaps: %v", err)
	}
	if len(gaps.UnverifiedRequirements) != 1 || gaps.UnverifiedRequirements[0].ID != power.ID {
		t.Errorf("unverified = %+v, want only the power requirement", gaps.UnverifiedRequirements)
	}
	if len(gaps.OrphanTests) != 0 {
		t.Errorf("orphans = %+v, want none in the power subsystem", gaps.OrphanTests)
	}
}

// ─── Allocation consistency ──────────────────────────────────────────────────

func TestCheckAllocationConsistency(t *testing.T) {
	e, s := newTestEngine(t)
	allocated := node(t, s, graph.TypeRequirement, "allocated req", "power")
	unallocated := node(t, s, graph.TypeRequirement, "unallocated req", "")
	comp := node(t, s, graph.TypeComponent, "battery", "thermal")
	unused := node(t, s, graph.TypeComponent, "spare bracket", "")
	link(t, s, allocated, comp, graph.RelAllocatedTo)

	report, err := e.CheckAllocationConsistency("proj-1")
	if err != nil {
		t.Fatalf("CheckAllocationConsistency: %v", err)
	}
	if len(report.UnallocatedRequirements) != 1 || report.UnallocatedRequirements[0].ID != unallocated.ID {
		t.Errorf("unallocated = %+v", report.UnallocatedRequirements)
	}
	if len(report.UnusedComponents) != 1 || report.UnusedComponents[0].ID != unused.ID {
		t.Errorf("unused = %+v", report.UnusedComponents)
	}
	// power requirement allocated to thermal component.
	if len(report.SubsystemConflicts) != 1 {
		t.Errorf("conflicts = %+v, want 1", report.SubsystemConflicts)
	}
}

// ─── Coverage metrics ────────────────────────────────────────────────────────

func TestGetVerificationCoverageMetrics(t *testing.T) {
	e, s := newTestEngine(t)
	r1 := node(t, s, graph.TypeRequirement, "r1", "power")
	node(t, s, graph.TypeRequirement, "r2", "power")
	node(t, s, graph.TypeRequirement, "r3", "")
	test := node(t, s, graph.TypeTest, "t1", "")
	link(t, s, r1, test, graph.RelVerifiedBy)

	metrics, err := e.GetVerificationCoverageMetrics("proj-1", "")
	if err != nil {
		t.Fatalf("GetVerificationCoverageMetrics: %v", err)
	}
	if metrics.Overall.Total != 3 || metrics.Overall.Verified != 1 {
		t.Errorf("overall = %+v", metrics.Overall)
	}
	power := metrics.BySubsystem["power"]
	if power.Total != 2 || power.Verified != 1 || power.Percent != 50 {
		t.Errorf("power bucket = %+v", power)
	}
	untagged := metrics.BySubsystem["untagged"]
	if untagged.Total != 1 || untagged.Verified != 0 {
		t.Errorf("untagged bucket = %+v", untagged)
	}
	reqBucket := metrics.ByType[graph.TypeRequirement]
	if reqBucket.Total != 3 || reqBucket.Verified != 1 {
		t.Errorf("requirement type bucket = %+v", reqBucket)
	}
}

func TestGetVerificationCoverageMetrics_ByTypeCoversVerifiedInterfaces(t *testing.T) {
	e, s := newTestEngine(t)
	tested := node(t, s, graph.TypeInterface, "CAN bus", "")
	node(t, s, graph.TypeInterface, "RS-485", "")
	test := node(t, s, graph.TypeTest, "bus test", "")
	link(t, s, tested, test, graph.RelVerifiedBy)

	metrics, err := e.GetVerificationCoverageMetrics("proj-1", "")
	if err != nil {
		t.Fatalf("GetVerificationCoverageMetrics: %v", err)
	}
	iface := metrics.ByType[graph.TypeInterface]
	if iface.Total != 2 || iface.Verified != 1 || iface.Percent != 50 {
		t.Errorf("interface bucket = %+v", iface)
	}
	// Interfaces never feed the requirement-based overall number.
	if metrics.Overall.Total != 0 {
		t.Errorf("overall total = %d, want 0", metrics.Overall.Total)
	}
}

func TestGetVerificationCoverageMetrics_SubsystemScope(t *testing.T) {
	e, s := newTestEngine(t)
	r1 := node(t, s, graph.TypeRequirement, "r1", "power")
	node(t, s, graph.TypeRequirement, "r2", "power")
	node(t, s, graph.TypeRequirement, "r3", "thermal")
	test := node(t, s, graph.TypeTest, "t1", "")
	link(t, s, r1, test, graph.RelVerifiedBy)

	metrics, err := e.GetVerificationCoverageMetrics("proj-1", "power")
	if err != nil {
		t.Fatalf("GetVerificationCoverageMetrics: %v", err)
	}
	if metrics.Overall.Total != 2 || metrics.Overall.Verified != 1 {
		t.Errorf("overall = %+v, want 1/2 within power", metrics.Overall)
	}
	if _, ok := metrics.BySubsystem["thermal"]; ok {
		t.Error("thermal bucket present in a power-scoped scan")
	}
}

// ─── Rule engine runs ────────────────────────────────────────────────────────

func TestRunConsistencyChecks_AllRules(t *testing.T) {
	e, s := newTestEngine(t)
	node(t, s, graph.TypeRequirement, "lonely req", "")

	report, err := e.RunConsistencyChecks("proj-1", nil)
	if err != nil {
		t.Fatalf("RunConsistencyChecks: %v", err)
	}
	if len(report.RulesRun) != 4 {
		t.Errorf("rules run = %v, want all 4 built-ins", report.RulesRun)
	}
	// The lonely requirement trips both verification and allocation rules.
	if report.ByRule["verification-gaps"] != 1 {
		t.Errorf("verification-gaps findings = %d, want 1", report.ByRule["verification-gaps"])
	}
	if report.ByRule["allocation-consistency"] != 1 {
		t.Errorf("allocation-consistency findings = %d, want 1", report.ByRule["allocation-consistency"])
	}
	if report.BySeverity[SeverityWarning] != 2 {
		t.Errorf("warnings = %d, want 2", report.BySeverity[SeverityWarning])
	}
	if report.Summary == "" {
		t.Error("summary empty")
	}
}

func TestRunConsistencyChecks_SelectedRule(t *testing.T) {
	e, s := newTestEngine(t)
	node(t, s, graph.TypeRequirement, "lonely req", "")

	report, err := e.RunConsistencyChecks("proj-1", []string{"verification-gaps"})
	if err != nil {
		t.Fatalf("RunConsistencyChecks: %v", err)
	}
	if len(report.RulesRun) != 1 || report.RulesRun[0] != "verification-gaps" {
		t.Errorf("rules run = %v", report.RulesRun)
	}
	if report.ByRule["allocation-consistency"] != 0 {
		t.Error("unselected rule produced findings")
	}
}

func TestRunConsistencyChecks_UnknownRule(t *testing.T) {
	e, _ := newTestEngine(t)

	_, err := e.RunConsistencyChecks("proj-1", []string{"no-such-rule"})
	if !graph.IsCode(err, graph.CodeValidation) {
		t.Errorf("err = %v, want VALIDATION_ERROR", err)
	}
}

func TestDanglingEdgesRule_FlagsDeletedEndpoint(t *testing.T) {
	_, s := newTestEngine(t)
	a := node(t, s, graph.TypeComponent, "a", "")
	b := node(t, s, graph.TypeComponent, "b", "")
	link(t, s, a, b, graph.RelDependsOn)

	// Force an inconsistent state the API would normally prevent: the
	// node disappears while its edge stays live.
	ctx := &Context{
		ProjectID: "proj-1",
		Edges: []graph.Edge{{
			ID: "edge-1", FromNodeID: a.ID, ToNodeID: "vanished", RelationType: graph.RelDependsOn,
		}},
		Nodes:     []graph.Node{*a, *b},
		nodesByID: map[string]*graph.Node{a.ID: a, b.ID: b},
	}
	findings := checkDanglingEdges(ctx)
	if len(findings) != 1 || findings[0].EdgeID != "edge-1" {
		t.Errorf("findings = %+v, want the dangling edge", findings)
	}
}

func TestContainmentForestRule_FlagsDoubleParent(t *testing.T) {
	ctx := &Context{
		ProjectID: "proj-1",
		Edges: []graph.Edge{
			{ID: "e1", FromNodeID: "p1", ToNodeID: "child", RelationType: graph.RelContains},
			{ID: "e2", FromNodeID: "p2", ToNodeID: "child", RelationType: graph.RelContains},
		},
	}
	findings := checkContainmentForest(ctx)
	if len(findings) != 1 || findings[0].NodeID != "child" {
		t.Errorf("findings = %+v, want the double-parented child", findings)
	}
}
