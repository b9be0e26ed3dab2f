package hierarchy

import (
	"fmt"
	"testing"

	"github.com/opal-se/opal/internal/graph"
)

// ─── Test helpers ────────────────────────────────────────────────────────────

func newTestService(t *testing.T) *Service {
	t.Helper()
	store, err := graph.New(graph.Config{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return New(store)
}

// buildChain creates mission→program→project→phase and returns them.
func buildChain(t *testing.T, svc *Service) (mission, program, project, phase *graph.Node) {
	t.Helper()
	var err error
	mission, err = svc.CreateMission(CreateParams{ProjectID: "proj-1", Title: "Mars sample return"})
	if err != nil {
		t.Fatalf("CreateMission: %v", err)
	}
	program, err = svc.CreateProgram(CreateParams{ParentID: mission.ID, Title: "Lander program"})
	if err != nil {
		t.Fatalf("CreateProgram: %v", err)
	}
	project, err = svc.CreateProject(CreateParams{ParentID: program.ID, Title: "Descent stage"})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	phase, err = svc.CreatePhase(CreateParams{ParentID: project.ID, Title: "Design"})
	if err != nil {
		t.Fatalf("CreatePhase: %v", err)
	}
	return mission, program, project, phase
}

func newTask(t *testing.T, svc *Service, title, status string) *graph.Node {
	t.Helper()
	task, err := svc.Store().CreateNode(graph.CreateNodeParams{
		ProjectID: "proj-1",
		Type:      graph.TypeTask,
		Title:     title,
		Status:    status,
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	return task
}

// ─── WBS numbering ───────────────────────────────────────────────────────────

func TestWBS_ChainNumbers(t *testing.T) {
	svc := newTestService(t)
	mission, program, project, phase := buildChain(t, svc)

	want := map[string]string{
		mission.MetaString(MetaWBS): "1.0",
		program.MetaString(MetaWBS): "1.1",
		project.MetaString(MetaWBS): "1.1.1",
		phase.MetaString(MetaWBS):   "1.1.1.1",
	}
	for got, expect := range want {
		if got != expect {
			t.Errorf("wbs = %q, want %q", got, expect)
		}
	}
}

func TestWBS_SiblingsIncrement(t *testing.T) {
	svc := newTestService(t)
	mission, _, _, _ := buildChain(t, svc)

	second, err := svc.CreateProgram(CreateParams{ParentID: mission.ID, Title: "Orbiter program"})
	if err != nil {
		t.Fatalf("CreateProgram: %v", err)
	}
	if got := second.MetaString(MetaWBS); got != "1.2" {
		t.Errorf("second program wbs = %q, want 1.2", got)
	}

	mission2, err := svc.CreateMission(CreateParams{ProjectID: "proj-1", Title: "Second mission"})
	if err != nil {
		t.Fatalf("CreateMission: %v", err)
	}
	if got := mission2.MetaString(MetaWBS); got != "2.0" {
		t.Errorf("second mission wbs = %q, want 2.0", got)
	}
}

func TestWBS_DeletedNumbersNeverReused(t *testing.T) {
	svc := newTestService(t)
	mission, _, _, _ := buildChain(t, svc)

	second, err := svc.CreateProgram(CreateParams{ParentID: mission.ID, Title: "Doomed program"})
	if err != nil {
		t.Fatalf("CreateProgram: %v", err)
	}
	if second.MetaString(MetaWBS) != "1.2" {
		t.Fatalf("precondition: wbs = %q", second.MetaString(MetaWBS))
	}
	if err := svc.Store().DeleteNode(second.ID, "test"); err != nil {
		t.Fatalf("DeleteNode: %v", err)
	}

	third, err := svc.CreateProgram(CreateParams{ParentID: mission.ID, Title: "Replacement program"})
	if err != nil {
		t.Fatalf("CreateProgram: %v", err)
	}
	if got := third.MetaString(MetaWBS); got != "1.3" {
		t.Errorf("wbs after delete = %q, want 1.3 (1.2 stays retired)", got)
	}
}

func TestWBS_UniqueUnderConcurrentCreation(t *testing.T) {
	svc := newTestService(t)
	mission, _, _, _ := buildChain(t, svc)

	const n = 8
	results := make(chan string, n)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			p, err := svc.CreateProgram(CreateParams{
				ParentID: mission.ID,
				Title:    fmt.Sprintf("Program %d", i),
			})
			if err != nil {
				errs <- err
				return
			}
			results <- p.MetaString(MetaWBS)
		}(i)
	}

	seen := map[string]bool{}
	for i := 0; i < n; i++ {
		select {
		case err := <-errs:
			t.Fatalf("concurrent CreateProgram: %v", err)
		case wbs := <-results:
			if seen[wbs] {
				t.Errorf("duplicate wbs %q", wbs)
			}
			seen[wbs] = true
		}
	}
}

// ─── Parent validation ───────────────────────────────────────────────────────

func TestCreateChild_WrongParentType(t *testing.T) {
	svc := newTestService(t)
	mission, _, _, _ := buildChain(t, svc)

	// A project must hang off a program, not a mission.
	_, err := svc.CreateProject(CreateParams{ParentID: mission.ID, Title: "misparented"})
	if !graph.IsCode(err, graph.CodeValidation) {
		t.Errorf("err = %v, want VALIDATION_ERROR", err)
	}
}

// ─── Work packages ───────────────────────────────────────────────────────────

func TestAddWorkPackageToPhase(t *testing.T) {
	svc := newTestService(t)
	_, _, _, phase := buildChain(t, svc)
	task := newTask(t, svc, "Machine bracket", "open")

	attached, err := svc.AddWorkPackageToPhase(phase.ID, task.ID)
	if err != nil {
		t.Fatalf("AddWorkPackageToPhase: %v", err)
	}
	if got := attached.MetaString(MetaWBS); got != "1.1.1.1.1" {
		t.Errorf("task wbs = %q, want 1.1.1.1.1", got)
	}
	if attached.MetaString(MetaPhaseID) != phase.ID {
		t.Errorf("phase_id = %q, want %s", attached.MetaString(MetaPhaseID), phase.ID)
	}

	// Already contained: second attach rejected by the forest invariant.
	if _, err := svc.AddWorkPackageToPhase(phase.ID, task.ID); !graph.IsCode(err, graph.CodeValidation) {
		t.Errorf("double attach err = %v, want VALIDATION_ERROR", err)
	}
}

// ─── Phase gates ─────────────────────────────────────────────────────────────

func TestReviewPhaseGate_ProceedBlockedByOpenWork(t *testing.T) {
	svc := newTestService(t)
	_, _, _, phase := buildChain(t, svc)
	task := newTask(t, svc, "Open work", "in_progress")
	if _, err := svc.AddWorkPackageToPhase(phase.ID, task.ID); err != nil {
		t.Fatalf("AddWorkPackageToPhase: %v", err)
	}

	_, err := svc.ReviewPhaseGate(phase.ID, DecisionProceed, "", "reviewer")
	if !graph.IsCode(err, graph.CodeInvalidState) {
		t.Errorf("err = %v, want INVALID_STATE", err)
	}
}

func TestReviewPhaseGate_ProceedActivatesNextPhase(t *testing.T) {
	svc := newTestService(t)
	_, _, project, phase := buildChain(t, svc)
	next, err := svc.CreatePhase(CreateParams{ParentID: project.ID, Title: "Build"})
	if err != nil {
		t.Fatalf("CreatePhase: %v", err)
	}

	task := newTask(t, svc, "Done work", "completed")
	if _, err := svc.AddWorkPackageToPhase(phase.ID, task.ID); err != nil {
		t.Fatalf("AddWorkPackageToPhase: %v", err)
	}

	result, err := svc.ReviewPhaseGate(phase.ID, DecisionProceed, "ship it", "reviewer")
	if err != nil {
		t.Fatalf("ReviewPhaseGate: %v", err)
	}
	if result.Phase.Status != StatusComplete {
		t.Errorf("phase status = %q, want complete", result.Phase.Status)
	}
	if result.NextPhaseActivated == nil || result.NextPhaseActivated.ID != next.ID {
		t.Fatalf("next phase not activated: %+v", result.NextPhaseActivated)
	}
	if result.NextPhaseActivated.Status != StatusInProgress {
		t.Errorf("next phase status = %q, want in_progress", result.NextPhaseActivated.Status)
	}

	// The review decision is recorded on the phase.
	review, ok := result.Phase.Metadata[MetaGateReview].(map[string]any)
	if !ok {
		t.Fatalf("gate_review metadata missing: %+v", result.Phase.Metadata)
	}
	if review["decision"] != DecisionProceed || review["feedback"] != "ship it" {
		t.Errorf("review = %+v", review)
	}
}

func TestReviewPhaseGate_LastPhaseCompletesProject(t *testing.T) {
	svc := newTestService(t)
	_, _, project, phase := buildChain(t, svc)

	// No work packages: proceed is vacuously allowed.
	result, err := svc.ReviewPhaseGate(phase.ID, DecisionProceed, "", "reviewer")
	if err != nil {
		t.Fatalf("ReviewPhaseGate: %v", err)
	}
	if result.NextPhaseActivated != nil {
		t.Errorf("unexpected next phase: %+v", result.NextPhaseActivated)
	}
	if result.ProjectCompleted == nil || result.ProjectCompleted.ID != project.ID {
		t.Fatalf("project not completed: %+v", result.ProjectCompleted)
	}
	if result.ProjectCompleted.Status != StatusComplete {
		t.Errorf("project status = %q, want complete", result.ProjectCompleted.Status)
	}
}

func TestReviewPhaseGate_HoldReviseCancel(t *testing.T) {
	svc := newTestService(t)
	_, _, project, _ := buildChain(t, svc)

	cases := []struct {
		decision string
		want     string
	}{
		{DecisionHold, StatusAtGate},
		{DecisionRevise, StatusInProgress},
		{DecisionCancel, StatusCancelled},
	}
	for _, tc := range cases {
		phase, err := svc.CreatePhase(CreateParams{ParentID: project.ID, Title: "Phase " + tc.decision})
		if err != nil {
			t.Fatalf("CreatePhase: %v", err)
		}
		result, err := svc.ReviewPhaseGate(phase.ID, tc.decision, "", "reviewer")
		if err != nil {
			t.Fatalf("ReviewPhaseGate(%s): %v", tc.decision, err)
		}
		if result.Phase.Status != tc.want {
			t.Errorf("decision %s: status = %q, want %q", tc.decision, result.Phase.Status, tc.want)
		}
	}
}

func TestReviewPhaseGate_UnknownDecision(t *testing.T) {
	svc := newTestService(t)
	_, _, _, phase := buildChain(t, svc)

	_, err := svc.ReviewPhaseGate(phase.ID, "maybe", "", "reviewer")
	if !graph.IsCode(err, graph.CodeValidation) {
		t.Errorf("err = %v, want VALIDATION_ERROR", err)
	}
}

func TestPendingGateReviews(t *testing.T) {
	svc := newTestService(t)
	_, _, _, phase := buildChain(t, svc)

	if _, err := svc.ReviewPhaseGate(phase.ID, DecisionHold, "", "reviewer"); err != nil {
		t.Fatalf("ReviewPhaseGate: %v", err)
	}

	pending, err := svc.PendingGateReviews("proj-1")
	if err != nil {
		t.Fatalf("PendingGateReviews: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != phase.ID {
		t.Errorf("pending = %+v, want just the held phase", pending)
	}
}

// ─── Tree and context ────────────────────────────────────────────────────────

func TestGetHierarchyTree_AggregatesStats(t *testing.T) {
	svc := newTestService(t)
	mission, _, _, phase := buildChain(t, svc)

	done := newTask(t, svc, "done", "completed")
	open := newTask(t, svc, "open", "open")
	for _, task := range []*graph.Node{done, open} {
		if _, err := svc.AddWorkPackageToPhase(phase.ID, task.ID); err != nil {
			t.Fatalf("AddWorkPackageToPhase: %v", err)
		}
	}
	if _, err := svc.ReviewPhaseGate(phase.ID, DecisionHold, "", "r"); err != nil {
		t.Fatalf("ReviewPhaseGate: %v", err)
	}

	tree, err := svc.GetHierarchyTree(mission.ID, 0)
	if err != nil {
		t.Fatalf("GetHierarchyTree: %v", err)
	}
	if tree.Stats.WorkPackagesTotal != 2 {
		t.Errorf("work packages total = %d, want 2", tree.Stats.WorkPackagesTotal)
	}
	if tree.Stats.WorkPackagesDone != 1 {
		t.Errorf("work packages done = %d, want 1", tree.Stats.WorkPackagesDone)
	}
	if tree.Stats.PhasesAtGate != 1 {
		t.Errorf("phases at gate = %d, want 1", tree.Stats.PhasesAtGate)
	}
	// mission → program → project → phase, four levels of children.
	if len(tree.Children) != 1 || len(tree.Children[0].Children) != 1 {
		t.Fatalf("tree shape unexpected: %+v", tree)
	}
}

func TestGetWorkPackageContext_FullChain(t *testing.T) {
	svc := newTestService(t)
	mission, program, project, phase := buildChain(t, svc)
	task := newTask(t, svc, "wp", "open")
	if _, err := svc.AddWorkPackageToPhase(phase.ID, task.ID); err != nil {
		t.Fatalf("AddWorkPackageToPhase: %v", err)
	}

	ctx, err := svc.GetWorkPackageContext(task.ID)
	if err != nil {
		t.Fatalf("GetWorkPackageContext: %v", err)
	}
	if ctx.Phase == nil || ctx.Phase.ID != phase.ID {
		t.Error("phase missing")
	}
	if ctx.Project == nil || ctx.Project.ID != project.ID {
		t.Error("project missing")
	}
	if ctx.Program == nil || ctx.Program.ID != program.ID {
		t.Error("program missing")
	}
	if ctx.Mission == nil || ctx.Mission.ID != mission.ID {
		t.Error("mission missing")
	}
	if len(ctx.MissingLevels) != 0 {
		t.Errorf("missing levels = %v, want none", ctx.MissingLevels)
	}
}

func TestGetWorkPackageContext_SkipsAbsentPhase(t *testing.T) {
	svc := newTestService(t)
	mission, program, project, _ := buildChain(t, svc)
	task := newTask(t, svc, "hotfix", "open")

	// Task contained directly by the project, no phase in between.
	if _, err := svc.Store().CreateEdge(graph.CreateEdgeParams{
		FromNodeID:   project.ID,
		ToNodeID:     task.ID,
		RelationType: graph.RelContains,
	}); err != nil {
		t.Fatalf("CreateEdge: %v", err)
	}

	ctx, err := svc.GetWorkPackageContext(task.ID)
	if err != nil {
		t.Fatalf("GetWorkPackageContext: %v", err)
	}
	if ctx.Phase != nil {
		t.Errorf("phase = %+v, want nil", ctx.Phase)
	}
	if ctx.Project == nil || ctx.Project.ID != project.ID {
		t.Error("project missing")
	}
	if ctx.Program == nil || ctx.Program.ID != program.ID {
		t.Error("program missing")
	}
	if ctx.Mission == nil || ctx.Mission.ID != mission.ID {
		t.Error("mission missing")
	}
	if len(ctx.MissingLevels) != 1 || ctx.MissingLevels[0] != graph.TypePhase {
		t.Errorf("missing levels = %v, want just Phase", ctx.MissingLevels)
	}
}

func TestGetWorkPackageContext_OrphanTask(t *testing.T) {
	svc := newTestService(t)
	task := newTask(t, svc, "orphan", "open")

	ctx, err := svc.GetWorkPackageContext(task.ID)
	if err != nil {
		t.Fatalf("GetWorkPackageContext: %v", err)
	}
	if len(ctx.MissingLevels) != 4 {
		t.Errorf("missing levels = %v, want all four", ctx.MissingLevels)
	}
}

// ─── Bootstrap ───────────────────────────────────────────────────────────────

func TestEnsureDefaultHierarchy_Idempotent(t *testing.T) {
	svc := newTestService(t)

	first, err := svc.EnsureDefaultHierarchy("proj-1")
	if err != nil {
		t.Fatalf("EnsureDefaultHierarchy: %v", err)
	}
	if !first.Created {
		t.Error("first call should create the chain")
	}

	second, err := svc.EnsureDefaultHierarchy("proj-1")
	if err != nil {
		t.Fatalf("EnsureDefaultHierarchy (second): %v", err)
	}
	if second.Created {
		t.Error("second call should find the existing chain")
	}
	if first.MissionID != second.MissionID || first.PhaseID != second.PhaseID {
		t.Errorf("ids differ between calls: %+v vs %+v", first, second)
	}

	// The bootstrap phase is immediately usable for work packages.
	phase, err := svc.Store().GetNode(first.PhaseID)
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	if phase.Status != StatusInProgress {
		t.Errorf("default phase status = %q, want in_progress", phase.Status)
	}
}

// ─── Listing ─────────────────────────────────────────────────────────────────

func TestListLevels_WBSOrder(t *testing.T) {
	svc := newTestService(t)
	mission, _, _, _ := buildChain(t, svc)
	for _, title := range []string{"B program", "C program"} {
		if _, err := svc.CreateProgram(CreateParams{ParentID: mission.ID, Title: title}); err != nil {
			t.Fatalf("CreateProgram: %v", err)
		}
	}

	programs, err := svc.ListPrograms("proj-1", mission.ID)
	if err != nil {
		t.Fatalf("ListPrograms: %v", err)
	}
	if len(programs) != 3 {
		t.Fatalf("programs = %d, want 3", len(programs))
	}
	for i, want := range []string{"1.1", "1.2", "1.3"} {
		if got := programs[i].MetaString(MetaWBS); got != want {
			t.Errorf("programs[%d] wbs = %q, want %q", i, got, want)
		}
	}
}
