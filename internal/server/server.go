// Package server wires all MCP components and creates the server instance.
//
// This is the composition root: it creates the graph store, the services
// on top of it, and injects them into the tools that depend on them.
// No business logic lives here — only wiring.
package server

import (
	"fmt"
	"log"

	"github.com/mark3labs/mcp-go/server"

	"github.com/opal-se/opal/internal/config"
	"github.com/opal-se/opal/internal/graph"
	"github.com/opal-se/opal/internal/graphtools"
	"github.com/opal-se/opal/internal/hierarchy"
	"github.com/opal-se/opal/internal/notify"
	"github.com/opal-se/opal/internal/rules"
	"github.com/opal-se/opal/internal/traversal"
)

// Version is set at build time via ldflags.
var Version = "dev"

// New creates and configures the MCP server with all tools registered.
// This is the single place where all dependencies are resolved.
//
// The returned cleanup function closes the store's database connection
// and the notification channel; it must be called on shutdown (typically
// via defer) and is always non-nil.
func New(cfg *config.Config) (*server.MCPServer, func(), error) {
	// --- Notification channel (optional) ---
	//
	// Event publishing is best effort: an unreachable broker disables
	// it with a warning, it never blocks startup or mutations.

	var publisher graph.Publisher
	closeNotify := noop
	if cfg.NATSURL != "" {
		nc, err := notify.Connect(cfg.NATSURL)
		if err != nil {
			log.Printf("WARNING: event publishing disabled: %v", err)
		} else {
			publisher = nc
			closeNotify = nc.Close
		}
	}

	// --- Graph store and services ---

	store, err := graph.New(graph.Config{
		DataDir:   cfg.DataDir,
		Publisher: publisher,
	})
	if err != nil {
		closeNotify()
		return nil, noop, fmt.Errorf("opening graph store: %w", err)
	}
	cleanup := func() {
		if err := store.Close(); err != nil {
			log.Printf("WARNING: graph store close: %v", err)
		}
		closeNotify()
	}

	hierarchySvc := hierarchy.New(store)
	traversalEngine := traversal.New(store, cfg.MaxTraversalDepth, cfg.MaxTraversalNodes)
	ruleEngine := rules.New(store)

	// --- Create the MCP server ---

	s := server.NewMCPServer(
		"opal",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	registerGraphTools(s, store)
	registerTraversalTools(s, traversalEngine)
	registerCheckTools(s, ruleEngine)
	registerHierarchyTools(s, hierarchySvc)

	return s, cleanup, nil
}

// noop is the default cleanup when initialization fails early.
func noop() {}

// registerGraphTools registers node, edge and history tools.
func registerGraphTools(s *server.MCPServer, store *graph.Store) {
	createNode := graphtools.NewCreateNodeTool(store)
	s.AddTool(createNode.Definition(), createNode.Handle)

	updateNode := graphtools.NewUpdateNodeTool(store)
	s.AddTool(updateNode.Definition(), updateNode.Handle)

	createEdge := graphtools.NewCreateEdgeTool(store)
	s.AddTool(createEdge.Definition(), createEdge.Handle)

	queryModel := graphtools.NewQuerySystemModelTool(store)
	s.AddTool(queryModel.Definition(), queryModel.Handle)

	getHistory := graphtools.NewGetHistoryTool(store)
	s.AddTool(getHistory.Definition(), getHistory.Handle)

	similarChanges := graphtools.NewFindSimilarPastChangesTool(store)
	s.AddTool(similarChanges.Definition(), similarChanges.Handle)
}

// registerTraversalTools registers slice and trace tools.
func registerTraversalTools(s *server.MCPServer, engine *traversal.Engine) {
	systemSlice := graphtools.NewGetSystemSliceTool(engine)
	s.AddTool(systemSlice.Definition(), systemSlice.Handle)

	downstream := graphtools.NewTraceDownstreamImpactTool(engine)
	s.AddTool(downstream.Definition(), downstream.Handle)

	upstream := graphtools.NewTraceUpstreamRationaleTool(engine)
	s.AddTool(upstream.Definition(), upstream.Handle)
}

// registerCheckTools registers the consistency and coverage tools.
func registerCheckTools(s *server.MCPServer, engine *rules.Engine) {
	verificationGaps := graphtools.NewFindVerificationGapsTool(engine)
	s.AddTool(verificationGaps.Definition(), verificationGaps.Handle)

	allocation := graphtools.NewCheckAllocationConsistencyTool(engine)
	s.AddTool(allocation.Definition(), allocation.Handle)

	coverage := graphtools.NewGetVerificationCoverageMetricsTool(engine)
	s.AddTool(coverage.Definition(), coverage.Handle)

	consistency := graphtools.NewRunConsistencyChecksTool(engine)
	s.AddTool(consistency.Definition(), consistency.Handle)
}

// registerHierarchyTools registers the planning hierarchy tools.
func registerHierarchyTools(s *server.MCPServer, svc *hierarchy.Service) {
	// --- Level creation ---
	createMission := graphtools.NewCreateMissionTool(svc)
	s.AddTool(createMission.Definition(), createMission.Handle)

	createProgram := graphtools.NewCreateProgramTool(svc)
	s.AddTool(createProgram.Definition(), createProgram.Handle)

	createProject := graphtools.NewCreateProjectTool(svc)
	s.AddTool(createProject.Definition(), createProject.Handle)

	createPhase := graphtools.NewCreatePhaseTool(svc)
	s.AddTool(createPhase.Definition(), createPhase.Handle)

	addWorkPackage := graphtools.NewAddWorkPackageToPhaseTool(svc)
	s.AddTool(addWorkPackage.Definition(), addWorkPackage.Handle)

	// --- Level listing ---
	listMissions := graphtools.NewListMissionsTool(svc)
	s.AddTool(listMissions.Definition(), listMissions.Handle)

	listPrograms := graphtools.NewListProgramsTool(svc)
	s.AddTool(listPrograms.Definition(), listPrograms.Handle)

	listProjects := graphtools.NewListProjectsTool(svc)
	s.AddTool(listProjects.Definition(), listProjects.Handle)

	listPhases := graphtools.NewListPhasesTool(svc)
	s.AddTool(listPhases.Definition(), listPhases.Handle)

	listWorkPackages := graphtools.NewListWorkPackagesTool(svc)
	s.AddTool(listWorkPackages.Definition(), listWorkPackages.Handle)

	// --- Governance ---
	reviewGate := graphtools.NewReviewPhaseGateTool(svc)
	s.AddTool(reviewGate.Definition(), reviewGate.Handle)

	pendingGates := graphtools.NewGetPendingGateReviewsTool(svc)
	s.AddTool(pendingGates.Definition(), pendingGates.Handle)

	// --- Navigation ---
	tree := graphtools.NewGetHierarchyTreeTool(svc)
	s.AddTool(tree.Definition(), tree.Handle)

	wpContext := graphtools.NewGetWorkPackageContextTool(svc)
	s.AddTool(wpContext.Definition(), wpContext.Handle)

	ensureDefault := graphtools.NewEnsureDefaultHierarchyTool(svc)
	s.AddTool(ensureDefault.Definition(), ensureDefault.Handle)
}

// serverInstructions tells connected clients how to use the graph.
func serverInstructions() string {
	return `This server maintains an engineering knowledge graph: requirements, tests,
components, interfaces, issues, notes and tasks as typed nodes, connected by
typed relationships (contains, depends_on, blocks, VERIFIED_BY, TRACES_TO,
ALLOCATED_TO). Every mutation is audited in an immutable event log.

Typical flows:
- Model the system: createNode / createEdge / updateNode, then querySystemModel.
- Understand context: getSystemSlice around a node, traceDownstreamImpact before
  changing something, traceUpstreamRationale to see why something exists.
- Keep the model healthy: runConsistencyChecks, findVerificationGaps,
  checkAllocationConsistency, getVerificationCoverageMetrics.
- Plan work: createMission/createProgram/createProject/createPhase,
  addWorkPackageToPhase, reviewPhaseGate, getHierarchyTree.
- Learn from history: getHistory, findSimilarPastChanges.`
}
