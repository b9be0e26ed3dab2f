package graph

import "testing"

func TestListChangeSets_GroupsBySource(t *testing.T) {
	s := newTestStore(t)

	mustCreateNode(t, s, CreateNodeParams{
		Type: TypeRequirement, Title: "r1", SourceSystem: "jama",
		Metadata: map[string]any{"subsystem": "power"},
	})
	mustCreateNode(t, s, CreateNodeParams{
		Type: TypeRequirement, Title: "r2", SourceSystem: "jama",
	})
	mustCreateNode(t, s, CreateNodeParams{
		Type: TypeTest, Title: "t1", SourceSystem: "jenkins",
	})

	sets, err := s.ListChangeSets("proj-1")
	if err != nil {
		t.Fatalf("ListChangeSets: %v", err)
	}
	if len(sets) != 2 {
		t.Fatalf("change sets = %d, want 2 (one per source per day)", len(sets))
	}

	var jama *ChangeSet
	for i := range sets {
		if sets[i].EventCount == 2 {
			jama = &sets[i]
		}
	}
	if jama == nil {
		t.Fatal("no change set with 2 events")
	}
	if jama.NodesAffected != 2 {
		t.Errorf("nodes affected = %d, want 2", jama.NodesAffected)
	}
	if jama.ByEventType[EventCreated] != 2 {
		t.Errorf("created count = %d, want 2", jama.ByEventType[EventCreated])
	}
	if len(jama.NodeTypes) != 1 || jama.NodeTypes[0] != TypeRequirement {
		t.Errorf("node types = %v, want [Requirement]", jama.NodeTypes)
	}
	if len(jama.Subsystems) != 1 || jama.Subsystems[0] != "power" {
		t.Errorf("subsystems = %v, want [power]", jama.Subsystems)
	}
}

func TestFindSimilarPastChanges_ScoresByOverlap(t *testing.T) {
	s := newTestStore(t)

	mustCreateNode(t, s, CreateNodeParams{
		Type: TypeRequirement, Title: "r1", SourceSystem: "jama",
		Metadata: map[string]any{"subsystem": "power"},
	})
	mustCreateNode(t, s, CreateNodeParams{
		Type: TypeComponent, Title: "c1", SourceSystem: "plm",
		Metadata: map[string]any{"subsystem": "thermal"},
	})

	matches, err := s.FindSimilarPastChanges("proj-1", ChangeSignature{
		NodeTypes:  []string{TypeRequirement},
		Subsystems: []string{"power"},
	}, 0)
	if err != nil {
		t.Fatalf("FindSimilarPastChanges: %v", err)
	}
	if len(matches) == 0 {
		t.Fatal("no matches")
	}
	best := matches[0]
	if len(best.ChangeSet.NodeTypes) != 1 || best.ChangeSet.NodeTypes[0] != TypeRequirement {
		t.Errorf("best match node types = %v, want the requirement change", best.ChangeSet.NodeTypes)
	}
	for _, m := range matches[1:] {
		if m.Score > best.Score {
			t.Error("matches not sorted by score")
		}
	}
	if best.Score <= 0 || best.Score > 1 {
		t.Errorf("score = %f, want in (0, 1]", best.Score)
	}
}

func TestFindSimilarPastChanges_EmptySignature(t *testing.T) {
	s := newTestStore(t)

	_, err := s.FindSimilarPastChanges("proj-1", ChangeSignature{}, 0)
	if !IsCode(err, CodeValidation) {
		t.Errorf("err = %v, want VALIDATION_ERROR", err)
	}
}
