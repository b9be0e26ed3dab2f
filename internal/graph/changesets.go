package graph

import (
	"sort"
)

// ListChangeSets aggregates the project's events into change sets, newest
// first. Stats are derived from the event log at read time — there is no
// separate change-set table to drift out of sync.
func (s *Store) ListChangeSets(projectID string) ([]ChangeSet, error) {
	grouped, err := s.eventsForChangeSets(projectID)
	if err != nil {
		return nil, err
	}

	sets := make([]ChangeSet, 0, len(grouped))
	for id, events := range grouped {
		sets = append(sets, aggregateChangeSet(id, projectID, events))
	}
	sort.Slice(sets, func(i, j int) bool {
		return sets[i].LastEventAt > sets[j].LastEventAt
	})
	return sets, nil
}

func aggregateChangeSet(id, projectID string, events []Event) ChangeSet {
	cs := ChangeSet{
		ID:           id,
		ProjectID:    projectID,
		EventCount:   len(events),
		ByEntityType: map[string]int{},
		ByEventType:  map[string]int{},
	}

	nodes := map[string]bool{}
	edges := map[string]bool{}
	nodeTypes := map[string]bool{}
	subsystems := map[string]bool{}

	for _, ev := range events {
		cs.ByEntityType[ev.EntityType]++
		cs.ByEventType[ev.EventType]++
		switch ev.EntityType {
		case "node":
			nodes[ev.EntityID] = true
		case "edge":
			edges[ev.EntityID] = true
		}
		for _, snap := range []map[string]any{ev.Diff.After, ev.Diff.Before} {
			if t, ok := snap["type"].(string); ok && t != "" {
				nodeTypes[t] = true
			}
			if sub, ok := snap["subsystem"].(string); ok && sub != "" {
				subsystems[sub] = true
			}
		}
		if cs.FirstEventAt == "" || ev.Timestamp < cs.FirstEventAt {
			cs.FirstEventAt = ev.Timestamp
		}
		if ev.Timestamp > cs.LastEventAt {
			cs.LastEventAt = ev.Timestamp
		}
	}

	cs.NodesAffected = len(nodes)
	cs.EdgesAffected = len(edges)
	cs.NodeTypes = sortedKeys(nodeTypes)
	cs.Subsystems = sortedKeys(subsystems)
	return cs
}

// FindSimilarPastChanges scores past change sets by Jaccard overlap between
// their node types, subsystems, and event types and the supplied signature,
// returning the top matches. Used to answer "has a change like this happened
// before, and what followed."
func (s *Store) FindSimilarPastChanges(projectID string, sig ChangeSignature, limit int) ([]SimilarChange, error) {
	if limit <= 0 {
		limit = 5
	}

	sets, err := s.ListChangeSets(projectID)
	if err != nil {
		return nil, err
	}

	want := map[string]bool{}
	for _, t := range sig.NodeTypes {
		want["type:"+t] = true
	}
	for _, sub := range sig.Subsystems {
		want["sub:"+sub] = true
	}
	for _, et := range sig.EventTypes {
		want["event:"+et] = true
	}
	if len(want) == 0 {
		return nil, Invalidf("change signature is empty")
	}

	var scored []SimilarChange
	for _, cs := range sets {
		have := map[string]bool{}
		for _, t := range cs.NodeTypes {
			have["type:"+t] = true
		}
		for _, sub := range cs.Subsystems {
			have["sub:"+sub] = true
		}
		for et := range cs.ByEventType {
			have["event:"+et] = true
		}

		score := jaccard(want, have)
		if score == 0 {
			continue
		}
		scored = append(scored, SimilarChange{ChangeSet: cs, Score: score})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].ChangeSet.LastEventAt > scored[j].ChangeSet.LastEventAt
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if b[k] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func sortedKeys(m map[string]bool) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
