package hierarchy

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/opal-se/opal/internal/graph"
)

// WBS numbers are dotted numeric strings: missions get "1.0", "2.0", …;
// children append the next sibling ordinal to the parent's base
// ("1.0" → "1.1", "1.1" → "1.1.1"). Numbers are strictly increasing per
// same-type sibling group and gap-tolerant: soft-deleted siblings keep
// their numbers and the scan includes them, so a freed number is never
// reassigned to a still-alive sibling.

// nextRootWBS computes the WBS number for a new root-level mission.
func (s *Service) nextRootWBS(projectID string) (string, error) {
	missions, err := s.store.NodesByType(projectID, graph.TypeMission, true)
	if err != nil {
		return "", err
	}

	max := 0
	for _, m := range missions {
		wbs := m.MetaString(MetaWBS)
		first, ok := leadingComponent(wbs)
		if ok && first > max {
			max = first
		}
	}
	return fmt.Sprintf("%d.0", max+1), nil
}

// nextChildWBS computes the WBS number for a new child of childType under
// the given parent. Callers must hold the parent's lock.
func (s *Service) nextChildWBS(parent *graph.Node, childType string) (string, error) {
	base := wbsBase(parent.MetaString(MetaWBS))
	if base == "" {
		return "", graph.InvalidStatef("parent %s has no wbs_number", parent.ID)
	}

	siblings, err := s.store.ContainmentChildren(parent.ID, true)
	if err != nil {
		return "", err
	}

	max := 0
	for _, sib := range siblings {
		if sib.Type != childType {
			continue
		}
		last, ok := trailingComponent(sib.MetaString(MetaWBS))
		if ok && last > max {
			max = last
		}
	}
	return fmt.Sprintf("%s.%d", base, max+1), nil
}

// wbsBase strips the root-only trailing ".0" so children of "2.0" number
// "2.1", "2.2" rather than "2.0.1".
func wbsBase(wbs string) string {
	if wbs == "" {
		return ""
	}
	return strings.TrimSuffix(wbs, ".0")
}

func leadingComponent(wbs string) (int, bool) {
	if wbs == "" {
		return 0, false
	}
	first, _, _ := strings.Cut(wbs, ".")
	n, err := strconv.Atoi(first)
	if err != nil {
		return 0, false
	}
	return n, true
}

func trailingComponent(wbs string) (int, bool) {
	if wbs == "" {
		return 0, false
	}
	parts := strings.Split(wbs, ".")
	n, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// compareWBS orders two dotted WBS numbers componentwise, numerically.
func compareWBS(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) && i < len(bs); i++ {
		an, aerr := strconv.Atoi(as[i])
		bn, berr := strconv.Atoi(bs[i])
		if aerr != nil || berr != nil {
			if as[i] != bs[i] {
				return strings.Compare(as[i], bs[i])
			}
			continue
		}
		if an != bn {
			if an < bn {
				return -1
			}
			return 1
		}
	}
	return len(as) - len(bs)
}
