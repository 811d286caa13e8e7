package nestedset

import (
	"fmt"
	"strings"
)

// Report counts nested-set invariant violations in one scope.
type Report struct {
	Nodes int

	// InvalidBounds counts nodes with rgt <= lft.
	InvalidBounds int
	// EvenWidths counts nodes whose rgt - lft is even.
	EvenWidths int
	// DuplicateBounds counts bound values used more than once.
	DuplicateBounds int
	// Gaps counts values in [1, 2*Nodes] not used by any bound.
	Gaps int
	// PartialOverlaps counts nodes whose interval crosses an enclosing one.
	PartialOverlaps int
	// WrongParents counts nodes whose parent_id differs from the enclosing node.
	WrongParents int
	// MissingParents counts nodes whose parent_id references no node.
	MissingParents int
	// WrongDepths counts nodes whose stored depth differs from containment depth.
	WrongDepths int
	// Roots counts nodes without a parent.
	Roots int
}

// OK reports whether no violation was found.
func (r Report) OK() bool {
	return r.InvalidBounds == 0 && r.EvenWidths == 0 && r.DuplicateBounds == 0 &&
		r.Gaps == 0 && r.PartialOverlaps == 0 && r.WrongParents == 0 &&
		r.MissingParents == 0 && r.WrongDepths == 0 && (r.Nodes == 0 || r.Roots == 1)
}

// Err returns nil for a valid tree and an ErrConsistency wrapping the
// violation counts otherwise.
func (r Report) Err() error {
	if r.OK() {
		return nil
	}
	var parts []string
	add := func(name string, v int) {
		if v != 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", name, v))
		}
	}
	add("invalid_bounds", r.InvalidBounds)
	add("even_widths", r.EvenWidths)
	add("duplicate_bounds", r.DuplicateBounds)
	add("gaps", r.Gaps)
	add("partial_overlaps", r.PartialOverlaps)
	add("wrong_parents", r.WrongParents)
	add("missing_parents", r.MissingParents)
	add("wrong_depths", r.WrongDepths)
	if r.Roots != 1 {
		parts = append(parts, fmt.Sprintf("roots=%d", r.Roots))
	}
	return fmt.Errorf("%w: %s", ErrConsistency, strings.Join(parts, " "))
}

// Validate checks every invariant of a complete scope, soft deleted rows
// included.
func Validate(nodes []*Node) Report {
	r := Report{Nodes: len(nodes)}

	ids := make(map[string]bool, len(nodes))
	seen := make(map[int]int, 2*len(nodes))
	for _, n := range nodes {
		ids[n.ID] = true
		seen[n.Lft]++
		seen[n.Rgt]++
		if !IsValidBounds(n.Lft, n.Rgt) {
			r.InvalidBounds++
		} else if (n.Rgt-n.Lft)%2 == 0 {
			r.EvenWidths++
		}
		if n.ParentID == nil {
			r.Roots++
		}
	}
	for _, count := range seen {
		if count > 1 {
			r.DuplicateBounds += count - 1
		}
	}
	for v := 1; v <= 2*len(nodes); v++ {
		if seen[v] == 0 {
			r.Gaps++
		}
	}

	sorted := make([]*Node, len(nodes))
	copy(sorted, nodes)
	SortNodes(sorted, []Order{{Column: ColLft}})

	var stack []*Node
	for _, n := range sorted {
		if n.ParentID != nil && !ids[*n.ParentID] {
			r.MissingParents++
		}
		for len(stack) > 0 && stack[len(stack)-1].Rgt < n.Lft {
			stack = stack[:len(stack)-1]
		}
		var enclosing *Node
		if len(stack) > 0 {
			enclosing = stack[len(stack)-1]
			if n.Rgt >= enclosing.Rgt {
				r.PartialOverlaps++
			}
		}
		switch {
		case enclosing == nil && n.ParentID != nil:
			r.WrongParents++
		case enclosing != nil && !n.IsChildOf(enclosing):
			r.WrongParents++
		}
		if n.Depth != len(stack) {
			r.WrongDepths++
		}
		stack = append(stack, n)
	}
	return r
}
