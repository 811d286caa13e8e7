package nestedset

// Bounds is the (lft, rgt) interval of a node.
type Bounds struct {
	Lft int
	Rgt int
}

// Relation describes how two intervals relate.
type Relation int

const (
	Disjoint Relation = iota
	Contains
	ContainedBy
	Equal
	Partial
)

func (r Relation) String() string {
	switch r {
	case Disjoint:
		return "disjoint"
	case Contains:
		return "contains"
	case ContainedBy:
		return "contained-by"
	case Equal:
		return "equal"
	case Partial:
		return "partial"
	}
	return "unknown"
}

// IsValidBounds reports whether rgt > lft.
func IsValidBounds(lft, rgt int) bool {
	return rgt > lft
}

// IsDescendantInterval reports whether child lies strictly inside parent.
func IsDescendantInterval(parent, child Bounds) bool {
	return parent.Lft < child.Lft && child.Rgt < parent.Rgt
}

// DepthOf returns the depth of a node with the given number of strict ancestors.
// The root has no ancestors and depth 0.
func DepthOf(_ Bounds, ancestorChainLength int) int {
	if ancestorChainLength < 0 {
		return 0
	}
	return ancestorChainLength
}

// SubtreeWidth returns the number of bound values a node and its descendants occupy.
func SubtreeWidth(b Bounds) int {
	return b.Rgt - b.Lft + 1
}

// DescendantCount returns the number of descendants encoded by b.
func DescendantCount(b Bounds) int {
	if !IsValidBounds(b.Lft, b.Rgt) {
		return 0
	}
	return (b.Rgt - b.Lft - 1) / 2
}

// Overlap classifies a relative to b.
func Overlap(a, b Bounds) Relation {
	switch {
	case a == b:
		return Equal
	case a.Rgt < b.Lft || b.Rgt < a.Lft:
		return Disjoint
	case a.Lft < b.Lft && b.Rgt < a.Rgt:
		return Contains
	case b.Lft < a.Lft && a.Rgt < b.Rgt:
		return ContainedBy
	}
	return Partial
}
