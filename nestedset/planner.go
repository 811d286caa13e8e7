package nestedset

import "fmt"

// PlanKind classifies a structural change.
type PlanKind int

const (
	KindInsert PlanKind = iota + 1
	KindMove
	KindDelete
	KindNoop
)

func (k PlanKind) String() string {
	switch k {
	case KindInsert:
		return "insert"
	case KindMove:
		return "move"
	case KindDelete:
		return "delete"
	case KindNoop:
		return "noop"
	}
	return "unknown"
}

// Plan is the set of range operations a structural change needs.
//
// Remove (delete plans only) runs first, then Delta is applied to the rows
// matching Filter. Lft, Rgt, Depth and ParentID give the source's placement
// once the plan is applied.
type Plan struct {
	Kind PlanKind

	Remove []Cond
	Filter []Cond
	Delta  Delta

	Lft      int
	Rgt      int
	Depth    int
	ParentID *string

	// Width is the subtree width being inserted, moved or removed.
	Width int
}

// Rows returns the number of rows in the planned subtree.
func (p *Plan) Rows() int {
	return p.Width / 2
}

// Destination returns the lft value before which a subtree placed dir of
// target must be opened, along with the parent and depth it will get.
func Destination(target *Node, dir Direction) (p int, parentID *string, depth int, err error) {
	if target == nil || !target.IsPlaced() {
		return 0, nil, 0, fmt.Errorf("%w: target is not placed", ErrUnplaced)
	}
	switch dir {
	case Append:
		return target.Rgt, &target.ID, target.Depth + 1, nil
	case Prepend:
		return target.Lft + 1, &target.ID, target.Depth + 1, nil
	case Before, After:
		if target.ParentID == nil {
			return 0, nil, 0, fmt.Errorf("%w: cannot place a sibling of the root", ErrInvalidMove)
		}
		if dir == Before {
			return target.Lft, clonePtr(target.ParentID), target.Depth, nil
		}
		return target.Rgt + 1, clonePtr(target.ParentID), target.Depth, nil
	}
	return 0, nil, 0, fmt.Errorf("%w: unsupported direction %s", ErrInvalidMove, dir)
}

// PlanInsert plans placing a new leaf dir of target. For Root, target is
// ignored and the scope must be empty.
func PlanInsert(target *Node, dir Direction) (*Plan, error) {
	if dir == Root {
		return &Plan{Kind: KindInsert, Lft: 1, Rgt: 2, Width: 2}, nil
	}
	p, parentID, depth, err := Destination(target, dir)
	if err != nil {
		return nil, err
	}
	const width = 2
	return &Plan{
		Kind: KindInsert,
		// rgt >= lft, so this matches every row with either bound at or past p.
		Filter: []Cond{Ge(ColRgt, p)},
		Delta: Delta{
			Lft: []Shift{ShiftFrom(p, width)},
			Rgt: []Shift{ShiftFrom(p, width)},
		},
		Lft:      p,
		Rgt:      p + 1,
		Depth:    depth,
		ParentID: clonePtr(parentID),
		Width:    width,
	}, nil
}

// PlanMove plans moving src and its subtree dir of target, folding the close
// of the old gap and the open of the new one into one signed-delta update.
func PlanMove(src, target *Node, dir Direction) (*Plan, error) {
	if !src.IsPlaced() {
		return nil, fmt.Errorf("%w: %s", ErrUnplaced, src.ID)
	}
	if dir == Root {
		if src.ParentID == nil {
			return noop(src), nil
		}
		return nil, ErrRootExists
	}
	if target == nil {
		return nil, fmt.Errorf("%w: missing target", ErrInvalidMove)
	}
	if target.Scope != src.Scope {
		return nil, fmt.Errorf("%w: %s and %s are in different scopes", ErrInvalidMove, src.ID, target.ID)
	}
	if target.ID == src.ID {
		return nil, fmt.Errorf("%w: %s cannot be placed relative to itself", ErrInvalidMove, src.ID)
	}
	if IsDescendantInterval(src.Bounds(), target.Bounds()) {
		return nil, fmt.Errorf("%w: %s is a descendant of %s", ErrInvalidMove, target.ID, src.ID)
	}

	p, parentID, depth, err := Destination(target, dir)
	if err != nil {
		return nil, err
	}

	l, r := src.Lft, src.Rgt
	width := SubtreeWidth(src.Bounds())
	if p == l || p == r+1 {
		return noop(src), nil
	}

	var (
		d, lo, hi int
		other     Shift
	)
	if p > r {
		// Rows between the old and new position close up leftwards.
		d = p - r - 1
		other = Shift{From: r + 1, To: p - 1, By: -width}
		lo, hi = l, p-1
	} else {
		d = p - l
		other = Shift{From: p, To: l - 1, By: width}
		lo, hi = p, r
	}
	own := Shift{From: l, To: r, By: d}

	delta := Delta{
		Lft: []Shift{own, other},
		Rgt: []Shift{own, other},
	}
	if dd := depth - src.Depth; dd != 0 {
		delta.Depth = []Shift{{From: l, To: r, By: dd}}
	}

	return &Plan{
		Kind: KindMove,
		// Intervals overlapping [lo, hi].
		Filter:   []Cond{Le(ColLft, hi), Ge(ColRgt, lo)},
		Delta:    delta,
		Lft:      l + d,
		Rgt:      r + d,
		Depth:    depth,
		ParentID: clonePtr(parentID),
		Width:    width,
	}, nil
}

// PlanDelete plans removing src with its subtree and closing the gap.
func PlanDelete(src *Node) (*Plan, error) {
	if !src.IsPlaced() {
		return nil, fmt.Errorf("%w: %s", ErrUnplaced, src.ID)
	}
	width := SubtreeWidth(src.Bounds())
	return &Plan{
		Kind:   KindDelete,
		Remove: []Cond{Ge(ColLft, src.Lft), Le(ColRgt, src.Rgt)},
		Filter: []Cond{Gt(ColRgt, src.Rgt)},
		Delta: Delta{
			Lft: []Shift{ShiftFrom(src.Rgt+1, -width)},
			Rgt: []Shift{ShiftFrom(src.Rgt+1, -width)},
		},
		Lft:      src.Lft,
		Rgt:      src.Rgt,
		Depth:    src.Depth,
		ParentID: clonePtr(src.ParentID),
		Width:    width,
	}, nil
}

func noop(src *Node) *Plan {
	return &Plan{
		Kind:     KindNoop,
		Lft:      src.Lft,
		Rgt:      src.Rgt,
		Depth:    src.Depth,
		ParentID: clonePtr(src.ParentID),
		Width:    SubtreeWidth(src.Bounds()),
	}
}
