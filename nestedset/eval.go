package nestedset

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"time"
)

// Match reports whether n satisfies every condition. Comparisons against a nil
// parent_id or deleted_at are false, as in SQL.
func Match(n *Node, conds []Cond) bool {
	for _, c := range conds {
		if !matchCond(n, c) {
			return false
		}
	}
	return true
}

func matchCond(n *Node, c Cond) bool {
	switch c.Column {
	case ColID:
		return compareOp(n.ID, toString(c.Value), c.Op)
	case ColParentID:
		return matchNullable(n.ParentID, c, func(v string) bool {
			return compareOp(v, toString(c.Value), c.Op)
		})
	case ColLft:
		return compareOp(n.Lft, toInt(c.Value), c.Op)
	case ColRgt:
		return compareOp(n.Rgt, toInt(c.Value), c.Op)
	case ColDepth:
		return compareOp(n.Depth, toInt(c.Value), c.Op)
	case ColVersion:
		return compareOp(n.Version, int64(toInt(c.Value)), c.Op)
	case ColDeletedAt:
		return matchNullable(n.DeletedAt, c, func(v time.Time) bool {
			want, _ := c.Value.(time.Time)
			return compareOp(v.UnixNano(), want.UnixNano(), c.Op)
		})
	}
	return false
}

func matchNullable[T any](v *T, c Cond, compare func(T) bool) bool {
	switch c.Op {
	case OpIsNull:
		return v == nil
	case OpNotNull:
		return v != nil
	}
	if v == nil {
		return false
	}
	return compare(*v)
}

func compareOp[T cmp.Ordered](a, b T, op Op) bool {
	c := cmp.Compare(a, b)
	switch op {
	case OpEq:
		return c == 0
	case OpNe:
		return c != 0
	case OpLt:
		return c < 0
	case OpLe:
		return c <= 0
	case OpGt:
		return c > 0
	case OpGe:
		return c >= 0
	}
	return false
}

func toInt(v any) int {
	switch x := v.(type) {
	case int:
		return x
	case int32:
		return int(x)
	case int64:
		return int(x)
	case uint:
		return int(x)
	}
	return 0
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case *string:
		if x != nil {
			return *x
		}
		return ""
	}
	return fmt.Sprint(v)
}

// ApplyDelta updates n in place the way a store's BulkUpdate would.
func ApplyDelta(n *Node, d Delta, now time.Time) {
	lft, rgt := n.Lft, n.Rgt
	if d.Place != nil {
		n.Lft, n.Rgt, n.Depth = d.Place.Lft, d.Place.Rgt, d.Place.Depth
	} else {
		n.Lft += shiftFor(d.Lft, lft)
		n.Rgt += shiftFor(d.Rgt, rgt)
		n.Depth += shiftFor(d.Depth, lft)
	}
	if d.SetParent {
		n.ParentID = clonePtr(d.ParentID)
	}
	if d.SetDeletedAt {
		n.DeletedAt = clonePtr(d.DeletedAt)
	}
	if d.SetAttrs {
		n.Attrs = maps.Clone(d.Attrs)
	}
	n.Version++
	n.UpdatedAt = now
}

func shiftFor(shifts []Shift, v int) int {
	for _, s := range shifts {
		if s.Matches(v) {
			return s.By
		}
	}
	return 0
}

// SortNodes sorts nodes in place by order. Ties keep their relative order.
func SortNodes(nodes []*Node, order []Order) {
	if len(order) == 0 {
		return
	}
	slices.SortStableFunc(nodes, func(a, b *Node) int {
		for _, o := range order {
			c := compareColumn(a, b, o.Column)
			if o.Desc {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})
}

func compareColumn(a, b *Node, col Column) int {
	switch col {
	case ColID:
		return cmp.Compare(a.ID, b.ID)
	case ColParentID:
		return cmp.Compare(a.ParentRef(), b.ParentRef())
	case ColLft:
		return cmp.Compare(a.Lft, b.Lft)
	case ColRgt:
		return cmp.Compare(a.Rgt, b.Rgt)
	case ColDepth:
		return cmp.Compare(a.Depth, b.Depth)
	case ColVersion:
		return cmp.Compare(a.Version, b.Version)
	case ColDeletedAt:
		return cmp.Compare(timeKey(a.DeletedAt), timeKey(b.DeletedAt))
	}
	return 0
}

func timeKey(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.UnixNano()
}

// ComputeDepths returns, per node ID, the number of intervals in nodes that
// strictly contain it.
func ComputeDepths(nodes []*Node) map[string]int {
	sorted := slices.Clone(nodes)
	SortNodes(sorted, []Order{{Column: ColLft}})

	depths := make(map[string]int, len(sorted))
	var stack []*Node
	for _, n := range sorted {
		for len(stack) > 0 && stack[len(stack)-1].Rgt < n.Lft {
			stack = stack[:len(stack)-1]
		}
		depths[n.ID] = len(stack)
		stack = append(stack, n)
	}
	return depths
}

// Execute evaluates q against all rows of a store held in memory and returns
// copies of the matching rows.
func Execute(all []*Node, q Query) []*Node {
	var scoped []*Node
	for _, n := range all {
		if n.Scope == q.Scope {
			scoped = append(scoped, n)
		}
	}

	var depths map[string]int
	if q.WithDepth {
		depths = ComputeDepths(scoped)
	}

	var out []*Node
	for _, n := range scoped {
		switch {
		case q.OnlyTrashed && n.DeletedAt == nil:
			continue
		case !q.OnlyTrashed && !q.WithTrashed && n.DeletedAt != nil:
			continue
		}
		if !Match(n, q.Where) {
			continue
		}
		c := n.Clone()
		if depths != nil {
			c.Depth = depths[n.ID]
		}
		out = append(out, c)
	}

	SortNodes(out, q.Order)

	if q.Offset > 0 {
		if q.Offset >= len(out) {
			return nil
		}
		out = out[q.Offset:]
	}
	if q.Limit > 0 && q.Limit < len(out) {
		out = out[:q.Limit]
	}
	return out
}
