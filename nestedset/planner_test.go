package nestedset

import (
	"errors"
	"testing"
	"time"
)

func ref(s string) *string { return &s }

// sampleTree returns root(1,10) A(2,5) A1(3,4) B(6,9) B1(7,8).
func sampleTree() map[string]*Node {
	nodes := []*Node{
		{ID: "root", Lft: 1, Rgt: 10, Depth: 0},
		{ID: "A", ParentID: ref("root"), Lft: 2, Rgt: 5, Depth: 1},
		{ID: "A1", ParentID: ref("A"), Lft: 3, Rgt: 4, Depth: 2},
		{ID: "B", ParentID: ref("root"), Lft: 6, Rgt: 9, Depth: 1},
		{ID: "B1", ParentID: ref("B"), Lft: 7, Rgt: 8, Depth: 2},
	}
	return ToDictionary(nodes)
}

// applyPlan executes p against nodes the way a store would and returns the
// number of rows the bulk update touched.
func applyPlan(nodes map[string]*Node, src *Node, p *Plan) int {
	if p.Remove != nil {
		for id, n := range nodes {
			if Match(n, p.Remove) {
				delete(nodes, id)
			}
		}
	}
	affected := 0
	for _, n := range nodes {
		if Match(n, p.Filter) {
			ApplyDelta(n, p.Delta, time.Now())
			affected++
		}
	}
	if src != nil && p.Kind == KindMove {
		nodes[src.ID].ParentID = clonePtr(p.ParentID)
	}
	return affected
}

func slice(nodes map[string]*Node) []*Node {
	out := make([]*Node, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n)
	}
	return out
}

func expectBounds(t *testing.T, nodes map[string]*Node, want map[string][3]int) {
	t.Helper()
	for id, w := range want {
		n, ok := nodes[id]
		if !ok {
			t.Errorf("expected node %s to exist", id)
			continue
		}
		got := [3]int{n.Lft, n.Rgt, n.Depth}
		if got != w {
			t.Errorf("%s: expected (lft, rgt, depth) %v, got %v", id, w, got)
		}
	}
}

func TestDestination(t *testing.T) {
	tree := sampleTree()
	tests := []struct {
		dir    Direction
		p      int
		parent string
		depth  int
	}{
		{Append, 9, "B", 2},
		{Prepend, 7, "B", 2},
		{Before, 6, "root", 1},
		{After, 10, "root", 1},
	}

	for _, tt := range tests {
		t.Run(tt.dir.String(), func(t *testing.T) {
			p, parent, depth, err := Destination(tree["B"], tt.dir)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p != tt.p || depth != tt.depth || parent == nil || *parent != tt.parent {
				t.Errorf("expected (%d, %s, %d), got (%d, %v, %d)", tt.p, tt.parent, tt.depth, p, parent, depth)
			}
		})
	}
}

func TestDestination_SiblingOfRoot(t *testing.T) {
	tree := sampleTree()
	for _, dir := range []Direction{Before, After} {
		_, _, _, err := Destination(tree["root"], dir)
		if !errors.Is(err, ErrInvalidMove) {
			t.Errorf("%s root: expected ErrInvalidMove, got %v", dir, err)
		}
	}
}

func TestDestination_UnplacedTarget(t *testing.T) {
	_, _, _, err := Destination(&Node{ID: "x"}, Append)
	if !errors.Is(err, ErrUnplaced) {
		t.Errorf("expected ErrUnplaced, got %v", err)
	}
}

func TestPlanInsert_Root(t *testing.T) {
	p, err := PlanInsert(nil, Root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Lft != 1 || p.Rgt != 2 || p.Depth != 0 || p.ParentID != nil || p.Filter != nil {
		t.Errorf("unexpected root plan %+v", p)
	}
}

func TestPlanInsert_AppendShiftsFollowingBounds(t *testing.T) {
	tree := sampleTree()
	p, err := PlanInsert(tree["A"], Append)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Lft != 5 || p.Rgt != 6 || p.Depth != 2 || *p.ParentID != "A" {
		t.Errorf("expected new leaf (5, 6) at depth 2 under A, got %+v", p)
	}

	affected := applyPlan(tree, nil, p)
	if affected != 4 {
		t.Errorf("expected 4 rows touched (root, A, B, B1), got %d", affected)
	}
	tree["new"] = &Node{ID: "new", ParentID: ref("A"), Lft: p.Lft, Rgt: p.Rgt, Depth: p.Depth}

	expectBounds(t, tree, map[string][3]int{
		"root": {1, 12, 0},
		"A":    {2, 7, 1},
		"A1":   {3, 4, 2},
		"new":  {5, 6, 2},
		"B":    {8, 11, 1},
		"B1":   {9, 10, 2},
	})
	if r := Validate(slice(tree)); !r.OK() {
		t.Errorf("expected valid tree, got %v", r.Err())
	}
}

func TestPlanInsert_BeforeFirstChild(t *testing.T) {
	tree := sampleTree()
	p, err := PlanInsert(tree["A"], Before)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	applyPlan(tree, nil, p)
	tree["new"] = &Node{ID: "new", ParentID: ref("root"), Lft: p.Lft, Rgt: p.Rgt, Depth: p.Depth}

	expectBounds(t, tree, map[string][3]int{
		"new":  {2, 3, 1},
		"A":    {4, 7, 1},
		"root": {1, 12, 0},
	})
	if r := Validate(slice(tree)); !r.OK() {
		t.Errorf("expected valid tree, got %v", r.Err())
	}
}

func TestPlanMove_SiblingAcrossParents(t *testing.T) {
	tree := sampleTree()
	src := tree["A1"].Clone()

	p, err := PlanMove(src, tree["B"], After)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Kind != KindMove {
		t.Fatalf("expected move plan, got %s", p.Kind)
	}
	if p.Width != 2 || p.Rows() != 1 {
		t.Errorf("expected width 2 and 1 row, got %d and %d", p.Width, p.Rows())
	}

	applyPlan(tree, src, p)
	expectBounds(t, tree, map[string][3]int{
		"root": {1, 10, 0},
		"A":    {2, 3, 1},
		"B":    {4, 7, 1},
		"B1":   {5, 6, 2},
		"A1":   {8, 9, 1},
	})
	if *tree["A1"].ParentID != "root" {
		t.Errorf("expected A1 under root, got %s", *tree["A1"].ParentID)
	}
	if r := Validate(slice(tree)); !r.OK() {
		t.Errorf("expected valid tree, got %v", r.Err())
	}
}

func TestPlanMove_SubtreeLeft(t *testing.T) {
	tree := sampleTree()
	src := tree["B"].Clone()

	p, err := PlanMove(src, tree["A"], Prepend)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Rows() != 2 {
		t.Errorf("expected 2 rows in subtree, got %d", p.Rows())
	}

	applyPlan(tree, src, p)
	expectBounds(t, tree, map[string][3]int{
		"root": {1, 10, 0},
		"A":    {2, 9, 1},
		"B":    {3, 6, 2},
		"B1":   {4, 5, 3},
		"A1":   {7, 8, 2},
	})
	if r := Validate(slice(tree)); !r.OK() {
		t.Errorf("expected valid tree, got %v", r.Err())
	}
}

func TestPlanMove_PreservesRelativeOffsets(t *testing.T) {
	tree := sampleTree()
	src := tree["B"].Clone()
	before := tree["B1"].Lft - tree["B"].Lft

	p, err := PlanMove(src, tree["A1"], Append)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	applyPlan(tree, src, p)

	if after := tree["B1"].Lft - tree["B"].Lft; after != before {
		t.Errorf("expected offset %d to be kept, got %d", before, after)
	}
	if tree["B"].Depth != 3 || tree["B1"].Depth != 4 {
		t.Errorf("expected depths 3 and 4, got %d and %d", tree["B"].Depth, tree["B1"].Depth)
	}
	if r := Validate(slice(tree)); !r.OK() {
		t.Errorf("expected valid tree, got %v", r.Err())
	}
}

func TestPlanMove_Invalid(t *testing.T) {
	tree := sampleTree()
	tests := []struct {
		name   string
		src    string
		target string
		dir    Direction
		err    error
	}{
		{"into self", "A", "A", Append, ErrInvalidMove},
		{"into descendant", "A", "A1", Append, ErrInvalidMove},
		{"after descendant", "root", "B1", After, ErrInvalidMove},
		{"sibling of root", "A1", "root", Before, ErrInvalidMove},
		{"second root", "A1", "", Root, ErrRootExists},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := PlanMove(tree[tt.src], tree[tt.target], tt.dir)
			if !errors.Is(err, tt.err) {
				t.Errorf("expected %v, got %v", tt.err, err)
			}
		})
	}
}

func TestPlanMove_CrossScope(t *testing.T) {
	tree := sampleTree()
	other := &Node{ID: "x", Scope: "other", Lft: 1, Rgt: 2}
	_, err := PlanMove(tree["A"], other, Append)
	if !errors.Is(err, ErrInvalidMove) {
		t.Errorf("expected ErrInvalidMove, got %v", err)
	}
}

func TestPlanMove_Noop(t *testing.T) {
	tree := sampleTree()
	tests := []struct {
		name   string
		src    string
		target string
		dir    Direction
	}{
		{"already last child", "B", "root", Append},
		{"already first child", "A", "root", Prepend},
		{"already after", "B", "A", After},
		{"already before", "A", "B", Before},
		{"root to root", "root", "", Root},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := PlanMove(tree[tt.src], tree[tt.target], tt.dir)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.Kind != KindNoop {
				t.Errorf("expected noop, got %s", p.Kind)
			}
			if p.Lft != tree[tt.src].Lft || p.Rgt != tree[tt.src].Rgt {
				t.Errorf("expected bounds to be kept, got (%d, %d)", p.Lft, p.Rgt)
			}
		})
	}
}

func TestPlanMove_Unplaced(t *testing.T) {
	tree := sampleTree()
	_, err := PlanMove(&Node{ID: "x"}, tree["A"], Append)
	if !errors.Is(err, ErrUnplaced) {
		t.Errorf("expected ErrUnplaced, got %v", err)
	}
}

func TestPlanDelete_Subtree(t *testing.T) {
	tree := sampleTree()
	p, err := PlanDelete(tree["A"])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Rows() != 2 {
		t.Errorf("expected 2 rows removed, got %d", p.Rows())
	}
	applyPlan(tree, nil, p)

	if _, ok := tree["A1"]; ok {
		t.Error("expected A1 to be removed with its parent")
	}
	expectBounds(t, tree, map[string][3]int{
		"root": {1, 6, 0},
		"B":    {2, 5, 1},
		"B1":   {3, 4, 2},
	})
	if r := Validate(slice(tree)); !r.OK() {
		t.Errorf("expected valid tree, got %v", r.Err())
	}
}

func TestPlanDelete_LeafLeavesPrecedingUntouched(t *testing.T) {
	tree := sampleTree()
	p, err := PlanDelete(tree["B1"])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	applyPlan(tree, nil, p)

	expectBounds(t, tree, map[string][3]int{
		"root": {1, 8, 0},
		"A":    {2, 5, 1},
		"A1":   {3, 4, 2},
		"B":    {6, 7, 1},
	})
}

func TestPlanKind_String(t *testing.T) {
	tests := map[PlanKind]string{
		KindInsert:  "insert",
		KindMove:    "move",
		KindDelete:  "delete",
		KindNoop:    "noop",
		PlanKind(0): "unknown",
	}
	for k, want := range tests {
		if got := k.String(); got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	}
}
