package nestedset

import "testing"

func TestIsValidBounds(t *testing.T) {
	tests := []struct {
		lft, rgt int
		expected bool
	}{
		{1, 2, true},
		{1, 10, true},
		{2, 2, false},
		{5, 3, false},
	}

	for _, tt := range tests {
		if got := IsValidBounds(tt.lft, tt.rgt); got != tt.expected {
			t.Errorf("IsValidBounds(%d, %d) = %v, want %v", tt.lft, tt.rgt, got, tt.expected)
		}
	}
}

func TestIsDescendantInterval(t *testing.T) {
	root := Bounds{Lft: 1, Rgt: 10}
	tests := []struct {
		name     string
		child    Bounds
		expected bool
	}{
		{"inside", Bounds{Lft: 2, Rgt: 5}, true},
		{"self", root, false},
		{"shares lft", Bounds{Lft: 1, Rgt: 4}, false},
		{"outside", Bounds{Lft: 11, Rgt: 12}, false},
		{"crossing", Bounds{Lft: 9, Rgt: 12}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsDescendantInterval(root, tt.child); got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestSubtreeWidthAndDescendants(t *testing.T) {
	b := Bounds{Lft: 2, Rgt: 9}
	if w := SubtreeWidth(b); w != 8 {
		t.Errorf("expected width 8, got %d", w)
	}
	if c := DescendantCount(b); c != 3 {
		t.Errorf("expected 3 descendants, got %d", c)
	}
	if c := DescendantCount(Bounds{Lft: 4, Rgt: 5}); c != 0 {
		t.Errorf("expected leaf to have 0 descendants, got %d", c)
	}
	if c := DescendantCount(Bounds{Lft: 5, Rgt: 4}); c != 0 {
		t.Errorf("expected invalid bounds to have 0 descendants, got %d", c)
	}
}

func TestDepthOf(t *testing.T) {
	if d := DepthOf(Bounds{Lft: 1, Rgt: 2}, 0); d != 0 {
		t.Errorf("expected root depth 0, got %d", d)
	}
	if d := DepthOf(Bounds{Lft: 3, Rgt: 4}, 2); d != 2 {
		t.Errorf("expected depth 2, got %d", d)
	}
	if d := DepthOf(Bounds{Lft: 3, Rgt: 4}, -1); d != 0 {
		t.Errorf("expected negative chain to clamp to 0, got %d", d)
	}
}

func TestOverlap(t *testing.T) {
	tests := []struct {
		a, b     Bounds
		expected Relation
	}{
		{Bounds{1, 10}, Bounds{1, 10}, Equal},
		{Bounds{1, 10}, Bounds{2, 5}, Contains},
		{Bounds{2, 5}, Bounds{1, 10}, ContainedBy},
		{Bounds{2, 5}, Bounds{6, 9}, Disjoint},
		{Bounds{2, 7}, Bounds{5, 9}, Partial},
		{Bounds{1, 4}, Bounds{1, 10}, Partial},
	}

	for _, tt := range tests {
		if got := Overlap(tt.a, tt.b); got != tt.expected {
			t.Errorf("Overlap(%v, %v) = %s, want %s", tt.a, tt.b, got, tt.expected)
		}
	}
}
