package nestedset

import (
	"maps"
	"time"
)

// Direction is a positional directive relative to a target node.
type Direction int

const (
	none Direction = iota
	// Append places the node as the last child of the target.
	Append
	// Prepend places the node as the first child of the target.
	Prepend
	// Before places the node as the sibling immediately preceding the target.
	Before
	// After places the node as the sibling immediately following the target.
	After
	// Root places the node as the root of an empty scope.
	Root
)

func (d Direction) String() string {
	switch d {
	case Append:
		return "append"
	case Prepend:
		return "prepend"
	case Before:
		return "before"
	case After:
		return "after"
	case Root:
		return "root"
	}
	return "none"
}

type directive struct {
	dir    Direction
	target *Node
}

// Node is a tree member.
//
// Lft, Rgt, Depth and ParentID are owned by Tree: they are only changed by
// committed mutations. A node with Lft == 0 is unplaced.
type Node struct {
	ID        string
	Scope     string
	ParentID  *string
	Lft       int
	Rgt       int
	Depth     int
	Version   int64
	DeletedAt *time.Time
	Attrs     map[string]string
	CreatedAt time.Time
	UpdatedAt time.Time

	// Children is populated by ToTree. It is never persisted.
	Children []*Node

	pending      *directive
	loadedParent *string
	loadedAttrs  map[string]string
	loaded       bool
	removed      bool
}

// Bounds returns the node's interval.
func (n *Node) Bounds() Bounds {
	return Bounds{Lft: n.Lft, Rgt: n.Rgt}
}

// IsPlaced reports whether the node has been assigned bounds.
func (n *Node) IsPlaced() bool {
	return n.Lft > 0 && IsValidBounds(n.Lft, n.Rgt)
}

// IsRoot reports whether the node is a placed node without a parent.
func (n *Node) IsRoot() bool {
	return n.IsPlaced() && n.ParentID == nil
}

// IsLeaf reports whether the node has no descendants.
func (n *Node) IsLeaf() bool {
	return n.IsPlaced() && n.Rgt-n.Lft == 1
}

// IsTrashed reports whether the node is soft deleted.
func (n *Node) IsTrashed() bool {
	return n.DeletedAt != nil
}

// DescendantCount returns the number of descendants encoded by the bounds.
func (n *Node) DescendantCount() int {
	return DescendantCount(n.Bounds())
}

// IsDescendantOf reports whether n lies inside other's subtree.
func (n *Node) IsDescendantOf(other *Node) bool {
	if other == nil || n.Scope != other.Scope || !n.IsPlaced() || !other.IsPlaced() {
		return false
	}
	return IsDescendantInterval(other.Bounds(), n.Bounds())
}

// IsAncestorOf reports whether other lies inside n's subtree.
func (n *Node) IsAncestorOf(other *Node) bool {
	return other != nil && other.IsDescendantOf(n)
}

// IsChildOf reports whether other is n's parent.
func (n *Node) IsChildOf(other *Node) bool {
	return other != nil && n.ParentID != nil && *n.ParentID == other.ID
}

// IsSiblingOf reports whether n and other share a parent.
func (n *Node) IsSiblingOf(other *Node) bool {
	return other != nil && n.ID != other.ID && n.Scope == other.Scope && sameParent(n.ParentID, other.ParentID)
}

// ParentRef returns the parent's ID, or "" for a root.
func (n *Node) ParentRef() string {
	if n.ParentID == nil {
		return ""
	}
	return *n.ParentID
}

// AppendTo makes n the last child of target on the next Save.
func (n *Node) AppendTo(target *Node) *Node {
	return n.direct(Append, target)
}

// PrependTo makes n the first child of target on the next Save.
func (n *Node) PrependTo(target *Node) *Node {
	return n.direct(Prepend, target)
}

// Before makes n the sibling preceding target on the next Save.
func (n *Node) Before(target *Node) *Node {
	return n.direct(Before, target)
}

// After makes n the sibling following target on the next Save.
func (n *Node) After(target *Node) *Node {
	return n.direct(After, target)
}

// ReparentTo is AppendTo under the explicit name used for parent changes.
func (n *Node) ReparentTo(target *Node) *Node {
	return n.direct(Append, target)
}

// MakeRoot makes n the root of an empty scope on the next Save.
func (n *Node) MakeRoot() *Node {
	return n.direct(Root, nil)
}

// Pending returns the uncommitted directive, if any.
func (n *Node) Pending() (Direction, *Node) {
	if n.pending == nil {
		return none, nil
	}
	return n.pending.dir, n.pending.target
}

// ClearPending drops an uncommitted directive.
func (n *Node) ClearPending() {
	n.pending = nil
}

func (n *Node) direct(dir Direction, target *Node) *Node {
	n.pending = &directive{dir: dir, target: target}
	return n
}

// markLoaded records the persisted parent and attributes so later writes to
// them can be detected by Save.
func (n *Node) markLoaded() {
	n.loaded = true
	n.loadedParent = clonePtr(n.ParentID)
	n.loadedAttrs = maps.Clone(n.Attrs)
}

// attrsEdited reports whether Attrs changed since n was loaded. Handles that
// were never loaded count as edited.
func (n *Node) attrsEdited() bool {
	return !n.loaded || !maps.Equal(n.Attrs, n.loadedAttrs)
}

// assign copies the persisted state of fresh into n and clears any directive.
func (n *Node) assign(fresh *Node) {
	n.ID = fresh.ID
	n.Scope = fresh.Scope
	n.ParentID = clonePtr(fresh.ParentID)
	n.Lft = fresh.Lft
	n.Rgt = fresh.Rgt
	n.Depth = fresh.Depth
	n.Version = fresh.Version
	n.DeletedAt = clonePtr(fresh.DeletedAt)
	n.Attrs = maps.Clone(fresh.Attrs)
	n.CreatedAt = fresh.CreatedAt
	n.UpdatedAt = fresh.UpdatedAt
	n.pending = nil
	n.markLoaded()
}

// Clone returns a copy of the persisted fields of n, without children or
// pending directives.
func (n *Node) Clone() *Node {
	c := &Node{}
	c.assign(n)
	c.loaded = n.loaded
	c.loadedParent = clonePtr(n.loadedParent)
	c.loadedAttrs = maps.Clone(n.loadedAttrs)
	return c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func sameParent(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
