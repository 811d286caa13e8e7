package nestedset

import (
	"context"
	"fmt"
)

// Builder composes a read specification against a Tree's scope.
//
// Unless the caller sets an explicit order, limit or offset, Spec orders rows
// by ascending lft.
type Builder struct {
	tree     *Tree
	q        Query
	explicit bool
	err      error
}

func (t *Tree) newBuilder() *Builder {
	return &Builder{tree: t, q: Query{Scope: t.cfg.Scope}}
}

// Query returns a builder over every live node of the scope.
func (t *Tree) Query() *Builder {
	return t.newBuilder()
}

// AncestorsOf selects the ancestors of n, root first.
func (t *Tree) AncestorsOf(n *Node, includeSelf bool) *Builder {
	b := t.newBuilder().anchor(n)
	if b.err != nil {
		return b
	}
	if includeSelf {
		return b.Where(Le(ColLft, n.Lft), Ge(ColRgt, n.Rgt))
	}
	return b.Where(Lt(ColLft, n.Lft), Gt(ColRgt, n.Rgt))
}

// DescendantsOf selects the subtree of n in pre-order.
func (t *Tree) DescendantsOf(n *Node, includeSelf bool) *Builder {
	b := t.newBuilder().anchor(n)
	if b.err != nil {
		return b
	}
	if includeSelf {
		return b.Where(Ge(ColLft, n.Lft), Le(ColRgt, n.Rgt))
	}
	return b.Where(Gt(ColLft, n.Lft), Lt(ColRgt, n.Rgt))
}

// ChildrenOf selects the direct children of n using the stored depth.
func (t *Tree) ChildrenOf(n *Node) *Builder {
	b := t.DescendantsOf(n, false)
	if b.err != nil {
		return b
	}
	return b.Where(Eq(ColDepth, n.Depth+1))
}

// SiblingsOf selects the nodes sharing n's parent.
func (t *Tree) SiblingsOf(n *Node, includeSelf bool) *Builder {
	b := t.newBuilder().anchor(n)
	if b.err != nil {
		return b
	}
	if n.ParentID == nil {
		b.Where(IsNull(ColParentID))
	} else {
		b.Where(Eq(ColParentID, *n.ParentID))
	}
	if !includeSelf {
		b.Where(Ne(ColID, n.ID))
	}
	return b
}

// NextSiblings selects the siblings following n.
func (t *Tree) NextSiblings(n *Node) *Builder {
	b := t.SiblingsOf(n, false)
	if b.err != nil {
		return b
	}
	return b.Where(Gt(ColLft, n.Lft))
}

// PrevSiblings selects the siblings preceding n. Use Reversed to get the
// closest one first.
func (t *Tree) PrevSiblings(n *Node) *Builder {
	b := t.SiblingsOf(n, false)
	if b.err != nil {
		return b
	}
	return b.Where(Lt(ColLft, n.Lft))
}

// NextSibling returns the sibling immediately following n.
func (t *Tree) NextSibling(ctx context.Context, n *Node) (*Node, error) {
	return t.NextSiblings(n).First(ctx)
}

// PrevSibling returns the sibling immediately preceding n.
func (t *Tree) PrevSibling(ctx context.Context, n *Node) (*Node, error) {
	return t.PrevSiblings(n).Reversed().First(ctx)
}

func (b *Builder) anchor(n *Node) *Builder {
	switch {
	case n == nil:
		b.err = fmt.Errorf("%w: nil anchor", ErrNotFound)
	case !n.IsPlaced():
		b.err = fmt.Errorf("%w: %s", ErrUnplaced, n.ID)
	}
	return b
}

// Where adds conditions.
func (b *Builder) Where(conds ...Cond) *Builder {
	b.q.Where = append(b.q.Where, conds...)
	return b
}

// OrderBy adds a sort key and suppresses the default ordering.
func (b *Builder) OrderBy(col Column, desc bool) *Builder {
	b.q.Order = append(b.q.Order, Order{Column: col, Desc: desc})
	b.explicit = true
	return b
}

// Reversed orders by descending lft.
func (b *Builder) Reversed() *Builder {
	b.q.Order = []Order{{Column: ColLft, Desc: true}}
	b.explicit = true
	return b
}

// Limit caps the number of rows and suppresses the default ordering.
func (b *Builder) Limit(n int) *Builder {
	b.q.Limit = n
	b.explicit = true
	return b
}

// Offset skips rows and suppresses the default ordering.
func (b *Builder) Offset(n int) *Builder {
	b.q.Offset = n
	b.explicit = true
	return b
}

// WithDepth computes each row's depth from interval containment.
func (b *Builder) WithDepth() *Builder {
	b.q.WithDepth = true
	return b
}

// WithoutRoot excludes the root.
func (b *Builder) WithoutRoot() *Builder {
	return b.Where(NotNull(ColParentID))
}

// WithTrashed includes soft deleted rows.
func (b *Builder) WithTrashed() *Builder {
	b.q.WithTrashed = true
	return b
}

// OnlyTrashed selects soft deleted rows only.
func (b *Builder) OnlyTrashed() *Builder {
	b.q.OnlyTrashed = true
	return b
}

// Spec returns the read specification handed to the store.
func (b *Builder) Spec() Query {
	q := b.q
	q.Where = append([]Cond(nil), b.q.Where...)
	q.Order = append([]Order(nil), b.q.Order...)
	if !b.explicit && len(q.Order) == 0 {
		q.Order = []Order{{Column: ColLft}}
	}
	return q
}

// Get executes the query.
func (b *Builder) Get(ctx context.Context) ([]*Node, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.tree.read(ctx, b.tree.store, b.Spec())
}

// First returns the first row, or ErrNotFound.
func (b *Builder) First(ctx context.Context) (*Node, error) {
	if b.err != nil {
		return nil, b.err
	}
	q := b.Spec()
	q.Limit = 1
	nodes, err := b.tree.read(ctx, b.tree.store, q)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, ErrNotFound
	}
	return nodes[0], nil
}

// Tree executes the query and reconstructs the result with ToTree.
func (b *Builder) Tree(ctx context.Context) ([]*Node, error) {
	nodes, err := b.Get(ctx)
	if err != nil {
		return nil, err
	}
	return ToTree(nodes), nil
}

// Dictionary executes the query and indexes the result by ID.
func (b *Builder) Dictionary(ctx context.Context) (map[string]*Node, error) {
	nodes, err := b.Get(ctx)
	if err != nil {
		return nil, err
	}
	return ToDictionary(nodes), nil
}
