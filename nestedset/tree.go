package nestedset

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tree coordinates reads and structural mutations of one scope.
//
// Tree is the only writer of lft, rgt, depth and parent_id. Every mutation
// re-reads the rows it depends on inside a Store transaction, so a Tree is safe
// for concurrent use as long as the Store serializes transactions per scope.
type Tree struct {
	store Store
	cfg   Config
	log   *slog.Logger
}

// New creates a Tree over store.
func New(store Store, cfg Config) *Tree {
	cfg.validate()
	return &Tree{
		store: store,
		cfg:   cfg,
		log:   cfg.Logger.With("scope", cfg.Scope),
	}
}

// Scope returns the scope the tree operates on.
func (t *Tree) Scope() string {
	return t.cfg.Scope
}

// Store returns the underlying store.
func (t *Tree) Store() Store {
	return t.store
}

// DeleteOptions configures delete behavior.
type DeleteOptions struct {
	// OrphanProtect fails the delete with ErrHasChildren if the node has descendants.
	OrphanProtect bool
}

// Get loads a live node by ID.
func (t *Tree) Get(ctx context.Context, id string) (*Node, error) {
	return t.load(ctx, t.store, id, false)
}

// Root loads the scope's root.
func (t *Tree) Root(ctx context.Context) (*Node, error) {
	return t.Query().Where(IsNull(ColParentID)).First(ctx)
}

// Refresh reloads n from the store, keeping any pending directive.
func (t *Tree) Refresh(ctx context.Context, n *Node) error {
	fresh, err := t.load(ctx, t.store, n.ID, true)
	if err != nil {
		return err
	}
	pending := n.pending
	n.assign(fresh)
	n.pending = pending
	return nil
}

// AppendTo saves n as the last child of target.
func (t *Tree) AppendTo(ctx context.Context, n, target *Node) error {
	return t.Save(ctx, n.AppendTo(target))
}

// PrependTo saves n as the first child of target.
func (t *Tree) PrependTo(ctx context.Context, n, target *Node) error {
	return t.Save(ctx, n.PrependTo(target))
}

// InsertBefore saves n as the sibling preceding target.
func (t *Tree) InsertBefore(ctx context.Context, n, target *Node) error {
	return t.Save(ctx, n.Before(target))
}

// InsertAfter saves n as the sibling following target.
func (t *Tree) InsertAfter(ctx context.Context, n, target *Node) error {
	return t.Save(ctx, n.After(target))
}

// MakeRoot saves n as the root of an empty scope.
func (t *Tree) MakeRoot(ctx context.Context, n *Node) error {
	return t.Save(ctx, n.MakeRoot())
}

// Save commits n.
//
// A pending directive inserts an unplaced node or moves a placed one. Without
// a directive, a ParentID that differs from the loaded value is treated as
// ReparentTo the new parent (nil makes an unplaced node the root), and any
// other placed node only has its attributes written under a version check.
// A move carries attribute edits along only when n is at the stored version,
// and leaves the stored attributes alone when n's were not edited.
//
// On failure nothing is persisted and n, including its directive, is left as
// it was.
func (t *Tree) Save(ctx context.Context, n *Node) error {
	if n.removed {
		return fmt.Errorf("%w: %s was deleted", ErrNotFound, n.ID)
	}
	if n.Scope != "" && n.Scope != t.cfg.Scope {
		return fmt.Errorf("%w: %s belongs to scope %q", ErrInvalidMove, n.ID, n.Scope)
	}

	dir, target := n.Pending()
	if dir == none {
		dir, target = t.observeParent(n)
	}
	if target != nil && target.Scope != "" && target.Scope != t.cfg.Scope {
		return fmt.Errorf("%w: target %s belongs to scope %q", ErrInvalidMove, target.ID, target.Scope)
	}

	switch {
	case !n.IsPlaced():
		return t.insert(ctx, n, dir, target)
	case dir != none:
		if err := precheckMove(n, dir, target); err != nil {
			mutationsTotal.WithLabelValues("move", resultLabel(err)).Inc()
			return err
		}
		return t.move(ctx, n, dir, target)
	}
	return t.update(ctx, n)
}

func (t *Tree) observeParent(n *Node) (Direction, *Node) {
	if n.IsPlaced() && (!n.loaded || sameParent(n.ParentID, n.loadedParent)) {
		return none, nil
	}
	if n.ParentID == nil {
		return Root, nil
	}
	return Append, &Node{ID: *n.ParentID, Scope: t.cfg.Scope}
}

// precheckMove rejects placing a node relative to itself. Containment is
// only checked on the rows read inside the transaction, since a reused target
// handle may carry outdated bounds.
func precheckMove(n *Node, dir Direction, target *Node) error {
	if dir == Root || target == nil {
		return nil
	}
	if target.ID == n.ID {
		return fmt.Errorf("%w: %s cannot be placed relative to itself", ErrInvalidMove, n.ID)
	}
	return nil
}

func (t *Tree) insert(ctx context.Context, n *Node, dir Direction, target *Node) error {
	id := n.ID
	if id == "" {
		id = uuid.NewString()
	}
	scope := t.cfg.Scope

	var fresh *Node
	err := t.mutate(ctx, "insert", id, func(ctx context.Context, tx Store) error {
		var plan *Plan
		if dir == Root {
			existing, err := t.read(ctx, tx, Query{Scope: scope, WithTrashed: true, Limit: 1})
			if err != nil {
				return err
			}
			if len(existing) > 0 {
				return ErrRootExists
			}
			plan, _ = PlanInsert(nil, Root)
		} else {
			tgt, err := t.loadTarget(ctx, tx, target)
			if err != nil {
				return err
			}
			if plan, err = PlanInsert(tgt, dir); err != nil {
				return err
			}
			affected, err := tx.BulkUpdate(ctx, scope, plan.Filter, plan.Delta)
			if err != nil {
				return err
			}
			if affected == 0 {
				return fmt.Errorf("%w: opening a gap at %d updated no rows", ErrConsistency, plan.Lft)
			}
		}

		now := t.cfg.Clock().UTC()
		row := &Node{
			ID:        id,
			Scope:     scope,
			ParentID:  plan.ParentID,
			Lft:       plan.Lft,
			Rgt:       plan.Rgt,
			Depth:     plan.Depth,
			Version:   1,
			Attrs:     maps.Clone(n.Attrs),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.Insert(ctx, row); err != nil {
			return err
		}
		var err error
		fresh, err = t.load(ctx, tx, id, true)
		return err
	})
	if err != nil {
		return err
	}
	n.assign(fresh)
	return nil
}

func (t *Tree) move(ctx context.Context, n *Node, dir Direction, target *Node) error {
	scope := t.cfg.Scope

	var fresh *Node
	err := t.mutate(ctx, "move", n.ID, func(ctx context.Context, tx Store) error {
		cur, err := t.source(ctx, tx, n)
		if err != nil {
			return err
		}
		var tgt *Node
		if dir != Root {
			if tgt, err = t.loadTarget(ctx, tx, target); err != nil {
				return err
			}
		}
		plan, err := PlanMove(cur, tgt, dir)
		if err != nil {
			return err
		}
		// Attribute edits ride along only on a handle at the stored version.
		writeAttrs := n.attrsEdited() && !maps.Equal(n.Attrs, cur.Attrs)
		if writeAttrs && n.Version != cur.Version {
			return fmt.Errorf("%w: %s at version %d has unsaved attrs, stored version is %d",
				ErrConcurrentModification, n.ID, n.Version, cur.Version)
		}

		if plan.Kind != KindNoop {
			if err := t.checkSubtree(ctx, tx, cur); err != nil {
				return err
			}
			affected, err := tx.BulkUpdate(ctx, scope, plan.Filter, plan.Delta)
			if err != nil {
				return err
			}
			if affected < int64(plan.Rows()) {
				return fmt.Errorf("%w: moving %s updated %d rows, subtree has %d",
					ErrConsistency, cur.ID, affected, plan.Rows())
			}
		}

		updated, err := tx.BulkUpdate(ctx, scope, []Cond{Eq(ColID, cur.ID)}, Delta{
			SetParent: true,
			ParentID:  plan.ParentID,
			SetAttrs:  writeAttrs,
			Attrs:     n.Attrs,
		})
		if err != nil {
			return err
		}
		if updated != 1 {
			return fmt.Errorf("%w: parent update of %s touched %d rows", ErrConsistency, cur.ID, updated)
		}
		fresh, err = t.load(ctx, tx, cur.ID, true)
		return err
	})
	if err != nil {
		return err
	}
	n.assign(fresh)
	return nil
}

func (t *Tree) update(ctx context.Context, n *Node) error {
	var fresh *Node
	err := t.mutate(ctx, "update", n.ID, func(ctx context.Context, tx Store) error {
		affected, err := tx.BulkUpdate(ctx, t.cfg.Scope, []Cond{Eq(ColID, n.ID), Eq(ColVersion, n.Version)}, Delta{
			SetAttrs: true,
			Attrs:    n.Attrs,
		})
		if err != nil {
			return err
		}
		if affected == 0 {
			return fmt.Errorf("%w: %s at version %d", ErrConcurrentModification, n.ID, n.Version)
		}
		fresh, err = t.load(ctx, tx, n.ID, true)
		return err
	})
	if err != nil {
		return err
	}
	n.assign(fresh)
	return nil
}

// Delete removes n and its whole subtree and closes the gap they leave.
// Callers that want to keep the descendants must move them out first.
func (t *Tree) Delete(ctx context.Context, n *Node, opts DeleteOptions) error {
	if n.removed {
		return fmt.Errorf("%w: %s was deleted", ErrNotFound, n.ID)
	}
	scope := t.cfg.Scope

	err := t.mutate(ctx, "delete", n.ID, func(ctx context.Context, tx Store) error {
		cur, err := t.source(ctx, tx, n)
		if err != nil {
			return err
		}
		if opts.OrphanProtect && !cur.IsLeaf() {
			return fmt.Errorf("%w: %s has %d", ErrHasChildren, cur.ID, cur.DescendantCount())
		}
		plan, err := PlanDelete(cur)
		if err != nil {
			return err
		}
		removed, err := tx.Delete(ctx, scope, plan.Remove)
		if err != nil {
			return err
		}
		if removed != int64(plan.Rows()) {
			return fmt.Errorf("%w: deleting %s removed %d rows, subtree has %d",
				ErrConsistency, cur.ID, removed, plan.Rows())
		}
		affected, err := tx.BulkUpdate(ctx, scope, plan.Filter, plan.Delta)
		if err != nil {
			return err
		}
		if cur.ParentID != nil && affected == 0 {
			return fmt.Errorf("%w: closing the gap of %s updated no rows", ErrConsistency, cur.ID)
		}
		return nil
	})
	if err != nil {
		return err
	}
	n.removed = true
	n.pending = nil
	return nil
}

// SoftDelete marks n as deleted without renumbering the tree. Its live
// descendants are marked with the same timestamp unless
// Config.SoftDeleteNodeOnly is set. Deleting a trashed node is a no-op.
func (t *Tree) SoftDelete(ctx context.Context, n *Node) error {
	var fresh *Node
	err := t.mutate(ctx, "soft_delete", n.ID, func(ctx context.Context, tx Store) error {
		cur, err := t.load(ctx, tx, n.ID, true)
		if err != nil {
			return err
		}
		if cur.DeletedAt == nil {
			at := t.cfg.Clock().UTC().Truncate(time.Microsecond)
			conds := []Cond{Eq(ColID, cur.ID)}
			if !t.cfg.SoftDeleteNodeOnly {
				conds = []Cond{Ge(ColLft, cur.Lft), Le(ColRgt, cur.Rgt), IsNull(ColDeletedAt)}
			}
			affected, err := tx.BulkUpdate(ctx, t.cfg.Scope, conds, Delta{SetDeletedAt: true, DeletedAt: &at})
			if err != nil {
				return err
			}
			if affected == 0 {
				return fmt.Errorf("%w: soft delete of %s updated no rows", ErrConsistency, cur.ID)
			}
		}
		fresh, err = t.load(ctx, tx, n.ID, true)
		return err
	})
	if err != nil {
		return err
	}
	n.assign(fresh)
	return nil
}

// Restore revives a soft deleted n together with the descendants deleted at
// or after it, unless Config.SoftDeleteNodeOnly is set.
func (t *Tree) Restore(ctx context.Context, n *Node) error {
	var fresh *Node
	err := t.mutate(ctx, "restore", n.ID, func(ctx context.Context, tx Store) error {
		cur, err := t.load(ctx, tx, n.ID, true)
		if err != nil {
			return err
		}
		if cur.DeletedAt != nil {
			conds := []Cond{Eq(ColID, cur.ID)}
			if !t.cfg.SoftDeleteNodeOnly {
				conds = []Cond{Ge(ColLft, cur.Lft), Le(ColRgt, cur.Rgt), Ge(ColDeletedAt, *cur.DeletedAt)}
			}
			affected, err := tx.BulkUpdate(ctx, t.cfg.Scope, conds, Delta{SetDeletedAt: true})
			if err != nil {
				return err
			}
			if affected == 0 {
				return fmt.Errorf("%w: restore of %s updated no rows", ErrConsistency, cur.ID)
			}
		}
		fresh, err = t.load(ctx, tx, n.ID, true)
		return err
	})
	if err != nil {
		return err
	}
	n.assign(fresh)
	return nil
}

// CascadeSoftDelete marks the live descendants of the trashed node id with the
// node's own deletion time and returns how many were marked.
func (t *Tree) CascadeSoftDelete(ctx context.Context, id string) (int64, error) {
	var affected int64
	err := t.mutate(ctx, "cascade_soft_delete", id, func(ctx context.Context, tx Store) error {
		cur, err := t.load(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if cur.DeletedAt == nil || cur.IsLeaf() {
			return nil
		}
		affected, err = tx.BulkUpdate(ctx, t.cfg.Scope,
			[]Cond{Gt(ColLft, cur.Lft), Lt(ColRgt, cur.Rgt), IsNull(ColDeletedAt)},
			Delta{SetDeletedAt: true, DeletedAt: cur.DeletedAt})
		return err
	})
	return affected, err
}

// CascadeRestore revives the descendants of the live node id that were soft
// deleted at or after since and returns how many were revived.
func (t *Tree) CascadeRestore(ctx context.Context, id string, since time.Time) (int64, error) {
	var affected int64
	err := t.mutate(ctx, "cascade_restore", id, func(ctx context.Context, tx Store) error {
		cur, err := t.load(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if cur.DeletedAt != nil || cur.IsLeaf() {
			return nil
		}
		affected, err = tx.BulkUpdate(ctx, t.cfg.Scope,
			[]Cond{Gt(ColLft, cur.Lft), Lt(ColRgt, cur.Rgt), Ge(ColDeletedAt, since)},
			Delta{SetDeletedAt: true})
		return err
	})
	return affected, err
}

// Check validates every invariant of the scope, soft deleted rows included.
func (t *Tree) Check(ctx context.Context) (Report, error) {
	nodes, err := t.read(ctx, t.store, Query{Scope: t.cfg.Scope, WithTrashed: true})
	if err != nil {
		return Report{}, err
	}
	return Validate(nodes), nil
}

// Rebuild renumbers the scope from its parent references. Siblings keep their
// current lft order, ties broken by ID. It returns the number of rows whose
// placement changed.
func (t *Tree) Rebuild(ctx context.Context) (int, error) {
	scope := t.cfg.Scope
	var changed int
	err := t.mutate(ctx, "rebuild", "", func(ctx context.Context, tx Store) error {
		changed = 0
		nodes, err := t.read(ctx, tx, Query{
			Scope:       scope,
			WithTrashed: true,
			Order:       []Order{{Column: ColLft}, {Column: ColID}},
		})
		if err != nil {
			return err
		}
		if len(nodes) == 0 {
			return nil
		}

		byID := ToDictionary(nodes)
		children := make(map[string][]*Node, len(nodes))
		var roots []*Node
		for _, n := range nodes {
			if n.ParentID == nil {
				roots = append(roots, n)
				continue
			}
			if _, ok := byID[*n.ParentID]; !ok {
				return fmt.Errorf("%w: %s references missing parent %s", ErrConsistency, n.ID, *n.ParentID)
			}
			children[*n.ParentID] = append(children[*n.ParentID], n)
		}
		if len(roots) != 1 {
			return fmt.Errorf("%w: scope has %d roots", ErrConsistency, len(roots))
		}

		places := make(map[string]Placement, len(nodes))
		counter := 0
		var number func(n *Node, depth int)
		number = func(n *Node, depth int) {
			counter++
			lft := counter
			for _, c := range children[n.ID] {
				number(c, depth+1)
			}
			counter++
			places[n.ID] = Placement{Lft: lft, Rgt: counter, Depth: depth}
		}
		number(roots[0], 0)
		if len(places) != len(nodes) {
			return fmt.Errorf("%w: %d nodes are unreachable from the root", ErrConsistency, len(nodes)-len(places))
		}

		for _, n := range nodes {
			p := places[n.ID]
			if n.Lft == p.Lft && n.Rgt == p.Rgt && n.Depth == p.Depth {
				continue
			}
			updated, err := tx.BulkUpdate(ctx, scope, []Cond{Eq(ColID, n.ID)}, Delta{Place: &p})
			if err != nil {
				return err
			}
			if updated != 1 {
				return fmt.Errorf("%w: placing %s touched %d rows", ErrConsistency, n.ID, updated)
			}
			changed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return changed, nil
}

// source re-reads a mutation source and rejects it if the handle is stale.
func (t *Tree) source(ctx context.Context, tx Store, n *Node) (*Node, error) {
	cur, err := t.load(ctx, tx, n.ID, true)
	if err != nil {
		return nil, err
	}
	if isStale(n, cur) {
		if !t.cfg.RefreshStaleSource {
			return nil, fmt.Errorf("%w: %s cached [%d,%d] stored [%d,%d]",
				ErrStaleNode, n.ID, n.Lft, n.Rgt, cur.Lft, cur.Rgt)
		}
		t.log.Debug("using refreshed source", "node", n.ID, "lft", cur.Lft, "rgt", cur.Rgt)
	}
	return cur, nil
}

func isStale(cached, stored *Node) bool {
	if cached.Lft != stored.Lft || cached.Rgt != stored.Rgt || cached.Depth != stored.Depth {
		return true
	}
	return cached.loaded && !sameParent(cached.loadedParent, stored.ParentID)
}

func (t *Tree) loadTarget(ctx context.Context, tx Store, target *Node) (*Node, error) {
	if target == nil {
		return nil, fmt.Errorf("%w: missing target", ErrNotFound)
	}
	tgt, err := t.load(ctx, tx, target.ID, false)
	if err != nil {
		return nil, fmt.Errorf("target: %w", err)
	}
	return tgt, nil
}

func (t *Tree) checkSubtree(ctx context.Context, tx Store, n *Node) error {
	rows, err := t.read(ctx, tx, Query{
		Scope:       t.cfg.Scope,
		Where:       []Cond{Ge(ColLft, n.Lft), Le(ColRgt, n.Rgt)},
		WithTrashed: true,
	})
	if err != nil {
		return err
	}
	if want := n.DescendantCount() + 1; len(rows) != want {
		return fmt.Errorf("%w: subtree of %s has %d rows, bounds encode %d",
			ErrConsistency, n.ID, len(rows), want)
	}
	return nil
}

func (t *Tree) load(ctx context.Context, s Store, id string, withTrashed bool) (*Node, error) {
	nodes, err := t.read(ctx, s, Query{
		Scope:       t.cfg.Scope,
		Where:       []Cond{Eq(ColID, id)},
		Limit:       1,
		WithTrashed: withTrashed,
	})
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nodes[0], nil
}

func (t *Tree) read(ctx context.Context, s Store, q Query) ([]*Node, error) {
	nodes, err := s.Read(ctx, q)
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		n.markLoaded()
	}
	return nodes, nil
}

// mutate runs fn in a scope transaction with tracing, metrics and logging.
func (t *Tree) mutate(ctx context.Context, op, id string, fn func(ctx context.Context, tx Store) error) error {
	ctx, span := otel.Tracer("arbor").Start(ctx, "Tree."+op, trace.WithAttributes(
		attribute.String("arbor.scope", t.cfg.Scope),
		attribute.String("arbor.node", id),
	))
	defer span.End()

	start := time.Now()
	err := t.store.Transaction(ctx, t.cfg.Scope, func(tx Store) error {
		return fn(ctx, tx)
	})
	mutationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	mutationsTotal.WithLabelValues(op, resultLabel(err)).Inc()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		t.log.Warn("tree mutation failed",
			"op", op,
			"node", id,
			"error", err,
		)
		return err
	}
	t.log.Debug("tree mutation committed", "op", op, "node", id)
	return nil
}
