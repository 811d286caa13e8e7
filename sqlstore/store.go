package sqlstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jacentio/arbor/internal/scopekey"
	"github.com/jacentio/arbor/nestedset"
)

// Store implements nestedset.Store on a gorm database.
type Store struct {
	db   *gorm.DB
	cfg  Config
	log  *slog.Logger
	inTx bool
}

// New creates a Store over an open gorm database. The database should be
// opened with TranslateError so duplicate IDs map to nestedset.ErrAlreadyExists.
func New(db *gorm.DB, cfg Config) *Store {
	cfg.validate()
	return &Store{
		db:  db,
		cfg: cfg,
		log: cfg.Logger,
	}
}

// DB returns the underlying gorm handle.
func (s *Store) DB() *gorm.DB {
	return s.db
}

type nodeRow struct {
	ID        string            `gorm:"primaryKey;size:64"`
	Scope     string            `gorm:"size:255;not null;index:idx_arbor_scope_bounds,priority:1;index:idx_arbor_scope_parent,priority:1"`
	ParentID  *string           `gorm:"size:64;index:idx_arbor_scope_parent,priority:2"`
	Lft       int               `gorm:"not null;index:idx_arbor_scope_bounds,priority:2"`
	Rgt       int               `gorm:"not null;index:idx_arbor_scope_bounds,priority:3"`
	Depth     int               `gorm:"not null"`
	Version   int64             `gorm:"not null"`
	DeletedAt *time.Time        `gorm:"index"`
	Attrs     map[string]string `gorm:"type:text;serializer:json"`
	CreatedAt time.Time
	UpdatedAt time.Time

	ComputedDepth *int `gorm:"->;-:migration"`
}

func fromNode(n *nestedset.Node) nodeRow {
	return nodeRow{
		ID:        n.ID,
		Scope:     n.Scope,
		ParentID:  n.ParentID,
		Lft:       n.Lft,
		Rgt:       n.Rgt,
		Depth:     n.Depth,
		Version:   n.Version,
		DeletedAt: n.DeletedAt,
		Attrs:     n.Attrs,
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
	}
}

func (r *nodeRow) toNode() *nestedset.Node {
	n := &nestedset.Node{
		ID:        r.ID,
		Scope:     r.Scope,
		ParentID:  r.ParentID,
		Lft:       r.Lft,
		Rgt:       r.Rgt,
		Depth:     r.Depth,
		Version:   r.Version,
		DeletedAt: r.DeletedAt,
		Attrs:     r.Attrs,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.ComputedDepth != nil {
		n.Depth = *r.ComputedDepth
	}
	if n.DeletedAt != nil {
		at := n.DeletedAt.UTC()
		n.DeletedAt = &at
	}
	return n
}

var columns = map[nestedset.Column]bool{
	nestedset.ColID:        true,
	nestedset.ColParentID:  true,
	nestedset.ColLft:       true,
	nestedset.ColRgt:       true,
	nestedset.ColDepth:     true,
	nestedset.ColVersion:   true,
	nestedset.ColDeletedAt: true,
}

var ops = map[nestedset.Op]bool{
	nestedset.OpEq:      true,
	nestedset.OpNe:      true,
	nestedset.OpLt:      true,
	nestedset.OpLe:      true,
	nestedset.OpGt:      true,
	nestedset.OpGe:      true,
	nestedset.OpIsNull:  true,
	nestedset.OpNotNull: true,
}

// where appends conds to tx. Column names are qualified with prefix.
func where(tx *gorm.DB, prefix string, conds []nestedset.Cond) (*gorm.DB, error) {
	for _, c := range conds {
		if !columns[c.Column] {
			return nil, fmt.Errorf("unknown column %q", c.Column)
		}
		if !ops[c.Op] {
			return nil, fmt.Errorf("unknown operator %q", c.Op)
		}
		col := prefix + string(c.Column)
		switch c.Op {
		case nestedset.OpIsNull, nestedset.OpNotNull:
			tx = tx.Where(col + " " + string(c.Op))
		default:
			v := c.Value
			if t, ok := v.(time.Time); ok {
				v = t.UTC()
			}
			tx = tx.Where(col+" "+string(c.Op)+" ?", v)
		}
	}
	return tx, nil
}

// Read returns the rows matching q.
func (s *Store) Read(ctx context.Context, q nestedset.Query) ([]*nestedset.Node, error) {
	tx := s.db.WithContext(ctx).Table(s.cfg.Table+" AS n").Where("n.scope = ?", q.Scope)
	switch {
	case q.OnlyTrashed:
		tx = tx.Where("n.deleted_at IS NOT NULL")
	case !q.WithTrashed:
		tx = tx.Where("n.deleted_at IS NULL")
	}
	tx, err := where(tx, "n.", q.Where)
	if err != nil {
		return nil, err
	}

	if q.WithDepth {
		tx = tx.Select("n.*, (SELECT COUNT(*) FROM " + s.cfg.Table +
			" AS a WHERE a.scope = n.scope AND a.lft < n.lft AND a.rgt > n.rgt) AS computed_depth")
	} else {
		tx = tx.Select("n.*")
	}

	for _, o := range q.Order {
		if !columns[o.Column] {
			return nil, fmt.Errorf("unknown column %q", o.Column)
		}
		tx = tx.Order(clause.OrderByColumn{
			Column: clause.Column{Table: "n", Name: string(o.Column)},
			Desc:   o.Desc,
		})
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	if q.Offset > 0 {
		tx = tx.Offset(q.Offset)
	}

	var rows []nodeRow
	if err := tx.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to read nodes: %w", err)
	}
	nodes := make([]*nestedset.Node, len(rows))
	for i := range rows {
		nodes[i] = rows[i].toNode()
	}
	return nodes, nil
}

// BulkUpdate applies d to every row of scope matching conds in one UPDATE.
// Shifts become CASE expressions over the pre-update column values.
func (s *Store) BulkUpdate(ctx context.Context, scope string, conds []nestedset.Cond, d nestedset.Delta) (int64, error) {
	updates := map[string]any{
		"version":    gorm.Expr("version + 1"),
		"updated_at": time.Now().UTC(),
	}
	if d.Place != nil {
		updates["lft"] = d.Place.Lft
		updates["rgt"] = d.Place.Rgt
		updates["depth"] = d.Place.Depth
	} else {
		if e, ok := shiftExpr("lft", "lft", d.Lft); ok {
			updates["lft"] = e
		}
		if e, ok := shiftExpr("rgt", "rgt", d.Rgt); ok {
			updates["rgt"] = e
		}
		if e, ok := shiftExpr("depth", "lft", d.Depth); ok {
			updates["depth"] = e
		}
	}
	if d.SetParent {
		updates["parent_id"] = d.ParentID
	}
	if d.SetDeletedAt {
		if d.DeletedAt == nil {
			updates["deleted_at"] = nil
		} else {
			updates["deleted_at"] = d.DeletedAt.UTC()
		}
	}
	if d.SetAttrs {
		attrs, err := json.Marshal(d.Attrs)
		if err != nil {
			return 0, fmt.Errorf("failed to encode attrs: %w", err)
		}
		updates["attrs"] = string(attrs)
	}

	tx, err := where(s.db.WithContext(ctx).Table(s.cfg.Table).Where("scope = ?", scope), "", conds)
	if err != nil {
		return 0, err
	}
	res := tx.UpdateColumns(updates)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to update nodes: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// shiftExpr renders col + CASE WHEN match BETWEEN from AND to THEN by ... END.
func shiftExpr(col, match string, shifts []nestedset.Shift) (clause.Expr, bool) {
	if len(shifts) == 0 {
		return clause.Expr{}, false
	}
	var sb strings.Builder
	args := make([]any, 0, 3*len(shifts))
	sb.WriteString(col)
	sb.WriteString(" + CASE")
	for _, sh := range shifts {
		sb.WriteString(" WHEN " + match + " BETWEEN ? AND ? THEN ?")
		args = append(args, sh.From, sh.To, sh.By)
	}
	sb.WriteString(" ELSE 0 END")
	return gorm.Expr(sb.String(), args...), true
}

// Insert stores a new row.
func (s *Store) Insert(ctx context.Context, n *nestedset.Node) error {
	row := fromNode(n)
	if row.DeletedAt != nil {
		at := row.DeletedAt.UTC()
		row.DeletedAt = &at
	}
	err := s.db.WithContext(ctx).Table(s.cfg.Table).Create(&row).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %s", nestedset.ErrAlreadyExists, n.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to insert node: %w", err)
	}
	return nil
}

// Delete removes every row of scope matching conds.
func (s *Store) Delete(ctx context.Context, scope string, conds []nestedset.Cond) (int64, error) {
	tx, err := where(s.db.WithContext(ctx).Table(s.cfg.Table).Where("scope = ?", scope), "", conds)
	if err != nil {
		return 0, err
	}
	res := tx.Delete(&nodeRow{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete nodes: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Transaction runs fn in a database transaction holding the scope's write
// lock. Calls on a Store passed to fn join the running transaction.
func (s *Store) Transaction(ctx context.Context, scope string, fn func(tx nestedset.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.lockScope(tx, scope); err != nil {
			return fmt.Errorf("failed to lock scope %q: %w", scope, err)
		}
		return fn(&Store{db: tx, cfg: s.cfg, log: s.log, inTx: true})
	})
}

// lockScope serializes structural writers of scope until tx ends.
func (s *Store) lockScope(tx *gorm.DB, scope string) error {
	switch tx.Dialector.Name() {
	case "postgres":
		return tx.Exec("SELECT pg_advisory_xact_lock(?)", scopekey.AdvisoryLockKey(scope)).Error
	case "sqlite":
		// A write statement upgrades the deferred transaction to the
		// database write lock even when it matches no rows.
		return tx.Exec("UPDATE " + s.cfg.Table + " SET version = version WHERE 1 = 0").Error
	}
	var ids []string
	return tx.Table(s.cfg.Table).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("scope = ? AND parent_id IS NULL", scope).
		Pluck("id", &ids).Error
}
