package nestedset

import (
	"context"
	"math"
	"time"
)

// Store is the persistence collaborator a Tree drives.
//
// Implementations must make Transaction serialize structural writers of the
// same scope: two transactions on one scope may not interleave their bulk
// updates. Every row written by BulkUpdate gets its version incremented.
type Store interface {
	// Read returns the rows matching q.
	Read(ctx context.Context, q Query) ([]*Node, error)

	// BulkUpdate applies d to every row of scope matching all conds and returns
	// the number of rows updated.
	BulkUpdate(ctx context.Context, scope string, conds []Cond, d Delta) (int64, error)

	// Insert stores a new row. It returns ErrAlreadyExists for duplicate IDs.
	Insert(ctx context.Context, n *Node) error

	// Delete removes every row of scope matching all conds and returns the count.
	Delete(ctx context.Context, scope string, conds []Cond) (int64, error)

	// Transaction runs fn atomically against scope. If fn returns an error
	// nothing it wrote is persisted.
	Transaction(ctx context.Context, scope string, fn func(tx Store) error) error
}

// Column names a persisted node attribute usable in conditions and orderings.
type Column string

const (
	ColID        Column = "id"
	ColParentID  Column = "parent_id"
	ColLft       Column = "lft"
	ColRgt       Column = "rgt"
	ColDepth     Column = "depth"
	ColVersion   Column = "version"
	ColDeletedAt Column = "deleted_at"
)

// Op is a comparison operator.
type Op string

const (
	OpEq      Op = "="
	OpNe      Op = "<>"
	OpLt      Op = "<"
	OpLe      Op = "<="
	OpGt      Op = ">"
	OpGe      Op = ">="
	OpIsNull  Op = "IS NULL"
	OpNotNull Op = "IS NOT NULL"
)

// Cond is a single comparison. Conditions in a slice are combined with AND.
//
// Value is a string for id and parent_id, an int for lft, rgt and depth, an
// int64 for version and a time.Time for deleted_at. It is ignored for the
// null checks.
type Cond struct {
	Column Column
	Op     Op
	Value  any
}

// Eq matches rows where c equals v.
func Eq(c Column, v any) Cond {
	return Cond{Column: c, Op: OpEq, Value: v}
}

// Ne matches rows where c differs from v.
func Ne(c Column, v any) Cond {
	return Cond{Column: c, Op: OpNe, Value: v}
}

// Lt matches rows where c is less than v.
func Lt(c Column, v any) Cond {
	return Cond{Column: c, Op: OpLt, Value: v}
}

// Le matches rows where c is at most v.
func Le(c Column, v any) Cond {
	return Cond{Column: c, Op: OpLe, Value: v}
}

// Gt matches rows where c is greater than v.
func Gt(c Column, v any) Cond {
	return Cond{Column: c, Op: OpGt, Value: v}
}

// Ge matches rows where c is at least v.
func Ge(c Column, v any) Cond {
	return Cond{Column: c, Op: OpGe, Value: v}
}

// IsNull matches rows where c is null.
func IsNull(c Column) Cond {
	return Cond{Column: c, Op: OpIsNull}
}

// NotNull matches rows where c is set.
func NotNull(c Column) Cond {
	return Cond{Column: c, Op: OpNotNull}
}

// Order is one sort key.
type Order struct {
	Column Column
	Desc   bool
}

// Query is a read specification.
type Query struct {
	Scope  string
	Where  []Cond
	Order  []Order
	Limit  int
	Offset int

	// WithDepth replaces the stored depth with the number of intervals strictly
	// containing each row. Conditions on depth still see the stored value.
	WithDepth bool

	// WithTrashed includes soft deleted rows.
	WithTrashed bool

	// OnlyTrashed returns soft deleted rows only.
	OnlyTrashed bool
}

// Shift adds By to a column for rows whose pre-update value lies in [From, To].
type Shift struct {
	From int
	To   int
	By   int
}

// ShiftFrom returns a shift with no upper bound.
func ShiftFrom(from, by int) Shift {
	return Shift{From: from, To: math.MaxInt32, By: by}
}

// Matches reports whether v lies in the shift's range.
func (s Shift) Matches(v int) bool {
	return v >= s.From && v <= s.To
}

// Placement assigns absolute bounds and depth.
type Placement struct {
	Lft   int
	Rgt   int
	Depth int
}

// Delta describes a bulk update.
//
// For each of Lft, Rgt and Depth the first matching Shift applies. Lft and Rgt
// shifts match the column's own pre-update value, Depth shifts match the
// pre-update lft. Place, when set, overrides all shifts.
type Delta struct {
	Lft   []Shift
	Rgt   []Shift
	Depth []Shift
	Place *Placement

	SetParent bool
	ParentID  *string

	SetDeletedAt bool
	DeletedAt    *time.Time

	SetAttrs bool
	Attrs    map[string]string
}

// IsZero reports whether d changes nothing but the version.
func (d Delta) IsZero() bool {
	return len(d.Lft) == 0 && len(d.Rgt) == 0 && len(d.Depth) == 0 && d.Place == nil &&
		!d.SetParent && !d.SetDeletedAt && !d.SetAttrs
}
