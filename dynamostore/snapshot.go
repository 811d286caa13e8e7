package dynamostore

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/jacentio/arbor/nestedset"
)

// snapshot is the in-memory copy of one scope's partition a transaction works on.
type snapshot struct {
	scope string

	// meta is the meta item's version at load time, 0 if it didn't exist.
	meta int64

	rows map[string]*nestedset.Node
	// loaded holds each row's version at load time.
	loaded map[string]int64

	dirty   map[string]bool
	removed map[string]bool
}

func newSnapshot(scope string) *snapshot {
	return &snapshot{
		scope:   scope,
		rows:    make(map[string]*nestedset.Node),
		loaded:  make(map[string]int64),
		dirty:   make(map[string]bool),
		removed: make(map[string]bool),
	}
}

func (s *snapshot) add(n *nestedset.Node) {
	s.rows[n.ID] = n
	s.loaded[n.ID] = n.Version
}

func (s *snapshot) list() []*nestedset.Node {
	out := make([]*nestedset.Node, 0, len(s.rows))
	for _, n := range s.rows {
		out = append(out, n)
	}
	return out
}

// changed returns the IDs to put and to delete, in ID order.
func (s *snapshot) changed() (puts, deletes []string) {
	for id := range s.dirty {
		if _, ok := s.rows[id]; ok {
			puts = append(puts, id)
		}
	}
	for id := range s.removed {
		if _, ok := s.loaded[id]; ok {
			if _, live := s.rows[id]; !live {
				deletes = append(deletes, id)
			}
		}
	}
	slices.Sort(puts)
	slices.Sort(deletes)
	return puts, deletes
}

// txStore runs nestedset.Store calls against a snapshot.
type txStore struct {
	snap *snapshot
}

func (t *txStore) checkScope(scope string) error {
	if scope != t.snap.scope {
		return fmt.Errorf("transaction on scope %q cannot access scope %q", t.snap.scope, scope)
	}
	return nil
}

func (t *txStore) Read(_ context.Context, q nestedset.Query) ([]*nestedset.Node, error) {
	if err := t.checkScope(q.Scope); err != nil {
		return nil, err
	}
	return nestedset.Execute(t.snap.list(), q), nil
}

func (t *txStore) BulkUpdate(_ context.Context, scope string, conds []nestedset.Cond, d nestedset.Delta) (int64, error) {
	if err := t.checkScope(scope); err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	var n int64
	for id, row := range t.snap.rows {
		if !nestedset.Match(row, conds) {
			continue
		}
		nestedset.ApplyDelta(row, d, now)
		t.snap.dirty[id] = true
		n++
	}
	return n, nil
}

func (t *txStore) Insert(_ context.Context, n *nestedset.Node) error {
	if err := t.checkScope(n.Scope); err != nil {
		return err
	}
	if _, ok := t.snap.rows[n.ID]; ok {
		return fmt.Errorf("%w: %s", nestedset.ErrAlreadyExists, n.ID)
	}
	t.snap.rows[n.ID] = n.Clone()
	t.snap.dirty[n.ID] = true
	return nil
}

func (t *txStore) Delete(_ context.Context, scope string, conds []nestedset.Cond) (int64, error) {
	if err := t.checkScope(scope); err != nil {
		return 0, err
	}
	var n int64
	for id, row := range t.snap.rows {
		if !nestedset.Match(row, conds) {
			continue
		}
		delete(t.snap.rows, id)
		delete(t.snap.dirty, id)
		t.snap.removed[id] = true
		n++
	}
	return n, nil
}

func (t *txStore) Transaction(_ context.Context, scope string, fn func(tx nestedset.Store) error) error {
	if err := t.checkScope(scope); err != nil {
		return err
	}
	return fn(t)
}
