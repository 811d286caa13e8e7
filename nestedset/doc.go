// Package nestedset maintains trees stored in a flat table using the nested-set model.
//
// Every node carries a left/right bound pair (lft, rgt) and a depth. A node's
// subtree occupies the integer interval between its bounds, so ancestors and
// descendants are plain range scans and never need recursion.
//
// # Key Features
//
//   - Insert, move and delete with single-pass bulk range shifts
//   - Move computed as one signed-delta update (no intermediate numbering is persisted)
//   - Invalid moves (into self or own subtree) rejected before any write
//   - Stale handle detection for mutation sources
//   - Soft delete with cascading to descendants and restore
//   - Reconstruction of filtered node lists into in-memory trees
//   - Multiple independent trees per table via a scope discriminator
//
// # Storage
//
// The package does not talk to a database directly. It drives a [Store], which
// must offer range-filtered reads, bulk updates, inserts, deletes and
// transactions that serialize structural writers of the same scope. Package
// sqlstore implements it with gorm (sqlite, postgres) and package dynamostore
// with DynamoDB.
//
// # Mutations
//
// Positional directives are recorded on a node handle and committed by
// [Tree.Save]:
//
//	child := &nestedset.Node{Attrs: map[string]string{"name": "docs"}}
//	child.AppendTo(parent)
//	if err := tree.Save(ctx, child); err != nil {
//	    return err
//	}
//
// Targets are always re-read inside the mutation's transaction, so one target
// handle can be reused for a batch of inserts. A source handle whose bounds were
// shifted by another commit is rejected with [ErrStaleNode] unless
// [Config.RefreshStaleSource] is set.
//
// # Errors
//
//   - [ErrInvalidMove] - target is the node itself or one of its descendants
//   - [ErrStaleNode] - cached bounds no longer match the stored row
//   - [ErrConsistency] - a bulk update touched an unexpected number of rows
//   - [ErrNotFound] - source or target no longer exists
//   - [ErrRootExists] - a second root was requested for a scope
//   - [ErrHasChildren] - orphan-protected delete of a node with descendants
//   - [ErrConcurrentModification] - optimistic version check failed
package nestedset
