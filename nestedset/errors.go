package nestedset

import "errors"

var (
	// ErrInvalidMove is returned when a node would become its own descendant,
	// a sibling of the root, or would leave its scope.
	ErrInvalidMove = errors.New("arbor: invalid move")

	// ErrStaleNode is returned when a source handle's cached bounds or parent no
	// longer match the stored row.
	ErrStaleNode = errors.New("arbor: node handle is stale")

	// ErrConsistency is returned when a bulk update or delete affected an
	// unexpected number of rows. The tree is corrupt or isolation failed.
	ErrConsistency = errors.New("arbor: tree consistency violated")

	// ErrNotFound is returned when a referenced node doesn't exist.
	ErrNotFound = errors.New("arbor: node not found")

	// ErrRootExists is returned when a root is requested for a non-empty scope.
	ErrRootExists = errors.New("arbor: tree already has a root")

	// ErrHasChildren is returned by orphan-protected deletes of non-leaf nodes.
	ErrHasChildren = errors.New("arbor: node has descendants")

	// ErrAlreadyExists is returned when inserting a node with an existing ID.
	ErrAlreadyExists = errors.New("arbor: node already exists")

	// ErrConcurrentModification is returned when an optimistic version check fails.
	ErrConcurrentModification = errors.New("arbor: node was modified concurrently")

	// ErrUnplaced is returned when an operation needs bounds the node doesn't have yet.
	ErrUnplaced = errors.New("arbor: node is not placed in a tree")
)
