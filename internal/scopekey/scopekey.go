// Package scopekey derives storage keys for tree scopes.
package scopekey

import (
	"hash/fnv"
	"strings"
)

const (
	partitionPrefix = "tree#"
	nodePrefix      = "node#"

	// MetaSortKey is the sort key of the per-scope meta item. It sorts before
	// every node item.
	MetaSortKey = "#meta"
)

// PartitionKey returns the DynamoDB partition key holding every item of scope.
// The default scope "" maps to "tree#".
func PartitionKey(scope string) string {
	return partitionPrefix + scope
}

// ScopeOf extracts the scope from a partition key built by PartitionKey.
func ScopeOf(pk string) (string, bool) {
	return strings.CutPrefix(pk, partitionPrefix)
}

// NodeSortKey returns the sort key of a node item.
func NodeSortKey(id string) string {
	return nodePrefix + id
}

// NodeID extracts the node ID from a sort key built by NodeSortKey.
func NodeID(sk string) (string, bool) {
	return strings.CutPrefix(sk, nodePrefix)
}

// AdvisoryLockKey hashes scope into a postgres advisory lock key.
// Distinct scopes may collide; a collision only serializes unrelated writers.
func AdvisoryLockKey(scope string) int64 {
	h := fnv.New64a()
	h.Write([]byte("arbor#" + scope))
	return int64(h.Sum64())
}
