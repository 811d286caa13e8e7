// Package dynamostore implements nestedset.Store on DynamoDB.
//
// Every scope lives in one partition: pk "tree#<scope>", sk "node#<id>" for
// nodes plus a meta item at sk "#meta". A transaction reads the whole
// partition with consistent reads, applies bulk updates in memory and commits
// the changed items with TransactWriteItems. Every write is conditioned on the
// version the item had when it was read, and structural writers of a scope
// serialize on the meta item's version.
//
// # Limits
//
// A mutation commits at most [Config.MaxTransactItems] items, the meta item
// included. Inserting, moving or deleting near the start of a large tree
// shifts many rows and fails with [ErrTransactionTooLarge] once that limit is
// exceeded. Use package sqlstore for trees that grow past it.
//
// # Conflicts
//
// A commit rejected because another writer got there first is retried from a
// fresh read up to [Config.MaxConflictRetries] times, after which
// nestedset.ErrConcurrentModification is returned.
//
// # Table Layout
//
// [CreateTableInput] describes the table: string keys pk and sk, on-demand
// billing and a stream with old and new images for package stream.
package dynamostore
