package dynamostore

import "errors"

// ErrTransactionTooLarge is returned when a mutation would write more items
// than Config.MaxTransactItems.
var ErrTransactionTooLarge = errors.New("arbor: transaction exceeds item limit")
