package dynamostore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/arbor/internal/scopekey"
	"github.com/jacentio/arbor/nestedset"
)

// API is the subset of the DynamoDB client the Store uses.
type API interface {
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Store implements nestedset.Store on a DynamoDB table.
type Store struct {
	client API
	config Config
	log    *slog.Logger
}

// New creates a new Store instance.
func New(client API, config Config) *Store {
	config.validate()
	return &Store{
		client: client,
		config: config,
		log:    config.Logger,
	}
}

// item is the stored form of a node.
type item struct {
	PK        string            `dynamodbav:"pk"`
	SK        string            `dynamodbav:"sk"`
	ID        string            `dynamodbav:"id"`
	Scope     string            `dynamodbav:"scope"`
	ParentID  *string           `dynamodbav:"parent_id,omitempty"`
	Lft       int               `dynamodbav:"lft"`
	Rgt       int               `dynamodbav:"rgt"`
	Depth     int               `dynamodbav:"depth"`
	Version   int64             `dynamodbav:"version"`
	DeletedAt *time.Time        `dynamodbav:"deleted_at,omitempty"`
	Attrs     map[string]string `dynamodbav:"attrs,omitempty"`
	CreatedAt time.Time         `dynamodbav:"created_at"`
	UpdatedAt time.Time         `dynamodbav:"updated_at"`
}

// metaItem guards a scope: every structural commit bumps its version.
type metaItem struct {
	PK        string    `dynamodbav:"pk"`
	SK        string    `dynamodbav:"sk"`
	Version   int64     `dynamodbav:"version"`
	UpdatedAt time.Time `dynamodbav:"updated_at"`
}

func toItem(n *nestedset.Node) item {
	return item{
		PK:        scopekey.PartitionKey(n.Scope),
		SK:        scopekey.NodeSortKey(n.ID),
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

func (it *item) toNode() *nestedset.Node {
	return &nestedset.Node{
		ID:        it.ID,
		Scope:     it.Scope,
		ParentID:  it.ParentID,
		Lft:       it.Lft,
		Rgt:       it.Rgt,
		Depth:     it.Depth,
		Version:   it.Version,
		DeletedAt: it.DeletedAt,
		Attrs:     it.Attrs,
		CreatedAt: it.CreatedAt,
		UpdatedAt: it.UpdatedAt,
	}
}

// Read returns the rows matching q from a consistent read of the scope.
func (s *Store) Read(ctx context.Context, q nestedset.Query) ([]*nestedset.Node, error) {
	snap, err := s.load(ctx, q.Scope)
	if err != nil {
		return nil, err
	}
	return nestedset.Execute(snap.list(), q), nil
}

// BulkUpdate applies d in its own transaction.
func (s *Store) BulkUpdate(ctx context.Context, scope string, conds []nestedset.Cond, d nestedset.Delta) (int64, error) {
	var n int64
	err := s.Transaction(ctx, scope, func(tx nestedset.Store) error {
		var err error
		n, err = tx.BulkUpdate(ctx, scope, conds, d)
		return err
	})
	return n, err
}

// Insert stores n in its own transaction.
func (s *Store) Insert(ctx context.Context, n *nestedset.Node) error {
	return s.Transaction(ctx, n.Scope, func(tx nestedset.Store) error {
		return tx.Insert(ctx, n)
	})
}

// Delete removes the matching rows in its own transaction.
func (s *Store) Delete(ctx context.Context, scope string, conds []nestedset.Cond) (int64, error) {
	var n int64
	err := s.Transaction(ctx, scope, func(tx nestedset.Store) error {
		var err error
		n, err = tx.Delete(ctx, scope, conds)
		return err
	})
	return n, err
}

// Transaction runs fn against a snapshot of scope and commits its changes
// atomically. fn is run again on a fresh snapshot when the commit loses a race
// with another writer, so it must not have side effects beyond the Store.
func (s *Store) Transaction(ctx context.Context, scope string, fn func(tx nestedset.Store) error) error {
	for attempt := 0; ; attempt++ {
		snap, err := s.load(ctx, scope)
		if err != nil {
			return err
		}
		if err := fn(&txStore{snap: snap}); err != nil {
			return err
		}

		err = s.commit(ctx, snap)
		if err == nil {
			return nil
		}
		if !errors.Is(err, nestedset.ErrConcurrentModification) {
			return err
		}
		storeConflicts.Inc()
		if attempt >= s.config.MaxConflictRetries {
			return err
		}
		s.log.Debug("retrying transaction after conflict",
			"scope", scope,
			"attempt", attempt+1,
		)
	}
}

// load reads the whole partition of scope. A read spanning several pages is
// checked against the meta item and repeated if a commit landed in between.
func (s *Store) load(ctx context.Context, scope string) (*snapshot, error) {
	for attempt := 0; ; attempt++ {
		snap, pages, err := s.query(ctx, scope)
		if err != nil {
			return nil, err
		}
		if pages <= 1 {
			return snap, nil
		}
		meta, err := s.metaVersion(ctx, scope)
		if err != nil {
			return nil, err
		}
		if meta == snap.meta {
			return snap, nil
		}
		if attempt >= s.config.MaxConflictRetries {
			return nil, fmt.Errorf("%w: scope %q changed while it was read", nestedset.ErrConcurrentModification, scope)
		}
	}
}

func (s *Store) query(ctx context.Context, scope string) (*snapshot, int, error) {
	snap := newSnapshot(scope)
	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:              aws.String(s.config.Table),
		KeyConditionExpression: aws.String("pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: scopekey.PartitionKey(scope)},
		},
		ConsistentRead: aws.Bool(true),
	})

	pages := 0
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to read scope %q: %w", scope, err)
		}
		pages++
		for _, raw := range page.Items {
			sk, _ := raw["sk"].(*types.AttributeValueMemberS)
			if sk != nil && sk.Value == scopekey.MetaSortKey {
				snap.meta = numberAttr(raw, "version")
				continue
			}
			var it item
			if err := attributevalue.UnmarshalMap(raw, &it); err != nil {
				return nil, 0, fmt.Errorf("failed to decode node: %w", err)
			}
			snap.add(it.toNode())
		}
	}
	return snap, pages, nil
}

func (s *Store) metaVersion(ctx context.Context, scope string) (int64, error) {
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.config.Table),
		KeyConditionExpression: aws.String("pk = :pk AND sk = :sk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: scopekey.PartitionKey(scope)},
			":sk": &types.AttributeValueMemberS{Value: scopekey.MetaSortKey},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to read meta of scope %q: %w", scope, err)
	}
	if len(out.Items) == 0 {
		return 0, nil
	}
	return numberAttr(out.Items[0], "version"), nil
}

// commit writes the snapshot's changes. It is a no-op for read-only
// transactions.
func (s *Store) commit(ctx context.Context, snap *snapshot) error {
	puts, deletes := snap.changed()
	if len(puts) == 0 && len(deletes) == 0 {
		return nil
	}
	if n := len(puts) + len(deletes) + 1; n > s.config.MaxTransactItems {
		return fmt.Errorf("%w: %d items, limit is %d", ErrTransactionTooLarge, n, s.config.MaxTransactItems)
	}

	now := time.Now().UTC()
	items := make([]types.TransactWriteItem, 0, len(puts)+len(deletes)+1)

	meta, err := attributevalue.MarshalMap(metaItem{
		PK:        scopekey.PartitionKey(snap.scope),
		SK:        scopekey.MetaSortKey,
		Version:   snap.meta + 1,
		UpdatedAt: now,
	})
	if err != nil {
		return fmt.Errorf("failed to encode meta: %w", err)
	}
	metaPut := &types.Put{
		TableName:           aws.String(s.config.Table),
		Item:                meta,
		ConditionExpression: aws.String("attribute_not_exists(pk)"),
	}
	if snap.meta > 0 {
		metaPut.ConditionExpression = aws.String("#version = :version")
		metaPut.ExpressionAttributeNames = versionNames()
		metaPut.ExpressionAttributeValues = versionValues(snap.meta)
	}
	items = append(items, types.TransactWriteItem{Put: metaPut})

	for _, id := range puts {
		raw, err := attributevalue.MarshalMap(toItem(snap.rows[id]))
		if err != nil {
			return fmt.Errorf("failed to encode node %s: %w", id, err)
		}
		put := &types.Put{
			TableName:           aws.String(s.config.Table),
			Item:                raw,
			ConditionExpression: aws.String("attribute_not_exists(pk)"),
		}
		if v, ok := snap.loaded[id]; ok {
			put.ConditionExpression = aws.String("#version = :version")
			put.ExpressionAttributeNames = versionNames()
			put.ExpressionAttributeValues = versionValues(v)
		}
		items = append(items, types.TransactWriteItem{Put: put})
	}

	for _, id := range deletes {
		items = append(items, types.TransactWriteItem{Delete: &types.Delete{
			TableName: aws.String(s.config.Table),
			Key: map[string]types.AttributeValue{
				"pk": &types.AttributeValueMemberS{Value: scopekey.PartitionKey(snap.scope)},
				"sk": &types.AttributeValueMemberS{Value: scopekey.NodeSortKey(id)},
			},
			ConditionExpression:       aws.String("#version = :version"),
			ExpressionAttributeNames:  versionNames(),
			ExpressionAttributeValues: versionValues(snap.loaded[id]),
		}})
	}

	_, err = s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	return mapCommitError(err)
}

// mapCommitError maps a lost commit race to nestedset.ErrConcurrentModification.
func mapCommitError(err error) error {
	if err == nil {
		return nil
	}

	var txErr *types.TransactionCanceledException
	if errors.As(err, &txErr) {
		for _, reason := range txErr.CancellationReasons {
			if reason.Code == nil {
				continue
			}
			switch *reason.Code {
			case "ConditionalCheckFailed", "TransactionConflict":
				return fmt.Errorf("%w: %s", nestedset.ErrConcurrentModification, *reason.Code)
			}
		}
	}
	var conflictErr *types.TransactionConflictException
	if errors.As(err, &conflictErr) {
		return fmt.Errorf("%w: %v", nestedset.ErrConcurrentModification, err)
	}

	return fmt.Errorf("failed to commit transaction: %w", err)
}

func versionNames() map[string]string {
	return map[string]string{"#version": "version"}
}

func versionValues(v int64) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		":version": &types.AttributeValueMemberN{Value: strconv.FormatInt(v, 10)},
	}
}

func numberAttr(raw map[string]types.AttributeValue, name string) int64 {
	v, ok := raw[name].(*types.AttributeValueMemberN)
	if !ok {
		return 0
	}
	n, _ := strconv.ParseInt(v.Value, 10, 64)
	return n
}
