package dynamostore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeDynamo is an in-memory table that understands the key conditions and
// write conditions the Store issues.
type fakeDynamo struct {
	mu    sync.Mutex
	items map[string]map[string]map[string]types.AttributeValue

	// pageSize limits the items per Query page. 0 means unlimited.
	pageSize int

	queries  int
	commits  int
	txInputs []*dynamodb.TransactWriteItemsInput

	// beforeCommit runs before each TransactWriteItems is evaluated.
	beforeCommit func(f *fakeDynamo)
	// beforeMetaQuery runs before each single-item meta Query.
	beforeMetaQuery func(f *fakeDynamo)
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: make(map[string]map[string]map[string]types.AttributeValue)}
}

func strAttr(raw map[string]types.AttributeValue, name string) string {
	v, ok := raw[name].(*types.AttributeValueMemberS)
	if !ok {
		return ""
	}
	return v.Value
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	if in.KeyConditionExpression == nil {
		return nil, errors.New("missing key condition")
	}
	expr := *in.KeyConditionExpression
	if expr == "pk = :pk AND sk = :sk" && f.beforeMetaQuery != nil {
		f.beforeMetaQuery(f)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++

	pk := strAttr(in.ExpressionAttributeValues, ":pk")
	part := f.items[pk]

	switch expr {
	case "pk = :pk AND sk = :sk":
		sk := strAttr(in.ExpressionAttributeValues, ":sk")
		out := &dynamodb.QueryOutput{}
		if it, ok := part[sk]; ok {
			out.Items = append(out.Items, it)
		}
		return out, nil
	case "pk = :pk":
	default:
		return nil, fmt.Errorf("unsupported key condition %q", expr)
	}

	keys := make([]string, 0, len(part))
	for sk := range part {
		keys = append(keys, sk)
	}
	slices.Sort(keys)

	start := ""
	if in.ExclusiveStartKey != nil {
		start = strAttr(in.ExclusiveStartKey, "sk")
	}
	out := &dynamodb.QueryOutput{}
	for _, sk := range keys {
		if start != "" && sk <= start {
			continue
		}
		out.Items = append(out.Items, part[sk])
		if f.pageSize > 0 && len(out.Items) == f.pageSize {
			out.LastEvaluatedKey = map[string]types.AttributeValue{
				"pk": &types.AttributeValueMemberS{Value: pk},
				"sk": &types.AttributeValueMemberS{Value: sk},
			}
			break
		}
	}
	return out, nil
}

func (f *fakeDynamo) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	if f.beforeCommit != nil {
		f.beforeCommit(f)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits++
	f.txInputs = append(f.txInputs, in)

	if len(in.TransactItems) > maxTransactItems {
		return nil, errors.New("ValidationException: too many items")
	}

	reasons := make([]types.CancellationReason, len(in.TransactItems))
	failed := false
	for i, ti := range in.TransactItems {
		var key map[string]types.AttributeValue
		var cond *string
		var values map[string]types.AttributeValue
		switch {
		case ti.Put != nil:
			key, cond, values = ti.Put.Item, ti.Put.ConditionExpression, ti.Put.ExpressionAttributeValues
		case ti.Delete != nil:
			key, cond, values = ti.Delete.Key, ti.Delete.ConditionExpression, ti.Delete.ExpressionAttributeValues
		default:
			return nil, errors.New("unsupported transact item")
		}
		current := f.items[strAttr(key, "pk")][strAttr(key, "sk")]

		code := "None"
		if cond != nil && !f.holds(*cond, current, values) {
			code = "ConditionalCheckFailed"
			failed = true
		}
		reasons[i] = types.CancellationReason{Code: aws.String(code)}
	}
	if failed {
		return nil, &types.TransactionCanceledException{
			Message:             aws.String("Transaction cancelled"),
			CancellationReasons: reasons,
		}
	}

	for _, ti := range in.TransactItems {
		if ti.Put != nil {
			pk, sk := strAttr(ti.Put.Item, "pk"), strAttr(ti.Put.Item, "sk")
			if f.items[pk] == nil {
				f.items[pk] = make(map[string]map[string]types.AttributeValue)
			}
			f.items[pk][sk] = ti.Put.Item
			continue
		}
		delete(f.items[strAttr(ti.Delete.Key, "pk")], strAttr(ti.Delete.Key, "sk"))
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func (f *fakeDynamo) holds(cond string, current, values map[string]types.AttributeValue) bool {
	switch cond {
	case "attribute_not_exists(pk)":
		return current == nil
	case "#version = :version":
		if current == nil {
			return false
		}
		return numberAttr(current, "version") == numberAttr(values, ":version")
	}
	return false
}

// bumpMeta simulates a commit by another writer on scope.
func (f *fakeDynamo) bumpMeta(pk string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	meta := f.items[pk]["#meta"]
	if meta == nil {
		return
	}
	next := make(map[string]types.AttributeValue, len(meta))
	for k, v := range meta {
		next[k] = v
	}
	next["version"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(numberAttr(meta, "version")+1, 10)}
	f.items[pk]["#meta"] = next
}

func (f *fakeDynamo) count(pk string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items[pk])
}
