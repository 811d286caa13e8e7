// Package stream provides DynamoDB Streams handlers that cascade soft deletes
// and restores to descendants.
//
// It pairs with trees configured with nestedset.Config.SoftDeleteNodeOnly: the
// request path marks only the node, and the handler marks its subtree when the
// change arrives on the table's stream.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"golang.org/x/sync/errgroup"

	"github.com/jacentio/arbor/internal/scopekey"
	"github.com/jacentio/arbor/nestedset"
)

// Handler processes DynamoDB stream events for cascading soft deletes.
type Handler struct {
	store  nestedset.Store
	logger *slog.Logger
}

// NewHandler creates a new stream handler.
func NewHandler(s nestedset.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:  s,
		logger: logger,
	}
}

// change is a soft delete state transition of one node.
type change struct {
	eventID string
	scope   string
	id      string
	// deleted is true for a soft delete, false for a restore.
	deleted bool
	// since is the deletion time a restore revives descendants from.
	since time.Time
}

// HandleCascade processes DynamoDB stream events to propagate soft deletes and
// restores to descendants. Scopes are processed concurrently, the records of
// one scope in stream order. This function is designed to be used as an AWS
// Lambda handler.
func (h *Handler) HandleCascade(ctx context.Context, event events.DynamoDBEvent) error {
	var order []string
	byScope := make(map[string][]change)
	for i := range event.Records {
		c, ok, err := parseRecord(&event.Records[i])
		if err != nil {
			h.logger.Error("failed to parse record",
				"eventID", event.Records[i].EventID,
				"error", err,
			)
			return err
		}
		if !ok {
			continue
		}
		if _, seen := byScope[c.scope]; !seen {
			order = append(order, c.scope)
		}
		byScope[c.scope] = append(byScope[c.scope], c)
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, scope := range order {
		changes := byScope[scope]
		g.Go(func() error {
			tree := nestedset.New(h.store, nestedset.Config{
				Scope:              scope,
				SoftDeleteNodeOnly: true,
				Logger:             h.logger,
			})
			for _, c := range changes {
				if err := h.apply(ctx, tree, c); err != nil {
					h.logger.Error("failed to process record",
						"eventID", c.eventID,
						"scope", c.scope,
						"node", c.id,
						"error", err,
					)
					return err // Will retry, eventually DLQ
				}
			}
			return nil
		})
	}
	return g.Wait()
}

func (h *Handler) apply(ctx context.Context, tree *nestedset.Tree, c change) error {
	var (
		affected int64
		err      error
		op       = "restore"
	)
	if c.deleted {
		op = "soft_delete"
		affected, err = tree.CascadeSoftDelete(ctx, c.id)
	} else {
		affected, err = tree.CascadeRestore(ctx, c.id, c.since)
	}
	if errors.Is(err, nestedset.ErrNotFound) {
		// Hard deleted since the change was recorded; nothing left to cascade.
		h.logger.Info("skipping cascade of missing node", "scope", c.scope, "node", c.id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("cascade %s of %s: %w", op, c.id, err)
	}

	h.logger.Info("cascade completed",
		"op", op,
		"scope", c.scope,
		"node", c.id,
		"descendants", affected,
	)
	return nil
}

// parseRecord extracts the soft delete transition of a stream record. It
// reports false for records that need no cascade.
func parseRecord(record *events.DynamoDBEventRecord) (change, bool, error) {
	// Only MODIFY events can toggle deleted_at
	if record.EventName != "MODIFY" {
		return change{}, false, nil
	}

	keys := record.Change.Keys
	if len(keys) == 0 {
		keys = record.Change.NewImage
	}
	scope, ok := scopekey.ScopeOf(getStringAttr(keys, "pk"))
	if !ok {
		return change{}, false, nil
	}
	// The meta item and foreign items have no node sort key.
	id, ok := scopekey.NodeID(getStringAttr(keys, "sk"))
	if !ok {
		return change{}, false, nil
	}

	oldDeleted, err := getTimeAttr(record.Change.OldImage, "deleted_at")
	if err != nil {
		return change{}, false, err
	}
	newDeleted, err := getTimeAttr(record.Change.NewImage, "deleted_at")
	if err != nil {
		return change{}, false, err
	}

	c := change{eventID: record.EventID, scope: scope, id: id}
	switch {
	case oldDeleted == nil && newDeleted != nil:
		c.deleted = true
	case oldDeleted != nil && newDeleted == nil:
		c.since = *oldDeleted
	default:
		return change{}, false, nil
	}
	return c, true, nil
}

// getStringAttr extracts a string attribute from a DynamoDB stream image.
func getStringAttr(image map[string]events.DynamoDBAttributeValue, key string) string {
	if v, ok := image[key]; ok && v.DataType() == events.DataTypeString {
		return v.String()
	}
	return ""
}

// getTimeAttr extracts a timestamp written by the attributevalue encoder.
// Absent and null attributes yield nil.
func getTimeAttr(image map[string]events.DynamoDBAttributeValue, key string) (*time.Time, error) {
	v, ok := image[key]
	if !ok || v.DataType() != events.DataTypeString {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v.String())
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", key, v.String(), err)
	}
	return &t, nil
}
