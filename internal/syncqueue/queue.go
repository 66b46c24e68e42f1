// Package syncqueue implements the durable per-user queue of offline mutations
// and the reconciliation loop replaying them through the appliers.
package syncqueue

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/civicvault/syncd/internal/applier"
	"github.com/civicvault/syncd/internal/database"
	"github.com/civicvault/syncd/internal/model"
	"github.com/civicvault/syncd/internal/syncerr"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// DefaultRetention is the age after which completed items are purged.
const DefaultRetention = 7 * 24 * time.Hour

type (
	// A Queue stores and drains the users' pending operations.
	Queue struct {
		db        database.Client
		appliers  *applier.Registry
		policy    RetryPolicy
		retention time.Duration
		now       func() time.Time
		locks     *keyedMutex
		cleanups  singleflight.Group
	}

	// An Option configures a Queue.
	Option func(*Queue)

	// EnqueueParams describes one mutation submitted by a client.
	EnqueueParams struct {
		Operation string          `json:"operation"`
		Entity    string          `json:"entity"`
		EntityID  string          `json:"entityId"`
		Data      json.RawMessage `json:"data"`
	}

	// An ItemResult is the outcome of one item during a drain.
	ItemResult struct {
		ID        string `json:"id"`
		Success   bool   `json:"success"`
		Result    any    `json:"result,omitempty"`
		Error     string `json:"error,omitempty"`
		ErrorKind string `json:"errorKind,omitempty"`
	}

	// A SyncResult aggregates the outcome of a drain.
	SyncResult struct {
		Processed  int           `json:"processed"`
		Successful int           `json:"successful"`
		Failed     int           `json:"failed"`
		Deferred   int           `json:"deferred"`
		Results    []*ItemResult `json:"results"`
	}
)

// WithPolicy sets the policy deciding whether a failed item is retried.
func WithPolicy(p RetryPolicy) Option {
	return func(q *Queue) {
		q.policy = p
	}
}

// WithRetention sets the age after which completed items are purged.
func WithRetention(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.retention = d
		}
	}
}

// WithClock overrides the queue clock.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		q.now = now
	}
}

// New returns a new Queue.
func New(db database.Client, appliers *applier.Registry, opts ...Option) *Queue {
	q := &Queue{
		db:        db,
		appliers:  appliers,
		policy:    Always,
		retention: DefaultRetention,
		now:       time.Now,
		locks:     newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue validates and stores a new pending item.
// No deduplication is made, callers embed an idempotency key in the data when needed.
func (q *Queue) Enqueue(userID string, params EnqueueParams) (*model.SyncQueueItem, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, syncerr.Validation("User is required.")
	}

	item := &model.SyncQueueItem{
		UserID:    userID,
		Operation: params.Operation,
		Entity:    params.Entity,
		EntityID:  params.EntityID,
		Status:    model.StatusPending,
	}
	if len(params.Data) > 0 && string(params.Data) != "null" {
		item.Data = params.Data
	}

	if err := q.appliers.Validate(item.Entity, operation(item)); err != nil {
		return nil, err
	}

	if err := q.db.Save(item); err != nil {
		return nil, errors.Wrap(err, "could not enqueue item")
	}
	return item, nil
}

// ListPending returns the pending and failed items of the user in submission order.
func (q *Queue) ListPending(userID string) ([]*model.SyncQueueItem, error) {
	items, err := q.db.FindSyncItemsByStatus(userID, model.StatusPending, model.StatusFailed)
	return items, errors.Wrap(err, "could not list pending items")
}

// Drain applies the pending items of the user strictly in submission order.
//
// One item's failure never aborts the batch, it is recorded on the item.
// Drains of the same user are serialized so items left syncing by an interrupted drain are resumed.
// Only a storage failure while recording an outcome, or ctx cancellation, stops the batch early.
func (q *Queue) Drain(ctx context.Context, userID string) (*SyncResult, error) {
	unlock := q.locks.Lock(userID)
	defer unlock()

	items, err := q.db.FindSyncItemsByStatus(userID, model.StatusPending, model.StatusFailed, model.StatusSyncing)
	if err != nil {
		return nil, errors.Wrap(err, "could not list pending items")
	}

	result := &SyncResult{
		Results: make([]*ItemResult, 0, len(items)),
	}
	for _, item := range items {
		if err = ctx.Err(); err != nil {
			return result, err
		}

		if !q.policy.Allow(item, q.now()) {
			result.Deferred++
			continue
		}

		r, err := q.process(item)
		if err != nil {
			if q.db.IsNotFound(err) {
				// Purged meanwhile.
				continue
			}
			return result, err
		}

		result.Processed++
		if r.Success {
			result.Successful++
		} else {
			result.Failed++
		}
		result.Results = append(result.Results, r)
	}

	return result, nil
}

func (q *Queue) process(item *model.SyncQueueItem) (*ItemResult, error) {
	item.Status = model.StatusSyncing
	item.Error = ""
	item.ErrorKind = ""
	if err := q.db.TransitionSyncItem(item); err != nil {
		return nil, errors.Wrap(err, "could not mark item as syncing")
	}

	r := &ItemResult{ID: item.ID}
	v, err := q.appliers.Apply(item.Entity, operation(item))
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"item_id":     item.ID,
			"user_id":     item.UserID,
			"entity":      item.Entity,
			"operation":   item.Operation,
			"retry_count": item.RetryCount,
		}).Error("sync failed")

		item.Status = model.StatusFailed
		item.RetryCount++
		item.Error = err.Error()
		item.ErrorKind = syncerr.KindOf(err)

		r.Error = item.Error
		r.ErrorKind = item.ErrorKind
	} else {
		item.Status = model.StatusCompleted
		r.Success = true
		r.Result = v
	}

	if err = q.db.TransitionSyncItem(item); err != nil {
		return nil, errors.Wrap(err, "could not record item outcome")
	}
	return r, nil
}

// Cleanup removes completed items older than the retention, across all users.
// Concurrent calls share the same sweep.
func (q *Queue) Cleanup() (int, error) {
	v, err, _ := q.cleanups.Do("cleanup", func() (any, error) {
		return q.db.DeleteSyncItemsBefore(model.StatusCompleted, q.now().Add(-q.retention))
	})
	if err != nil {
		return 0, errors.Wrap(err, "could not cleanup sync queue")
	}

	n := v.(int)
	logrus.WithField("count", n).Info("cleaned up completed sync items")
	return n, nil
}

func operation(item *model.SyncQueueItem) applier.Operation {
	return applier.Operation{
		UserID:    item.UserID,
		Operation: item.Operation,
		EntityID:  item.EntityID,
		Data:      item.Data,
	}
}
