package syncqueue_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/civicvault/syncd/internal/applier"
	"github.com/civicvault/syncd/internal/blobstore"
	"github.com/civicvault/syncd/internal/database"
	"github.com/civicvault/syncd/internal/model"
	"github.com/civicvault/syncd/internal/syncerr"
	"github.com/civicvault/syncd/internal/syncqueue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

// scripted is an applier driven by the test.
type scripted struct {
	apply func(op applier.Operation) (any, error)
}

func (p *scripted) Validate(applier.Operation) error {
	return nil
}

func (p *scripted) Apply(op applier.Operation) (any, error) {
	return p.apply(op)
}

type env struct {
	db       database.Client
	registry *applier.Registry
	clock    *clock
	queue    *syncqueue.Queue
}

func setup(t *testing.T, opts ...syncqueue.Option) *env {
	c := &clock{t: time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)}

	db, err := database.StormOpen(filepath.Join(t.TempDir(), "syncd.db"), database.CodecMsgpack, database.WithClock(c.Now))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	registry := applier.Default(db, blobstore.New(db, true))
	opts = append([]syncqueue.Option{syncqueue.WithClock(c.Now)}, opts...)

	return &env{
		db:       db,
		registry: registry,
		clock:    c,
		queue:    syncqueue.New(db, registry, opts...),
	}
}

func (e *env) enqueue(t *testing.T, userID, operation, entity, entityID, data string) *model.SyncQueueItem {
	item, err := e.queue.Enqueue(userID, syncqueue.EnqueueParams{
		Operation: operation,
		Entity:    entity,
		EntityID:  entityID,
		Data:      []byte(data),
	})
	require.NoError(t, err)
	return item
}

func TestEnqueue(t *testing.T) {
	e := setup(t)

	item := e.enqueue(t, "u1", model.OperationCreate, model.EntityDevice, "", `{"name":"phone"}`)
	assert.NotEmpty(t, item.ID)
	assert.Equal(t, model.StatusPending, item.Status)
	assert.Zero(t, item.RetryCount)
	assert.NotNil(t, item.CreatedAt)

	_, err := e.queue.Enqueue("u1", syncqueue.EnqueueParams{Operation: model.OperationCreate, Entity: "report"})
	assert.True(t, syncerr.Is(err, syncerr.TagValidation))

	_, err = e.queue.Enqueue("u1", syncqueue.EnqueueParams{Operation: "PATCH", Entity: model.EntityDevice})
	assert.True(t, syncerr.Is(err, syncerr.TagValidation))

	_, err = e.queue.Enqueue("", syncqueue.EnqueueParams{Operation: model.OperationCreate, Entity: model.EntityDevice, Data: []byte(`{"name":"phone"}`)})
	assert.True(t, syncerr.Is(err, syncerr.TagValidation))

	items, err := e.queue.ListPending("u1")
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestListPendingOrder(t *testing.T) {
	e := setup(t)

	var ids []string
	for i := 0; i < 20; i++ {
		item := e.enqueue(t, "u1", model.OperationCreate, model.EntityDevice, "", fmt.Sprintf(`{"name":"device-%d"}`, i))
		ids = append(ids, item.ID)
	}
	e.enqueue(t, "u2", model.OperationCreate, model.EntityDevice, "", `{"name":"other"}`)

	items, err := e.queue.ListPending("u1")
	require.NoError(t, err)
	require.Len(t, items, len(ids))
	for i, item := range items {
		assert.Equal(t, ids[i], item.ID)
	}
}

func TestDrain(t *testing.T) {
	e := setup(t)

	e.enqueue(t, "u1", model.OperationCreate, model.EntityDevice, "", `{"name":"phone"}`)
	failing := e.enqueue(t, "u1", model.OperationUpdate, model.EntityDevice, "missing", `{"name":"tablet"}`)
	e.enqueue(t, "u1", model.OperationCreate, model.EntitySecurityLog, "", `{"event":"login"}`)

	result, err := e.queue.Drain(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, result.Processed)
	assert.Equal(t, 2, result.Successful)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Results, 3)
	assert.True(t, result.Results[0].Success)
	assert.False(t, result.Results[1].Success)
	assert.Equal(t, failing.ID, result.Results[1].ID)
	assert.Equal(t, "Device missing not found", result.Results[1].Error)
	assert.Equal(t, syncerr.TagNotFound, result.Results[1].ErrorKind)
	assert.True(t, result.Results[2].Success)

	items, err := e.queue.ListPending("u1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, model.StatusFailed, items[0].Status)
	assert.Equal(t, 1, items[0].RetryCount)
	assert.Equal(t, "Device missing not found", items[0].Error)
}

func TestDrainTwice(t *testing.T) {
	e := setup(t)

	e.enqueue(t, "u1", model.OperationCreate, model.EntityDevice, "", `{"name":"phone"}`)
	e.enqueue(t, "u1", model.OperationCreate, model.EntityBlob, "", `{"itemKey":"k1","ciphertext":"ct","nonce":"n","mac":"m","version":1}`)

	result, err := e.queue.Drain(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Successful)

	result, err = e.queue.Drain(context.Background(), "u1")
	require.NoError(t, err)
	assert.Zero(t, result.Processed)
	assert.Empty(t, result.Results)
}

func TestDrainBlobCreateThenUpdate(t *testing.T) {
	e := setup(t)

	e.enqueue(t, "u1", model.OperationCreate, model.EntityBlob, "", `{"namespace":"default","itemKey":"k1","ciphertext":"ct1","nonce":"n1","mac":"m1","version":"1"}`)
	e.enqueue(t, "u1", model.OperationUpdate, model.EntityBlob, "", `{"namespace":"default","itemKey":"k1","ciphertext":"ct2","nonce":"n2","mac":"m2","aad":"a2","version":"2"}`)

	result, err := e.queue.Drain(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Successful)

	blobs, err := e.db.FindBlobsByUserID("u1")
	require.NoError(t, err)
	require.Len(t, blobs, 1)
	assert.Equal(t, "ct2", blobs[0].Ciphertext)
	assert.Equal(t, "n2", blobs[0].Nonce)
	assert.Equal(t, "m2", blobs[0].MAC)
	assert.Equal(t, "a2", *blobs[0].AAD)
	assert.Equal(t, int64(2), blobs[0].Version)
}

func TestDrainUnsupportedSecurityLogOperation(t *testing.T) {
	e := setup(t)

	e.enqueue(t, "u1", model.OperationCreate, model.EntitySecurityLog, "", `{"event":"login"}`)
	_, err := e.queue.Drain(context.Background(), "u1")
	require.NoError(t, err)

	logs, err := e.db.FindSecurityLogsByUserID("u1")
	require.NoError(t, err)
	require.Len(t, logs, 1)

	item := e.enqueue(t, "u1", model.OperationDelete, model.EntitySecurityLog, logs[0].ID, "")

	for attempt := 1; attempt <= 2; attempt++ {
		result, err := e.queue.Drain(context.Background(), "u1")
		require.NoError(t, err)
		assert.Equal(t, 1, result.Processed)
		assert.Equal(t, 1, result.Failed)
		assert.Equal(t, "Operation DELETE not supported for security logs", result.Results[0].Error)
		assert.Equal(t, syncerr.TagUnsupported, result.Results[0].ErrorKind)

		stored, err := e.db.FindSyncItem(item.ID, "u1")
		require.NoError(t, err)
		assert.Equal(t, model.StatusFailed, stored.Status)
		assert.Equal(t, attempt, stored.RetryCount)
	}

	logs, err = e.db.FindSecurityLogsByUserID("u1")
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestDrainRetriesFailedItem(t *testing.T) {
	e := setup(t)

	var calls int32
	e.registry.Register("scripted", &scripted{apply: func(applier.Operation) (any, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil, syncerr.Transient("backend unavailable")
		}
		return "ok", nil
	}})

	item := e.enqueue(t, "u1", model.OperationCreate, "scripted", "", "")

	result, err := e.queue.Drain(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, syncerr.TagTransient, result.Results[0].ErrorKind)

	result, err = e.queue.Drain(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Successful)
	assert.Equal(t, "ok", result.Results[0].Result)

	stored, err := e.db.FindSyncItem(item.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
	assert.Empty(t, stored.Error)
	assert.Empty(t, stored.ErrorKind)
}

func TestDrainSnapshot(t *testing.T) {
	e := setup(t)

	e.registry.Register("scripted", &scripted{apply: func(op applier.Operation) (any, error) {
		if op.Operation == model.OperationCreate {
			// Enqueued by a client while the drain runs.
			_, err := e.queue.Enqueue(op.UserID, syncqueue.EnqueueParams{Operation: model.OperationUpdate, Entity: "scripted"})
			return nil, err
		}
		return nil, nil
	}})
	e.enqueue(t, "u1", model.OperationCreate, "scripted", "", "")

	result, err := e.queue.Drain(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)

	items, err := e.queue.ListPending("u1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, model.OperationUpdate, items[0].Operation)

	result, err = e.queue.Drain(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
}

func TestDrainOrderWithinUser(t *testing.T) {
	e := setup(t)

	var mu sync.Mutex
	var seen []string
	e.registry.Register("scripted", &scripted{apply: func(op applier.Operation) (any, error) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, op.EntityID)
		return nil, nil
	}})

	var expected []string
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("e%d", i)
		expected = append(expected, id)
		e.enqueue(t, "u1", model.OperationUpdate, "scripted", id, "")
	}

	_, err := e.queue.Drain(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, expected, seen)
}

func TestConcurrentDrainsAreSerialized(t *testing.T) {
	e := setup(t)

	var inflight, max, applied int32
	e.registry.Register("scripted", &scripted{apply: func(applier.Operation) (any, error) {
		n := atomic.AddInt32(&inflight, 1)
		for {
			m := atomic.LoadInt32(&max)
			if n <= m || atomic.CompareAndSwapInt32(&max, m, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&applied, 1)
		atomic.AddInt32(&inflight, -1)
		return nil, nil
	}})

	for i := 0; i < 5; i++ {
		e.enqueue(t, "u1", model.OperationCreate, "scripted", "", "")
	}

	var wg sync.WaitGroup
	var processed int32
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := e.queue.Drain(context.Background(), "u1")
			assert.NoError(t, err)
			atomic.AddInt32(&processed, int32(result.Processed))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), max)
	assert.Equal(t, int32(5), applied)
	assert.Equal(t, int32(5), processed)
}

func TestDrainResumesStaleSyncingItem(t *testing.T) {
	e := setup(t)

	item := e.enqueue(t, "u1", model.OperationCreate, model.EntityDevice, "", `{"name":"phone"}`)

	// Left by an interrupted drain.
	item.Status = model.StatusSyncing
	require.NoError(t, e.db.TransitionSyncItem(item))

	result, err := e.queue.Drain(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Successful)

	stored, err := e.db.FindSyncItem(item.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, stored.Status)
}

func TestDrainCancelled(t *testing.T) {
	e := setup(t)

	e.enqueue(t, "u1", model.OperationCreate, model.EntityDevice, "", `{"name":"phone"}`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := e.queue.Drain(ctx, "u1")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, result.Processed)

	items, err := e.queue.ListPending("u1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, model.StatusPending, items[0].Status)
}

func TestDrainStorageFailure(t *testing.T) {
	e := setup(t)

	e.enqueue(t, "u1", model.OperationCreate, model.EntityDevice, "", `{"name":"phone"}`)
	require.NoError(t, e.db.Close())

	_, err := e.queue.Drain(context.Background(), "u1")
	assert.Error(t, err)
}

func TestDrainWithLimitedPolicy(t *testing.T) {
	e := setup(t, syncqueue.WithPolicy(syncqueue.LimitedPolicy{MaxAttempts: 2}))

	e.enqueue(t, "u1", model.OperationDelete, model.EntitySecurityLog, "log-1", "")

	for i := 0; i < 2; i++ {
		result, err := e.queue.Drain(context.Background(), "u1")
		require.NoError(t, err)
		assert.Equal(t, 1, result.Failed)
	}

	result, err := e.queue.Drain(context.Background(), "u1")
	require.NoError(t, err)
	assert.Zero(t, result.Processed)
	assert.Equal(t, 1, result.Deferred)

	items, err := e.queue.ListPending("u1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].RetryCount)
}

func TestCleanup(t *testing.T) {
	e := setup(t)
	now := e.clock.Now()

	e.clock.Set(now.Add(-8 * 24 * time.Hour))
	old := e.enqueue(t, "u1", model.OperationCreate, model.EntityDevice, "", `{"name":"old"}`)
	oldFailed := e.enqueue(t, "u2", model.OperationUpdate, model.EntityDevice, "missing", `{"name":"old"}`)
	_, err := e.queue.Drain(context.Background(), "u1")
	require.NoError(t, err)
	_, err = e.queue.Drain(context.Background(), "u2")
	require.NoError(t, err)

	e.clock.Set(now.Add(-time.Hour))
	recent := e.enqueue(t, "u2", model.OperationCreate, model.EntityDevice, "", `{"name":"recent"}`)
	_, err = e.queue.Drain(context.Background(), "u2")
	require.NoError(t, err)

	e.clock.Set(now)
	n, err := e.queue.Cleanup()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = e.db.FindSyncItem(old.ID, "u1")
	assert.True(t, e.db.IsNotFound(err))
	_, err = e.db.FindSyncItem(recent.ID, "u2")
	assert.NoError(t, err)
	_, err = e.db.FindSyncItem(oldFailed.ID, "u2")
	assert.NoError(t, err)

	n, err = e.queue.Cleanup()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStatus(t *testing.T) {
	e := setup(t)

	status, err := e.queue.Status("u1")
	require.NoError(t, err)
	assert.Equal(t, syncqueue.StatusCounts{}, status.Queue)
	assert.Empty(t, status.Devices)
	assert.Nil(t, status.LastSync)

	e.enqueue(t, "u1", model.OperationCreate, model.EntityDevice, "", `{"name":"phone","syncStatus":"idle","isOnline":true}`)
	e.enqueue(t, "u1", model.OperationDelete, model.EntitySecurityLog, "log-1", "")
	_, err = e.queue.Drain(context.Background(), "u1")
	require.NoError(t, err)
	e.enqueue(t, "u1", model.OperationCreate, model.EntityDevice, "", `{"name":"tablet"}`)

	status, err = e.queue.Status("u1")
	require.NoError(t, err)
	assert.Equal(t, syncqueue.StatusCounts{Pending: 1, Completed: 1, Failed: 1}, status.Queue)
	require.Len(t, status.Devices, 1)
	assert.Equal(t, "phone", status.Devices[0].Name)
	assert.Equal(t, "idle", status.Devices[0].SyncStatus)
	assert.True(t, status.Devices[0].IsOnline)
	require.NotNil(t, status.LastSync)
	assert.True(t, status.LastSync.Equal(e.clock.Now()))
}

func TestDrainAll(t *testing.T) {
	e := setup(t)

	e.enqueue(t, "u1", model.OperationCreate, model.EntityDevice, "", `{"name":"phone"}`)
	e.enqueue(t, "u2", model.OperationCreate, model.EntityDevice, "", `{"name":"tablet"}`)

	require.NoError(t, e.queue.DrainAll(context.Background()))

	for _, u := range []string{"u1", "u2"} {
		items, err := e.queue.ListPending(u)
		require.NoError(t, err)
		assert.Empty(t, items)
	}
}

// brokenStore fails to list the sync items of one user.
type brokenStore struct {
	database.Client
	userID string
}

func (s *brokenStore) FindSyncItemsByStatus(userID string, statuses ...string) ([]*model.SyncQueueItem, error) {
	if userID == s.userID {
		return nil, fmt.Errorf("disk failure")
	}
	return s.Client.FindSyncItemsByStatus(userID, statuses...)
}

func TestDrainAllSkipsFailingUser(t *testing.T) {
	e := setup(t)

	e.enqueue(t, "u1", model.OperationCreate, model.EntityDevice, "", `{"name":"phone"}`)
	e.enqueue(t, "u2", model.OperationCreate, model.EntityDevice, "", `{"name":"tablet"}`)

	queue := syncqueue.New(&brokenStore{Client: e.db, userID: "u1"}, e.registry, syncqueue.WithClock(e.clock.Now))
	err := queue.DrainAll(context.Background())
	require.Error(t, err)
	assert.Equal(t, "could not drain 1 of 2 users", err.Error())

	items, err := e.queue.ListPending("u1")
	require.NoError(t, err)
	assert.Len(t, items, 1)

	items, err = e.queue.ListPending("u2")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestRun(t *testing.T) {
	e := setup(t)

	e.enqueue(t, "u1", model.OperationCreate, model.EntityDevice, "", `{"name":"phone"}`)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.queue.Run(ctx, 5*time.Millisecond, 0)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		items, err := e.queue.ListPending("u1")
		return err == nil && len(items) == 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}
