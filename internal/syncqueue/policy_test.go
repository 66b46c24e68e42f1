package syncqueue_test

import (
	"testing"
	"time"

	"github.com/civicvault/syncd/internal/model"
	"github.com/civicvault/syncd/internal/syncerr"
	"github.com/civicvault/syncd/internal/syncqueue"
	"github.com/stretchr/testify/assert"
)

func TestLimitedPolicy(t *testing.T) {
	now := time.Now()
	updated := now.Add(-90 * time.Second)
	failed := func(retries int, kind string) *model.SyncQueueItem {
		return &model.SyncQueueItem{
			Base:       model.Base{UpdatedAt: &updated},
			Status:     model.StatusFailed,
			RetryCount: retries,
			ErrorKind:  kind,
		}
	}

	p := syncqueue.LimitedPolicy{MaxAttempts: 3}
	assert.True(t, p.Allow(&model.SyncQueueItem{Status: model.StatusPending}, now))
	assert.True(t, p.Allow(failed(2, syncerr.TagTransient), now))
	assert.False(t, p.Allow(failed(3, syncerr.TagTransient), now))

	p = syncqueue.LimitedPolicy{SkipPermanent: true}
	assert.False(t, p.Allow(failed(1, syncerr.TagUnsupported), now))
	assert.True(t, p.Allow(failed(1, syncerr.TagTransient), now))

	p = syncqueue.LimitedPolicy{Backoff: time.Minute}
	assert.True(t, p.Allow(failed(1, syncerr.TagTransient), now))  // 1m elapsed
	assert.False(t, p.Allow(failed(2, syncerr.TagTransient), now)) // 2m required
	assert.True(t, p.Allow(failed(2, syncerr.TagTransient), now.Add(time.Minute)))
	assert.False(t, p.Allow(failed(40, syncerr.TagTransient), now.Add(22*time.Hour)))

	assert.True(t, syncqueue.Always.Allow(failed(100, syncerr.TagUnsupported), now))
}
