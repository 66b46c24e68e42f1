package syncqueue

import (
	"time"

	"github.com/civicvault/syncd/internal/model"
	"github.com/civicvault/syncd/internal/syncerr"
)

const maxBackoff = 24 * time.Hour

type (
	// A RetryPolicy decides whether an item is attempted during a drain.
	// Items not allowed keep their status and are attempted by a later drain.
	RetryPolicy interface {
		Allow(item *model.SyncQueueItem, now time.Time) bool
	}

	// RetryPolicyFunc is an adapter to use ordinary functions as RetryPolicy.
	RetryPolicyFunc func(item *model.SyncQueueItem, now time.Time) bool

	// A LimitedPolicy caps and paces the retries of failed items.
	LimitedPolicy struct {
		// MaxAttempts is the number of failures after which an item is no longer retried. 0 means unlimited.
		MaxAttempts int
		// Backoff is the delay before the first retry, doubled on each failure. 0 means no delay.
		Backoff time.Duration
		// SkipPermanent stops retrying items whose failure can not be fixed by a retry.
		SkipPermanent bool
	}
)

// Always retries every failed item on every drain.
var Always RetryPolicy = RetryPolicyFunc(func(*model.SyncQueueItem, time.Time) bool { return true })

// Allow implements RetryPolicy.
func (f RetryPolicyFunc) Allow(item *model.SyncQueueItem, now time.Time) bool {
	return f(item, now)
}

// Allow implements RetryPolicy.
func (p LimitedPolicy) Allow(item *model.SyncQueueItem, now time.Time) bool {
	if item.Status != model.StatusFailed {
		return true
	}

	if p.SkipPermanent && syncerr.PermanentTag(item.ErrorKind) {
		return false
	}

	if p.MaxAttempts > 0 && item.RetryCount >= p.MaxAttempts {
		return false
	}

	if p.Backoff > 0 && item.UpdatedAt != nil {
		return !now.Before(item.UpdatedAt.Add(p.delay(item.RetryCount)))
	}
	return true
}

func (p LimitedPolicy) delay(failures int) time.Duration {
	d := p.Backoff
	for i := 1; i < failures; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}
