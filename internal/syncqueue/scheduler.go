package syncqueue

import (
	"context"
	"time"

	"github.com/civicvault/syncd/internal/model"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DrainAll drains every user having pending, failed or stale syncing items.
// A user whose drain fails is logged and skipped.
func (q *Queue) DrainAll(ctx context.Context) error {
	users, err := q.db.FindUserIDsWithSyncItems(model.StatusPending, model.StatusFailed, model.StatusSyncing)
	if err != nil {
		return errors.Wrap(err, "could not find users to drain")
	}

	var failed int
	for _, userID := range users {
		result, err := q.Drain(ctx, userID)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failed++
			logrus.WithError(err).WithField("user_id", userID).Error("could not drain sync queue")
			continue
		}

		logrus.WithFields(logrus.Fields{
			"user_id":    userID,
			"processed":  result.Processed,
			"successful": result.Successful,
			"failed":     result.Failed,
			"deferred":   result.Deferred,
		}).Debug("drained sync queue")
	}

	if failed > 0 {
		return errors.Errorf("could not drain %d of %d users", failed, len(users))
	}
	return nil
}

// Run drains and cleans the queue periodically until ctx is done.
// A zero interval disables the matching task.
func (q *Queue) Run(ctx context.Context, drainInterval, cleanupInterval time.Duration) {
	drain := ticker(drainInterval)
	defer drain.Stop()
	cleanup := ticker(cleanupInterval)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-drain.C:
			logrus.Debug("scheduled drain")
			if err := q.DrainAll(ctx); err != nil && ctx.Err() == nil {
				logrus.WithError(err).Error("scheduled drain failed")
			}
		case <-cleanup.C:
			logrus.Debug("scheduled cleanup")
			if _, err := q.Cleanup(); err != nil {
				logrus.WithError(err).Error("scheduled cleanup failed")
			}
		}
	}
}

type tick struct {
	C <-chan time.Time
	t *time.Ticker
}

// ticker returns a tick never firing for a zero interval.
func ticker(d time.Duration) *tick {
	if d <= 0 {
		return &tick{}
	}
	t := time.NewTicker(d)
	return &tick{C: t.C, t: t}
}

func (t *tick) Stop() {
	if t.t != nil {
		t.t.Stop()
	}
}
