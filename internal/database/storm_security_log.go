package database

import (
	"github.com/asdine/storm/v3/q"
	"github.com/civicvault/syncd/internal/model"
	"github.com/pkg/errors"
)

// FindSecurityLogByIdempotencyKey returns the user's log created with the given key.
func (c *strm) FindSecurityLogByIdempotencyKey(userID, key string) (*model.SecurityLog, error) {
	var log model.SecurityLog
	err := c.db.Select(q.Eq("UserID", userID), q.Eq("IdempotencyKey", key)).First(&log)
	if err != nil {
		return nil, errors.Wrap(err, "could not find security log by idempotency key")
	}
	return &log, nil
}

// FindSecurityLogsByUserID returns all the logs of the user in creation order.
func (c *strm) FindSecurityLogsByUserID(userID string) ([]*model.SecurityLog, error) {
	logs := make([]*model.SecurityLog, 0)
	err := c.db.Select(q.Eq("UserID", userID)).OrderBy("CreatedAt").Find(&logs)
	if err != nil && !c.IsNotFound(err) {
		return nil, errors.Wrap(err, "could not find security logs")
	}
	return logs, nil
}
