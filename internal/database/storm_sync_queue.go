package database

import (
	"sort"
	"time"

	"github.com/asdine/storm/v3"
	"github.com/asdine/storm/v3/q"
	"github.com/civicvault/syncd/internal/model"
	"github.com/pkg/errors"
)

// FindSyncItem returns the queue item for the given id and user id.
func (c *strm) FindSyncItem(id, userID string) (*model.SyncQueueItem, error) {
	var item model.SyncQueueItem
	err := c.db.Select(q.Eq("ID", id), q.Eq("UserID", userID)).First(&item)
	if err != nil {
		return nil, errors.Wrap(err, "could not find sync item")
	}
	return &item, nil
}

// FindSyncItemsByStatus returns the user's queue items having one of the given statuses in submission order.
func (c *strm) FindSyncItemsByStatus(userID string, statuses ...string) ([]*model.SyncQueueItem, error) {
	items := make([]*model.SyncQueueItem, 0)
	err := c.db.Select(q.Eq("UserID", userID), q.In("Status", statuses)).
		OrderBy("CreatedAt", "Sequence").
		Find(&items)
	if err != nil && !c.IsNotFound(err) {
		return nil, errors.Wrap(err, "could not find sync items")
	}
	return items, nil
}

// CountSyncItemsByStatus returns the number of user's queue items with the given status.
func (c *strm) CountSyncItemsByStatus(userID, status string) (int, error) {
	n, err := c.db.Select(q.Eq("UserID", userID), q.Eq("Status", status)).Count(&model.SyncQueueItem{})
	if err != nil && !c.IsNotFound(err) {
		return 0, errors.Wrap(err, "could not count sync items")
	}
	return n, nil
}

// FindLastCompletedSyncItem returns the most recently completed queue item of the user.
func (c *strm) FindLastCompletedSyncItem(userID string) (*model.SyncQueueItem, error) {
	var item model.SyncQueueItem
	err := c.db.Select(q.Eq("UserID", userID), q.Eq("Status", model.StatusCompleted)).
		OrderBy("UpdatedAt").
		Reverse().
		First(&item)
	if err != nil {
		return nil, errors.Wrap(err, "could not find last completed sync item")
	}
	return &item, nil
}

// FindUserIDsWithSyncItems returns the owners of the queue items having one of the given statuses.
func (c *strm) FindUserIDsWithSyncItems(statuses ...string) ([]string, error) {
	items := make([]*model.SyncQueueItem, 0)
	err := c.db.Select(q.In("Status", statuses)).Find(&items)
	if err != nil && !c.IsNotFound(err) {
		return nil, errors.Wrap(err, "could not find sync items")
	}

	seen := map[string]bool{}
	users := make([]string, 0)
	for _, item := range items {
		if seen[item.UserID] {
			continue
		}
		seen[item.UserID] = true
		users = append(users, item.UserID)
	}
	sort.Strings(users)
	return users, nil
}

// TransitionSyncItem persists the new state of an existing queue item.
func (c *strm) TransitionSyncItem(item *model.SyncQueueItem) error {
	return c.tx(func(n storm.Node) error {
		var current model.SyncQueueItem
		if err := n.One("ID", item.ID, &current); err != nil {
			return errors.Wrap(err, "could not find sync item")
		}
		return errors.Wrap(c.save(n, item), "could not save sync item")
	})
}

// DeleteSyncItemsBefore removes the queue items with the given status last updated before t.
func (c *strm) DeleteSyncItemsBefore(status string, t time.Time) (int, error) {
	var count int
	err := c.tx(func(n storm.Node) error {
		items := make([]*model.SyncQueueItem, 0)
		err := n.Select(q.Eq("Status", status), q.Lt("UpdatedAt", t)).Find(&items)
		if err != nil {
			if c.IsNotFound(err) {
				return nil
			}
			return errors.Wrap(err, "could not find sync items")
		}

		for _, item := range items {
			if err := n.DeleteStruct(item); err != nil {
				return errors.Wrap(err, "could not delete sync item")
			}
		}
		count = len(items)
		return nil
	})
	return count, err
}
