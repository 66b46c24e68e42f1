package syncqueue

import (
	"time"

	"github.com/civicvault/syncd/internal/model"
	"github.com/pkg/errors"
)

type (
	// A Status summarizes the sync state of a user.
	Status struct {
		Queue    StatusCounts    `json:"queue"`
		Devices  []*DeviceStatus `json:"devices"`
		LastSync *time.Time      `json:"lastSync"`
	}

	// StatusCounts are the number of queue items per status.
	StatusCounts struct {
		Pending   int `json:"pending"`
		Syncing   int `json:"syncing"`
		Completed int `json:"completed"`
		Failed    int `json:"failed"`
	}

	// A DeviceStatus is the sync state reported by a device.
	DeviceStatus struct {
		ID         string     `json:"id"`
		Name       string     `json:"name"`
		SyncStatus string     `json:"syncStatus"`
		LastSyncAt *time.Time `json:"lastSyncAt"`
		IsOnline   bool       `json:"isOnline"`
	}
)

// Status returns the queue counts, the devices and the last completed sync of the user.
func (q *Queue) Status(userID string) (*Status, error) {
	status := &Status{}
	for s, n := range map[string]*int{
		model.StatusPending:   &status.Queue.Pending,
		model.StatusSyncing:   &status.Queue.Syncing,
		model.StatusCompleted: &status.Queue.Completed,
		model.StatusFailed:    &status.Queue.Failed,
	} {
		count, err := q.db.CountSyncItemsByStatus(userID, s)
		if err != nil {
			return nil, errors.Wrap(err, "could not get sync status")
		}
		*n = count
	}

	devices, err := q.db.FindDevicesByUserID(userID)
	if err != nil {
		return nil, errors.Wrap(err, "could not get sync status")
	}
	status.Devices = make([]*DeviceStatus, len(devices))
	for i, d := range devices {
		status.Devices[i] = &DeviceStatus{
			ID:         d.ID,
			Name:       d.Name,
			SyncStatus: d.SyncStatus,
			LastSyncAt: d.LastSyncAt,
			IsOnline:   d.IsOnline,
		}
	}

	last, err := q.db.FindLastCompletedSyncItem(userID)
	switch {
	case err == nil:
		status.LastSync = last.UpdatedAt
	case !q.db.IsNotFound(err):
		return nil, errors.Wrap(err, "could not get sync status")
	}

	return status, nil
}
