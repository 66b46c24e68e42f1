package database

import (
	"time"

	"github.com/civicvault/syncd/internal/model"
)

type (
	// A Client can interacts with the database.
	Client interface {
		// Save inserts or updates the entry in database with the given model.
		Save(m model.Model) error
		// Delete deletes the entry in database with the given model.
		Delete(m model.Model) error
		// Close the database.
		Close() error
		// IsNotFound returns true if err is a not found error.
		IsNotFound(err error) bool

		SyncQueueInteraction
		BlobInteraction
		DeviceInteraction
		SecurityLogInteraction
	}

	// A SyncQueueInteraction defines all the methods used to interact with sync queue records.
	SyncQueueInteraction interface {
		// FindSyncItem returns the queue item for the given id and user id.
		FindSyncItem(id, userID string) (*model.SyncQueueItem, error)
		// FindSyncItemsByStatus returns the user's queue items having one of the given statuses in submission order.
		FindSyncItemsByStatus(userID string, statuses ...string) ([]*model.SyncQueueItem, error)
		// CountSyncItemsByStatus returns the number of user's queue items with the given status.
		CountSyncItemsByStatus(userID, status string) (int, error)
		// FindLastCompletedSyncItem returns the most recently completed queue item of the user.
		FindLastCompletedSyncItem(userID string) (*model.SyncQueueItem, error)
		// FindUserIDsWithSyncItems returns the owners of the queue items having one of the given statuses.
		FindUserIDsWithSyncItems(statuses ...string) ([]string, error)
		// TransitionSyncItem persists the new state of an existing queue item.
		// It fails with a not found error if the item has been removed meanwhile.
		TransitionSyncItem(item *model.SyncQueueItem) error
		// DeleteSyncItemsBefore removes the queue items with the given status last updated before t.
		DeleteSyncItemsBefore(status string, t time.Time) (int, error)
	}

	// A BlobInteraction defines all the methods used to interact with encrypted blob records.
	BlobInteraction interface {
		// FindBlob returns the blob for the given triple.
		FindBlob(userID, namespace, itemKey string) (*model.EncryptedBlob, error)
		// FindBlobByID returns the blob for the given id and user id.
		FindBlobByID(id, userID string) (*model.EncryptedBlob, error)
		// FindBlobsByUserID returns all the blobs of the user.
		FindBlobsByUserID(userID string) ([]*model.EncryptedBlob, error)
		// UpsertBlob atomically writes the blob identified by its triple.
		// check receives the stored record (nil if none) and decides whether the write happens.
		UpsertBlob(blob *model.EncryptedBlob, check func(current *model.EncryptedBlob) (bool, error)) (*model.EncryptedBlob, error)
	}

	// A DeviceInteraction defines all the methods used to interact with device records.
	DeviceInteraction interface {
		// FindDevice returns the device for the given id and user id.
		FindDevice(id, userID string) (*model.Device, error)
		// FindDeviceByIdempotencyKey returns the user's device created with the given key.
		FindDeviceByIdempotencyKey(userID, key string) (*model.Device, error)
		// FindDevicesByUserID returns all the devices of the user.
		FindDevicesByUserID(userID string) ([]*model.Device, error)
	}

	// A SecurityLogInteraction defines all the methods used to interact with security log records.
	SecurityLogInteraction interface {
		// FindSecurityLogByIdempotencyKey returns the user's log created with the given key.
		FindSecurityLogByIdempotencyKey(userID, key string) (*model.SecurityLog, error)
		// FindSecurityLogsByUserID returns all the logs of the user in creation order.
		FindSecurityLogsByUserID(userID string) ([]*model.SecurityLog, error)
	}
)
