package database

import (
	"github.com/asdine/storm/v3/q"
	"github.com/civicvault/syncd/internal/model"
	"github.com/pkg/errors"
)

// FindDevice returns the device for the given id and user id.
func (c *strm) FindDevice(id, userID string) (*model.Device, error) {
	var device model.Device
	err := c.db.Select(q.Eq("ID", id), q.Eq("UserID", userID)).First(&device)
	if err != nil {
		return nil, errors.Wrap(err, "could not find device")
	}
	return &device, nil
}

// FindDeviceByIdempotencyKey returns the user's device created with the given key.
func (c *strm) FindDeviceByIdempotencyKey(userID, key string) (*model.Device, error) {
	var device model.Device
	err := c.db.Select(q.Eq("UserID", userID), q.Eq("IdempotencyKey", key)).First(&device)
	if err != nil {
		return nil, errors.Wrap(err, "could not find device by idempotency key")
	}
	return &device, nil
}

// FindDevicesByUserID returns all the devices of the user.
func (c *strm) FindDevicesByUserID(userID string) ([]*model.Device, error) {
	devices := make([]*model.Device, 0)
	err := c.db.Select(q.Eq("UserID", userID)).OrderBy("CreatedAt").Find(&devices)
	if err != nil && !c.IsNotFound(err) {
		return nil, errors.Wrap(err, "could not find devices")
	}
	return devices, nil
}
