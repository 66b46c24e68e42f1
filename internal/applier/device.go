package applier

import (
	"github.com/civicvault/syncd/internal/database"
	"github.com/civicvault/syncd/internal/model"
	"github.com/civicvault/syncd/internal/syncerr"
)

type device struct {
	db database.Client
}

// NewDevice returns the applier of device metadata.
func NewDevice(db database.Client) Applier {
	return &device{db: db}
}

func (a *device) Validate(op Operation) error {
	p, err := parse(op.Data)
	if err != nil {
		return err
	}

	switch op.Operation {
	case model.OperationCreate:
		if _, err = p.RequiredString("name"); err != nil {
			return err
		}
		return patch(&model.Device{}, p)
	case model.OperationUpdate:
		if op.EntityID == "" {
			return syncerr.Validation("Field entityId is required.")
		}
		return patch(&model.Device{}, p)
	case model.OperationDelete:
		if op.EntityID == "" {
			return syncerr.Validation("Field entityId is required.")
		}
	}
	return nil
}

func (a *device) Apply(op Operation) (any, error) {
	p, err := parse(op.Data)
	if err != nil {
		return nil, err
	}

	switch op.Operation {
	case model.OperationCreate:
		return a.create(op, p)
	case model.OperationUpdate:
		d, err := a.find(op)
		if err != nil {
			return nil, err
		}
		if err = patch(d, p); err != nil {
			return nil, err
		}
		return d, unavailable(a.db.Save(d), "update device")
	case model.OperationDelete:
		d, err := a.find(op)
		if err != nil {
			return nil, err
		}
		return d, unavailable(a.db.Delete(d), "delete device")
	}
	return nil, syncerr.Unsupported("Unknown operation: %s", op.Operation)
}

func (a *device) create(op Operation, p *payload) (*model.Device, error) {
	key, _, err := p.String(IdempotencyKey)
	if err != nil {
		return nil, err
	}

	if key != "" {
		d, err := a.db.FindDeviceByIdempotencyKey(op.UserID, key)
		if err == nil {
			return d, nil
		}
		if !a.db.IsNotFound(err) {
			return nil, unavailable(err, "find device")
		}
	}

	d := &model.Device{
		UserID:         op.UserID,
		IdempotencyKey: key,
	}
	if err = patch(d, p); err != nil {
		return nil, err
	}
	return d, unavailable(a.db.Save(d), "create device")
}

func (a *device) find(op Operation) (*model.Device, error) {
	d, err := a.db.FindDevice(op.EntityID, op.UserID)
	if err != nil {
		if a.db.IsNotFound(err) {
			return nil, syncerr.NotFound("Device %s not found", op.EntityID)
		}
		return nil, unavailable(err, "find device")
	}
	return d, nil
}

// patch overrides the device attributes present in the payload.
func patch(d *model.Device, p *payload) error {
	for key, field := range map[string]*string{
		"name":       &d.Name,
		"platform":   &d.Platform,
		"pushToken":  &d.PushToken,
		"syncStatus": &d.SyncStatus,
	} {
		s, ok, err := p.String(key)
		if err != nil {
			return err
		}
		if ok {
			*field = s
		}
	}

	online, ok, err := p.Bool("isOnline")
	if err != nil {
		return err
	}
	if ok {
		d.IsOnline = online
	}

	at, ok, err := p.Time("lastSyncAt")
	if err != nil {
		return err
	}
	if ok {
		d.LastSyncAt = at
	}
	return nil
}
