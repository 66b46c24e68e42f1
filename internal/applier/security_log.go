package applier

import (
	"github.com/civicvault/syncd/internal/database"
	"github.com/civicvault/syncd/internal/model"
	"github.com/civicvault/syncd/internal/syncerr"
)

type securityLog struct {
	db database.Client
}

// NewSecurityLog returns the append-only applier of security logs.
func NewSecurityLog(db database.Client) Applier {
	return &securityLog{db: db}
}

// Validate only checks CREATE payloads; other operations are queued and fail when applied.
func (a *securityLog) Validate(op Operation) error {
	if op.Operation != model.OperationCreate {
		return nil
	}

	p, err := parse(op.Data)
	if err != nil {
		return err
	}
	_, err = a.build(op, p)
	return err
}

func (a *securityLog) Apply(op Operation) (any, error) {
	if op.Operation != model.OperationCreate {
		return nil, syncerr.Unsupported("Operation %s not supported for security logs", op.Operation)
	}

	p, err := parse(op.Data)
	if err != nil {
		return nil, err
	}
	log, err := a.build(op, p)
	if err != nil {
		return nil, err
	}

	if log.IdempotencyKey != "" {
		existing, err := a.db.FindSecurityLogByIdempotencyKey(op.UserID, log.IdempotencyKey)
		if err == nil {
			return existing, nil
		}
		if !a.db.IsNotFound(err) {
			return nil, unavailable(err, "find security log")
		}
	}

	return log, unavailable(a.db.Save(log), "create security log")
}

func (a *securityLog) build(op Operation, p *payload) (*model.SecurityLog, error) {
	log := &model.SecurityLog{
		UserID:  op.UserID,
		Details: p.Raw("details"),
	}

	var err error
	if log.Event, err = p.RequiredString("event"); err != nil {
		return nil, err
	}
	if log.IdempotencyKey, _, err = p.String(IdempotencyKey); err != nil {
		return nil, err
	}
	if log.DeviceID, _, err = p.String("deviceId"); err != nil {
		return nil, err
	}
	if log.Severity, _, err = p.String("severity"); err != nil {
		return nil, err
	}
	if log.OccurredAt, _, err = p.Time("occurredAt"); err != nil {
		return nil, err
	}
	return log, nil
}
