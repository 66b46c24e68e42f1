package model

import (
	"encoding/json"
	"time"
)

// A SecurityLog is an append-only security event reported by a device.
type SecurityLog struct {
	Base `msgpack:",inline" storm:"inline"`

	UserID         string          `json:"userId"                   msgpack:"user_id"         storm:"index"`
	IdempotencyKey string          `json:"idempotencyKey,omitempty" msgpack:"idempotency_key" storm:"index"`
	DeviceID       string          `json:"deviceId,omitempty"       msgpack:"device_id"`
	Event          string          `json:"event"                    msgpack:"event"`
	Severity       string          `json:"severity,omitempty"       msgpack:"severity"`
	Details        json.RawMessage `json:"details,omitempty"        msgpack:"details"`
	OccurredAt     *time.Time      `json:"occurredAt,omitempty"     msgpack:"occurred_at"`
}
