package model

import "time"

// A Device represents a client device of a user.
type Device struct {
	Base `msgpack:",inline" storm:"inline"`

	UserID         string     `json:"userId"                   msgpack:"user_id"         storm:"index"`
	IdempotencyKey string     `json:"idempotencyKey,omitempty" msgpack:"idempotency_key" storm:"index"`
	Name           string     `json:"name"                     msgpack:"name"`
	Platform       string     `json:"platform,omitempty"       msgpack:"platform"`
	PushToken      string     `json:"pushToken,omitempty"      msgpack:"push_token"`
	SyncStatus     string     `json:"syncStatus,omitempty"     msgpack:"sync_status"`
	LastSyncAt     *time.Time `json:"lastSyncAt,omitempty"     msgpack:"last_sync_at"`
	IsOnline       bool       `json:"isOnline"                 msgpack:"is_online"`
}
