package model

import "encoding/json"

// Queue operations.
const (
	OperationCreate = "CREATE"
	OperationUpdate = "UPDATE"
	OperationDelete = "DELETE"
)

// Entity tags routed to an applier.
const (
	EntityDevice      = "device"
	EntityBlob        = "blob"
	EntitySecurityLog = "securityLog"
)

// Queue item statuses.
const (
	StatusPending   = "pending"
	StatusSyncing   = "syncing"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// A SyncQueueItem is a pending mutation submitted by a client while it was offline.
type SyncQueueItem struct {
	Base `msgpack:",inline" storm:"inline"`

	// Sequence is assigned by the database and orders items enqueued within the same instant.
	Sequence   uint64          `json:"-" codec:"sequence" msgpack:"sequence" storm:"index,increment"`
	UserID     string          `json:"userId"             msgpack:"user_id"     storm:"index"`
	Operation  string          `json:"operation"          msgpack:"operation"`
	Entity     string          `json:"entity"             msgpack:"entity"`
	EntityID   string          `json:"entityId,omitempty" msgpack:"entity_id"`
	Data       json.RawMessage `json:"data,omitempty"     msgpack:"data"`
	Status     string          `json:"status"             msgpack:"status"      storm:"index"`
	RetryCount int             `json:"retryCount"         msgpack:"retry_count"`
	Error      string          `json:"error,omitempty"    msgpack:"error"`
	ErrorKind  string          `json:"errorKind,omitempty" msgpack:"error_kind"`
}

// IsOperation returns true if op is a known queue operation.
func IsOperation(op string) bool {
	switch op {
	case OperationCreate, OperationUpdate, OperationDelete:
		return true
	}
	return false
}
