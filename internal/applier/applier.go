// Package applier translates queued operations into authoritative storage mutations.
//
// Each entity tag is bound to one Applier in a Registry. An applier never talks to the queue
// nor to the notification fan-out: the queue calls it and keeps the bookkeeping.
package applier

import (
	"sort"

	"github.com/civicvault/syncd/internal/blobstore"
	"github.com/civicvault/syncd/internal/database"
	"github.com/civicvault/syncd/internal/model"
	"github.com/civicvault/syncd/internal/syncerr"
)

type (
	// An Operation is one queued mutation handed to an applier.
	Operation struct {
		UserID    string
		Operation string
		EntityID  string
		Data      []byte
	}

	// An Applier applies operations for one entity.
	Applier interface {
		// Validate checks an operation before it is queued.
		Validate(op Operation) error
		// Apply performs the mutation and returns the mutated record.
		Apply(op Operation) (any, error)
	}

	// A Registry maps entity tags to their applier.
	Registry struct {
		appliers map[string]Applier
	}
)

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		appliers: map[string]Applier{},
	}
}

// Default returns a registry with the device, blob and securityLog appliers.
func Default(db database.Client, blobs *blobstore.Store) *Registry {
	r := NewRegistry()
	r.Register(model.EntityDevice, NewDevice(db))
	r.Register(model.EntityBlob, NewBlob(blobs))
	r.Register(model.EntitySecurityLog, NewSecurityLog(db))
	return r
}

// Register binds an applier to the entity tag, replacing any previous one.
func (r *Registry) Register(entity string, a Applier) {
	r.appliers[entity] = a
}

// Entities returns the registered entity tags.
func (r *Registry) Entities() []string {
	entities := make([]string, 0, len(r.appliers))
	for entity := range r.appliers {
		entities = append(entities, entity)
	}
	sort.Strings(entities)
	return entities
}

// Validate rejects operations that can never be queued.
func (r *Registry) Validate(entity string, op Operation) error {
	if !model.IsOperation(op.Operation) {
		return syncerr.Validation("Unknown operation: %s", op.Operation)
	}

	a, ok := r.appliers[entity]
	if !ok {
		return syncerr.Validation("Unknown entity type: %s", entity)
	}
	return a.Validate(op)
}

// Apply dispatches the operation to the entity's applier.
func (r *Registry) Apply(entity string, op Operation) (any, error) {
	a, ok := r.appliers[entity]
	if !ok {
		return nil, syncerr.Unsupported("Unknown entity type: %s", entity)
	}
	return a.Apply(op)
}

// unavailable reports a storage failure as transient so the item is retried on a later drain.
func unavailable(err error, action string) error {
	if err == nil {
		return nil
	}
	return syncerr.Transient("Could not %s: %s", action, err)
}
