// Package blobstore is the authoritative storage of opaque encrypted records.
//
// A record is identified by the (user, namespace, item key) triple and carries a version
// used to fence writes based on a stale state.
package blobstore

import (
	"strings"

	"github.com/civicvault/syncd/internal/database"
	"github.com/civicvault/syncd/internal/model"
	"github.com/civicvault/syncd/internal/syncerr"
	"github.com/pkg/errors"
)

type (
	// A Store reads and writes encrypted blobs.
	Store struct {
		db      database.Client
		fencing bool
	}

	// PutParams contains the fields of a write. All fields replace the stored ones.
	PutParams struct {
		Ciphertext string
		Nonce      string
		MAC        string
		AAD        *string
		Version    int64
		// ExpectedVersion, when set, must match the stored version (0 for a new record).
		ExpectedVersion *int64
	}

	// A Descriptor is a blob listing entry without its payload.
	Descriptor struct {
		Namespace string  `json:"namespace"`
		ItemKey   string  `json:"itemKey"`
		Version   int64   `json:"version"`
		AAD       *string `json:"aad"`
	}
)

// New returns a new Store. Without fencing, the last write always wins.
func New(db database.Client, fencing bool) *Store {
	return &Store{
		db:      db,
		fencing: fencing,
	}
}

// Put upserts the blob identified by the triple.
func (s *Store) Put(userID, namespace, itemKey string, params PutParams) (*model.EncryptedBlob, error) {
	namespace = Namespace(namespace)
	if err := validate(itemKey, params); err != nil {
		return nil, err
	}

	blob := &model.EncryptedBlob{
		UserID:     userID,
		Namespace:  namespace,
		ItemKey:    itemKey,
		Ciphertext: params.Ciphertext,
		Nonce:      params.Nonce,
		MAC:        params.MAC,
		AAD:        params.AAD,
		Version:    params.Version,
	}

	stored, err := s.db.UpsertBlob(blob, func(current *model.EncryptedBlob) (bool, error) {
		return s.fence(current, blob, params.ExpectedVersion)
	})
	if err != nil {
		if syncerr.Is(err, syncerr.TagVersionConflict) {
			return nil, err
		}
		return nil, errors.Wrap(err, "could not put blob")
	}
	return stored, nil
}

func (s *Store) fence(current, incoming *model.EncryptedBlob, expected *int64) (bool, error) {
	if current == nil {
		if s.fencing && expected != nil && *expected != 0 {
			return false, syncerr.VersionConflict("Blob %s does not exist, expected version %d.", incoming.ItemKey, *expected)
		}
		return true, nil
	}
	if !s.fencing {
		return true, nil
	}

	// Replaying the exact same write is a no-op.
	if current.SamePayload(incoming) {
		return false, nil
	}

	if expected != nil {
		if *expected != current.Version {
			return false, syncerr.VersionConflict("Blob %s is at version %d, expected version %d.", incoming.ItemKey, current.Version, *expected)
		}
		return true, nil
	}

	if incoming.Version <= current.Version {
		return false, syncerr.VersionConflict("Blob %s is at version %d, got version %d.", incoming.ItemKey, current.Version, incoming.Version)
	}
	return true, nil
}

// Get returns the blob for the given triple.
func (s *Store) Get(userID, namespace, itemKey string) (*model.EncryptedBlob, error) {
	blob, err := s.db.FindBlob(userID, Namespace(namespace), itemKey)
	if err != nil {
		if s.db.IsNotFound(err) {
			return nil, syncerr.NotFound("Blob not found")
		}
		return nil, errors.Wrap(err, "could not get blob")
	}
	return blob, nil
}

// List returns the descriptors of all the user's blobs.
func (s *Store) List(userID string) ([]*Descriptor, error) {
	blobs, err := s.db.FindBlobsByUserID(userID)
	if err != nil {
		return nil, errors.Wrap(err, "could not list blobs")
	}

	descriptors := make([]*Descriptor, len(blobs))
	for i, blob := range blobs {
		descriptors[i] = &Descriptor{
			Namespace: blob.Namespace,
			ItemKey:   blob.ItemKey,
			Version:   blob.Version,
			AAD:       blob.AAD,
		}
	}
	return descriptors, nil
}

// Delete removes the user's blob identified by its record id.
func (s *Store) Delete(userID, id string) (*model.EncryptedBlob, error) {
	blob, err := s.db.FindBlobByID(id, userID)
	if err != nil {
		if s.db.IsNotFound(err) {
			return nil, syncerr.NotFound("Blob not found")
		}
		return nil, errors.Wrap(err, "could not find blob")
	}
	return blob, s.remove(blob)
}

// DeleteByKey removes the blob identified by the triple.
func (s *Store) DeleteByKey(userID, namespace, itemKey string) (*model.EncryptedBlob, error) {
	blob, err := s.Get(userID, namespace, itemKey)
	if err != nil {
		return nil, err
	}
	return blob, s.remove(blob)
}

func (s *Store) remove(blob *model.EncryptedBlob) error {
	err := s.db.Delete(blob)
	if err != nil && s.db.IsNotFound(err) {
		return syncerr.NotFound("Blob not found")
	}
	return errors.Wrap(err, "could not delete blob")
}

// Namespace returns the namespace to use for ns.
func Namespace(ns string) string {
	ns = strings.TrimSpace(ns)
	if ns == "" {
		return model.DefaultNamespace
	}
	return ns
}

func validate(itemKey string, params PutParams) error {
	switch {
	case strings.TrimSpace(itemKey) == "":
		return syncerr.Validation("Blob key is required.")
	case params.Ciphertext == "", params.Nonce == "", params.MAC == "":
		return syncerr.Validation("Blob ciphertext, nonce and mac are required.")
	case params.Version < 0:
		return syncerr.Validation("Blob version must be positive.")
	}
	return nil
}
