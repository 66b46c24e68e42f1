package database

import (
	"github.com/asdine/storm/v3"
	"github.com/asdine/storm/v3/q"
	"github.com/civicvault/syncd/internal/model"
	"github.com/pkg/errors"
)

// FindBlob returns the blob for the given triple.
func (c *strm) FindBlob(userID, namespace, itemKey string) (*model.EncryptedBlob, error) {
	var blob model.EncryptedBlob
	if err := c.db.One("Triple", model.BlobTriple(userID, namespace, itemKey), &blob); err != nil {
		return nil, errors.Wrap(err, "could not find blob")
	}
	return &blob, nil
}

// FindBlobByID returns the blob for the given id and user id.
func (c *strm) FindBlobByID(id, userID string) (*model.EncryptedBlob, error) {
	var blob model.EncryptedBlob
	err := c.db.Select(q.Eq("ID", id), q.Eq("UserID", userID)).First(&blob)
	if err != nil {
		return nil, errors.Wrap(err, "could not find blob by id")
	}
	return &blob, nil
}

// FindBlobsByUserID returns all the blobs of the user.
func (c *strm) FindBlobsByUserID(userID string) ([]*model.EncryptedBlob, error) {
	blobs := make([]*model.EncryptedBlob, 0)
	err := c.db.Select(q.Eq("UserID", userID)).OrderBy("Namespace", "ItemKey").Find(&blobs)
	if err != nil && !c.IsNotFound(err) {
		return nil, errors.Wrap(err, "could not find blobs")
	}
	return blobs, nil
}

// UpsertBlob atomically writes the blob identified by its triple.
func (c *strm) UpsertBlob(blob *model.EncryptedBlob, check func(current *model.EncryptedBlob) (bool, error)) (*model.EncryptedBlob, error) {
	blob.Triple = model.BlobTriple(blob.UserID, blob.Namespace, blob.ItemKey)

	var stored *model.EncryptedBlob
	err := c.tx(func(n storm.Node) error {
		var current *model.EncryptedBlob

		var record model.EncryptedBlob
		err := n.One("Triple", blob.Triple, &record)
		switch {
		case err == nil:
			current = &record
		case !c.IsNotFound(err):
			return errors.Wrap(err, "could not find blob")
		}

		write, err := check(current)
		if err != nil {
			return err
		}
		if !write {
			stored = current
			return nil
		}

		// Wholesale replacement keeps the record identity.
		if current != nil {
			blob.ID = current.ID
			blob.CreatedAt = current.CreatedAt
		}
		if err = c.save(n, blob); err != nil {
			return errors.Wrap(err, "could not save blob")
		}
		stored = blob
		return nil
	})
	return stored, err
}
