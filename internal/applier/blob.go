package applier

import (
	"github.com/civicvault/syncd/internal/blobstore"
	"github.com/civicvault/syncd/internal/model"
	"github.com/civicvault/syncd/internal/syncerr"
)

type blob struct {
	store *blobstore.Store
}

// NewBlob returns the applier of encrypted blobs.
// CREATE and UPDATE share the same upsert keyed by the triple so a retried CREATE never duplicates a record.
func NewBlob(store *blobstore.Store) Applier {
	return &blob{store: store}
}

func (a *blob) Validate(op Operation) error {
	p, err := parse(op.Data)
	if err != nil {
		return err
	}

	switch op.Operation {
	case model.OperationCreate, model.OperationUpdate:
		_, _, _, err = write(p)
		return err
	case model.OperationDelete:
		if op.EntityID != "" {
			return nil
		}
		_, err = p.RequiredString("itemKey")
		return err
	}
	return nil
}

func (a *blob) Apply(op Operation) (any, error) {
	p, err := parse(op.Data)
	if err != nil {
		return nil, err
	}

	switch op.Operation {
	case model.OperationCreate, model.OperationUpdate:
		namespace, itemKey, params, err := write(p)
		if err != nil {
			return nil, err
		}
		// The owner is always the queue item's one, whatever the payload says.
		return a.store.Put(op.UserID, namespace, itemKey, params)
	case model.OperationDelete:
		if op.EntityID != "" {
			return a.store.Delete(op.UserID, op.EntityID)
		}

		namespace, _, err := p.String("namespace")
		if err != nil {
			return nil, err
		}
		itemKey, err := p.RequiredString("itemKey")
		if err != nil {
			return nil, err
		}
		return a.store.DeleteByKey(op.UserID, namespace, itemKey)
	}
	return nil, syncerr.Unsupported("Unknown operation: %s", op.Operation)
}

func write(p *payload) (namespace, itemKey string, params blobstore.PutParams, err error) {
	if namespace, _, err = p.String("namespace"); err != nil {
		return
	}
	if itemKey, err = p.RequiredString("itemKey"); err != nil {
		return
	}
	if params.Ciphertext, err = p.RequiredString("ciphertext"); err != nil {
		return
	}
	if params.Nonce, err = p.RequiredString("nonce"); err != nil {
		return
	}
	if params.MAC, err = p.RequiredString("mac"); err != nil {
		return
	}
	if params.AAD, err = p.NullableString("aad"); err != nil {
		return
	}

	var ok bool
	if params.Version, ok, err = p.Int("version"); err != nil {
		return
	}
	if !ok {
		err = syncerr.Validation("Field version is required.")
		return
	}

	expected, ok, err := p.Int("expectedVersion")
	if err != nil {
		return
	}
	if ok {
		params.ExpectedVersion = &expected
	}
	return
}
