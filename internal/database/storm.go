package database

import (
	"time"

	"github.com/asdine/storm/v3"
	"github.com/civicvault/syncd/internal/model"
	"github.com/gofrs/uuid"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

type (
	strm struct {
		db  *storm.DB
		now func() time.Time
	}

	// An Option configures the storm client.
	Option func(*strm)
)

var models = []any{
	&model.SyncQueueItem{},
	&model.EncryptedBlob{},
	&model.Device{},
	&model.SecurityLog{},
}

// WithClock overrides the clock used to stamp records.
func WithClock(now func() time.Time) Option {
	return func(c *strm) {
		c.now = now
	}
}

func open(database, codec string) (*storm.DB, error) {
	cdc, err := Codec(codec)
	if err != nil {
		return nil, err
	}

	db, err := storm.Open(database,
		storm.Codec(cdc),
		storm.BoltOptions(0o600, &bolt.Options{Timeout: time.Second}),
	)
	return db, errors.Wrap(err, "could not get database connection")
}

// StormInit initializes Storm database.
func StormInit(database, codec string) error {
	db, err := open(database, codec)
	if err != nil {
		return err
	}
	defer db.Close()

	for _, m := range models {
		if err := db.Init(m); err != nil {
			return errors.Wrapf(err, "could not init %T index", m)
		}
	}
	return nil
}

// StormReIndex reindex Storm database.
func StormReIndex(database, codec string) error {
	db, err := open(database, codec)
	if err != nil {
		return err
	}
	defer db.Close()

	for _, m := range models {
		if err := db.ReIndex(m); err != nil {
			return errors.Wrapf(err, "could not ReIndex %T", m)
		}
	}
	return nil
}

// StormOpen returns a new Storm database connection.
func StormOpen(database, codec string, opts ...Option) (Client, error) {
	db, err := open(database, codec)
	if err != nil {
		return nil, err
	}

	c := &strm{
		db:  db,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Save inserts or updates the entry in database with the given model.
func (c *strm) Save(m model.Model) error {
	return errors.Wrap(c.save(c.db, m), "could not save the model")
}

func (c *strm) save(n storm.Node, m model.Model) error {
	t := c.now().UTC()
	m.SetUpdatedAt(t)

	if m.GetID() == "" {
		m.SetID(uuid.Must(uuid.NewV4()).String())
		m.SetCreatedAt(t)
	}

	return n.Save(m)
}

// Delete deletes the entry in database with the given model.
func (c *strm) Delete(m model.Model) error {
	return errors.Wrap(c.db.DeleteStruct(m), "could not delete the model")
}

// Close the database.
func (c *strm) Close() error {
	return c.db.Close()
}

// IsNotFound returns true if err is a not found error.
func (c *strm) IsNotFound(err error) bool {
	return errors.Cause(err) == storm.ErrNotFound
}

// tx runs fn in a writable transaction.
func (c *strm) tx(fn func(n storm.Node) error) error {
	n, err := c.db.Begin(true)
	if err != nil {
		return errors.Wrap(err, "could not begin transaction")
	}
	defer n.Rollback() // no-op after a commit

	if err = fn(n); err != nil {
		return err
	}
	return errors.Wrap(n.Commit(), "could not commit transaction")
}
