package main

import (
	"fmt"
	"log"

	"github.com/asdine/storm/v3"
	"github.com/asdine/storm/v3/q"
	"github.com/civicvault/syncd/internal/database"
	"github.com/civicvault/syncd/internal/model"
	"github.com/muesli/coral"
	"github.com/pkg/errors"
)

var codec string

func main() {
	c := &coral.Command{
		Use:   "purgeuser DATABASE USER_ID",
		Short: "Remove every record of a user from the database",
		Args:  coral.ExactArgs(2),
		RunE: func(_ *coral.Command, args []string) error {
			marshaler, err := database.Codec(codec)
			if err != nil {
				return err
			}

			//
			//
			fmt.Println("Opening", args[0])
			db, err := storm.Open(args[0], storm.Codec(marshaler))
			if err != nil {
				return errors.Wrap(err, "could not open database")
			}
			defer db.Close()

			tx, err := db.Begin(true)
			if err != nil {
				return errors.Wrap(err, "could not start transaction")
			}
			defer tx.Rollback()

			for _, table := range []struct {
				name   string
				record any
			}{
				{name: "Sync queue items", record: &model.SyncQueueItem{}},
				{name: "Blobs", record: &model.EncryptedBlob{}},
				{name: "Devices", record: &model.Device{}},
				{name: "Security logs", record: &model.SecurityLog{}},
			} {
				n, err := tx.Select(q.Eq("UserID", args[1])).Count(table.record)
				if err != nil && err != storm.ErrNotFound {
					return errors.Wrapf(err, "count %s", table.name)
				}

				err = tx.Select(q.Eq("UserID", args[1])).Delete(table.record)
				if err != nil && err != storm.ErrNotFound {
					return errors.Wrapf(err, "delete %s", table.name)
				}
				fmt.Printf("%s removed: %d\n", table.name, n)
			}

			return errors.Wrap(tx.Commit(), "could not commit")
		},
	}
	c.Flags().StringVar(&codec, "codec", database.CodecMsgpack, "Database codec (msgpack, cbor, binc)")

	if err := c.Execute(); err != nil {
		log.Fatalf("%+v", err)
	}
}
