package main

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/asdine/storm/v3"
	"github.com/civicvault/syncd/internal/database"
	"github.com/civicvault/syncd/internal/model"
	"github.com/civicvault/syncd/pkg/stormsql"
	"github.com/civicvault/syncd/pkg/structs"
	"github.com/pkg/errors"
	"github.com/sanity-io/litter"
	"github.com/spf13/cobra"
)

// go run tools/console/main.go syncd.db "SELECT Entity, Error FROM sync_queue_items WHERE Status = 'failed' AND UpdatedAt > '2026-10-01 00:00:00';"

var (
	codec string
	dump  bool
)

func main() {
	c := &cobra.Command{
		Use:   "console DATABASE QUERY",
		Short: "SQL console for syncd database",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			//
			//
			schema := stormsql.Schema{}
			for name, t := range tables {
				schema[name] = t.record()
			}

			sc, err := stormsql.ParseSelect(args[1], schema)
			if err != nil {
				return err
			}
			table := tables[sc.Tablename]

			//
			//
			marshaler, err := database.Codec(codec)
			if err != nil {
				return err
			}

			fmt.Println("Opening", args[0])
			db, err := storm.Open(args[0], storm.Codec(marshaler))
			if err != nil {
				return errors.Wrap(err, "could not open database")
			}
			defer db.Close()

			//
			// Prepare request
			//

			query := db.Select(sc.Matcher)
			if sc.Skip > 0 {
				query.Skip(sc.Skip)
			}
			if sc.Limit > 0 {
				query.Limit(sc.Limit)
			}
			if len(sc.OrderBy) > 0 {
				query.OrderBy(sc.OrderBy...)
				if sc.OrderByReversed {
					query.Reverse()
				}
			}

			// Execute

			if sc.Count {
				return count(table, query)
			}

			return list(sc, table, query)
		},
	}
	c.Flags().StringVar(&codec, "codec", database.CodecMsgpack, "Database codec (msgpack, cbor, binc)")
	c.Flags().BoolVarP(&dump, "dump", "d", false, "Dump records with their Go types instead of JSON")

	if err := c.Execute(); err != nil {
		log.Fatalf("%+v", err)
	}
}

type table struct {
	record  func() any
	records func() any
}

var tables = map[string]table{
	"sync_queue_items": {
		record:  func() any { return &model.SyncQueueItem{} },
		records: func() any { return &[]*model.SyncQueueItem{} },
	},
	"encrypted_blobs": {
		record:  func() any { return &model.EncryptedBlob{} },
		records: func() any { return &[]*model.EncryptedBlob{} },
	},
	"devices": {
		record:  func() any { return &model.Device{} },
		records: func() any { return &[]*model.Device{} },
	},
	"security_logs": {
		record:  func() any { return &model.SecurityLog{} },
		records: func() any { return &[]*model.SecurityLog{} },
	},
}

func count(t table, query storm.Query) error {
	n, err := query.Count(t.record())
	if err != nil {
		return errors.Wrap(err, "could not perform query")
	}

	fmt.Println("Count:", n)

	return nil
}

func list(sc *stormsql.SelectClause, t table, query storm.Query) error {
	records := t.records()

	err := query.Find(records)
	if err == storm.ErrNotFound {
		fmt.Println("[]")
		return nil
	}

	if err != nil {
		return errors.Wrap(err, "could not perform query")
	}

	var v any = records
	if len(sc.SelectedFields) > 0 {
		if v, err = structs.ProjectSlice(records, sc.SelectedFields...); err != nil {
			return err
		}
	}

	if dump {
		litter.Dump(v)
		return nil
	}
	return jsondump(v)
}

func jsondump(v any) error {
	d, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "could not serialize records")
	}
	fmt.Println(string(d))
	return nil
}
