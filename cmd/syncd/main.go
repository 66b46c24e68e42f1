package main

import (
	"context"
	"fmt"
	"hash"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/civicvault/syncd/internal/applier"
	"github.com/civicvault/syncd/internal/blobstore"
	"github.com/civicvault/syncd/internal/database"
	"github.com/civicvault/syncd/internal/notify"
	"github.com/civicvault/syncd/internal/server"
	"github.com/civicvault/syncd/internal/syncqueue"
	"github.com/golang-jwt/jwt/v5"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/muesli/coral"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/hkdf"
	"gopkg.in/natefinch/lumberjack.v2"
)

const dbname = "syncd.db"

var (
	version  = "dev"
	revision = "none"
	date     = "unknown"

	cfg string
	ttl time.Duration

	defaults = map[string]any{
		"address":               "localhost:5000",
		"database_codec":        database.CodecMsgpack,
		"log_level":             "info",
		"log_file":              "",
		"log_max_size":          100,
		"log_max_backups":       5,
		"blob.fencing":          true,
		"sync.retention":        syncqueue.DefaultRetention.String(),
		"sync.cleanup_interval": "1h",
		"sync.drain_interval":   "0s",
		"sync.max_attempts":     0,
		"sync.backoff":          "0s",
		"sync.skip_permanent":   false,
	}
)

func main() {
	c := &coral.Command{
		Use:     "syncd",
		Short:   "Offline-first sync engine server",
		Version: fmt.Sprintf("%s - build %.7s @ %s - %s", version, revision, date, runtime.Version()),
		Args:    coral.ExactArgs(0),
	}
	c.PersistentFlags().StringVarP(&cfg, "config", "c", "", "Configuration file")

	c.AddCommand(initCmd)
	c.AddCommand(reindexCmd)
	c.AddCommand(serverCmd)
	c.AddCommand(cleanupCmd)

	tokenCmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	c.AddCommand(tokenCmd)

	if err := c.Execute(); err != nil {
		logrus.Fatalf("%+v", err)
	}
}

// load reads the defaults, then the configuration file, then the SYNCD_ environment variables.
// A double underscore in a variable name is a key delimiter (e.g. SYNCD_SYNC__MAX_ATTEMPTS).
func load() (*koanf.Koanf, error) {
	konf := koanf.New(".")
	if err := konf.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, errors.Wrap(err, "could not load defaults")
	}

	if cfg != "" {
		if err := konf.Load(file.Provider(cfg), yaml.Parser()); err != nil {
			return nil, errors.Wrap(err, "could not load configuration file")
		}
	}

	err := konf.Load(env.Provider("SYNCD_", ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, "SYNCD_"))
		return strings.ReplaceAll(s, "__", ".")
	}), nil)
	if err != nil {
		return nil, errors.Wrap(err, "could not load environment")
	}

	level, err := logrus.ParseLevel(konf.String("log_level"))
	if err != nil {
		return nil, errors.Wrap(err, "invalid log_level")
	}
	logrus.SetLevel(level)

	if filename := konf.String("log_file"); filename != "" {
		logrus.SetOutput(&lumberjack.Logger{
			Filename:   filename,
			MaxSize:    konf.Int("log_max_size"), // megabytes
			MaxBackups: konf.Int("log_max_backups"),
			Compress:   true,
		})
	}

	return konf, nil
}

func dbnameWithPath(path string) string {
	if len(path) == 0 {
		return dbname
	}
	return filepath.Join(path, dbname)
}

func open(konf *koanf.Koanf) (database.Client, error) {
	db, err := database.StormOpen(dbnameWithPath(konf.String("database_path")), konf.String("database_codec"))
	return db, errors.Wrap(err, "could not open database")
}

func signingKey(konf *koanf.Koanf) ([]byte, error) {
	if konf.String("secret_key") == "" {
		return nil, errors.New("secret_key not found")
	}
	return kdf(32, konf.Bytes("secret_key")), nil
}

func kdf(l int, k []byte) []byte {
	nhash := func() hash.Hash {
		h, err := blake2b.New256(nil)
		if err != nil {
			panic(err)
		}
		return h
	}

	payload := make([]byte, l)

	kdf := hkdf.New(nhash, k, nil, nil)
	_, err := io.ReadFull(kdf, payload)
	if err != nil {
		panic(err)
	}

	return payload
}

func queue(konf *koanf.Koanf, db database.Client, blobs *blobstore.Store) *syncqueue.Queue {
	opts := []syncqueue.Option{
		syncqueue.WithRetention(konf.Duration("sync.retention")),
	}

	if konf.Int("sync.max_attempts") > 0 || konf.Duration("sync.backoff") > 0 || konf.Bool("sync.skip_permanent") {
		opts = append(opts, syncqueue.WithPolicy(syncqueue.LimitedPolicy{
			MaxAttempts:   konf.Int("sync.max_attempts"),
			Backoff:       konf.Duration("sync.backoff"),
			SkipPermanent: konf.Bool("sync.skip_permanent"),
		}))
	}

	return syncqueue.New(db, applier.Default(db, blobs), opts...)
}

var (
	initCmd = &coral.Command{
		Use:   "init",
		Short: "Init the database",
		Args:  coral.ExactArgs(0),
		RunE: func(_ *coral.Command, _ []string) error {
			konf, err := load()
			if err != nil {
				return err
			}

			return database.StormInit(dbnameWithPath(konf.String("database_path")), konf.String("database_codec"))
		},
	}

	//
	reindexCmd = &coral.Command{
		Use:   "reindex",
		Short: "Reindex the database",
		Args:  coral.ExactArgs(0),
		RunE: func(_ *coral.Command, _ []string) error {
			konf, err := load()
			if err != nil {
				return err
			}

			return database.StormReIndex(dbnameWithPath(konf.String("database_path")), konf.String("database_codec"))
		},
	}

	//
	cleanupCmd = &coral.Command{
		Use:   "cleanup",
		Short: "Purge the completed sync items older than the retention",
		Args:  coral.ExactArgs(0),
		RunE: func(_ *coral.Command, _ []string) error {
			konf, err := load()
			if err != nil {
				return err
			}

			db, err := open(konf)
			if err != nil {
				return err
			}
			defer db.Close()

			n, err := queue(konf, db, blobstore.New(db, konf.Bool("blob.fencing"))).Cleanup()
			if err != nil {
				return err
			}
			fmt.Println("Removed items:", n)
			return nil
		},
	}

	//
	tokenCmd = &coral.Command{
		Use:   "token USER_ID",
		Short: "Generate an access token for a user",
		Args:  coral.ExactArgs(1),
		RunE: func(_ *coral.Command, args []string) error {
			konf, err := load()
			if err != nil {
				return err
			}

			key, err := signingKey(konf)
			if err != nil {
				return err
			}

			now := time.Now()
			token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
				Subject:   args[0],
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			}).SignedString(key)
			if err != nil {
				return errors.Wrap(err, "could not sign token")
			}

			fmt.Println(token)
			return nil
		},
	}

	//
	//
	serverCmd = &coral.Command{
		Use:   "server",
		Short: "Start server",
		Args:  coral.ExactArgs(0),
		RunE: func(_ *coral.Command, _ []string) error {
			konf, err := load()
			if err != nil {
				return err
			}

			key, err := signingKey(konf)
			if err != nil {
				return err
			}

			db, err := open(konf)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			blobs := blobstore.New(db, konf.Bool("blob.fencing"))
			q := queue(konf, db, blobs)
			go q.Run(ctx, konf.Duration("sync.drain_interval"), konf.Duration("sync.cleanup_interval"))

			engine := server.EchoEngine(server.Controller{
				Version:       version,
				Database:      db,
				Queue:         q,
				Blobs:         blobs,
				Notifications: notify.NewHub(),
				SigningKey:    key,
			})
			engine.HideBanner = true
			server.PrintRoutes(engine)

			go func() {
				<-ctx.Done()
				shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := engine.Shutdown(shutdown); err != nil {
					logrus.WithError(err).Error("could not shutdown server")
				}
			}()

			address := konf.String("address")
			message := "could not run server"
			logrus.Infof("Server listening on %s", address)
			parts := strings.Split(address, ":")
			if len(parts) == 2 && parts[0] == "unix" {
				socketFile := parts[1]
				if _, err := os.Stat(socketFile); err == nil {
					logrus.Infof("Removing existing %s", socketFile)
					os.Remove(socketFile)
				}
				defer os.Remove(socketFile)
				listener, err := net.Listen(parts[0], socketFile)
				if err != nil {
					return err
				}
				err = engine.Server.Serve(listener)
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return errors.Wrap(err, message)
			}

			err = engine.Start(address)
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return errors.Wrap(err, message)
		},
	}
)
