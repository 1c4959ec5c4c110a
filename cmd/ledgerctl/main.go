// Command ledgerctl runs ledger maintenance against the configured
// database: bulk export and import, backups, recompute and verify, and the
// workbook seed.
package main

import (
	"context"
	"flag"
	"io"
	"os"
	"path"

	"kartoteka-backend/internal/audit"
	"kartoteka-backend/internal/config"
	"kartoteka-backend/internal/database"
	"kartoteka-backend/internal/guard"
	"kartoteka-backend/internal/ledger"
	"kartoteka-backend/internal/snapshot"
	"kartoteka-backend/internal/transfer"

	"github.com/google/subcommands"
	"gorm.io/gorm"
)

const actor = "ledgerctl"

var stdout io.Writer = os.Stdout

type services struct {
	cfg    *config.Config
	db     *gorm.DB
	engine *ledger.Engine
	snaps  *snapshot.Manager
	codec  *transfer.Codec
}

func newServices(cfg *config.Config, db *gorm.DB) *services {
	g := guard.New()
	return &services{
		cfg:    cfg,
		db:     db,
		engine: ledger.New(db, g, nil),
		snaps:  snapshot.New(db, g, nil, cfg.BackupRetention),
		codec:  transfer.New(db, g, nil),
	}
}

// openServices is replaced in tests.
var openServices = func() (*services, error) {
	cfg := config.Load()
	db, err := database.Open(cfg.DatabaseDSN, cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		return nil, err
	}
	return newServices(cfg, db), nil
}

func register(c *subcommands.Commander) {
	c.Register(c.HelpCommand(), "")
	c.Register(c.FlagsCommand(), "")

	c.Register(&exportCmd{}, "data")
	c.Register(&importCmd{}, "data")
	c.Register(&seedCmd{}, "data")

	c.Register(&backupCmd{}, "backups")
	c.Register(&backupsCmd{}, "backups")
	c.Register(&restoreCmd{}, "backups")
	c.Register(&pruneCmd{}, "backups")

	c.Register(&recomputeCmd{}, "ledger")
	c.Register(&verifyCmd{}, "ledger")
}

func run(ctx context.Context, fs *flag.FlagSet, name string, args []string) subcommands.ExitStatus {
	commander := subcommands.NewCommander(fs, name)
	register(commander)
	if err := fs.Parse(args); err != nil {
		return subcommands.ExitUsageError
	}
	return commander.Execute(audit.WithActor(ctx, actor))
}

func main() {
	os.Exit(int(run(context.Background(), flag.CommandLine, path.Base(os.Args[0]), os.Args[1:])))
}
