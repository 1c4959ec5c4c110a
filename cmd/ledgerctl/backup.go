package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/subcommands"
)

type backupCmd struct {
	description string
}

func (*backupCmd) Name() string     { return "backup" }
func (*backupCmd) Synopsis() string { return "take a backup of products, ledgers and recipes" }
func (*backupCmd) Usage() string {
	return `ledgerctl backup [-d <description>]
`
}

func (c *backupCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.description, "d", "", "description (default \"Automatic backup\")")
}

func (c *backupCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	svc, err := openServices()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	info, err := svc.snaps.CreateSnapshot(ctx, c.description)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	fmt.Fprintf(stdout, "backup %s created\n", info.ID)
	return subcommands.ExitSuccess
}

type backupsCmd struct{}

func (*backupsCmd) Name() string           { return "backups" }
func (*backupsCmd) Synopsis() string       { return "list backups, newest first" }
func (*backupsCmd) Usage() string          { return "ledgerctl backups\n" }
func (*backupsCmd) SetFlags(*flag.FlagSet) {}

func (*backupsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	svc, err := openServices()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	list, err := svc.snaps.ListSnapshots(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCREATED\tDESCRIPTION")
	for _, b := range list {
		desc := ""
		if b.Description != nil {
			desc = *b.Description
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", b.ID, b.CreatedAt.Local().Format(time.DateTime), desc)
	}
	w.Flush()
	return subcommands.ExitSuccess
}

type restoreCmd struct {
	id string
}

func (*restoreCmd) Name() string     { return "restore" }
func (*restoreCmd) Synopsis() string { return "replace products, ledgers and recipes with a backup" }
func (*restoreCmd) Usage() string {
	return `ledgerctl restore -id <backup id>
`
}

func (c *restoreCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.id, "id", "", "backup id")
}

func (c *restoreCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.id == "" {
		fmt.Fprintln(os.Stderr, "-id is required")
		return subcommands.ExitUsageError
	}
	svc, err := openServices()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	res, err := svc.snaps.RestoreSnapshot(ctx, c.id)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	fmt.Fprintf(stdout, "restored %d products and %d ledger entries; %d meal plan links kept, %d dropped\n",
		res.Products, res.LedgerEntries, res.MealLinksKept, res.MealLinksDropped)
	return subcommands.ExitSuccess
}

type pruneCmd struct {
	keep int
}

func (*pruneCmd) Name() string     { return "prune" }
func (*pruneCmd) Synopsis() string { return "delete all but the newest backups" }
func (*pruneCmd) Usage() string {
	return `ledgerctl prune -keep <n>
`
}

func (c *pruneCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.keep, "keep", -1, "number of backups to keep (defaults to BACKUP_RETENTION)")
}

func (c *pruneCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	svc, err := openServices()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	keep := c.keep
	if keep < 0 {
		keep = svc.snaps.Retention()
	}
	n, err := svc.snaps.EnforceRetention(ctx, keep)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	fmt.Fprintf(stdout, "deleted %d backups\n", n)
	return subcommands.ExitSuccess
}
