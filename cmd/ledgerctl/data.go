package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"kartoteka-backend/internal/archive"
	"kartoteka-backend/internal/seed"
	"kartoteka-backend/internal/transfer"

	"github.com/google/subcommands"
)

type exportCmd struct {
	out string
	key string
}

func (*exportCmd) Name() string     { return "export" }
func (*exportCmd) Synopsis() string { return "export the whole dataset as a JSON document" }
func (*exportCmd) Usage() string {
	return `ledgerctl export [-o <file> | -archive <key>]

  Writes the bulk document to a file, to the configured archive store or,
  without flags, to stdout.
`
}

func (c *exportCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.out, "o", "", "output file")
	f.StringVar(&c.key, "archive", "", "archive key (ARCHIVE_DRIVER selects fs or s3)")
}

func (c *exportCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	svc, err := openServices()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	if c.key != "" {
		store, err := archive.Open(ctx, svc.cfg)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitFailure
		}
		doc, err := svc.codec.ExportTo(ctx, store, c.key)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitFailure
		}
		fmt.Fprintf(stdout, "exported %d products to %s\n", doc.Counts["productsCount"], c.key)
		return subcommands.ExitSuccess
	}

	doc, err := svc.codec.Export(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	if c.out == "" {
		if err := transfer.Encode(stdout, doc); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitFailure
		}
		return subcommands.ExitSuccess
	}

	f, err := os.Create(c.out)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	if err := transfer.Encode(f, doc); err != nil {
		f.Close()
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	if err := f.Close(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	fmt.Fprintf(stdout, "exported %d products to %s\n", doc.Counts["productsCount"], c.out)
	return subcommands.ExitSuccess
}

type importCmd struct {
	in  string
	key string
}

func (*importCmd) Name() string     { return "import" }
func (*importCmd) Synopsis() string { return "replace the whole dataset with a JSON document" }
func (*importCmd) Usage() string {
	return `ledgerctl import (-f <file> | -archive <key>)

  Deletes every product, ledger entry, recipe and meal plan and recreates
  them from the document. No backup is taken first.
`
}

func (c *importCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.in, "f", "", "input file")
	f.StringVar(&c.key, "archive", "", "archive key")
}

func (c *importCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if (c.in == "") == (c.key == "") {
		fmt.Fprintln(os.Stderr, "exactly one of -f and -archive is required")
		return subcommands.ExitUsageError
	}
	svc, err := openServices()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	var counts map[string]int
	if c.key != "" {
		store, err := archive.Open(ctx, svc.cfg)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitFailure
		}
		counts, err = svc.codec.ImportFrom(ctx, store, c.key)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitFailure
		}
	} else {
		f, err := os.Open(c.in)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitFailure
		}
		defer f.Close()
		doc, err := transfer.Decode(f)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", c.in, err)
			return subcommands.ExitFailure
		}
		counts, err = svc.codec.Import(ctx, doc)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitFailure
		}
	}
	fmt.Fprintf(stdout, "imported %d products, %d ledger entries, %d recipes, %d meal plans\n",
		counts["productsCount"], counts["ledgerEntriesCount"], counts["recipesCount"], counts["mealPlansCount"])
	return subcommands.ExitSuccess
}

type seedCmd struct {
	xlsx string
}

func (*seedCmd) Name() string     { return "seed" }
func (*seedCmd) Synopsis() string { return "load products and movements from a stock card workbook" }
func (*seedCmd) Usage() string {
	return `ledgerctl seed -xlsx <file>

  Creates the products listed on the workbook's summary sheet. Products
  already present are skipped.
`
}

func (c *seedCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.xlsx, "xlsx", "", "workbook path")
}

func (c *seedCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.xlsx == "" {
		fmt.Fprintln(os.Stderr, "-xlsx is required")
		return subcommands.ExitUsageError
	}
	svc, err := openServices()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	res, err := seed.LoadFile(ctx, svc.engine, c.xlsx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	fmt.Fprintf(stdout, "created %d products with %d ledger entries, skipped %d\n", res.Products, res.Entries, len(res.Skipped))
	for _, w := range res.Warnings {
		fmt.Fprintln(stdout, "warning:", w)
	}
	return subcommands.ExitSuccess
}
