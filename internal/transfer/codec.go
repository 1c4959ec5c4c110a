// Package transfer exports the whole dataset as one JSON document and
// imports such a document in place of everything stored.
package transfer

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"kartoteka-backend/internal/apperr"
	"kartoteka-backend/internal/archive"
	"kartoteka-backend/internal/audit"
	"kartoteka-backend/internal/database"
	"kartoteka-backend/internal/dataset"
	"kartoteka-backend/internal/guard"
	"kartoteka-backend/internal/metrics"
	"kartoteka-backend/internal/models"

	"gorm.io/gorm"
)

type Codec struct {
	db    *gorm.DB
	guard *guard.Guard
	rec   metrics.Recorder
}

func New(db *gorm.DB, g *guard.Guard, rec metrics.Recorder) *Codec {
	if g == nil {
		g = guard.New()
	}
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Codec{db: db, guard: g, rec: rec}
}

// Export reads all nine tables in one repeatable-read transaction.
func (c *Codec) Export(ctx context.Context) (doc *Document, err error) {
	const op = "transfer.Export"
	defer metrics.Track(ctx, c.rec, op, time.Now(), &err)

	var set *dataset.Set
	err = database.Transaction(ctx, c.db, sql.LevelRepeatableRead, func(tx *gorm.DB) error {
		var err error
		set, err = dataset.Load(tx, dataset.All)
		return err
	})
	if err != nil {
		return nil, apperr.Storage(op, "", err)
	}
	return &Document{
		Version:    Version,
		ExportedAt: time.Now().UTC(),
		Entities:   *dataset.RowsOf(set),
		Counts:     set.Counts(),
	}, nil
}

// Import replaces every table with the document's rows, keeping their ids.
// It does not take a backup first. Either every row is written or nothing
// changes.
func (c *Codec) Import(ctx context.Context, doc *Document) (counts map[string]int, err error) {
	const op = "transfer.Import"
	defer metrics.Track(ctx, c.rec, op, time.Now(), &err)

	if doc == nil {
		return nil, apperr.Validation(op, "document is missing")
	}
	if err := doc.Entities.Validate(); err != nil {
		return nil, apperr.Validation(op, "%v", err)
	}
	set := doc.Entities.Set()

	unlock := c.guard.Exclusive()
	defer unlock()

	err = database.Transaction(ctx, c.db, sql.LevelSerializable, func(tx *gorm.DB) error {
		if err := dataset.Wipe(tx, dataset.All); err != nil {
			return err
		}
		if err := dataset.Insert(tx, set); err != nil {
			return err
		}
		return audit.WriteLog(ctx, tx, audit.LogOptions{
			EntityType:  "dataset",
			Action:      models.AuditActionImport,
			Description: fmt.Sprintf("imported document version %s", doc.Version),
			After:       set.Counts(),
		})
	})
	if err != nil {
		return nil, apperr.Storage(op, "", err)
	}
	return set.Counts(), nil
}

// ExportTo writes a fresh export to the archive under key.
func (c *Codec) ExportTo(ctx context.Context, store archive.Store, key string) (*Document, error) {
	const op = "transfer.ExportTo"
	doc, err := c.Export(ctx)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := Encode(&buf, doc); err != nil {
		return nil, apperr.Storage(op, key, err)
	}
	if err := store.Put(ctx, key, &buf); err != nil {
		return nil, apperr.Storage(op, key, err)
	}
	return doc, nil
}

// ImportFrom reads key from the archive and imports it.
func (c *Codec) ImportFrom(ctx context.Context, store archive.Store, key string) (map[string]int, error) {
	const op = "transfer.ImportFrom"
	rc, err := store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, archive.ErrNotFound) {
			return nil, apperr.NotFound(op, "archive object", key)
		}
		return nil, apperr.Storage(op, key, err)
	}
	defer rc.Close()

	doc, err := Decode(rc)
	if err != nil {
		return nil, apperr.Validation(op, "%s: %v", key, err)
	}
	return c.Import(ctx, doc)
}
