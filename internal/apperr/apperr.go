// Package apperr is the error taxonomy shared by the ledger, snapshot and
// transfer packages. Business errors (validation, not found, insufficient
// stock, conflict) go back to the caller as-is; storage errors are logged
// once, when they are wrapped, with the operation and entity id.
package apperr

import (
	"errors"
	"fmt"
	"log"

	"gorm.io/gorm"
)

type Kind string

const (
	KindValidation        Kind = "validation"
	KindNotFound          Kind = "not_found"
	KindInsufficientStock Kind = "insufficient_stock"
	KindConflict          Kind = "conflict"
	KindStorage           Kind = "storage"
)

type Error struct {
	Kind     Kind
	Op       string // e.g. "ledger.AppendEntry"
	EntityID string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.EntityID != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.EntityID, msg)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(op, format string, args ...any) error {
	return &Error{Kind: KindValidation, Op: op, Message: fmt.Sprintf(format, args...)}
}

func NotFound(op, entity, id string) error {
	return &Error{Kind: KindNotFound, Op: op, EntityID: id, Message: entity + " not found"}
}

func InsufficientStock(op, productID string, message string) error {
	return &Error{Kind: KindInsufficientStock, Op: op, EntityID: productID, Message: message}
}

func Conflict(op, format string, args ...any) error {
	return &Error{Kind: KindConflict, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Storage wraps an unexpected datastore failure. Errors that already carry a
// kind pass through untouched so a business error raised inside a
// transaction callback keeps its meaning after the rollback.
func Storage(op, entityID string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return &Error{Kind: KindNotFound, Op: op, EntityID: entityID, Message: "record not found"}
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return &Error{Kind: KindConflict, Op: op, EntityID: entityID, Message: "duplicate key", Err: err}
	}
	log.Printf("[ERROR] %s entity=%q: %v", op, entityID, err)
	return &Error{Kind: KindStorage, Op: op, EntityID: entityID, Message: "storage failure", Err: err}
}

// KindOf reports the kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func IsValidation(err error) bool        { return KindOf(err) == KindValidation }
func IsNotFound(err error) bool          { return KindOf(err) == KindNotFound }
func IsInsufficientStock(err error) bool { return KindOf(err) == KindInsufficientStock }
func IsConflict(err error) bool          { return KindOf(err) == KindConflict }
func IsStorage(err error) bool           { return KindOf(err) == KindStorage }
