package dispatch

import (
	"errors"

	"github.com/kiranshivaraju/fielddispatch/internal/store"
	"github.com/kiranshivaraju/fielddispatch/pkg/models"
)

// Kind classifies service errors for callers such as the HTTP layer.
type Kind int

const (
	KindNotFound Kind = iota + 1
	KindInvalidOperation
	KindConflict
	KindValidation
)

// Error is a client-facing service error. Message is safe to show to users.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]string
}

func (e *Error) Error() string { return e.Message }

// Is matches the bare sentinels below by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Message == "" && t.Kind == e.Kind
}

var (
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrInvalidOperation = &Error{Kind: KindInvalidOperation}
	ErrConflict         = &Error{Kind: KindConflict}
	ErrValidation       = &Error{Kind: KindValidation}
)

func notFound(entity string) *Error {
	return &Error{Kind: KindNotFound, Message: entity + " not found"}
}

func invalidOperation(msg string) *Error {
	return &Error{Kind: KindInvalidOperation, Message: msg}
}

func conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Message: msg}
}

func validation(fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: "Validation failed", Fields: fields}
}

// notFoundAs converts store.ErrNotFound into a NotFound error for entity.
func notFoundAs(err error, entity string) error {
	if errors.Is(err, store.ErrNotFound) {
		return notFound(entity)
	}
	return err
}

// capacityError maps a vendor ledger refusal to its user-facing message.
func capacityError(err error) error {
	switch {
	case errors.Is(err, models.ErrVendorInactive):
		return invalidOperation("Cannot assign an inactive vendor")
	case errors.Is(err, models.ErrVendorAtCapacity):
		return invalidOperation("Vendor is at full capacity")
	default:
		return err
	}
}
