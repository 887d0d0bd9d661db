package store

import "errors"

// Kind classifies a StoreError, per spec §4.1's failure semantics.
type Kind int

const (
	KindNotFound Kind = iota
	KindConstraintViolation
	KindSerialization
	KindIO
)

// Error is the single error type every Store operation fails with. For a
// unique-name KindConstraintViolation the Store sets Err to the domain error
// (e.g. ErrProjectNameExists), so errors.Is finds it through Unwrap; the
// Mutation API passes the error on unchanged.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return e.Detail + ": " + e.Err.Error()
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(kind Kind, detail string, err error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: err}
}

// NotFound wraps err as a KindNotFound StoreError.
func NotFound(detail string, err error) *Error { return newErr(KindNotFound, detail, err) }

// ConstraintViolation wraps err as a KindConstraintViolation StoreError.
func ConstraintViolation(detail string, err error) *Error {
	return newErr(KindConstraintViolation, detail, err)
}

// Serialization wraps err as a KindSerialization StoreError. Mutate returns
// this kind when a commit fails; no caller retries the transaction.
func Serialization(detail string, err error) *Error {
	return newErr(KindSerialization, detail, err)
}

// IO wraps err as a KindIO StoreError.
func IO(detail string, err error) *Error { return newErr(KindIO, detail, err) }

// Is reports whether err is a StoreError of the given kind.
func Is(err error, kind Kind) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}

// ErrProjectNameExists is the domain-level error the Store wraps in a
// KindConstraintViolation when a project name is already taken; the Mutation
// API returns it to callers.
var ErrProjectNameExists = errors.New("PROJECT_NAME_EXISTS")

// ErrTemplateNameExists is the domain-level error for duplicate template names.
var ErrTemplateNameExists = errors.New("TEMPLATE_NAME_EXISTS")

// ErrIdempotencyKeyExists is returned when an outbox insert collides on its
// unique idempotency_key (spec invariant 4).
var ErrIdempotencyKeyExists = errors.New("IDEMPOTENCY_KEY_EXISTS")
