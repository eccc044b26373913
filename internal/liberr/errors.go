package liberr

import (
	"fmt"

	"github.com/pkg/errors"
)

type Kind string

const (
	KindNotFound     Kind = "NOT_FOUND"
	KindOutOfStock   Kind = "OUT_OF_STOCK"
	KindInvalidState Kind = "INVALID_STATE"
	KindValidation   Kind = "VALIDATION_ERROR"
	KindForbidden    Kind = "FORBIDDEN"
)

// Error carries the kind plus the ids involved; presentation text is up to the caller.
type Error struct {
	Kind Kind
	Op   string // e.g. "loans.Return"
	ID   string
	Msg  string
}

func (e *Error) Error() string {
	s := e.Op + ": " + string(e.Kind)
	if e.ID != "" {
		s += " id=" + e.ID
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	return s
}

// Is makes errors.Is(err, &Error{Kind: k}) match on kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.ID == "" || t.ID == e.ID)
}

func New(kind Kind, op, id, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, ID: id, Msg: fmt.Sprintf(format, args...)}
}

func NotFound(op, id string) *Error {
	return &Error{Kind: KindNotFound, Op: op, ID: id}
}

func OutOfStock(op, bookID string, active, copies int) *Error {
	return New(KindOutOfStock, op, bookID, "%d of %d copies borrowed", active, copies)
}

func InvalidState(op, id string, from, to any) *Error {
	return New(KindInvalidState, op, id, "cannot move from %v to %v", from, to)
}

func Validation(op, id, field string) *Error {
	return New(KindValidation, op, id, "missing %s", field)
}

func Forbidden(op, id, actor string) *Error {
	return New(KindForbidden, op, id, "actor %s not allowed", actor)
}

// KindOf unwraps err (including pkg/errors causes) and returns its kind, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func IsKind(err error, k Kind) bool { return KindOf(err) == k }
