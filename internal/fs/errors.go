package fs

import (
	"errors"
	iofs "io/fs"
)

// Kind classifies a gateway failure.
type Kind string

// Failure kinds reported by every gateway operation.
const (
	KindOutOfScope        Kind = "out_of_scope"
	KindModeForbidden     Kind = "mode_forbidden"
	KindMissingField      Kind = "missing_field"
	KindNotFound          Kind = "not_found"
	KindAlreadyExists     Kind = "already_exists"
	KindWrongKind         Kind = "wrong_kind"
	KindRemoteFetchFailed Kind = "remote_fetch_failed"
	KindUnexpected        Kind = "unexpected"
)

// Error is the only error type that leaves the gateway. Msg is safe to show
// to the user; Err keeps the underlying cause for logs.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Op + " " + e.Path + ": " + e.Err.Error()
	}
	return e.Op + " " + e.Path + ": " + string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err, or KindUnexpected for errors that did not
// come from the gateway.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnexpected
}

func newError(kind Kind, op, path, msg string) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Msg: msg}
}

// classify converts an OS error into a gateway error.
func classify(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return err
	}
	switch {
	case errors.Is(err, iofs.ErrNotExist):
		return &Error{Kind: KindNotFound, Op: op, Path: path, Msg: "Item does not exist", Err: err}
	case errors.Is(err, iofs.ErrExist):
		return &Error{Kind: KindAlreadyExists, Op: op, Path: path, Msg: "An item with this name already exists", Err: err}
	default:
		return &Error{Kind: KindUnexpected, Op: op, Path: path, Msg: "Failed to " + op + " " + path, Err: err}
	}
}
