package types

import "errors"

// Kind classifies a failed operation so callers can decide how to surface it.
type Kind string

const (
	KindAuth       Kind = "auth"       // bad credentials or signup conflict
	KindFetch      Kind = "fetch"      // listing/loading posts
	KindCreate     Kind = "create"     // creating a draft
	KindSave       Kind = "save"       // autosave / manual save
	KindPublish    Kind = "publish"    // status transition
	KindDelete     Kind = "delete"     // delete other than 404
	KindGeneration Kind = "generation" // stream could not start or broke mid-stream
)

// Error is the error returned by store operations. Error() is the
// human-readable message meant to be rendered inline next to a control.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind) + " failed"
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches a sentinel of the same kind (a *Error with no wrapped error).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Err != nil {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrAuth       = &Error{Kind: KindAuth}
	ErrFetch      = &Error{Kind: KindFetch}
	ErrCreate     = &Error{Kind: KindCreate}
	ErrSave       = &Error{Kind: KindSave}
	ErrPublish    = &Error{Kind: KindPublish}
	ErrDelete     = &Error{Kind: KindDelete}
	ErrGeneration = &Error{Kind: KindGeneration}
)

// Wrap tags err with a kind and operation name. Wrap(kind, op, nil) is nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) && existing.Kind == kind {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the outermost *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
