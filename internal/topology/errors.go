package topology

import (
	"errors"
	"fmt"
)

// Kind classifies a topology error for the boundary layer.
type Kind int

const (
	KindUnknown Kind = iota
	// KindApplicationParse means a stored application could not be turned into a view.
	KindApplicationParse
	KindApplicationNotFound
	KindServiceNotFound
	// KindInvalidApplicationData means the application input itself is unusable.
	KindInvalidApplicationData
	// KindServiceNotEditable means a write targeted a provider-owned service.
	KindServiceNotEditable
	// KindServiceConflict means the service name is already taken in the tenant.
	KindServiceConflict
	// KindApplicationConflict means the application id is already taken.
	KindApplicationConflict
)

func (k Kind) String() string {
	switch k {
	case KindApplicationParse:
		return "application_parse"
	case KindApplicationNotFound:
		return "application_not_found"
	case KindServiceNotFound:
		return "service_not_found"
	case KindInvalidApplicationData:
		return "invalid_application_data"
	case KindServiceNotEditable:
		return "service_not_editable"
	case KindServiceConflict:
		return "service_conflict"
	case KindApplicationConflict:
		return "application_conflict"
	default:
		return "unknown"
	}
}

// Refs used on not-found errors to say which lookup failed.
const (
	RefSource = "source"
	RefTarget = "target"
	RefName   = "name"
	RefMember = "member"
)

// Error is returned by every topology operation that fails for a caller or
// data reason. Infrastructure failures are returned wrapped, not as *Error.
type Error struct {
	Kind Kind
	Ref  string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind, so the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Msg == "" && t.Ref == ""
}

var (
	ErrApplicationParse       = &Error{Kind: KindApplicationParse}
	ErrApplicationNotFound    = &Error{Kind: KindApplicationNotFound}
	ErrServiceNotFound        = &Error{Kind: KindServiceNotFound}
	ErrInvalidApplicationData = &Error{Kind: KindInvalidApplicationData}
	ErrServiceNotEditable     = &Error{Kind: KindServiceNotEditable}
	ErrServiceConflict        = &Error{Kind: KindServiceConflict}
	ErrApplicationConflict    = &Error{Kind: KindApplicationConflict}
)

// KindOf reports the Kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindUnknown
}

func newError(kind Kind, ref, format string, args ...any) *Error {
	return &Error{Kind: kind, Ref: ref, Msg: fmt.Sprintf(format, args...)}
}

func serviceNotFound(ref string, format string, args ...any) *Error {
	return newError(KindServiceNotFound, ref, format, args...)
}
