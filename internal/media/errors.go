package media

import (
	"errors"
	"fmt"
)

// Kind classifies an acquisition failure.
//
// Callers branch on the kind rather than on error text: detection treats
// every kind as "this distribution does not match", while the committed
// acquisition phase treats them all as fatal.
type Kind int

const (
	// KindUnknown is the zero value and never produced by this module.
	KindUnknown Kind = iota
	// KindNotFound means the requested path does not exist at the source.
	KindNotFound
	// KindUnreachable means the source could not be contacted or mounted.
	KindUnreachable
	// KindInvalidLocation means the install location failed preparation.
	KindInvalidLocation
	// KindDetection means no known distribution matched the location.
	KindDetection
	// KindSynthesis means a step of the initrd synthesis pipeline failed.
	KindSynthesis
	// KindUnsupported means the matched distribution cannot produce the artifact.
	KindUnsupported
	// KindInvalidMedia means a fetched artifact failed verification.
	KindInvalidMedia
)

// String returns the kind name used in error messages and logs.
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindUnreachable:
		return "unreachable"
	case KindInvalidLocation:
		return "invalid location"
	case KindDetection:
		return "detection failed"
	case KindSynthesis:
		return "synthesis failed"
	case KindUnsupported:
		return "unsupported"
	case KindInvalidMedia:
		return "invalid media"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is matching. Any *Error of the same kind matches.
var (
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrUnreachable     = &Error{Kind: KindUnreachable}
	ErrInvalidLocation = &Error{Kind: KindInvalidLocation}
	ErrDetection       = &Error{Kind: KindDetection}
	ErrSynthesis       = &Error{Kind: KindSynthesis}
	ErrUnsupported     = &Error{Kind: KindUnsupported}
	ErrInvalidMedia    = &Error{Kind: KindInvalidMedia}
)

// Error is the structured error returned by fetchers, stores and the
// synthesis pipeline.
type Error struct {
	Kind Kind   // Failure classification
	Op   string // Operation that failed, e.g. "acquire", "prepare", "depmod"
	Path string // Location or relative path involved, if any
	Err  error  // Underlying cause, may be nil
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Path != "" {
		msg += " (" + e.Path + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	return KindUnknown
}

// IsNotFound reports whether err carries KindNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// NotFound builds a KindNotFound error.
func NotFound(op, path string, err error) error {
	return &Error{Kind: KindNotFound, Op: op, Path: path, Err: err}
}

// Unreachable builds a KindUnreachable error.
func Unreachable(op, path string, err error) error {
	return &Error{Kind: KindUnreachable, Op: op, Path: path, Err: err}
}

// Synthesis builds a KindSynthesis error for a pipeline step.
func Synthesis(step string, err error) error {
	return &Error{Kind: KindSynthesis, Op: step, Err: err}
}

// Synthesisf builds a KindSynthesis error with a formatted cause.
func Synthesisf(step, format string, args ...any) error {
	return &Error{Kind: KindSynthesis, Op: step, Err: fmt.Errorf(format, args...)}
}

// Unsupported builds a KindUnsupported error naming the store and operation.
func Unsupported(store, op string) error {
	return &Error{Kind: KindUnsupported, Op: op, Err: fmt.Errorf("%s does not provide this artifact", store)}
}
