// Package errs defines the broker's error taxonomy: one family per
// subsystem, each variant carrying a human message and the source
// location of the call that raised it. The pattern mirrors
// github.com/juju/errors, which stamps every constructed error with its
// caller's file and line; a column slot is kept alongside it, populated
// as 0 since the Go runtime does not report caller columns.
package errs

import (
	"fmt"
	"runtime"
)

// Location is the file:line:column triple captured at the call site of
// an error constructor.
type Location struct {
	File   string
	Line   int
	Column int
}

func (l Location) String() string {
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
}

func here(skip int) Location {
	_, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return Location{File: "unknown", Line: 0}
	}
	return Location{File: file, Line: line}
}

// Family identifies which subsystem raised an error.
type Family string

const (
	FamilyDiscovery  Family = "Discovery"
	FamilySpawn      Family = "Spawn"
	FamilyIPC        Family = "IPC"
	FamilyHTTPClient Family = "HTTPClient"
	FamilyConfig     Family = "Config"
	FamilyAuthSync   Family = "AuthSync"
	FamilyValidation Family = "Validation"
)

// Error is the concrete type behind every family's errors. It is
// never constructed directly outside this package; use the
// constructor functions (New, Newf, Wrap) below, which take the family
// as their first argument.
type Error struct {
	Family  Family
	Variant string
	Message string
	Loc     Location
	Source  error

	// Detail carries an optional structured payload alongside Message,
	// for callers that want to branch on more than a variant string.
	Detail interface{}

	// Retry-relevant metadata. Any family may carry it; IsRetryable
	// consults it only on FamilyAuthSync.
	httpStatus   int
	hasHTTP      bool
	isTimeout    bool
	isConnection bool
}

func (e *Error) Error() string {
	s := fmt.Sprintf("%s %s: %s [%s]", e.Family, e.Variant, e.Message, e.Loc)
	if e.Source != nil {
		s += ": " + e.Source.Error()
	}
	return s
}

// Unwrap exposes the wrapped source error for errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.Source }

// Is allows matching on family+variant with errors.Is(err, errs.Sentinel(...)).
func (e *Error) Is(target error) bool {
	o, ok := target.(*Error)
	if !ok {
		return false
	}
	if o.Message != "" && o.Message != e.Message {
		return false
	}
	return o.Family == e.Family && o.Variant == e.Variant
}

// Sentinel builds a comparison-only error for use with errors.Is; its
// Location and Source are irrelevant to the comparison.
func Sentinel(family Family, variant string) error {
	return &Error{Family: family, Variant: variant}
}

func newErr(skip int, family Family, variant, msg string, source error) *Error {
	return &Error{
		Family:  family,
		Variant: variant,
		Message: msg,
		Loc:     here(skip + 1),
		Source:  source,
	}
}

// New constructs a located error for the given family and variant. The
// captured location is that of New's caller, not New itself — callers
// are expected to call this directly from the site they want recorded,
// mirroring juju/errors' caller-depth convention.
func New(family Family, variant, msg string) *Error {
	return newErr(1, family, variant, msg, nil)
}

// Newf is New with fmt.Sprintf-style formatting.
func Newf(family Family, variant, format string, args ...interface{}) *Error {
	return newErr(1, family, variant, fmt.Sprintf(format, args...), nil)
}

// Wrap constructs a located error that chains an underlying cause.
func Wrap(family Family, variant, msg string, source error) *Error {
	return newErr(1, family, variant, msg, source)
}

// WithHTTPStatus attaches a numeric HTTP status to e for retryability
// classification. Returns e for chaining.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.httpStatus = status
	e.hasHTTP = true
	return e
}

// WithNetworkFlags attaches explicit network-layer retry signals.
func (e *Error) WithNetworkFlags(isTimeout, isConnection bool) *Error {
	e.isTimeout = isTimeout
	e.isConnection = isConnection
	return e
}

// WithDetail attaches a structured payload to Detail. Returns e for
// chaining.
func (e *Error) WithDetail(d interface{}) *Error {
	e.Detail = d
	return e
}

// HTTPStatus returns the status attached via WithHTTPStatus and whether
// one was ever attached.
func (e *Error) HTTPStatus() (int, bool) {
	return e.httpStatus, e.hasHTTP
}

// NetworkFlags returns the network-layer retry signals attached via
// WithNetworkFlags.
func (e *Error) NetworkFlags() (isTimeout, isConnection bool) {
	return e.isTimeout, e.isConnection
}
