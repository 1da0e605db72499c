package errors

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type Code codes.Code

const (
	CodeInvalidArgument    = Code(codes.InvalidArgument)
	CodeNotFound           = Code(codes.NotFound)
	CodeAlreadyExists      = Code(codes.AlreadyExists)
	CodeFailedPrecondition = Code(codes.FailedPrecondition)
	CodeAborted            = Code(codes.Aborted)
	CodeUnavailable        = Code(codes.Unavailable)
	CodeInternal           = Code(codes.Internal)
	CodeUnauthenticated    = Code(codes.Unauthenticated)
)

var code2http = map[Code]int{
	CodeInvalidArgument:    http.StatusBadRequest,
	CodeNotFound:           http.StatusNotFound,
	CodeAlreadyExists:      http.StatusConflict,
	CodeFailedPrecondition: http.StatusConflict,
	CodeAborted:            http.StatusConflict,
	CodeUnavailable:        http.StatusServiceUnavailable,
	CodeInternal:           http.StatusInternalServerError,
	CodeUnauthenticated:    http.StatusUnauthorized,
}

// Kind classifies failures of the answer workflow. The zero value is an unclassified error.
type Kind uint8

const (
	KindUnknown Kind = iota
	// KindValidation means the user's input was rejected before any external call.
	KindValidation
	// KindParse means the AI reply could not be decoded into a rating and feedback.
	KindParse
	// KindService means an external service (AI, recognizer, store) was unreachable or failed.
	KindService
	// KindPersistence means the answer record could not be written.
	KindPersistence
)

var kindNames = map[Kind]string{
	KindValidation:  "validation",
	KindParse:       "parse",
	KindService:     "service",
	KindPersistence: "persistence",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

type Error struct {
	Code    Code   `json:"code"`
	Kind    Kind   `json:"kind,omitempty"`
	Message string `json:"message"`
	err     error
}

func New(code Code, opts ...Option) *Error {
	e := &Error{
		Code:    code,
		Message: codes.Code(code).String(),
	}

	for _, opt := range opts {
		opt.apply(e)
	}

	return e
}

func (e *Error) Error() string {
	s := fmt.Sprintf("code: %d, message: %s", e.Code, e.Message)
	if e.Kind != KindUnknown {
		s += fmt.Sprintf(", kind: %s", e.Kind)
	}
	if e.err != nil {
		s += fmt.Sprintf(", err: %s", e.err)
	}

	return s
}

func (e *Error) Unwrap() error {
	return e.err
}

func (e *Error) GRPCStatus() *status.Status {
	return status.New(codes.Code(e.Code), e.Message)
}

func (e *Error) HTTPStatusCode() int {
	if c, ok := code2http[e.Code]; ok {
		return c
	}

	return http.StatusInternalServerError
}

func Convert(err error) *Error {
	var e *Error
	if !errors.As(err, &e) {
		return Internal(err)
	}

	return e
}

// KindOf returns the workflow kind of err, or KindUnknown when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if !errors.As(err, &e) {
		return KindUnknown
	}

	return e.Kind
}

// IsScoringFailure reports whether err should be shown as "scoring failed".
func IsScoringFailure(err error) bool {
	k := KindOf(err)
	return k == KindParse || k == KindService
}

func Internal(err error) *Error {
	return New(CodeInternal, WithCause(err))
}

// Validation rejects user input with a message meant to be shown as is.
func Validation(msg string) *Error {
	return New(CodeInvalidArgument, WithKind(KindValidation), WithMessagef("%s", msg))
}

// Parse reports an AI reply that is not the expected JSON object.
func Parse(err error) *Error {
	return New(CodeUnavailable,
		WithKind(KindParse),
		WithMessagef("An error occurred while generating feedback."),
		WithCause(err),
	)
}

// Service reports an unavailable external collaborator.
func Service(err error) *Error {
	return New(CodeUnavailable,
		WithKind(KindService),
		WithMessagef("An error occurred while generating feedback."),
		WithCause(err),
	)
}

// Persistence reports a failed answer write.
func Persistence(err error) *Error {
	return New(CodeUnavailable,
		WithKind(KindPersistence),
		WithMessagef("An error occurred while saving your answer."),
		WithCause(err),
	)
}

type Option interface {
	apply(*Error)
}

type optionFunc func(*Error)

func (f optionFunc) apply(e *Error) {
	f(e)
}

func WithCause(err error) Option {
	return optionFunc(func(e *Error) {
		e.err = err
	})
}

func WithMessagef(format string, args ...any) Option {
	return optionFunc(func(e *Error) {
		e.Message = fmt.Sprintf(format, args...)
	})
}

func WithKind(k Kind) Option {
	return optionFunc(func(e *Error) {
		e.Kind = k
	})
}
