// Package apperr defines the error kinds surfaced by the gateway and their HTTP statuses.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthorized
	KindForbidden
	KindQuotaExceeded
	KindInvalidSignature
	KindNotFound
	KindPaymentIncomplete
	KindUpstream
	KindStorage
)

var kindNames = map[Kind]string{
	KindInternal:          "internal_error",
	KindValidation:        "validation_error",
	KindUnauthorized:      "unauthorized",
	KindForbidden:         "forbidden",
	KindQuotaExceeded:     "quota_exceeded",
	KindInvalidSignature:  "invalid_signature",
	KindNotFound:          "not_found",
	KindPaymentIncomplete: "payment_incomplete",
	KindUpstream:          "upstream_error",
	KindStorage:           "storage_error",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[KindInternal]
}

// HTTPStatus maps a kind to the status code returned to clients.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation, KindInvalidSignature, KindPaymentIncomplete:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden, KindQuotaExceeded:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.message(), e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.message())
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.message(), e.Err)
	default:
		return e.message()
	}
}

func (e *Error) message() string {
	if e.Msg != "" {
		return e.Msg
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// PublicMessage is the text safe to return to API clients.
func (e *Error) PublicMessage() string {
	switch e.Kind {
	case KindUpstream:
		return "upstream provider request failed"
	case KindStorage, KindInternal:
		return "internal server error"
	default:
		return e.message()
	}
}

func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Msg: msg}
}

func Unauthorized(msg string) *Error {
	return &Error{Kind: KindUnauthorized, Msg: msg}
}

func Forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Msg: msg}
}

func NotFound(op, msg string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Msg: msg}
}

func InvalidSignature(err error) *Error {
	return &Error{Kind: KindInvalidSignature, Msg: "invalid webhook signature", Err: err}
}

func PaymentIncomplete(status string) *Error {
	return &Error{Kind: KindPaymentIncomplete, Msg: fmt.Sprintf("payment not completed (status %q)", status)}
}

func Upstream(op string, err error) *Error {
	return &Error{Kind: KindUpstream, Op: op, Err: err}
}

func Storage(op string, err error) *Error {
	return &Error{Kind: KindStorage, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
