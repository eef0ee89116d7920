// Package sptferr defines the stable numeric error contract shared by the
// HTTP endpoints and the live-connection protocol.
package sptferr

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Code is a numeric error code consumed by clients. The values are a wire
// contract and must not be renumbered.
type Code uint64

const (
	Unexpected              Code = 0x0
	NoUsername              Code = 0x1
	UnmatchedPassword       Code = 0x2
	WrongCookie             Code = 0x3
	UpdateAuthTokenFailed   Code = 0x4
	ValidateAuthTokenFailed Code = 0x5
	PermissionDenied        Code = 0x6
	WrongFormat             Code = 0x7
	UsernameExists          Code = 0x8
)

func (c Code) String() string {
	switch c {
	case Unexpected:
		return "unexpected"
	case NoUsername:
		return "no username"
	case UnmatchedPassword:
		return "unmatched password"
	case WrongCookie:
		return "wrong cookie"
	case UpdateAuthTokenFailed:
		return "update auth token failed"
	case ValidateAuthTokenFailed:
		return "validate auth token failed"
	case PermissionDenied:
		return "permission denied"
	case WrongFormat:
		return "wrong format"
	case UsernameExists:
		return "username exists"
	default:
		return fmt.Sprintf("unknown(%#x)", uint64(c))
	}
}

// Error carries a code plus an optional detail string. The detail is for
// server logs only; clients see the code and nothing else.
type Error struct {
	Code   Code
	Detail string
}

func New(code Code, detail string) *Error {
	return &Error{Code: code, Detail: detail}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Detail: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

// CodeOf extracts the numeric code from err, mapping anything that is not a
// *Error to Unexpected.
func CodeOf(err error) Code {
	if se, ok := err.(*Error); ok {
		return se.Code
	}
	return Unexpected
}

// WriteHTTP renders err as the `{"errorCode": n}` response body. The original
// protocol reports errors with a 200 status; clients dispatch on the code.
func WriteHTTP(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]uint64{"errorCode": uint64(CodeOf(err))})
}
