// Package server contains misc server utilities shared by the HTTP surfaces:
// JSON payload shapes and error replies.
package server

import (
	"encoding/json"
	"errors"
	"go/types"
	"net/http"
)

// BoolT is a struct with a single Bool field
type BoolT struct {
	Bool bool `json:"bool"`
}

// IntT is a struct with a single Int field
type IntT struct {
	Int int `json:"int"`
}

// StrT is a struct with a single Str field
type StrT struct {
	Str string `json:"str"`
}

// HumanPayload is a struct containing the basic types the HTTP surface
// replies with.  T selects which field is encoded.
type HumanPayload struct {
	// T is the type of the payload
	T types.BasicKind

	// Bool holds a bool
	Bool bool

	// Int holds an int
	Int int

	// String holds a string
	String string
}

// EncodeAndRespond writes the payload as {"bool"|"int"|"str": value}
func (hp HumanPayload) EncodeAndRespond(w http.ResponseWriter, r *http.Request) {
	var v interface{}
	switch hp.T {
	case types.Bool:
		v = BoolT{Bool: hp.Bool}
	case types.Int:
		v = IntT{Int: hp.Int}
	case types.String:
		v = StrT{Str: hp.String}
	default:
		http.Error(w, "unsupported payload type", http.StatusInternalServerError)
		return
	}
	ReplyJSON(w, v)
}

// ReplyJSON encodes v as the JSON body of a 200 response
func ReplyJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	// the header is already out, an encoding error cannot be reported
	_ = json.NewEncoder(w).Encode(v)
}

// StatusError carries the HTTP status an error is reported with
type StatusError struct {
	Code int
	Err  error
}

func (e StatusError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying error
func (e StatusError) Unwrap() error {
	return e.Err
}

// ReplyError writes err with the status carried by a StatusError in its
// chain, or 500
func ReplyError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	var se StatusError
	if errors.As(err, &se) {
		code = se.Code
	}
	http.Error(w, err.Error(), code)
}
