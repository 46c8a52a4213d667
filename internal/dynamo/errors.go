package dynamo

import (
	"errors"
	"fmt"
)

// Code is the stable numeric identifier of a simulation failure.
type Code int

const (
	CodeSyntax         Code = 1000
	CodeType           Code = 1001
	CodeUnits          Code = 1002
	CodeAddUnits       Code = 1003
	CodeIndex          Code = 1004
	CodeReference      Code = 1005
	CodeArguments      Code = 1006
	CodeConverter      Code = 1007
	CodePlaceholder    Code = 1008
	CodeConfig         Code = 1009
	CodeCircular       Code = 1010
	CodeSSD            Code = 1011
	CodeStop           Code = 1012
	CodeAssert         Code = 1013
	CodeMissing        Code = 1014
	CodeTransitionLoop Code = 1015
	CodeThrow          Code = 1016
	CodePlacement      Code = 1017
	CodeConstraint     Code = 1018
)

// Domain errors for simulation operations.
var (
	// ErrBooleanArithmetic is raised when a boolean reaches an arithmetic operator.
	ErrBooleanArithmetic = errors.New("Cannot convert Booleans to Numbers")

	// ErrAddUnits is raised when units are attached to a non-numeric value.
	ErrAddUnits = errors.New("Cannot add units")

	// ErrStopped signals a Stop() request from a model equation.
	ErrStopped = errors.New("dynamo: simulation stopped")

	// ErrFinished is returned by stepping a run that already completed.
	ErrFinished = errors.New("dynamo: simulation already finished")
)

// Error wraps a failure with its code and the primitive it originated from.
type Error struct {
	Code          Code
	Message       string
	PrimitiveID   string
	PrimitiveName string
	Wrapped       error
}

// Errorf builds a coded error.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds a coded error around err, keeping err reachable via errors.Is.
func Wrap(code Code, err error) *Error {
	return &Error{Code: code, Message: err.Error(), Wrapped: err}
}

func (e *Error) Error() string {
	if e.PrimitiveName != "" {
		return fmt.Sprintf("%s (in [%s])", e.Message, e.PrimitiveName)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Wrapped
}

// Attributed reports whether the error already names a primitive.
func (e *Error) Attributed() bool {
	return e.PrimitiveID != ""
}

// Payload is the structured failure form handed to asynchronous callers.
type Payload struct {
	Message       string `json:"message"`
	Code          Code   `json:"code"`
	PrimitiveID   string `json:"primitiveId,omitempty"`
	PrimitiveName string `json:"primitiveName,omitempty"`
}

func (e *Error) Payload() *Payload {
	return &Payload{
		Message:       e.Message,
		Code:          e.Code,
		PrimitiveID:   e.PrimitiveID,
		PrimitiveName: e.PrimitiveName,
	}
}

// Attribute tags err with a primitive unless it already names one.
// Non-coded errors are wrapped with fallback.
func Attribute(err error, fallback Code, id, name string) error {
	if err == nil {
		return nil
	}
	var de *Error
	if !errors.As(err, &de) {
		de = Wrap(fallback, err)
	}
	if de.Attributed() {
		return de
	}
	cp := *de
	cp.PrimitiveID = id
	cp.PrimitiveName = name
	return &cp
}

// PayloadOf converts any error into its structured form.
func PayloadOf(err error) *Payload {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Payload()
	}
	return &Payload{Message: err.Error()}
}

// CodeOf returns the code carried by err, or 0.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return 0
}
