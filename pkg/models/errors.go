package models

import (
	"errors"
	"fmt"
)

var (
	ErrBadRequest        = errors.New("bad request")
	ErrDecode            = errors.New("decode error")
	ErrInference         = errors.New("inference error")
	ErrDimensionMismatch = errors.New("dimension mismatch")
	ErrDurability        = errors.New("durability error")
	ErrInvalidQuery      = errors.New("invalid query")
)

// wrapped lets errors.Is match both the category sentinel and the cause.
func wrapped(sentinel, original error) []error {
	if original == nil {
		return []error{sentinel}
	}
	return []error{sentinel, original}
}

/* BadRequestError */

type BadRequestError struct {
	Message string
}

func (e *BadRequestError) Error() string {
	return fmt.Sprintf("bad request: %s", e.Message)
}

func (*BadRequestError) Unwrap() error {
	return ErrBadRequest
}

func NewBadRequestError(message string) error {
	return &BadRequestError{Message: message}
}

/* DecodeError: the input image could not be decoded. */

type DecodeError struct {
	Message       string
	OriginalError error
}

func (e *DecodeError) Error() string {
	if e.OriginalError == nil {
		return fmt.Sprintf("decode error: %s", e.Message)
	}
	return fmt.Sprintf("decode error: %s: %v", e.Message, e.OriginalError)
}

func (e *DecodeError) Unwrap() []error {
	return wrapped(ErrDecode, e.OriginalError)
}

func NewDecodeError(message string, originalError error) error {
	return &DecodeError{Message: message, OriginalError: originalError}
}

/* InferenceError: the embedding extractor failed. */

type InferenceError struct {
	Message       string
	OriginalError error
}

func (e *InferenceError) Error() string {
	if e.OriginalError == nil {
		return fmt.Sprintf("inference error: %s", e.Message)
	}
	return fmt.Sprintf("inference error: %s: %v", e.Message, e.OriginalError)
}

func (e *InferenceError) Unwrap() []error {
	return wrapped(ErrInference, e.OriginalError)
}

func NewInferenceError(message string, originalError error) error {
	return &InferenceError{Message: message, OriginalError: originalError}
}

/* DimensionMismatchError: an embedding length disagrees with the store. */

type DimensionMismatchError struct {
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf(
		"embedding dimension mismatch: expected %d, got %d. "+
			"please ensure embedding.dimensions matches the output of the configured model",
		e.Expected,
		e.Actual,
	)
}

func (*DimensionMismatchError) Unwrap() error {
	return ErrDimensionMismatch
}

func NewDimensionMismatchError(expected, actual int) error {
	return &DimensionMismatchError{Expected: expected, Actual: actual}
}

/* DurabilityError: the persistent backend rejected a read or write. */

type DurabilityError struct {
	Message       string
	OriginalError error
}

func (e *DurabilityError) Error() string {
	return fmt.Sprintf("durability error: %s (original error: %v)", e.Message, e.OriginalError)
}

func (e *DurabilityError) Unwrap() []error {
	return wrapped(ErrDurability, e.OriginalError)
}

func NewDurabilityError(message string, originalError error) error {
	return &DurabilityError{Message: message, OriginalError: originalError}
}

/* InvalidQueryError */

type InvalidQueryError struct {
	Message string
}

func (e *InvalidQueryError) Error() string {
	return fmt.Sprintf("invalid query: %s", e.Message)
}

func (*InvalidQueryError) Unwrap() error {
	return ErrInvalidQuery
}

func NewInvalidQueryError(message string) error {
	return &InvalidQueryError{Message: message}
}
