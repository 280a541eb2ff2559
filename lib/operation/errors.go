// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package operation

import (
	"errors"
	"fmt"
)

// Category classifies a failed call so clients can decide whether to
// fix their input, retry, or give up without parsing messages.
type Category string

const (
	CategoryValidation Category = "validation"
	CategoryNotFound   Category = "not_found"
	CategoryForbidden  Category = "forbidden"
	CategoryConflict   Category = "conflict"
	CategoryTransient  Category = "transient"
	CategoryInternal   Category = "internal"
)

// ErrNotFound is returned by CallMethod for an unregistered pair.
var ErrNotFound = errors.New("operation not found")

// Error is a handler error with a category attached.
type Error struct {
	Category Category
	Err      error
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// Validation reports bad caller input.
func Validation(format string, args ...any) *Error {
	return &Error{Category: CategoryValidation, Err: fmt.Errorf(format, args...)}
}

// NotFound reports a missing resource.
func NotFound(format string, args ...any) *Error {
	return &Error{Category: CategoryNotFound, Err: fmt.Errorf(format, args...)}
}

// Conflict reports a clash with existing state.
func Conflict(format string, args ...any) *Error {
	return &Error{Category: CategoryConflict, Err: fmt.Errorf(format, args...)}
}

// Transient reports a failure worth retrying.
func Transient(format string, args ...any) *Error {
	return &Error{Category: CategoryTransient, Err: fmt.Errorf(format, args...)}
}

// CategoryOf returns err's category. Errors without one are internal,
// except ErrNotFound.
func CategoryOf(err error) Category {
	var categorized *Error
	if errors.As(err, &categorized) {
		return categorized.Category
	}
	if errors.Is(err, ErrNotFound) {
		return CategoryNotFound
	}
	return CategoryInternal
}
