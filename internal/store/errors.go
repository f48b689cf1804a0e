// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AutoIR Contributors

package store

import "errors"

// Sentinel errors for store operations.
// These errors can be checked using errors.Is() for classification; the
// backends wrap them with coded errors from pkg/errors.
var (
	// ErrNotFound indicates the requested entity does not exist. Lookups of
	// cursors and incidents report absence as a nil result instead.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a unique constraint violation, such as a second
	// incident with an existing dedupe key.
	ErrConflict = errors.New("conflict")

	// ErrInvalidInput indicates the input parameters are invalid or malformed.
	ErrInvalidInput = errors.New("invalid input")

	// ErrSchemaMismatch indicates an embedding dimension conflict with the
	// dimension a table was created with.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrDatabase indicates a general database error occurred.
	// This is a catch-all for unexpected I/O failures and is retryable.
	ErrDatabase = errors.New("database error")
)
