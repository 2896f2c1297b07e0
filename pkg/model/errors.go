// ABOUTME: Error taxonomy shared by every annotation component
// ABOUTME: Component errors wrap one of these sentinels with %w

package model

import "errors"

var (
	// ErrPermissionDenied indicates the acting coder lacks a required right
	ErrPermissionDenied = errors.New("permission denied")

	// ErrValidation indicates malformed input (bad regex, type mismatch)
	ErrValidation = errors.New("validation failed")

	// ErrStorage indicates an I/O or connection failure in the store
	ErrStorage = errors.New("storage failure")

	// ErrDataIntegrity indicates corrupt taxonomy data (cycles, dangling parents)
	ErrDataIntegrity = errors.New("data integrity fault")

	// ErrNotFound indicates a missing record
	ErrNotFound = errors.New("not found")
)
