// ABOUTME: Entity taxonomy errors
// ABOUTME: Integrity faults wrap model.ErrDataIntegrity

package entity

import (
	"fmt"

	"github.com/nainya/annostore/pkg/model"
)

var (
	// ErrCycleDetected indicates a parent chain that revisits an entity
	ErrCycleDetected = fmt.Errorf("%w: cycle detected", model.ErrDataIntegrity)

	// ErrDanglingParent indicates a parent id that resolves to nothing
	ErrDanglingParent = fmt.Errorf("%w: dangling parent reference", model.ErrDataIntegrity)

	// ErrUnsaved indicates an entity the store has not assigned an id yet
	ErrUnsaved = fmt.Errorf("%w: entity not persisted", model.ErrValidation)

	// ErrNotFound indicates an unknown entity id
	ErrNotFound = fmt.Errorf("entity %w", model.ErrNotFound)
)
