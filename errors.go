package mugen

import "errors"

var (
	// ErrNotFound reports a stale or unknown entity handle.
	ErrNotFound = errors.New("mugen: entity not found")
	// ErrAlreadyAttached reports an attach of a component the entity already has.
	ErrAlreadyAttached = errors.New("mugen: component already attached")
	// ErrNotAttached reports access to a component the entity does not have.
	ErrNotAttached = errors.New("mugen: component not attached")
	// ErrStorageInvariant reports internal storage corruption. It is fatal.
	ErrStorageInvariant = errors.New("mugen: storage invariant violation")
	// ErrStructuralChange reports a layout change while the world is sealed or
	// while a filter is iterating.
	ErrStructuralChange = errors.New("mugen: structural change during iteration")
)
