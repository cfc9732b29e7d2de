package game

import "errors"

var (
	// ErrInvalidAction rejects an action without changing any state.
	ErrInvalidAction = errors.New("invalid action")
	// ErrPersistence marks a failed durable write; the game faults until recovered.
	ErrPersistence = errors.New("persistence failure")
	// ErrScoringInconsistency marks impossible rule data; the game is aborted.
	ErrScoringInconsistency = errors.New("scoring inconsistency")
	// ErrGameClosed is returned once the coordinator has stopped.
	ErrGameClosed = errors.New("game closed")
	// ErrGameNotFound is returned by stores and managers for unknown IDs.
	ErrGameNotFound = errors.New("game not found")
)
