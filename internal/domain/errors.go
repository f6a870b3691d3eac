package domain

import "errors"

var (
	ErrUnsupportedShape = errors.New("unsupported shape type")
	ErrSolutionNotFound = errors.New("solution not found")
	ErrSolutionExists   = errors.New("solution already exists")
	ErrStateNotFound    = errors.New("state not found")
	ErrDuplicateState   = errors.New("state name already in use")
	ErrSlotNotFound     = errors.New("slot not found")
	ErrDuplicateSlot    = errors.New("slot index already in use")
	ErrConnectorInvalid = errors.New("connector endpoint does not resolve")
)
