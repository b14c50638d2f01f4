package registry

import "errors"

var (
	ErrNotInitialized     = errors.New("registry not initialized")
	ErrAlreadyInitialized = errors.New("registry already initialized")
	ErrFull               = errors.New("registry full")
	ErrEmpty              = errors.New("registry empty")
	ErrNotFound           = errors.New("address or category not registered")
	ErrNoSuchCategory     = errors.New("no free slot for category")
)
