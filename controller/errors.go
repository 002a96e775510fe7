package controller

import "fmt"

// ErrUnknownConfigID is returned when a request names a configId the
// registry never built a drawer for. This exposes a defect in registry
// setup, not a runtime condition to recover from.
type ErrUnknownConfigID struct {
	ConfigID string
}

func (e *ErrUnknownConfigID) Error() string {
	return fmt.Sprintf("controller: unknown configId: %s", e.ConfigID)
}

// ErrDuplicateConfigID is returned by Initialize when two visualization
// configurations derive the same configId. At most one drawer may own a
// configId per frame.
type ErrDuplicateConfigID struct {
	ConfigID string
}

func (e *ErrDuplicateConfigID) Error() string {
	return fmt.Sprintf("controller: duplicate configId: %s", e.ConfigID)
}
