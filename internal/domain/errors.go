package domain

import "errors"

// ErrJobNotFound is returned when an operation references an unknown job id.
var ErrJobNotFound = errors.New("download not found")

// ErrInvalidRecord indicates a persisted record that cannot be turned back into a job.
var ErrInvalidRecord = errors.New("invalid download record")
