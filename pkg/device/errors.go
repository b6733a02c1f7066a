package device

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by device operations. Backend errors are
// propagated unchanged and are never wrapped into these.
var (
	// ErrInvalidArgument is returned for bad parameters (unsupported pixel
	// format, invalid geometry) and for operations invoked in the wrong
	// lifecycle state.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidState is returned by frame reads when the device is not
	// capturing or the worker has not produced a frame yet.
	ErrInvalidState = errors.New("invalid state")
)

// ErrWorkerNotRunning is returned by StopWorker when there is no control
// channel open, i.e. the worker was never started or has already been
// stopped and joined.
var ErrWorkerNotRunning = fmt.Errorf("%w: worker is not running", ErrInvalidArgument)
