package packetstream

import "github.com/pkg/errors"

// ErrMutationWhileActive is returned (and panicked with) when a caller
// attempts to attach or detach an adapter while the stream is Active or
// Locked.
// The graph may only be mutated when state != Active (spec invariant 1).
var ErrMutationWhileActive = errors.New("packetstream: cannot modify an active stream")

// ErrContractViolation is raised when an adapter is registered with
// syncState=true but does not implement Startable.
var ErrContractViolation = errors.New("packetstream: adapter registered with syncState but does not implement Startable")

// SetupFailure wraps an error raised while wiring the processor chain in
// StreamCore.setup. It is returned to the caller of Stream.Start.
type SetupFailure struct {
	cause error
}

func (e *SetupFailure) Error() string {
	return "packetstream: setup failed: " + e.cause.Error()
}

func (e *SetupFailure) Unwrap() error { return e.cause }

func newSetupFailure(cause error) error {
	return &SetupFailure{cause: errors.WithStack(cause)}
}

// ProcessorFailure wraps a panic/error captured during dispatch. It is
// stored in the stream's error slot and delivered via the Error signal.
type ProcessorFailure struct {
	cause error
}

func (e *ProcessorFailure) Error() string {
	return "packetstream: processor error: " + e.cause.Error()
}

func (e *ProcessorFailure) Unwrap() error { return e.cause }

func newProcessorFailure(cause error) error {
	return &ProcessorFailure{cause: errors.WithStack(cause)}
}

// recoveredError normalizes a recover() value into an error.
func recoveredError(r interface{}) error {
	if err, ok := r.(error); ok {
		return err
	}
	return errors.Errorf("%v", r)
}
