package errorhandler

import (
	"context"
	"errors"
)

// ErrorPhase indicates where in handling a record an error occurred
type ErrorPhase int

const (
	PhaseUnknown    ErrorPhase = iota // zero value - uninitialized phase
	PhaseProcessing                   // the record processor returned an error
	PhaseDispatch                     // the sink target rejected or could not be reached
	PhasePanic                        // the record processor panicked
)

func (p ErrorPhase) String() string {
	switch p {
	case PhaseUnknown:
		return "unknown"
	case PhaseProcessing:
		return "processing"
	case PhaseDispatch:
		return "dispatch"
	case PhasePanic:
		return "panic"
	default:
		return "unknown"
	}
}

type phaseError struct {
	phase ErrorPhase
	err   error
}

func (e *phaseError) Error() string { return e.err.Error() }
func (e *phaseError) Unwrap() error { return e.err }

// WithPhase tags err with the phase it happened in. A nil err stays nil.
func WithPhase(err error, phase ErrorPhase) error {
	if err == nil {
		return nil
	}
	return &phaseError{phase: phase, err: err}
}

// PhaseOf returns the phase err was tagged with, or PhaseProcessing for any
// other non-nil error.
func PhaseOf(err error) ErrorPhase {
	if err == nil {
		return PhaseUnknown
	}
	var pe *phaseError
	if errors.As(err, &pe) {
		return pe.phase
	}
	return PhaseProcessing
}

var _ Handler = (*PhaseRouter)(nil)

type PhaseRouter struct {
	handler           Handler
	processingHandler Handler
	dispatchHandler   Handler
	panicHandler      Handler
}

// NewPhaseRouter creates a new PhaseRouter with the provided handlers for each phase.
// If a handler for a specific phase is nil, the router will fall back to the default handler.
// If the default handler is unset, defaults to SilentFail.
func NewPhaseRouter(
	handler Handler, processingHandler Handler, dispatchHandler Handler, panicHandler Handler,
) *PhaseRouter {
	if handler == nil {
		handler = SilentFail()
	}

	return &PhaseRouter{
		handler:           handler,
		processingHandler: processingHandler,
		dispatchHandler:   dispatchHandler,
		panicHandler:      panicHandler,
	}
}

func (r *PhaseRouter) Handle(ctx context.Context, ec ErrorContext) Action {
	switch ec.Phase {
	case PhaseProcessing:
		if r.processingHandler != nil {
			return r.processingHandler.Handle(ctx, ec)
		}
	case PhaseDispatch:
		if r.dispatchHandler != nil {
			return r.dispatchHandler.Handle(ctx, ec)
		}
	case PhasePanic:
		if r.panicHandler != nil {
			return r.panicHandler.Handle(ctx, ec)
		}
	case PhaseUnknown:
	default:
	}

	return r.handler.Handle(ctx, ec)
}
