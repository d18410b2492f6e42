package errorhandler

import (
	"context"
)

// ActionType is what the batch processor does with a record that failed.
type ActionType int

const (
	// ActionTypeContinue counts the record as not applied and moves on. The
	// checkpoint still advances past it if a later record succeeds.
	ActionTypeContinue ActionType = iota
	// ActionTypeRetry applies the same record again inside the same
	// transaction.
	ActionTypeRetry
	// ActionTypeFail rolls the batch transaction back. The records are
	// polled again on the next cycle.
	ActionTypeFail
)

func (a ActionType) String() string {
	switch a {
	case ActionTypeContinue:
		return "Continue"
	case ActionTypeRetry:
		return "Retry"
	case ActionTypeFail:
		return "Fail"
	default:
		return "Unknown"
	}
}

var (
	_ Action = ActionContinue{}
	_ Action = ActionRetry{}
	_ Action = ActionFail{}
)

type Action interface {
	Type() ActionType
}

type ActionContinue struct{}

func (ActionContinue) Type() ActionType { return ActionTypeContinue }

type ActionRetry struct{}

func (ActionRetry) Type() ActionType { return ActionTypeRetry }

type ActionFail struct{}

func (ActionFail) Type() ActionType { return ActionTypeFail }

// Handler decides the fate of one failed record. It runs on the poll
// goroutine, inside the open batch transaction.
type Handler interface {
	Handle(ctx context.Context, ec ErrorContext) Action
}

type HandlerFunc func(ctx context.Context, ec ErrorContext) Action

func (f HandlerFunc) Handle(ctx context.Context, ec ErrorContext) Action {
	return f(ctx, ec)
}
