package httptransport

import (
	"context"

	"carepilot/internal/actions"
	"carepilot/internal/assistant"
	"carepilot/internal/dispatch"
)

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks Executor,Chatter

// Executor runs one structured action for the authenticated actor.
type Executor interface {
	Execute(ctx context.Context, req actions.Request) (*dispatch.Result, error)
}

// Chatter runs one conversational turn and streams its events to out.
type Chatter interface {
	Chat(ctx context.Context, turn assistant.Turn, out assistant.EventWriter) error
}
