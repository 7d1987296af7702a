package httptransport

import (
	"strings"
	"time"

	"carepilot/internal/actions"
	"carepilot/internal/assistant/provider"
	dErrors "carepilot/pkg/domain-errors"
)

const maxChatMessages = 100

// ChatMessage is one prior turn sent by the UI.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of POST /v1/assistant/chat.
type ChatRequest struct {
	Messages []ChatMessage `json:"messages"`
	Timezone string        `json:"timezone,omitempty"`
}

func (r *ChatRequest) Validate() error {
	if len(r.Messages) == 0 {
		return dErrors.New(dErrors.CodeBadRequest, "messages must not be empty")
	}
	if len(r.Messages) > maxChatMessages {
		return dErrors.New(dErrors.CodeBadRequest, "too many messages in one request")
	}
	for _, m := range r.Messages {
		switch m.Role {
		case provider.RoleUser, provider.RoleAssistant, provider.RoleSystem:
		default:
			return dErrors.New(dErrors.CodeBadRequest, "message role must be user or assistant")
		}
	}
	if last := r.Messages[len(r.Messages)-1]; last.Role != provider.RoleUser || strings.TrimSpace(last.Content) == "" {
		return dErrors.New(dErrors.CodeBadRequest, "the last message must be a non-empty user message")
	}
	return validateTimezone(r.Timezone)
}

// ProviderMessages converts the UI history for the orchestrator.
func (r *ChatRequest) ProviderMessages() []provider.Message {
	out := make([]provider.Message, 0, len(r.Messages))
	for _, m := range r.Messages {
		out = append(out, provider.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

// ActionRequest is the body of POST /v1/actions.
type ActionRequest struct {
	Action   string         `json:"action"`
	Params   map[string]any `json:"params"`
	Timezone string         `json:"timezone,omitempty"`
}

func (r *ActionRequest) Validate() error {
	r.Action = strings.TrimSpace(r.Action)
	if r.Action == "" {
		return dErrors.New(dErrors.CodeBadRequest, "action is required")
	}
	if r.Params == nil {
		r.Params = map[string]any{}
	}
	return validateTimezone(r.Timezone)
}

// ActionResponse wraps a successful action.
type ActionResponse struct {
	Success bool `json:"success"`
	Result  any  `json:"result"`
}

func validateTimezone(name string) error {
	if name == "" {
		return nil
	}
	if _, err := time.LoadLocation(name); err != nil {
		return dErrors.New(dErrors.CodeBadRequest, "timezone must be an IANA name such as America/New_York")
	}
	return nil
}

// toActionsRequest is split out so the handler stays free of field copying.
func (r *ActionRequest) toActionsRequest() actions.Request {
	return actions.Request{Name: r.Action, Params: r.Params, Timezone: r.Timezone}
}
