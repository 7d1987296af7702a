package httptransport

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"carepilot/internal/assistant"
	id "carepilot/pkg/domain"
	dErrors "carepilot/pkg/domain-errors"
	"carepilot/pkg/platform/httputil"
	"carepilot/pkg/requestcontext"
)

type AssistantHandler struct {
	chatter Chatter
	logger  *slog.Logger
}

func NewAssistantHandler(chatter Chatter, logger *slog.Logger) *AssistantHandler {
	return &AssistantHandler{chatter: chatter, logger: logger}
}

func (h *AssistantHandler) Register(r chi.Router) {
	r.Post("/v1/assistant/chat", h.HandleChat)
}

// HandleChat handles POST /v1/assistant/chat. Errors before the first event
// are plain JSON replies; after streaming has begun they are sent as a final
// {"error","code"} event.
func (h *AssistantHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	userID := requestcontext.UserID(ctx)
	if userID == (id.UserID{}) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[ChatRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	sse := assistant.NewSSEWriter(w)
	err := h.chatter.Chat(ctx, assistant.Turn{
		ActorID:  userID,
		Timezone: req.Timezone,
		Messages: req.ProviderMessages(),
	}, sse)
	if err == nil {
		return
	}

	if !sse.Started() {
		httputil.WriteError(w, err)
		return
	}
	_, body := httputil.ErrorBody(err)
	payload, _ := json.Marshal(body)
	if werr := sse.WriteEvent(string(payload)); werr != nil {
		h.logger.DebugContext(ctx, "client went away before the error event",
			"request_id", requestID,
			"error", werr,
		)
	}
}
