package httptransport

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"carepilot/internal/dispatch"
	id "carepilot/pkg/domain"
	dErrors "carepilot/pkg/domain-errors"
	"carepilot/pkg/platform/httputil"
	"carepilot/pkg/requestcontext"
)

// ActionsHandler serves direct action execution for UIs that extract actions
// from assistant text themselves.
type ActionsHandler struct {
	executor Executor
	logger   *slog.Logger
}

func NewActionsHandler(executor Executor, logger *slog.Logger) *ActionsHandler {
	return &ActionsHandler{executor: executor, logger: logger}
}

func (h *ActionsHandler) Register(r chi.Router) {
	r.Post("/v1/actions", h.HandleExecute)
}

// HandleExecute handles POST /v1/actions.
func (h *ActionsHandler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	userID := requestcontext.UserID(ctx)
	if userID == (id.UserID{}) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[ActionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	actionReq := req.toActionsRequest()
	actionReq.ActorID = userID
	result, err := h.executor.Execute(ctx, actionReq)
	if err != nil {
		h.logger.WarnContext(ctx, "action failed",
			"request_id", requestID,
			"user_id", userID,
			"action", req.Action,
			"error", err,
		)
		writeActionError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "action executed",
		"request_id", requestID,
		"user_id", userID,
		"action", req.Action,
		"entity_id", result.EntityID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, ActionResponse{Success: true, Result: result})
}

func writeActionError(w http.ResponseWriter, err error) {
	var de *dispatch.Error
	if errors.As(err, &de) {
		httputil.WriteError(w, de.DomainError())
		return
	}
	httputil.WriteError(w, err)
}
