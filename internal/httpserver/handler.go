// Package httpserver exposes the relay to the UI over HTTP and SSE.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/davidbz/council-relay/internal/domain"
	"github.com/davidbz/council-relay/internal/members"
	"github.com/davidbz/council-relay/internal/observability"
	"github.com/davidbz/council-relay/internal/orchestrator"
	"github.com/davidbz/council-relay/internal/telemetry"
)

const feedBuffer = 64

// TurnSubscriber streams turn updates for one session.
type TurnSubscriber interface {
	Subscribe(sessionID string, buffer int) (<-chan domain.ConversationTurn, func())
}

// Handler handles HTTP requests.
type Handler struct {
	orchestrator *orchestrator.Orchestrator
	latency      *telemetry.Bus
	feed         TurnSubscriber
}

// NewHandler creates a new HTTP handler (DI constructor).
func NewHandler(orch *orchestrator.Orchestrator, latency *telemetry.Bus, feed TurnSubscriber) *Handler {
	return &Handler{
		orchestrator: orch,
		latency:      latency,
		feed:         feed,
	}
}

type messageRequest struct {
	Text     string         `json:"text"`
	Panel    string         `json:"panel,omitempty"`
	Targets  []string       `json:"targets,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type forwardRequest struct {
	Targets []string `json:"targets"`
}

type statusResponse struct {
	orchestrator.Status
	LastLatency *telemetry.Sample `json:"last_latency,omitempty"`
}

// HandleSubmit accepts a user message for a session.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	result, err := h.orchestrator.Submit(ctx, orchestrator.SubmitInput{
		SessionID: r.PathValue("session"),
		Text:      req.Text,
		Panel:     req.Panel,
		Targets:   req.Targets,
		Metadata:  req.Metadata,
	})
	if err != nil {
		h.writeError(ctx, w, "submit failed", err)
		return
	}

	observability.FromContext(ctx).Info("message accepted",
		observability.String("session_id", result.UserTurn.SessionID),
		observability.String("admission", string(result.Admission)),
		observability.Int("forwarded", len(result.Forwarded)),
	)

	writeJSON(ctx, w, http.StatusAccepted, result)
}

// HandleForward forwards an existing turn to council members.
func (h *Handler) HandleForward(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req forwardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	targets, err := h.orchestrator.Forward(ctx, r.PathValue("session"), r.PathValue("turn"), req.Targets)
	if err != nil {
		h.writeError(ctx, w, "forward failed", err)
		return
	}

	writeJSON(ctx, w, http.StatusAccepted, map[string]any{"forwarded": targets})
}

// HandleTurns returns the visible turns of a session.
func (h *Handler) HandleTurns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	turns, err := h.orchestrator.Turns(ctx, r.PathValue("session"))
	if err != nil {
		h.writeError(ctx, w, "list turns failed", err)
		return
	}

	writeJSON(ctx, w, http.StatusOK, map[string]any{"turns": turns})
}

// HandleEvents streams the session as SSE: a snapshot first, then every turn change.
func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := r.PathValue("session")
	logger := observability.FromContext(observability.WithSessionID(ctx, sessionID))

	flusher, ok := w.(http.Flusher)
	if !ok {
		logger.Error("streaming not supported")
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	// Subscribe before the snapshot so no update falls between the two.
	updates, unsubscribe := h.feed.Subscribe(sessionID, feedBuffer)
	defer unsubscribe()

	turns, err := h.orchestrator.Turns(ctx, sessionID)
	if err != nil {
		h.writeError(ctx, w, "snapshot failed", err)
		return
	}

	// Set headers for SSE.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, "snapshot", map[string]any{"turns": turns}); err != nil {
		logger.Warn("failed to write snapshot", observability.Error(err))
		return
	}
	flusher.Flush()

	logger.Info("turn feed opened")
	for {
		select {
		case <-ctx.Done():
			logger.Info("turn feed closed", observability.Error(ctx.Err()))
			return

		case turn, open := <-updates:
			if !open {
				return
			}
			if turn.Metadata.Hidden {
				continue
			}
			if err := writeEvent(w, "turn", turn); err != nil {
				logger.Warn("failed to write turn event", observability.Error(err))
				return
			}
			flusher.Flush()
		}
	}
}

// HandleContext returns the retrieved context for a session.
func (h *Handler) HandleContext(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	matches := h.orchestrator.Context(ctx, r.PathValue("session"), r.URL.Query().Get("panel"))
	if matches == nil {
		matches = []domain.RagMatch{}
	}

	writeJSON(ctx, w, http.StatusOK, map[string]any{"matches": matches})
}

// HandleListMembers returns the forward targets, optionally narrowed by panel and q.
func (h *Handler) HandleListMembers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	list, err := h.orchestrator.Members(ctx, members.Query{
		Panel: r.URL.Query().Get("panel"),
		Text:  r.URL.Query().Get("q"),
	})
	if err != nil {
		h.writeError(ctx, w, "list members failed", err)
		return
	}

	writeJSON(ctx, w, http.StatusOK, map[string]any{"members": list})
}

// HandleRegisterMember adds a forward target.
func (h *Handler) HandleRegisterMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var member domain.CouncilMember
	if err := json.NewDecoder(r.Body).Decode(&member); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	if err := h.orchestrator.RegisterMember(ctx, member); err != nil {
		observability.FromContext(ctx).Warn("member rejected", observability.Error(err))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(ctx, w, http.StatusCreated, member)
}

// HandleStatus reports whether the relay is busy.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Status: h.orchestrator.Status()}
	if sample, ok := h.latency.Last(); ok {
		resp.LastLatency = &sample
	}

	writeJSON(r.Context(), w, http.StatusOK, resp)
}

// HandleLatency returns the most recent latency sample.
func (h *Handler) HandleLatency(w http.ResponseWriter, r *http.Request) {
	sample, ok := h.latency.Last()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(r.Context(), w, http.StatusOK, sample)
}

// HandleHealth handles health check requests.
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
	}); err != nil {
		// Already written status, can't change it, just log.
		return
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	status := statusFor(err)
	logger := observability.FromContext(ctx)
	if status >= http.StatusInternalServerError {
		logger.Error(msg, observability.Error(err))
	} else {
		logger.Info(msg, observability.Error(err), observability.Int("status", status))
	}
	http.Error(w, err.Error(), status)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, orchestrator.ErrEmptyText), errors.Is(err, orchestrator.ErrNoTargets):
		return http.StatusBadRequest
	case errors.Is(err, members.ErrMemberNotFound), errors.Is(err, domain.ErrTurnNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		observability.FromContext(ctx).Error("failed to encode response", observability.Error(err))
	}
}

func writeEvent(w http.ResponseWriter, event string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", event, err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", strings.TrimSpace(event), data); err != nil {
		return fmt.Errorf("failed to write %s event: %w", event, err)
	}
	return nil
}
