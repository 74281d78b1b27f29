package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"

	"github.com/ashureev/botkit/internal/domain"
	"github.com/ashureev/botkit/internal/events"
)

// EventsHandler streams status bar events over SSE and WebSocket.
type EventsHandler struct {
	bus               *events.Bus
	originPatterns    []string
	retryDelay        time.Duration
	keepaliveInterval time.Duration
	writeTimeout      time.Duration
}

// NewEventsHandler creates an EventsHandler. originPatterns guards WebSocket upgrades.
func NewEventsHandler(bus *events.Bus, originPatterns []string) *EventsHandler {
	return &EventsHandler{
		bus:               bus,
		originPatterns:    originPatterns,
		retryDelay:        5 * time.Second,
		keepaliveInterval: 10 * time.Second,
		writeTimeout:      10 * time.Second,
	}
}

// RegisterRoutes registers event stream routes.
func (h *EventsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/events", h.HandleStream)
	r.Get("/events/ws", h.HandleWebSocket)
}

// lastEventID reads the Last-Event-ID header or the lastEventId query param.
// It returns -1 when the client asked for no replay.
func lastEventID(r *http.Request) int64 {
	idHeader := r.Header.Get("Last-Event-ID")
	if idHeader == "" {
		idHeader = r.URL.Query().Get("lastEventId")
	}
	if idHeader == "" {
		return -1
	}
	parsed, err := strconv.ParseInt(idHeader, 10, 64)
	if err != nil {
		return -1
	}
	return parsed
}

// streamPassword reads the model password of a stream request. EventSource
// cannot set headers, so the query param is accepted here and redacted from access logs.
func streamPassword(r *http.Request) string {
	if pw := r.Header.Get(PasswordHeader); pw != "" {
		return pw
	}
	return r.URL.Query().Get("password")
}

// visible reports whether ev may be sent to a client holding the password hash
// scope and asking for modelID. An empty modelID matches every model of that scope.
func visible(ev events.Event, scope, modelID string) bool {
	if ev.Scope != scope {
		return false
	}
	if modelID == "" {
		return true
	}
	status, err := events.DecodeStatus(ev)
	if err != nil || status.TrainSession == nil {
		return false
	}
	return status.TrainSession.ModelID == modelID
}

// HandleStream serves status events as Server-Sent Events.
func (h *EventsHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		Error(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	afterID := lastEventID(r)
	modelID := r.URL.Query().Get("modelId")
	scope := domain.HashPassword(streamPassword(r))
	sub, missed := h.bus.SubscribeSince(afterID, events.TopicStatusBar)
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	if _, err := io.WriteString(w, fmt.Sprintf("retry: %d\n\n", h.retryDelay.Milliseconds())); err != nil {
		slog.Warn("failed to write SSE retry header", "error", err)
		return
	}

	replayed := 0
	for _, ev := range missed {
		if !visible(ev, scope, modelID) {
			continue
		}
		if err := writeSSEWithID(w, ev.ID, ev.Topic, string(ev.Payload)); err != nil {
			return
		}
		replayed++
	}
	if replayed > 0 {
		slog.Info("Sent missed events", "count", replayed, "last_event_id", afterID)
	}

	if err := writeSSE(w, "connected", `{"status":"connected"}`); err != nil {
		slog.Warn("failed to write SSE connected event", "error", err)
		return
	}
	flusher.Flush()

	slog.Info("SSE connection established", "model_id", modelID, "reconnect", afterID >= 0)

	keepalive := time.NewTicker(h.keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			slog.Info("SSE connection closed", "model_id", modelID)
			return
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			if !visible(ev, scope, modelID) {
				continue
			}
			if err := writeSSEWithID(w, ev.ID, ev.Topic, string(ev.Payload)); err != nil {
				slog.Warn("failed to write SSE event", "error", err, "event_id", ev.ID)
				return
			}
			flusher.Flush()
		case <-keepalive.C:
			if err := writeSSE(w, "ping", `{"status":"alive"}`); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// HandleWebSocket serves status events as JSON WebSocket messages.
func (h *EventsHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Subscribe before the upgrade so events published right after the handshake are not lost.
	afterID := lastEventID(r)
	modelID := r.URL.Query().Get("modelId")
	scope := domain.HashPassword(streamPassword(r))
	sub, missed := h.bus.SubscribeSince(afterID, events.TopicStatusBar)
	defer sub.Close()

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		slog.Error("WebSocket upgrade failed", "error", err)
		return
	}
	defer func() {
		if err := ws.Close(websocket.StatusNormalClosure, ""); err != nil {
			slog.Debug("websocket close failed", "error", err)
		}
	}()

	// Clients only listen. CloseRead cancels ctx when the peer goes away.
	ctx := ws.CloseRead(r.Context())

	for _, ev := range missed {
		if visible(ev, scope, modelID) {
			if err := h.writeWS(ctx, ws, ev); err != nil {
				return
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			if !visible(ev, scope, modelID) {
				continue
			}
			if err := h.writeWS(ctx, ws, ev); err != nil {
				if !errors.Is(err, context.Canceled) {
					slog.Warn("failed to write websocket event", "error", err, "event_id", ev.ID)
				}
				return
			}
		}
	}
}

func (h *EventsHandler) writeWS(ctx context.Context, ws *websocket.Conn, ev events.Event) error {
	ctx, cancel := context.WithTimeout(ctx, h.writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, ws, ev)
}

func writeSSE(w io.Writer, event, data string) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

func writeSSEWithID(w io.Writer, id int64, event, data string) error {
	_, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", id, event, data)
	return err
}
