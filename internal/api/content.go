package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/botkit/internal/render"
)

// RenderHandler renders rich content for a messaging channel.
type RenderHandler struct {
	botURL string
}

// NewRenderHandler creates a RenderHandler. botURL is used when a carousel has none.
func NewRenderHandler(botURL string) *RenderHandler {
	return &RenderHandler{botURL: botURL}
}

// RegisterRoutes registers content routes.
func (h *RenderHandler) RegisterRoutes(r chi.Router) {
	r.Post("/content/render", h.Render)
	r.Get("/content/channels", h.ListChannels)
}

type renderRequest struct {
	Channel  string          `json:"channel"`
	Carousel render.Carousel `json:"carousel"`
}

// Render returns the channel payload for a carousel.
func (h *RenderHandler) Render(w http.ResponseWriter, r *http.Request) {
	var req renderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if req.Carousel.BotURL == "" {
		req.Carousel.BotURL = h.botURL
	}

	payload, err := render.Render(req.Carousel, req.Channel)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"success": true, "payload": payload})
}

// ListChannels returns the channels with a dedicated template.
func (h *RenderHandler) ListChannels(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{"success": true, "channels": render.Channels()})
}
