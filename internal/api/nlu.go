package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/botkit/internal/domain"
)

// ModelService is the model persistence and inference capability used by NLUHandler.
type ModelService interface {
	MakeModelID(input *domain.TrainInput) string
	GetModel(ctx context.Context, modelID, password string) (*domain.Model, error)
	ListModels(ctx context.Context, password string) ([]*domain.Model, error)
	DeleteModel(ctx context.Context, modelID, password string) error
	Predict(ctx context.Context, modelID, password, sentence string) (*domain.Prediction, error)
}

// TrainService starts and cancels background trainings.
type TrainService interface {
	Train(modelID string, input *domain.TrainInput) bool
	Cancel(modelID, password string) error
}

// TrainSessionService exposes live training sessions.
type TrainSessionService interface {
	GetTrainingSession(modelID, password string) (*domain.TrainSession, bool)
}

// Info describes the server and its engine.
type Info struct {
	Version   string   `json:"version"`
	Specs     Specs    `json:"specs"`
	Languages []string `json:"languages"`
}

// Specs identifies the engine that trains models.
type Specs struct {
	EngineVersion string `json:"engineVersion"`
	SpecHash      string `json:"specHash"`
}

// NLUHandler serves training, prediction and model endpoints.
type NLUHandler struct {
	models    ModelService
	trainer   TrainService
	sessions  TrainSessionService
	info      Info
	opTimeout time.Duration
}

// NewNLUHandler creates an NLUHandler.
func NewNLUHandler(models ModelService, trainer TrainService, sessions TrainSessionService, info Info) *NLUHandler {
	return &NLUHandler{
		models:    models,
		trainer:   trainer,
		sessions:  sessions,
		info:      info,
		opTimeout: 30 * time.Second,
	}
}

// RegisterRoutes registers NLU routes.
func (h *NLUHandler) RegisterRoutes(r chi.Router) {
	r.Get("/info", h.GetInfo)
	r.Post("/train", h.Train)
	r.Get("/train/{modelId}", h.GetTrainingSession)
	r.Post("/train/{modelId}/cancel", h.CancelTraining)
	r.Post("/predict/{modelId}", h.Predict)
	r.Get("/models", h.ListModels)
	r.Delete("/models/{modelId}", h.DeleteModel)
}

// GetInfo returns the server version, engine specs and languages.
func (h *NLUHandler) GetInfo(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{"success": true, "info": h.info})
}

// Train validates the input, derives the model id and starts training without waiting.
func (h *NLUHandler) Train(w http.ResponseWriter, r *http.Request) {
	var input domain.TrainInput
	if err := decodeJSON(r, &input); err != nil {
		writeServiceError(w, r, err)
		return
	}
	input.Normalize()
	if err := input.Validate(h.info.Languages); err != nil {
		writeServiceError(w, r, err)
		return
	}

	modelID := h.models.MakeModelID(&input)
	started := h.trainer.Train(modelID, &input)
	slog.Info("Training requested", "model_id", modelID, "started", started)

	JSON(w, http.StatusOK, map[string]interface{}{"success": true, "modelId": modelID})
}

type passwordBody struct {
	Password string `json:"password"`
}

// password reads the password from the JSON body, falling back to the PasswordHeader.
func password(r *http.Request) (string, error) {
	var body passwordBody
	if err := decodeJSON(r, &body); err != nil {
		return "", err
	}
	if body.Password != "" {
		return body.Password, nil
	}
	return r.Header.Get(PasswordHeader), nil
}

// GetTrainingSession returns the live session, or a done session for a persisted model.
func (h *NLUHandler) GetTrainingSession(w http.ResponseWriter, r *http.Request) {
	modelID := chi.URLParam(r, "modelId")
	pw, err := password(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if session, ok := h.sessions.GetTrainingSession(modelID, pw); ok {
		JSON(w, http.StatusOK, map[string]interface{}{"success": true, "session": session})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opTimeout)
	defer cancel()
	model, err := h.models.GetModel(ctx, modelID, pw)
	if err != nil {
		if errors.Is(err, domain.ErrModelNotFound) {
			err = domain.ErrSessionNotFound
		}
		writeServiceError(w, r, err)
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{"success": true, "session": domain.DoneSession(model)})
}

// CancelTraining requests cancellation of a live training.
func (h *NLUHandler) CancelTraining(w http.ResponseWriter, r *http.Request) {
	modelID := chi.URLParam(r, "modelId")
	pw, err := password(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := h.trainer.Cancel(modelID, pw); err != nil {
		writeServiceError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

type predictBody struct {
	Sentence string `json:"sentence"`
	Password string `json:"password"`
}

// Predict loads the model, runs inference on the sentence and unloads the model.
func (h *NLUHandler) Predict(w http.ResponseWriter, r *http.Request) {
	modelID := chi.URLParam(r, "modelId")
	var body predictBody
	if err := decodeJSON(r, &body); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if strings.TrimSpace(body.Sentence) == "" {
		writeServiceError(w, r, domain.NewValidationError("sentence", "is required"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opTimeout)
	defer cancel()
	prediction, err := h.models.Predict(ctx, modelID, body.Password, body.Sentence)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"success": true, "prediction": prediction})
}

// ListModels returns the models reachable with the given password.
func (h *NLUHandler) ListModels(w http.ResponseWriter, r *http.Request) {
	models, err := h.models.ListModels(r.Context(), r.Header.Get(PasswordHeader))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"success": true, "models": models})
}

// DeleteModel removes a persisted model.
func (h *NLUHandler) DeleteModel(w http.ResponseWriter, r *http.Request) {
	modelID := chi.URLParam(r, "modelId")
	pw, err := password(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := h.models.DeleteModel(r.Context(), modelID, pw); err != nil {
		writeServiceError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"success": true})
}
