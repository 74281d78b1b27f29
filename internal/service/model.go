// Package service implements the model, training and training-session services
// behind the HTTP API.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/botkit/internal/domain"
	"github.com/ashureev/botkit/internal/nlu"
	"github.com/ashureev/botkit/internal/store"
)

// ModelService derives model ids and persists trained models.
type ModelService struct {
	repo   store.Repository
	engine nlu.Engine
	logger *slog.Logger
}

// NewModelService creates a ModelService.
func NewModelService(repo store.Repository, engine nlu.Engine, logger *slog.Logger) *ModelService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ModelService{repo: repo, engine: engine, logger: logger}
}

// MakeModelID returns <contentHash>.<specHash>.<seed>.<language>.
// Identical intents, entities, language and seed always yield the same id.
func (s *ModelService) MakeModelID(input *domain.TrainInput) string {
	return fmt.Sprintf("%s.%s.%d.%s",
		s.engine.ComputeModelHash(input),
		s.engine.SpecificationHash(),
		input.Seed,
		input.Language,
	)
}

// GetModel returns the model, or domain.ErrModelNotFound when it does not exist
// or the password does not match.
func (s *ModelService) GetModel(ctx context.Context, modelID, password string) (*domain.Model, error) {
	model, err := s.repo.GetModel(ctx, modelID, domain.HashPassword(password))
	if err != nil {
		return nil, fmt.Errorf("get model %s: %w", modelID, err)
	}
	if model == nil {
		return nil, domain.ErrModelNotFound
	}
	return model, nil
}

// SaveModel persists a freshly trained model.
func (s *ModelService) SaveModel(ctx context.Context, modelID string, input *domain.TrainInput, data []byte) (*domain.Model, error) {
	model := &domain.Model{
		ModelID:       modelID,
		Language:      input.Language,
		Seed:          input.Seed,
		EngineVersion: s.engine.Version(),
		PasswordHash:  domain.HashPassword(input.Password),
		Data:          data,
		CreatedAt:     time.Now(),
	}
	if err := s.repo.SaveModel(ctx, model); err != nil {
		return nil, err
	}
	s.logger.Info("Model saved", "model_id", modelID, "size", model.Size())
	return model, nil
}

// ListModels returns the models reachable with password.
func (s *ModelService) ListModels(ctx context.Context, password string) ([]*domain.Model, error) {
	models, err := s.repo.ListModels(ctx, domain.HashPassword(password))
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	return models, nil
}

// DeleteModel removes a persisted model.
func (s *ModelService) DeleteModel(ctx context.Context, modelID, password string) error {
	deleted, err := s.repo.DeleteModel(ctx, modelID, domain.HashPassword(password))
	if err != nil {
		return err
	}
	if !deleted {
		return domain.ErrModelNotFound
	}
	s.logger.Info("Model deleted", "model_id", modelID)
	return nil
}

// Predict loads the model, runs inference and unloads it again.
func (s *ModelService) Predict(ctx context.Context, modelID, password, sentence string) (*domain.Prediction, error) {
	model, err := s.GetModel(ctx, modelID, password)
	if err != nil {
		return nil, err
	}
	if err := s.engine.LoadModel(model); err != nil {
		return nil, fmt.Errorf("load model %s: %w", modelID, err)
	}
	defer s.engine.UnloadModel(modelID)

	return s.engine.Predict(ctx, modelID, sentence)
}
