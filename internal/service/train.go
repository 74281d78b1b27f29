package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ashureev/botkit/internal/domain"
	"github.com/ashureev/botkit/internal/nlu"
)

// TrainService runs trainings in the background, bounded by a concurrency limit.
type TrainService struct {
	engine   nlu.Engine
	models   *ModelService
	sessions *TrainSessionService
	logger   *slog.Logger

	slots chan struct{}

	mu      sync.Mutex
	cancels map[string]*run
	ctx     context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
}

// NewTrainService creates a TrainService that runs at most maxConcurrent trainings at once.
func NewTrainService(engine nlu.Engine, models *ModelService, sessions *TrainSessionService, maxConcurrent int, logger *slog.Logger) *TrainService {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, stop := context.WithCancel(context.Background())
	return &TrainService{
		engine:   engine,
		models:   models,
		sessions: sessions,
		logger:   logger,
		slots:    make(chan struct{}, maxConcurrent),
		cancels:  make(map[string]*run),
		ctx:      ctx,
		stop:     stop,
	}
}

type run struct {
	cancel context.CancelFunc
}

// Train starts training modelID without waiting for it.
// It returns false when a training for the same model is already in flight.
func (s *TrainService) Train(modelID string, input *domain.TrainInput) bool {
	passwordHash := domain.HashPassword(input.Password)
	key := sessionMapKey(modelID, passwordHash)

	s.mu.Lock()
	if _, started := s.sessions.Begin(modelID, passwordHash, input.Language); !started {
		s.mu.Unlock()
		s.logger.Info("Training already in progress", "model_id", modelID)
		return false
	}
	runCtx, cancel := context.WithCancel(s.ctx)
	r := &run{cancel: cancel}
	s.cancels[key] = r
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			if s.cancels[key] == r {
				delete(s.cancels, key)
			}
			s.mu.Unlock()
			cancel()
		}()
		s.train(runCtx, modelID, passwordHash, input)
	}()
	return true
}

// Cancel requests cancellation of a live training. It does not wait for the run to stop.
func (s *TrainService) Cancel(modelID, password string) error {
	s.mu.Lock()
	r, ok := s.cancels[sessionMapKey(modelID, domain.HashPassword(password))]
	s.mu.Unlock()
	if !ok {
		return domain.ErrSessionNotFound
	}
	s.logger.Info("Training cancel requested", "model_id", modelID)
	r.cancel()
	return nil
}

// Shutdown cancels every training and waits for the workers to exit.
func (s *TrainService) Shutdown() {
	s.stop()
	s.wg.Wait()
}

func (s *TrainService) train(ctx context.Context, modelID, passwordHash string, input *domain.TrainInput) {
	select {
	case s.slots <- struct{}{}:
		defer func() { <-s.slots }()
	case <-ctx.Done():
		s.finish(modelID, passwordHash, domain.TrainStatusCanceled, "")
		return
	}

	if err := s.sessions.Update(modelID, passwordHash, domain.TrainStatusTraining, 0, ""); err != nil {
		s.logger.Warn("Failed to mark training started", "model_id", modelID, "error", err)
	}
	s.logger.Info("Training started", "model_id", modelID, "language", input.Language)

	data, err := s.engine.Train(ctx, input, func(progress float64) {
		if err := s.sessions.Update(modelID, passwordHash, domain.TrainStatusTraining, progress, ""); err != nil {
			s.logger.Debug("Dropped progress update", "model_id", modelID, "error", err)
		}
	})
	switch {
	case errors.Is(err, domain.ErrTrainingCanceled) || (err != nil && ctx.Err() != nil):
		s.finish(modelID, passwordHash, domain.TrainStatusCanceled, "")
		return
	case err != nil:
		s.finish(modelID, passwordHash, domain.TrainStatusErrored, err.Error())
		return
	}

	// The model is persisted even if cancel arrives now: the work is complete.
	if _, err := s.models.SaveModel(context.WithoutCancel(ctx), modelID, input, data); err != nil {
		s.finish(modelID, passwordHash, domain.TrainStatusErrored, fmt.Sprintf("save model: %v", err))
		return
	}
	s.finish(modelID, passwordHash, domain.TrainStatusDone, "")
}

func (s *TrainService) finish(modelID, passwordHash string, status domain.TrainStatus, errMsg string) {
	// Advance keeps the last progress for canceled and errored, and forces 1 for done.
	if err := s.sessions.Update(modelID, passwordHash, status, 0, errMsg); err != nil {
		s.logger.Warn("Failed to finish training session", "model_id", modelID, "status", status, "error", err)
		return
	}
	if status == domain.TrainStatusErrored {
		s.logger.Error("Training failed", "model_id", modelID, "error", errMsg)
		return
	}
	s.logger.Info("Training finished", "model_id", modelID, "status", status)
}
