package service

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ashureev/botkit/internal/domain"
)

// StatusPublisher receives every training session change together with the
// password hash that gates it.
type StatusPublisher interface {
	PublishTrainSession(passwordHash string, session domain.TrainSession)
}

type sessionEntry struct {
	session      domain.TrainSession
	passwordHash string
}

// TrainSessionService tracks live training sessions in memory.
// Sessions are keyed by model id and password hash, like persisted models.
type TrainSessionService struct {
	mu        sync.RWMutex
	sessions  map[string]*sessionEntry
	publisher StatusPublisher
	logger    *slog.Logger
}

// NewTrainSessionService creates a TrainSessionService. publisher may be nil.
func NewTrainSessionService(publisher StatusPublisher, logger *slog.Logger) *TrainSessionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TrainSessionService{
		sessions:  make(map[string]*sessionEntry),
		publisher: publisher,
		logger:    logger,
	}
}

func sessionMapKey(modelID, passwordHash string) string {
	return modelID + "|" + passwordHash
}

// GetTrainingSession returns a copy of the live session for modelID.
func (s *TrainSessionService) GetTrainingSession(modelID, password string) (*domain.TrainSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.sessions[sessionMapKey(modelID, domain.HashPassword(password))]
	if !ok {
		return nil, false
	}
	session := entry.session
	return &session, true
}

// Begin registers a pending session for modelID.
// It returns false when a non-terminal session for the same model already exists.
func (s *TrainSessionService) Begin(modelID, passwordHash, language string) (domain.TrainSession, bool) {
	s.mu.Lock()
	key := sessionMapKey(modelID, passwordHash)
	if entry, ok := s.sessions[key]; ok && !entry.session.Status.IsTerminal() {
		session := entry.session
		s.mu.Unlock()
		return session, false
	}

	entry := &sessionEntry{
		session: domain.TrainSession{
			Key:      uuid.NewString(),
			ModelID:  modelID,
			Status:   domain.TrainStatusNone,
			Language: language,
		},
		passwordHash: passwordHash,
	}
	// none -> training-pending is always valid.
	_ = entry.session.Advance(domain.TrainStatusPending, 0)
	s.sessions[key] = entry
	session := entry.session
	s.mu.Unlock()

	s.publish(passwordHash, session)
	return session, true
}

// Update advances the session. Transitions that would break monotonicity are rejected.
func (s *TrainSessionService) Update(modelID, passwordHash string, status domain.TrainStatus, progress float64, errMsg string) error {
	s.mu.Lock()
	entry, ok := s.sessions[sessionMapKey(modelID, passwordHash)]
	if !ok {
		s.mu.Unlock()
		return domain.ErrSessionNotFound
	}
	if err := entry.session.Advance(status, progress); err != nil {
		s.mu.Unlock()
		return err
	}
	if errMsg != "" {
		entry.session.Error = errMsg
	}
	session := entry.session
	s.mu.Unlock()

	s.publish(passwordHash, session)
	return nil
}

// Sweep removes terminal sessions last updated before cutoff and returns how many were removed.
func (s *TrainSessionService) Sweep(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, entry := range s.sessions {
		if entry.session.Status.IsTerminal() && entry.session.UpdatedAt.Before(cutoff) {
			delete(s.sessions, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked sessions.
func (s *TrainSessionService) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *TrainSessionService) publish(passwordHash string, session domain.TrainSession) {
	s.logger.Debug("Training session updated",
		"model_id", session.ModelID,
		"status", session.Status,
		"progress", session.Progress)
	if s.publisher != nil {
		s.publisher.PublishTrainSession(passwordHash, session)
	}
}
