package domain

import (
	"time"
)

// TrainStatus is the lifecycle state of a training session.
type TrainStatus string

const (
	TrainStatusNone     TrainStatus = "none"
	TrainStatusPending  TrainStatus = "training-pending"
	TrainStatusTraining TrainStatus = "training"
	TrainStatusDone     TrainStatus = "done"
	TrainStatusCanceled TrainStatus = "canceled"
	TrainStatusErrored  TrainStatus = "errored"
)

func (s TrainStatus) rank() int {
	switch s {
	case TrainStatusPending:
		return 1
	case TrainStatusTraining:
		return 2
	case TrainStatusDone, TrainStatusCanceled, TrainStatusErrored:
		return 3
	default:
		return 0
	}
}

// IsTerminal returns true once the session can no longer change.
func (s TrainStatus) IsTerminal() bool {
	return s.rank() == 3
}

// CanTransitionTo reports whether moving from s to next keeps the lifecycle monotonic.
// Staying in training is allowed so progress can be reported.
func (s TrainStatus) CanTransitionTo(next TrainStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if s == TrainStatusTraining && next == TrainStatusTraining {
		return true
	}
	return next.rank() > s.rank()
}

// TrainSession holds the progress of one training run.
type TrainSession struct {
	Key       string      `json:"key"`
	ModelID   string      `json:"modelId"`
	Status    TrainStatus `json:"status"`
	Progress  float64     `json:"progress"`
	Language  string      `json:"language"`
	Error     string      `json:"error,omitempty"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// Advance moves the session to next with the given progress.
// Progress never decreases; terminal states other than done keep the last progress.
func (s *TrainSession) Advance(next TrainStatus, progress float64) error {
	if !s.Status.CanTransitionTo(next) {
		return ErrInvalidSession
	}
	if progress < s.Progress {
		progress = s.Progress
	}
	if progress > 1 {
		progress = 1
	}
	if next == TrainStatusDone {
		progress = 1
	}
	s.Status = next
	s.Progress = progress
	s.UpdatedAt = time.Now()
	return nil
}

// DoneSession synthesizes a finished session for a model that is already persisted.
func DoneSession(model *Model) *TrainSession {
	return &TrainSession{
		Key:       model.ModelID,
		ModelID:   model.ModelID,
		Status:    TrainStatusDone,
		Progress:  1,
		Language:  model.Language,
		UpdatedAt: model.CreatedAt,
	}
}
