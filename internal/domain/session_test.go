package domain

import (
	"errors"
	"testing"
	"time"
)

func TestTrainSession_Advance(t *testing.T) {
	s := &TrainSession{Key: "k", Status: TrainStatusNone}

	steps := []struct {
		status   TrainStatus
		progress float64
		want     float64
	}{
		{TrainStatusPending, 0, 0},
		{TrainStatusTraining, 0.3, 0.3},
		{TrainStatusTraining, 0.1, 0.3},
		{TrainStatusTraining, 0.8, 0.8},
		{TrainStatusDone, 0.9, 1},
	}
	for _, step := range steps {
		if err := s.Advance(step.status, step.progress); err != nil {
			t.Fatalf("Advance(%s) failed: %v", step.status, err)
		}
		if s.Progress != step.want {
			t.Errorf("After %s expected progress %v, got %v", step.status, step.want, s.Progress)
		}
	}

	if err := s.Advance(TrainStatusTraining, 1); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("Expected ErrInvalidSession after done, got %v", err)
	}
}

func TestTrainStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to TrainStatus
		want     bool
	}{
		{TrainStatusNone, TrainStatusPending, true},
		{TrainStatusPending, TrainStatusTraining, true},
		{TrainStatusTraining, TrainStatusPending, false},
		{TrainStatusTraining, TrainStatusCanceled, true},
		{TrainStatusPending, TrainStatusErrored, true},
		{TrainStatusCanceled, TrainStatusDone, false},
		{TrainStatusDone, TrainStatusDone, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("%s -> %s: expected %v, got %v", tt.from, tt.to, tt.want, got)
		}
	}
}

func TestDoneSession(t *testing.T) {
	created := time.Unix(1700000000, 0)
	s := DoneSession(&Model{ModelID: "abc", Language: "fr", CreatedAt: created})

	if s.Status != TrainStatusDone || s.Progress != 1 {
		t.Errorf("Expected done/1, got %s/%v", s.Status, s.Progress)
	}
	if s.ModelID != "abc" || s.Language != "fr" || !s.UpdatedAt.Equal(created) {
		t.Errorf("Unexpected session %+v", s)
	}
}

func TestHashPassword(t *testing.T) {
	if HashPassword("") != "" {
		t.Error("Expected empty hash for empty password")
	}
	h := HashPassword("secret")
	if len(h) != 64 || h == "secret" {
		t.Errorf("Unexpected hash %q", h)
	}
	if HashPassword("secret") != h {
		t.Error("Expected stable hash")
	}
}

func TestPrediction_TopIntent(t *testing.T) {
	p := &Prediction{Topics: []TopicPrediction{
		{Name: "a", Confidence: 0.6, Intents: []IntentPrediction{{Name: "a1", Confidence: 0.5}, {Name: "a2", Confidence: 0.5}}},
		{Name: "b", Confidence: 0.4, Intents: []IntentPrediction{{Name: "b1", Confidence: 1}}},
	}}
	topic, intent := p.TopIntent()
	if topic != "b" || intent == nil || intent.Name != "b1" {
		t.Errorf("Expected b/b1, got %s/%v", topic, intent)
	}

	empty := &Prediction{}
	if _, intent := empty.TopIntent(); intent != nil {
		t.Errorf("Expected nil intent, got %v", intent)
	}
}
