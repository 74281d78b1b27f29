package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/botkit/internal/domain"
	"github.com/ashureev/botkit/internal/events"
	"github.com/ashureev/botkit/internal/widget"
)

const sampleDataset = `
language: EN
seed: 3
entities:
  - name: size
    type: list
    values:
      - name: large
        synonyms: [big, xl]
      - name: small
topics:
  - name: orders
    intents:
      - name: order_pizza
        utterances:
          - i want a large pizza
          - order a small pizza
        slots:
          - name: pizza_size
            entities: [size]
`

func TestParseDataset(t *testing.T) {
	input, err := parseDataset([]byte(sampleDataset), "flag-pw")
	require.NoError(t, err)

	assert.Equal(t, "en", input.Language)
	assert.Equal(t, int64(3), input.Seed)
	assert.Equal(t, "flag-pw", input.Password)
	require.Len(t, input.Entities, 1)
	assert.Equal(t, []string{"big", "xl"}, input.Entities[0].Values[0].Synonyms)
	assert.Equal(t, []string{"size"}, input.Topics[0].Intents[0].Slots[0].Entities)
}

func TestParseDataset_Invalid(t *testing.T) {
	_, err := parseDataset([]byte("language: en\ntopics: []\n"), "")
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "topics", verr.Field)

	_, err = parseDataset([]byte("language: [unterminated"), "")
	assert.Error(t, err)
}

func TestChooseChannel(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"2\n", "slack"},
		{"Telegram\n", "telegram"},
		{"web", "web"},
	}
	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.input), func(t *testing.T) {
			var out bytes.Buffer
			got, err := chooseChannel(strings.NewReader(tt.input), &out)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Contains(t, out.String(), "1. web")
		})
	}

	_, err := chooseChannel(strings.NewReader("42\n"), &bytes.Buffer{})
	assert.ErrorIs(t, err, widget.ErrNoOption)
}

func TestProgressBar(t *testing.T) {
	assert.Equal(t, "[#####.....]", progressBar(0.5, 10))
	assert.Equal(t, "[##########]", progressBar(1.5, 10))
	assert.Equal(t, "[..........]", progressBar(0, 10))
}

type scriptedStream struct {
	ch chan events.Event
}

func (s *scriptedStream) C() <-chan events.Event { return s.ch }
func (s *scriptedStream) Close() error {
	close(s.ch)
	return nil
}

// scriptedBackend emits a fixed status sequence once training starts.
type scriptedBackend struct {
	stream   *scriptedStream
	final    domain.TrainStatus
	canceled chan struct{}

	mu   sync.Mutex
	last *domain.TrainSession
}

func (b *scriptedBackend) TrainingSession(context.Context, string, string) (*domain.TrainSession, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.last != nil {
		s := *b.last
		return &s, nil
	}
	return &domain.TrainSession{ModelID: "m1", Status: domain.TrainStatusPending}, nil
}

func (b *scriptedBackend) Train(context.Context, *domain.TrainInput) (string, error) {
	go func() {
		b.emit(domain.TrainStatusTraining, 0.5, time.Millisecond)
		if b.final == domain.TrainStatusCanceled {
			<-b.canceled
		}
		b.emit(b.final, 1, 2*time.Millisecond)
	}()
	return "m1", nil
}

func (b *scriptedBackend) CancelTraining(context.Context, string, string) error {
	close(b.canceled)
	return nil
}

func (b *scriptedBackend) Watch(context.Context, string, string) (widget.Stream, error) {
	return b.stream, nil
}

func (b *scriptedBackend) emit(status domain.TrainStatus, progress float64, offset time.Duration) {
	session := domain.TrainSession{
		ModelID:   "m1",
		Status:    status,
		Progress:  progress,
		UpdatedAt: time.Now().Add(offset),
	}
	b.mu.Lock()
	b.last = &session
	b.mu.Unlock()

	payload, _ := json.Marshal(events.StatusPayload{Type: "nlu", TrainSession: &session})
	b.stream.ch <- events.Event{Topic: events.TopicStatusBar, Payload: payload}
}

func newScriptedBackend(final domain.TrainStatus) *scriptedBackend {
	return &scriptedBackend{
		stream:   &scriptedStream{ch: make(chan events.Event, 4)},
		final:    final,
		canceled: make(chan struct{}),
	}
}

func TestWatch_Done(t *testing.T) {
	var out bytes.Buffer
	err := watch(context.Background(), &out, newScriptedBackend(domain.TrainStatusDone), &domain.TrainInput{})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Model m1 is ready.")
}

func TestWatch_InterruptCancels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	err := watch(ctx, &out, newScriptedBackend(domain.TrainStatusCanceled), &domain.TrainInput{})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "canceled"), err.Error())
	assert.Contains(t, out.String(), "Cancelling...")
}

func TestWatch_Errored(t *testing.T) {
	err := watch(context.Background(), &bytes.Buffer{}, newScriptedBackend(domain.TrainStatusErrored), &domain.TrainInput{})
	require.Error(t, err)
	assert.False(t, errors.Is(err, context.Canceled))
	assert.Contains(t, err.Error(), "failed")
}
