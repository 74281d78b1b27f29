// Package widget holds UI-independent state machines for botkit front ends.
package widget

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/ashureev/botkit/internal/client"
	"github.com/ashureev/botkit/internal/domain"
	"github.com/ashureev/botkit/internal/events"
)

var (
	// ErrNotMounted is returned when the control is used before Mount or after Close.
	ErrNotMounted = errors.New("training control is not mounted")
	// ErrNotTraining is returned by CancelTraining when nothing is running.
	ErrNotTraining = errors.New("no training in progress")
)

// Stream is a released-on-close source of status events.
type Stream interface {
	C() <-chan events.Event
	Close() error
}

// Backend is the server capability the control drives.
type Backend interface {
	TrainingSession(ctx context.Context, modelID, password string) (*domain.TrainSession, error)
	Train(ctx context.Context, input *domain.TrainInput) (string, error)
	CancelTraining(ctx context.Context, modelID, password string) error
	// Watch streams the status events of the models guarded by password.
	Watch(ctx context.Context, modelID, password string) (Stream, error)
}

// clientBackend adapts *client.Client to Backend.
type clientBackend struct {
	*client.Client
}

func (b clientBackend) Watch(ctx context.Context, modelID, password string) (Stream, error) {
	return b.Subscribe(ctx, modelID, password)
}

// FromClient returns a Backend backed by the HTTP API.
func FromClient(c *client.Client) Backend {
	return clientBackend{Client: c}
}

// Mode is how the training button renders.
type Mode int

const (
	ModeTrainable Mode = iota
	ModeTraining
	ModeCancelling
)

func (m Mode) String() string {
	switch m {
	case ModeTraining:
		return "training"
	case ModeCancelling:
		return "cancelling"
	default:
		return "trainable"
	}
}

// State is a snapshot for rendering.
type State struct {
	Mode    Mode
	Session *domain.TrainSession
}

// TrainingControl starts and cancels a training and follows its status events.
type TrainingControl struct {
	backend  Backend
	input    *domain.TrainInput
	onChange func(State)
	logger   *slog.Logger

	mu         sync.Mutex
	modelID    string
	training   bool
	cancelling bool
	session    *domain.TrainSession
	stream     Stream
	loopDone   chan struct{}
}

// ControlOption configures a TrainingControl.
type ControlOption func(*TrainingControl)

// WithModelID sets the model to follow before the first Train call.
func WithModelID(modelID string) ControlOption {
	return func(c *TrainingControl) { c.modelID = modelID }
}

// WithOnChange registers fn to run after every state change. fn must not call back into the control.
func WithOnChange(fn func(State)) ControlOption {
	return func(c *TrainingControl) { c.onChange = fn }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ControlOption {
	return func(c *TrainingControl) { c.logger = logger }
}

// NewTrainingControl creates a control that trains input through backend.
func NewTrainingControl(backend Backend, input *domain.TrainInput, opts ...ControlOption) *TrainingControl {
	c := &TrainingControl{backend: backend, input: input, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Mount loads the current status and subscribes to status events.
func (c *TrainingControl) Mount(ctx context.Context) error {
	c.mu.Lock()
	modelID := c.modelID
	mounted := c.stream != nil
	c.mu.Unlock()
	if mounted {
		return nil
	}

	stream, err := c.backend.Watch(ctx, "", c.input.Password)
	if err != nil {
		return err
	}

	if modelID != "" {
		session, err := c.backend.TrainingSession(ctx, modelID, c.input.Password)
		switch {
		case client.IsNotFound(err):
		case err != nil:
			_ = stream.Close()
			return err
		default:
			c.record(*session)
		}
	}

	c.mu.Lock()
	c.stream = stream
	c.loopDone = make(chan struct{})
	done := c.loopDone
	c.mu.Unlock()

	go c.loop(stream, done)
	return nil
}

// Train starts a training and returns once the server accepted it.
func (c *TrainingControl) Train(ctx context.Context) error {
	c.mu.Lock()
	if c.stream == nil {
		c.mu.Unlock()
		return ErrNotMounted
	}
	c.mu.Unlock()

	modelID, err := c.backend.Train(ctx, c.input)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.modelID = modelID
	c.training = true
	c.cancelling = false
	c.session = nil
	c.mu.Unlock()
	c.notify()

	// A short training can finish before its events reach the loop.
	session, err := c.backend.TrainingSession(ctx, modelID, c.input.Password)
	if err != nil {
		c.logger.Debug("Training status refresh failed", "model_id", modelID, "error", err)
		return nil
	}
	c.record(*session)
	return nil
}

// CancelTraining asks the server to stop the running training. Completion arrives as an event.
func (c *TrainingControl) CancelTraining(ctx context.Context) error {
	c.mu.Lock()
	if !c.training {
		c.mu.Unlock()
		return ErrNotTraining
	}
	c.cancelling = true
	modelID := c.modelID
	c.mu.Unlock()
	c.notify()

	if err := c.backend.CancelTraining(ctx, modelID, c.input.Password); err != nil {
		c.mu.Lock()
		c.cancelling = false
		c.mu.Unlock()
		c.notify()
		return err
	}
	return nil
}

// ModelID returns the model the control follows.
func (c *TrainingControl) ModelID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.modelID
}

// State returns the current rendering state.
func (c *TrainingControl) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *TrainingControl) stateLocked() State {
	st := State{Mode: ModeTrainable}
	switch {
	case c.cancelling:
		st.Mode = ModeCancelling
	case c.training:
		st.Mode = ModeTraining
	}
	if c.session != nil {
		s := *c.session
		st.Session = &s
	}
	return st
}

// Close releases the status subscription and stops the event loop.
func (c *TrainingControl) Close() error {
	c.mu.Lock()
	stream, done := c.stream, c.loopDone
	c.stream, c.loopDone = nil, nil
	c.mu.Unlock()
	if stream == nil {
		return nil
	}

	err := stream.Close()
	<-done
	return err
}

func (c *TrainingControl) loop(stream Stream, done chan struct{}) {
	defer close(done)
	for ev := range stream.C() {
		status, err := events.DecodeStatus(ev)
		if err != nil || status.TrainSession == nil {
			continue
		}
		c.record(*status.TrainSession)
	}
}

// record applies session if it belongs to the followed model.
func (c *TrainingControl) record(session domain.TrainSession) {
	c.mu.Lock()
	if session.ModelID != c.modelID {
		c.mu.Unlock()
		return
	}
	if c.session != nil && session.UpdatedAt.Before(c.session.UpdatedAt) {
		c.mu.Unlock()
		return
	}
	c.session = &session
	switch {
	case session.Status.IsTerminal():
		c.training = false
		c.cancelling = false
	case session.Status == domain.TrainStatusPending, session.Status == domain.TrainStatusTraining:
		c.training = true
	}
	c.mu.Unlock()

	if session.Status.IsTerminal() {
		c.logger.Info("Training finished", "model_id", session.ModelID, "status", session.Status)
	}
	c.notify()
}

func (c *TrainingControl) notify() {
	if c.onChange == nil {
		return
	}
	c.onChange(c.State())
}
