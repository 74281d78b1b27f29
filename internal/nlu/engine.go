// Package nlu implements the natural-language-understanding engine: training,
// model loading and intent/entity prediction.
package nlu

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/ashureev/botkit/internal/domain"
)

const (
	// EngineVersion is bumped whenever the serialized model layout changes.
	EngineVersion = "1.2.0"

	defaultAlpha = 1.0
)

// ProgressFunc receives training progress in [0,1].
type ProgressFunc func(progress float64)

// Engine trains models and runs inference on loaded models.
type Engine interface {
	// Version returns the engine version stored with every model.
	Version() string

	// SpecificationHash identifies the engine version and its hyper-parameters.
	SpecificationHash() string

	// ComputeModelHash returns a content hash of the training input.
	ComputeModelHash(input *domain.TrainInput) string

	// Train builds a serialized model. It returns domain.ErrTrainingCanceled when ctx ends first.
	Train(ctx context.Context, input *domain.TrainInput, progress ProgressFunc) ([]byte, error)

	// LoadModel makes a persisted model available to Predict.
	LoadModel(model *domain.Model) error

	// UnloadModel releases one reference taken by LoadModel.
	UnloadModel(modelID string)

	// Predict runs inference on a loaded model.
	Predict(ctx context.Context, modelID, sentence string) (*domain.Prediction, error)
}

// Fallback classifies a sentence when the local model is not confident enough.
type Fallback interface {
	Name() string
	Classify(ctx context.Context, sentence string, intents []string) (intent string, confidence float64, err error)
}

// Options configures a BayesEngine.
type Options struct {
	Alpha             float64
	Fallback          Fallback
	FallbackThreshold float64
	Logger            *slog.Logger
}

// BayesEngine is the reference Engine built on naive-Bayes topic and intent classifiers.
type BayesEngine struct {
	alpha             float64
	fallback          Fallback
	fallbackThreshold float64
	logger            *slog.Logger

	mu     sync.Mutex
	loaded map[string]*loadedModel
}

type loadedModel struct {
	refs      int
	model     *trainedModel
	extractor *entityExtractor
}

// trainedModel is the serialized form of a model.
type trainedModel struct {
	Version  string                      `json:"version"`
	Language string                      `json:"language"`
	Seed     int64                       `json:"seed"`
	Entities []domain.Entity             `json:"entities"`
	Topics   *bayesClassifier            `json:"topics"`
	Intents  map[string]*bayesClassifier `json:"intents"`
	Slots    map[string][]domain.Slot    `json:"slots"`
}

var _ Engine = (*BayesEngine)(nil)

// NewEngine creates a BayesEngine.
func NewEngine(opts Options) *BayesEngine {
	if opts.Alpha <= 0 {
		opts.Alpha = defaultAlpha
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &BayesEngine{
		alpha:             opts.Alpha,
		fallback:          opts.Fallback,
		fallbackThreshold: opts.FallbackThreshold,
		logger:            opts.Logger,
		loaded:            make(map[string]*loadedModel),
	}
}

// Version returns the engine version.
func (e *BayesEngine) Version() string { return EngineVersion }

// SpecificationHash identifies the engine version and its hyper-parameters.
func (e *BayesEngine) SpecificationHash() string {
	return specificationHash(EngineVersion, e.alpha)
}

// ComputeModelHash returns a content hash of the training input.
func (e *BayesEngine) ComputeModelHash(input *domain.TrainInput) string {
	return ComputeModelHash(input)
}

// Train builds the topic classifier, then one intent classifier per topic,
// reporting progress and checking for cancellation after every step.
func (e *BayesEngine) Train(ctx context.Context, input *domain.TrainInput, progress ProgressFunc) ([]byte, error) {
	if progress == nil {
		progress = func(float64) {}
	}
	steps := float64(len(input.Topics) + 1)
	step := 0.0

	checkpoint := func() error {
		step++
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrTrainingCanceled, err)
		}
		progress(step / steps)
		return nil
	}

	if _, err := newEntityExtractor(input.Entities); err != nil {
		return nil, err
	}

	var topicDocs []labeledDoc
	for _, t := range input.Topics {
		for _, intent := range t.Intents {
			for _, u := range intent.Utterances {
				topicDocs = append(topicDocs, labeledDoc{label: t.Name, tokens: tokenize(u)})
			}
		}
	}

	model := &trainedModel{
		Version:  EngineVersion,
		Language: input.Language,
		Seed:     input.Seed,
		Entities: input.Entities,
		Topics:   trainBayes(topicDocs, e.alpha),
		Intents:  make(map[string]*bayesClassifier, len(input.Topics)),
		Slots:    make(map[string][]domain.Slot),
	}
	if err := checkpoint(); err != nil {
		return nil, err
	}

	for _, t := range input.Topics {
		var docs []labeledDoc
		for _, intent := range t.Intents {
			for _, u := range intent.Utterances {
				docs = append(docs, labeledDoc{label: intent.Name, tokens: tokenize(u)})
			}
			if len(intent.Slots) > 0 {
				model.Slots[slotKey(t.Name, intent.Name)] = intent.Slots
			}
		}
		model.Intents[t.Name] = trainBayes(docs, e.alpha)
		if err := checkpoint(); err != nil {
			return nil, err
		}
	}

	data, err := json.Marshal(model)
	if err != nil {
		return nil, fmt.Errorf("serialize model: %w", err)
	}
	return data, nil
}

// LoadModel decodes the model and takes a reference on it.
// Loading an already loaded model only increments its reference count.
func (e *BayesEngine) LoadModel(model *domain.Model) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if lm, ok := e.loaded[model.ModelID]; ok {
		lm.refs++
		return nil
	}

	var tm trainedModel
	if err := json.Unmarshal(model.Data, &tm); err != nil {
		return fmt.Errorf("decode model %s: %w", model.ModelID, err)
	}
	if tm.Version != EngineVersion {
		return fmt.Errorf("model %s was trained with engine %s, running %s", model.ModelID, tm.Version, EngineVersion)
	}
	extractor, err := newEntityExtractor(tm.Entities)
	if err != nil {
		return err
	}

	e.loaded[model.ModelID] = &loadedModel{refs: 1, model: &tm, extractor: extractor}
	e.logger.Debug("Model loaded", "model_id", model.ModelID)
	return nil
}

// UnloadModel releases one reference; the model is dropped with its last reference.
func (e *BayesEngine) UnloadModel(modelID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	lm, ok := e.loaded[modelID]
	if !ok {
		return
	}
	lm.refs--
	if lm.refs <= 0 {
		delete(e.loaded, modelID)
		e.logger.Debug("Model unloaded", "model_id", modelID)
	}
}

// IsLoaded reports whether a model currently holds references.
func (e *BayesEngine) IsLoaded(modelID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.loaded[modelID]
	return ok
}

// Predict ranks topics and intents for sentence and extracts entities and slots.
func (e *BayesEngine) Predict(ctx context.Context, modelID, sentence string) (*domain.Prediction, error) {
	e.mu.Lock()
	lm, ok := e.loaded[modelID]
	e.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrModelNotLoaded, modelID)
	}

	tokens := tokenize(sentence)
	entities := lm.extractor.extract(sentence)

	pred := &domain.Prediction{
		Sentence: sentence,
		Entities: entities,
		Topics:   []domain.TopicPrediction{},
	}

	for _, ts := range lm.model.Topics.classify(tokens) {
		tp := domain.TopicPrediction{Name: ts.label, Confidence: ts.p, Intents: []domain.IntentPrediction{}}
		if clf, ok := lm.model.Intents[ts.label]; ok {
			for _, is := range clf.classify(tokens) {
				tp.Intents = append(tp.Intents, domain.IntentPrediction{
					Name:       is.label,
					Confidence: is.p,
					Slots:      bindSlots(lm.model.Slots[slotKey(ts.label, is.label)], entities),
				})
			}
		}
		pred.Topics = append(pred.Topics, tp)
	}

	e.applyFallback(ctx, lm.model, pred)
	return pred, nil
}

func (e *BayesEngine) applyFallback(ctx context.Context, model *trainedModel, pred *domain.Prediction) {
	if e.fallback == nil {
		return
	}
	topic, best := pred.TopIntent()
	if best != nil {
		score := best.Confidence
		for _, t := range pred.Topics {
			if t.Name == topic {
				score *= t.Confidence
			}
		}
		if score >= e.fallbackThreshold {
			return
		}
	}

	var candidates []string
	for topicName, clf := range model.Intents {
		for _, intent := range clf.Classes {
			candidates = append(candidates, slotKey(topicName, intent))
		}
	}
	sort.Strings(candidates)

	intent, confidence, err := e.fallback.Classify(ctx, pred.Sentence, candidates)
	if err != nil {
		e.logger.Warn("Fallback classification failed", "provider", e.fallback.Name(), "error", err)
		return
	}
	pred.Fallback = &domain.FallbackResult{
		Intent:     intent,
		Confidence: confidence,
		Provider:   e.fallback.Name(),
	}
}

// bindSlots assigns the first entity occurrence of a matching type to each slot.
func bindSlots(slots []domain.Slot, entities []domain.EntityMatch) []domain.SlotMatch {
	out := []domain.SlotMatch{}
	used := make(map[int]bool)
	for _, slot := range slots {
		for i, ent := range entities {
			if used[i] || !acceptsEntity(slot, ent.Name) {
				continue
			}
			used[i] = true
			out = append(out, domain.SlotMatch{
				Name:   slot.Name,
				Entity: ent.Name,
				Value:  ent.Value,
				Source: ent.Source,
				Start:  ent.Start,
				End:    ent.End,
			})
			break
		}
	}
	return out
}

func acceptsEntity(slot domain.Slot, entity string) bool {
	for _, name := range slot.Entities {
		if name == entity || name == domain.SlotEntityAny {
			return true
		}
	}
	return false
}

func slotKey(topic, intent string) string {
	return topic + "/" + intent
}
