package domain

// Prediction is the engine output for one sentence.
type Prediction struct {
	Sentence string            `json:"sentence"`
	Entities []EntityMatch     `json:"entities"`
	Topics   []TopicPrediction `json:"topics"`
	Fallback *FallbackResult   `json:"fallback,omitempty"`
}

// TopicPrediction ranks one topic and the intents it contains.
type TopicPrediction struct {
	Name       string             `json:"name"`
	Confidence float64            `json:"confidence"`
	Intents    []IntentPrediction `json:"intents"`
}

// IntentPrediction ranks one intent and the slots extracted for it.
type IntentPrediction struct {
	Name       string      `json:"name"`
	Confidence float64     `json:"confidence"`
	Slots      []SlotMatch `json:"slots"`
}

// EntityMatch is an entity occurrence found in the sentence.
type EntityMatch struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Value  string `json:"value"`
	Source string `json:"source"`
	Start  int    `json:"start"`
	End    int    `json:"end"`
}

// SlotMatch is an entity occurrence bound to an intent slot.
type SlotMatch struct {
	Name   string `json:"name"`
	Entity string `json:"entity"`
	Value  string `json:"value"`
	Source string `json:"source"`
	Start  int    `json:"start"`
	End    int    `json:"end"`
}

// FallbackResult is set when a secondary classifier overrode a low-confidence prediction.
type FallbackResult struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Provider   string  `json:"provider"`
}

// TopIntent returns the best intent across all topics, or nil when nothing was predicted.
func (p *Prediction) TopIntent() (topic string, intent *IntentPrediction) {
	best := -1.0
	for i := range p.Topics {
		t := &p.Topics[i]
		for j := range t.Intents {
			score := t.Confidence * t.Intents[j].Confidence
			if score > best {
				best = score
				topic = t.Name
				intent = &t.Intents[j]
			}
		}
	}
	return topic, intent
}
