// Package domain contains core domain types for the botkit NLU server.
package domain

import (
	"regexp"
	"strconv"
	"strings"
)

// Entity types understood by the engine.
const (
	EntityTypeList    = "list"
	EntityTypePattern = "pattern"

	// SlotEntityAny matches any token span when no entity captured the slot.
	SlotEntityAny = "any"
)

var languagePattern = regexp.MustCompile(`^[a-z]{2}$`)

// TrainInput is the payload of a training request.
type TrainInput struct {
	Topics   []Topic  `json:"topics"`
	Entities []Entity `json:"entities"`
	Language string   `json:"language"`
	Password string   `json:"password,omitempty"`
	Seed     int64    `json:"seed"`
}

// Topic groups intents that belong to the same conversation context.
type Topic struct {
	Name    string   `json:"name" yaml:"name"`
	Intents []Intent `json:"intents" yaml:"intents"`
}

// Intent is a named set of example utterances.
type Intent struct {
	Name       string   `json:"name" yaml:"name"`
	Utterances []string `json:"utterances" yaml:"utterances"`
	Slots      []Slot   `json:"slots,omitempty" yaml:"slots,omitempty"`
}

// Slot binds an intent parameter to one or more entity types.
type Slot struct {
	Name     string   `json:"name" yaml:"name"`
	Entities []string `json:"entities" yaml:"entities"`
}

// Entity is a custom entity definition.
type Entity struct {
	Name          string        `json:"name" yaml:"name"`
	Type          string        `json:"type" yaml:"type"`
	Values        []EntityValue `json:"values,omitempty" yaml:"values,omitempty"`
	Pattern       string        `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	CaseSensitive bool          `json:"caseSensitive,omitempty" yaml:"caseSensitive,omitempty"`
}

// EntityValue is one canonical value of a list entity and its synonyms.
type EntityValue struct {
	Name     string   `json:"name" yaml:"name"`
	Synonyms []string `json:"synonyms,omitempty" yaml:"synonyms,omitempty"`
}

// Normalize trims names and lowercases the language code in place.
func (in *TrainInput) Normalize() {
	in.Language = strings.ToLower(strings.TrimSpace(in.Language))
	for i := range in.Topics {
		in.Topics[i].Name = strings.TrimSpace(in.Topics[i].Name)
		for j := range in.Topics[i].Intents {
			in.Topics[i].Intents[j].Name = strings.TrimSpace(in.Topics[i].Intents[j].Name)
		}
	}
	for i := range in.Entities {
		in.Entities[i].Name = strings.TrimSpace(in.Entities[i].Name)
		in.Entities[i].Type = strings.ToLower(strings.TrimSpace(in.Entities[i].Type))
	}
}

// Validate checks the training input against the accepted schema.
// Supported lists the languages the server can train; an empty list accepts any code.
func (in *TrainInput) Validate(supported []string) error {
	if !languagePattern.MatchString(in.Language) {
		return NewValidationError("language", "must be a two-letter language code")
	}
	if len(supported) > 0 && !contains(supported, in.Language) {
		return NewValidationError("language", "language "+in.Language+" is not supported")
	}
	if len(in.Topics) == 0 {
		return NewValidationError("topics", "at least one topic is required")
	}

	entities := make(map[string]struct{}, len(in.Entities))
	for i, e := range in.Entities {
		if e.Name == "" {
			return NewValidationError(field("entities", i, "name"), "is required")
		}
		if _, dup := entities[e.Name]; dup {
			return NewValidationError(field("entities", i, "name"), "duplicate entity "+e.Name)
		}
		entities[e.Name] = struct{}{}

		switch e.Type {
		case EntityTypeList:
			if len(e.Values) == 0 {
				return NewValidationError(field("entities", i, "values"), "list entity needs at least one value")
			}
		case EntityTypePattern:
			if e.Pattern == "" {
				return NewValidationError(field("entities", i, "pattern"), "is required")
			}
			if _, err := regexp.Compile(e.Pattern); err != nil {
				return NewValidationError(field("entities", i, "pattern"), "invalid regular expression: "+err.Error())
			}
		default:
			return NewValidationError(field("entities", i, "type"), "must be list or pattern")
		}
	}

	intents := 0
	topics := make(map[string]struct{}, len(in.Topics))
	for i, t := range in.Topics {
		if t.Name == "" {
			return NewValidationError(field("topics", i, "name"), "is required")
		}
		if _, dup := topics[t.Name]; dup {
			return NewValidationError(field("topics", i, "name"), "duplicate topic "+t.Name)
		}
		topics[t.Name] = struct{}{}

		for j, intent := range t.Intents {
			path := field("topics", i, "intents") + "[" + strconv.Itoa(j) + "]"
			if intent.Name == "" {
				return NewValidationError(path+".name", "is required")
			}
			if len(intent.Utterances) == 0 {
				return NewValidationError(path+".utterances", "at least one utterance is required")
			}
			for k, slot := range intent.Slots {
				if slot.Name == "" {
					return NewValidationError(path+".slots["+strconv.Itoa(k)+"].name", "is required")
				}
				for _, ref := range slot.Entities {
					if ref == SlotEntityAny {
						continue
					}
					if _, ok := entities[ref]; !ok {
						return NewValidationError(path+".slots["+strconv.Itoa(k)+"].entities", "unknown entity "+ref)
					}
				}
			}
			intents++
		}
	}
	if intents == 0 {
		return NewValidationError("topics", "at least one intent is required")
	}
	return nil
}

func field(list string, i int, name string) string {
	return list + "[" + strconv.Itoa(i) + "]." + name
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
