package nlu

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/ashureev/botkit/internal/domain"
)

const hashLength = 16

// ComputeModelHash returns a content hash of the intents, entities and language of input.
// Ordering of topics, intents, utterances and entities does not affect the result.
func ComputeModelHash(input *domain.TrainInput) string {
	canon := canonicalInput{Language: input.Language}

	for _, t := range input.Topics {
		ct := canonicalTopic{Name: t.Name}
		for _, intent := range t.Intents {
			ci := canonicalIntent{
				Name:       intent.Name,
				Utterances: sortedCopy(intent.Utterances),
			}
			for _, s := range intent.Slots {
				ci.Slots = append(ci.Slots, domain.Slot{Name: s.Name, Entities: sortedCopy(s.Entities)})
			}
			sort.Slice(ci.Slots, func(i, j int) bool { return ci.Slots[i].Name < ci.Slots[j].Name })
			ct.Intents = append(ct.Intents, ci)
		}
		sort.Slice(ct.Intents, func(i, j int) bool { return ct.Intents[i].Name < ct.Intents[j].Name })
		canon.Topics = append(canon.Topics, ct)
	}
	sort.Slice(canon.Topics, func(i, j int) bool { return canon.Topics[i].Name < canon.Topics[j].Name })

	for _, e := range input.Entities {
		ce := e
		ce.Values = nil
		for _, v := range e.Values {
			ce.Values = append(ce.Values, domain.EntityValue{Name: v.Name, Synonyms: sortedCopy(v.Synonyms)})
		}
		sort.Slice(ce.Values, func(i, j int) bool { return ce.Values[i].Name < ce.Values[j].Name })
		canon.Entities = append(canon.Entities, ce)
	}
	sort.Slice(canon.Entities, func(i, j int) bool { return canon.Entities[i].Name < canon.Entities[j].Name })

	// Marshalling plain structs of strings cannot fail.
	data, _ := json.Marshal(canon)
	return shortHash(data)
}

// specificationHash identifies the engine version and its hyper-parameters.
func specificationHash(version string, alpha float64) string {
	return shortHash([]byte(fmt.Sprintf("%s|alpha=%g", version, alpha)))
}

func shortHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:hashLength]
}

type canonicalInput struct {
	Language string           `json:"language"`
	Topics   []canonicalTopic `json:"topics"`
	Entities []domain.Entity  `json:"entities"`
}

type canonicalTopic struct {
	Name    string            `json:"name"`
	Intents []canonicalIntent `json:"intents"`
}

type canonicalIntent struct {
	Name       string        `json:"name"`
	Utterances []string      `json:"utterances"`
	Slots      []domain.Slot `json:"slots"`
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
