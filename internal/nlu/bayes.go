package nlu

import (
	"math"
	"sort"
)

// bayesClassifier is a multinomial naive-Bayes text classifier with Laplace smoothing.
type bayesClassifier struct {
	Classes     []string                  `json:"classes"`
	DocCounts   map[string]int            `json:"docCounts"`
	TokenCounts map[string]map[string]int `json:"tokenCounts"`
	TotalTokens map[string]int            `json:"totalTokens"`
	VocabSize   int                       `json:"vocabSize"`
	Alpha       float64                   `json:"alpha"`
}

type labeledDoc struct {
	label  string
	tokens []string
}

type scored struct {
	label string
	p     float64
}

func trainBayes(docs []labeledDoc, alpha float64) *bayesClassifier {
	c := &bayesClassifier{
		DocCounts:   make(map[string]int),
		TokenCounts: make(map[string]map[string]int),
		TotalTokens: make(map[string]int),
		Alpha:       alpha,
	}
	vocab := make(map[string]struct{})
	for _, d := range docs {
		if _, ok := c.TokenCounts[d.label]; !ok {
			c.TokenCounts[d.label] = make(map[string]int)
			c.Classes = append(c.Classes, d.label)
		}
		c.DocCounts[d.label]++
		for _, tok := range d.tokens {
			c.TokenCounts[d.label][tok]++
			c.TotalTokens[d.label]++
			vocab[tok] = struct{}{}
		}
	}
	sort.Strings(c.Classes)
	c.VocabSize = len(vocab)
	return c
}

// classify returns every class with its posterior probability, best first.
func (c *bayesClassifier) classify(tokens []string) []scored {
	if len(c.Classes) == 0 {
		return nil
	}
	if len(c.Classes) == 1 {
		return []scored{{label: c.Classes[0], p: 1}}
	}

	totalDocs := 0
	for _, n := range c.DocCounts {
		totalDocs += n
	}

	logs := make([]float64, len(c.Classes))
	maxLog := math.Inf(-1)
	for i, class := range c.Classes {
		lp := math.Log(float64(c.DocCounts[class]) / float64(totalDocs))
		denom := float64(c.TotalTokens[class]) + c.Alpha*float64(c.VocabSize+1)
		for _, tok := range tokens {
			lp += math.Log((float64(c.TokenCounts[class][tok]) + c.Alpha) / denom)
		}
		logs[i] = lp
		if lp > maxLog {
			maxLog = lp
		}
	}

	var sum float64
	out := make([]scored, len(c.Classes))
	for i, class := range c.Classes {
		p := math.Exp(logs[i] - maxLog)
		sum += p
		out[i] = scored{label: class, p: p}
	}
	for i := range out {
		out[i].p /= sum
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].p > out[j].p })
	return out
}
