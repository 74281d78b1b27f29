package nlu

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/ashureev/botkit/internal/domain"
)

// entityExtractor finds list and pattern entity occurrences in a sentence.
type entityExtractor struct {
	lists    []listEntity
	patterns []patternEntity
}

type listEntity struct {
	name          string
	caseSensitive bool
	// candidates maps each surface form to its canonical value.
	candidates map[string]string
}

type patternEntity struct {
	name string
	re   *regexp.Regexp
}

func newEntityExtractor(entities []domain.Entity) (*entityExtractor, error) {
	x := &entityExtractor{}
	for _, e := range entities {
		switch e.Type {
		case domain.EntityTypeList:
			le := listEntity{name: e.Name, caseSensitive: e.CaseSensitive, candidates: make(map[string]string)}
			for _, v := range e.Values {
				for _, form := range append([]string{v.Name}, v.Synonyms...) {
					form = strings.TrimSpace(form)
					if form == "" {
						continue
					}
					if !e.CaseSensitive {
						form = strings.ToLower(form)
					}
					le.candidates[form] = v.Name
				}
			}
			x.lists = append(x.lists, le)
		case domain.EntityTypePattern:
			expr := e.Pattern
			if !e.CaseSensitive {
				expr = "(?i)" + expr
			}
			re, err := regexp.Compile(expr)
			if err != nil {
				return nil, fmt.Errorf("compile pattern entity %s: %w", e.Name, err)
			}
			x.patterns = append(x.patterns, patternEntity{name: e.Name, re: re})
		}
	}
	return x, nil
}

// extract returns non-overlapping matches ordered by position. Longer matches win overlaps.
func (x *entityExtractor) extract(sentence string) []domain.EntityMatch {
	var found []domain.EntityMatch

	// Offsets index the original sentence. Lowercasing maps rune to rune but
	// not byte to byte, so forms are compared over rune windows.
	runeStarts := make([]int, 0, len(sentence)+1)
	for i := range sentence {
		runeStarts = append(runeStarts, i)
	}
	runeStarts = append(runeStarts, len(sentence))

	for _, le := range x.lists {
		for form, canonical := range le.candidates {
			n := utf8.RuneCountInString(form)
			for k := 0; k+n < len(runeStarts); k++ {
				start, end := runeStarts[k], runeStarts[k+n]
				window := sentence[start:end]
				if !le.caseSensitive {
					window = strings.ToLower(window)
				}
				if window != form || !atWordBoundary(sentence, start, end) {
					continue
				}
				found = append(found, domain.EntityMatch{
					Name:   le.name,
					Type:   domain.EntityTypeList,
					Value:  canonical,
					Source: sentence[start:end],
					Start:  start,
					End:    end,
				})
				k += n - 1
			}
		}
	}

	for _, pe := range x.patterns {
		for _, loc := range pe.re.FindAllStringIndex(sentence, -1) {
			if loc[0] == loc[1] {
				continue
			}
			src := sentence[loc[0]:loc[1]]
			found = append(found, domain.EntityMatch{
				Name:   pe.name,
				Type:   domain.EntityTypePattern,
				Value:  src,
				Source: src,
				Start:  loc[0],
				End:    loc[1],
			})
		}
	}

	sort.SliceStable(found, func(i, j int) bool {
		li, lj := found[i].End-found[i].Start, found[j].End-found[j].Start
		if li != lj {
			return li > lj
		}
		if found[i].Start != found[j].Start {
			return found[i].Start < found[j].Start
		}
		return found[i].Name < found[j].Name
	})

	kept := make([]domain.EntityMatch, 0, len(found))
	for _, m := range found {
		overlaps := false
		for _, k := range kept {
			if m.Start < k.End && k.Start < m.End {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, m)
		}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].Start < kept[j].Start })
	return kept
}
