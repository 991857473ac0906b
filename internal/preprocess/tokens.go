package preprocess

import (
	"sort"
	"strings"

	"github.com/openclerk/switchboard/internal/rx"
	"github.com/openclerk/switchboard/internal/template"
)

// tokenPattern matches content tokens: alphanumeric runs with optional
// apostrophes (so "isn't" and "won't" survive as single tokens).
var tokenPattern = rx.MustCompile(`[a-z0-9]+(?:'[a-z0-9]+)*`)

// tokenize splits normalized text into ordered content tokens. Tokens must be
// longer than two characters and must not be filler words.
func tokenize(normalized string, fillers map[string]struct{}) []string {
	raw := tokenPattern.FindAllString(strings.ToLower(normalized), -1)
	tokens := make([]string, 0, len(raw))
	for _, t := range raw {
		if len(t) <= 2 {
			continue
		}
		if _, isFiller := fillers[t]; isFiller {
			continue
		}
		tokens = append(tokens, t)
	}
	return tokens
}

// expandTokens builds the expanded token superset: the original tokens, the
// synonym family of each token, and the component tokens of every context
// pattern whose words are all present. The result is de-duplicated while
// preserving first-seen order; originalTokens is always a subset.
func expandTokens(originalTokens []string, synonyms map[string][]string, patterns []template.ContextPattern) ([]string, map[string][]string) {
	expansionMap := make(map[string][]string)
	seen := make(map[string]struct{}, len(originalTokens))
	expanded := make([]string, 0, len(originalTokens)*2)

	add := func(source, tok string) {
		tok = strings.ToLower(tok)
		if tok == "" {
			return
		}
		if _, dup := seen[tok]; dup {
			return
		}
		seen[tok] = struct{}{}
		expanded = append(expanded, tok)
		if source != "" && source != tok {
			expansionMap[source] = append(expansionMap[source], tok)
		}
	}

	for _, tok := range originalTokens {
		add("", tok)
	}

	// Synonym families: a token that is an alias pulls in the canonical term
	// and its sibling aliases; a token that is a canonical term pulls in its
	// aliases.
	for _, tok := range originalTokens {
		for term, aliases := range synonyms {
			termLower := strings.ToLower(term)
			if tok == termLower {
				for _, alias := range aliases {
					for _, part := range strings.Fields(strings.ToLower(alias)) {
						if len(part) > 2 {
							add(tok, part)
						}
					}
				}
				continue
			}
			for _, alias := range aliases {
				if strings.EqualFold(tok, alias) {
					add(tok, termLower)
					break
				}
			}
		}
	}

	// Context patterns, highest priority first: when every pattern word is
	// present, the component and its context tokens join the expansion.
	ordered := append([]template.ContextPattern(nil), patterns...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})
	tokenSet := make(map[string]struct{}, len(expanded))
	for _, t := range expanded {
		tokenSet[t] = struct{}{}
	}
	for _, p := range ordered {
		if len(p.Pattern) == 0 {
			continue
		}
		fired := true
		for _, word := range p.Pattern {
			if _, ok := tokenSet[strings.ToLower(word)]; !ok {
				fired = false
				break
			}
		}
		if !fired {
			continue
		}
		source := strings.ToLower(p.Pattern[0])
		add(source, p.Component)
		for _, ct := range p.ContextTokens {
			add(source, ct)
		}
	}

	return expanded, expansionMap
}

// containsFold reports whether list contains s case-insensitively.
func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
