package preprocess

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/openclerk/switchboard/internal/rx"
	"github.com/openclerk/switchboard/internal/template"
)

// applyVocabulary runs the template's ordered correction list over text.
// Corrections apply in ascending priority order (lower runs first). EXACT
// corrections match whole words; CONTAINS corrections match any substring.
// The leading-character capitalisation of each replaced occurrence is
// preserved so corrections behave the same on raw and lowercased text.
func applyVocabulary(text string, corrections []template.VocabCorrection) (string, error) {
	if len(corrections) == 0 {
		return text, nil
	}

	ordered := append([]template.VocabCorrection(nil), corrections...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})

	out := text
	for _, c := range ordered {
		if c.From == "" {
			continue
		}
		pattern := regexp.QuoteMeta(c.From)
		if c.Mode != template.MatchContains {
			pattern = `\b` + pattern + `\b`
		}
		re, err := rx.CompileCI(pattern)
		if err != nil {
			// Skip the broken rule; remaining corrections still apply.
			continue
		}
		out = re.ReplaceAllStringFunc(out, func(match string) string {
			return matchCase(match, c.To)
		})
	}
	return out, nil
}

// matchCase copies the leading-character capitalisation of src onto repl.
func matchCase(src, repl string) string {
	if src == "" || repl == "" {
		return repl
	}
	srcRunes := []rune(src)
	replRunes := []rune(repl)
	if unicode.IsUpper(srcRunes[0]) {
		replRunes[0] = unicode.ToUpper(replRunes[0])
	} else {
		replRunes[0] = unicode.ToLower(replRunes[0])
	}
	return string(replRunes)
}

// translateSynonyms replaces spoken aliases with their canonical technical
// term using word-boundary matching. Longer aliases run first so multi-word
// aliases are not shadowed by their parts.
func translateSynonyms(text string, synonyms map[string][]string) (string, error) {
	if len(synonyms) == 0 {
		return text, nil
	}

	type rule struct {
		alias string
		term  string
	}
	var rules []rule
	for term, aliases := range synonyms {
		for _, alias := range aliases {
			alias = strings.TrimSpace(alias)
			if alias == "" || strings.EqualFold(alias, term) {
				continue
			}
			rules = append(rules, rule{alias: alias, term: term})
		}
	}
	sort.SliceStable(rules, func(i, j int) bool {
		if len(rules[i].alias) != len(rules[j].alias) {
			return len(rules[i].alias) > len(rules[j].alias)
		}
		return rules[i].alias < rules[j].alias
	})

	out := text
	for _, r := range rules {
		re, err := rx.CompileCI(`\b` + regexp.QuoteMeta(r.alias) + `\b`)
		if err != nil {
			continue
		}
		out = re.ReplaceAllString(out, r.term)
	}
	return out, nil
}
