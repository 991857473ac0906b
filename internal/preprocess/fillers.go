package preprocess

import (
	"regexp"
	"sort"
	"strings"

	"github.com/openclerk/switchboard/internal/rx"
)

// defaultFillers are removed from every utterance regardless of template.
var defaultFillers = []string{
	"um", "uh", "er", "ah", "hmm", "mhm",
	"like", "you know", "i mean", "sort of", "kind of", "kinda",
	"basically", "actually", "literally", "well", "so", "anyway",
}

// greetings are stripped once when they lead the utterance.
var greetings = []string{
	"good morning", "good afternoon", "good evening",
	"hello there", "hey there", "hello", "hi there", "hey", "hi", "yeah hi",
}

// protectedWords are never removed even when they appear in a filler set;
// they carry answer semantics the router needs.
var protectedWords = map[string]struct{}{
	"no": {}, "yes": {}, "ok": {}, "okay": {}, "sure": {},
	"right": {}, "wrong": {}, "maybe": {},
}

// fillerConfig collects the filler-removal inputs for one turn.
type fillerConfig struct {
	CompanyName     string
	TemplateFillers []string
	CustomFillers   []string
	CategoryFillers []string
}

// removeFillers lowercases and trims text, strips the company name and a
// single leading greeting, removes filler phrases, and collapses whitespace.
//
// Filler phrases are the de-duplicated union of the default, template,
// company, and category sets, applied longest-first so that multi-word
// phrases win over their component words. Single tokens match on word
// boundaries; multi-word phrases match as substrings.
func removeFillers(text string, cfg fillerConfig) string {
	out := strings.ToLower(strings.TrimSpace(text))
	if out == "" {
		return out
	}

	if cfg.CompanyName != "" {
		out = removeWholeWords(out, strings.ToLower(cfg.CompanyName))
	}
	out = stripLeadingGreeting(out)

	for _, filler := range fillerPhrases(cfg) {
		if _, protected := protectedWords[filler]; protected {
			continue
		}
		if strings.Contains(filler, " ") {
			out = strings.ReplaceAll(out, filler, " ")
		} else {
			out = removeWholeWords(out, filler)
		}
	}

	return collapseWhitespace(out)
}

// fillerPhrases returns the union of all filler sets, lowercased,
// de-duplicated, sorted by length descending.
func fillerPhrases(cfg fillerConfig) []string {
	seen := make(map[string]struct{})
	var phrases []string
	for _, set := range [][]string{
		defaultFillers, cfg.TemplateFillers, cfg.CustomFillers, cfg.CategoryFillers,
	} {
		for _, f := range set {
			f = strings.ToLower(strings.TrimSpace(f))
			if f == "" {
				continue
			}
			if _, dup := seen[f]; dup {
				continue
			}
			seen[f] = struct{}{}
			phrases = append(phrases, f)
		}
	}
	sort.SliceStable(phrases, func(i, j int) bool {
		return len(phrases[i]) > len(phrases[j])
	})
	return phrases
}

// fillerSet returns the filler phrases as a lookup set (single words only),
// used by the tokenizer to drop filler tokens.
func fillerSet(cfg fillerConfig) map[string]struct{} {
	set := make(map[string]struct{})
	for _, f := range fillerPhrases(cfg) {
		if !strings.Contains(f, " ") {
			set[f] = struct{}{}
		}
	}
	return set
}

// stripLeadingGreeting removes at most one greeting from the start of text.
func stripLeadingGreeting(text string) string {
	for _, g := range greetings {
		if text == g {
			return ""
		}
		if strings.HasPrefix(text, g) {
			rest := text[len(g):]
			// Only strip when the greeting ends at a word boundary.
			if rest[0] == ' ' || rest[0] == ',' || rest[0] == '.' || rest[0] == '!' {
				return strings.TrimLeft(rest, " ,.!")
			}
		}
	}
	return text
}

// removeWholeWords removes word-boundary occurrences of word from text.
// word may contain spaces (e.g. a two-word company name).
func removeWholeWords(text, word string) string {
	re, err := rx.Compile(`(?i)\b` + regexp.QuoteMeta(word) + `\b`)
	if err != nil {
		return text
	}
	return re.ReplaceAllString(text, " ")
}

// collapseWhitespace squeezes runs of whitespace to single spaces and trims.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
