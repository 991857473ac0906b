package preprocess

import (
	"strings"

	"github.com/openclerk/switchboard/internal/rx"
	"github.com/openclerk/switchboard/internal/template"
	"github.com/openclerk/switchboard/pkg/types"
)

// namePatterns are evaluated in this exact order; the first match for a given
// field wins. Capture groups hold the name candidates.
var namePatterns = []struct {
	re    string
	kind  string // "first+last", "first", "last"
	label string
}{
	{`(?i)\bI'?m\s+(?:mr\.?|mrs\.?|ms\.?|dr\.?|miss)\s+([A-Z][a-z]+)(?:\s+([A-Z][a-z]+))?`, "first+last", "im_honorific"},
	{`(?i)\bmy\s+name\s+is\s+([A-Z][a-z]+)(?:\s+([A-Z][a-z]+))?`, "first+last", "my_name_is"},
	{`(?i)\bthis\s+is\s+([A-Z][a-z]+)\s+([A-Z][a-z]+)\b`, "first+last", "this_is"},
	{`(?i)\bcall\s+me\s+([A-Z][a-z]+)\b`, "first", "call_me"},
	{`(?i)\bfirst\s+name\s+is\s+([A-Z][a-z]+)\b`, "first", "first_name_is"},
	{`(?i)\blast\s+name\s+is\s+([A-Z][a-z]+)\b`, "last", "last_name_is"},
}

var (
	phonePattern   = rx.MustCompile(`(?:\+?1[\s.-]?)?\(?(\d{3})\)?[\s.-]?(\d{3})[\s.-]?(\d{4})\b`)
	emailPattern   = rx.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	addressPattern = rx.MustCompile(`(?i)\b(\d+\s+[A-Za-z][A-Za-z ]*?\s(?:street|st|avenue|ave|road|rd|drive|dr|lane|ln|boulevard|blvd|court|ct|way|place|pl))\b`)
)

// extractEntities runs the strictly-ordered extraction patterns over the raw
// (original-case) text, classifies name candidates against the dictionary
// when one is available, and applies any template-configured custom patterns.
func extractEntities(rawText string, names NameDictionary, custom []template.EntityPattern) types.Entities {
	var out types.Entities

	first, last := extractNameCandidates(rawText)
	out.FirstName, out.LastName, out.NameValidated = classifyName(first, last, names)
	switch {
	case out.FirstName != "" && out.LastName != "":
		out.FullName = out.FirstName + " " + out.LastName
	case out.FirstName != "":
		out.FullName = out.FirstName
	case out.LastName != "":
		out.FullName = out.LastName
	}

	if m := phonePattern.FindStringSubmatch(rawText); m != nil {
		out.Phone = m[1] + m[2] + m[3]
	}
	if m := emailPattern.FindString(rawText); m != "" {
		out.Email = strings.ToLower(m)
	}
	if m := addressPattern.FindStringSubmatch(rawText); m != nil {
		out.Address = strings.TrimSpace(m[1])
	}

	for _, p := range custom {
		re, err := rx.Compile(p.Regex)
		if err != nil {
			continue
		}
		m := re.FindStringSubmatch(rawText)
		if m == nil {
			continue
		}
		value := m[0]
		if len(m) > 1 && m[1] != "" {
			value = m[1]
		}
		if out.Custom == nil {
			out.Custom = make(map[string]string)
		}
		out.Custom[p.Name] = value
	}

	return out
}

// extractNameCandidates returns the first and last name candidates produced
// by the ordered name patterns. Earlier patterns win per field.
func extractNameCandidates(rawText string) (first, last string) {
	for _, p := range namePatterns {
		re := rx.MustCompile(p.re)
		m := re.FindStringSubmatch(rawText)
		if m == nil {
			continue
		}
		switch p.kind {
		case "first+last":
			if first == "" {
				first = m[1]
			}
			if last == "" && len(m) > 2 {
				last = m[2]
			}
		case "first":
			if first == "" {
				first = m[1]
			}
		case "last":
			if last == "" {
				last = m[1]
			}
		}
		if first != "" && last != "" {
			break
		}
	}
	return first, last
}

// classifyName resolves the candidate pair against the name dictionary:
//
//   - both validate → keep both, validated
//   - only the last validates → keep lastName only, validated
//   - anything else → keep the raw guess, unvalidated
//
// Without a dictionary the guess passes through unvalidated.
func classifyName(first, last string, names NameDictionary) (outFirst, outLast string, validated bool) {
	if first == "" && last == "" {
		return "", "", false
	}
	if names == nil {
		return first, last, false
	}

	firstOK := first != "" && names.IsFirstName(first)
	lastOK := last != "" && names.IsLastName(last)

	switch {
	case firstOK && lastOK:
		return first, last, true
	case firstOK && last == "":
		return first, "", true
	case lastOK && !firstOK:
		// The "first" candidate failed validation; trust only the last name.
		return "", last, true
	default:
		return first, last, false
	}
}
