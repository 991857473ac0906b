// Package names implements the [preprocess.NameDictionary] contract with a
// built-in dictionary of common given and family names, widened by Double
// Metaphone phonetic codes and Jaro-Winkler similarity so that speech-to-text
// spellings of a known name ("Jon", "Mikel") still classify correctly.
package names

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// defaultFuzzyThreshold is the minimum Jaro-Winkler score required for a
// phonetic candidate to count as a dictionary hit.
const defaultFuzzyThreshold = 0.88

// Option is a functional option for configuring a [Dictionary].
type Option func(*Dictionary)

// WithFirstNames replaces the built-in given-name list.
func WithFirstNames(names ...string) Option {
	return func(d *Dictionary) { d.first = indexNames(names) }
}

// WithLastNames replaces the built-in family-name list.
func WithLastNames(names ...string) Option {
	return func(d *Dictionary) { d.last = indexNames(names) }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for phonetic
// matches. Default 0.88.
func WithFuzzyThreshold(t float64) Option {
	return func(d *Dictionary) { d.fuzzyThreshold = t }
}

// index holds a name list with a phonetic-code lookup for fast candidate
// filtering.
type index struct {
	exact map[string]struct{}
	codes map[string][]string // metaphone code → names sharing it
}

// Dictionary classifies name candidates. It is read-only after construction
// and safe for concurrent use.
type Dictionary struct {
	first          index
	last           index
	fuzzyThreshold float64
}

// New returns a Dictionary with the built-in name lists and the supplied
// options applied.
func New(opts ...Option) *Dictionary {
	d := &Dictionary{
		first:          indexNames(commonFirstNames),
		last:           indexNames(commonLastNames),
		fuzzyThreshold: defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// IsFirstName reports whether s matches a known given name, exactly or
// phonetically.
func (d *Dictionary) IsFirstName(s string) bool {
	return d.matches(d.first, s)
}

// IsLastName reports whether s matches a known family name, exactly or
// phonetically.
func (d *Dictionary) IsLastName(s string) bool {
	return d.matches(d.last, s)
}

// matches tests s against idx: an exact (case-insensitive) hit is accepted
// directly; otherwise names sharing a Double Metaphone code are ranked by
// Jaro-Winkler and the best must clear the fuzzy threshold.
func (d *Dictionary) matches(idx index, s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return false
	}
	if _, ok := idx.exact[s]; ok {
		return true
	}

	primary, secondary := matchr.DoubleMetaphone(s)
	best := 0.0
	for _, code := range []string{primary, secondary} {
		if code == "" {
			continue
		}
		for _, candidate := range idx.codes[code] {
			if score := matchr.JaroWinkler(s, candidate, false); score > best {
				best = score
			}
		}
	}
	return best >= d.fuzzyThreshold
}

// indexNames builds the exact and phonetic lookups for a name list.
func indexNames(names []string) index {
	idx := index{
		exact: make(map[string]struct{}, len(names)),
		codes: make(map[string][]string, len(names)*2),
	}
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" {
			continue
		}
		if _, dup := idx.exact[n]; dup {
			continue
		}
		idx.exact[n] = struct{}{}
		primary, secondary := matchr.DoubleMetaphone(n)
		if primary != "" {
			idx.codes[primary] = append(idx.codes[primary], n)
		}
		if secondary != "" && secondary != primary {
			idx.codes[secondary] = append(idx.codes[secondary], n)
		}
	}
	return idx
}

// commonFirstNames is a compact list of frequent North American given names.
// Tenants with unusual caller bases can replace it via [WithFirstNames].
var commonFirstNames = []string{
	"james", "john", "robert", "michael", "william", "david", "richard",
	"joseph", "thomas", "charles", "christopher", "daniel", "matthew",
	"anthony", "mark", "donald", "steven", "paul", "andrew", "joshua",
	"kenneth", "kevin", "brian", "george", "timothy", "ronald", "edward",
	"jason", "jeffrey", "ryan", "jacob", "gary", "nicholas", "eric",
	"jonathan", "stephen", "larry", "justin", "scott", "brandon", "benjamin",
	"samuel", "gregory", "alexander", "patrick", "frank", "raymond", "jack",
	"dennis", "jerry", "tyler", "aaron", "jose", "adam", "nathan", "henry",
	"zachary", "douglas", "peter", "kyle", "noah", "ethan", "carlos", "luis",
	"mary", "patricia", "jennifer", "linda", "elizabeth", "barbara", "susan",
	"jessica", "sarah", "karen", "lisa", "nancy", "betty", "sandra",
	"margaret", "ashley", "kimberly", "emily", "donna", "michelle", "carol",
	"amanda", "melissa", "deborah", "stephanie", "rebecca", "sharon", "laura",
	"cynthia", "kathleen", "amy", "angela", "shirley", "anna", "brenda",
	"pamela", "emma", "nicole", "helen", "samantha", "katherine", "christine",
	"debra", "rachel", "carolyn", "janet", "catherine", "maria", "heather",
	"diane", "ruth", "julie", "olivia", "joyce", "virginia", "victoria",
	"kelly", "lauren", "christina", "joan", "evelyn", "judith", "megan",
	"andrea", "cheryl", "hannah", "jacqueline", "martha", "gloria", "teresa",
	"ann", "sara", "madison", "frances", "kathryn", "janice", "jean",
	"abigail", "alice", "julia", "judy", "sophia", "grace", "denise",
	"amber", "doris", "marilyn", "danielle", "beverly", "isabella",
	"theresa", "diana", "natalie", "brittany", "charlotte", "marie",
	"kayla", "alexis", "lori",
}

// commonLastNames is a compact list of frequent North American family names.
var commonLastNames = []string{
	"smith", "johnson", "williams", "brown", "jones", "garcia", "miller",
	"davis", "rodriguez", "martinez", "hernandez", "lopez", "gonzalez",
	"wilson", "anderson", "thomas", "taylor", "moore", "jackson", "martin",
	"lee", "perez", "thompson", "white", "harris", "sanchez", "clark",
	"ramirez", "lewis", "robinson", "walker", "young", "allen", "king",
	"wright", "scott", "torres", "nguyen", "hill", "flores", "green",
	"adams", "nelson", "baker", "hall", "rivera", "campbell", "mitchell",
	"carter", "roberts", "gomez", "phillips", "evans", "turner", "diaz",
	"parker", "cruz", "edwards", "collins", "reyes", "stewart", "morris",
	"morales", "murphy", "cook", "rogers", "gutierrez", "ortiz", "morgan",
	"cooper", "peterson", "bailey", "reed", "kelly", "howard", "ramos",
	"kim", "cox", "ward", "richardson", "watson", "brooks", "chavez",
	"wood", "james", "bennett", "gray", "mendoza", "ruiz", "hughes",
	"price", "alvarez", "castillo", "sanders", "patel", "myers", "long",
	"ross", "foster", "jimenez", "powell", "jenkins", "perry", "russell",
	"sullivan", "bell", "coleman", "butler", "henderson", "barnes",
	"gonzales", "fisher", "vasquez", "simmons", "romero", "jordan",
	"patterson", "alexander", "hamilton", "graham", "reynolds", "griffin",
	"wallace", "moreno", "west", "cole", "hayes", "bryant", "herrera",
	"gibson", "ellis", "tran", "medina", "aguilar", "stevens", "murray",
	"ford", "castro", "marshall", "owens", "harrison", "fernandez",
	"mcdonald", "woods", "washington", "kennedy", "wells", "vargas",
}
