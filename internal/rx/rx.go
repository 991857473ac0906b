// Package rx provides a process-wide cache of compiled regular expressions.
//
// Templates carry user-authored regex triggers and entity patterns that are
// evaluated on every turn; compiling them once and reusing the compiled form
// keeps the per-turn cost to a map lookup.
package rx

import (
	"regexp"
	"sync"
)

var cache sync.Map // pattern string → *regexp.Regexp

// Compile returns the compiled form of pattern, caching the result.
func Compile(pattern string) (*regexp.Regexp, error) {
	if v, ok := cache.Load(pattern); ok {
		return v.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	actual, _ := cache.LoadOrStore(pattern, re)
	return actual.(*regexp.Regexp), nil
}

// CompileCI compiles pattern case-insensitively, caching the result.
func CompileCI(pattern string) (*regexp.Regexp, error) {
	return Compile("(?i)" + pattern)
}

// MustCompile is like [Compile] but panics on error. For package-level
// patterns known to be valid.
func MustCompile(pattern string) *regexp.Regexp {
	re, err := Compile(pattern)
	if err != nil {
		panic(err)
	}
	return re
}
