package internal

import (
	"fmt"
	"net/http"
	"regexp"
	"slices"
	"strings"
)

// Filter is a header predicate a method handler registration carries.
// A request satisfies it when every value it sends under Header matches
// Pattern as a whole string.
type Filter struct {
	Header  string
	Pattern *regexp.Regexp
}

// Filters maps header names to regular expressions.
//
// Example:
//
//	dispatch.Filters{"Accept": "application/json", "X-API-Version": "v[12]"}
type Filters map[string]string

// NewFilter compiles pattern anchored at both ends.
// Returns an error wrapping ErrInvalidFilter if the pattern is not a valid expression.
func NewFilter(header, pattern string) (Filter, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return Filter{}, fmt.Errorf("%w: empty header name", ErrInvalidFilter)
	}
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return Filter{}, fmt.Errorf("%w: header %s: %w", ErrInvalidFilter, header, err)
	}
	return Filter{Header: http.CanonicalHeaderKey(header), Pattern: re}, nil
}

// MustFilter is like NewFilter but panics on error.
// Intended for package-level declarations with constant patterns.
func MustFilter(header, pattern string) Filter {
	f, err := NewFilter(header, pattern)
	if err != nil {
		panic(err)
	}
	return f
}

// compile converts the map form into filters ordered by header name.
func (fs Filters) compile() ([]Filter, error) {
	headers := make([]string, 0, len(fs))
	for h := range fs {
		headers = append(headers, h)
	}
	slices.Sort(headers)

	out := make([]Filter, 0, len(headers))
	for _, h := range headers {
		f, err := NewFilter(h, fs[h])
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// Match reports whether every value of the filtered header matches.
// A request that does not carry the header passes.
func (f Filter) Match(headers http.Header) bool {
	for _, v := range headers.Values(f.Header) {
		if !f.Pattern.MatchString(v) {
			return false
		}
	}
	return true
}

// String returns the filter in "Header: pattern" form.
func (f Filter) String() string {
	if f.Pattern == nil {
		return f.Header
	}
	p := f.Pattern.String()
	p = strings.TrimSuffix(strings.TrimPrefix(p, "^(?:"), ")$")
	return f.Header + ": " + p
}

// matchAll stops at the first filter that fails.
func matchAll(filters []Filter, headers http.Header) bool {
	for _, f := range filters {
		if !f.Match(headers) {
			return false
		}
	}
	return true
}
