package internal

import (
	"net/http"
	"slices"
	"strings"
)

// methods is the closed set of HTTP verbs a Resource accepts handlers for.
var methods = map[string]struct{}{
	http.MethodGet:     {},
	http.MethodHead:    {},
	http.MethodPost:    {},
	http.MethodPut:     {},
	http.MethodPatch:   {},
	http.MethodDelete:  {},
	http.MethodConnect: {},
	http.MethodOptions: {},
	http.MethodTrace:   {},
}

// NormalizeMethod upper-cases method and checks it against the recognized verbs.
// Returns a *MethodError wrapping ErrUnsupportedMethod for anything else.
func NormalizeMethod(method string) (string, error) {
	verb := strings.ToUpper(strings.TrimSpace(method))
	if _, ok := methods[verb]; !ok {
		return verb, &MethodError{Method: verb}
	}
	return verb, nil
}

// IsSupportedMethod reports whether method, in any case, is a recognized verb.
func IsSupportedMethod(method string) bool {
	_, err := NormalizeMethod(method)
	return err == nil
}

// SupportedMethods returns the recognized verbs in lexical order.
func SupportedMethods() []string {
	out := make([]string, 0, len(methods))
	for m := range methods {
		out = append(out, m)
	}
	slices.Sort(out)
	return out
}
