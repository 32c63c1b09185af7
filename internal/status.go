package internal

import "net/http"

// unknownStatusText is used for codes without a registered reason phrase.
const unknownStatusText = "No Appropriate Status Message Found"

// StatusLookup maps a status code to its reason phrase.
type StatusLookup func(code int) string

// StatusText returns the canonical reason phrase for code.
func StatusText(code int) string {
	if text := http.StatusText(code); text != "" {
		return text
	}
	return unknownStatusText
}
