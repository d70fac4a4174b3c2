package capture

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// Template is a query with exactly one substitution placeholder, written as
// either "?" or "$1". The placeholder is the only path by which a case value
// reaches the statement: values travel through wire-protocol parameter
// binding, never string concatenation.
type Template struct {
	text string
}

// NewTemplate validates the placeholder contract and normalizes "?" to "$1".
func NewTemplate(text string) (Template, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Template{}, errors.New("capture: empty query template")
	}

	marks, dollars := countPlaceholders(trimmed)
	total := marks + dollars
	switch {
	case total == 0:
		return Template{}, errors.Newf("capture: template has no substitution placeholder: %s", trimmed)
	case total > 1:
		return Template{}, errors.Newf("capture: template must have exactly one placeholder, found %d", total)
	}

	if marks == 1 {
		trimmed = rewriteMark(trimmed)
	}
	return Template{text: trimmed}, nil
}

// SQL returns the statement text with the "$1" placeholder.
func (t Template) SQL() string {
	return t.text
}

// countPlaceholders counts "?" marks and "$n" parameters outside
// single-quoted literals. Any "$n" other than "$1" counts as a second
// placeholder so the contract fails loudly.
func countPlaceholders(text string) (marks, dollars int) {
	inQuote := false
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		if ch == '\'' {
			inQuote = !inQuote
			continue
		}
		if inQuote {
			continue
		}
		switch {
		case ch == '?':
			marks++
		case ch == '$' && i+1 < len(runes) && runes[i+1] >= '0' && runes[i+1] <= '9':
			if runes[i+1] != '1' || (i+2 < len(runes) && runes[i+2] >= '0' && runes[i+2] <= '9') {
				dollars += 2
			} else {
				dollars++
			}
			i++
		}
	}
	return marks, dollars
}

func rewriteMark(text string) string {
	inQuote := false
	runes := []rune(text)
	for i, ch := range runes {
		if ch == '\'' {
			inQuote = !inQuote
			continue
		}
		if !inQuote && ch == '?' {
			return string(runes[:i]) + "$1" + string(runes[i+1:])
		}
	}
	return text
}
