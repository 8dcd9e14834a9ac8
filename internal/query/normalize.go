// Package query turns raw user input into the canonical CacheKey used for
// build coordination and profile storage.
package query

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"dossier/internal/profile"
	"dossier/internal/services"
)

const (
	fieldSeparator     = "|"
	candidateSeparator = "::"
)

// keyEscaper percent-encodes the characters that delimit key components so a
// value can never be read as a separator.
var keyEscaper = strings.NewReplacer(
	"%", "%25",
	"|", "%7c",
	"=", "%3d",
	":", "%3a",
)

// disambiguators lists the optional fields in the fixed order they are
// appended to the key.
var disambiguators = []struct {
	name  string
	value func(profile.Query) string
}{
	{"location", func(q profile.Query) string { return q.Location }},
	{"company", func(q profile.Query) string { return q.Company }},
	{"age", func(q profile.Query) string { return q.Age }},
}

// Normalize derives the CacheKey for q. Fields are NFKC-normalized, case
// folded, and whitespace collapsed; a leading "@" on the primary identifier is
// dropped. Disambiguators follow in a fixed order and a selected candidate ID
// is appended last, so two queries that differ only in field order or spacing
// share a key. Separator characters inside a value are percent-encoded, so
// distinct queries never collide.
func Normalize(q profile.Query) (profile.CacheKey, error) {
	primary := strings.TrimPrefix(Clean(q.Text), "@")
	primary = strings.TrimSpace(primary)
	if primary == "" {
		return "", services.Wrap(services.ErrInvalidQuery, "query", "normalize", "primary identifier is empty", nil)
	}

	var b strings.Builder
	b.WriteString(keyEscaper.Replace(primary))
	for _, field := range disambiguators {
		value := Clean(field.value(q))
		if value == "" {
			continue
		}
		b.WriteString(fieldSeparator)
		b.WriteString(field.name)
		b.WriteByte('=')
		b.WriteString(keyEscaper.Replace(value))
	}
	if id := Clean(q.CandidateID); id != "" {
		b.WriteString(candidateSeparator)
		b.WriteString(keyEscaper.Replace(id))
	}
	return profile.CacheKey(b.String()), nil
}

// Clean applies the per-field normalization used by Normalize.
func Clean(value string) string {
	value = norm.NFKC.String(value)
	value = cases.Fold().String(value)
	return strings.Join(strings.FieldsFunc(value, unicode.IsSpace), " ")
}

// Handle returns the handle when the query text is an "@handle" reference.
func Handle(q profile.Query) (string, bool) {
	text := strings.TrimSpace(q.Text)
	if !strings.HasPrefix(text, "@") {
		return "", false
	}
	handle := strings.TrimSpace(strings.TrimPrefix(text, "@"))
	if handle == "" || strings.ContainsFunc(handle, unicode.IsSpace) {
		return "", false
	}
	return handle, true
}

// Display returns the primary identifier as entered, minus any "@" prefix and
// surrounding whitespace, for use in provider search requests.
func Display(q profile.Query) string {
	text := strings.TrimSpace(q.Text)
	return strings.Join(strings.Fields(strings.TrimPrefix(text, "@")), " ")
}
