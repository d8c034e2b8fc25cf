package schemadef

import (
	"strings"
	"unicode"
)

// splitName splits on hyphens and underscores.
func splitName(name string) []string {
	return strings.FieldsFunc(name, func(r rune) bool {
		return r == '-' || r == '_'
	})
}

// ToPascalCase upper-cases the first letter of every word and keeps the
// rest, so camelCase field names survive: "createdAt" becomes "CreatedAt".
func ToPascalCase(name string) string {
	var b strings.Builder
	for _, part := range splitName(name) {
		runes := []rune(part)
		b.WriteRune(unicode.ToUpper(runes[0]))
		b.WriteString(string(runes[1:]))
	}
	return b.String()
}

// CommonAcronyms are words rendered fully upper-cased in Go names.
var CommonAcronyms = map[string]string{
	"id":   "ID",
	"url":  "URL",
	"uuid": "UUID",
	"api":  "API",
	"http": "HTTP",
	"json": "JSON",
}

// ToPascalCaseAcronyms is ToPascalCase with CommonAcronyms applied to whole
// words and to a trailing camelCase word ("ownerId" becomes "OwnerID").
func ToPascalCaseAcronyms(name string) string {
	var b strings.Builder
	for _, part := range splitName(name) {
		if acronym, ok := CommonAcronyms[strings.ToLower(part)]; ok {
			b.WriteString(acronym)
			continue
		}
		b.WriteString(ToPascalCase(trailingAcronym(part)))
	}
	return b.String()
}

// trailingAcronym upper-cases a final camelCase word found in CommonAcronyms.
func trailingAcronym(part string) string {
	runes := []rune(part)
	for i := len(runes) - 1; i > 0; i-- {
		if !unicode.IsUpper(runes[i]) {
			continue
		}
		if acronym, ok := CommonAcronyms[strings.ToLower(string(runes[i:]))]; ok {
			return string(runes[:i]) + acronym
		}
		break
	}
	return part
}
