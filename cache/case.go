package cache

import (
	"strings"
	"unicode"

	"github.com/jinzhu/inflection"
)

// columnName derives the column bun would use for a Go field name when the
// struct tag does not provide one: OwnerID -> owner_id, HTTPCode -> http_code.
func columnName(goName string) string {
	return toSnake(goName)
}

// tableName derives bun's default table name for a model type name.
func tableName(typeName string) string {
	return inflection.Plural(toSnake(typeName))
}

// toSnake lower cases s and inserts an underscore at every word boundary.
// Characters outside [A-Za-z0-9] collapse into a single separator, which keeps
// reflected generic names (Item[int]) usable as log and metric labels.
func toSnake(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(runes) + 4)

	pending := false
	for i, r := range runes {
		if !isWordRune(r) {
			pending = b.Len() > 0
			continue
		}

		if b.Len() > 0 && !pending && boundaryAt(runes, i) {
			pending = true
		}
		if pending {
			b.WriteByte('_')
			pending = false
		}
		b.WriteRune(unicode.ToLower(r))
	}

	return b.String()
}

func isWordRune(r rune) bool {
	return r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r))
}

// boundaryAt reports whether a new word starts at runes[i].
func boundaryAt(runes []rune, i int) bool {
	if i == 0 {
		return false
	}
	prev, cur := runes[i-1], runes[i]
	if !unicode.IsUpper(cur) {
		return false
	}
	if unicode.IsLower(prev) || unicode.IsDigit(prev) {
		return true
	}
	// acronym followed by a word: the S in HTTPServer
	return unicode.IsUpper(prev) && i+1 < len(runes) && unicode.IsLower(runes[i+1])
}
