// Package normalize provides utilities for normalizing and sanitizing
// listing data. Seller-entered brands and sizes arrive in every spelling
// imaginable, so search and filtering work on normalized forms.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// sizeAliases maps common size spellings to canonical labels.
//
//nolint:gochecknoglobals // Static lookup table for size normalization
var sizeAliases = map[string]string{
	"extra small": "XS", "x-small": "XS", "xsmall": "XS", "xs": "XS",
	"small": "S", "s": "S",
	"medium": "M", "m": "M",
	"large": "L", "l": "L",
	"extra large": "XL", "x-large": "XL", "xlarge": "XL", "xl": "XL",
	"xxl": "XXL", "2xl": "XXL", "xx-large": "XXL",
	"xxxl": "3XL", "3xl": "3XL",
	"one size": "OS", "onesize": "OS", "os": "OS", "unisize": "OS",
}

// foldTransformer strips diacritics: NFD decomposition, drop combining
// marks, NFC recomposition. "Hermès" becomes "Hermes".
//
//nolint:gochecknoglobals // Reusable transformer chain
var foldTransformer = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// Fold lowercases a string and strips diacritics so that "Hermès",
// "HERMES" and "hermes" all compare equal.
func Fold(raw string) string {
	s := CleanString(raw)
	if s == "" {
		return ""
	}
	folded, _, err := transform.String(foldTransformer, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(strings.TrimSpace(folded))
}

// BrandSlug normalizes a brand name to a filter slug:
// "Acne Studios " -> "acne-studios", "Hermès" -> "hermes".
func BrandSlug(raw string) string {
	folded := Fold(raw)
	if folded == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(folded))
	lastDash := true // suppress leading dash
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// Size normalizes a seller-entered size to a canonical label.
// Unrecognized sizes (numeric sizes, shoe sizes) are uppercased and
// trimmed but otherwise kept as-is.
func Size(raw string) string {
	s := strings.TrimSpace(CleanString(raw))
	if s == "" {
		return ""
	}
	if canonical, ok := sizeAliases[strings.ToLower(s)]; ok {
		return canonical
	}
	return strings.ToUpper(s)
}

// CleanString removes null bytes, which can cause issues in the database
// and JSON parsing.
func CleanString(s string) string {
	return strings.Map(func(r rune) rune {
		if r == 0 {
			return -1
		}
		return r
	}, s)
}
