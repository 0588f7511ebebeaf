package normalize

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var asciiFold = strings.NewReplacer(
	"ı", "i",
	"ğ", "g",
	"ü", "u",
	"ş", "s",
	"ö", "o",
	"ç", "c",
	"â", "a",
	"î", "i",
	"û", "u",
)

// CleanText trims and collapses internal whitespace runs to single spaces.
func CleanText(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}

// TitleCaseLocale capitalizes each word with Turkish casing rules, so "i"
// becomes "İ" and "I" lowers to "ı".
func TitleCaseLocale(raw string) string {
	cleaned := CleanText(raw)
	if cleaned == "" {
		return ""
	}
	// cases.Caser keeps state and is not safe for concurrent use.
	return cases.Title(language.Turkish).String(cleaned)
}

// FoldKey produces a comparison key that ignores case and Turkish
// diacritics: "İSTANBUL", "Istanbul" and "ıstanbul" all fold to "istanbul".
func FoldKey(raw string) string {
	return asciiFold.Replace(lowerTR(CleanText(raw)))
}

func lowerTR(raw string) string {
	return cases.Lower(language.Turkish).String(raw)
}
