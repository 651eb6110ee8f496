package sri

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// multiRune reemplazos que producen más de un carácter.
var multiRune = strings.NewReplacer(
	"\u2026", "...", // puntos suspensivos
	"\u00BD", "1/2",
	"\u2122", "TM",
)

// foldPunct pliega la puntuación tipográfica a su equivalente ASCII.
func foldPunct(r rune) rune {
	switch r {
	case '\u2018', '\u2019', '\u201A', '\u201B', '\u2032', '\u00B4', '`':
		return '\''
	case '\u201C', '\u201D', '\u201E', '\u201F', '\u2033', '\u00AB', '\u00BB':
		return '"'
	case '\u2010', '\u2011', '\u2012', '\u2013', '\u2014', '\u2015', '\u2212':
		return '-'
	case '\u00A0', '\u2007', '\u2009', '\u200A', '\u202F', '\u3000':
		return ' '
	}
	return r
}

// dropRune caracteres que el validador del SRI no acepta y que no tienen equivalente.
func dropRune(r rune) bool {
	switch r {
	case '\t', '\n', '\r':
		return false
	case '\u00AD', '\u200B', '\u200C', '\u200D', '\u2060', '\uFEFF':
		return true
	}
	return unicode.IsControl(r) || r == unicode.ReplacementChar
}

// NormalizeText limpia texto libre (nombres, direcciones, descripciones) antes de
// llevarlo al XML: NFC, puntuación plegada a ASCII, sin caracteres de control y
// con los espacios colapsados. El escape XML lo hace el encoder.
func NormalizeText(s string) string {
	if s == "" {
		return ""
	}
	t := transform.Chain(
		norm.NFC,
		runes.Map(foldPunct),
		runes.Remove(runes.Predicate(dropRune)),
	)
	out, _, err := transform.String(t, multiRune.Replace(s))
	if err != nil {
		out = s
	}
	return strings.Join(strings.Fields(out), " ")
}

// truncate corta a max runas; los campos alfanuméricos del esquema tienen longitud máxima.
func truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return strings.TrimSpace(string(r[:max]))
}

// field normaliza y trunca un campo de texto libre.
func field(s string, max int) string {
	return truncate(NormalizeText(s), max)
}
