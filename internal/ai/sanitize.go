package ai

import (
	"regexp"
	"strings"
)

// languageTag matches an echoed code-fence label such as "soql" on its own
// leading line.
var languageTag = regexp.MustCompile(`(?i)^(sql|soql)[ \t]*\n`)

// Sanitize keeps only characters a SOQL statement or an object name needs:
// ASCII letters and digits, space, tab, newline and ( ) , . * = > < % _ ' " -.
// Leading language-tag lines are dropped and the result is trimmed.
// Sanitize(Sanitize(s)) == Sanitize(s) for every s.
func Sanitize(s string) string {
	s = strings.Map(func(r rune) rune {
		if allowed(r) {
			return r
		}
		return -1
	}, s)

	s = strings.TrimSpace(s)
	for {
		loc := languageTag.FindStringIndex(s)
		if loc == nil {
			break
		}
		s = strings.TrimSpace(s[loc[1]:])
	}
	return s
}

// SanitizeName is Sanitize for object API names. It also drops '*', which
// a SOQL statement may need but a name never contains, so markdown emphasis
// such as "**Contact**" reduces to the bare name.
func SanitizeName(s string) string {
	return Sanitize(strings.ReplaceAll(s, "*", ""))
}

func allowed(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	}
	switch r {
	case ' ', '\t', '\n', '(', ')', ',', '.', '*', '=', '>', '<', '%', '_', '\'', '"', '-':
		return true
	}
	return false
}
