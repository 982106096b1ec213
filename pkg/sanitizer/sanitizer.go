package sanitizer

import (
	"regexp"
	"strings"
)

type Strategy func(string) string

type Pipeline []Strategy

func (p Pipeline) Apply(s string) string {
	for _, fn := range p {
		s = fn(s)
	}
	return s
}

var (
	reKeepLettersDigits = regexp.MustCompile(`[^0-9\p{L}]+`)
	reKeepLettersOnly   = regexp.MustCompile(`[^\p{L}]+`)
	reTrimUnderscores   = regexp.MustCompile(`_+`)
	reIdentifier        = regexp.MustCompile(`[^0-9A-Za-z_\-:.]+`)
)

func trimAndLower(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ToLower(s)
	return s
}

func collapseUnderscores(s string) string {
	s = reTrimUnderscores.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}

// SanitizeServiceType folds a service category ("DJ & Sound", "dj sound")
// to a stable key ("dj_sound").
func SanitizeServiceType(input string) string {
	p := Pipeline{
		trimAndLower,
		func(s string) string { return reKeepLettersDigits.ReplaceAllString(s, "_") },
		collapseUnderscores,
	}
	return p.Apply(input)
}

// SanitizeLocation folds a city or region name to letters and underscores so
// that listing filters match regardless of spacing and punctuation.
func SanitizeLocation(input string) string {
	p := Pipeline{
		trimAndLower,
		func(s string) string { return reKeepLettersOnly.ReplaceAllString(s, "_") },
		collapseUnderscores,
	}
	return p.Apply(input)
}

// SanitizeID strips whitespace and characters never found in record ids.
func SanitizeID(input string) string {
	return reIdentifier.ReplaceAllString(strings.TrimSpace(input), "")
}

// SanitizeText collapses runs of whitespace in free text such as
// descriptions and force-release reasons.
func SanitizeText(input string) string {
	return TrimAndNormalize(input)
}
