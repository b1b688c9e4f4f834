package rating

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

var categoryDisplayNames = map[string]string{
	"grammar_and_clarity":               "Grammar & Clarity",
	"structure":                         "Structure & Organization",
	"information_coverage":              "Information Coverage",
	"relevance_to_professional_context": "Professional Relevance",
	// older intro payloads
	"info_coverage":     "Information Coverage",
	"relevance_to_role": "Professional Relevance",
	// profile
	"practical_foundation": "Practical Foundation",
	"technical_competency": "Technical Competency",
	"hands_on_experience":  "Hands-On Experience",
	"growth_potential":     "Growth Potential",
}

// DisplayName returns the label shown for a grading_explanation key.
func DisplayName(key string) string {
	if name, ok := categoryDisplayNames[key]; ok {
		return name
	}
	return TitleCase(key)
}

// TitleCase turns "hands_on_experience" into "Hands On Experience". Only the
// first rune of each word changes.
func TitleCase(key string) string {
	words := strings.Split(strings.ReplaceAll(key, "_", " "), " ")
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		if size == 0 {
			continue
		}
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}
