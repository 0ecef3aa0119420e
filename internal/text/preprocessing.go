// Package text normalizes input text before speech generation.
//
// The model reads text verbatim; abbreviations, citation markers, and odd
// whitespace all end up spoken unless they are cleaned first.
package text

import (
	"regexp"
	"strings"
)

// Regex patterns for text preprocessing.
const (
	referenceRegexPattern  = `(?:\[\d+\]|\(\d+\)|[¹²³⁴⁵⁶⁷⁸⁹⁰]+)`
	citationRegexPattern   = `\([^)]*\d{4}[^)]*\)|\b\w+\s+et\s+al\.`
	whitespaceRegexPattern = `\s+`
)

// Typographic characters normalized to speakable equivalents.
const (
	emDash       = "—"
	enDash       = "–"
	ellipsisChar = "…"
)

// Preprocessor cleans text for speech generation. All patterns are compiled
// once; the same instance is safe for concurrent use.
type Preprocessor struct {
	referencePattern     *regexp.Regexp
	citationPattern      *regexp.Regexp
	whitespacePattern    *regexp.Regexp
	abbreviationReplacer *strings.Replacer
	punctuationReplacer  *strings.Replacer
}

// NewPreprocessor creates a preprocessor with compiled patterns and replacers.
func NewPreprocessor() *Preprocessor {
	abbreviations := []string{
		"Mr.", "Mister",
		"Mrs.", "Misses",
		"Ms.", "Miss",
		"Dr.", "Doctor",
		"St.", "Saint",
		"Co.", "Company",
		"Ltd.", "Limited",
		"Corp.", "Corporation",
		"Inc.", "Incorporated",
	}

	punctuation := []string{
		emDash, ", ",
		enDash, ", ",
		ellipsisChar, "...",
		"\r\n", " ",
		"\n", " ",
		"\t", " ",
	}

	return &Preprocessor{
		referencePattern:     regexp.MustCompile(referenceRegexPattern),
		citationPattern:      regexp.MustCompile(citationRegexPattern),
		whitespacePattern:    regexp.MustCompile(whitespaceRegexPattern),
		abbreviationReplacer: strings.NewReplacer(abbreviations...),
		punctuationReplacer:  strings.NewReplacer(punctuation...),
	}
}

// Preprocess normalizes and cleans text for generation. Cheaper replacements
// run before the regex passes.
func (p *Preprocessor) Preprocess(text string) string {
	if text == "" {
		return text
	}

	cleaned := p.abbreviationReplacer.Replace(text)
	cleaned = p.punctuationReplacer.Replace(cleaned)
	cleaned = p.referencePattern.ReplaceAllString(cleaned, "")
	cleaned = p.citationPattern.ReplaceAllString(cleaned, "")
	cleaned = p.whitespacePattern.ReplaceAllString(cleaned, " ")

	return strings.TrimSpace(cleaned)
}
