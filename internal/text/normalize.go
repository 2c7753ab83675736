// Package text cleans page text before it is spoken.
//
// Pages arriving from the book pipeline carry layout artifacts: hard line breaks,
// footnote markers, typographic quotes. The model reads those literally, so they are
// removed or flattened here. Language-specific normalization (numbers, phonemes) is
// left to the model service.
package text

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Regex patterns.
const (
	urlRegexPattern         = `https?://\S+`
	emailRegexPattern       = `[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`
	referenceRegexPattern   = `\[\d+(?:[,–-]\d+)*\]|[¹²³⁴⁵⁶⁷⁸⁹⁰]+`
	hyphenBreakRegexPattern = `(\p{L})-\s*\n\s*(\p{L})`
	dialogueRegexPattern    = `(?m)^[ \t]*[—–][ \t]*`
	whitespaceRegexPattern  = `\s+`
	placeholderPattern      = "\x00%d\x00"
)

// Normalizer flattens page text into a single line the model can read.
type Normalizer struct {
	urlPattern         *regexp.Regexp
	emailPattern       *regexp.Regexp
	referencePattern   *regexp.Regexp
	hyphenBreakPattern *regexp.Regexp
	dialoguePattern    *regexp.Regexp
	whitespacePattern  *regexp.Regexp

	abbreviations *strings.Replacer
	punctuation   *strings.Replacer
}

// NewNormalizer compiles the patterns once for reuse across pages.
func NewNormalizer() *Normalizer {
	return &Normalizer{
		urlPattern:         regexp.MustCompile(urlRegexPattern),
		emailPattern:       regexp.MustCompile(emailRegexPattern),
		referencePattern:   regexp.MustCompile(referenceRegexPattern),
		hyphenBreakPattern: regexp.MustCompile(hyphenBreakRegexPattern),
		dialoguePattern:    regexp.MustCompile(dialogueRegexPattern),
		whitespacePattern:  regexp.MustCompile(whitespaceRegexPattern),
		// Longer forms first: the replacer tries arguments in order.
		abbreviations: strings.NewReplacer(
			"Sra.", "señora",
			"Sr.", "señor",
			"Srta.", "señorita",
			"Dra.", "doctora",
			"Dr.", "doctor",
			"Uds.", "ustedes",
			"Ud.", "usted",
			"pág.", "página",
			"etc.", "etcétera",
		),
		punctuation: strings.NewReplacer(
			"—", ", ",
			"–", "-",
			"‒", "-",
			"…", "...",
			"«", `"`, "»", `"`,
			"“", `"`, "”", `"`,
			"‘", "'", "’", "'",
		),
	}
}

// Normalize returns text as one clean line ending in sentence punctuation. URLs and
// email addresses are kept verbatim.
func (n *Normalizer) Normalize(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}

	text = n.hyphenBreakPattern.ReplaceAllString(text, "$1$2")
	text = n.dialoguePattern.ReplaceAllString(text, "")

	text, placeholders := n.preserveTokens(text)

	text = n.referencePattern.ReplaceAllString(text, "")
	text = n.abbreviations.Replace(text)
	text = n.punctuation.Replace(text)
	text = collapseRepeatedPunctuation(text)
	text = strings.TrimSpace(n.whitespacePattern.ReplaceAllString(text, " "))
	text = strings.ReplaceAll(text, " ,", ",")

	for placeholder, original := range placeholders {
		text = strings.ReplaceAll(text, placeholder, original)
	}

	return ensureSentenceEnding(text)
}

// preserveTokens swaps URLs and emails for placeholders so no cleanup step touches them.
func (n *Normalizer) preserveTokens(text string) (string, map[string]string) {
	placeholders := make(map[string]string)

	for _, pattern := range []*regexp.Regexp{n.urlPattern, n.emailPattern} {
		text = pattern.ReplaceAllStringFunc(text, func(match string) string {
			placeholder := fmt.Sprintf(placeholderPattern, len(placeholders))
			placeholders[placeholder] = match

			return placeholder
		})
	}

	return text, placeholders
}

// collapseRepeatedPunctuation keeps the first of a run of identical marks, except
// that an ellipsis survives.
func collapseRepeatedPunctuation(text string) string {
	var (
		builder strings.Builder
		last    rune
		run     int
	)

	for _, char := range text {
		if char == last && unicode.IsPunct(char) {
			run++
			if char != '.' || run > 2 {
				continue
			}
		} else {
			run = 0
		}

		builder.WriteRune(char)

		last = char
	}

	return builder.String()
}

func ensureSentenceEnding(text string) string {
	text = strings.TrimRight(text, ",;: ")
	if text == "" {
		return ""
	}

	lastChar, _ := utf8.DecodeLastRuneInString(text)

	switch lastChar {
	case '.', '!', '?', '"', '\'', ')':
		return text
	default:
		return text + "."
	}
}
