// Package lang decides which language an answer is written in.
package lang

import (
	"strings"

	"github.com/abadojack/whatlanggo"
)

const (
	Spanish = "es"
	English = "en"

	// Default is used whenever a language cannot be determined.
	Default = Spanish
)

var detectOptions = whatlanggo.Options{
	Whitelist: map[whatlanggo.Lang]bool{
		whatlanggo.Eng: true,
		whatlanggo.Spa: true,
	},
}

// Detect guesses the ISO 639-1 code of text, restricted to the supported languages.
// It returns fallback when the text is blank, the guess is not reliable or it is not
// a supported language.
func Detect(text, fallback string) string {
	if strings.TrimSpace(text) == "" {
		return fallback
	}
	info := whatlanggo.DetectWithOptions(text, detectOptions)
	if !info.IsReliable() {
		return fallback
	}
	switch info.Lang {
	case whatlanggo.Eng:
		return English
	case whatlanggo.Spa:
		return Spanish
	default:
		return fallback
	}
}

// Resolve returns the requested language when one is given and otherwise detects it
// from the question.
func Resolve(requested, question, fallback string) string {
	if fallback == "" {
		fallback = Default
	}
	if code := strings.ToLower(strings.TrimSpace(requested)); code != "" {
		return code
	}
	return Detect(question, fallback)
}

// IsEnglish reports whether code selects English output. Any other code is answered in Spanish.
func IsEnglish(code string) bool {
	return strings.EqualFold(strings.TrimSpace(code), English)
}
