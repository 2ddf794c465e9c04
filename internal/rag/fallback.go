package rag

import "itsmehi/internal/lang"

// FallbackKind names the reason an answer was replaced by a canned message.
type FallbackKind string

const (
	FallbackNone    FallbackKind = ""
	FallbackEmpty   FallbackKind = "empty"
	FallbackTimeout FallbackKind = "timeout"
	FallbackService FallbackKind = "service"
)

var fallbackMessages = map[FallbackKind][2]string{
	// {spanish, english}
	FallbackEmpty: {
		"⚠️ No se pudo generar una respuesta útil.",
		"⚠️ I couldn't generate a useful answer.",
	},
	FallbackTimeout: {
		"⚡ El modelo no respondió a tiempo. Intenta nuevamente.",
		"⚡ The model did not respond in time. Please try again.",
	},
	FallbackService: {
		"⚠️ Ha ocurrido un error al generar la respuesta. Inténtalo más tarde.",
		"⚠️ Something went wrong while generating the answer. Please try again later.",
	},
}

// Message returns the user-facing text for kind in language. FallbackNone has no message.
func (k FallbackKind) Message(language string) string {
	msgs, ok := fallbackMessages[k]
	if !ok {
		return ""
	}
	if lang.IsEnglish(language) {
		return msgs[1]
	}
	return msgs[0]
}
