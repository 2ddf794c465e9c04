package rag

import (
	"fmt"

	"itsmehi/internal/lang"
)

const (
	englishPrompt = "Use the following context to answer clearly and helpfully.\n\nContext:\n%s\n\nQuestion: %s\nAnswer:"
	spanishPrompt = "Usa el siguiente contexto para responder con claridad y precisión.\n\nContexto:\n%s\n\nPregunta: %s\nRespuesta:"
)

// BuildPrompt fills the template for language with the retrieved context and the question.
// Only English has its own template; every other code gets the Spanish one.
func BuildPrompt(language, context, question string) string {
	if lang.IsEnglish(language) {
		return fmt.Sprintf(englishPrompt, context, question)
	}
	return fmt.Sprintf(spanishPrompt, context, question)
}
