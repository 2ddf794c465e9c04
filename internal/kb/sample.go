package kb

import "itsmehi/internal/index"

// SampleSource names the built-in demo documents.
const SampleSource = "sample"

var sampleTexts = []string{
	"Soy analista de datos especializado en procesamiento de lenguaje natural.",
	"Tengo experiencia creando pipelines ETL y dashboards en Power BI.",
	"Buscamos un candidato capaz de analizar feedback textual de clientes.",
	"El rol requiere habilidades en Python, NLP y visualización de datos.",
}

// SamplePassages returns a small demo knowledge base.
func SamplePassages() []index.Passage {
	out := make([]index.Passage, len(sampleTexts))
	for i, t := range sampleTexts {
		out[i] = index.Passage{ID: PassageID(SampleSource, i), Text: t, Source: SampleSource}
	}
	return out
}
