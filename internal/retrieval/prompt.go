package retrieval

import "strings"

const instruction = "You are a helpful assistant. Use only the following context from a PDF to answer the question."

// BuildPrompt grounds query in the retrieved chunk texts. With no chunks the
// context section is empty and the question is still asked.
func BuildPrompt(query string, chunks []string) string {
	var b strings.Builder
	b.WriteString(instruction)
	b.WriteString("\n\nContext:\n")
	b.WriteString(strings.Join(chunks, "\n\n"))
	b.WriteString("\n\nQuestion: ")
	b.WriteString(query)
	return strings.TrimSpace(b.String())
}
