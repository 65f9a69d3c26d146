package rag

import (
	"fmt"
	"strings"
)

// systemPrompt pins the model to the retrieved context. Loosening it
// reintroduces answers invented from the model's own knowledge.
const systemPrompt = `You are a helpful AI assistant that answers questions based on provided document context.

Your responsibilities:
- Answer questions accurately using ONLY the information from the provided context
- If the answer is not in the context, clearly state "I don't have enough information in the documents to answer that question"
- Cite your sources by mentioning the document name when referencing information
- Be concise and clear in your responses
- If asked about multiple topics, address each one based on available context
- Maintain a professional and helpful tone

Important guidelines:
- DO NOT make up or infer information that is not in the context
- DO NOT use external knowledge - only use what's provided in the document context
- If the context is empty or insufficient, admit it honestly
- When citing, use the format: "According to [document name]..."`

// userPromptTemplate wraps the retrieved context and the question into
// the final user turn.
const userPromptTemplate = `Context from documents:
---
%s
---

Question: %s

Please answer based on the context provided above. If the context doesn't contain relevant information, please say so.`

// noContextAnswer is returned without calling the model when retrieval
// finds nothing.
const noContextAnswer = "I couldn't find any relevant information in your documents to answer this question. Please try rephrasing or check if you have documents uploaded that might contain this information."

// formatContext renders the retained chunks as numbered source blocks.
func formatContext(chunks []scoredChunk) string {
	if len(chunks) == 0 {
		return "No relevant context found."
	}

	parts := make([]string, 0, len(chunks))
	for i, c := range chunks {
		source := fmt.Sprintf("[Store: %s | Document: %s", c.CollectionName, c.DocumentName)
		if c.PageNumber != nil {
			source += fmt.Sprintf(" | Page: %d", *c.PageNumber)
		}
		source += "]"
		parts = append(parts, fmt.Sprintf("%d. %s\n%s", i+1, source, c.Content))
	}
	return strings.Join(parts, "\n\n")
}

func buildUserPrompt(question string, chunks []scoredChunk) string {
	return fmt.Sprintf(userPromptTemplate, formatContext(chunks), question)
}
