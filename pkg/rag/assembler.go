// Package rag implements retrieval: embedding queries, searching the
// vector store, and assembling the retrieved documents into the prompt
// context the generation layer consumes.
package rag

import (
	"fmt"
	"strings"

	"github.com/medquery/medquery/pkg/protocol"
)

const (
	// noDocumentsFound is returned by Format for an empty result set.
	// Prompts reference this sentinel, so its wording is fixed.
	noDocumentsFound = "No relevant documents found."

	blockSeparator = "\n---\n"

	// previewRunes caps the source preview length for callers.
	previewRunes = 200
)

// Format renders retrieved documents into the context block embedded in
// the RAG prompt. Documents are numbered from 1 in input order, never
// reordered or deduplicated, so identical input yields identical
// output.
func Format(docs []protocol.RetrievedDocument) string {
	if len(docs) == 0 {
		return noDocumentsFound
	}

	blocks := make([]string, 0, len(docs))
	for i, doc := range docs {
		var b strings.Builder

		title := doc.Title
		if title == "" {
			title = "Unknown"
		}
		fmt.Fprintf(&b, "Document %d: %s\n", i+1, title)

		if doc.ChunkText != "" {
			fmt.Fprintf(&b, "Content: %s\n", doc.ChunkText)
		}
		if uses := metadataString(doc.Metadata, "uses"); uses != "" {
			fmt.Fprintf(&b, "Uses: %s\n", uses)
		}
		if sideEffects := metadataString(doc.Metadata, "side_effects"); sideEffects != "" {
			fmt.Fprintf(&b, "Side Effects: %s\n", sideEffects)
		}
		if substitutes := metadataString(doc.Metadata, "substitutes"); substitutes != "" {
			fmt.Fprintf(&b, "Substitutes: %s\n", substitutes)
		}

		blocks = append(blocks, b.String())
	}

	return strings.Join(blocks, blockSeparator)
}

// Project converts retrieved documents to the caller-facing source
// list. Content carries a preview only; the full chunk text still
// reaches the prompt through Format.
func Project(docs []protocol.RetrievedDocument) []protocol.Source {
	sources := make([]protocol.Source, 0, len(docs))
	for _, doc := range docs {
		sources = append(sources, protocol.Source{
			ID:       doc.ID,
			Title:    doc.Title,
			Content:  Preview(doc.ChunkText),
			Score:    doc.Score,
			Metadata: doc.Metadata,
			URL:      doc.URL,
		})
	}
	return sources
}

// Preview truncates text for display. The cap counts runes, not bytes,
// so multibyte text is never cut mid-character.
func Preview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewRunes {
		return text
	}
	return string(runes[:previewRunes]) + "..."
}

func metadataString(metadata map[string]any, key string) string {
	if metadata == nil {
		return ""
	}
	if s, ok := metadata[key].(string); ok {
		return s
	}
	return ""
}
