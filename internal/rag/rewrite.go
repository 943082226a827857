package rag

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/docuquery/docuquery/internal/llm"
)

// Rewriter turns (history, latest message) into a standalone question that
// retrieval can use without the conversation. Rewriting only serves
// retrieval; the synthesizer never sees its output.
type Rewriter struct {
	capability llm.Capability
}

func NewRewriter(capability llm.Capability) *Rewriter {
	return &Rewriter{capability: capability}
}

// Rewrite resolves pronouns and ellipsis in the latest message using the
// history. With no prior turns the message is already standalone, so it is
// returned as-is without a model call. A failed or empty rewrite falls back
// to the original message: retrieval quality degrades, the turn never blocks.
func (r *Rewriter) Rewrite(ctx context.Context, history History, latest string) string {
	if len(history) == 0 {
		return latest
	}

	prompt := fmt.Sprintf("%s\n\nChat history:\n%s\n\nLatest user question: %s\n\nStandalone question:",
		rewriteInstruction, history.Transcript(), latest)

	rewritten, err := r.capability.Complete(ctx, prompt)
	if err != nil {
		log.Printf("Query rewrite failed, using original message: %v", err)
		return latest
	}

	rewritten = strings.TrimSpace(rewritten)
	if rewritten == "" {
		log.Printf("Query rewrite returned an empty string, using original message")
		return latest
	}
	return rewritten
}
