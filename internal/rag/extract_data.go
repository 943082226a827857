package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/docuquery/docuquery/internal/index"
	"github.com/docuquery/docuquery/internal/llm"
)

const extractionK = 5

// Invoice is the structured-extraction target schema.
type Invoice struct {
	InvoiceID   *string  `json:"invoice_id"`
	VendorName  *string  `json:"vendor_name"`
	InvoiceDate *string  `json:"invoice_date"`
	TotalAmount *float64 `json:"total_amount"`
}

// Extractor runs retrieval plus a JSON-output prompt to pull invoice fields
// out of the indexed document.
type Extractor struct {
	capability llm.Capability
	retriever  *Retriever
}

func NewExtractor(capability llm.Capability) *Extractor {
	return &Extractor{capability: capability, retriever: NewRetriever(capability)}
}

func (e *Extractor) ExtractInvoice(ctx context.Context, idx *index.Index, request string) (*Invoice, error) {
	retrieved, err := e.retriever.Retrieve(ctx, idx, request, extractionK)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve context for extraction: %w", err)
	}

	var prompt strings.Builder
	prompt.WriteString(extractionInstruction)
	prompt.WriteString("\n\nContext:\n")
	prompt.WriteString(contextBlock(retrieved))
	prompt.WriteString("\n\nRequest: ")
	prompt.WriteString(request)

	raw, err := e.capability.Complete(ctx, prompt.String())
	if err != nil {
		return nil, fmt.Errorf("failed to run extraction: %w", err)
	}

	var invoice Invoice
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &invoice); err != nil {
		return nil, fmt.Errorf("extraction output was not valid JSON: %w", err)
	}
	return &invoice, nil
}

// stripCodeFence removes a ```json ... ``` wrapper, which models add even
// when told not to.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
