package report

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// DefaultModelName is the Gemini model used for the narrative.
const DefaultModelName = "gemini-2.5-flash"

// Narrator writes a short prose summary of a report.
type Narrator interface {
	Narrate(ctx context.Context, doc *Document) (string, error)
}

// GeminiNarrator asks a Gemini model for the narrative paragraph.
type GeminiNarrator struct {
	client *genai.Client
	model  string
}

// NewGeminiNarrator creates a narrator. An empty apiKey falls back to the
// environment (GEMINI_API_KEY, GOOGLE_API_KEY or Vertex AI settings).
func NewGeminiNarrator(ctx context.Context, apiKey, model string) (*GeminiNarrator, error) {
	cfg := &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	}
	if apiKey != "" {
		cfg.APIKey = apiKey
		cfg.Backend = genai.BackendGeminiAPI
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("NewGeminiNarrator: create genai client: %w", err)
	}

	if model == "" {
		model = DefaultModelName
	}
	return &GeminiNarrator{client: client, model: model}, nil
}

// Narrate returns one paragraph of plain text describing doc.
func (n *GeminiNarrator) Narrate(ctx context.Context, doc *Document) (string, error) {
	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: narrativePrompt(doc)}},
		},
	}

	resp, err := n.client.Models.GenerateContent(ctx, n.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("GeminiNarrator.Narrate: generate content: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("GeminiNarrator.Narrate: empty response from model")
	}
	return text, nil
}

func narrativePrompt(doc *Document) string {
	var b strings.Builder
	b.WriteString("You are writing the opening paragraph of a customer spending report.\n\n")
	b.WriteString("Rules:\n")
	b.WriteString("- One paragraph, at most 120 words, plain text (no Markdown, no lists).\n")
	b.WriteString("- Only use the figures given below; do not invent numbers.\n\n")

	b.WriteString("Key insights:\n")
	for _, s := range doc.Insights {
		b.WriteString("- " + s + "\n")
	}

	b.WriteString("\nTop spender per category:\n")
	for _, r := range doc.TopSpenders.Rows {
		b.WriteString("- " + strings.Join(r, " | ") + "\n")
	}

	b.WriteString("\nTop customers by total spending:\n")
	for _, r := range doc.TopCustomers.Rows {
		b.WriteString("- " + strings.Join(r, " | ") + "\n")
	}

	return b.String()
}
