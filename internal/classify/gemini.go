package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

// generator is the slice of the genai client the classifier uses.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini asks a Gemini model to pick one of the known categories.
type Gemini struct {
	gen     generator
	model   string
	timeout time.Duration
	log     zerolog.Logger

	mu         sync.RWMutex
	categories []string
}

// NewGemini builds the genai client. Credentials come from the environment
// (GEMINI_API_KEY or GOOGLE_API_KEY).
func NewGemini(ctx context.Context, model string, timeout time.Duration, log zerolog.Logger) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return newGemini(client.Models, model, timeout, log), nil
}

func newGemini(gen generator, model string, timeout time.Duration, log zerolog.Logger) *Gemini {
	return &Gemini{
		gen:     gen,
		model:   model,
		timeout: timeout,
		log:     log.With().Str("classifier", "gemini").Str("model", model).Logger(),
	}
}

// SetCategories sets the names the model may answer with.
func (g *Gemini) SetCategories(names []string) {
	cp := append([]string(nil), names...)
	g.mu.Lock()
	g.categories = cp
	g.mu.Unlock()
}

type geminiAnswer struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// Classify sends one zero-shot prompt. Answers naming an unknown category
// come back Ready with an empty category.
func (g *Gemini) Classify(ctx context.Context, name, memo string) (Prediction, error) {
	g.mu.RLock()
	categories := g.categories
	g.mu.RUnlock()
	if len(categories) == 0 {
		return NotLoaded, nil
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	resp, err := g.gen.GenerateContent(ctx, g.model, genai.Text(buildPrompt(name, memo, categories)), &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0),
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return NotLoaded, fmt.Errorf("generate content: %w", err)
	}

	raw := resp.Text()
	if raw == "" {
		return NotLoaded, fmt.Errorf("empty response from model")
	}

	var answer geminiAnswer
	if err := json.Unmarshal([]byte(cleanModelJSON(raw)), &answer); err != nil {
		return NotLoaded, fmt.Errorf("unmarshal model answer: %w", err)
	}

	for _, c := range categories {
		if strings.EqualFold(c, strings.TrimSpace(answer.Category)) {
			return Prediction{Status: StatusReady, Category: c, Confidence: clamp01(answer.Confidence)}, nil
		}
	}
	g.log.Debug().Str("answer", answer.Category).Msg("model answered an unknown category")
	return Prediction{Status: StatusReady}, nil
}

func buildPrompt(name, memo string, categories []string) string {
	var b strings.Builder
	b.WriteString("You categorize personal bank transactions.\n\n")
	b.WriteString("Allowed categories:\n")
	for _, c := range categories {
		b.WriteString("- ")
		b.WriteString(c)
		b.WriteByte('\n')
	}
	b.WriteString("\nTransaction:\n")
	fmt.Fprintf(&b, "- name: %q\n", name)
	fmt.Fprintf(&b, "- memo: %q\n", memo)
	b.WriteString("\nReturn ONLY a JSON object {\"category\": string, \"confidence\": number between 0 and 1}.\n")
	b.WriteString("Use one of the allowed categories verbatim, or \"\" when none fits.\n")
	b.WriteString("Do NOT wrap the response in code fences.\n")
	return b.String()
}

// cleanModelJSON strips Markdown fences and any text around the JSON object.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		}
		if idx := strings.LastIndex(s, "```"); idx != -1 {
			s = s[:idx]
		}
	}
	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end > start {
			s = s[start : end+1]
		}
	}
	return strings.TrimSpace(s)
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
