package brief

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/macropulse/macropulse/internal/log"
)

// ErrNoAPIKey is returned when a model analyst is requested without a key.
var ErrNoAPIKey = errors.New("analysis api key is not set")

// contentGenerator is the genai call the analyst makes.
// *genai.Models satisfies it.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

var _ contentGenerator = (*genai.Models)(nil)

// GeminiAnalyst writes commentary with a Gemini model.
type GeminiAnalyst struct {
	models  contentGenerator
	model   string
	timeout time.Duration
}

// NewGeminiAnalyst creates a Gemini client for apiKey.
func NewGeminiAnalyst(ctx context.Context, apiKey, model string, timeout time.Duration) (*GeminiAnalyst, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrNoAPIKey
	}
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return newGeminiAnalyst(cli.Models, model, timeout), nil
}

func newGeminiAnalyst(models contentGenerator, model string, timeout time.Duration) *GeminiAnalyst {
	if model == "" {
		model = "gemini-2.5-flash"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &GeminiAnalyst{models: models, model: model, timeout: timeout}
}

func (g *GeminiAnalyst) Name() string { return "gemini:" + g.model }

// Analyze asks the model for JSON commentary. The exchange is returned even
// when the reply cannot be used.
func (g *GeminiAnalyst) Analyze(ctx context.Context, in AnalysisInput) (*AnalysisSection, *Exchange, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	prompt := Prompt(in)
	ex := &Exchange{Model: g.model, Prompt: prompt}
	start := time.Now()
	resp, err := g.models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Role: genai.RoleUser, Parts: []*genai.Part{{Text: prompt}}}},
		&genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			Temperature:      genai.Ptr[float32](0.3),
			MaxOutputTokens:  2000,
		},
	)
	if err != nil {
		return nil, ex, fmt.Errorf("gemini generate: %w", err)
	}
	text := replyText(resp)
	ex.Response = text
	log.Debug(log.CatLLM, "Gemini reply", "model", g.model, "chars", len(text), "took", time.Since(start).String())
	if text == "" {
		return nil, ex, errors.New("gemini returned no candidates")
	}

	reply, err := ParseReply(text)
	if err != nil {
		return nil, ex, err
	}
	return &AnalysisSection{
		Commentary: reply.Commentary,
		Outlook:    reply.Outlook,
		Source:     SourceGemini,
		Model:      g.model,
		Status:     StatusOK,
	}, ex, nil
}

func replyText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	c := resp.Candidates[0]
	if c.Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range c.Content.Parts {
		if p != nil {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}
