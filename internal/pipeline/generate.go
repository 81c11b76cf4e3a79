package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/neokarri946-creator/b2b-sales-platform-sub001/internal/model"
	"github.com/neokarri946-creator/b2b-sales-platform-sub001/internal/scorer"
	"github.com/neokarri946-creator/b2b-sales-platform-sub001/pkg/anthropic"
)

const scoringRubric = `You are a B2B sales strategist scoring how likely a seller is to close a deal with a target company.

Score exactly these five dimensions from 1 to 10, in this order, with these weights:
1. Market Alignment (0.25)
2. Budget Readiness (0.20)
3. Technology Fit (0.20)
4. Competitive Position (0.20)
5. Implementation Readiness (0.15)

overall_score is the weighted sum of the dimension scores multiplied by 10, rounded to an integer (0-100).

Respond with a single JSON object and nothing else:
{
  "scorecard": {
    "overall_score": number,
    "dimensions": [
      {"name": string, "score": number, "weight": number, "summary": string, "detailed_analysis": string}
    ]
  },
  "recommendation": {"verdict": "STRONGLY RECOMMENDED" | "PROCEED WITH CAUTION" | "NOT RECOMMENDED" | "DO NOT PROCEED", "confidence": string, "rationale": string, "next_steps": [string]},
  "challenges": [{"risk": string, "mitigation": string, "probability": string, "impact": string}],
  "executive_summary": string
}

Base every claim on the research provided. When no research is provided, say so in the summaries and score conservatively.`

// ModelGenerator scores a deal with Claude and falls back to the
// deterministic scorer when the model is unavailable or its reply is
// unusable. Deadline and cancellation errors are returned, not degraded.
type ModelGenerator struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewModelGenerator returns a generator. A nil client always uses the
// deterministic scorer.
func NewModelGenerator(client anthropic.Client, model string, maxTokens int64) *ModelGenerator {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &ModelGenerator{client: client, model: model, maxTokens: maxTokens}
}

// Generate implements Generator.
func (g *ModelGenerator) Generate(ctx context.Context, req GenerateRequest) (*model.Analysis, error) {
	log := zap.L().With(zap.String("seller", req.Seller), zap.String("target", req.Target))

	if g.client == nil {
		return FallbackGenerator{}.Generate(ctx, req)
	}

	prompt, err := buildScoringPrompt(req)
	if err != nil {
		return nil, eris.Wrap(err, "generate: build prompt")
	}

	temp := 0.3
	resp, err := g.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       g.model,
		MaxTokens:   g.maxTokens,
		System:      anthropic.CachedSystem(scoringRubric),
		Messages:    []anthropic.Message{{Role: "user", Content: prompt}},
		Temperature: &temp,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, eris.Wrapf(ErrGenerationFailure, "generate: %v", ctx.Err())
		}
		log.Warn("generate: model call failed, using deterministic scorer", zap.Error(err))
		return FallbackGenerator{}.Generate(ctx, req)
	}
	resp.Usage.LogCost(g.model, "generation")

	a, err := parseAnalysis(resp.Text())
	if err != nil {
		log.Warn("generate: unusable model reply, using deterministic scorer", zap.Error(err))
		return FallbackGenerator{}.Generate(ctx, req)
	}
	return a, nil
}

func buildScoringPrompt(req GenerateRequest) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Seller: %s\nTarget: %s\n\n", req.Seller, req.Target)
	if req.ResearchData == nil {
		b.WriteString("No research data is available for this pair.\n")
		return b.String(), nil
	}
	research, err := json.MarshalIndent(req.ResearchData, "", "  ")
	if err != nil {
		return "", err
	}
	b.WriteString("Research data:\n")
	b.Write(research)
	b.WriteString("\n")
	return b.String(), nil
}

// parseAnalysis decodes the first JSON object in a model reply and checks
// that it carries a scorecard.
func parseAnalysis(text string) (*model.Analysis, error) {
	cleaned := cleanJSON(text)
	if !strings.HasPrefix(cleaned, "{") {
		return nil, eris.New("generate: no json object in reply")
	}
	var a model.Analysis
	if err := json.Unmarshal([]byte(cleaned), &a); err != nil {
		return nil, eris.Wrap(err, "generate: decode reply")
	}
	if len(a.Scorecard.Dimensions) == 0 {
		return nil, eris.New("generate: reply has no scored dimensions")
	}
	return &a, nil
}

// cleanJSON extracts a JSON object from text that may contain markdown code
// fences or prose around it.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

// FallbackGenerator always returns the deterministic scorecard.
type FallbackGenerator struct{}

// Generate implements Generator.
func (FallbackGenerator) Generate(ctx context.Context, req GenerateRequest) (*model.Analysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrapf(ErrGenerationFailure, "generate: %v", err)
	}
	return scorer.Score(req.Seller, req.Target), nil
}
