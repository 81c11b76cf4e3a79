package pipeline

import (
	"context"

	"github.com/neokarri946-creator/b2b-sales-platform-sub001/internal/model"
	"github.com/neokarri946-creator/b2b-sales-platform-sub001/pkg/stageapi"
)

// Researcher gathers evidence about both sides of a deal. Returning an
// error or a nil bundle both mean "no evidence".
type Researcher interface {
	Research(ctx context.Context, seller, target string) (*model.EvidenceBundle, error)
}

// Generator produces the scorecard document.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*model.Analysis, error)
}

// GenerateRequest is the generation stage input. SkipResearch is set when
// ResearchData is already available.
type GenerateRequest struct {
	Seller       string
	Target       string
	SkipResearch bool
	ResearchData *model.EvidenceBundle
}

// ResearchFunc adapts a function to Researcher.
type ResearchFunc func(ctx context.Context, seller, target string) (*model.EvidenceBundle, error)

// Research calls f.
func (f ResearchFunc) Research(ctx context.Context, seller, target string) (*model.EvidenceBundle, error) {
	return f(ctx, seller, target)
}

// GenerateFunc adapts a function to Generator.
type GenerateFunc func(ctx context.Context, req GenerateRequest) (*model.Analysis, error)

// Generate calls f.
func (f GenerateFunc) Generate(ctx context.Context, req GenerateRequest) (*model.Analysis, error) {
	return f(ctx, req)
}

// NoResearch is the Researcher used when research is switched off.
var NoResearch = ResearchFunc(func(context.Context, string, string) (*model.EvidenceBundle, error) {
	return nil, ErrResearchUnavailable
})

// HTTPGenerator sends generation to a remote service.
type HTTPGenerator struct {
	Client *stageapi.GenerationClient
}

// Generate implements Generator.
func (g HTTPGenerator) Generate(ctx context.Context, req GenerateRequest) (*model.Analysis, error) {
	return g.Client.Generate(ctx, stageapi.GenerationRequest{
		Seller:       req.Seller,
		Target:       req.Target,
		SkipResearch: req.SkipResearch,
		ResearchData: req.ResearchData,
	})
}
