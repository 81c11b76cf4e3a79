package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/neokarri946-creator/b2b-sales-platform-sub001/internal/model"
	"github.com/neokarri946-creator/b2b-sales-platform-sub001/internal/resilience"
	"github.com/neokarri946-creator/b2b-sales-platform-sub001/pkg/jina"
	"github.com/neokarri946-creator/b2b-sales-platform-sub001/pkg/perplexity"
)

func aboutCompany(name string) any {
	return mock.MatchedBy(func(req perplexity.ChatCompletionRequest) bool {
		return len(req.Messages) == 1 && strings.Contains(req.Messages[0].Content, `"`+name+`"`)
	})
}

func profileReply(content string, citations ...string) *perplexity.ChatCompletionResponse {
	return &perplexity.ChatCompletionResponse{
		Choices:   []perplexity.Choice{{Message: perplexity.Message{Role: "assistant", Content: content}}},
		Citations: citations,
	}
}

func TestWebResearcher_FullEvidence(t *testing.T) {
	pplx := &mockPerplexity{}
	pplx.On("ChatCompletion", mock.Anything, aboutCompany("Acme Corp")).Return(&perplexity.ChatCompletionResponse{
		Choices: []perplexity.Choice{{Message: perplexity.Message{Content: "```json\n" +
			`{"overview": "Acme builds robots.", "financials": {"revenue": "$2B"}, "market_position": {"segment": "industrial"}}` +
			"\n```"}}},
		Citations:     []string{"https://acme.example/about"},
		SearchResults: []perplexity.SearchResult{{Title: "About Acme", URL: "https://acme.example/about"}},
	}, nil)
	pplx.On("ChatCompletion", mock.Anything, aboutCompany("Globex Inc")).Return(
		profileReply("Globex is a conglomerate with no public numbers.", "https://globex.example"), nil)

	jc := &mockJina{}
	jc.On("Search", mock.Anything, "Acme Corp company news").Return(&jina.SearchResponse{Data: []jina.SearchResult{
		{Title: "Acme expands", URL: "https://news.example/1", Description: "Expansion", Date: "2026-02-01"},
		{Title: "no url"},
	}}, nil)
	jc.On("Search", mock.Anything, "Globex Inc company news").Return(&jina.SearchResponse{}, nil)

	w := NewWebResearcher(pplx, jc)
	b, err := w.Research(context.Background(), "Acme Corp", "Globex Inc")
	require.NoError(t, err)

	assert.Equal(t, "Acme Corp", b.Seller.Company)
	assert.Equal(t, map[string]any{"revenue": "$2B"}, b.Seller.Financials)
	assert.Equal(t, "industrial", b.Seller.MarketPosition["segment"])
	assert.Equal(t, "Acme builds robots.", b.Seller.MarketPosition["summary"])
	require.Len(t, b.Seller.Sources, 2)
	assert.Equal(t, model.Source{URL: "https://acme.example/about", Title: "About Acme", Type: model.SourceTypeResearch}, b.Seller.Sources[0])
	assert.Equal(t, model.SourceTypeNews, b.Seller.Sources[1].Type)
	require.Len(t, b.Seller.News, 1)
	assert.Equal(t, "Expansion", b.Seller.News[0].Summary)

	assert.False(t, b.Target.HasFinancials())
	assert.Equal(t, "Globex is a conglomerate with no public numbers.", b.Target.MarketPosition["summary"])
	require.Len(t, b.Target.Sources, 1)
	assert.Empty(t, b.Target.News)

	pplx.AssertExpectations(t)
	jc.AssertExpectations(t)
}

func TestWebResearcher_PartialFailure(t *testing.T) {
	pplx := &mockPerplexity{}
	pplx.On("ChatCompletion", mock.Anything, mock.Anything).Return(nil, errors.New("perplexity down"))

	jc := &mockJina{}
	jc.On("Search", mock.Anything, "Acme Corp company news").Return(&jina.SearchResponse{Data: []jina.SearchResult{
		{Title: "Acme news", URL: "https://news.example/acme", Content: strings.Repeat("x", 400)},
	}}, nil)
	jc.On("Search", mock.Anything, "Globex Inc company news").Return(nil, errors.New("jina 500"))

	b, err := NewWebResearcher(pplx, jc).Research(context.Background(), "Acme Corp", "Globex Inc")
	require.NoError(t, err)
	require.Len(t, b.Seller.News, 1)
	assert.Len(t, []rune(b.Seller.News[0].Summary), 283)
	assert.NotNil(t, b.Target.Sources)
	assert.Empty(t, b.Target.Sources)
}

func TestWebResearcher_AllFail(t *testing.T) {
	pplx := &mockPerplexity{}
	pplx.On("ChatCompletion", mock.Anything, mock.Anything).Return(nil, errors.New("down"))
	jc := &mockJina{}
	jc.On("Search", mock.Anything, mock.Anything).Return(nil, errors.New("down"))

	_, err := NewWebResearcher(pplx, jc).Research(context.Background(), "Acme Corp", "Globex Inc")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrResearchUnavailable)
}

func TestWebResearcher_NoProviders(t *testing.T) {
	_, err := NewWebResearcher(nil, nil).Research(context.Background(), "Acme Corp", "Globex Inc")
	assert.ErrorIs(t, err, ErrResearchUnavailable)
}

func TestWebResearcher_RateLimitHonorsContext(t *testing.T) {
	pplx := &mockPerplexity{}
	pplx.On("ChatCompletion", mock.Anything, mock.Anything).Return(profileReply("ok"), nil).Maybe()

	// One token per minute: the second profile call waits past the deadline.
	w := NewWebResearcher(pplx, nil, WithRateLimit(1.0/60))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	b, err := w.Research(ctx, "Acme Corp", "Globex Inc")
	require.NoError(t, err)
	summaries := 0
	for _, r := range []model.RoleEvidence{b.Seller, b.Target} {
		if r.HasMarketPosition() {
			summaries++
		}
	}
	assert.Equal(t, 1, summaries)
}

func TestGuardedResearcher_OpensAfterFailures(t *testing.T) {
	calls := 0
	next := ResearchFunc(func(context.Context, string, string) (*model.EvidenceBundle, error) {
		calls++
		return nil, errors.New("provider down")
	})
	g := NewGuardedResearcher(next, resilience.CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Hour,
	})

	for range 2 {
		_, err := g.Research(context.Background(), "Acme Corp", "Globex Inc")
		require.Error(t, err)
	}
	assert.Equal(t, resilience.CircuitOpen, g.State())

	_, err := g.Research(context.Background(), "Acme Corp", "Globex Inc")
	assert.ErrorIs(t, err, ErrResearchUnavailable)
	assert.Equal(t, 2, calls)
}

func TestGuardedResearcher_PassesThrough(t *testing.T) {
	g := NewGuardedResearcher(staticResearch(sampleBundle()), resilience.DefaultCircuitBreakerConfig())
	b, err := g.Research(context.Background(), "Acme Corp", "Globex Inc")
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", b.Seller.Company)
	assert.Equal(t, resilience.CircuitClosed, g.State())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...", truncate("abcdef", 2))
	assert.Equal(t, "né...", truncate("néant", 2))
}
