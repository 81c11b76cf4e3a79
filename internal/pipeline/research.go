package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/neokarri946-creator/b2b-sales-platform-sub001/internal/model"
	"github.com/neokarri946-creator/b2b-sales-platform-sub001/internal/resilience"
	"github.com/neokarri946-creator/b2b-sales-platform-sub001/pkg/jina"
	"github.com/neokarri946-creator/b2b-sales-platform-sub001/pkg/perplexity"
)

const companyResearchPrompt = `Research the company "%s" for a B2B sales assessment.
Return a JSON object with these fields:
- overview: string, two or three sentences on what the company does
- financials: object with any of revenue, revenue_growth, employees, funding, market_cap (strings), or null if unknown
- market_position: object with any of segment, competitors (array of strings), differentiators (array of strings), customers (string), or null if unknown

Return only the JSON object.`

const defaultNewsLimit = 5

// companyProfile is the JSON shape requested from Perplexity.
type companyProfile struct {
	Overview       string         `json:"overview"`
	Financials     map[string]any `json:"financials"`
	MarketPosition map[string]any `json:"market_position"`
}

// WebResearcher collects evidence in-process from Perplexity (profile and
// citations) and Jina search (recent news). Either client may be nil.
type WebResearcher struct {
	pplx      perplexity.Client
	jina      jina.Client
	limiter   *rate.Limiter
	newsLimit int
}

// WebOption configures a WebResearcher.
type WebOption func(*WebResearcher)

// WithRateLimit caps outbound Perplexity calls per second.
func WithRateLimit(perSec float64) WebOption {
	return func(w *WebResearcher) {
		if perSec > 0 {
			w.limiter = rate.NewLimiter(rate.Limit(perSec), 1)
		}
	}
}

// WithNewsLimit sets how many news results are kept per company.
func WithNewsLimit(n int) WebOption {
	return func(w *WebResearcher) { w.newsLimit = n }
}

// NewWebResearcher builds a researcher over the given provider clients.
func NewWebResearcher(pplx perplexity.Client, jc jina.Client, opts ...WebOption) *WebResearcher {
	w := &WebResearcher{
		pplx:      pplx,
		jina:      jc,
		limiter:   rate.NewLimiter(rate.Inf, 1),
		newsLimit: defaultNewsLimit,
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Research runs profile and news lookups for both companies concurrently.
// Whatever succeeded is returned; only a total failure is an error.
func (w *WebResearcher) Research(ctx context.Context, seller, target string) (*model.EvidenceBundle, error) {
	bundle := &model.EvidenceBundle{
		Seller: model.RoleEvidence{Company: seller},
		Target: model.RoleEvidence{Company: target},
	}

	var (
		mu       sync.Mutex
		failures []error
		calls    int
	)
	record := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if err != nil {
			failures = append(failures, err)
		}
	}

	var g errgroup.Group
	for _, role := range []*model.RoleEvidence{&bundle.Seller, &bundle.Target} {
		var profile companyProfileResult
		var news []jina.SearchResult
		var roleWG errgroup.Group

		if w.pplx != nil {
			roleWG.Go(func() error {
				p, err := w.profile(ctx, role.Company)
				record(err)
				profile = p
				return nil
			})
		}
		if w.jina != nil {
			roleWG.Go(func() error {
				n, err := w.news(ctx, role.Company)
				record(err)
				news = n
				return nil
			})
		}
		g.Go(func() error {
			_ = roleWG.Wait()
			profile.applyTo(role)
			applyNews(role, news)
			return nil
		})
	}
	_ = g.Wait()

	if calls == 0 {
		return nil, eris.Wrap(ErrResearchUnavailable, "research: no providers configured")
	}
	if len(failures) == calls {
		return nil, eris.Wrapf(ErrResearchUnavailable, "research: all %d provider calls failed: %v", calls, failures[0])
	}
	for _, err := range failures {
		zap.L().Warn("research: provider call failed, keeping partial evidence",
			zap.String("seller", seller), zap.String("target", target), zap.Error(err))
	}
	return bundle.Normalize(), nil
}

type companyProfileResult struct {
	profile   companyProfile
	parsed    bool
	citations []model.Source
}

func (w *WebResearcher) profile(ctx context.Context, company string) (companyProfileResult, error) {
	var out companyProfileResult
	if err := w.limiter.Wait(ctx); err != nil {
		return out, eris.Wrap(err, "research: perplexity rate limit wait")
	}

	temp := 0.2
	resp, err := w.pplx.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Messages:            []perplexity.Message{{Role: "user", Content: fmt.Sprintf(companyResearchPrompt, company)}},
		Temperature:         &temp,
		SearchRecencyFilter: "year",
	})
	if err != nil {
		return out, eris.Wrapf(err, "research: perplexity profile for %q", company)
	}

	text := resp.Content()
	if text == "" {
		return out, eris.Errorf("research: empty perplexity reply for %q", company)
	}
	if err := json.Unmarshal([]byte(cleanJSON(text)), &out.profile); err == nil {
		out.parsed = true
	} else {
		out.profile.Overview = text
	}

	titles := make(map[string]string, len(resp.SearchResults))
	for _, sr := range resp.SearchResults {
		titles[sr.URL] = sr.Title
	}
	for _, u := range resp.Citations {
		out.citations = append(out.citations, model.Source{URL: u, Title: titles[u], Type: model.SourceTypeResearch})
	}
	return out, nil
}

// applyTo writes the profile onto the role. An unparsed reply still counts
// as a market signal: the prose summary is kept under "summary".
func (p companyProfileResult) applyTo(role *model.RoleEvidence) {
	role.Sources = append(role.Sources, p.citations...)
	if p.profile.Financials != nil {
		role.Financials = p.profile.Financials
	}
	switch {
	case p.profile.MarketPosition != nil:
		role.MarketPosition = p.profile.MarketPosition
		if p.profile.Overview != "" {
			role.MarketPosition["summary"] = p.profile.Overview
		}
	case p.profile.Overview != "":
		role.MarketPosition = map[string]any{"summary": p.profile.Overview}
	}
}

func (w *WebResearcher) news(ctx context.Context, company string) ([]jina.SearchResult, error) {
	resp, err := w.jina.Search(ctx, company+" company news", jina.WithMaxResults(w.newsLimit))
	if err != nil {
		return nil, eris.Wrapf(err, "research: jina news for %q", company)
	}
	return resp.Data, nil
}

func applyNews(role *model.RoleEvidence, results []jina.SearchResult) {
	for _, r := range results {
		if r.URL == "" {
			continue
		}
		summary := r.Description
		if summary == "" {
			summary = truncate(r.Content, 280)
		}
		role.News = append(role.News, model.NewsItem{
			Source:    r.URL,
			Title:     r.Title,
			Date:      r.Date,
			Relevance: "Recent coverage of " + role.Company,
			Summary:   summary,
		})
		role.Sources = append(role.Sources, model.Source{URL: r.URL, Title: r.Title, Type: model.SourceTypeNews})
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// GuardedResearcher skips a persistently failing researcher. While the
// breaker is open, Research fails immediately with ErrResearchUnavailable.
type GuardedResearcher struct {
	next    Researcher
	breaker *resilience.CircuitBreaker
}

// NewGuardedResearcher wraps next with a circuit breaker. Deadline errors
// count as failures: a provider that keeps timing out is as good as down.
func NewGuardedResearcher(next Researcher, cfg resilience.CircuitBreakerConfig) *GuardedResearcher {
	if cfg.OnStateChange == nil {
		cfg.OnStateChange = func(from, to resilience.CircuitState) {
			zap.L().Warn("research: circuit state change",
				zap.String("from", from.String()), zap.String("to", to.String()))
		}
	}
	return &GuardedResearcher{next: next, breaker: resilience.NewCircuitBreaker(cfg)}
}

// Research implements Researcher.
func (g *GuardedResearcher) Research(ctx context.Context, seller, target string) (*model.EvidenceBundle, error) {
	b, err := resilience.ExecuteVal(ctx, g.breaker, func(ctx context.Context) (*model.EvidenceBundle, error) {
		return g.next.Research(ctx, seller, target)
	})
	if eris.Is(err, resilience.ErrCircuitOpen) {
		return nil, eris.Wrap(ErrResearchUnavailable, "research: circuit open")
	}
	return b, err
}

// State reports the breaker state, for health output.
func (g *GuardedResearcher) State() resilience.CircuitState {
	return g.breaker.State()
}
