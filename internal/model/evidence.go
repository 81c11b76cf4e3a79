package model

// Source types attached to evidence.
const (
	SourceTypeFinancial = "financial"
	SourceTypeMarket    = "market"
	SourceTypeNews      = "news"
	SourceTypeResearch  = "research"
	SourceTypeTechnical = "technical"
)

// Source is a single piece of supporting evidence.
type Source struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	Type  string `json:"type"`
}

// NewsItem is a recent news article about a company.
type NewsItem struct {
	Source    string `json:"source"`
	Title     string `json:"title"`
	Date      string `json:"date,omitempty"`
	Relevance string `json:"relevance,omitempty"`
	Summary   string `json:"summary,omitempty"`
}

// RoleEvidence is the research collected for one side of the deal.
// Financials and MarketPosition are free-form; a non-nil map (even an
// empty one) means the signal is present.
type RoleEvidence struct {
	Company        string         `json:"company,omitempty"`
	Sources        []Source       `json:"sources"`
	News           []NewsItem     `json:"news,omitempty"`
	Financials     map[string]any `json:"financials,omitzero"`
	MarketPosition map[string]any `json:"market_position,omitzero"`
}

// HasFinancials reports whether a financial signal was collected.
func (r RoleEvidence) HasFinancials() bool { return r.Financials != nil }

// HasMarketPosition reports whether a market signal was collected.
func (r RoleEvidence) HasMarketPosition() bool { return r.MarketPosition != nil }

// EvidenceBundle is the research stage output keyed by role.
type EvidenceBundle struct {
	Seller RoleEvidence `json:"seller"`
	Target RoleEvidence `json:"target"`
}

// Normalize guarantees both roles carry a non-nil sources sequence.
func (b *EvidenceBundle) Normalize() *EvidenceBundle {
	if b == nil {
		return nil
	}
	if b.Seller.Sources == nil {
		b.Seller.Sources = []Source{}
	}
	if b.Target.Sources == nil {
		b.Target.Sources = []Source{}
	}
	return b
}

// AllSources concatenates seller then target sources, preserving order.
func (b *EvidenceBundle) AllSources() []Source {
	if b == nil {
		return nil
	}
	all := make([]Source, 0, len(b.Seller.Sources)+len(b.Target.Sources))
	all = append(all, b.Seller.Sources...)
	all = append(all, b.Target.Sources...)
	return all
}
