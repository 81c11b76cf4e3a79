package model

import (
	"encoding/json"

	"github.com/rotisserie/eris"
)

// Analysis is the scored document produced by the generation stage. Keys a
// remote generator returns beyond the known ones are kept in Extra and
// written back out unchanged.
type Analysis struct {
	Scorecard        Scorecard         `json:"scorecard"`
	ResearchEvidence *ResearchEvidence `json:"research_evidence,omitempty"`
	Recommendation   *Recommendation   `json:"recommendation,omitempty"`
	Challenges       []Challenge       `json:"challenges,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// Scorecard holds the overall and per-dimension scores.
type Scorecard struct {
	OverallScore float64     `json:"overall_score"`
	Dimensions   []Dimension `json:"dimensions"`
}

// Dimension is one scored aspect of the deal. Sources is omitted only when
// nil; fusion always sets it, possibly to an empty sequence.
type Dimension struct {
	Name             string   `json:"name"`
	Score            float64  `json:"score"`
	Weight           float64  `json:"weight,omitempty"`
	Summary          string   `json:"summary,omitempty"`
	DetailedAnalysis string   `json:"detailed_analysis,omitempty"`
	Sources          []Source `json:"sources,omitzero"`
}

// ResearchEvidence summarizes how much research backed the scorecard.
type ResearchEvidence struct {
	SourcesAnalyzed  int  `json:"sources_analyzed"`
	NewsArticles     int  `json:"news_articles"`
	HasFinancialData bool `json:"has_financial_data"`
	HasMarketData    bool `json:"has_market_data"`
	ResearchComplete bool `json:"research_complete"`
}

// Recommendation is the go/no-go verdict for the deal.
type Recommendation struct {
	Verdict    string   `json:"verdict"`
	Confidence string   `json:"confidence"`
	Rationale  string   `json:"rationale"`
	NextSteps  []string `json:"next_steps,omitempty"`
}

// Challenge is a risk with its mitigation.
type Challenge struct {
	Risk        string `json:"risk"`
	Mitigation  string `json:"mitigation"`
	Probability string `json:"probability"`
	Impact      string `json:"impact"`
}

var analysisKnownKeys = []string{"scorecard", "research_evidence", "recommendation", "challenges"}

type analysisAlias Analysis

// UnmarshalJSON decodes the known fields and retains everything else.
func (a *Analysis) UnmarshalJSON(data []byte) error {
	var alias analysisAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return eris.Wrap(err, "model: decode analysis")
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return eris.Wrap(err, "model: decode analysis keys")
	}
	for _, k := range analysisKnownKeys {
		delete(raw, k)
	}
	*a = Analysis(alias)
	if len(raw) > 0 {
		a.Extra = raw
	}
	return nil
}

// MarshalJSON encodes the known fields merged with Extra. Known fields win.
func (a Analysis) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(analysisAlias(a))
	if err != nil {
		return nil, err
	}
	if len(a.Extra) == 0 {
		return known, nil
	}
	merged := make(map[string]json.RawMessage, len(a.Extra)+len(analysisKnownKeys))
	for k, v := range a.Extra {
		merged[k] = v
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(known, &fields); err != nil {
		return nil, err
	}
	for k, v := range fields {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// Clone returns a deep copy of the scorecard dimensions and evidence summary.
// Extra and Challenges are shared; callers treat them as read-only.
func (a *Analysis) Clone() *Analysis {
	if a == nil {
		return nil
	}
	out := *a
	out.Scorecard.Dimensions = make([]Dimension, len(a.Scorecard.Dimensions))
	for i, d := range a.Scorecard.Dimensions {
		if d.Sources != nil {
			src := make([]Source, len(d.Sources))
			copy(src, d.Sources)
			d.Sources = src
		}
		out.Scorecard.Dimensions[i] = d
	}
	if a.ResearchEvidence != nil {
		re := *a.ResearchEvidence
		out.ResearchEvidence = &re
	}
	return &out
}
