// Package scorer builds a deterministic deal scorecard from the company
// names alone. It is the fallback when no model-generated analysis is
// available: the same pair always yields the same document.
package scorer

import (
	"encoding/json"
	"fmt"
	"math"
	"unicode/utf16"

	"github.com/neokarri946-creator/b2b-sales-platform-sub001/internal/model"
)

// Dimension names and weights, in scorecard order.
const (
	DimMarketAlignment         = "Market Alignment"
	DimBudgetReadiness         = "Budget Readiness"
	DimTechnologyFit           = "Technology Fit"
	DimCompetitivePosition     = "Competitive Position"
	DimImplementationReadiness = "Implementation Readiness"
)

type dimension struct {
	name       string
	weight     float64
	multiplier float64
}

var dimensions = []dimension{
	{DimMarketAlignment, 0.25, 1.0},
	{DimBudgetReadiness, 0.20, 0.8},
	{DimTechnologyFit, 0.20, 1.2},
	{DimCompetitivePosition, 0.20, 0.9},
	{DimImplementationReadiness, 0.15, 1.1},
}

// Base scores per verdict, indexed like dimensions.
var baseScores = map[Verdict][5]float64{
	VerdictIncompatible: {1.5, 2.0, 1.8, 1.2, 1.5},
	VerdictChallenging:  {4.0, 3.5, 4.2, 3.8, 4.0},
	VerdictModerate:     {6.0, 5.5, 6.2, 5.8, 6.0},
	VerdictCompatible:   {7.5, 7.0, 7.8, 7.2, 7.5},
}

// Recommendation verdicts.
const (
	RecDoNotProceed        = "DO NOT PROCEED"
	RecStronglyRecommended = "STRONGLY RECOMMENDED"
	RecProceedWithCaution  = "PROCEED WITH CAUTION"
	RecNotRecommended      = "NOT RECOMMENDED"
)

// Scores are the raw numbers behind a fallback scorecard.
type Scores struct {
	Overall    int
	Dimensions [5]float64
	PairKey    string
}

// pairHash is a 31-multiplier string hash over UTF-16 code units with
// 32-bit wraparound, made non-negative.
func pairHash(s string) int64 {
	var h int32
	for _, c := range utf16.Encode([]rune(s)) {
		h = h*31 + int32(c)
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return v
}

// adjustment maps the pair key onto [-0.5, 0.5).
func adjustment(key string) float64 {
	return -0.5 + float64(pairHash(key)%1000)/1000
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

// Calculate returns the deterministic scores for a pair under a verdict.
func Calculate(seller, target string, verdict Verdict) Scores {
	key := lower.String(seller) + "_" + lower.String(target)
	adj := adjustment(key)

	base, ok := baseScores[verdict]
	if !ok {
		base = [5]float64{5, 5, 5, 5, 5}
	}

	var s Scores
	s.PairKey = key
	var weighted float64
	for i, d := range dimensions {
		v := round1(base[i] + adj*d.multiplier)
		v = math.Max(1, math.Min(10, v))
		s.Dimensions[i] = v
		weighted += v * d.weight
	}
	s.Overall = int(math.Round(weighted * 10))
	return s
}

// Score builds the complete fallback analysis for seller selling to target.
func Score(seller, target string) *model.Analysis {
	compat := Assess(seller, target)
	scores := Calculate(seller, target, compat.Verdict)
	incompatible := compat.Verdict == VerdictIncompatible

	dims := make([]model.Dimension, len(dimensions))
	for i, d := range dimensions {
		dims[i] = model.Dimension{
			Name:    d.name,
			Score:   scores.Dimensions[i],
			Weight:  d.weight,
			Summary: summary(d.name, seller, target, scores.Dimensions[i], incompatible),
		}
	}

	a := &model.Analysis{
		Scorecard: model.Scorecard{
			OverallScore: float64(scores.Overall),
			Dimensions:   dims,
		},
		Recommendation: recommend(compat.Verdict, scores.Overall),
		Challenges:     challenges(incompatible, seller, target, scores.Overall),
	}
	a.Extra = extras(compat)
	return a
}

func summary(dim, seller, target string, score float64, incompatible bool) string {
	strong := score > 6
	pick := func(yes, no string) string {
		if strong {
			return yes
		}
		return no
	}
	switch dim {
	case DimMarketAlignment:
		if incompatible {
			return fmt.Sprintf("Severe market misalignment between %s and %s. Fundamental industry incompatibility prevents any meaningful business relationship.", seller, target)
		}
		return fmt.Sprintf("Market alignment analysis shows %s conditions for partnership between %s and %s.", pick("favorable", "challenging"), seller, target)
	case DimBudgetReadiness:
		if incompatible {
			return fmt.Sprintf("Zero budget availability. %s's procurement policies explicitly prohibit expenditures in %s's category.", target, seller)
		}
		return fmt.Sprintf("%s shows %s budget capacity for %s's solutions.", target, pick("strong", "limited"), seller)
	case DimTechnologyFit:
		if incompatible {
			return fmt.Sprintf("Complete technical incompatibility. %s's IT governance prohibits any integration with %s's platforms.", target, seller)
		}
		return fmt.Sprintf("Technical assessment shows %s compatibility between platforms.", pick("good", "moderate"))
	case DimCompetitivePosition:
		if incompatible {
			return fmt.Sprintf("Non-competitive by default. %s is categorically excluded from %s's vendor consideration.", seller, target)
		}
		return fmt.Sprintf("%s holds %s competitive position for %s's business.", seller, pick("strong", "moderate"), target)
	default:
		if incompatible {
			return fmt.Sprintf("Implementation impossible. Organizational barriers at %s prevent any engagement with %s.", target, seller)
		}
		return fmt.Sprintf("%s shows %s readiness for implementation.", target, pick("strong", "moderate"))
	}
}

func recommend(verdict Verdict, score int) *model.Recommendation {
	switch {
	case verdict == VerdictIncompatible:
		return &model.Recommendation{
			Verdict:    RecDoNotProceed,
			Confidence: "VERY HIGH",
			Rationale:  "This partnership is fundamentally non-viable due to industry incompatibility.",
			NextSteps:  []string{"Immediately disqualify this opportunity", "Focus resources on compatible prospects", "Update CRM to prevent future outreach"},
		}
	case score >= 70:
		return &model.Recommendation{
			Verdict:    RecStronglyRecommended,
			Confidence: "HIGH",
			Rationale:  fmt.Sprintf("Strong alignment and high success probability (%d%%) justify immediate pursuit.", score),
			NextSteps:  []string{"Schedule executive briefing", "Prepare detailed proposal", "Identify champion within target organization"},
		}
	case score >= 50:
		return &model.Recommendation{
			Verdict:    RecProceedWithCaution,
			Confidence: "MEDIUM",
			Rationale:  fmt.Sprintf("Moderate potential (%d%%) but significant challenges require careful approach.", score),
			NextSteps:  []string{"Conduct deeper discovery", "Address identified risks", "Build stronger business case"},
		}
	default:
		return &model.Recommendation{
			Verdict:    RecNotRecommended,
			Confidence: "HIGH",
			Rationale:  fmt.Sprintf("Low success probability (%d%%) suggests poor resource allocation.", score),
			NextSteps:  []string{"Deprioritize opportunity", "Monitor for future changes", "Focus on better-aligned prospects"},
		}
	}
}

func challenges(incompatible bool, seller, target string, score int) []model.Challenge {
	if incompatible {
		return []model.Challenge{
			{Risk: fmt.Sprintf("Fundamental industry incompatibility between %s and %s", seller, target), Mitigation: "No mitigation possible - partnership is not viable", Probability: "Certain", Impact: "Deal Killer"},
			{Risk: fmt.Sprintf("Severe reputational damage to %s", target), Mitigation: "Cannot be mitigated - must avoid partnership", Probability: "Certain", Impact: "Catastrophic"},
			{Risk: "Regulatory and compliance violations", Mitigation: "No workaround exists - violations are certain", Probability: "Certain", Impact: "Severe Legal Consequences"},
		}
	}
	likely, impact := "Medium", "Moderate"
	if score > 60 {
		likely, impact = "Low", "Low"
	}
	return []model.Challenge{
		{Risk: "Budget approval delays", Mitigation: "Align with fiscal planning cycles", Probability: likely, Impact: "Moderate"},
		{Risk: "Integration complexity", Mitigation: "Phased implementation approach", Probability: "Medium", Impact: impact},
		{Risk: "Stakeholder buy-in", Mitigation: "Executive sponsorship and change management", Probability: likely, Impact: "Moderate"},
	}
}

func extras(c Compatibility) map[string]json.RawMessage {
	out := map[string]json.RawMessage{
		"scoring_method": json.RawMessage(`"deterministic"`),
	}
	if b, err := json.Marshal(c); err == nil {
		out["compatibility"] = b
	}
	if w := c.Warnings(); len(w) > 0 {
		if b, err := json.Marshal(w); err == nil {
			out["warnings"] = b
		}
	}
	return out
}
