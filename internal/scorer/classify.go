package scorer

import (
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Verdict is the compatibility class of a seller/buyer pair.
type Verdict string

const (
	VerdictIncompatible Verdict = "INCOMPATIBLE"
	VerdictChallenging  Verdict = "CHALLENGING"
	VerdictModerate     Verdict = "MODERATE"
	VerdictCompatible   Verdict = "COMPATIBLE"
)

type fit int

const (
	fitUnknown fit = iota
	fitYes
	fitLimited
	fitNo
)

// Industry is the seller classification.
type Industry struct {
	Category     string `json:"category"`
	RiskCategory string `json:"risk_category"`
	RiskLevel    int    `json:"risk_level"`
	Description  string `json:"description"`

	keywords   []string
	enterprise fit
	government fit
}

// Buyer is the target classification.
type Buyer struct {
	Type                  string `json:"type"`
	ConservatismLevel     int    `json:"conservatism_level"`
	ComplianceLevel       string `json:"compliance_requirements"`
	ReputationSensitivity int    `json:"reputation_sensitivity"`

	keywords []string
}

// Checked in order: high risk first, first match wins.
var industries = []Industry{
	{Category: "adult_entertainment", RiskCategory: "HIGH_RISK", RiskLevel: 10, Description: "Adult entertainment and related services", enterprise: fitNo, government: fitNo,
		keywords: []string{"adult", "porn", "pornography", "xxx", "escort", "sex", "erotic", "nude", "onlyfans", "strip club", "cam"}},
	{Category: "gambling", RiskCategory: "HIGH_RISK", RiskLevel: 9, Description: "Gambling and betting services", enterprise: fitNo, government: fitNo,
		keywords: []string{"casino", "gambling", "betting", "lottery", "poker", "sportsbook", "wagering", "bookmaker"}},
	{Category: "cannabis", RiskCategory: "HIGH_RISK", RiskLevel: 8, Description: "Cannabis and related products", enterprise: fitNo, government: fitNo,
		keywords: []string{"cannabis", "marijuana", "weed", "thc", "cbd", "dispensary", "hemp"}},
	{Category: "weapons", RiskCategory: "HIGH_RISK", RiskLevel: 9, Description: "Weapons and firearms", enterprise: fitNo, government: fitNo,
		keywords: []string{"weapons", "firearms", "guns", "ammunition", "explosives", "military weapons", "assault"}},
	{Category: "tobacco", RiskCategory: "HIGH_RISK", RiskLevel: 7, Description: "Tobacco and vaping products", enterprise: fitNo, government: fitNo,
		keywords: []string{"tobacco", "cigarette", "cigar", "smoking", "nicotine", "vaping", "e-cigarette", "juul"}},
	{Category: "crypto_unregulated", RiskCategory: "HIGH_RISK", RiskLevel: 10, Description: "Unregulated crypto and potential scams", enterprise: fitNo, government: fitNo,
		keywords: []string{"crypto scam", "ponzi", "pyramid", "mlm", "get rich quick", "bitcoin mining scheme"}},

	{Category: "alcohol", RiskCategory: "MEDIUM_RISK", RiskLevel: 5, Description: "Alcohol production and distribution", enterprise: fitLimited, government: fitNo,
		keywords: []string{"alcohol", "liquor", "beer", "wine", "spirits", "brewery", "distillery"}},
	{Category: "political", RiskCategory: "MEDIUM_RISK", RiskLevel: 6, Description: "Political organizations and campaigns", enterprise: fitLimited, government: fitLimited,
		keywords: []string{"political party", "campaign", "lobbying", "political action"}},
	{Category: "religious", RiskCategory: "MEDIUM_RISK", RiskLevel: 4, Description: "Religious organizations", enterprise: fitLimited, government: fitLimited,
		keywords: []string{"church", "mosque", "temple", "religious", "faith-based", "ministry"}},
	{Category: "dating", RiskCategory: "MEDIUM_RISK", RiskLevel: 5, Description: "Dating and matchmaking services", enterprise: fitLimited, government: fitNo,
		keywords: []string{"dating", "matchmaking", "singles", "romance", "tinder", "bumble", "hinge"}},

	{Category: "technology", RiskCategory: "LOW_RISK", RiskLevel: 1, Description: "Technology and software companies", enterprise: fitYes, government: fitYes,
		keywords: []string{"software", "saas", "tech", "it", "cloud", "ai", "machine learning", "data"}},
	{Category: "consulting", RiskCategory: "LOW_RISK", RiskLevel: 1, Description: "Consulting and professional services", enterprise: fitYes, government: fitYes,
		keywords: []string{"consulting", "advisory", "professional services", "strategy", "management"}},
	{Category: "healthcare", RiskCategory: "LOW_RISK", RiskLevel: 2, Description: "Healthcare and medical services", enterprise: fitYes, government: fitYes,
		keywords: []string{"healthcare", "medical", "hospital", "clinic", "health", "pharma", "biotech"}},
	{Category: "finance", RiskCategory: "LOW_RISK", RiskLevel: 2, Description: "Financial services", enterprise: fitYes, government: fitYes,
		keywords: []string{"bank", "finance", "investment", "insurance", "fintech", "payment", "lending"}},
	{Category: "education", RiskCategory: "LOW_RISK", RiskLevel: 1, Description: "Education and training", enterprise: fitYes, government: fitYes,
		keywords: []string{"education", "university", "school", "training", "learning", "edtech"}},
	{Category: "retail", RiskCategory: "LOW_RISK", RiskLevel: 2, Description: "Retail and consumer goods", enterprise: fitYes, government: fitYes,
		keywords: []string{"retail", "ecommerce", "shopping", "store", "marketplace", "consumer goods"}},
	{Category: "manufacturing", RiskCategory: "LOW_RISK", RiskLevel: 2, Description: "Manufacturing and industrial", enterprise: fitYes, government: fitYes,
		keywords: []string{"manufacturing", "factory", "production", "industrial", "supply chain"}},
}

var unknownIndustry = Industry{Category: "unknown", RiskCategory: "UNKNOWN", RiskLevel: 3, Description: "Unclassified industry"}

var buyers = []Buyer{
	{Type: "FORTUNE_500", ConservatismLevel: 9, ComplianceLevel: "very_high", ReputationSensitivity: 10,
		keywords: []string{"oracle", "microsoft", "amazon", "google", "apple", "ibm", "salesforce", "adobe", "cisco", "intel", "meta", "walmart", "jpmorgan", "berkshire"}},
	{Type: "GOVERNMENT", ConservatismLevel: 10, ComplianceLevel: "maximum", ReputationSensitivity: 10,
		keywords: []string{"federal", "government", "state", "city", "county", "municipal", "defense", "military", "pentagon", "fbi", "cia", "nsa", "dhs"}},
	{Type: "HEALTHCARE", ConservatismLevel: 8, ComplianceLevel: "very_high", ReputationSensitivity: 9,
		keywords: []string{"hospital", "medical center", "clinic", "health system", "kaiser", "mayo clinic", "cleveland clinic"}},
	{Type: "FINANCIAL", ConservatismLevel: 9, ComplianceLevel: "very_high", ReputationSensitivity: 9,
		keywords: []string{"bank", "capital", "investment", "insurance", "goldman", "morgan stanley", "wells fargo", "chase", "citi"}},
	{Type: "EDUCATION", ConservatismLevel: 7, ComplianceLevel: "high", ReputationSensitivity: 8,
		keywords: []string{"university", "college", "school", "academy", "institute", "harvard", "stanford", "mit"}},
	{Type: "STARTUP", ConservatismLevel: 3, ComplianceLevel: "low", ReputationSensitivity: 4,
		keywords: []string{"startup", "ventures", "labs", "innovation", "disrupt"}},
}

var standardBuyer = Buyer{Type: "STANDARD", ConservatismLevel: 5, ComplianceLevel: "moderate", ReputationSensitivity: 5}

var lower = cases.Lower(language.Und)

// shortKeyword is the length at or below which a keyword must match a whole
// word; "it" or "ai" would otherwise hit almost any name.
const shortKeyword = 3

// normalize lower-cases s, collapses punctuation to single spaces and pads
// the result so whole-word lookups can search for " kw ".
func normalize(s string) string {
	words := strings.FieldsFunc(lower.String(s), func(r rune) bool {
		return !(r == '-' || ('a' <= r && r <= 'z') || ('0' <= r && r <= '9') || r > 0x7f)
	})
	return " " + strings.Join(words, " ") + " "
}

func matches(text string, keywords []string) bool {
	for _, k := range keywords {
		if len(k) <= shortKeyword {
			if strings.Contains(text, " "+k+" ") {
				return true
			}
			continue
		}
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

// ClassifyIndustry places a company name (and optional description) in an
// industry risk band.
func ClassifyIndustry(name, description string) Industry {
	text := normalize(name + " " + description)
	for _, ind := range industries {
		if matches(text, ind.keywords) {
			return ind
		}
	}
	return unknownIndustry
}

// ClassifyBuyer places a company name in a buyer conservatism band.
func ClassifyBuyer(name, description string) Buyer {
	text := normalize(name + " " + description)
	for _, b := range buyers {
		if matches(text, b.keywords) {
			return b
		}
	}
	return standardBuyer
}

// Compatibility is the pairwise verdict the fallback scores are built on.
type Compatibility struct {
	Score   float64  `json:"score"`
	Verdict Verdict  `json:"verdict"`
	Reason  string   `json:"reason"`
	Seller  Industry `json:"seller_classification"`
	Buyer   Buyer    `json:"buyer_classification"`
}

// Assess computes the compatibility of seller selling to target.
func Assess(seller, target string) Compatibility {
	ind := ClassifyIndustry(seller, "")
	buy := ClassifyBuyer(target, "")

	c := Compatibility{Seller: ind, Buyer: buy}
	if ind.RiskLevel >= 8 && buy.ConservatismLevel >= 7 {
		c.Score = 0.05
		c.Verdict = VerdictIncompatible
		c.Reason = seller + " (" + ind.Description + ") is fundamentally incompatible with " + target +
			" due to industry restrictions and compliance requirements."
		return c
	}

	score := 1.0
	if ind.RiskLevel > 5 {
		score *= float64(10-ind.RiskLevel) / 10
	}
	if buy.ConservatismLevel > 5 && ind.RiskLevel > 3 {
		score *= float64(10-buy.ConservatismLevel) / 10
	}
	if buy.Type == "GOVERNMENT" && ind.government == fitNo {
		score *= 0.1
	}
	if buy.Type == "FORTUNE_500" && ind.enterprise == fitNo {
		score *= 0.2
	}
	c.Score = score

	switch {
	case score < 0.3:
		c.Verdict = VerdictIncompatible
		c.Reason = "Severe compatibility issues between " + seller + " and " + target
	case score < 0.6:
		c.Verdict = VerdictChallenging
		c.Reason = "Significant barriers exist but partnership is possible with effort"
	case score < 0.8:
		c.Verdict = VerdictModerate
		c.Reason = "Some compatibility challenges but generally viable"
	default:
		c.Verdict = VerdictCompatible
		c.Reason = "Companies are compatible for business engagement"
	}
	return c
}

// Warning flags a compatibility concern for the reader of the scorecard.
type Warning struct {
	Level   string `json:"level"`
	Message string `json:"message"`
	Details string `json:"details"`
}

// Warnings lists the concerns raised by a compatibility verdict.
func (c Compatibility) Warnings() []Warning {
	var out []Warning
	if c.Verdict == VerdictIncompatible {
		out = append(out, Warning{"CRITICAL", "This partnership is fundamentally non-viable due to industry incompatibility.", c.Reason})
	}
	if c.Seller.RiskLevel >= 7 {
		out = append(out, Warning{"SEVERE", "Seller operates in a high-risk industry category that most enterprises avoid.",
			"Risk level: " + strconv.Itoa(c.Seller.RiskLevel) + "/10"})
	}
	if c.Buyer.ConservatismLevel >= 8 {
		out = append(out, Warning{"HIGH", "Buyer has extremely strict vendor requirements and compliance standards.",
			"Conservatism level: " + strconv.Itoa(c.Buyer.ConservatismLevel) + "/10"})
	}
	if c.Buyer.ComplianceLevel == "maximum" && c.Seller.RiskLevel > 2 {
		out = append(out, Warning{"HIGH", "Compliance requirements mismatch detected.",
			"Buyer compliance standards exceed seller industry norms."})
	}
	if c.Buyer.ReputationSensitivity >= 8 && c.Seller.RiskLevel > 3 {
		out = append(out, Warning{"MEDIUM", "Potential reputation risk for buyer.",
			"Partnership could impact buyer brand perception."})
	}
	return out
}
