package scorer

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPairHash(t *testing.T) {
	assert.Equal(t, int64(0), pairHash(""))
	assert.Equal(t, int64(99162322), pairHash("hello"))
	assert.Equal(t, int64(1555878712), pairHash("acme corp_globex inc"))
}

func TestAdjustmentRange(t *testing.T) {
	for _, key := range []string{"", "a_b", "acme corp_globex inc", "pornhub_oracle", "Ünïcödé_测试"} {
		adj := adjustment(key)
		assert.GreaterOrEqual(t, adj, -0.5, key)
		assert.Less(t, adj, 0.5, key)
	}
}

func TestCalculate_AcmeGlobex(t *testing.T) {
	s := Calculate("Acme Corp", "Globex Inc", VerdictCompatible)
	assert.Equal(t, "acme corp_globex inc", s.PairKey)
	assert.Equal(t, [5]float64{7.7, 7.2, 8.1, 7.4, 7.7}, s.Dimensions)
	assert.Equal(t, 76, s.Overall)
}

func TestCalculate_CaseInsensitive(t *testing.T) {
	a := Calculate("ACME CORP", "globex inc", VerdictModerate)
	b := Calculate("acme corp", "Globex Inc", VerdictModerate)
	assert.Equal(t, a, b)
}

func TestCalculate_Bounds(t *testing.T) {
	for _, v := range []Verdict{VerdictIncompatible, VerdictChallenging, VerdictModerate, VerdictCompatible, Verdict("other")} {
		s := Calculate("Seller", "Target", v)
		for _, d := range s.Dimensions {
			assert.GreaterOrEqual(t, d, 1.0)
			assert.LessOrEqual(t, d, 10.0)
		}
		assert.GreaterOrEqual(t, s.Overall, 10)
		assert.LessOrEqual(t, s.Overall, 100)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name         string
		company      string
		wantIndustry string
		wantBuyer    string
	}{
		{"unknown", "Acme Corp", "unknown", "STANDARD"},
		{"substring keyword", "Pornhub", "adult_entertainment", "STANDARD"},
		{"fortune 500", "Oracle", "unknown", "FORTUNE_500"},
		{"short keyword needs whole word", "Capital One", "unknown", "FINANCIAL"},
		{"short keyword as word", "Acme IT Services", "technology", "STANDARD"},
		{"startup", "Data Labs", "technology", "STARTUP"},
		{"multi word", "Cleveland Clinic", "healthcare", "HEALTHCARE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantIndustry, ClassifyIndustry(tt.company, "").Category)
			assert.Equal(t, tt.wantBuyer, ClassifyBuyer(tt.company, "").Type)
		})
	}
}

func TestAssess(t *testing.T) {
	tests := []struct {
		seller, target string
		want           Verdict
	}{
		{"Acme Corp", "Globex Inc", VerdictCompatible},
		{"Pornhub", "Oracle", VerdictIncompatible},
		{"Casino Royale", "Acme", VerdictIncompatible},
		{"Craft Brewery", "Acme", VerdictCompatible},
		{"Craft Brewery", "Microsoft", VerdictIncompatible},
		{"Grace Church", "Stanford University", VerdictChallenging},
		{"Tinder", "City of Austin", VerdictIncompatible},
	}
	for _, tt := range tests {
		t.Run(tt.seller+"->"+tt.target, func(t *testing.T) {
			assert.Equal(t, tt.want, Assess(tt.seller, tt.target).Verdict)
		})
	}
}

func TestScore_AcmeGlobex(t *testing.T) {
	a := Score("Acme Corp", "Globex Inc")

	assert.InDelta(t, 76.0, a.Scorecard.OverallScore, 1e-9)
	require.Len(t, a.Scorecard.Dimensions, 5)

	var weights float64
	for i, d := range a.Scorecard.Dimensions {
		assert.Equal(t, dimensions[i].name, d.Name)
		assert.NotEmpty(t, d.Summary)
		assert.Nil(t, d.Sources)
		weights += d.Weight
	}
	assert.InDelta(t, 1.0, weights, 1e-9)

	require.NotNil(t, a.Recommendation)
	assert.Equal(t, RecStronglyRecommended, a.Recommendation.Verdict)
	assert.Len(t, a.Challenges, 3)
	assert.Equal(t, "Low", a.Challenges[0].Probability)
	assert.Nil(t, a.ResearchEvidence)

	assert.JSONEq(t, `"deterministic"`, string(a.Extra["scoring_method"]))
	assert.NotContains(t, a.Extra, "warnings")
}

func TestScore_Incompatible(t *testing.T) {
	a := Score("Pornhub", "Oracle")

	assert.InDelta(t, 13.0, a.Scorecard.OverallScore, 1e-9)
	assert.Equal(t, RecDoNotProceed, a.Recommendation.Verdict)
	require.Len(t, a.Challenges, 3)
	assert.Equal(t, "Certain", a.Challenges[0].Probability)

	var warnings []Warning
	require.NoError(t, json.Unmarshal(a.Extra["warnings"], &warnings))
	require.NotEmpty(t, warnings)
	assert.Equal(t, "CRITICAL", warnings[0].Level)

	var compat map[string]any
	require.NoError(t, json.Unmarshal(a.Extra["compatibility"], &compat))
	assert.Equal(t, "INCOMPATIBLE", compat["verdict"])
}

func TestScore_Deterministic(t *testing.T) {
	first, err := json.Marshal(Score("Initech", "Umbrella Corp"))
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := json.Marshal(Score("Initech", "Umbrella Corp"))
		require.NoError(t, err)
		assert.JSONEq(t, string(first), string(again))
	}
}

func TestRecommendThresholds(t *testing.T) {
	assert.Equal(t, RecStronglyRecommended, recommend(VerdictCompatible, 70).Verdict)
	assert.Equal(t, RecProceedWithCaution, recommend(VerdictCompatible, 69).Verdict)
	assert.Equal(t, RecProceedWithCaution, recommend(VerdictModerate, 50).Verdict)
	assert.Equal(t, RecNotRecommended, recommend(VerdictChallenging, 49).Verdict)
	assert.Equal(t, RecDoNotProceed, recommend(VerdictIncompatible, 90).Verdict)
}
