package pipeline

import (
	"github.com/neokarri946-creator/b2b-sales-platform-sub001/internal/model"
)

// Fusion windows: dimension i takes up to fuseWidth sources starting at
// fuseStride*i, so consecutive windows share one source.
const (
	fuseStride = 2
	fuseWidth  = 3
)

// Fuse attaches research evidence to a scorecard. It never fails and never
// mutates its inputs. A nil bundle yields an all-zero evidence summary and
// dimensions without sources.
func Fuse(analysis *model.Analysis, bundle *model.EvidenceBundle) *model.Analysis {
	if analysis == nil {
		analysis = &model.Analysis{}
	}
	out := analysis.Clone()

	if bundle == nil {
		for i := range out.Scorecard.Dimensions {
			out.Scorecard.Dimensions[i].Sources = nil
		}
		out.ResearchEvidence = &model.ResearchEvidence{}
		return out
	}

	all := bundle.AllSources()
	l := len(all)
	for i := range out.Scorecard.Dimensions {
		d := &out.Scorecard.Dimensions[i]
		lo, hi := min(fuseStride*i, l), min(fuseStride*i+fuseWidth, l)
		d.Sources = make([]model.Source, 0, hi-lo)
		for _, s := range all[lo:hi] {
			title := s.Title
			if title == "" {
				title = d.Name + " - " + s.Type
			}
			d.Sources = append(d.Sources, model.Source{URL: s.URL, Title: title, Type: s.Type})
		}
	}

	out.ResearchEvidence = &model.ResearchEvidence{
		SourcesAnalyzed:  l,
		NewsArticles:     len(bundle.Seller.News) + len(bundle.Target.News),
		HasFinancialData: bundle.Seller.HasFinancials() || bundle.Target.HasFinancials(),
		HasMarketData:    bundle.Seller.HasMarketPosition() || bundle.Target.HasMarketPosition(),
		ResearchComplete: true,
	}
	return out
}
