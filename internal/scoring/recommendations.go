package scoring

import (
	"sort"

	"github.com/assessment-platform/assessment-api/internal/db/models"
)

// Recommend maps a profile to at most limit recommendations, best match first.
// Equal match scores keep their configured order.
func Recommend(logic models.ScoringLogic, profile string, limit int) []*models.CareerRecommendation {
	specs := logic.Recommendations[profile]
	recs := make([]*models.CareerRecommendation, 0, len(specs))
	for _, s := range specs {
		recs = append(recs, &models.CareerRecommendation{
			Title:       s.Title,
			Description: s.Description,
			MatchScore:  s.MatchScore,
			Attributes:  models.JSONMap(s.Attributes),
		})
	}
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].MatchScore > recs[j].MatchScore
	})
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	for i, r := range recs {
		r.Rank = i + 1
	}
	return recs
}
