package selection

import (
	"sort"

	"github.com/ILLUVRSE/resource-selector/internal/models"
)

// Rank returns a copy sorted by descending score. Equal scores keep their
// scoring order.
func Rank(scored []models.ScoredCandidate) []models.ScoredCandidate {
	out := append([]models.ScoredCandidate(nil), scored...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}
