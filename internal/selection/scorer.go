package selection

import "github.com/ILLUVRSE/resource-selector/internal/models"

const (
	WeightQuality  = 0.30
	WeightLatency  = 0.25
	WeightCost     = 0.25
	WeightAccuracy = 0.20
)

// Breakdown holds the normalized sub-scores behind a candidate's score.
type Breakdown struct {
	Quality  float64
	Latency  float64
	Cost     float64
	Accuracy float64
}

// Total is the weighted sum, clamped to [0,1].
func (b Breakdown) Total() float64 {
	return clamp01(WeightQuality*b.Quality + WeightLatency*b.Latency + WeightCost*b.Cost + WeightAccuracy*b.Accuracy)
}

type Scorer struct {
	costs CostEstimator
}

func NewScorer(costs CostEstimator) *Scorer {
	if costs == nil {
		costs = HeuristicCostEstimator{}
	}
	return &Scorer{costs: costs}
}

// Breakdown computes sub-scores and expected cost. Budgets and caps only
// depress a sub-score; they never disqualify a candidate.
func (s *Scorer) Breakdown(resource models.ResourceDescriptor, req models.SelectionRequest) (Breakdown, float64) {
	perf := resource.Performance
	expectedCost := s.costs.Estimate(resource, req)

	b := Breakdown{Quality: perf.Quality, Latency: 1, Cost: 1, Accuracy: perf.Accuracy}
	if req.QualityTarget > 0 {
		b.Quality = min(perf.Quality/req.QualityTarget, 1)
	}
	if req.LatencyBudgetMs > 0 && perf.LatencyMs > req.LatencyBudgetMs {
		b.Latency = req.LatencyBudgetMs / perf.LatencyMs
	}
	if req.CostCap > 0 && expectedCost > req.CostCap {
		b.Cost = req.CostCap / expectedCost
	}
	return b, expectedCost
}

func (s *Scorer) Score(resource models.ResourceDescriptor, req models.SelectionRequest) models.ScoredCandidate {
	b, cost := s.Breakdown(resource, req)
	return models.ScoredCandidate{Resource: resource, Score: b.Total(), ExpectedCost: cost}
}

// ScoreAll scores every candidate, preserving input order.
func (s *Scorer) ScoreAll(candidates []models.ResourceDescriptor, req models.SelectionRequest) []models.ScoredCandidate {
	out := make([]models.ScoredCandidate, len(candidates))
	for i, c := range candidates {
		out[i] = s.Score(c, req)
	}
	return out
}

// clamp01 guards against catalog entries with out-of-range metrics. NaN
// collapses to zero.
func clamp01(v float64) float64 {
	if !(v > 0) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
