package selection

import "github.com/ILLUVRSE/resource-selector/internal/models"

const (
	// ComputeHoursPerRequest assumes roughly six minutes of compute per
	// request regardless of input size.
	ComputeHoursPerRequest = 0.1
	// TokenOverheadFactor covers prompt formatting and system messages.
	TokenOverheadFactor = 1.3
)

// CostEstimator predicts what serving a request on a resource will cost.
type CostEstimator interface {
	Estimate(resource models.ResourceDescriptor, req models.SelectionRequest) float64
}

type HeuristicCostEstimator struct{}

func (HeuristicCostEstimator) Estimate(resource models.ResourceDescriptor, req models.SelectionRequest) float64 {
	if resource.Costs.ComputePriced() {
		return resource.Costs.ComputeCostPerHour * ComputeHoursPerRequest
	}
	return float64(req.InputSize) * TokenOverheadFactor * resource.Costs.InputTokenCost
}
