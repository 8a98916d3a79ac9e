package selection

import (
	"fmt"

	"github.com/ILLUVRSE/resource-selector/internal/models"
)

func Explain(winner models.ResourceDescriptor, req models.SelectionRequest, score float64) string {
	name := winner.Name
	if name == "" {
		name = winner.ID
	}
	return fmt.Sprintf("Selected %s for %q with score %.2f (quality %.2f, latency %.0fms).",
		name, req.TaskType, score, winner.Performance.Quality, winner.Performance.LatencyMs)
}
