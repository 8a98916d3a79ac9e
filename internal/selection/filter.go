package selection

import (
	"strings"

	"github.com/ILLUVRSE/resource-selector/internal/models"
)

// Filter returns the resources eligible for a category and privacy tier, in
// catalog order. An empty result is not an error.
func Filter(resources []models.ResourceDescriptor, category models.Category, privacyTier string) []models.ResourceDescriptor {
	out := make([]models.ResourceDescriptor, 0, len(resources))
	for _, r := range resources {
		if !r.Available() {
			continue
		}
		if privacyTier == models.PrivacyConfidential && r.Provider != models.ProviderLocal {
			continue
		}
		if !hasCapability(r, category) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func hasCapability(r models.ResourceDescriptor, category models.Category) bool {
	if category == models.CategoryGeneral {
		return true
	}
	for _, c := range r.Capabilities {
		if strings.Contains(c, string(category)) {
			return true
		}
	}
	return false
}
