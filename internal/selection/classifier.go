package selection

import (
	"strings"

	"github.com/ILLUVRSE/resource-selector/internal/models"
)

type keywordRule struct {
	keywords []string
	category models.Category
}

// Evaluated top to bottom; earlier rules win when a task type matches more
// than one group.
var classificationRules = []keywordRule{
	{keywords: []string{"reasoning", "planning"}, category: models.CategoryReasoning},
	{keywords: []string{"code", "programming"}, category: models.CategoryCode},
	{keywords: []string{"image", "visual"}, category: models.CategoryImage},
	{keywords: []string{"speech", "audio"}, category: models.CategoryAudio},
	{keywords: []string{"transform", "format"}, category: models.CategoryTransformation},
}

// Classify maps a free-form task type to a category. Anything unmatched is
// general.
func Classify(taskType string) models.Category {
	lowered := strings.ToLower(taskType)
	for _, rule := range classificationRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lowered, kw) {
				return rule.category
			}
		}
	}
	return models.CategoryGeneral
}
