package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelectionRequestValidate(t *testing.T) {
	base := SelectionRequest{TaskType: "code review", InputSize: 10, PrivacyTier: PrivacyStandard}

	cases := []struct {
		name    string
		mutate  func(r *SelectionRequest)
		wantErr bool
	}{
		{"valid", func(r *SelectionRequest) {}, false},
		{"missing task", func(r *SelectionRequest) { r.TaskType = "  " }, true},
		{"negative size", func(r *SelectionRequest) { r.InputSize = -1 }, true},
		{"negative budget", func(r *SelectionRequest) { r.LatencyBudgetMs = -5 }, true},
		{"negative cap", func(r *SelectionRequest) { r.CostCap = -0.1 }, true},
		{"quality above one", func(r *SelectionRequest) { r.QualityTarget = 1.2 }, true},
		{"unknown tier", func(r *SelectionRequest) { r.PrivacyTier = "secret" }, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := base
			tc.mutate(&req)
			err := req.Normalize().Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNormalizeDefaultsPrivacyTier(t *testing.T) {
	req := SelectionRequest{TaskType: "x", PrivacyTier: " Confidential "}.Normalize()
	assert.Equal(t, PrivacyConfidential, req.PrivacyTier)

	req = SelectionRequest{TaskType: "x"}.Normalize()
	assert.Equal(t, PrivacyStandard, req.PrivacyTier)
}

func TestDescriptorCloneDoesNotShareCapabilities(t *testing.T) {
	d := ResourceDescriptor{ID: "a", Capabilities: []string{"reasoning"}}
	c := d.Clone()
	c.Capabilities[0] = "code"
	assert.Equal(t, "reasoning", d.Capabilities[0])
}

func TestDescriptorValidate(t *testing.T) {
	d := ResourceDescriptor{
		ID:          "gpt",
		Status:      StatusAvailable,
		Performance: Performance{Accuracy: 0.9, Quality: 0.9, LatencyMs: 100},
	}
	assert.NoError(t, d.Validate())

	bad := d
	bad.Performance.LatencyMs = 0
	assert.Error(t, bad.Validate())

	bad = d
	bad.Status = "retired"
	assert.Error(t, bad.Validate())

	bad = d
	bad.Costs.InputTokenCost = -1
	assert.Error(t, bad.Validate())
}
