package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	StatusAvailable   = "available"
	StatusUnavailable = "unavailable"

	PrivacyStandard     = "standard"
	PrivacyConfidential = "confidential"

	// ProviderLocal marks resources that never leave the host; only these
	// may serve confidential requests.
	ProviderLocal = "local"
)

type Category string

const (
	CategoryReasoning      Category = "reasoning"
	CategoryCode           Category = "code"
	CategoryImage          Category = "image"
	CategoryAudio          Category = "audio"
	CategoryTransformation Category = "transformation"
	CategoryGeneral        Category = "general"
)

type Performance struct {
	Accuracy      float64 `json:"accuracy" yaml:"accuracy"`
	LatencyMs     float64 `json:"latencyMs" yaml:"latency_ms"`
	Throughput    float64 `json:"throughput" yaml:"throughput"`
	ContextLength int     `json:"contextLength" yaml:"context_length"`
	Quality       float64 `json:"quality" yaml:"quality"`
}

type Costs struct {
	InputTokenCost     float64 `json:"inputTokenCost" yaml:"input_token_cost"`
	OutputTokenCost    float64 `json:"outputTokenCost" yaml:"output_token_cost"`
	ComputeCostPerHour float64 `json:"computeCostPerHour" yaml:"compute_cost_per_hour"`
	StorageCostPerGB   float64 `json:"storageCostPerGb" yaml:"storage_cost_per_gb"`
}

// ComputePriced reports whether the resource is billed by compute time
// rather than by tokens.
func (c Costs) ComputePriced() bool {
	return c.ComputeCostPerHour > 0
}

type ResourceDescriptor struct {
	ID           string      `json:"id" yaml:"id"`
	Name         string      `json:"name" yaml:"name"`
	Kind         string      `json:"kind" yaml:"kind"`
	Provider     string      `json:"provider" yaml:"provider"`
	Capabilities []string    `json:"capabilities" yaml:"capabilities"`
	Status       string      `json:"status" yaml:"status"`
	Performance  Performance `json:"performance" yaml:"performance"`
	Costs        Costs       `json:"costs" yaml:"costs"`
}

// Clone returns a deep copy so callers never share the capabilities slice
// with the catalog.
func (d ResourceDescriptor) Clone() ResourceDescriptor {
	out := d
	if d.Capabilities != nil {
		out.Capabilities = append([]string(nil), d.Capabilities...)
	}
	return out
}

func (d ResourceDescriptor) Available() bool {
	return d.Status == StatusAvailable
}

func (d ResourceDescriptor) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("id required")
	}
	if d.Status != StatusAvailable && d.Status != StatusUnavailable {
		return fmt.Errorf("status must be %q or %q", StatusAvailable, StatusUnavailable)
	}
	p := d.Performance
	if p.Accuracy < 0 || p.Accuracy > 1 {
		return fmt.Errorf("performance.accuracy must be within [0,1]")
	}
	if p.Quality < 0 || p.Quality > 1 {
		return fmt.Errorf("performance.quality must be within [0,1]")
	}
	if p.LatencyMs <= 0 {
		return fmt.Errorf("performance.latencyMs must be positive")
	}
	c := d.Costs
	if c.InputTokenCost < 0 || c.OutputTokenCost < 0 || c.ComputeCostPerHour < 0 || c.StorageCostPerGB < 0 {
		return fmt.Errorf("costs must be non-negative")
	}
	return nil
}

type SelectionRequest struct {
	TaskType        string                 `json:"taskType"`
	InputSize       int                    `json:"inputSize"`
	PrivacyTier     string                 `json:"privacyTier"`
	LatencyBudgetMs float64                `json:"latencyBudgetMs"`
	CostCap         float64                `json:"costCap"`
	QualityTarget   float64                `json:"qualityTarget"`
	Context         map[string]interface{} `json:"context,omitempty"`
	Constraints     map[string]interface{} `json:"constraints,omitempty"`
}

// Normalize fills defaults. An empty privacy tier means standard.
func (r SelectionRequest) Normalize() SelectionRequest {
	r.PrivacyTier = strings.ToLower(strings.TrimSpace(r.PrivacyTier))
	if r.PrivacyTier == "" {
		r.PrivacyTier = PrivacyStandard
	}
	return r
}

func (r SelectionRequest) Validate() error {
	if strings.TrimSpace(r.TaskType) == "" {
		return fmt.Errorf("taskType required")
	}
	if r.InputSize < 0 {
		return fmt.Errorf("inputSize must be >= 0")
	}
	if r.LatencyBudgetMs < 0 {
		return fmt.Errorf("latencyBudgetMs must be >= 0")
	}
	if r.CostCap < 0 {
		return fmt.Errorf("costCap must be >= 0")
	}
	if r.QualityTarget < 0 || r.QualityTarget > 1 {
		return fmt.Errorf("qualityTarget must be within [0,1]")
	}
	switch r.PrivacyTier {
	case PrivacyStandard, PrivacyConfidential:
	default:
		return fmt.Errorf("unknown privacyTier %q", r.PrivacyTier)
	}
	return nil
}

type ScoredCandidate struct {
	Resource     ResourceDescriptor `json:"resource"`
	Score        float64            `json:"score"`
	ExpectedCost float64            `json:"expectedCost"`
}

type SelectionMetadata struct {
	RequestID      string    `json:"requestId"`
	Category       Category  `json:"category"`
	CandidateCount int       `json:"candidateCount"`
	Timestamp      time.Time `json:"timestamp"`
	PolicyDecision string    `json:"policyDecision"`
	PolicyID       string    `json:"policyId,omitempty"`
}

// Policy decision labels recorded in SelectionMetadata.
const (
	PolicyAllowed         = "allowed"
	PolicyAllowedFailOpen = "allowed_fail_open"
)

type SelectionResponse struct {
	Success           bool                 `json:"success"`
	SelectedResource  *ResourceDescriptor  `json:"selectedResource"`
	Rationale         string               `json:"rationale"`
	ExpectedCost      float64              `json:"expectedCost"`
	ExpectedLatencyMs float64              `json:"expectedLatencyMs"`
	Confidence        float64              `json:"confidence"`
	Alternatives      []ResourceDescriptor `json:"alternatives"`
	Metadata          SelectionMetadata    `json:"metadata"`
}

type FeedbackRecord struct {
	ID                      uuid.UUID              `json:"id"`
	ResourceID              string                 `json:"resourceId"`
	Rating                  float64                `json:"rating"`
	PerformanceObservations map[string]interface{} `json:"performance,omitempty"`
	Comments                string                 `json:"comments,omitempty"`
	Timestamp               time.Time              `json:"timestamp"`
}
