package sentinel

import (
	"context"
	"errors"
	"strings"
)

// ErrUnavailable marks failures to obtain a decision from the validator, as
// opposed to an explicit denial.
var ErrUnavailable = errors.New("policy validator unavailable")

type Decision struct {
	Valid    bool   `json:"valid"`
	PolicyID string `json:"policyId,omitempty"`
	Reason   string `json:"reason,omitempty"`

	// Unavailable is set when the gate strategy, not the validator, decided.
	Unavailable bool `json:"-"`
}

type Request struct {
	Action  string                 `json:"action"`
	Context map[string]interface{} `json:"context"`
}

type Client interface {
	Check(ctx context.Context, req Request) (Decision, error)
}

// StaticClient allows every action except those on its deny list.
type StaticClient struct {
	denied map[string]struct{}
}

func NewStaticClient(denied []string) *StaticClient {
	set := make(map[string]struct{}, len(denied))
	for _, a := range denied {
		set[strings.ToLower(a)] = struct{}{}
	}
	return &StaticClient{denied: set}
}

func (c *StaticClient) Check(ctx context.Context, req Request) (Decision, error) {
	if _, ok := c.denied[strings.ToLower(req.Action)]; ok {
		return Decision{
			Valid:    false,
			PolicyID: "sentinel-deny-action",
			Reason:   "action blocked by policy",
		}, nil
	}
	return Decision{
		Valid:    true,
		PolicyID: "sentinel-allow",
		Reason:   "approved",
	}, nil
}
