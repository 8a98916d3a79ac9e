package sentinel

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ILLUVRSE/resource-selector/internal/logging"
	"github.com/ILLUVRSE/resource-selector/internal/metrics"
)

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusUnknown   = "unknown"
)

// Strategy decides the outcome of a policy check when the validator cannot
// be reached.
type Strategy interface {
	Name() string
	AllowOnUnavailable() bool
}

type FailOpen struct{}

func (FailOpen) Name() string             { return "open" }
func (FailOpen) AllowOnUnavailable() bool { return true }

type FailClosed struct{}

func (FailClosed) Name() string             { return "closed" }
func (FailClosed) AllowOnUnavailable() bool { return false }

// StrategyFor maps a config value to a strategy. Anything other than
// "closed" fails open.
func StrategyFor(mode string) Strategy {
	if strings.EqualFold(strings.TrimSpace(mode), "closed") {
		return FailClosed{}
	}
	return FailOpen{}
}

type GateConfig struct {
	Client   Client
	Strategy Strategy
	// Timeout bounds a whole check including retries. Zero leaves only the
	// caller's deadline.
	Timeout time.Duration
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Gate wraps a Client with an availability strategy and remembers the
// outcome of the last check for health reporting.
type Gate struct {
	client   Client
	strategy Strategy
	timeout  time.Duration
	logger   *zap.Logger
	metrics  *metrics.Metrics

	mu     sync.RWMutex
	status string
}

func NewGate(cfg GateConfig) *Gate {
	strategy := cfg.Strategy
	if strategy == nil {
		strategy = FailOpen{}
	}
	return &Gate{
		client:   cfg.Client,
		strategy: strategy,
		timeout:  cfg.Timeout,
		logger:   logging.OrNop(cfg.Logger).Named("sentinel"),
		metrics:  cfg.Metrics,
		status:   StatusUnknown,
	}
}

// Validate returns whether action may proceed. Explicit denials from the
// validator are returned verbatim; failures to reach it are resolved by the
// strategy and flagged on the decision.
func (g *Gate) Validate(ctx context.Context, action string, attrs map[string]interface{}) (bool, Decision) {
	if g.timeout > 0 {
		var cancel func()
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	decision, err := g.client.Check(ctx, Request{Action: action, Context: attrs})
	if err != nil {
		g.setStatus(StatusUnhealthy)
		g.metrics.IncPolicyUnavailable()
		allowed := g.strategy.AllowOnUnavailable()
		if allowed {
			g.logger.Warn("policy validator unavailable; failing open",
				zap.String("action", action),
				zap.Error(err),
			)
		} else {
			g.logger.Error("policy validator unavailable; failing closed",
				zap.String("action", action),
				zap.Error(err),
			)
		}
		return allowed, Decision{
			Valid:       allowed,
			PolicyID:    "sentinel-fail-" + g.strategy.Name(),
			Reason:      err.Error(),
			Unavailable: true,
		}
	}
	g.setStatus(StatusHealthy)
	return decision.Valid, decision
}

// Status is the outcome of the most recent check.
func (g *Gate) Status() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.status
}

func (g *Gate) setStatus(s string) {
	g.mu.Lock()
	g.status = s
	g.mu.Unlock()
}
