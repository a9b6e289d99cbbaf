// Package policy turns a score and issue count into a recommendation and a
// process exit code.
package policy

import (
	"fmt"
	"math"

	"github.com/kubilitics/kubilitics-gate/internal/health"
)

// Exit codes of the gate process.
const (
	ExitOK       = 0
	ExitBlocked  = 1
	ExitInternal = 2
)

// PolicyConfig holds the decision parameters.
type PolicyConfig struct {
	HealthThreshold float64
	BlockingMode    bool
}

// Validate rejects thresholds outside [0,100].
func (c PolicyConfig) Validate() error {
	if math.IsNaN(c.HealthThreshold) || c.HealthThreshold < 0 || c.HealthThreshold > 100 {
		return fmt.Errorf("health threshold must be between 0 and 100, got %v", c.HealthThreshold)
	}
	return nil
}

// Decide recommends deploy only when the score reaches the threshold and no
// critical issue was found. Any issue vetoes the deployment regardless of
// score.
func Decide(score float64, issues int, cfg PolicyConfig) health.Recommendation {
	if issues == 0 && score >= cfg.HealthThreshold {
		return health.RecommendationDeploy
	}
	return health.RecommendationBlock
}

// ExitCode maps a recommendation to the process exit status. Non-blocking
// mode always reports success.
func ExitCode(rec health.Recommendation, blocking bool) int {
	if blocking && rec == health.RecommendationBlock {
		return ExitBlocked
	}
	return ExitOK
}
