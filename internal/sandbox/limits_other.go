//go:build !unix

package sandbox

import (
	"errors"
	"os/exec"

	"github.com/scianalytics/agentcore/pkg/models"
)

// applyResourceLimits fails closed on non-POSIX platforms: if a memory
// ceiling is configured, the run is rejected rather than executed
// unconstrained, per spec's requirement that an infeasible limit must
// never be silently skipped.
func applyResourceLimits(cmd *exec.Cmd, policy models.SandboxPolicy) error {
	if policy.MemoryLimitBytes > 0 {
		return errors.New("memory limit enforcement is unavailable on this platform")
	}
	return nil
}

func wasOOMKilled(exitErr *exec.ExitError) bool {
	return false
}
