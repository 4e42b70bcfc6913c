//go:build unix

package sandbox

import (
	"fmt"
	"os/exec"
	"strings"
	"syscall"

	"github.com/scianalytics/agentcore/pkg/models"
)

// applyResourceLimits wraps the already-built command line in a shell that
// sets ulimit -v (address-space, in KB) before exec'ing the interpreter.
// This is the portable way to bound a *child's* address space from a Go
// parent process: Go's os/exec has no pre-exec hook to call setrlimit in
// the child between fork and exec, so the limit is applied by the shell
// that execs into the real command.
//
// Fixes a known defect in the subprocess-sandbox lineage this package is
// descended from: the ceiling must apply whenever it is configured above
// zero, with no minimum floor below which the limit is silently skipped.
func applyResourceLimits(cmd *exec.Cmd, policy models.SandboxPolicy) error {
	if policy.MemoryLimitBytes <= 0 {
		return nil
	}
	limitKB := policy.MemoryLimitBytes / 1024
	if limitKB <= 0 {
		limitKB = 1
	}

	origArgs := cmd.Args
	if len(origArgs) == 0 {
		return fmt.Errorf("sandbox: cannot enforce memory limit on an empty command")
	}
	quoted := make([]string, len(origArgs))
	for i, a := range origArgs {
		quoted[i] = fmt.Sprintf("%q", a)
	}
	shellCmd := fmt.Sprintf("ulimit -v %d; exec %s", limitKB, strings.Join(quoted, " "))

	shPath, err := exec.LookPath("sh")
	if err != nil {
		return fmt.Errorf("sandbox: sh not found, cannot enforce memory limit: %w", err)
	}
	cmd.Path = shPath
	cmd.Args = []string{"sh", "-c", shellCmd}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	return nil
}

func wasOOMKilled(exitErr *exec.ExitError) bool {
	status, ok := exitErr.Sys().(syscall.WaitStatus)
	if !ok {
		return false
	}
	if status.Signaled() && status.Signal() == syscall.SIGKILL {
		return true
	}
	// ulimit -v causes malloc failures that often surface as exit code 137
	// (128+SIGKILL) from the OOM-ish path, or a nonzero interpreter exit
	// after a MemoryError; callers additionally scan stderr for their own
	// language's out-of-memory diagnostics.
	return exitErr.ExitCode() == 137
}
