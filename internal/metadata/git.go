// ABOUTME: Best-effort git context capture via short-lived external git invocations
// ABOUTME: Each query is independently bounded and contributes its key only on success
package metadata

import (
	"context"
	"os/exec"
	"strings"
	"time"
)

// GitQueryTimeout bounds each individual git invocation.
const GitQueryTimeout = 5 * time.Second

// CaptureGitContext gathers commit, branch, and exact-tag information for
// path. Every query is best-effort: a failure, timeout, or non-repository
// path simply omits that key. The returned map may be empty and the function
// never returns an error.
func CaptureGitContext(ctx context.Context, path string) map[string]string {
	meta := make(map[string]string)

	if commit, ok := gitQuery(ctx, path, "rev-parse", "HEAD"); ok {
		meta["commit"] = commit
	}
	if branch, ok := gitQuery(ctx, path, "rev-parse", "--abbrev-ref", "HEAD"); ok {
		meta["branch"] = branch
	}
	if tag, ok := gitQuery(ctx, path, "describe", "--tags", "--exact-match"); ok {
		meta["tag"] = tag
	}

	return meta
}

func gitQuery(ctx context.Context, path string, args ...string) (string, bool) {
	queryCtx, cancel := context.WithTimeout(ctx, GitQueryTimeout)
	defer cancel()

	cmdArgs := append([]string{"-C", path}, args...)
	out, err := exec.CommandContext(queryCtx, "git", cmdArgs...).Output()
	if err != nil {
		return "", false
	}

	value := strings.TrimSpace(string(out))
	if value == "" {
		return "", false
	}
	return value, true
}
