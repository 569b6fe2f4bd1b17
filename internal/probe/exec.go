package probe

import (
	"context"
	"errors"
	"os/exec"
	"strings"

	"github.com/linkproofhq/linkproof/pkg/types"
)

const outputSnippetLimit = 200

// Runner executes external measurement tools. The zero value uses the real
// command runner; tests override the function fields.
type Runner struct {
	LookPath   func(name string) (string, error)
	RunCommand func(ctx context.Context, name string, args ...string) ([]byte, error)
}

func (r Runner) lookPath(name string) (string, error) {
	if r.LookPath != nil {
		return r.LookPath(name)
	}
	return exec.LookPath(name)
}

func (r Runner) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	runCmd := r.RunCommand
	if runCmd == nil {
		runCmd = func(ctx context.Context, name string, args ...string) ([]byte, error) {
			cmd := exec.CommandContext(ctx, name, args...)
			return cmd.CombinedOutput()
		}
	}
	out, err := runCmd(ctx, name, args...)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return out, context.DeadlineExceeded
	}
	return out, err
}

// classifyToolError maps an external tool fault onto the fixed failure
// taxonomy. The output snippet is preserved as human-readable detail.
func classifyToolError(tool string, err error, output []byte) types.Failure {
	detail := tool + ": " + err.Error()
	if snippet := outputSnippet(output); snippet != "" {
		detail += " (" + snippet + ")"
	}

	switch {
	case errors.Is(err, exec.ErrNotFound):
		return types.Failure{Reason: types.ReasonToolNotFound, Detail: tool + " not found in PATH"}
	case errors.Is(err, context.DeadlineExceeded):
		return types.Failure{Reason: types.ReasonTimeout, Detail: tool + " exceeded its timeout"}
	default:
		return types.Failure{Reason: types.ReasonNetworkUnreachable, Detail: detail}
	}
}

func failFromTool(kind types.ProbeKind, tool string, err error, output []byte) types.Sample {
	f := classifyToolError(tool, err, output)
	return types.Fail(kind, f.Reason, f.Detail)
}

func outputSnippet(output []byte) string {
	s := strings.TrimSpace(string(output))
	if len(s) > outputSnippetLimit {
		s = s[:outputSnippetLimit] + "..."
	}
	return strings.ReplaceAll(s, "\n", " ")
}
