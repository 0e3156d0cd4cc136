package mu

import (
	"bytes"
	"context"
	"os/exec"
)

// Runner executes one mu subcommand. It is the process boundary of the
// client: tests replace it with a scripted fake.
type Runner interface {
	Run(ctx context.Context, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner runs the mu binary.
type ExecRunner struct {
	Binary string // defaults to "mu"
	MuHome string // passed as --muhome when set
}

// Run executes `mu <args...>`. A non-zero exit is returned as an
// *exec.ExitError together with the captured output.
func (r *ExecRunner) Run(ctx context.Context, args ...string) ([]byte, []byte, error) {
	bin := r.Binary
	if bin == "" {
		bin = "mu"
	}
	full := args
	if r.MuHome != "" && len(args) > 0 {
		full = append([]string{args[0], "--muhome=" + r.MuHome}, args[1:]...)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, full...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}
