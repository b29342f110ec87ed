// Package hostexec is the remote command channel for host deployments. It
// separates transport failures (the command could not be run at all) from
// command failures (the command ran and exited non-zero), because the
// lifecycle logic treats the two very differently.
package hostexec

import "context"

// Result is the outcome of a command that ran to completion on the remote
// host, whatever its exit status.
type Result struct {
	// Stdout is the captured standard output
	Stdout string

	// Stderr is the captured standard error
	Stderr string

	// ExitCode is the command's exit status
	ExitCode int
}

// Ok reports whether the command exited zero.
func (r *Result) Ok() bool { return r.ExitCode == 0 }

// Runner executes shell commands on a remote host. Run returns an error only
// when the command could not be executed (connection, session or channel
// failure); a non-zero exit is reported through Result.ExitCode.
type Runner interface {
	Run(ctx context.Context, command string) (*Result, error)
}
