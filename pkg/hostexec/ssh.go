package hostexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/crypto/ssh"
)

// SSHConfig configures the SSH transport to a host target.
type SSHConfig struct {
	// Addr is the SSH address (host:port)
	Addr string

	// User is the SSH user
	User string

	// KeyPath is the path of a PEM-encoded private key
	KeyPath string

	// Timeout bounds the TCP connect; command execution is bounded by the
	// caller's context
	Timeout time.Duration
}

// SSHRunner runs commands over a lazily-established SSH connection. One
// connection is shared by all commands of a deployment; sessions are opened
// per command.
type SSHRunner struct {
	config SSHConfig
	logger hclog.Logger

	mu     sync.Mutex
	client *ssh.Client
}

// NewSSHRunner creates a runner for the given host. No connection is made
// until the first command runs.
func NewSSHRunner(config SSHConfig, logger hclog.Logger) *SSHRunner {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if config.Timeout == 0 {
		config.Timeout = 15 * time.Second
	}
	return &SSHRunner{config: config, logger: logger}
}

// connect dials the host once and caches the client.
func (r *SSHRunner) connect() (*ssh.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client != nil {
		return r.client, nil
	}

	keyBytes, err := os.ReadFile(r.config.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key %s: %w", r.config.KeyPath, err)
	}

	signer, err := ssh.ParsePrivateKey(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	clientConfig := &ssh.ClientConfig{
		User:            r.config.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         r.config.Timeout,
	}

	r.logger.Debug("dialing host", "addr", r.config.Addr, "user", r.config.User)

	client, err := ssh.Dial("tcp", r.config.Addr, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", r.config.Addr, err)
	}

	r.client = client
	return client, nil
}

// Run executes one command in a fresh session. The context cancels the
// session; cancellation surfaces as a transport error, never as an exit code.
func (r *SSHRunner) Run(ctx context.Context, command string) (*Result, error) {
	client, err := r.connect()
	if err != nil {
		return nil, err
	}

	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	r.logger.Debug("running remote command", "command", command)

	done := make(chan error, 1)
	go func() {
		done <- session.Run(command)
	}()

	select {
	case <-ctx.Done():
		session.Close()
		<-done
		return nil, fmt.Errorf("remote command cancelled: %w", ctx.Err())
	case err = <-done:
	}

	result := &Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitStatus()
			return result, nil
		}
		return nil, fmt.Errorf("remote command failed to run: %w", err)
	}

	return result, nil
}

// CheckAuth probes whether an authenticated session can be opened. A nil
// error means the host accepted the key; any error means the probe did not
// confirm a session.
func (r *SSHRunner) CheckAuth(ctx context.Context) error {
	result, err := r.Run(ctx, "true")
	if err != nil {
		return err
	}
	if !result.Ok() {
		return fmt.Errorf("probe command exited %d: %s", result.ExitCode, result.Stderr)
	}
	return nil
}

// Close tears down the cached connection.
func (r *SSHRunner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client == nil {
		return nil
	}
	err := r.client.Close()
	r.client = nil
	return err
}
