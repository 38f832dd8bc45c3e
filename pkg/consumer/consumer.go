// Package consumer launches the process that reads the synced config, typically the inference proxy.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
)

const defaultGracePeriod = 10 * time.Second

type Command struct {
	Argv []string

	// Defaults to the current process's streams and environment when nil.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Env    []string

	// How long the child gets between SIGTERM and SIGKILL once ctx is cancelled.
	GracePeriod time.Duration
}

// Run starts the command and waits for it. Cancelling ctx sends SIGTERM to the child. The returned code is the
// child's exit status, 128+signal if a signal killed it. err is only set when the child could not be started.
func (c Command) Run(ctx context.Context) (int, error) {
	if len(c.Argv) == 0 || c.Argv[0] == "" {
		return 0, errors.New("no consumer command given")
	}

	cmd := exec.CommandContext(ctx, c.Argv[0], c.Argv[1:]...)
	cmd.Stdin = orReader(c.Stdin, os.Stdin)
	cmd.Stdout = orWriter(c.Stdout, os.Stdout)
	cmd.Stderr = orWriter(c.Stderr, os.Stderr)
	cmd.Env = c.Env
	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}
	cmd.Cancel = func() error {
		log.Info().Int("pid", cmd.Process.Pid).Msg("Stopping consumer")
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = c.GracePeriod
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = defaultGracePeriod
	}

	if err := cmd.Start(); err != nil {
		return 127, fmt.Errorf("failed to start %s: %w", c.Argv[0], err)
	}
	log.Info().Str("cmd", c.Argv[0]).Strs("args", c.Argv[1:]).Int("pid", cmd.Process.Pid).Msg("Started consumer")

	err := cmd.Wait()
	code := exitCode(cmd.ProcessState)
	if err != nil && cmd.ProcessState == nil {
		return 1, err
	}
	log.Info().Int("exit_code", code).Msg("Consumer exited")
	return code, nil
}

func exitCode(state *os.ProcessState) int {
	if state == nil {
		return 1
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return state.ExitCode()
}

func orReader(r, fallback io.Reader) io.Reader {
	if r == nil {
		return fallback
	}
	return r
}

func orWriter(w, fallback io.Writer) io.Writer {
	if w == nil {
		return fallback
	}
	return w
}
