package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"

	"github.com/herdctl/herdctl/pkg/log"
)

// Runner executes backend control commands. It exists so tests can observe
// and fake the command surface without a live process manager.
type Runner interface {
	// Output runs a command to completion and returns its combined output.
	Output(ctx context.Context, name string, args ...string) ([]byte, error)

	// Stream starts a long-lived command and returns its stdout. The
	// command is killed when ctx is cancelled; the caller closes the
	// reader.
	Stream(ctx context.Context, name string, args ...string) (io.ReadCloser, error)
}

type execRunner struct{}

// ExecRunner returns the Runner backed by os/exec.
func ExecRunner() Runner {
	return execRunner{}
}

func (execRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	logger := log.WithComponent("backend")
	logger.Debug().Str("cmd", name).Strs("args", args).Msg("running backend command")

	cmd := exec.CommandContext(ctx, name, args...)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	if err != nil {
		return buf.Bytes(), fmt.Errorf("%s %v: %w", name, args, err)
	}
	return buf.Bytes(), nil
}

func (execRunner) Stream(ctx context.Context, name string, args ...string) (io.ReadCloser, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	cmd.Stderr = cmd.Stdout
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%s %v: %w", name, args, err)
	}
	go func() {
		// Reap the child once the stream consumer is done with it.
		_ = cmd.Wait()
	}()
	return out, nil
}
