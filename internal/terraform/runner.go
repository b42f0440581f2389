package terraform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const (
	defaultKillGrace = 10 * time.Second
	// killWaitTimeout bounds how long Wait keeps draining output once the
	// process group has been killed.
	killWaitTimeout = 5 * time.Second
)

// Invocation describes one terraform subprocess.
type Invocation struct {
	Dir     string
	Args    []string
	Env     map[string]string
	Timeout time.Duration
	// OnLine, when set, receives every output line as it is produced.
	OnLine func(line string)
}

type Result struct {
	ExitCode int
	Output   string
	Duration time.Duration
}

// Runner starts the external tool. Implementations keep no state between
// invocations.
type Runner interface {
	Run(ctx context.Context, inv Invocation) (*Result, error)
}

type ExecRunner struct {
	binary    string
	killGrace time.Duration
}

var _ Runner = (*ExecRunner)(nil)

func NewExecRunner(binary string, killGrace time.Duration) *ExecRunner {
	if killGrace <= 0 {
		killGrace = defaultKillGrace
	}
	return &ExecRunner{binary: binary, killGrace: killGrace}
}

// Run executes the binary in inv.Dir with stdout and stderr captured as one
// stream. A nonzero exit yields *ExitError, an expired inv.Timeout yields
// *TimeoutError and a canceled ctx yields ErrCanceled. In all three cases
// the process group is terminated and the captured output is kept.
func (r *ExecRunner) Run(ctx context.Context, inv Invocation) (*Result, error) {
	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if inv.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, inv.Timeout)
	}
	defer cancel()

	out := newLineWriter(inv.OnLine)
	done := make(chan struct{})

	cmd := exec.CommandContext(runCtx, r.binary, inv.Args...)
	cmd.Dir = inv.Dir
	cmd.Env = mergeEnv(os.Environ(), inv.Env)
	cmd.Stdout = out
	cmd.Stderr = out
	setProcessGroup(cmd)
	cmd.Cancel = func() error {
		return terminateGroup(cmd.Process, r.killGrace, done)
	}
	cmd.WaitDelay = r.killGrace + killWaitTimeout

	start := time.Now()
	err := cmd.Run()
	close(done)
	out.Flush()

	res := &Result{
		ExitCode: cmd.ProcessState.ExitCode(),
		Output:   out.String(),
		Duration: time.Since(start),
	}

	switch {
	case ctx.Err() != nil:
		return res, fmt.Errorf("%w: %w", ErrCanceled, ctx.Err())
	case runCtx.Err() != nil:
		return res, &TimeoutError{Args: inv.Args, Timeout: inv.Timeout, Output: res.Output}
	case err == nil:
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return res, &ExitError{Args: inv.Args, ExitCode: exitErr.ExitCode(), Output: res.Output}
	}
	return res, fmt.Errorf("starting %s: %w", r.binary, err)
}

// mergeEnv overlays overrides on base. Keys absent from overrides keep
// their inherited value.
func mergeEnv(base []string, overrides map[string]string) []string {
	env := make([]string, 0, len(base)+len(overrides))
	for _, kv := range base {
		name, _, _ := strings.Cut(kv, "=")
		if _, ok := overrides[name]; ok {
			continue
		}
		env = append(env, kv)
	}
	for name, value := range overrides {
		env = append(env, name+"="+value)
	}
	return env
}

// lineWriter keeps everything written to it and hands complete lines to a
// callback in the order they were produced.
type lineWriter struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	partial []byte
	onLine  func(string)
}

func newLineWriter(onLine func(string)) *lineWriter {
	return &lineWriter{onLine: onLine}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf.Write(p)
	if w.onLine == nil {
		return len(p), nil
	}
	w.partial = append(w.partial, p...)
	for {
		i := bytes.IndexByte(w.partial, '\n')
		if i < 0 {
			break
		}
		w.onLine(strings.TrimRight(string(w.partial[:i]), "\r"))
		w.partial = w.partial[i+1:]
	}
	return len(p), nil
}

func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.onLine != nil && len(w.partial) > 0 {
		w.onLine(string(w.partial))
	}
	w.partial = nil
}

func (w *lineWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}
