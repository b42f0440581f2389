package terraform

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const outputQueryTimeout = 2 * time.Minute

// Client runs the terraform subcommands the provisioning pipeline needs.
type Client struct {
	runner  Runner
	env     map[string]string
	timeout time.Duration
	logger  *zap.SugaredLogger
}

// NewClient returns a client whose invocations carry env on top of the
// inherited environment and are bounded by timeout.
func NewClient(runner Runner, env map[string]string, timeout time.Duration) *Client {
	return &Client{
		runner:  runner,
		env:     env,
		timeout: timeout,
		logger:  zap.S().Named("terraform"),
	}
}

// WithLogger returns a copy of c streaming process output to logger.
func (c *Client) WithLogger(logger *zap.SugaredLogger) *Client {
	cp := *c
	cp.logger = logger
	return &cp
}

// Init is safe to repeat in the same directory.
func (c *Client) Init(ctx context.Context, dir string) (*Result, error) {
	return c.run(ctx, dir, c.timeout, "init", "-upgrade", "-input=false", "-no-color")
}

func (c *Client) Apply(ctx context.Context, dir string) (*Result, error) {
	return c.run(ctx, dir, c.timeout, "apply", "-auto-approve", "-input=false", "-no-color")
}

// Outputs returns a querier reading single outputs of the state in dir.
func (c *Client) Outputs(dir string) OutputQuerier {
	return OutputQuerierFunc(func(ctx context.Context, name string) (string, bool, error) {
		timeout := outputQueryTimeout
		if c.timeout > 0 && c.timeout < timeout {
			timeout = c.timeout
		}
		res, err := c.runner.Run(ctx, Invocation{
			Dir:     dir,
			Args:    []string{"output", "-raw", "-no-color", name},
			Env:     c.env,
			Timeout: timeout,
		})
		if err != nil {
			return "", false, err
		}
		value, ok := ParseRawOutput(res.Output)
		return value, ok, nil
	})
}

func (c *Client) run(ctx context.Context, dir string, timeout time.Duration, args ...string) (*Result, error) {
	c.logger.Infow("running terraform", "command", args[0], "dir", dir)
	res, err := c.runner.Run(ctx, Invocation{
		Dir:     dir,
		Args:    args,
		Env:     c.env,
		Timeout: timeout,
		OnLine: func(line string) {
			c.logger.Debugw(line, "command", args[0])
		},
	})
	if err != nil {
		return res, err
	}
	c.logger.Infow("terraform finished", "command", args[0], "duration", res.Duration)
	return res, nil
}
