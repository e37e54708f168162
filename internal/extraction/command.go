package extraction

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"
)

// commandRequest is one line written to the generator process
type commandRequest struct {
	Prompt   string         `json:"prompt"`
	Sampling SamplingConfig `json:"sampling"`
}

// commandResponse is one line read back from the generator process
type commandResponse struct {
	Completion string `json:"completion"`
	Error      string `json:"error,omitempty"`
}

// Command implements the Generator interface with a long-running model
// process that speaks JSON lines on stdin/stdout. The process is expected to
// echo the prompt in its completion, as a decoded causal LM output does.
//
// Requests are handled one at a time. A process that dies, or whose request
// is abandoned mid-read, is not restarted.
type Command struct {
	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	broken error
	// reading is closed when the last stdout read returns
	reading chan struct{}
}

// NewCommand starts argv[0] with the remaining arguments
func NewCommand(argv []string) (*Command, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("generator command is required")
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("opening stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("opening stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting generator process: %w", err)
	}

	return &Command{
		cmd:    cmd,
		stdin:  stdin,
		stdout: bufio.NewReaderSize(stdout, 64*1024),
	}, nil
}

// Generate sends the prompt to the process and waits for its completion
func (c *Command) Generate(ctx context.Context, prompt string, cfg SamplingConfig) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	text, err := c.roundTrip(ctx, prompt, cfg)
	if err != nil {
		return "", &GenerationError{Backend: "command", Err: err}
	}
	return text, nil
}

func (c *Command) roundTrip(ctx context.Context, prompt string, cfg SamplingConfig) (string, error) {
	if c.broken != nil {
		return "", c.broken
	}

	line, err := json.Marshal(commandRequest{Prompt: prompt, Sampling: cfg})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}
	if _, err := c.stdin.Write(append(line, '\n')); err != nil {
		c.broken = fmt.Errorf("generator process is not running: %w", err)
		return "", c.broken
	}

	type result struct {
		line []byte
		err  error
	}
	ch := make(chan result, 1)
	reading := make(chan struct{})
	c.reading = reading
	go func() {
		defer close(reading)
		l, err := c.stdout.ReadBytes('\n')
		ch <- result{line: l, err: err}
	}()

	select {
	case <-ctx.Done():
		// The reply would arrive out of step with the next request.
		c.broken = errors.New("generator process stopped after an abandoned request")
		c.kill()
		return "", ctx.Err()
	case r := <-ch:
		if r.err != nil {
			c.broken = fmt.Errorf("generator process is not running: %w", r.err)
			return "", c.broken
		}
		var resp commandResponse
		if err := json.Unmarshal(r.line, &resp); err != nil {
			return "", fmt.Errorf("decoding response: %w", err)
		}
		if resp.Error != "" {
			return "", errors.New(resp.Error)
		}
		return resp.Completion, nil
	}
}

func (c *Command) kill() {
	if c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
	}
}

// Close closes the process's stdin and waits briefly for it to exit
func (c *Command) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.stdin.Close()

	// Wait must not run while stdout is still being read. A read left over
	// from an abandoned request ends once the killed process closes stdout.
	if c.reading != nil {
		<-c.reading
	}

	done := make(chan error, 1)
	go func() { done <- c.cmd.Wait() }()

	select {
	case <-done:
		return nil
	case <-time.After(5 * time.Second):
		c.kill()
		<-done
		return fmt.Errorf("generator process did not exit, killed")
	}
}
