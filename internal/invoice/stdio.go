package invoice

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// maxLineBytes bounds one line of invoice text
const maxLineBytes = 16 << 20

// LineServer formats one invoice per input line and writes one JSON line per
// invoice: the compact record, or an error object.
type LineServer struct {
	service        *Service
	requestTimeout time.Duration
}

// NewLineServer creates a LineServer. A zero timeout means no limit.
func NewLineServer(service *Service, requestTimeout time.Duration) *LineServer {
	return &LineServer{
		service:        service,
		requestTimeout: requestTimeout,
	}
}

// Serve reads r until EOF or until ctx is cancelled. Every line gets one
// output line, blank lines included. On cancellation Serve returns without
// waiting for a blocked read on r.
func (l *LineServer) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	lines, readErr := scanLines(ctx, r)
	out := bufio.NewWriter(w)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := <-readErr; err != nil {
					return fmt.Errorf("reading input: %w", err)
				}
				return nil
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := l.writeResult(out, l.format(ctx, line)); err != nil {
				return err
			}
		}
	}
}

// scanLines feeds the lines of r to the returned channel and closes it at EOF
// or once ctx is done. The scan error is sent before the close.
func scanLines(ctx context.Context, r io.Reader) (<-chan string, <-chan error) {
	lines := make(chan string)
	readErr := make(chan error, 1)

	go func() {
		defer close(lines)

		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				readErr <- ctx.Err()
				return
			}
		}
		readErr <- scanner.Err()
	}()

	return lines, readErr
}

func (l *LineServer) format(ctx context.Context, line string) string {
	if l.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.requestTimeout)
		defer cancel()
	}

	formatted, err := l.service.FormatText(ctx, line)
	if err != nil {
		b, _ := json.Marshal(newErrorResponse(err))
		return string(b)
	}
	return formatted.Record.Compact()
}

func (l *LineServer) writeResult(out *bufio.Writer, result string) error {
	if _, err := out.WriteString(result + "\n"); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	if err := out.Flush(); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	return nil
}
