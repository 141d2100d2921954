// ABOUTME: Interactive command loop reading operator tokens and driving the orchestrator
// ABOUTME: A reader goroutine fills a task queue that one worker drains in order

package command

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/2389/strategic-faas/internal/strategy"
)

// Prompt is printed once when the loop starts.
const Prompt = "type 'exit' to exit the program:"

// ExitToken ends the loop after destroying the stack.
const ExitToken = "exit"

// DefaultQueueSize bounds how many typed-ahead commands are buffered.
const DefaultQueueSize = 64

// Lifecycle is the orchestrator surface the loop drives.
type Lifecycle interface {
	Deploy(ctx context.Context, sel strategy.Selector) error
	Destroy(ctx context.Context) error
}

// Config configures a Loop.
type Config struct {
	Lifecycle Lifecycle
	Input     io.Reader
	Output    io.Writer
	QueueSize int
	// TeardownTimeout bounds the destroy run after ctx is cancelled.
	TeardownTimeout time.Duration
	Logger          *slog.Logger
}

// Loop processes one command at a time.
type Loop struct {
	lc       Lifecycle
	in       io.Reader
	out      io.Writer
	size     int
	teardown time.Duration
	logger   *slog.Logger
}

// NewLoop creates a Loop.
func NewLoop(cfg Config) *Loop {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	teardown := cfg.TeardownTimeout
	if teardown <= 0 {
		teardown = time.Minute
	}
	out := cfg.Output
	if out == nil {
		out = io.Discard
	}
	return &Loop{
		lc:       cfg.Lifecycle,
		in:       cfg.Input,
		out:      out,
		size:     size,
		teardown: teardown,
		logger:   logger.With("component", "command"),
	}
}

// Run prints the prompt and processes commands until exit, end of input or
// ctx cancellation. All three destroy the stack before returning. The error
// is non-nil when the destroy failed or a deploy hit a configuration error.
func (l *Loop) Run(ctx context.Context) error {
	fmt.Fprintln(l.out, Prompt)

	stop := make(chan struct{})
	defer close(stop)
	queue := l.read(stop)

	for {
		if ctx.Err() != nil {
			return l.interrupted(ctx)
		}
		select {
		case <-ctx.Done():
			return l.interrupted(ctx)

		case tok, ok := <-queue:
			if !ok {
				l.logger.Info("end of input, tearing down")
				return l.exit(ctx)
			}
			done, err := l.handle(ctx, tok)
			if err != nil || done {
				return err
			}
		}
	}
}

// read scans lines into the task queue until end of input or stop.
func (l *Loop) read(stop <-chan struct{}) <-chan string {
	queue := make(chan string, l.size)
	go func() {
		defer close(queue)
		scanner := bufio.NewScanner(l.in)
		for scanner.Scan() {
			tok := strings.TrimSpace(scanner.Text())
			select {
			case queue <- tok:
			case <-stop:
				return
			}
		}
		if err := scanner.Err(); err != nil {
			l.logger.Warn("reading input failed", "error", err)
		}
	}()
	return queue
}

// handle runs one command. done is true once the stack has been destroyed.
func (l *Loop) handle(ctx context.Context, tok string) (done bool, err error) {
	if tok == ExitToken {
		return true, l.exit(ctx)
	}

	sel, err := strategy.ParseSelector(tok)
	if err != nil {
		fmt.Fprintf(l.out, "invalid command: %s skipping deployment.\n", tok)
		l.logger.Debug("invalid command", "token", tok)
		return false, nil
	}

	if !sel.Implemented() {
		return false, l.lc.Deploy(ctx, sel)
	}

	fmt.Fprintf(l.out, "strategy: %s\n", sel)
	fmt.Fprintln(l.out, "deploying stack...")
	if err := l.lc.Deploy(ctx, sel); err != nil {
		if errors.Is(err, strategy.ErrInvalidSelector) {
			return true, err
		}
		// Already reported by the orchestrator; keep accepting commands.
		return false, nil
	}
	fmt.Fprintln(l.out, "done")
	return false, nil
}

// interrupted tears the stack down on a fresh deadline once ctx is done.
func (l *Loop) interrupted(ctx context.Context) error {
	l.logger.Info("interrupted, tearing down")
	tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.teardown)
	defer cancel()
	return l.exit(tctx)
}

func (l *Loop) exit(ctx context.Context) error {
	fmt.Fprintln(l.out, "destroying stack...")
	if err := l.lc.Destroy(ctx); err != nil {
		return fmt.Errorf("destroying stack: %w", err)
	}
	fmt.Fprintln(l.out, "done")
	return nil
}
