package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/exposure-kit/enlifecycle/internal/ports"
	"github.com/exposure-kit/enlifecycle/pkg/enlifecycle"
)

// signalHandler is the part of the orchestrator the input loop needs.
type signalHandler interface {
	HandleSignal(ctx context.Context, name, taskID string) (enlifecycle.SequenceOutcome, error)
}

// parseLine splits "name[:task]". ok is false for blank and comment lines.
func parseLine(line string) (name, task string, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false
	}
	name, task, _ = strings.Cut(line, ":")
	return strings.TrimSpace(name), strings.TrimSpace(task), true
}

// forwardSignals dispatches every line of in until EOF or ctx is done.
// Sequences run one at a time, in input order.
func forwardSignals(ctx context.Context, h signalHandler, in io.Reader, out io.Writer, logger ports.Logger) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			logger.Info("received signal, stopping")
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if err != nil {
						return fmt.Errorf("read signals: %w", err)
					}
				default:
				}
				return nil
			}
			name, task, ok := parseLine(line)
			if !ok {
				continue
			}
			outcome, err := h.HandleSignal(ctx, name, task)
			if errors.Is(err, enlifecycle.ErrUnknownSignal) {
				fmt.Fprintf(out, "dropped %q\n", line)
				continue
			}
			if err != nil {
				return err
			}
			printOutcome(out, outcome)
		}
	}
}

func printOutcome(out io.Writer, o enlifecycle.SequenceOutcome) {
	status := "ok"
	if o.Failed() {
		status = "failed: " + o.Err.Error()
	}
	fmt.Fprintf(out, "%s run=%s steps=%d soft=%d elapsed=%s %s\n",
		o.Sequence, o.RunID, len(o.Executed()), o.SoftFailures(), o.Elapsed.Round(time.Millisecond), status)
}
