package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// promptApprover asks on the terminal before critique requests are sent.
type promptApprover struct {
	in    *bufio.Reader
	out   io.Writer
	model string
}

func newPromptApprover(in io.Reader, out io.Writer, model string) *promptApprover {
	if in == nil {
		in = strings.NewReader("")
	}
	return &promptApprover{in: bufio.NewReader(in), out: out, model: model}
}

type promptAnswer struct {
	line string
	err  error
}

// Approve reads one line. Only y or yes approves; EOF declines. The read
// is abandoned when ctx is cancelled.
func (a *promptApprover) Approve(ctx context.Context, groupCount int) (bool, error) {
	noun := "groups"
	if groupCount == 1 {
		noun = "group"
	}
	fmt.Fprintf(a.out, "\nFound %d comparison %s. Analyze with %s? (y/n): ", groupCount, noun, a.model)

	answers := make(chan promptAnswer, 1)
	go func() {
		line, err := a.in.ReadString('\n')
		answers <- promptAnswer{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(a.out)
		return false, ctx.Err()
	case answer := <-answers:
		if answer.err != nil && !errors.Is(answer.err, io.EOF) {
			return false, fmt.Errorf("read approval: %w", answer.err)
		}
		switch strings.ToLower(strings.TrimSpace(answer.line)) {
		case "y", "yes":
			return true, nil
		default:
			return false, nil
		}
	}
}
