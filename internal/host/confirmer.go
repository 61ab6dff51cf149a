package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"intellipy/pkg/intellitypes"
)

// LineReader reads one line of user input. *readline.Instance satisfies it.
type LineReader interface {
	SetPrompt(prompt string)
	Readline() (string, error)
}

const decisionPrompt = "[a]llow once / allow al[w]ays / [c]ancel: "

// TerminalConfirmer asks for confirmation on the terminal.
type TerminalConfirmer struct {
	in  LineReader
	out io.Writer
}

// NewTerminalConfirmer creates a confirmer reading answers from in and writing prompts to out.
func NewTerminalConfirmer(in LineReader, out io.Writer) *TerminalConfirmer {
	return &TerminalConfirmer{in: in, out: out}
}

// NewReadlineConfirmer creates a confirmer on its own readline instance.
func NewReadlineConfirmer(stdin io.ReadCloser, stdout io.Writer) (*TerminalConfirmer, func() error, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:       decisionPrompt,
		Stdin:        stdin,
		Stdout:       stdout,
		HistoryLimit: -1,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize confirmation prompt: %w", err)
	}
	return NewTerminalConfirmer(rl, stdout), rl.Close, nil
}

// Confirm shows the action summary and waits for an answer. Unrecognized answers are asked
// again; end of input and interrupts cancel.
func (c *TerminalConfirmer) Confirm(ctx context.Context, req intellitypes.ConfirmationRequest) (intellitypes.Decision, error) {
	fmt.Fprintf(c.out, "IntelliPy wants to execute: %s\n%s\n", req.Tool, req.Summary)
	c.in.SetPrompt(decisionPrompt)

	for {
		if err := ctx.Err(); err != nil {
			return intellitypes.DecisionCancel, err
		}
		line, err := c.in.Readline()
		if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
			return intellitypes.DecisionCancel, nil
		}
		if err != nil {
			return intellitypes.DecisionCancel, err
		}
		if d, ok := ParseDecision(line); ok {
			return d, nil
		}
		fmt.Fprintln(c.out, "Please answer a, w or c.")
	}
}

// ParseDecision maps an answer to a decision.
func ParseDecision(answer string) (intellitypes.Decision, bool) {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "a", "allow", "y", "yes", "once":
		return intellitypes.DecisionAllowOnce, true
	case "w", "always", "allow always":
		return intellitypes.DecisionAllowAlways, true
	case "c", "cancel", "n", "no", "":
		return intellitypes.DecisionCancel, true
	default:
		return intellitypes.DecisionCancel, false
	}
}
