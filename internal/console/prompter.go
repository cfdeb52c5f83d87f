package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
)

// ErrQuit is returned by a Prompter when the operator abandons the session.
var ErrQuit = errors.New("session ended")

// Choice is one entry of a menu.
type Choice struct {
	Label string
	Value string
}

// Prompter asks the operator for menu choices and free text.
type Prompter interface {
	Select(ctx context.Context, title string, choices []Choice) (string, error)
	// Input returns text accepted by validate, which may be nil.
	Input(ctx context.Context, title string, validate func(string) error) (string, error)
}

// FormPrompter renders every question as a huh form.
type FormPrompter struct {
	Accessible bool // line based prompts for screen readers and pipes
	In         io.Reader
	Out        io.Writer
}

func (p FormPrompter) run(ctx context.Context, field huh.Field) error {
	form := huh.NewForm(huh.NewGroup(field)).
		WithShowHelp(false).
		WithShowErrors(true).
		WithAccessible(p.Accessible)
	if p.In != nil {
		form = form.WithInput(p.In)
	}
	if p.Out != nil {
		form = form.WithOutput(p.Out)
	}
	err := form.RunWithContext(ctx)
	if errors.Is(err, huh.ErrUserAborted) || errors.Is(err, io.EOF) {
		return ErrQuit
	}
	return err
}

// Select implements Prompter.
func (p FormPrompter) Select(ctx context.Context, title string, choices []Choice) (string, error) {
	opts := make([]huh.Option[string], 0, len(choices))
	for _, c := range choices {
		opts = append(opts, huh.NewOption(c.Label, c.Value))
	}
	var value string
	err := p.run(ctx, huh.NewSelect[string]().Title(title).Options(opts...).Value(&value))
	return value, err
}

// Input implements Prompter.
func (p FormPrompter) Input(ctx context.Context, title string, validate func(string) error) (string, error) {
	var value string
	field := huh.NewInput().Title(title).Value(&value)
	if validate != nil {
		field = field.Validate(validate)
	}
	err := p.run(ctx, field)
	return strings.TrimSpace(value), err
}

// ScriptedPrompter replays canned answers. A select answer may be the choice
// value, its label or its 1-based position. An answer rejected by a
// validator is reported on Out and the next answer is tried, like an
// interactive re-prompt.
type ScriptedPrompter struct {
	Answers []string
	Out     io.Writer
	pos     int
}

// NewScriptedPrompter returns a prompter answering with answers in order.
func NewScriptedPrompter(out io.Writer, answers ...string) *ScriptedPrompter {
	return &ScriptedPrompter{Answers: answers, Out: out}
}

func (p *ScriptedPrompter) next(title string) (string, error) {
	if p.pos >= len(p.Answers) {
		return "", ErrQuit
	}
	a := p.Answers[p.pos]
	p.pos++
	if p.Out != nil {
		fmt.Fprintf(p.Out, "%s %s\n", title, a)
	}
	return a, nil
}

// Select implements Prompter.
func (p *ScriptedPrompter) Select(_ context.Context, title string, choices []Choice) (string, error) {
	for {
		a, err := p.next(title)
		if err != nil {
			return "", err
		}
		for i, c := range choices {
			if a == c.Value || strings.EqualFold(a, c.Label) || a == strconv.Itoa(i+1) {
				return c.Value, nil
			}
		}
		if p.Out != nil {
			fmt.Fprintln(p.Out, failureStyle.Render("Invalid option."))
		}
	}
}

// Input implements Prompter.
func (p *ScriptedPrompter) Input(_ context.Context, title string, validate func(string) error) (string, error) {
	for {
		a, err := p.next(title)
		if err != nil {
			return "", err
		}
		a = strings.TrimSpace(a)
		if validate == nil {
			return a, nil
		}
		if err := validate(a); err != nil {
			if p.Out != nil {
				fmt.Fprintln(p.Out, failureStyle.Render(err.Error()))
			}
			continue
		}
		return a, nil
	}
}
