package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog/log"

	"multilingual-rag/internal/helper"
	"multilingual-rag/internal/models"
	"multilingual-rag/internal/rag"
)

var exitWords = map[string]bool{"exit": true, "quit": true, "bye": true}

func isExit(line string) bool {
	return exitWords[strings.ToLower(strings.TrimSpace(line))]
}

type asker interface {
	Ask(ctx context.Context, input string, onFragment func(string)) (models.Reply, error)
}

type console struct {
	out       io.Writer
	youStyle  lipgloss.Style
	botStyle  lipgloss.Style
	metaStyle lipgloss.Style
	errStyle  lipgloss.Style
}

func newConsole(out io.Writer) *console {
	return &console{
		out:       out,
		youStyle:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		botStyle:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10")),
		metaStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		errStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	}
}

// repl reads one question per line until an exit word, EOF or cancellation.
func (c *console) repl(ctx context.Context, s asker, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			log.Warn().Err(err).Msg("Error reading input")
		}
	}()

	fmt.Fprintln(c.out, c.metaStyle.Render("Ask anything. Type exit, quit or bye to leave."))
	for {
		fmt.Fprint(c.out, c.youStyle.Render("You: "))
		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(c.out)
			return ctx.Err()
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(c.out)
				return nil
			}
			line = l
		}

		if isExit(line) {
			fmt.Fprintln(c.out, c.metaStyle.Render("Goodbye!"))
			return nil
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := c.answer(ctx, s, line); err != nil {
			return err
		}
	}
}

// answer runs one turn and prints the reply.
func (c *console) answer(ctx context.Context, s asker, question string) error {
	fmt.Fprint(c.out, c.botStyle.Render("Assistant: "))
	reply, err := s.Ask(ctx, question, func(fragment string) {
		fmt.Fprint(c.out, fragment)
	})
	if err != nil {
		fmt.Fprintln(c.out)
		if errors.Is(err, rag.ErrEmptyInput) {
			return nil
		}
		return err
	}

	switch {
	case reply.Outcome != models.OutcomeAnswered:
		fmt.Fprintln(c.out, c.errStyle.Render(reply.Answer))
	case reply.Streamed:
		fmt.Fprintln(c.out)
	default:
		fmt.Fprintln(c.out, reply.Answer)
	}
	fmt.Fprintln(c.out, c.metaStyle.Render(c.describe(reply)))
	return nil
}

func (c *console) describe(reply models.Reply) string {
	parts := []string{reply.Language.Name}
	if reply.Detection.Fallback != models.FallbackNone {
		parts = append(parts, "fallback: "+reply.Detection.Fallback.String())
	}
	for _, src := range reply.Sources {
		parts = append(parts, fmt.Sprintf("#%d %q", src.Index, helper.Preview(strings.ReplaceAll(src.Content, "\n", " "), 40)))
	}
	return "[" + strings.Join(parts, " | ") + "]"
}
