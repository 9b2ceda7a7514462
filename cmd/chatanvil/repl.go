package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"chatanvil/internal/chat"
	"chatanvil/internal/cli"
	"chatanvil/internal/hook"
	"chatanvil/internal/llm"
	"chatanvil/internal/parser"
	"chatanvil/internal/provider"
)

const replHelp = `Commands:
  /help              show this help
  /clear             forget the conversation
  /history           show the conversation
  /system <prompt>   set the system prompt (empty clears it)
  /parser <name>     switch parser (%s)
  /extract           extract code from the last reply
  /reasoning         toggle reasoning traces
  /quit              leave`

// repl runs a line based conversation. Each non-command line is one user
// turn sent through Session.Send.
type repl struct {
	session   *chat.Session
	in        io.Reader
	out       *cli.Renderer
	progress  *cli.ProgressIndicator
	reasoning bool

	last string
}

func (r *repl) run(ctx context.Context) error {
	p := r.session.Provider()
	r.out.Notice(fmt.Sprintf("chatanvil %s | %s (%s) | parser %s | /help for commands",
		version, p.Name(), p.Model(), r.session.CurrentParser()))

	scanner := bufio.NewScanner(r.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		if ctx.Err() != nil {
			return nil
		}
		r.out.Prompt("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := r.command(line); quit {
				return nil
			}
			continue
		}

		r.send(ctx, line)
	}
}

func (r *repl) send(ctx context.Context, line string) {
	if r.progress != nil {
		r.progress.Start("Thinking...")
	}
	c, err := r.session.Send(ctx, llm.Text(line), provider.CallOptions{Reasoning: r.reasoning})
	if r.progress != nil {
		r.progress.Stop()
	}

	switch {
	case errors.Is(err, hook.ErrDenied):
		r.out.Notice("request cancelled")
	case err != nil:
		r.out.Error(err)
	default:
		r.last = c.Content
		r.out.Completion(c)
	}
}

// command handles a slash command and reports whether to leave.
func (r *repl) command(line string) bool {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/quit", "/exit":
		return true
	case "/help":
		r.out.Notice(fmt.Sprintf(replHelp, strings.Join(parser.Supported(), ", ")))
	case "/clear":
		r.session.ClearHistory()
		r.last = ""
		r.out.Notice("history cleared")
	case "/history":
		history := r.session.History()
		if len(history) == 0 {
			r.out.Notice("history is empty")
		}
		for _, m := range history {
			r.out.Notice(fmt.Sprintf("[%s] %s", m.Role, m.Content))
		}
	case "/system":
		r.session.SetSystemPrompt(arg)
		if arg == "" {
			r.out.Notice("system prompt cleared")
		} else {
			r.out.Notice("system prompt set")
		}
	case "/parser":
		if arg == "" {
			r.out.Notice("parser: " + r.session.CurrentParser())
			break
		}
		if err := r.session.SetParser(arg); err != nil {
			r.out.Error(err)
			break
		}
		r.out.Notice("parser: " + r.session.CurrentParser())
	case "/extract":
		if r.last == "" {
			r.out.Notice("no reply yet")
			break
		}
		blocks, err := r.session.ExtractCode(r.last)
		if err != nil {
			r.out.Error(err)
			break
		}
		r.out.CodeBlocks(blocks)
	case "/reasoning":
		r.reasoning = !r.reasoning
		r.out.Notice(fmt.Sprintf("reasoning: %t", r.reasoning))
	default:
		r.out.Error(fmt.Errorf("unknown command %s (try /help)", name))
	}
	return false
}
