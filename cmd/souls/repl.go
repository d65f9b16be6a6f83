package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	chatModel "github.com/aisouls/backend/internal/model/chat"
	"github.com/aisouls/backend/internal/model/persona"
	"github.com/aisouls/backend/internal/service/chat"
)

var (
	nameStyle   = color.New(color.FgCyan, color.Bold)
	noticeStyle = color.New(color.FgYellow)
	errorStyle  = color.New(color.FgRed)
	promptStyle = color.New(color.FgGreen, color.Bold)
	faintStyle  = color.New(color.Faint)
)

const replHelp = `Commands:
  /persona <name>  switch persona (clears the conversation)
  /personas        list personas
  /retry           retry the last unanswered message
  /help            show this help
  /quit            leave`

func printPersonas(w io.Writer, personas persona.Store) error {
	for _, def := range personas.Definitions() {
		if _, err := nameStyle.Fprint(w, def.Name); err != nil {
			return err
		}
		if def.Title != "" {
			fmt.Fprint(w, " ")
			faintStyle.Fprintf(w, "(%s)", def.Title)
		}
		fmt.Fprintf(w, "  id=%s\n", def.ID)
	}
	return nil
}

type repl struct {
	chatSvc   *chat.Service
	in        *bufio.Scanner
	out       io.Writer
	sessionID string
}

func newREPL(chatSvc *chat.Service, in io.Reader, out io.Writer) *repl {
	return &repl{chatSvc: chatSvc, in: bufio.NewScanner(in), out: out}
}

// Run opens a session with personaKey and reads lines until EOF or /quit.
func (r *repl) Run(ctx context.Context, personaKey string) error {
	snap, err := r.chatSvc.CreateSession(ctx, personaKey)
	if err != nil {
		return err
	}
	r.sessionID = snap.ID
	defer r.chatSvc.DeleteSession(ctx, r.sessionID)

	faintStyle.Fprintln(r.out, "Type /help for commands.")
	if err := r.start(ctx); err != nil {
		return err
	}

	for {
		promptStyle.Fprint(r.out, "you> ")
		if !r.in.Scan() {
			fmt.Fprintln(r.out)
			return r.in.Err()
		}

		line := strings.TrimSpace(r.in.Text())
		switch {
		case line == "":
			continue
		case line == "/quit" || line == "/exit":
			return nil
		case line == "/help":
			fmt.Fprintln(r.out, replHelp)
		case line == "/personas":
			if err := printPersonas(r.out, r.chatSvc.Personas()); err != nil {
				return err
			}
		case line == "/persona":
			fmt.Fprintln(r.out, "usage: /persona <name>")
		case strings.HasPrefix(line, "/persona "):
			r.switchPersona(ctx, strings.TrimSpace(strings.TrimPrefix(line, "/persona ")))
		case line == "/retry":
			reply, err := r.chatSvc.Retry(ctx, r.sessionID)
			r.handleReply(ctx, reply, err)
		default:
			reply, err := r.chatSvc.SendMessage(ctx, r.sessionID, line)
			r.handleReply(ctx, reply, err)
		}
	}
}

func (r *repl) start(ctx context.Context) error {
	snap, err := r.chatSvc.StartSession(ctx, r.sessionID)
	if err != nil {
		return err
	}
	if len(snap.Turns) > 0 {
		r.speak(snap.Persona, snap.Turns[len(snap.Turns)-1])
	}
	return nil
}

func (r *repl) switchPersona(ctx context.Context, key string) {
	snap, err := r.chatSvc.SelectPersona(ctx, r.sessionID, key)
	if err != nil {
		r.fail(err)
		return
	}
	if snap.Started {
		faintStyle.Fprintf(r.out, "Already talking with %s.\n", snap.Persona)
		return
	}
	if err := r.start(ctx); err != nil {
		r.fail(err)
	}
}

func (r *repl) handleReply(ctx context.Context, reply chat.Reply, err error) {
	if err != nil {
		r.fail(err)
		if _, pending := r.pending(ctx); pending {
			faintStyle.Fprintln(r.out, "Your message is kept. Type /retry to ask again.")
		}
		return
	}

	if reply.Answered {
		r.speak(reply.Session.Persona, chatModel.Turn{Role: chatModel.RoleAssistant, Content: reply.Content})
	}
	if reply.Reset {
		noticeStyle.Fprintln(r.out, "The conversation has reached its limit and starts anew.")
		if err := r.start(ctx); err != nil {
			r.fail(err)
		}
	}
}

func (r *repl) pending(ctx context.Context) (chatModel.Turn, bool) {
	snap, err := r.chatSvc.GetSession(ctx, r.sessionID)
	if err != nil || len(snap.Turns) == 0 {
		return chatModel.Turn{}, false
	}
	last := snap.Turns[len(snap.Turns)-1]
	return last, last.Role == chatModel.RoleUser
}

func (r *repl) speak(name string, turn chatModel.Turn) {
	nameStyle.Fprintf(r.out, "%s> ", name)
	fmt.Fprintln(r.out, turn.Content)
}

func (r *repl) fail(err error) {
	errorStyle.Fprintf(r.out, "error: %v\n", err)
}
