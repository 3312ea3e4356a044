// Package shell implements the line-oriented alternative to the TUI: the
// same session queried and controlled through a readline loop. It is
// what you reach for over a bad connection, or from scripts driving
// ectop through a pty.
package shell

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"

	"github.com/ectop-dev/ectop/pkg/session"
)

// Shell is the interactive command loop bound to one session.
type Shell struct {
	sess   *session.Session
	output io.Writer

	// cwd is the node path relative commands resolve against; empty means
	// the tree root.
	cwd string
}

// New builds a shell over an already-connected session.
func New(sess *session.Session) *Shell {
	return &Shell{sess: sess, output: os.Stdout}
}

// Run starts the interactive loop and blocks until quit or EOF.
func (s *Shell) Run(ctx context.Context) error {
	commands := []string{"ls", "cd", "show", "vars", "why", "find", "out", "script",
		"suspend", "resume", "kill", "force", "requeue", "set", "unset",
		"halt", "restart", "refresh", "status", "help", "quit"}

	var completer = readline.NewPrefixCompleter()
	for _, cmd := range commands {
		completer.Children = append(completer.Children,
			readline.PcItem(cmd))
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          s.buildPrompt(),
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	defer rl.Close()

	st := s.sess.Sync().Status()
	fmt.Fprintf(s.output, "ectop shell — %d nodes cached, last sync %s\n",
		s.sess.Cache().Len(), st.LastSync.Format("15:04:05"))
	fmt.Fprintf(s.output, "Type 'help' for available commands.\n\n")

	for {
		rl.SetPrompt(s.buildPrompt())
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if s.dispatch(ctx, line) {
			return nil
		}
	}
}

// dispatch runs one command line; it reports true when the shell should
// exit.
func (s *Shell) dispatch(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	cmd := parts[0]
	args := parts[1:]

	switch cmd {
	case "ls":
		s.handleLs(args)
	case "cd":
		s.handleCd(args)
	case "show":
		s.handleShow(args)
	case "vars", "v":
		s.handleVars(args)
	case "why", "w":
		s.handleWhy(args)
	case "find", "/":
		s.handleFind(args)
	case "out", "o":
		s.handleArtifact(ctx, args, "jobout")
	case "script":
		s.handleArtifact(ctx, args, "script")
	case "suspend", "resume", "kill", "force", "requeue":
		s.handleControl(ctx, cmd, args)
	case "set":
		s.handleSet(ctx, args)
	case "unset":
		s.handleUnset(ctx, args)
	case "halt", "restart":
		s.handleServer(ctx, cmd)
	case "refresh", "r":
		s.handleRefresh(ctx, args)
	case "status":
		s.handleStatus()
	case "help", "?":
		s.handleHelp()
	case "quit", "q", "exit":
		fmt.Fprintf(s.output, "bye\n")
		return true
	default:
		fmt.Fprintf(s.output, "Unknown command: %q. Type 'help' for available commands.\n", cmd)
	}
	return false
}

func (s *Shell) buildPrompt() string {
	if s.cwd == "" {
		return "ectop:/> "
	}
	return fmt.Sprintf("ectop:/%s> ", s.cwd)
}
