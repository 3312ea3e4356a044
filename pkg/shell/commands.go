package shell

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/ectop-dev/ectop/pkg/cache"
	"github.com/ectop-dev/ectop/pkg/gateway"
	"github.com/ectop-dev/ectop/pkg/trigger"
)

// resolve turns a command argument into a canonical node path relative to
// the shell's working node. No argument means the working node itself.
func (s *Shell) resolve(args []string) string {
	if len(args) == 0 {
		return s.cwd
	}
	arg := args[0]
	if strings.HasPrefix(arg, "/") {
		return cache.Normalize(arg)
	}
	return cache.Normalize(path.Join(s.cwd, arg))
}

func (s *Shell) handleLs(args []string) {
	target := s.resolve(args)
	if target == "" {
		for _, n := range s.sess.Cache().Roots() {
			fmt.Fprintf(s.output, "%-10s %-9s %s\n", n.Kind, n.State, n.Name())
		}
		return
	}
	children, populated := s.sess.Cache().ChildrenOf(target)
	if !populated {
		fmt.Fprintf(s.output, "%s not fetched yet; run 'refresh %s'\n", target, target)
		return
	}
	if len(children) == 0 {
		fmt.Fprintf(s.output, "(no children)\n")
		return
	}
	for _, n := range children {
		fmt.Fprintf(s.output, "%-10s %-9s %s\n", n.Kind, n.State, n.Name())
	}
}

func (s *Shell) handleCd(args []string) {
	if len(args) == 0 || args[0] == "/" {
		s.cwd = ""
		return
	}
	target := s.resolve(args)
	if _, ok := s.sess.Cache().Get(target); !ok {
		fmt.Fprintf(s.output, "no such node: %s\n", target)
		return
	}
	s.cwd = target
}

func (s *Shell) handleShow(args []string) {
	target := s.resolve(args)
	n, ok := s.sess.Cache().Get(target)
	if !ok {
		fmt.Fprintf(s.output, "no such node: %s\n", target)
		return
	}
	fmt.Fprintf(s.output, "path:    /%s\n", n.Path)
	fmt.Fprintf(s.output, "kind:    %s\n", n.Kind)
	fmt.Fprintf(s.output, "state:   %s\n", n.State)
	if n.Trigger != "" {
		fmt.Fprintf(s.output, "trigger: %s\n", n.Trigger)
	}
	if n.Reason != "" {
		fmt.Fprintf(s.output, "reason:  %s\n", n.Reason)
	}
	for _, l := range n.Limits {
		fmt.Fprintf(s.output, "limit:   %s %d/%d\n", l.Name, l.Consumed, l.Max)
	}
	for _, e := range n.Events {
		mark := " "
		if e.Set {
			mark = "*"
		}
		fmt.Fprintf(s.output, "event:   [%s] %s\n", mark, e.Name)
	}
}

func (s *Shell) handleVars(args []string) {
	target := s.resolve(args)
	vars, err := s.sess.Variables(target)
	if err != nil {
		fmt.Fprintf(s.output, "Error: %v\n", err)
		return
	}
	for _, v := range vars {
		tag := ""
		switch {
		case v.Generated:
			tag = " (generated)"
		case v.Inherited:
			tag = fmt.Sprintf(" (from /%s)", v.Origin)
		}
		fmt.Fprintf(s.output, "%s=%s%s\n", v.Name, v.Value, tag)
	}
}

func (s *Shell) handleWhy(args []string) {
	target := s.resolve(args)
	ex, err := s.sess.Explain(target)
	if err != nil {
		fmt.Fprintf(s.output, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(s.output, "/%s is %s\n", ex.Path, ex.State)
	if ex.Reason != "" {
		fmt.Fprintf(s.output, "server: %s\n", ex.Reason)
	}
	switch {
	case ex.Trigger == "":
		fmt.Fprintf(s.output, "no trigger\n")
	case ex.ParseErr != nil:
		fmt.Fprintf(s.output, "trigger: %s (not decomposable: %v)\n", ex.Trigger, ex.ParseErr)
	default:
		s.printResult(ex.Result, 0)
	}
	for _, l := range ex.InLimits {
		if !l.Known {
			fmt.Fprintf(s.output, "limit %s: not in cache\n", l.Name)
			continue
		}
		fmt.Fprintf(s.output, "limit %s: %d/%d\n", l.Name, l.Consumed, l.Max)
	}
	for _, t := range ex.Times {
		fmt.Fprintf(s.output, "time: %s\n", t)
	}
}

func (s *Shell) printResult(r *trigger.Result, depth int) {
	mark := "?"
	switch r.Status {
	case trigger.Satisfied:
		mark = "ok"
	case trigger.Unmet:
		mark = "BLOCKED"
	}
	detail := ""
	if r.Detail != "" {
		detail = " — " + r.Detail
	}
	fmt.Fprintf(s.output, "%s[%s] %s%s\n", strings.Repeat("  ", depth), mark, r.Text, detail)
	for _, c := range r.Children {
		s.printResult(c, depth+1)
	}
}

func (s *Shell) handleFind(args []string) {
	if len(args) == 0 {
		fmt.Fprintf(s.output, "usage: find <query>\n")
		return
	}
	cur := s.sess.Search().Search(args[0])
	for _, m := range cur.Matches {
		n, _ := s.sess.Cache().Get(m)
		fmt.Fprintf(s.output, "%-9s /%s\n", n.State, m)
	}
	if cur.Partial {
		fmt.Fprintf(s.output, "(partial: unexpanded subtrees were not searched)\n")
	}
	if cur.Len() == 0 {
		fmt.Fprintf(s.output, "no matches\n")
	}
}

func (s *Shell) handleArtifact(ctx context.Context, args []string, kind string) {
	target := s.resolve(args)
	data, err := s.sess.Artifact(ctx, target, gateway.ArtifactKind(kind), 0)
	if err != nil {
		fmt.Fprintf(s.output, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(s.output, "%s", data)
	if len(data) > 0 && data[len(data)-1] != '\n' {
		fmt.Fprintln(s.output)
	}
}

func (s *Shell) handleControl(ctx context.Context, verb string, args []string) {
	target := s.resolve(args)
	if target == "" {
		fmt.Fprintf(s.output, "usage: %s <path>\n", verb)
		return
	}
	ops := s.sess.Ops()
	var err error
	switch verb {
	case "suspend":
		err = ops.Suspend(ctx, target)
	case "resume":
		err = ops.Resume(ctx, target)
	case "kill":
		err = ops.Kill(ctx, target)
	case "force":
		err = ops.ForceComplete(ctx, target)
	case "requeue":
		err = ops.Requeue(ctx, target)
	}
	if err != nil {
		fmt.Fprintf(s.output, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(s.output, "%s /%s: ok\n", verb, target)
}

func (s *Shell) handleSet(ctx context.Context, args []string) {
	if len(args) < 3 {
		fmt.Fprintf(s.output, "usage: set <path> <name> <value>\n")
		return
	}
	target := s.resolve(args[:1])
	if err := s.sess.Ops().SetVariable(ctx, target, args[1], strings.Join(args[2:], " ")); err != nil {
		fmt.Fprintf(s.output, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(s.output, "set /%s %s=%s: ok\n", target, args[1], strings.Join(args[2:], " "))
}

func (s *Shell) handleUnset(ctx context.Context, args []string) {
	if len(args) != 2 {
		fmt.Fprintf(s.output, "usage: unset <path> <name>\n")
		return
	}
	target := s.resolve(args[:1])
	if err := s.sess.Ops().DeleteVariable(ctx, target, args[1]); err != nil {
		fmt.Fprintf(s.output, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(s.output, "unset /%s %s: ok\n", target, args[1])
}

func (s *Shell) handleServer(ctx context.Context, verb string) {
	var err error
	if verb == "halt" {
		err = s.sess.Ops().HaltServer(ctx)
	} else {
		err = s.sess.Ops().RestartServer(ctx)
	}
	if err != nil {
		fmt.Fprintf(s.output, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(s.output, "%s server: ok\n", verb)
}

func (s *Shell) handleRefresh(ctx context.Context, args []string) {
	target := s.resolve(args)
	var err error
	if target == "" {
		err = s.sess.Sync().FullSync(ctx)
	} else {
		err = s.sess.Sync().Refresh(ctx, target)
	}
	if err != nil {
		fmt.Fprintf(s.output, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(s.output, "refreshed (%d nodes cached)\n", s.sess.Cache().Len())
}

func (s *Shell) handleStatus() {
	st := s.sess.Sync().Status()
	c := s.sess.Cache()
	health := "connected"
	if st.Degraded {
		health = fmt.Sprintf("degraded (%s)", st.LastError)
	}
	fmt.Fprintf(s.output, "server:    %s %s\n", c.ServerStatus(), c.ServerVersion())
	fmt.Fprintf(s.output, "link:      %s\n", health)
	fmt.Fprintf(s.output, "last sync: %s\n", st.LastSync.Format("15:04:05"))
	fmt.Fprintf(s.output, "cached:    %d nodes\n", c.Len())
}

func (s *Shell) handleHelp() {
	fmt.Fprint(s.output, `Navigation
  ls [path]           list children of a node (or the suites)
  cd [path]           change the working node
  show [path]         node attributes
  vars [path]         variables, including inherited ones
  why [path]          explain what holds the node back
  find <query>        search cached node names
  out [path]          task output
  script [path]       task script

Control
  suspend|resume|kill|force|requeue <path>
  set <path> <name> <value>
  unset <path> <name>
  halt | restart      stop or resume the server's scheduling

Session
  refresh [path]      resync the tree or one subtree
  status              connection and cache summary
  quit
`)
}
