package session

import (
	"context"
	"fmt"

	"github.com/ectop-dev/ectop/pkg/cache"
	"github.com/ectop-dev/ectop/pkg/gateway"
	"github.com/ectop-dev/ectop/pkg/trigger"
)

// Explanation is everything the why-inspector shows for one node: the
// server's own reason line, the raw trigger with its evaluated clause
// tree, and the scheduling attributes that can also hold a node back.
type Explanation struct {
	Path   string
	State  cache.State
	Reason string

	// Trigger is the raw expression, empty when the node has none.
	// ParseErr is set when the expression uses syntax the evaluator does
	// not understand; Result is nil in that case and the inspector shows
	// the raw text instead of guessing.
	Trigger  string
	ParseErr error
	Result   *trigger.Result

	// InLimits names the limits the node consumes, resolved against the
	// cache's limit index where known.
	InLimits []LimitUsage

	Times []string
	Dates []string
	Crons []string
}

// LimitUsage is one limit the node participates in.
type LimitUsage struct {
	Name     string
	Consumed int
	Max      int
	Known    bool
}

// Blocked reports whether the explanation shows anything actually holding
// the node back.
func (e *Explanation) Blocked() bool {
	if e.Result != nil && e.Result.Status != trigger.Satisfied {
		return true
	}
	for _, l := range e.InLimits {
		if l.Known && l.Consumed >= l.Max {
			return true
		}
	}
	return false
}

// Explain builds the dependency explanation for the node at path from
// cached state only; it never blocks on the network.
func (s *Session) Explain(path string) (*Explanation, error) {
	path = cache.Normalize(path)
	n, ok := s.cache.Get(path)
	if !ok {
		return nil, fmt.Errorf("node %s not in cache", path)
	}

	ex := &Explanation{
		Path:    path,
		State:   n.State,
		Reason:  n.Reason,
		Trigger: n.Trigger,
		Times:   n.Times,
		Dates:   n.Dates,
		Crons:   n.Crons,
	}
	if n.Trigger != "" {
		expr, perr := trigger.Parse(n.Trigger)
		if perr != nil {
			ex.ParseErr = perr
		} else {
			ex.Result = trigger.Evaluate(expr, n.Trigger, s.cache, path)
		}
	}
	for _, name := range n.InLimits {
		consumed, max, known := s.cache.LimitConsumed(name)
		ex.InLimits = append(ex.InLimits, LimitUsage{
			Name:     name,
			Consumed: consumed,
			Max:      max,
			Known:    known,
		})
	}
	return ex, nil
}

// VarEntry is one variable visible on a node: defined directly, generated
// by the server, or inherited from an ancestor. For inherited entries
// Origin names the defining ancestor; nearer definitions shadow farther
// ones.
type VarEntry struct {
	Name      string
	Value     string
	Origin    string
	Generated bool
	Inherited bool
}

// Variables lists every variable visible on the node: its own in
// definition order, then its generated variables, then inherited ones
// walking up the ancestry with shadowed names omitted.
func (s *Session) Variables(path string) ([]VarEntry, error) {
	path = cache.Normalize(path)
	n, ok := s.cache.Get(path)
	if !ok {
		return nil, fmt.Errorf("node %s not in cache", path)
	}

	var out []VarEntry
	seen := make(map[string]bool)
	for _, v := range n.Variables {
		out = append(out, VarEntry{Name: v.Name, Value: v.Value, Origin: path})
		seen[v.Name] = true
	}
	for _, v := range n.Generated {
		if seen[v.Name] {
			continue
		}
		out = append(out, VarEntry{Name: v.Name, Value: v.Value, Origin: path, Generated: true})
		seen[v.Name] = true
	}
	for p := cache.ParentPath(path); p != ""; p = cache.ParentPath(p) {
		anc, ok := s.cache.Get(p)
		if !ok {
			break
		}
		for _, v := range anc.Variables {
			if seen[v.Name] {
				continue
			}
			out = append(out, VarEntry{Name: v.Name, Value: v.Value, Origin: p, Inherited: true})
			seen[v.Name] = true
		}
	}
	return out, nil
}

// Script fetches the node's current script content.
func (s *Session) Script(ctx context.Context, path string) (string, error) {
	data, err := s.Artifact(ctx, path, gateway.ArtifactScript, 0)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
