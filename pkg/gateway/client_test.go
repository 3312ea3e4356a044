package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"
	"time"
)

// startClient wires a Client to an in-memory connection. Each request
// line is handed to respond, which returns the response lines to write
// back (none to leave the request hanging).
func startClient(t *testing.T, respond func(msg rpcMessage) []rpcMessage) *Client {
	t.Helper()
	cliConn, srvConn := net.Pipe()
	c := NewClient(cliConn)
	go c.Listen()

	go func() {
		sc := bufio.NewScanner(srvConn)
		for sc.Scan() {
			var msg rpcMessage
			if err := json.Unmarshal(sc.Bytes(), &msg); err != nil {
				continue
			}
			for _, resp := range respond(msg) {
				b, err := json.Marshal(resp)
				if err != nil {
					continue
				}
				srvConn.Write(append(b, '\n'))
			}
		}
	}()

	t.Cleanup(func() {
		cliConn.Close()
		srvConn.Close()
	})
	return c
}

func okSnapshot(id int, version string) rpcMessage {
	result, _ := json.Marshal(snapshotResult{ServerStatus: "running", ServerVersion: version})
	return rpcMessage{JSONRPC: "2.0", ID: &id, Result: result}
}

// TestResponsesMatchRequests verifies responses are routed to their
// requests by ID even when the server answers out of order.
func TestResponsesMatchRequests(t *testing.T) {
	var mu sync.Mutex
	var held *rpcMessage
	c := startClient(t, func(msg rpcMessage) []rpcMessage {
		var params struct {
			Path string `json:"path"`
		}
		json.Unmarshal(msg.Params, &params)
		mu.Lock()
		defer mu.Unlock()
		if params.Path == "slow" {
			m := msg
			held = &m
			return nil
		}
		// Answer the later request first, then release the held one.
		out := []rpcMessage{okSnapshot(*msg.ID, params.Path)}
		if held != nil {
			var heldParams struct {
				Path string `json:"path"`
			}
			json.Unmarshal(held.Params, &heldParams)
			out = append(out, okSnapshot(*held.ID, heldParams.Path))
			held = nil
		}
		return out
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	var slow, fast *Snapshot
	var slowErr, fastErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		slow, slowErr = c.FetchSnapshot(ctx, Scope{Path: "slow", Depth: 1})
	}()
	time.Sleep(30 * time.Millisecond)
	go func() {
		defer wg.Done()
		fast, fastErr = c.FetchSnapshot(ctx, Scope{Path: "fast", Depth: 1})
	}()
	wg.Wait()

	if slowErr != nil || fastErr != nil {
		t.Fatalf("errors: slow=%v fast=%v", slowErr, fastErr)
	}
	if slow.ServerVersion != "slow" {
		t.Errorf("slow request got payload %q", slow.ServerVersion)
	}
	if fast.ServerVersion != "fast" {
		t.Errorf("fast request got payload %q", fast.ServerVersion)
	}
}

// TestErrorCodeTaxonomy verifies server error codes map onto the
// gateway error kinds.
func TestErrorCodeTaxonomy(t *testing.T) {
	cases := []struct {
		code int
		want ErrorKind
	}{
		{codeServerRejected, KindServerRejected},
		{codeNotFound, KindNotFound},
		{codePermissionDenied, KindPermissionDenied},
		{-32600, KindServerRejected}, // unknown codes default to rejected
	}

	for _, tc := range cases {
		code := tc.code
		c := startClient(t, func(msg rpcMessage) []rpcMessage {
			return []rpcMessage{{
				JSONRPC: "2.0",
				ID:      msg.ID,
				Error:   &rpcError{Code: code, Message: "nope"},
			}}
		})

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := c.Mutate(ctx, OpSuspend, "s1", nil)
		cancel()
		if err == nil {
			t.Fatalf("code %d: no error", tc.code)
		}
		if got := KindOf(err); got != tc.want {
			t.Errorf("code %d: kind = %s, want %s", tc.code, got, tc.want)
		}
	}
}

// TestRequestTimeout verifies an unanswered request fails as a
// connection failure when its context expires.
func TestRequestTimeout(t *testing.T) {
	c := startClient(t, func(msg rpcMessage) []rpcMessage { return nil })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := c.Ping(ctx)
	if err == nil {
		t.Fatal("ping succeeded with a mute server")
	}
	if KindOf(err) != KindConnectionFailure {
		t.Errorf("kind = %s, want %s", KindOf(err), KindConnectionFailure)
	}
}

// TestClosedConnectionFailsPending verifies requests in flight when the
// connection drops fail instead of blocking.
func TestClosedConnectionFailsPending(t *testing.T) {
	cliConn, srvConn := net.Pipe()
	c := NewClient(cliConn)
	go c.Listen()

	// Swallow the request, then drop the link.
	go func() {
		sc := bufio.NewScanner(srvConn)
		sc.Scan()
		srvConn.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := c.Ping(ctx)
	if err == nil {
		t.Fatal("ping succeeded over a dropped connection")
	}
	var gerr *Error
	if !errors.As(err, &gerr) || gerr.Kind != KindConnectionFailure {
		t.Errorf("err = %v, want connection failure", err)
	}
	cliConn.Close()
}
