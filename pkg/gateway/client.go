package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// rpcMessage is the JSON-RPC 2.0 message exchanged with the server.
type rpcMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int            `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Server-assigned application error codes carried in rpcError.Code.
const (
	codeServerRejected   = -32001
	codeNotFound         = -32002
	codePermissionDenied = -32003
)

// snapshotResult is the response payload of tree/fetch.
type snapshotResult struct {
	ServerStatus  string     `json:"serverStatus"`
	ServerVersion string     `json:"serverVersion"`
	Nodes         []NodeData `json:"nodes"`
}

// artifactResult is the response payload of file/fetch.
type artifactResult struct {
	Content string `json:"content"`
}

// Client talks line-delimited JSON-RPC 2.0 to the workflow server over a
// single connection. Responses are matched to requests by ID; a reader
// goroutine (Listen) dispatches them to per-request channels.
type Client struct {
	conn   io.ReadWriteCloser
	reader *bufio.Scanner
	nextID int
	mu     sync.Mutex

	// pending maps request IDs to response channels.
	pending map[int]chan *rpcMessage

	done chan struct{}
}

// Dial connects to the server and starts the response reader.
func Dial(host string, port int, timeout time.Duration) (*Client, error) {
	addr := net.JoinHostPort(host, fmt.Sprint(port))
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, &Error{Kind: KindConnectionFailure, Message: fmt.Sprintf("dial %s: %v", addr, err)}
	}
	c := NewClient(conn)
	go c.Listen()
	return c, nil
}

// NewClient wraps an established connection. Call Listen in a goroutine to
// start processing server responses.
func NewClient(conn io.ReadWriteCloser) *Client {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	return &Client{
		conn:    conn,
		reader:  scanner,
		pending: make(map[int]chan *rpcMessage),
		done:    make(chan struct{}),
	}
}

// Listen reads messages from the server and dispatches them to waiting
// requests. It returns when the connection closes, failing all pending
// requests so nothing blocks forever.
func (c *Client) Listen() {
	for c.reader.Scan() {
		line := c.reader.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg rpcMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			continue
		}
		if msg.ID == nil {
			continue // notification; the client issues only request/response
		}
		c.mu.Lock()
		ch, ok := c.pending[*msg.ID]
		if ok {
			delete(c.pending, *msg.ID)
		}
		c.mu.Unlock()
		if ok {
			ch <- &msg
		}
	}
	close(c.done)
	c.mu.Lock()
	for id, ch := range c.pending {
		delete(c.pending, id)
		close(ch)
	}
	c.mu.Unlock()
}

// Close tears down the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// request sends one JSON-RPC request and waits for its response, honoring
// ctx. A closed connection or an expired context is a connection failure.
func (c *Client) request(ctx context.Context, method string, params any) (*rpcMessage, error) {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	ch := make(chan *rpcMessage, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	var rawParams json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		rawParams = b
	} else {
		rawParams = json.RawMessage("{}")
	}

	msg := rpcMessage{JSONRPC: "2.0", ID: &id, Method: method, Params: rawParams}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	c.mu.Lock()
	_, err = fmt.Fprintf(c.conn, "%s\n", data)
	c.mu.Unlock()
	if err != nil {
		c.forget(id)
		return nil, &Error{Kind: KindConnectionFailure, Message: fmt.Sprintf("write %s: %v", method, err)}
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, &Error{Kind: KindConnectionFailure, Message: "connection closed"}
		}
		if resp.Error != nil {
			return nil, rpcToError(resp.Error)
		}
		return resp, nil
	case <-ctx.Done():
		c.forget(id)
		return nil, &Error{Kind: KindConnectionFailure, Message: fmt.Sprintf("%s: %v", method, ctx.Err())}
	case <-c.done:
		return nil, &Error{Kind: KindConnectionFailure, Message: "connection closed"}
	}
}

// forget abandons a pending request after a write failure or timeout so a
// late response is dropped instead of delivered.
func (c *Client) forget(id int) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// rpcToError maps server error codes onto the gateway error taxonomy.
func rpcToError(e *rpcError) error {
	kind := KindServerRejected
	switch e.Code {
	case codeNotFound:
		kind = KindNotFound
	case codePermissionDenied:
		kind = KindPermissionDenied
	case codeServerRejected:
		kind = KindServerRejected
	}
	return &Error{Kind: kind, Message: e.Message}
}

// Ping implements Gateway.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.request(ctx, "server/ping", nil)
	return err
}

// FetchSnapshot implements Gateway.
func (c *Client) FetchSnapshot(ctx context.Context, scope Scope) (*Snapshot, error) {
	params := map[string]any{}
	if !scope.Full() {
		params["path"] = scope.Path
	}
	if scope.Depth > 0 {
		params["depth"] = scope.Depth
	}
	resp, err := c.request(ctx, "tree/fetch", params)
	if err != nil {
		return nil, err
	}
	var result snapshotResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, &Error{Kind: KindConnectionFailure, Message: fmt.Sprintf("decode snapshot: %v", err)}
	}
	return &Snapshot{
		TakenAt:       time.Now(),
		ServerStatus:  result.ServerStatus,
		ServerVersion: result.ServerVersion,
		Full:          scope.Full(),
		Root:          scope.Path,
		Nodes:         result.Nodes,
	}, nil
}

// Mutate implements Gateway.
func (c *Client) Mutate(ctx context.Context, op Op, path string, payload map[string]string) error {
	params := map[string]any{
		"op":   string(op),
		"path": path,
	}
	if len(payload) > 0 {
		params["payload"] = payload
	}
	_, err := c.request(ctx, "node/mutate", params)
	return err
}

// FetchArtifact implements Gateway.
func (c *Client) FetchArtifact(ctx context.Context, path string, kind ArtifactKind, offset int64) ([]byte, error) {
	params := map[string]any{
		"path": path,
		"kind": string(kind),
	}
	if offset > 0 {
		params["offset"] = offset
	}
	resp, err := c.request(ctx, "file/fetch", params)
	if err != nil {
		return nil, err
	}
	var result artifactResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, &Error{Kind: KindConnectionFailure, Message: fmt.Sprintf("decode artifact: %v", err)}
	}
	return []byte(result.Content), nil
}
