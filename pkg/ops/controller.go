package ops

import (
	"context"
	"fmt"
	"time"

	"github.com/ectop-dev/ectop/pkg/cache"
	"github.com/ectop-dev/ectop/pkg/gateway"
	"github.com/ectop-dev/ectop/pkg/syncer"
)

// Controller pairs the serializer with the gateway and the sync engine.
// Every verb follows the same shape: admit, mutate, and on success
// resynchronize exactly the affected scope. The cache is never written
// optimistically; state changes appear when the server confirms them.
type Controller struct {
	gw      gateway.Gateway
	eng     *syncer.Engine
	ser     *Serializer
	timeout time.Duration
}

// NewController builds a controller. timeout bounds each gateway call,
// not the time spent waiting for conflicting operations.
func NewController(gw gateway.Gateway, eng *syncer.Engine, timeout time.Duration) *Controller {
	return &Controller{gw: gw, eng: eng, ser: NewSerializer(), timeout: timeout}
}

// Serializer exposes per-path operation state for the UI.
func (c *Controller) Serializer() *Serializer { return c.ser }

// Suspend pauses scheduling of the node and its descendants.
func (c *Controller) Suspend(ctx context.Context, path string) error {
	return c.nodeOp(ctx, gateway.OpSuspend, path, nil)
}

// Resume lifts a suspension.
func (c *Controller) Resume(ctx context.Context, path string) error {
	return c.nodeOp(ctx, gateway.OpResume, path, nil)
}

// Kill aborts the node's running job.
func (c *Controller) Kill(ctx context.Context, path string) error {
	return c.nodeOp(ctx, gateway.OpKill, path, nil)
}

// ForceComplete marks the node complete without running it.
func (c *Controller) ForceComplete(ctx context.Context, path string) error {
	return c.nodeOp(ctx, gateway.OpForceComplete, path, nil)
}

// Requeue puts the node back in the queue for another run.
func (c *Controller) Requeue(ctx context.Context, path string) error {
	return c.nodeOp(ctx, gateway.OpRequeue, path, nil)
}

// SetVariable creates or updates a variable on the node.
func (c *Controller) SetVariable(ctx context.Context, path, name, value string) error {
	if name == "" {
		return fmt.Errorf("variable name is required")
	}
	return c.nodeOp(ctx, gateway.OpSetVariable, path, map[string]string{
		"name":  name,
		"value": value,
	})
}

// DeleteVariable removes a variable defined directly on the node.
// Inherited variables cannot be deleted here; override them instead.
func (c *Controller) DeleteVariable(ctx context.Context, path, name string) error {
	if name == "" {
		return fmt.Errorf("variable name is required")
	}
	return c.nodeOp(ctx, gateway.OpDelVariable, path, map[string]string{"name": name})
}

// SetScript replaces the task's script, typically followed by a Requeue
// so the edited script takes effect.
func (c *Controller) SetScript(ctx context.Context, path, content string) error {
	return c.nodeOp(ctx, gateway.OpSetScript, path, map[string]string{"content": content})
}

// HaltServer stops the server's scheduling loop. Serialized against every
// node operation, and followed by a full resync since every node's view
// may change.
func (c *Controller) HaltServer(ctx context.Context) error {
	return c.serverOp(ctx, gateway.OpHalt)
}

// RestartServer resumes a halted server's scheduling loop.
func (c *Controller) RestartServer(ctx context.Context) error {
	return c.serverOp(ctx, gateway.OpStart)
}

// nodeOp runs one serialized mutation against path and, on success,
// resynchronizes that subtree.
func (c *Controller) nodeOp(ctx context.Context, op gateway.Op, path string, payload map[string]string) error {
	path = cache.Normalize(path)
	if path == "" {
		return fmt.Errorf("%s: node path is required", op)
	}
	return c.ser.Do(ctx, path, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err := c.gw.Mutate(callCtx, op, path, payload)
		cancel()
		if err != nil {
			return fmt.Errorf("%s %s: %w", op, path, err)
		}
		// Refresh the confirmed subtree; a failed resync leaves the node
		// stale until the next periodic sync but the mutation stood.
		return c.eng.Refresh(ctx, path)
	})
}

func (c *Controller) serverOp(ctx context.Context, op gateway.Op) error {
	return c.ser.Do(ctx, "", func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err := c.gw.Mutate(callCtx, op, "", nil)
		cancel()
		if err != nil {
			return fmt.Errorf("%s server: %w", op, err)
		}
		return c.eng.FullSync(ctx)
	})
}
