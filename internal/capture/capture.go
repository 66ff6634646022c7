// Package capture owns the background task that pulls raw frames from a
// frame source and forwards them to the monitor.
package capture

import (
	"context"
	"errors"
	"log"
)

// ErrClosed is returned by Handle.NextFrame once the underlying source
// has terminated.
var ErrClosed = errors.New("capture: closed")

// Source opens a frame stream filtered to the game's transport ports.
// The OS capture mechanics behind it are not this package's concern.
type Source interface {
	OpenFiltered(portA, portB uint16) (Handle, error)
}

// Handle delivers demultiplexed UDP payloads. NextFrame blocks until a
// frame arrives, a receive error occurs, or the source is closed.
type Handle interface {
	NextFrame() ([]byte, error)
	Close() error
}

// Controller tracks at most one active capture task. It is driven only
// from the monitor goroutine, so the cancel handle needs no lock.
//
// Start on an already-active controller logs a warning and still starts
// a fresh task, overwriting the stored cancel handle; the previous task
// keeps running until its source fails and can no longer be cancelled
// (see DESIGN.md).
type Controller struct {
	source   Source
	portA    uint16
	portB    uint16
	frames   chan<- []byte
	failures chan<- error
	logger   *log.Logger

	cancel context.CancelFunc
}

func NewController(source Source, portA, portB uint16, frames chan<- []byte, failures chan<- error, logger *log.Logger) *Controller {
	return &Controller{
		source:   source,
		portA:    portA,
		portB:    portB,
		frames:   frames,
		failures: failures,
		logger:   logger,
	}
}

func (c *Controller) Active() bool {
	return c.cancel != nil
}

// Start spawns the background capture task.
func (c *Controller) Start() {
	if c.cancel != nil {
		c.logger.Printf("capture start requested while a capture task is active")
	}
	ctx, cancel := context.WithCancel(context.Background())
	go c.run(ctx)
	c.cancel = cancel
}

// Abort drops the stored cancel handle after the task reported a fatal
// open failure. Unlike Stop it emits no warning when no handle is
// held: the failed task signalled its own end and never ran.
func (c *Controller) Abort() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	c.cancel = nil
}

// Stop signals the active task to wind down. With no active task it
// logs a warning and reports false.
func (c *Controller) Stop() bool {
	if c.cancel == nil {
		c.logger.Printf("capture stop requested with no active capture task")
		return false
	}
	c.cancel()
	c.cancel = nil
	return true
}

func (c *Controller) run(ctx context.Context) {
	handle, err := c.source.OpenFiltered(c.portA, c.portB)
	if err != nil {
		c.logger.Printf("error opening packet capture: %v", err)
		select {
		case c.failures <- err:
		default:
		}
		return
	}
	defer handle.Close() //nolint:errcheck

	c.logger.Printf("starting capture")
	for {
		// Cancellation is cooperative: the flag is polled once per
		// iteration and an in-flight NextFrame is allowed to finish.
		if ctx.Err() != nil {
			break
		}
		payload, err := handle.NextFrame()
		if errors.Is(err, ErrClosed) {
			break
		}
		if err != nil {
			c.logger.Printf("error receiving frame: %v", err)
			continue
		}
		select {
		case c.frames <- payload:
		case <-ctx.Done():
		}
	}
	c.logger.Printf("ending capture")
}
