// If you are AI: This file handles graceful shutdown orchestration for the process.

package server

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// ShutdownHandler manages graceful shutdown on SIGINT, SIGTERM or an explicit Trigger.
type ShutdownHandler struct {
	server  *Server
	ctx     context.Context
	cancel  context.CancelFunc
	closers []func() error
}

// NewShutdownHandler creates a handler that listens for termination signals.
// The provided context is used as the parent for shutdown operations.
// server may be nil when the status server is disabled.
func NewShutdownHandler(server *Server, ctx context.Context) *ShutdownHandler {
	shutdownCtx, cancel := context.WithCancel(ctx)
	return &ShutdownHandler{
		server: server,
		ctx:    shutdownCtx,
		cancel: cancel,
	}
}

// OnShutdown registers fn to run after the server stops. Functions run in reverse
// registration order.
func (h *ShutdownHandler) OnShutdown(fn func() error) {
	h.closers = append(h.closers, fn)
}

// Trigger starts shutdown without a signal.
func (h *ShutdownHandler) Trigger() {
	h.cancel()
}

// Wait blocks until a termination signal is received or Trigger is called,
// then shuts the server down and runs the registered closers.
// This method should be called from the main goroutine.
func (h *ShutdownHandler) Wait() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-sigChan:
	case <-h.ctx.Done():
	}

	// Cancel context to signal shutdown
	h.cancel()

	var errs []error
	if h.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		errs = append(errs, h.server.Shutdown(shutdownCtx))
	}
	for i := len(h.closers) - 1; i >= 0; i-- {
		errs = append(errs, h.closers[i]())
	}
	return errors.Join(errs...)
}

// Context returns the shutdown context that is cancelled when shutdown begins.
func (h *ShutdownHandler) Context() context.Context {
	return h.ctx
}
