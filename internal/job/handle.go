package job

import "sync"

// Handle coordinates the goroutine of an event source with its cleanup
// function. Cleanup is idempotent and returns once the source goroutine has
// exited, so nothing is dispatched after it returns. A terminal callback run
// through Finish never starts after Cleanup returned.
//
// Callbacks run by Deliver or Finish may call Cleanup themselves. While such
// a callback runs Cleanup returns without waiting; the message it received
// was already dispatched and the source dispatches nothing more.
type Handle struct {
	mu         sync.Mutex
	stopped    bool
	finishing  bool
	delivering bool
	stop       chan struct{}
	done       chan struct{}
	onStop     func()
}

// NewHandle creates a handle; onStop runs once on the first Cleanup call,
// typically to abort the transport.
func NewHandle(onStop func()) *Handle {
	return &Handle{
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		onStop: onStop,
	}
}

// Stopping is closed when Cleanup is called.
func (h *Handle) Stopping() <-chan struct{} {
	return h.stop
}

// Cleanup stops the source. Only the first call has effect; every call
// returns after the source goroutine exited or entered its terminal callback.
func (h *Handle) Cleanup() {
	h.mu.Lock()
	first := !h.stopped
	h.stopped = true
	reentrant := h.finishing || h.delivering
	h.mu.Unlock()
	if first {
		close(h.stop)
		if h.onStop != nil {
			h.onStop()
		}
	}
	if reentrant {
		return
	}
	<-h.done
}

// Deliver runs fn, a per-message callback, on the source goroutine. It
// reports false, without running fn, once Cleanup was called.
func (h *Handle) Deliver(fn func()) bool {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return false
	}
	h.delivering = true
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		h.delivering = false
		h.mu.Unlock()
	}()
	if fn != nil {
		fn()
	}
	return true
}

// Stopped reports whether Cleanup was called.
func (h *Handle) Stopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}

// Finish runs fn as the terminal callback unless Cleanup was already called.
// It must be called from the source goroutine, at most once.
func (h *Handle) Finish(fn func()) {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.finishing = true
	h.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Exit marks the source goroutine as finished. It must be called exactly once,
// typically deferred at the top of the source goroutine.
func (h *Handle) Exit() {
	close(h.done)
}

// Done is closed once the source goroutine exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}
