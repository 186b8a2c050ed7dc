// Package broadcast fans encoded messages out to connected observers.
package broadcast

import (
	"errors"
	"io"

	"go.uber.org/zap"
)

var (
	// ErrClosed is returned by Send after the observer has gone away.
	ErrClosed = errors.New("observer closed")
	// ErrSlowObserver is returned by Send when the outbound queue is full.
	ErrSlowObserver = errors.New("observer send queue full")
)

// Observer is a connected client that receives every message. Send must not
// block; delivery failures make the hub drop the observer.
type Observer interface {
	ID() string
	Send(msg []byte) error
}

// Hub is the observer set. It does no locking: the event loop owns it.
type Hub struct {
	observers map[string]Observer
	logger    *zap.Logger
	onChange  func(n int)
	onFailure func()
}

// HubOption customizes a Hub.
type HubOption func(*Hub)

// WithLogger sets the logger used for delivery failures.
func WithLogger(logger *zap.Logger) HubOption {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithSizeHook is called with the observer count after every change.
func WithSizeHook(fn func(n int)) HubOption {
	return func(h *Hub) { h.onChange = fn }
}

// WithFailureHook is called once per failed delivery.
func WithFailureHook(fn func()) HubOption {
	return func(h *Hub) { h.onFailure = fn }
}

// NewHub returns an empty Hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{observers: make(map[string]Observer), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Add registers obs, replacing any observer with the same ID.
func (h *Hub) Add(obs Observer) {
	h.observers[obs.ID()] = obs
	h.changed()
}

// Remove unregisters the observer with id and reports whether it was present.
func (h *Hub) Remove(id string) bool {
	if _, ok := h.observers[id]; !ok {
		return false
	}
	delete(h.observers, id)
	h.changed()
	return true
}

// Len reports the number of observers.
func (h *Hub) Len() int {
	return len(h.observers)
}

// Broadcast sends msg to every observer and returns how many accepted it.
// Observers that fail are removed and closed; the others still receive msg.
func (h *Hub) Broadcast(msg []byte) int {
	delivered := 0
	var failed []string
	for id, obs := range h.observers {
		if err := obs.Send(msg); err != nil {
			h.logger.Info("dropping observer", zap.String("observer", id), zap.Error(err))
			failed = append(failed, id)
			continue
		}
		delivered++
	}
	for _, id := range failed {
		obs := h.observers[id]
		delete(h.observers, id)
		if h.onFailure != nil {
			h.onFailure()
		}
		if c, ok := obs.(io.Closer); ok {
			_ = c.Close()
		}
	}
	if len(failed) > 0 {
		h.changed()
	}
	return delivered
}

// CloseAll removes every observer, telling each the server is going away
// when it supports that, and closing it otherwise.
func (h *Hub) CloseAll() {
	for id, obs := range h.observers {
		switch c := obs.(type) {
		case interface{ Shutdown() }:
			c.Shutdown()
		case io.Closer:
			_ = c.Close()
		}
		delete(h.observers, id)
	}
	h.changed()
}

func (h *Hub) changed() {
	if h.onChange != nil {
		h.onChange(len(h.observers))
	}
}
