// internal/websocket/hub.go
package websocket

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"aquacare-relay/internal/logger"
	"aquacare-relay/internal/metrics"
)

// Hub maintains the set of live sessions so they can be closed together when
// the process shuts down. Sessions never talk to each other through it.
type Hub struct {
	sessions   map[*Session]bool
	register   chan *Session
	unregister chan *Session
	done       chan struct{}
	mu         sync.RWMutex
	wg         sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
	log    zerolog.Logger
}

func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		sessions:   make(map[*Session]bool),
		register:   make(chan *Session),
		unregister: make(chan *Session),
		done:       make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
		log:        logger.WithComponent("hub"),
	}
}

// Run serves register and unregister requests until Shutdown is called.
func (h *Hub) Run() {
	defer close(h.done)
	for {
		select {
		case s := <-h.register:
			h.mu.Lock()
			h.sessions[s] = true
			h.mu.Unlock()
			metrics.ActiveSessions.Inc()
			metrics.SessionsTotal.Inc()
			h.log.Info().Str("session_id", s.ID).Str("remote_addr", s.RemoteAddr()).Msg("session registered")

		case s := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.sessions[s]; ok {
				delete(h.sessions, s)
				metrics.ActiveSessions.Dec()
				h.log.Info().Str("session_id", s.ID).Msg("session unregistered")
			}
			h.mu.Unlock()

		case <-h.ctx.Done():
			h.mu.Lock()
			h.log.Info().Int("sessions", len(h.sessions)).Msg("closing sessions for shutdown")
			for s := range h.sessions {
				s.closeForShutdown()
				delete(h.sessions, s)
				metrics.ActiveSessions.Dec()
			}
			h.mu.Unlock()
			return
		}
	}
}

// Context is cancelled when the hub shuts down. Sessions run under it.
func (h *Hub) Context() context.Context {
	return h.ctx
}

// Register adds s to the hub. It returns false once the hub is shutting down,
// in which case the caller must close the session itself.
func (h *Hub) Register(s *Session) bool {
	h.wg.Add(1)
	select {
	case h.register <- s:
		return true
	case <-h.done:
		h.wg.Done()
		return false
	}
}

// Unregister removes s. It is safe to call after shutdown.
func (h *Hub) Unregister(s *Session) {
	defer h.wg.Done()
	select {
	case h.unregister <- s:
	case <-h.done:
	}
}

// Count returns the number of live sessions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Shutdown closes every session and waits for their loops to return or ctx to expire.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.cancel()
	<-h.done

	finished := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
