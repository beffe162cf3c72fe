// Package messaging provides response routing for stateful conversations.
package messaging

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dragent-dev/dragent/internal/models"
)

// Handler processes one incoming message from a user. Implementations hold
// the per-user conversation state.
type Handler interface {
	HandleMessage(ctx context.Context, from, body string) error
}

// Router consumes a transport's response channel and dispatches each message
// to the handler. Messages from the same user are processed strictly in
// order; messages from different users run concurrently.
type Router struct {
	svc     Service
	handler Handler

	// mu protects the per-user queues map
	mu     sync.Mutex
	queues map[string]chan models.Response
	wg     sync.WaitGroup
}

// NewRouter creates a Router wiring the given transport to the handler.
func NewRouter(svc Service, handler Handler) *Router {
	return &Router{
		svc:     svc,
		handler: handler,
		queues:  make(map[string]chan models.Response),
	}
}

// Run consumes responses until the transport channel closes or the context is
// cancelled. It blocks; callers usually run it in a goroutine.
func (r *Router) Run(ctx context.Context) {
	slog.Debug("Router.Run: starting response dispatch loop")
	for {
		select {
		case <-ctx.Done():
			slog.Debug("Router.Run stopping due to context cancellation")
			r.drain()
			return
		case resp, ok := <-r.svc.Responses():
			if !ok {
				slog.Debug("Router.Run stopping, responses channel closed")
				r.drain()
				return
			}
			r.dispatch(ctx, resp)
		}
	}
}

// dispatch routes a response to the sender's queue, creating the per-user
// worker on first contact.
func (r *Router) dispatch(ctx context.Context, resp models.Response) {
	from, err := r.svc.ValidateAndCanonicalizeRecipient(resp.From)
	if err != nil {
		slog.Warn("Router.dispatch dropping message from invalid sender", "error", err, "from", resp.From)
		return
	}
	resp.From = from

	r.mu.Lock()
	q, ok := r.queues[from]
	if !ok {
		q = make(chan models.Response, DefaultChannelBufferSize)
		r.queues[from] = q
		r.wg.Add(1)
		go r.userLoop(ctx, from, q)
	}
	r.mu.Unlock()

	select {
	case q <- resp:
	default:
		slog.Warn("Router.dispatch user queue full, dropping message", "from", from)
	}
}

// userLoop processes one user's messages sequentially.
func (r *Router) userLoop(ctx context.Context, from string, q <-chan models.Response) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case resp, ok := <-q:
			if !ok {
				return
			}
			if err := r.handler.HandleMessage(ctx, resp.From, resp.Body); err != nil {
				slog.Error("Router.userLoop handler error", "error", err, "from", from)
			}
		}
	}
}

// drain closes all per-user queues and waits for workers to finish.
func (r *Router) drain() {
	r.mu.Lock()
	for _, q := range r.queues {
		close(q)
	}
	r.queues = make(map[string]chan models.Response)
	r.mu.Unlock()
	r.wg.Wait()
}
