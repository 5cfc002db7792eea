package httpapi

import (
	"log"
	"sync"

	"github.com/okdaichi/townvoice/internal/observability"
	"github.com/okdaichi/townvoice/internal/protocol"
)

const clientSendBuffer = 64

// Hub fans pipeline events out to every connected websocket client. It is
// the dispatcher's event sink; publishing never blocks, a client that
// cannot keep up has events dropped.
type Hub struct {
	mu      sync.RWMutex
	clients map[*hubClient]struct{}
	metrics *observability.Metrics
}

type hubClient struct {
	send chan any
}

func NewHub(metrics *observability.Metrics) *Hub {
	return &Hub{
		clients: make(map[*hubClient]struct{}),
		metrics: metrics,
	}
}

func (h *Hub) register() *hubClient {
	c := &hubClient{send: make(chan any, clientSendBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *Hub) unregister(c *hubClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// ClientCount reports connected websocket clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) PublishProgress(p protocol.Progress) { h.publish(p) }
func (h *Hub) PublishAnswer(a protocol.Answer)     { h.publish(a) }
func (h *Hub) PublishError(e protocol.ErrorEvent)  { h.publish(e) }

// PublishSystem broadcasts an out-of-band notice (queue reset, feed
// status).
func (h *Hub) PublishSystem(ev protocol.SystemEvent) { h.publish(ev) }

func (h *Hub) publish(event any) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- event:
			h.countOutbound(event)
		default:
			// Writes stay single-threaded per connection; a saturated
			// client loses this event rather than stalling the pipeline.
			log.Printf("[httpapi] dropping event for slow websocket client")
		}
	}
}

func (h *Hub) countOutbound(event any) {
	if h.metrics == nil {
		return
	}
	if t, ok := protocol.MessageTypeOf(event); ok {
		h.metrics.WSMessages.WithLabelValues("outbound", string(t)).Inc()
	}
}
