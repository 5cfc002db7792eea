package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/okdaichi/townvoice/internal/answercache"
	"github.com/okdaichi/townvoice/internal/config"
	"github.com/okdaichi/townvoice/internal/dispatch"
	"github.com/okdaichi/townvoice/internal/observability"
	"github.com/okdaichi/townvoice/internal/protocol"
)

type Server struct {
	cfg      config.Config
	queue    *dispatch.Queue
	disp     *dispatch.Dispatcher
	cache    *answercache.Cache
	hub      *Hub
	window   *observability.StageWindow
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
}

func New(cfg config.Config, queue *dispatch.Queue, disp *dispatch.Dispatcher, cache *answercache.Cache, hub *Hub, window *observability.StageWindow, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:     cfg,
		queue:   queue,
		disp:    disp,
		cache:   cache,
		hub:     hub,
		window:  window,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browser connections by default, so a
				// third-party page cannot drive the avatar if the service
				// is ever exposed beyond localhost.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/questions", s.handleSubmitQuestion)
	r.Get("/v1/results/ws", s.handleResultsWS)
	r.Get("/v1/history", s.handleHistory)
	r.Get("/v1/stats", s.handleStats)
	r.Post("/v1/queue/reset", s.handleQueueReset)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"queue_depth": s.queue.Len(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":        "ready",
		"queue_depth":   s.queue.Len(),
		"cache_entries": s.cache.Len(),
		"ws_clients":    s.hub.ClientCount(),
	})
}

type submitRequest struct {
	Text   string `json:"text"`
	Author string `json:"author"`
}

func (s *Server) handleSubmitQuestion(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "text is required")
		return
	}

	task := dispatch.NewRequest(req.Text, strings.TrimSpace(req.Author), dispatch.OriginDirect)
	pos := s.queue.Enqueue(task)

	respondJSON(w, http.StatusAccepted, protocol.QuestionAccepted{
		Type:      protocol.TypeQuestionAccepted,
		RequestID: task.ID,
		Position:  pos,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"answers": s.disp.History(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.window.Snapshot())
}

// handleQueueReset drops every pending request. Destructive: questions
// already waiting never get an answer. Used between streams or after a
// flood.
func (s *Server) handleQueueReset(w http.ResponseWriter, _ *http.Request) {
	dropped := s.queue.Reset()
	s.hub.PublishSystem(protocol.SystemEvent{
		Type: protocol.TypeSystemEvent,
		Code: "queue_reset",
	})
	respondJSON(w, http.StatusOK, map[string]any{"dropped": dropped})
}

func (s *Server) handleResultsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	client := s.hub.register()
	defer s.hub.unregister(client)

	ctx := r.Context()
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-client.send:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(msg); err != nil {
					return
				}
			}
		}
	}()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			select {
			case client.send <- protocol.ErrorEvent{
				Type:   protocol.TypeErrorEvent,
				Code:   "invalid_client_message",
				Detail: err.Error(),
			}:
			default:
			}
			continue
		}
		if s.metrics != nil {
			if t, ok := protocol.MessageTypeOf(parsed); ok {
				s.metrics.WSMessages.WithLabelValues("inbound", string(t)).Inc()
			}
		}

		if submit, ok := parsed.(protocol.ClientSubmit); ok {
			task := dispatch.NewRequest(submit.Text, strings.TrimSpace(submit.Author), dispatch.OriginDirect)
			pos := s.queue.Enqueue(task)
			select {
			case client.send <- protocol.QuestionAccepted{
				Type:      protocol.TypeQuestionAccepted,
				RequestID: task.ID,
				Position:  pos,
			}:
			default:
			}
		}
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
